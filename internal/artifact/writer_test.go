package artifact

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/willowglen/reportpdf/internal/domain"
)

func fixedWriter(t *testing.T, at time.Time) (*Writer, string) {
	t.Helper()
	base := t.TempDir()
	writer := NewWriter(base, nil)
	writer.now = func() time.Time { return at }
	return writer, base
}

func TestWriteCanonicalPath(t *testing.T) {
	at := time.Date(2025, 8, 1, 9, 30, 45, 123*int(time.Millisecond), time.UTC)
	writer, base := fixedWriter(t, at)

	descriptor, err := writer.Write(domain.ReportKindCM, domain.ModeFinal, "R1", "J-1001", []byte("%PDF-1.4 test"))
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	wantRelative := "R1/CM_FinalReport/20250801093045123_CM_FinalReport_J-1001.pdf"
	if descriptor.RelativePath != wantRelative {
		t.Fatalf("relative path %q, want %q", descriptor.RelativePath, wantRelative)
	}
	if descriptor.DisplayName != "CM_FinalReport_J-1001" {
		t.Fatalf("unexpected display name %q", descriptor.DisplayName)
	}
	if descriptor.SizeBytes != int64(len("%PDF-1.4 test")) {
		t.Fatalf("unexpected size %d", descriptor.SizeBytes)
	}

	stored, err := os.ReadFile(filepath.Join(base, filepath.FromSlash(descriptor.RelativePath)))
	if err != nil {
		t.Fatalf("stored file unreadable: %v", err)
	}
	if string(stored) != "%PDF-1.4 test" {
		t.Fatal("stored bytes differ from rendered bytes")
	}
}

func TestDisplayNameCarriesNoTimestamp(t *testing.T) {
	name := DisplayNameFor(domain.ReportKindServerPM, domain.ModeDraft, "J-7")
	if name != "ServerPM_DraftReport_J-7" {
		t.Fatalf("unexpected display name %q", name)
	}
	if regexp.MustCompile(`\d{8}`).MatchString(name) {
		t.Fatalf("display name must not embed a timestamp: %q", name)
	}
}

func TestTimestampIsFixedWidthMilliseconds(t *testing.T) {
	stamp := Timestamp(time.Date(2025, 1, 2, 3, 4, 5, 6*int(time.Millisecond), time.UTC))
	if stamp != "20250102030405006" {
		t.Fatalf("unexpected stamp %q", stamp)
	}
	if len(stamp) != 17 {
		t.Fatalf("stamp must be 17 digits, got %d", len(stamp))
	}
}

func TestDraftAndFinalPathsDiverge(t *testing.T) {
	writer, _ := fixedWriter(t, time.Now())

	draft, err := writer.Write(domain.ReportKindRTUPM, domain.ModeDraft, "R2", "J-2", []byte("d"))
	if err != nil {
		t.Fatalf("draft write failed: %v", err)
	}
	final, err := writer.Write(domain.ReportKindRTUPM, domain.ModeFinal, "R2", "J-2", []byte("f"))
	if err != nil {
		t.Fatalf("final write failed: %v", err)
	}

	if !strings.Contains(draft.RelativePath, "RTUPM_DraftReport/") {
		t.Fatalf("draft path %q missing mode segment", draft.RelativePath)
	}
	if !strings.Contains(final.RelativePath, "RTUPM_FinalReport/") {
		t.Fatalf("final path %q missing mode segment", final.RelativePath)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	writer, base := fixedWriter(t, time.Now())

	if _, err := writer.Write(domain.ReportKindCM, domain.ModeDraft, "R3", "J-3", []byte("x")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(base, "R3", "CM_DraftReport"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".pending-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one artifact, found %d entries", len(entries))
	}
}

func TestWriteRejectsEmptyDocument(t *testing.T) {
	writer, _ := fixedWriter(t, time.Now())

	if _, err := writer.Write(domain.ReportKindCM, domain.ModeDraft, "R4", "J-4", nil); err == nil {
		t.Fatal("expected error for empty document")
	}
}
