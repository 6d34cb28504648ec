package artifact

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/willowglen/reportpdf/internal/domain"
)

// Writer persists rendered documents under the canonical path scheme
// shared with the manual-upload path:
//
//	{basePath}/{reportId}/{ReportKind}_{Mode}Report/{timestamp}_{displayName}.pdf
//
// The template and display-name rule must stay byte-for-byte identical to
// the upload convention so a lookup by report id and kind cannot tell
// generated and uploaded artifacts apart.
type Writer struct {
	basePath string
	logger   *log.Logger

	// now is swapped in tests to pin the filename timestamp.
	now func() time.Time
}

func NewWriter(basePath string, logger *log.Logger) *Writer {
	return &Writer{
		basePath: basePath,
		logger:   logger,
		now:      time.Now,
	}
}

// SubdirFor returns the mode-qualified artifact directory name, e.g.
// "CM_FinalReport". Draft and Final jobs for one report never collide
// because their subdirectories differ.
func SubdirFor(kind domain.ReportKind, mode domain.Mode) string {
	return fmt.Sprintf("%s_%sReport", kind, mode)
}

// DisplayNameFor builds the human artifact name. It carries no timestamp;
// the timestamp lives only in the stored filename prefix.
func DisplayNameFor(kind domain.ReportKind, mode domain.Mode, jobNo string) string {
	return fmt.Sprintf("%s_%s", SubdirFor(kind, mode), jobNo)
}

// Timestamp is the fixed-width 17-digit millisecond UTC stamp prefixed to
// stored filenames.
func Timestamp(t time.Time) string {
	t = t.UTC()
	return t.Format("20060102150405") + fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
}

func (w *Writer) Write(kind domain.ReportKind, mode domain.Mode, reportID, jobNo string, data []byte) (domain.ArtifactDescriptor, error) {
	if len(data) == 0 {
		return domain.ArtifactDescriptor{}, fmt.Errorf("refusing to write empty document for report %s", reportID)
	}

	subdir := SubdirFor(kind, mode)
	directory := filepath.Join(w.basePath, reportID, subdir)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return domain.ArtifactDescriptor{}, fmt.Errorf("create artifact directory: %w", err)
	}

	generatedAt := w.now().UTC()
	displayName := DisplayNameFor(kind, mode, jobNo)
	fileName := fmt.Sprintf("%s_%s.pdf", Timestamp(generatedAt), displayName)

	// Stage in the same directory so the rename is a same-filesystem
	// atomic replace; a crash mid-write leaves only a temp file behind.
	temp, err := os.CreateTemp(directory, ".pending-*")
	if err != nil {
		return domain.ArtifactDescriptor{}, fmt.Errorf("create temp artifact: %w", err)
	}
	tempName := temp.Name()
	defer os.Remove(tempName)

	if _, err := temp.Write(data); err != nil {
		temp.Close()
		return domain.ArtifactDescriptor{}, fmt.Errorf("write artifact: %w", err)
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return domain.ArtifactDescriptor{}, fmt.Errorf("sync artifact: %w", err)
	}
	if err := temp.Close(); err != nil {
		return domain.ArtifactDescriptor{}, fmt.Errorf("close artifact: %w", err)
	}

	finalPath := filepath.Join(directory, fileName)
	if err := os.Rename(tempName, finalPath); err != nil {
		return domain.ArtifactDescriptor{}, fmt.Errorf("publish artifact: %w", err)
	}

	if w.logger != nil {
		w.logger.Printf("artifact written path=%s size=%d", finalPath, len(data))
	}

	return domain.ArtifactDescriptor{
		RelativePath: filepath.ToSlash(filepath.Join(reportID, subdir, fileName)),
		DisplayName:  displayName,
		SizeBytes:    int64(len(data)),
		GeneratedAt:  generatedAt,
	}, nil
}
