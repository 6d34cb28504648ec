package render

import (
	"errors"
	"testing"

	"github.com/willowglen/reportpdf/internal/domain"
)

func TestRegistryDispatchesByKind(t *testing.T) {
	registry := NewRegistry()
	registry.Register(domain.ReportKindCM, func(domain.ReportPayload) ([]byte, error) {
		return []byte("cm"), nil
	})
	registry.Register(domain.ReportKindRTUPM, func(domain.ReportPayload) ([]byte, error) {
		return []byte("rtu"), nil
	})

	data, err := registry.Render(domain.ReportKindCM, domain.ReportPayload{})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if string(data) != "cm" {
		t.Fatalf("dispatched to wrong renderer: %q", data)
	}
}

func TestRegistryUnknownKind(t *testing.T) {
	registry := NewRegistry()

	if _, err := registry.Render(domain.ReportKindServerPM, domain.ReportPayload{}); err == nil {
		t.Fatal("expected error for unregistered kind")
	}
}

func TestRegistryWrapsRendererError(t *testing.T) {
	registry := NewRegistry()
	boom := errors.New("missing field")
	registry.Register(domain.ReportKindCM, func(domain.ReportPayload) ([]byte, error) {
		return nil, boom
	})

	_, err := registry.Render(domain.ReportKindCM, domain.ReportPayload{})
	if !errors.Is(err, boom) {
		t.Fatalf("renderer error not wrapped: %v", err)
	}
}
