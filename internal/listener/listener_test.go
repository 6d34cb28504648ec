package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/willowglen/reportpdf/internal/admission"
	"github.com/willowglen/reportpdf/internal/artifact"
	"github.com/willowglen/reportpdf/internal/bus"
	"github.com/willowglen/reportpdf/internal/domain"
	"github.com/willowglen/reportpdf/internal/fetch"
	"github.com/willowglen/reportpdf/internal/render"
	"github.com/willowglen/reportpdf/internal/route"
	"github.com/willowglen/reportpdf/internal/status"
)

type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string]domain.ReportPayload
	errs     map[string]error
	gate     chan struct{}
	calls    int
}

func (f *fakeFetcher) Fetch(_ context.Context, kind domain.ReportKind, reportID string) (domain.ReportPayload, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	if err, ok := f.errs[reportID]; ok {
		return domain.ReportPayload{}, err
	}
	payload, ok := f.payloads[reportID]
	if !ok {
		return domain.ReportPayload{}, fmt.Errorf("fetch %s report %s: %w", kind, reportID, fetch.ErrNotFound)
	}
	return payload, nil
}

func (f *fakeFetcher) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSignatures struct {
	mu    sync.Mutex
	set   domain.SignatureSet
	calls int
}

func (f *fakeSignatures) Resolve(_ context.Context, _ string) domain.SignatureSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.set
}

func (f *fakeSignatures) resolveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type statusEvent struct {
	Topic string
	Event status.Event
}

// harness wires a full pipeline over an in-process bus with a real
// renderer registry and artifact writer, faking only the network edges.
type harness struct {
	bus        *bus.LocalBus
	routes     *route.Table
	fetcher    *fakeFetcher
	signatures *fakeSignatures
	listener   *Listener
	artifacts  string
	events     chan statusEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	localBus := bus.NewLocalBus(64, nil)
	t.Cleanup(localBus.Close)
	routes := route.NewTable("controltower")
	registry := admission.NewMemoryRegistry()

	fetcher := &fakeFetcher{payloads: map[string]domain.ReportPayload{}, errs: map[string]error{}}
	signatures := &fakeSignatures{}

	renderers := render.NewRegistry()
	for _, kind := range []domain.ReportKind{domain.ReportKindCM, domain.ReportKindServerPM, domain.ReportKindRTUPM} {
		kind := kind
		renderers.Register(kind, func(payload domain.ReportPayload) ([]byte, error) {
			if payload.ReportID == "" {
				return nil, errors.New("payload missing report id")
			}
			return []byte("%PDF-1.4 " + string(kind) + " " + string(payload.Mode)), nil
		})
	}

	artifacts := t.TempDir()

	h := &harness{
		bus:        localBus,
		routes:     routes,
		fetcher:    fetcher,
		signatures: signatures,
		artifacts:  artifacts,
		events:     make(chan statusEvent, 64),
	}

	publisher := status.NewPublisher(localBus, routes, registry, nil)
	h.listener = New(Dependencies{
		Bus:        localBus,
		Routes:     routes,
		Admission:  registry,
		Fetcher:    fetcher,
		Signatures: signatures,
		Renderer:   renderers,
		Writer:     artifact.NewWriter(artifacts, nil),
		Status:     publisher,
	})

	ctx := context.Background()
	if err := localBus.Subscribe(ctx, "controltower/#", func(_ context.Context, msg bus.Message) {
		if !strings.Contains(msg.Topic, "_status/") {
			return
		}
		var event status.Event
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			t.Errorf("status payload not JSON: %v", err)
			return
		}
		h.events <- statusEvent{Topic: msg.Topic, Event: event}
	}); err != nil {
		t.Fatalf("subscribe status collector: %v", err)
	}
	if err := h.listener.Start(ctx); err != nil {
		t.Fatalf("start listener: %v", err)
	}
	return h
}

func (h *harness) trigger(t *testing.T, topic string, body []byte) {
	t.Helper()
	if err := h.bus.Publish(context.Background(), topic, body); err != nil {
		t.Fatalf("publish trigger: %v", err)
	}
}

func (h *harness) nextEvent(t *testing.T) statusEvent {
	t.Helper()
	select {
	case event := <-h.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status event")
		return statusEvent{}
	}
}

// waitTerminal drains processing events and returns the first terminal one.
func (h *harness) waitTerminal(t *testing.T) statusEvent {
	t.Helper()
	for {
		event := h.nextEvent(t)
		if event.Event.Status != status.StateProcessing {
			return event
		}
	}
}

func (h *harness) expectNoEvent(t *testing.T) {
	t.Helper()
	select {
	case event := <-h.events:
		t.Fatalf("unexpected status event: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func samplePayload(reportID string) domain.ReportPayload {
	return domain.ReportPayload{
		Kind:     domain.ReportKindCM,
		ReportID: reportID,
		JobNo:    "J-" + reportID,
		Title:    "CM Report Form",
	}
}

func TestDraftTriggerCompletesWithArtifact(t *testing.T) {
	h := newHarness(t)
	h.fetcher.payloads["R1"] = samplePayload("R1")

	h.trigger(t, "controltower/cm_reportform_pdf/R1", []byte(`{"requested_by":"ops"}`))

	terminal := h.waitTerminal(t)
	if terminal.Event.Status != status.StateCompleted {
		t.Fatalf("expected completed, got %q (%s)", terminal.Event.Status, terminal.Event.Message)
	}
	if terminal.Topic != "controltower/cm_reportform_pdf_status/R1" {
		t.Fatalf("terminal event on wrong topic %q", terminal.Topic)
	}
	if terminal.Event.ReportID != "R1" {
		t.Fatalf("terminal event for wrong report %q", terminal.Event.ReportID)
	}
	if terminal.Event.Artifact == nil {
		t.Fatal("completed event missing artifact")
	}
	if !strings.HasPrefix(terminal.Event.Artifact.RelativePath, "R1/CM_DraftReport/") {
		t.Fatalf("artifact path %q not under R1/CM_DraftReport/", terminal.Event.Artifact.RelativePath)
	}
	if terminal.Event.TraceID == "" {
		t.Fatal("terminal event missing trace id")
	}

	stored := filepath.Join(h.artifacts, filepath.FromSlash(terminal.Event.Artifact.RelativePath))
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("artifact not on disk: %v", err)
	}

	if h.signatures.resolveCalls() != 0 {
		t.Fatal("draft job must not resolve signatures")
	}
}

func TestMissingReportFailsWithFetchLabel(t *testing.T) {
	h := newHarness(t)

	h.trigger(t, "controltower/cm_reportform_pdf/R404", nil)

	terminal := h.waitTerminal(t)
	if terminal.Event.Status != status.StateFailed {
		t.Fatalf("expected failed, got %q", terminal.Event.Status)
	}
	if !strings.HasPrefix(terminal.Event.Message, "FetchError: ") {
		t.Fatalf("failure message %q missing error kind label", terminal.Event.Message)
	}
	if terminal.Event.Artifact != nil {
		t.Fatal("failed event must not carry an artifact")
	}
}

func TestDuplicateTriggerRunsOneJob(t *testing.T) {
	h := newHarness(t)
	h.fetcher.payloads["R2"] = samplePayload("R2")
	gate := make(chan struct{})
	h.fetcher.gate = gate

	h.trigger(t, "controltower/cm_reportform_pdf/R2", nil)

	// First processing event means the job is admitted and in flight.
	first := h.nextEvent(t)
	if first.Event.Status != status.StateProcessing {
		t.Fatalf("expected processing, got %q", first.Event.Status)
	}

	// Retrigger the same key while the first run is blocked in fetch.
	h.trigger(t, "controltower/cm_reportform_pdf/R2", nil)
	time.Sleep(100 * time.Millisecond)
	close(gate)

	terminal := h.waitTerminal(t)
	if terminal.Event.Status != status.StateCompleted {
		t.Fatalf("expected completed, got %q", terminal.Event.Status)
	}
	h.listener.Wait()
	h.expectNoEvent(t)

	if calls := h.fetcher.fetchCalls(); calls != 1 {
		t.Fatalf("duplicate trigger must not start a second fetch, got %d", calls)
	}
}

func TestSameReportDifferentModesRunIndependently(t *testing.T) {
	h := newHarness(t)
	h.fetcher.payloads["R3"] = samplePayload("R3")

	h.trigger(t, "controltower/cm_reportform_pdf/R3", nil)
	h.trigger(t, "controltower/cm_reportform_signature_pdf/R3", nil)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		terminal := h.waitTerminal(t)
		if terminal.Event.Status != status.StateCompleted {
			t.Fatalf("expected completed, got %q (%s)", terminal.Event.Status, terminal.Event.Message)
		}
		seen[terminal.Topic] = true
	}
	if !seen["controltower/cm_reportform_pdf_status/R3"] || !seen["controltower/cm_reportform_signature_pdf_status/R3"] {
		t.Fatalf("expected one terminal per mode, saw %v", seen)
	}
}

func TestFinalTriggerResolvesSignatures(t *testing.T) {
	h := newHarness(t)
	h.fetcher.payloads["R4"] = samplePayload("R4")
	h.signatures.set = domain.SignatureSet{
		ApprovedBy: &domain.Signature{Role: domain.RoleApprovedBy, SignerName: "lead"},
	}

	h.trigger(t, "controltower/cm_reportform_signature_pdf/R4", nil)

	terminal := h.waitTerminal(t)
	if terminal.Event.Status != status.StateCompleted {
		t.Fatalf("expected completed, got %q (%s)", terminal.Event.Status, terminal.Event.Message)
	}
	if !strings.HasPrefix(terminal.Event.Artifact.RelativePath, "R4/CM_FinalReport/") {
		t.Fatalf("artifact path %q not under R4/CM_FinalReport/", terminal.Event.Artifact.RelativePath)
	}
	if h.signatures.resolveCalls() != 1 {
		t.Fatalf("final job must resolve signatures once, got %d", h.signatures.resolveCalls())
	}
}

func TestMalformedTriggerBodyIsDropped(t *testing.T) {
	h := newHarness(t)
	h.fetcher.payloads["R5"] = samplePayload("R5")

	h.trigger(t, "controltower/cm_reportform_pdf/R5", []byte(`{not json`))
	h.expectNoEvent(t)
	if h.fetcher.fetchCalls() != 0 {
		t.Fatal("malformed trigger must not start a job")
	}

	// The key was never taken, so a well-formed retry runs normally.
	h.trigger(t, "controltower/cm_reportform_pdf/R5", nil)
	terminal := h.waitTerminal(t)
	if terminal.Event.Status != status.StateCompleted {
		t.Fatalf("expected completed after retry, got %q", terminal.Event.Status)
	}
}

func TestShutdownDrainsInFlightJob(t *testing.T) {
	h := newHarness(t)
	h.fetcher.payloads["R7"] = samplePayload("R7")
	gate := make(chan struct{})
	h.fetcher.gate = gate

	// Admit through a cancellable context standing in for the signal
	// context the subscriptions run on.
	ctx, cancel := context.WithCancel(context.Background())
	h.listener.handle(ctx, bus.Message{Topic: "controltower/cm_reportform_pdf/R7"})

	first := h.nextEvent(t)
	if first.Event.Status != status.StateProcessing {
		t.Fatalf("expected processing, got %q", first.Event.Status)
	}

	// Shutdown signal arrives while the job is blocked in fetch. The
	// drain must still carry the job to its terminal status.
	cancel()
	close(gate)
	h.listener.Wait()

	terminal := h.waitTerminal(t)
	if terminal.Event.Status != status.StateCompleted {
		t.Fatalf("drained job must publish its terminal status, got %q (%s)", terminal.Event.Status, terminal.Event.Message)
	}
	if terminal.Event.Artifact == nil {
		t.Fatal("drained job lost its artifact reference")
	}
}

func TestUnroutableTopicIsIgnored(t *testing.T) {
	h := newHarness(t)

	// Delivered straight to the handler: subscriptions would never match
	// this topic, but a shared broker can still hand over stray retained
	// messages after a filter change.
	h.listener.handle(context.Background(), bus.Message{Topic: "controltower/unknown_reportform_pdf/R6"})
	h.expectNoEvent(t)
	if h.fetcher.fetchCalls() != 0 {
		t.Fatal("unroutable topic must not start a job")
	}
}
