package status

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/willowglen/reportpdf/internal/admission"
	"github.com/willowglen/reportpdf/internal/bus"
	"github.com/willowglen/reportpdf/internal/domain"
	"github.com/willowglen/reportpdf/internal/route"
)

const (
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// ArtifactRef is the artifact part of a completed status event. The
// backend persists the final-report record from these two fields without
// re-deriving the path.
type ArtifactRef struct {
	RelativePath string `json:"relative_path"`
	DisplayName  string `json:"display_name"`
}

// Event is the wire payload on the status topic of a trigger channel.
type Event struct {
	ReportID  string       `json:"report_id"`
	Status    string       `json:"status"`
	Message   string       `json:"message"`
	Timestamp string       `json:"timestamp"`
	TraceID   string       `json:"trace_id,omitempty"`
	Artifact  *ArtifactRef `json:"artifact,omitempty"`
}

// Publisher emits job status events and owns the terminal-publish
// contract: exactly one completed or failed event per job, and the job
// key is released only after that event is out, so a retrigger admitted
// later can never interleave with this job's status stream.
type Publisher struct {
	bus      bus.Publisher
	routes   *route.Table
	registry admission.Registry
	logger   *log.Logger

	// now is swapped in tests.
	now func() time.Time
}

func NewPublisher(b bus.Publisher, routes *route.Table, registry admission.Registry, logger *log.Logger) *Publisher {
	return &Publisher{
		bus:      b,
		routes:   routes,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// Processing emits a progress event. Progress failures are logged, not
// fatal: the job result matters, the progress stream is advisory.
func (p *Publisher) Processing(ctx context.Context, job *domain.GenerationJob, detail string) {
	if err := p.publish(ctx, job, Event{
		ReportID: job.ReportID,
		Status:   StateProcessing,
		Message:  detail,
	}); err != nil && p.logger != nil {
		p.logger.Printf("processing status publish failed key=%s: %v", job.Key, err)
	}
}

// Completed emits the terminal success event and releases the job key.
func (p *Publisher) Completed(ctx context.Context, job *domain.GenerationJob, descriptor domain.ArtifactDescriptor) {
	p.terminal(ctx, job, Event{
		ReportID: job.ReportID,
		Status:   StateCompleted,
		Message:  "report generated: " + descriptor.DisplayName,
		Artifact: &ArtifactRef{
			RelativePath: descriptor.RelativePath,
			DisplayName:  descriptor.DisplayName,
		},
	})
}

// Failed emits the terminal failure event, labeled with the stable error
// kind, and releases the job key.
func (p *Publisher) Failed(ctx context.Context, job *domain.GenerationJob, kind domain.ErrorKind, detail string) {
	p.terminal(ctx, job, Event{
		ReportID: job.ReportID,
		Status:   StateFailed,
		Message:  string(kind) + ": " + detail,
	})
}

func (p *Publisher) terminal(ctx context.Context, job *domain.GenerationJob, event Event) {
	if !job.MarkTerminal() {
		if p.logger != nil {
			p.logger.Printf("terminal status already published key=%s run_id=%s, dropping %s", job.Key, job.RunID, event.Status)
		}
		return
	}

	if err := p.publish(ctx, job, event); err != nil && p.logger != nil {
		p.logger.Printf("terminal status publish failed key=%s: %v", job.Key, err)
	}

	if err := p.registry.Release(ctx, job.Key); err != nil && p.logger != nil {
		p.logger.Printf("job key release failed key=%s: %v", job.Key, err)
	}
}

func (p *Publisher) publish(ctx context.Context, job *domain.GenerationJob, event Event) error {
	r, ok := p.routes.Lookup(job.Kind, job.Mode)
	if !ok {
		// Admission only runs for routed triggers, so this is a wiring bug.
		if p.logger != nil {
			p.logger.Printf("no status route for kind=%s mode=%s", job.Kind, job.Mode)
		}
		return nil
	}

	event.Timestamp = p.now().UTC().Format(time.RFC3339Nano)
	event.TraceID = job.RunID

	encoded, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, r.StatusTopic(job.ReportID), encoded)
}
