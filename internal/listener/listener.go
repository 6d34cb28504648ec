package listener

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/willowglen/reportpdf/internal/admission"
	"github.com/willowglen/reportpdf/internal/bus"
	"github.com/willowglen/reportpdf/internal/domain"
	"github.com/willowglen/reportpdf/internal/route"
	"github.com/willowglen/reportpdf/internal/status"
)

// Fetcher reads and normalizes report data for one kind.
type Fetcher interface {
	Fetch(ctx context.Context, kind domain.ReportKind, reportID string) (domain.ReportPayload, error)
}

// SignatureResolver locates signature images for final-mode jobs. It
// degrades, never fails.
type SignatureResolver interface {
	Resolve(ctx context.Context, reportID string) domain.SignatureSet
}

// Renderer dispatches a payload to the kind-specific document builder.
type Renderer interface {
	Render(kind domain.ReportKind, payload domain.ReportPayload) ([]byte, error)
}

// ArtifactWriter persists rendered bytes under the canonical path.
type ArtifactWriter interface {
	Write(kind domain.ReportKind, mode domain.Mode, reportID, jobNo string, data []byte) (domain.ArtifactDescriptor, error)
}

type Dependencies struct {
	Bus        bus.Subscriber
	Routes     *route.Table
	Admission  admission.Registry
	Fetcher    Fetcher
	Signatures SignatureResolver
	Renderer   Renderer
	Writer     ArtifactWriter
	Status     *status.Publisher
	Logger     *log.Logger
}

// Listener subscribes the six trigger routes and runs one pipeline
// goroutine per admitted job, so a slow render never blocks reception of
// further triggers.
type Listener struct {
	bus        bus.Subscriber
	routes     *route.Table
	admission  admission.Registry
	fetcher    Fetcher
	signatures SignatureResolver
	renderer   Renderer
	writer     ArtifactWriter
	status     *status.Publisher
	logger     *log.Logger

	wg sync.WaitGroup
}

func New(deps Dependencies) *Listener {
	return &Listener{
		bus:        deps.Bus,
		routes:     deps.Routes,
		admission:  deps.Admission,
		fetcher:    deps.Fetcher,
		signatures: deps.Signatures,
		renderer:   deps.Renderer,
		writer:     deps.Writer,
		status:     deps.Status,
		logger:     deps.Logger,
	}
}

// Start subscribes every registered trigger route. Message handling
// returns immediately after admission; the pipeline runs detached.
func (l *Listener) Start(ctx context.Context) error {
	for _, r := range l.routes.All() {
		if err := l.bus.Subscribe(ctx, r.TriggerPattern(), l.handle); err != nil {
			return err
		}
		if l.logger != nil {
			l.logger.Printf("listening kind=%s mode=%s pattern=%s", r.Kind, r.Mode, r.TriggerPattern())
		}
	}
	return nil
}

// Wait blocks until all in-flight pipelines finish. Used for graceful
// shutdown after the subscriptions are torn down.
func (l *Listener) Wait() {
	l.wg.Wait()
}

type triggerMessage struct {
	ReportID    string `json:"report_id"`
	RequestedBy string `json:"requested_by"`
	Timestamp   string `json:"timestamp"`
}

func (l *Listener) handle(ctx context.Context, msg bus.Message) {
	r, reportID, ok := l.routes.Match(msg.Topic)
	if !ok {
		if l.logger != nil {
			l.logger.Printf("dropping message on unroutable topic %s", msg.Topic)
		}
		return
	}

	// The report id lives in the topic; the body is advisory. A body
	// that is present but unparsable is a malformed trigger: logged and
	// dropped with no status event, since there is no job to correlate
	// it against.
	var trigger triggerMessage
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &trigger); err != nil {
			if l.logger != nil {
				l.logger.Printf("malformed trigger dropped topic=%s: %v", msg.Topic, err)
			}
			return
		}
	}

	job := &domain.GenerationJob{
		Key:         domain.NewJobKey(r.Kind, reportID, r.Mode),
		Kind:        r.Kind,
		Mode:        r.Mode,
		ReportID:    reportID,
		RunID:       uuid.NewString(),
		RequestedBy: trigger.RequestedBy,
		ReceivedAt:  time.Now().UTC(),
		Phase:       domain.PhaseAdmitted,
	}

	admitted, err := l.admission.Admit(ctx, job.Key)
	if err != nil {
		if l.logger != nil {
			l.logger.Printf("admission check failed key=%s: %v", job.Key, err)
		}
		return
	}
	if !admitted {
		// Duplicate trigger: the in-flight job's terminal event is
		// authoritative, so this one stays silent.
		if l.logger != nil {
			l.logger.Printf("duplicate trigger dropped key=%s", job.Key)
		}
		return
	}

	if l.logger != nil {
		l.logger.Printf("job admitted key=%s run_id=%s requested_by=%s", job.Key, job.RunID, job.RequestedBy)
	}

	// The pipeline keeps the subscription context's values but not its
	// cancellation: shutdown tears the subscriptions down first, then
	// Wait() holds until every admitted job has published its terminal
	// status.
	pipelineCtx := context.WithoutCancel(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(pipelineCtx, job)
	}()
}

// run drives one job through the pipeline. Every exit path publishes
// exactly one terminal status, which also releases the job key.
func (l *Listener) run(ctx context.Context, job *domain.GenerationJob) {
	job.Phase = domain.PhaseFetching
	l.status.Processing(ctx, job, "report generation started")

	payload, err := l.fetcher.Fetch(ctx, job.Kind, job.ReportID)
	if err != nil {
		l.fail(ctx, job, domain.ErrorKindFetch, err)
		return
	}
	payload.Mode = job.Mode
	payload.GeneratedAt = job.ReceivedAt

	if job.Mode == domain.ModeFinal {
		job.Phase = domain.PhaseResolvingSignatures
		l.status.Processing(ctx, job, "resolving signatures")
		payload.Signatures = l.signatures.Resolve(ctx, job.ReportID)
	}

	job.Phase = domain.PhaseRendering
	l.status.Processing(ctx, job, "rendering document")
	data, err := l.renderer.Render(job.Kind, payload)
	if err != nil {
		l.fail(ctx, job, domain.ErrorKindRender, err)
		return
	}

	job.Phase = domain.PhaseWriting
	descriptor, err := l.writer.Write(job.Kind, job.Mode, job.ReportID, payload.JobNo, data)
	if err != nil {
		l.fail(ctx, job, domain.ErrorKindWrite, err)
		return
	}

	job.Phase = domain.PhaseCompleted
	l.status.Completed(ctx, job, descriptor)
	if l.logger != nil {
		l.logger.Printf("job completed key=%s run_id=%s artifact=%s", job.Key, job.RunID, descriptor.RelativePath)
	}
}

func (l *Listener) fail(ctx context.Context, job *domain.GenerationJob, kind domain.ErrorKind, err error) {
	job.Phase = domain.PhaseFailed
	if l.logger != nil {
		l.logger.Printf("job failed key=%s run_id=%s kind=%s: %v", job.Key, job.RunID, kind, err)
	}
	l.status.Failed(ctx, job, kind, err.Error())
}
