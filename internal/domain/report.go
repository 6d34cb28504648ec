package domain

import (
	"fmt"
	"time"
)

type ReportKind string

const (
	ReportKindCM       ReportKind = "CM"
	ReportKindServerPM ReportKind = "ServerPM"
	ReportKindRTUPM    ReportKind = "RTUPM"
)

type Mode string

const (
	ModeDraft Mode = "Draft"
	ModeFinal Mode = "Final"
)

// JobKey identifies one unit of generation work. At most one job per key
// is in flight at any time; the key is also the status correlation handle.
type JobKey string

func NewJobKey(kind ReportKind, reportID string, mode Mode) JobKey {
	return JobKey(fmt.Sprintf("%s:%s:%s", kind, reportID, mode))
}

type Phase string

const (
	PhaseAdmitted            Phase = "Admitted"
	PhaseFetching            Phase = "Fetching"
	PhaseResolvingSignatures Phase = "ResolvingSignatures"
	PhaseRendering           Phase = "Rendering"
	PhaseWriting             Phase = "Writing"
	PhaseCompleted           Phase = "Completed"
	PhaseFailed              Phase = "Failed"
)

// GenerationJob is the in-memory record of one admitted trigger. It lives
// only between admission and the terminal status publish; the terminal
// status event is the durable record of outcome.
type GenerationJob struct {
	Key      JobKey
	Kind     ReportKind
	Mode     Mode
	ReportID string

	// RunID correlates log lines and status events of a single run.
	RunID string

	RequestedBy string
	ReceivedAt  time.Time

	Phase Phase

	terminalSent bool
}

// MarkTerminal records that a terminal status has been published for this
// run. Returns false if one was already published. The job is owned by a
// single goroutine, so no locking is needed here.
func (j *GenerationJob) MarkTerminal() bool {
	if j.terminalSent {
		return false
	}
	j.terminalSent = true
	return true
}
