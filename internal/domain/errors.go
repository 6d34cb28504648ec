package domain

import "fmt"

// ErrorKind is the stable label attached to failed status events. The
// labels are part of the status contract with the backend and must not
// change between releases.
type ErrorKind string

const (
	ErrorKindFetch  ErrorKind = "FetchError"
	ErrorKindRender ErrorKind = "RenderError"
	ErrorKindWrite  ErrorKind = "WriteError"
)

// PipelineError couples a terminal failure with its taxonomy label.
type PipelineError struct {
	Kind ErrorKind
	Err  error
}

func NewPipelineError(kind ErrorKind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Err: err}
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
