package async

import (
	"context"
	"time"

	"github.com/joseph-ayodele/labelscan/internal/pipeline"
)

type Kind string

const (
	KindRecognize Kind = "recognize"
	KindAnalyze   Kind = "analyze"
)

// Job is one asynchronous pipeline step for a session. Token ties the job to
// the operation that started it; a superseded job finds its token stale.
type Job struct {
	SessionID   string
	Kind        Kind
	Token       pipeline.Token
	SubmittedAt time.Time
	TraceID     string
}

// Handler runs a job. Errors are logged by the queue; handlers record
// user-facing failures on the session themselves.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
