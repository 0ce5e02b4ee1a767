package store

import (
	"context"
	"errors"
	"io"

	"github.com/avolkov/thermalscan/pkg/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrStorage           = errors.New("storage failure")
)

// Kind selects one of the two content areas inside a job's namespace.
type Kind string

const (
	KindInput  Kind = "input"
	KindOutput Kind = "output"
)

// ValidKind reports whether k names a real content area.
func ValidKind(k Kind) bool {
	return k == KindInput || k == KindOutput
}

// Store is the durable job state interface. It is the single source of truth
// for job state: each job's record is mutated only by the processor that owns
// it, while reads may happen concurrently from any goroutine.
type Store interface {
	Ping(ctx context.Context) error

	// Create allocates a fresh job namespace with status queued and all
	// counters at zero, and returns the persisted job.
	Create(ctx context.Context, totalImages int, params models.JobParams) (*models.Job, error)

	// MarkProcessing transitions queued -> processing. Any other starting
	// status is ErrInvalidTransition.
	MarkProcessing(ctx context.Context, id uuid.UUID) error

	// RecordImageResult appends one per-image result and advances the
	// processed (and, on failure, failed) counters. Results are persisted
	// incrementally so a crash mid-job leaves partial, queryable state.
	RecordImageResult(ctx context.Context, id uuid.UUID, result models.ImageResult) error

	// MarkTerminal sets completed or failed exactly once. A second terminal
	// transition is ErrInvalidTransition.
	MarkTerminal(ctx context.Context, id uuid.UUID, status string, opts ...TerminalOption) error

	GetStatus(ctx context.Context, id uuid.UUID) (*models.Job, error)

	// GetResults returns the job plus whatever results have been recorded so
	// far, in recording order. Valid on in-flight jobs.
	GetResults(ctx context.Context, id uuid.UUID) (*models.Job, []models.ImageResult, error)

	SaveImage(ctx context.Context, id uuid.UUID, kind Kind, filename string, data []byte) error
	OpenImage(ctx context.Context, id uuid.UUID, kind Kind, filename string) (io.ReadCloser, error)
}

type terminalParams struct {
	ErrorMessage *string
}

type TerminalOption func(*terminalParams)

// WithError records a job-level failure message on the terminal transition.
func WithError(msg string) TerminalOption {
	return func(p *terminalParams) {
		p.ErrorMessage = &msg
	}
}
