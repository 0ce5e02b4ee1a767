package jobs

import "errors"

// Validation errors are rejected before a job is created and never persisted.
var (
	ErrEmptyBatch        = errors.New("submission contains no files")
	ErrNoValidImages     = errors.New("submission contains no supported images")
	ErrBadArchive        = errors.New("invalid zip archive")
	ErrInvalidConfidence = errors.New("confidence threshold must be in [0,1]")
)

// ValidationError reports whether err is a submission validation failure.
func ValidationError(err error) bool {
	return errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrNoValidImages) ||
		errors.Is(err, ErrBadArchive) ||
		errors.Is(err, ErrInvalidConfidence)
}
