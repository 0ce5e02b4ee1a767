package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/avolkov/thermalscan/internal/cache"
	"github.com/avolkov/thermalscan/internal/detect"
	"github.com/avolkov/thermalscan/internal/imaging"
	"github.com/avolkov/thermalscan/internal/store"
	"github.com/avolkov/thermalscan/pkg/models"
	"github.com/google/uuid"
)

// Only terminal jobs are cached. They never change again, so a cached copy
// stays accurate for its whole TTL while clients keep polling it.
const jobCacheTTL = 30 * time.Minute

// Options fix the processing policy for all jobs a Service dispatches.
type Options struct {
	// DefaultConfidence applies when a submission carries no threshold.
	DefaultConfidence float64
	// SaveAllOutputs writes an output image even for zero-detection inputs.
	// The default (false) leaves zero-detection images without an output
	// entry at all.
	SaveAllOutputs bool
	// DetectTimeout bounds each individual detector call.
	DetectTimeout time.Duration
}

// Service is the public entry point for the job lifecycle: it admits batches,
// launches one background processor goroutine per job, and routes reads to the
// store. It holds no reference to a running job beyond its id; progress is
// discovered by polling the store.
type Service struct {
	store    store.Store
	detector models.Detector
	cache    cache.Cache
	opts     Options
}

// NewService creates a Service. Pass cache.Noop{} when Redis is not configured.
func NewService(st store.Store, detector models.Detector, ca cache.Cache, opts Options) *Service {
	if opts.DetectTimeout <= 0 {
		opts.DetectTimeout = 60 * time.Second
	}
	return &Service{store: st, detector: detector, cache: ca, opts: opts}
}

// Submit validates and admits a batch as one job, schedules processing in the
// background, and returns the queued job immediately. The only blocking work
// on this path is the store's Create.
func (s *Service) Submit(ctx context.Context, files []ImageFile, confidence *float64) (*models.Job, error) {
	batch, err := BuildBatch(files)
	if err != nil {
		return nil, err
	}

	conf := s.opts.DefaultConfidence
	if confidence != nil {
		if *confidence < 0 || *confidence > 1 {
			return nil, fmt.Errorf("%w: got %v", ErrInvalidConfidence, *confidence)
		}
		conf = *confidence
	}

	job, err := s.store.Create(ctx, len(batch), models.JobParams{ConfidenceThreshold: conf})
	if err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	go s.runJob(job.ID, batch, conf)

	return job, nil
}

// Status returns the job record for polling clients. Finished jobs are served
// from the cache when possible; live jobs always read the store so counters
// stay current.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if job, ok, err := s.cache.GetJob(ctx, id); err == nil && ok {
		return job, nil
	}

	job, err := s.store.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if models.TerminalStatus(job.Status) {
		_ = s.cache.SetJob(ctx, job, jobCacheTTL)
	}
	return job, nil
}

// Results returns the job plus all results recorded so far, partial while the
// job is in flight.
func (s *Service) Results(ctx context.Context, id uuid.UUID) (*models.Job, []models.ImageResult, error) {
	return s.store.GetResults(ctx, id)
}

// OpenImage streams a stored input or output image.
func (s *Service) OpenImage(ctx context.Context, id uuid.UUID, kind store.Kind, filename string) (io.ReadCloser, error) {
	return s.store.OpenImage(ctx, id, kind, filename)
}

// runJob drives one job end to end. It owns all mutation of the job's state;
// nothing else writes to this job id.
func (s *Service) runJob(id uuid.UUID, batch []ImageFile, confidence float64) {
	ctx := context.Background()
	logger := slog.With("job_id", id.String())
	start := time.Now()

	if err := s.store.MarkProcessing(ctx, id); err != nil {
		logger.Error("job could not start", "error", err)
		s.failJob(ctx, id, logger, fmt.Sprintf("starting job: %v", err))
		return
	}
	logger.Info("job processing", "total_images", len(batch), "confidence_threshold", confidence)

	for _, img := range batch {
		if fault := s.processImage(ctx, id, img, confidence, logger); fault != nil {
			s.failJob(ctx, id, logger, fault.Error())
			return
		}
	}

	if err := s.store.MarkTerminal(ctx, id, models.JobStatusCompleted); err != nil {
		logger.Error("marking job completed", "error", err)
		return
	}
	s.cacheTerminal(ctx, id)
	logger.Info("job completed", "duration_ms", time.Since(start).Milliseconds())
}

// processImage handles one image. A non-nil return is a job-level fault;
// per-image detection failures are recorded as data and return nil.
func (s *Service) processImage(ctx context.Context, id uuid.UUID, img ImageFile, confidence float64, logger *slog.Logger) error {
	imgStart := time.Now()

	if err := s.store.SaveImage(ctx, id, store.KindInput, img.Filename, img.Data); err != nil {
		return fmt.Errorf("saving input %s: %w", img.Filename, err)
	}

	dets, err := s.detectOne(ctx, img.Data)
	if err != nil {
		// A dead detector is fatal to the job; anything else is an isolated
		// per-image failure.
		if errors.Is(err, detect.ErrDetectorUnavailable) {
			return fmt.Errorf("detector unavailable: %w", err)
		}
		logger.Warn("image failed", "filename", img.Filename, "error", err)
		if recErr := s.store.RecordImageResult(ctx, id, models.FailedResult(img.Filename, err.Error())); recErr != nil {
			return fmt.Errorf("recording result for %s: %w", img.Filename, recErr)
		}
		return nil
	}

	dets = filterByConfidence(dets, confidence)

	if len(dets) > 0 || s.opts.SaveAllOutputs {
		out, annErr := imaging.Annotate(img.Data, dets)
		if annErr != nil {
			// Formats we cannot re-encode still get an output entry, as a
			// plain copy of the input.
			out = img.Data
		}
		if err := s.store.SaveImage(ctx, id, store.KindOutput, img.Filename, out); err != nil {
			return fmt.Errorf("saving output %s: %w", img.Filename, err)
		}
	}

	result := models.ImageResult{
		Filename:   img.Filename,
		Detections: dets,
		Success:    true,
	}
	if err := s.store.RecordImageResult(ctx, id, result); err != nil {
		return fmt.Errorf("recording result for %s: %w", img.Filename, err)
	}

	logger.Info("image processed",
		"filename", img.Filename,
		"detections", len(dets),
		"duration_ms", time.Since(imgStart).Milliseconds(),
	)
	return nil
}

func (s *Service) detectOne(ctx context.Context, image []byte) ([]models.Detection, error) {
	detectCtx, cancel := context.WithTimeout(ctx, s.opts.DetectTimeout)
	defer cancel()
	return s.detector.Detect(detectCtx, image)
}

func (s *Service) failJob(ctx context.Context, id uuid.UUID, logger *slog.Logger, msg string) {
	if err := s.store.MarkTerminal(ctx, id, models.JobStatusFailed, store.WithError(msg)); err != nil {
		logger.Error("marking job failed", "error", err)
		return
	}
	s.cacheTerminal(ctx, id)
	logger.Error("job failed", "error", msg)
}

// cacheTerminal stores the finished job document for polling clients.
func (s *Service) cacheTerminal(ctx context.Context, id uuid.UUID) {
	job, err := s.store.GetStatus(ctx, id)
	if err != nil || !models.TerminalStatus(job.Status) {
		return
	}
	_ = s.cache.SetJob(ctx, job, jobCacheTTL)
}

func filterByConfidence(dets []models.Detection, threshold float64) []models.Detection {
	filtered := make([]models.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= threshold {
			filtered = append(filtered, d)
		}
	}
	return filtered
}
