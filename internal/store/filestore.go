package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/avolkov/thermalscan/pkg/models"
	"github.com/google/uuid"
)

const (
	manifestFile = "manifest.json"
	resultsFile  = "results.json"
)

// FileStore implements Store on a plain directory tree. Each job owns an
// isolated namespace under the base directory:
//
//	<base>/<job-id>/manifest.json   job metadata and counters
//	<base>/<job-id>/results.json    per-image results, recording order
//	<base>/<job-id>/input/          original image bytes
//	<base>/<job-id>/output/         annotated image bytes
//
// Manifest and results writes go through a write-temp-then-rename step, so an
// external reader (or this process after a crash) never observes a torn record.
type FileStore struct {
	baseDir string

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.RWMutex
}

// NewFileStore creates the base directory if needed and returns a FileStore.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating base dir: %v", ErrStorage, err)
	}
	return &FileStore{
		baseDir: baseDir,
		locks:   make(map[uuid.UUID]*sync.RWMutex),
	}, nil
}

// Ping verifies the backing directory is still writable.
func (s *FileStore) Ping(_ context.Context) error {
	f, err := os.CreateTemp(s.baseDir, ".ping-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return nil
}

// lockFor returns the per-job lock, creating it lazily. Jobs written by a
// previous process get their lock on first access after restart.
func (s *FileStore) lockFor(id uuid.UUID) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[id] = l
	}
	return l
}

func (s *FileStore) Create(_ context.Context, totalImages int, params models.JobParams) (*models.Job, error) {
	id := uuid.New()
	jobDir := filepath.Join(s.baseDir, id.String())

	for _, dir := range []string{jobDir, filepath.Join(jobDir, string(KindInput)), filepath.Join(jobDir, string(KindOutput))} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating job namespace: %v", ErrStorage, err)
		}
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:          id,
		Status:      models.JobStatusQueued,
		TotalImages: totalImages,
		Parameters:  params,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if err := s.writeManifest(id, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *FileStore) MarkProcessing(_ context.Context, id uuid.UUID) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	job, err := s.readManifest(id)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusQueued {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, models.JobStatusProcessing)
	}

	job.Status = models.JobStatusProcessing
	job.UpdatedAt = time.Now().UTC()
	return s.writeManifest(id, job)
}

func (s *FileStore) RecordImageResult(_ context.Context, id uuid.UUID, result models.ImageResult) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	job, err := s.readManifest(id)
	if err != nil {
		return err
	}
	results, err := s.readResults(id)
	if err != nil {
		return err
	}

	results = append(results, result)
	job.ProcessedImages++
	if !result.Success {
		job.FailedImages++
	}
	job.UpdatedAt = time.Now().UTC()

	// Results land before counters so a reader never sees a count ahead of
	// the recorded results.
	if err := s.writeResults(id, results); err != nil {
		return err
	}
	return s.writeManifest(id, job)
}

func (s *FileStore) MarkTerminal(_ context.Context, id uuid.UUID, status string, opts ...TerminalOption) error {
	if !models.TerminalStatus(status) {
		return fmt.Errorf("%w: %q is not a terminal status", ErrInvalidTransition, status)
	}

	var params terminalParams
	for _, opt := range opts {
		opt(&params)
	}

	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	job, err := s.readManifest(id)
	if err != nil {
		return err
	}
	if models.TerminalStatus(job.Status) {
		return fmt.Errorf("%w: job already %s", ErrInvalidTransition, job.Status)
	}

	now := time.Now().UTC()
	job.Status = status
	job.Error = params.ErrorMessage
	job.UpdatedAt = now
	job.CompletedAt = &now
	return s.writeManifest(id, job)
}

func (s *FileStore) GetStatus(_ context.Context, id uuid.UUID) (*models.Job, error) {
	l := s.lockFor(id)
	l.RLock()
	defer l.RUnlock()

	return s.readManifest(id)
}

func (s *FileStore) GetResults(_ context.Context, id uuid.UUID) (*models.Job, []models.ImageResult, error) {
	l := s.lockFor(id)
	l.RLock()
	defer l.RUnlock()

	job, err := s.readManifest(id)
	if err != nil {
		return nil, nil, err
	}
	results, err := s.readResults(id)
	if err != nil {
		return nil, nil, err
	}
	return job, results, nil
}

func (s *FileStore) SaveImage(_ context.Context, id uuid.UUID, kind Kind, filename string, data []byte) error {
	if !ValidKind(kind) {
		return fmt.Errorf("%w: unknown image kind %q", ErrNotFound, kind)
	}
	if err := checkFilename(filename); err != nil {
		return err
	}

	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if _, err := s.readManifest(id); err != nil {
		return err
	}

	path := filepath.Join(s.baseDir, id.String(), string(kind), filename)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("%w: writing %s image %s: %v", ErrStorage, kind, filename, err)
	}
	return nil
}

func (s *FileStore) OpenImage(_ context.Context, id uuid.UUID, kind Kind, filename string) (io.ReadCloser, error) {
	if !ValidKind(kind) {
		return nil, fmt.Errorf("%w: unknown image kind %q", ErrNotFound, kind)
	}
	if err := checkFilename(filename); err != nil {
		return nil, err
	}

	l := s.lockFor(id)
	l.RLock()
	defer l.RUnlock()

	if _, err := s.readManifest(id); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.baseDir, id.String(), string(kind), filename))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s image %s", ErrNotFound, kind, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s image %s: %v", ErrStorage, kind, filename, err)
	}
	return f, nil
}

// --- file plumbing ---

func (s *FileStore) readManifest(id uuid.UUID) (*models.Job, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id.String(), manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading manifest: %v", ErrStorage, err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: decoding manifest: %v", ErrStorage, err)
	}
	return &job, nil
}

func (s *FileStore) writeManifest(id uuid.UUID, job *models.Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding manifest: %v", ErrStorage, err)
	}
	path := filepath.Join(s.baseDir, id.String(), manifestFile)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("%w: writing manifest: %v", ErrStorage, err)
	}
	return nil
}

func (s *FileStore) readResults(id uuid.UUID) ([]models.ImageResult, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id.String(), resultsFile))
	if errors.Is(err, os.ErrNotExist) {
		// No results recorded yet.
		return []models.ImageResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading results: %v", ErrStorage, err)
	}

	var results []models.ImageResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("%w: decoding results: %v", ErrStorage, err)
	}
	return results, nil
}

func (s *FileStore) writeResults(id uuid.UUID, results []models.ImageResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding results: %v", ErrStorage, err)
	}
	path := filepath.Join(s.baseDir, id.String(), resultsFile)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("%w: writing results: %v", ErrStorage, err)
	}
	return nil
}

// writeFileAtomic writes to a temp file in the target directory and renames
// it over the destination.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// checkFilename rejects names that would escape the content area. Filenames
// are sanitized upstream at submission time; this is the storage-level guard.
func checkFilename(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: empty filename", ErrNotFound)
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: invalid filename %q", ErrNotFound, name)
	}
	return nil
}

// Compile-time check that FileStore implements Store.
var _ Store = (*FileStore)(nil)
