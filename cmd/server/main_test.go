package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/thermalscan/internal/cache"
	"github.com/avolkov/thermalscan/internal/store"
	"github.com/avolkov/thermalscan/pkg/models"
)

// ─── mock store ──────────────────────────────────────────────────────────────

type testStore struct {
	pingErr error
}

func (s *testStore) Ping(_ context.Context) error { return s.pingErr }
func (s *testStore) Create(_ context.Context, _ int, _ models.JobParams) (*models.Job, error) {
	return nil, store.ErrStorage
}
func (s *testStore) MarkProcessing(_ context.Context, _ uuid.UUID) error { return nil }
func (s *testStore) RecordImageResult(_ context.Context, _ uuid.UUID, _ models.ImageResult) error {
	return nil
}
func (s *testStore) MarkTerminal(_ context.Context, _ uuid.UUID, _ string, _ ...store.TerminalOption) error {
	return nil
}
func (s *testStore) GetStatus(_ context.Context, _ uuid.UUID) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) GetResults(_ context.Context, _ uuid.UUID) (*models.Job, []models.ImageResult, error) {
	return nil, nil, store.ErrNotFound
}
func (s *testStore) SaveImage(_ context.Context, _ uuid.UUID, _ store.Kind, _ string, _ []byte) error {
	return nil
}
func (s *testStore) OpenImage(_ context.Context, _ uuid.UUID, _ store.Kind, _ string) (io.ReadCloser, error) {
	return nil, store.ErrNotFound
}

var _ store.Store = (*testStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type testCache struct {
	pingErr error
}

func (c *testCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *testCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *testCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *testCache) Ping(_ context.Context) error                                     { return c.pingErr }
func (c *testCache) SetJob(_ context.Context, _ *models.Job, _ time.Duration) error {
	return nil
}
func (c *testCache) GetJob(_ context.Context, _ uuid.UUID) (*models.Job, bool, error) {
	return nil, false, nil
}
func (c *testCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*testCache)(nil)

// ─── mock detector readiness ────────────────────────────────────────────────

type testReadiness struct {
	err error
}

func (d *testReadiness) Ready(_ context.Context) error { return d.err }

// ─── health handler tests ───────────────────────────────────────────────────

func TestHealthHandler_AllOK(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{}, &testReadiness{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["storage"])
	assert.Equal(t, "ok", services["cache"])
	assert.Equal(t, "ok", services["detector"])
}

func TestHealthHandler_StorageDegraded(t *testing.T) {
	h := healthHandler(&testStore{pingErr: errors.New("disk full")}, &testCache{}, &testReadiness{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
}

func TestHealthHandler_CacheDegraded(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{pingErr: errors.New("redis down")}, &testReadiness{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthHandler_DetectorDegraded(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{},
		&testReadiness{err: errors.New("inference service unreachable")})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// A detector without a Ready method (the mock provider) is never degraded.
func TestHealthHandler_DetectorWithoutReadiness(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{}, struct{}{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ─── run() config validation tests ──────────────────────────────────────────

func TestRun_FailsOnMissingConfig(t *testing.T) {
	for _, key := range []string{
		"STORAGE_DIR", "DETECTOR_PROVIDER", "DETECTOR_BASE_URL", "REDIS_URL",
	} {
		t.Setenv(key, "")
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidRedisURL(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("DETECTOR_PROVIDER", "mock")
	t.Setenv("REDIS_URL", "not-a-redis-url")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

// ─── shutdown timeout constant test ─────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
