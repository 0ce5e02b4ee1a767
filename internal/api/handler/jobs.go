// Package handler contains the HTTP handlers for the thermalscan API.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/avolkov/thermalscan/internal/api/response"
	"github.com/avolkov/thermalscan/internal/jobs"
	"github.com/avolkov/thermalscan/internal/store"
	"github.com/avolkov/thermalscan/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// JobService defines the interface the handlers depend on.
type JobService interface {
	Submit(ctx context.Context, files []jobs.ImageFile, confidence *float64) (*models.Job, error)
	Status(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Results(ctx context.Context, id uuid.UUID) (*models.Job, []models.ImageResult, error)
	OpenImage(ctx context.Context, id uuid.UUID, kind store.Kind, filename string) (io.ReadCloser, error)
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewJobStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}

		job, err := svc.Status(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		response.JSON(w, job)
	}
}

// resultsMetadata aggregates over the recorded results, mirroring what
// operators read off the job directory.
type resultsMetadata struct {
	TotalDetections      int    `json:"total_detections"`
	ImagesWithDetections int    `json:"images_with_detections"`
	Status               string `json:"status"`
}

type resultsResponse struct {
	Job      *models.Job          `json:"job"`
	Images   []models.ImageResult `json:"images"`
	Metadata resultsMetadata      `json:"metadata"`
}

// NewJobResultsHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/results.
// In-flight jobs return the subset of results recorded so far.
func NewJobResultsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}

		job, results, err := svc.Results(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		meta := resultsMetadata{Status: job.Status}
		for _, res := range results {
			meta.TotalDetections += len(res.Detections)
			if len(res.Detections) > 0 {
				meta.ImagesWithDetections++
			}
		}

		response.JSON(w, resultsResponse{Job: job, Images: results, Metadata: meta})
	}
}

// NewJobImageHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/images/{kind}/{filename}.
func NewJobImageHandler(svc JobService, mimeType func(string) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}
		kind := store.Kind(chi.URLParam(r, "kind"))
		filename := chi.URLParam(r, "filename")

		rc, err := svc.OpenImage(r.Context(), id, kind, filename)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", mimeType(filename))
		w.Header().Set("Content-Disposition", `inline; filename="`+filename+`"`)
		io.Copy(w, rc)
	}
}

// jobID extracts and parses the jobID URL parameter. A malformed id cannot
// name any job, so it reads as not found.
func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
	case errors.Is(err, store.ErrStorage):
		response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR",
			"Job storage is unavailable", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
