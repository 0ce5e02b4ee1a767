package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/avolkov/thermalscan/internal/api/response"
	"github.com/avolkov/thermalscan/internal/jobs"
)

// jobAccepted is the body returned when a batch is admitted. Clients poll the
// status endpoint with the job id.
type jobAccepted struct {
	JobID       string  `json:"job_id"`
	Status      string  `json:"status"`
	TotalImages int     `json:"total_images"`
	Confidence  float64 `json:"confidence_threshold"`
}

// multipartMemoryLimit caps how much of a parsed batch stays in RAM; larger
// parts spill to temp files. The total request size is enforced separately
// by MaxBytesReader.
const multipartMemoryLimit = 32 << 20

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// The request is multipart/form-data: one or more "files" parts (images or
// zip archives) and an optional "confidence_threshold" field.
func NewCreateJobHandler(svc JobService, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Request must be multipart/form-data within the upload limit", nil)
			return
		}
		defer r.MultipartForm.RemoveAll()

		parts := r.MultipartForm.File["files"]
		if len(parts) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"At least one file is required in the 'files' field", nil)
			return
		}

		files := make([]jobs.ImageFile, 0, len(parts))
		for _, part := range parts {
			f, err := part.Open()
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"Could not read uploaded file "+part.Filename, nil)
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"Could not read uploaded file "+part.Filename, nil)
				return
			}
			files = append(files, jobs.ImageFile{Filename: part.Filename, Data: data})
		}

		var confidence *float64
		if raw := r.FormValue("confidence_threshold"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"confidence_threshold must be a number", nil)
				return
			}
			confidence = &v
		}

		job, err := svc.Submit(r.Context(), files, confidence)
		if err != nil {
			if jobs.ValidationError(err) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			slog.Error("job submission failed", "error", err)
			writeStoreError(w, err)
			return
		}

		response.Accepted(w, jobAccepted{
			JobID:       job.ID.String(),
			Status:      job.Status,
			TotalImages: job.TotalImages,
			Confidence:  job.Parameters.ConfidenceThreshold,
		})
	}
}
