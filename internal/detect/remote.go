package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/avolkov/thermalscan/internal/config"
	"github.com/avolkov/thermalscan/pkg/models"
)

// RemoteClient implements models.Detector against an HTTP inference sidecar.
// The sidecar owns the model weights and device selection; this client only
// ships bytes and maps failures onto the detect sentinel errors.
type RemoteClient struct {
	baseURL string
	client  *http.Client
}

// NewRemoteClient creates a detector client for the given sidecar base URL.
func NewRemoteClient(cfg config.RemoteConfig, timeout time.Duration) *RemoteClient {
	return &RemoteClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *RemoteClient) Name() string { return "remote" }

// Detect sends one encoded image to the sidecar and returns its detections
// in the order the sidecar produced them.
func (c *RemoteClient) Detect(ctx context.Context, image []byte) ([]models.Detection, error) {
	u := fmt.Sprintf("%s/v1/detect", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: status %d", ErrInvalidImage, resp.StatusCode)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: status %d", ErrDetectorUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}

	var detectResp detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&detectResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	dets := make([]models.Detection, 0, len(detectResp.Detections))
	for _, d := range detectResp.Detections {
		if len(d.BBox) != 4 {
			return nil, fmt.Errorf("%w: bbox has %d coordinates", ErrInvalidResponse, len(d.BBox))
		}
		dets = append(dets, models.Detection{
			BBox:       [4]float64{d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3]},
			Confidence: d.Confidence,
			ClassName:  d.ClassName,
		})
	}
	return dets, nil
}

// Ready probes the sidecar health endpoint. Used by the server health check.
func (c *RemoteClient) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/v1/health", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: sidecar not ready (status %d)", ErrDetectorUnavailable, resp.StatusCode)
	}

	return nil
}

// classifyError maps transport-level errors to sentinel errors. A cancel
// initiated by the caller is neither a timeout nor a detector fault, so it
// passes through unclassified.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("detect canceled: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
}

// --- sidecar wire types ---

type detectResponse struct {
	Detections []wireDetection `json:"detections"`
}

type wireDetection struct {
	BBox       []float64 `json:"bbox"`
	Confidence float64   `json:"confidence"`
	ClassName  string    `json:"class_name"`
}

// Compile-time check that RemoteClient implements Detector.
var _ models.Detector = (*RemoteClient)(nil)
