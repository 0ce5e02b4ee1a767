package detect

import (
	"fmt"

	"github.com/avolkov/thermalscan/internal/config"
	"github.com/avolkov/thermalscan/internal/detect/mock"
	"github.com/avolkov/thermalscan/pkg/models"
)

// NewDetector constructs the appropriate detection backend based on config.
// Called once at server startup.
func NewDetector(cfg config.DetectorConfig) (models.Detector, error) {
	switch cfg.Provider {
	case "remote":
		return NewRemoteClient(cfg.Remote, cfg.Timeout), nil
	case "mock":
		return mock.NewDetector(), nil
	default:
		return nil, fmt.Errorf("unknown detector provider %q: must be one of remote, mock", cfg.Provider)
	}
}
