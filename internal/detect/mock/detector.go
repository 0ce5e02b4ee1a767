package mock

import (
	"context"

	"github.com/avolkov/thermalscan/pkg/models"
)

// MockDetector satisfies models.Detector for testing and local development.
type MockDetector struct {
	Name_      string
	DetectFunc func(ctx context.Context, image []byte) ([]models.Detection, error)
}

func (m *MockDetector) Name() string {
	if m.Name_ == "" {
		return "mock"
	}
	return m.Name_
}

func (m *MockDetector) Detect(ctx context.Context, image []byte) ([]models.Detection, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, image)
	}
	return []models.Detection{}, nil
}

// NewDetector returns a MockDetector with a sensible default response:
// one confident person detection per image.
func NewDetector() *MockDetector {
	return &MockDetector{
		Name_: "mock",
		DetectFunc: func(_ context.Context, _ []byte) ([]models.Detection, error) {
			return []models.Detection{
				{
					BBox:       [4]float64{48, 32, 172, 240},
					Confidence: 0.91,
					ClassName:  "person",
				},
			}, nil
		},
	}
}

// NewFailingDetector returns a MockDetector that always returns the given error.
func NewFailingDetector(err error) *MockDetector {
	return &MockDetector{
		Name_: "mock-failing",
		DetectFunc: func(_ context.Context, _ []byte) ([]models.Detection, error) {
			return nil, err
		},
	}
}

// NewTimeoutDetector returns a MockDetector that blocks until the context is
// cancelled, then returns the given error.
func NewTimeoutDetector(err error) *MockDetector {
	return &MockDetector{
		Name_: "mock-timeout",
		DetectFunc: func(ctx context.Context, _ []byte) ([]models.Detection, error) {
			<-ctx.Done()
			return nil, err
		},
	}
}

// Compile-time check that MockDetector implements Detector.
var _ models.Detector = (*MockDetector)(nil)
