// Package models contains shared data models used across the thermalscan codebase.
package models

import "context"

// Detector is the core interface every detection backend must implement.
// Never call a specific backend directly — always inject this interface.
type Detector interface {
	// Detect runs person detection over one encoded image and returns
	// detections in the order the backend produced them.
	Detect(ctx context.Context, image []byte) ([]Detection, error)
	// Name returns the backend identifier (e.g., "remote", "mock").
	Name() string
}
