package models

// Detection is one localized person found in an image. Coordinates are in
// source-image pixel space with x1 < x2 and y1 < y2.
type Detection struct {
	BBox       [4]float64 `json:"bbox"` // [x1, y1, x2, y2]
	Confidence float64    `json:"confidence"`
	ClassName  string     `json:"class_name"`
}

// ImageResult is the per-image outcome within a job: either an ordered set of
// detections or a captured error. Written once by the processor, never mutated.
type ImageResult struct {
	Filename   string      `json:"filename"`
	Detections []Detection `json:"detections"`
	Success    bool        `json:"success"`
	Error      *string     `json:"error,omitempty"`
}

// FailedResult builds an ImageResult recording a per-image failure.
func FailedResult(filename, errMsg string) ImageResult {
	return ImageResult{
		Filename:   filename,
		Detections: []Detection{},
		Success:    false,
		Error:      &errMsg,
	}
}
