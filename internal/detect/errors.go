package detect

import "errors"

var (
	ErrDetectorUnavailable = errors.New("detector unavailable")
	ErrInferenceTimeout    = errors.New("detector inference timeout")
	ErrInvalidImage        = errors.New("detector rejected image")
	ErrInvalidResponse     = errors.New("detector returned invalid response")
)
