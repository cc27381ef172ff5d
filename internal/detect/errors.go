package detect

import (
	"errors"
	"fmt"
)

// Detection errors.
var (
	// ErrDetection wraps every failure of a backend call. It is fatal to the
	// calling workflow.
	ErrDetection = errors.New("entity detection failed")

	// ErrUnsupported is matched by every *UnsupportedError.
	ErrUnsupported = errors.New("detection model is not implemented")

	// ErrUnknownModel is returned by ParseModel for a name that is not a
	// Model at all.
	ErrUnknownModel = errors.New("unknown detection model")

	// ErrInvalidThreshold is returned when the confidence threshold is
	// outside [0, 1].
	ErrInvalidThreshold = errors.New("invalid threshold: must be within [0, 1]")

	// ErrUnsupportedLanguage is returned for a language the backend cannot
	// process.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrAWSConfig is returned when the AWS configuration cannot be loaded.
	ErrAWSConfig = errors.New("invalid AWS configuration")

	// ErrCredentials is returned when Cognito credentials cannot be obtained.
	ErrCredentials = errors.New("failed to obtain AWS credentials")
)

// UnsupportedError reports a Model that has no registered Handler.
type UnsupportedError struct {
	Model Model
}

// Error implements error.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s model is not implemented", e.Model)
}

// Is makes errors.Is(err, ErrUnsupported) true for any UnsupportedError.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}
