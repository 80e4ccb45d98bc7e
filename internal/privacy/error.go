package privacy

// SanitizedError wraps an error with a message safe for logging. Unwrap
// returns the original so errors.Is and errors.As keep working.
type SanitizedError struct {
	original     error
	sanitizedMsg string
}

func (e *SanitizedError) Error() string { return e.sanitizedMsg }
func (e *SanitizedError) Unwrap() error { return e.original }

// WrapError scrubs stream URLs from err's message. Returns nil for nil.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &SanitizedError{
		original:     err,
		sanitizedMsg: ScrubMessage(err.Error()),
	}
}
