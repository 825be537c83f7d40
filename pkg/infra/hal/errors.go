package hal

var (
	ErrProbeUnavailable = NewProbeError("probe tool unavailable")
	ErrCommandFailed    = NewProbeError("command failed")
	ErrNotSupported     = NewProbeError("operation not supported on this platform")
)

// ProbeError wraps a failure from a single host probe. Probe failures are
// never fatal to profiling; they degrade the affected field to its default.
type ProbeError struct {
	Message string
	Cause   error
}

func NewProbeError(message string) *ProbeError {
	return &ProbeError{Message: message}
}

func (e *ProbeError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ProbeError) Unwrap() error {
	return e.Cause
}

func (e *ProbeError) WithCause(cause error) *ProbeError {
	return &ProbeError{Message: e.Message, Cause: cause}
}
