package editsession

import "errors"

// ErrorKind classifies save failures for retry and display decisions.
type ErrorKind int

const (
	// KindNetwork is a transport-level failure; the request may never
	// have reached the server.
	KindNetwork ErrorKind = iota
	// KindAuthExpired means the credentials were rejected as expired.
	// Triggers the one-shot reauthenticate-and-retry path.
	KindAuthExpired
	// KindServerRejected is a definitive 4xx/5xx rejection. No
	// automatic retry.
	KindServerRejected
	// KindValidation is a pre-flight local failure; nothing was sent.
	KindValidation
)

// ErrTitleRequired is returned when a save is aborted because the
// title is empty after trimming. It never reaches the network.
var ErrTitleRequired = errors.New("title is required")

// SaveError carries the failure kind alongside a user-facing message.
type SaveError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SaveError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "save failed"
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind from err. Errors that do not carry a
// kind are treated as network failures, the least assuming class.
func KindOf(err error) ErrorKind {
	var se *SaveError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, ErrTitleRequired) {
		return KindValidation
	}
	return KindNetwork
}
