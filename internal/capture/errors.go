package capture

import (
	"errors"
	"fmt"
)

type Kind int

const (
	LaunchFailed Kind = iota + 1
	NavigationFailed
	CaptureFailed
)

func (k Kind) String() string {
	switch k {
	case LaunchFailed:
		return "launch_failed"
	case NavigationFailed:
		return "navigation_failed"
	case CaptureFailed:
		return "capture_failed"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind carried by err, or 0 when err is not a capture error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, url string, err error) *Error {
	return &Error{Kind: kind, URL: url, Err: err}
}
