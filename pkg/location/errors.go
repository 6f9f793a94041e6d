package location

import "fmt"

// Kind classifies why a fetch failed.
type Kind string

const (
	// KindNetwork covers connection errors, timeouts and non-2xx responses.
	KindNetwork Kind = "network"
	// KindDecode covers unreadable, malformed or schema-mismatched bodies.
	KindDecode Kind = "decode"
)

// FetchError is the only error a Provider is expected to return.
type FetchError struct {
	Kind Kind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch error: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func networkError(format string, args ...any) *FetchError {
	return &FetchError{Kind: KindNetwork, Err: fmt.Errorf(format, args...)}
}

func decodeError(format string, args ...any) *FetchError {
	return &FetchError{Kind: KindDecode, Err: fmt.Errorf(format, args...)}
}
