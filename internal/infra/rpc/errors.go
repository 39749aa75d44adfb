package rpc

import "errors"

// Probe failure kinds. Every kind ends up as an offline verdict; the kind only
// explains why.
var (
	// ErrTransport means the host could not be reached at all.
	ErrTransport = errors.New("transport failure")
	// ErrTimeout means a single method attempt ran out of time.
	ErrTimeout = errors.New("timeout")
	// ErrProtocol covers non-2xx statuses, malformed bodies and unexpected RPC errors.
	ErrProtocol = errors.New("protocol error")
	// ErrExhausted means every candidate method was tried without a decisive answer.
	ErrExhausted = errors.New("no supported methods")
)

// ProbeError describes why a probe or a single attempt failed.
type ProbeError struct {
	Kind   error
	Method string
	Detail string
	Err    error
}

func (e *ProbeError) Error() string {
	return e.Detail
}

// Is matches the failure kind, so errors.Is(err, ErrTransport) works.
func (e *ProbeError) Is(target error) bool {
	return target == e.Kind
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}
