package rpc

import (
	"errors"
	"fmt"
)

// NetworkError wraps a transport-level failure. For state-changing calls the
// true remote outcome is unknown when one of these surfaces, so callers must
// abort rather than retry.
type NetworkError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("rpc: %s against %s failed: %v (remote outcome unknown)", e.Method, e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RemoteError is an explicit error response from a service. The remote state
// is known: the call was rejected.
type RemoteError struct {
	Service string `json:"-"`
	Method  string `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: %s rejected %s: %s (code %d)", e.Service, e.Method, e.Message, e.Code)
}

// IsNetwork reports whether err carries an unknown remote outcome.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsRemoteReject reports whether err is an explicit service rejection.
func IsRemoteReject(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
