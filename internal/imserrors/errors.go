// Package imserrors defines the error kinds from the component design: not
// concrete types per failure site, but a small set of sentinels and two
// parameterized wrappers, matched with errors.Is/errors.As.
package imserrors

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a bounded wait (await_message, reactor
	// run) is exhausted without the awaited event.
	ErrTimeout = errors.New("imsphone: timeout")

	// ErrTransportFailure is returned on socket error or EOF on the SIP
	// channel.
	ErrTransportFailure = errors.New("imsphone: transport failure")

	// ErrParseError is returned for malformed SIP/SDP/RTP wire data.
	ErrParseError = errors.New("imsphone: parse error")

	// ErrBadChallenge is returned when the AKA MAC does not match.
	ErrBadChallenge = errors.New("imsphone: bad AKA challenge (MAC mismatch)")

	// ErrUnsupportedFormat is returned when no common audio format exists.
	ErrUnsupportedFormat = errors.New("imsphone: no common audio format")

	// ErrInvariantViolation marks a programming error; it is never masked.
	ErrInvariantViolation = errors.New("imsphone: invariant violation")
)

// RegistrationFailedError reports a non-100/200/401 REGISTER response.
type RegistrationFailedError struct {
	Status int
	Reason string
}

func (e *RegistrationFailedError) Error() string {
	return fmt.Sprintf("imsphone: registration failed: %d %s", e.Status, e.Reason)
}

// InviteFailedError reports an INVITE response other than 100, 180, 183 or
// 200.
type InviteFailedError struct {
	Status int
	Reason string
}

func (e *InviteFailedError) Error() string {
	return fmt.Sprintf("imsphone: invite failed: %d %s", e.Status, e.Reason)
}
