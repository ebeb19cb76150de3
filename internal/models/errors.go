package models

import "errors"

var (
	// ErrNetworkFailure means a fetch or channel operation could not complete.
	ErrNetworkFailure = errors.New("network failure")
	// ErrProtocolFailure means the backend answered with a non-success
	// envelope or a payload that could not be decoded.
	ErrProtocolFailure = errors.New("protocol failure")
	// ErrInvalidRecord means a ride record has no identity.
	ErrInvalidRecord = errors.New("invalid record")
)
