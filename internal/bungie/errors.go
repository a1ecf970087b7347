package bungie

import (
	"errors"
	"fmt"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrNotFound is returned when a lookup succeeds upstream but yields no data,
// such as an unknown player name or an empty profile.
var ErrNotFound = errors.New("not found")

// errSuccess is the Bungie ErrorCode for a successful call.
const errSuccess = 1

// errDestinyAccountNotFound is returned for a membership that no longer
// exists, e.g. after a cross-save change.
const errDestinyAccountNotFound = 1601

// ///////////////////////////////////////////////
// Typed Errors
// ///////////////////////////////////////////////

// APIError is a non-success response from the Bungie API.
type APIError struct {
	// Op names the call that failed, e.g. "search player".
	Op string
	// HTTPStatus is the HTTP status code of the response.
	HTTPStatus int
	// Code and Status are Bungie's ErrorCode and ErrorStatus fields.
	Code    int
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.HTTPStatus)
	}
	return fmt.Sprintf("%s: %s (code %d): %s", e.Op, e.Status, e.Code, e.Message)
}

// DecodeError reports a definition hash that could not be resolved through
// the manifest.
type DecodeError struct {
	// Entity is the manifest definition type, e.g. "DestinyActivityDefinition".
	Entity string
	Hash   uint32
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s %d: %v", e.Entity, e.Hash, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
