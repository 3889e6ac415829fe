package chat

import "errors"

// ErrBusy is returned when a submission is attempted while another is
// still in flight. The pending submission is unaffected; the caller may
// retry once it settles.
var ErrBusy = errors.New("a submission is already in flight")

// ErrEmptyContent is returned when the trimmed message body is empty.
var ErrEmptyContent = errors.New("message content is empty")

// AuthorizationError reports a local precondition failure (acting on a
// message the viewer does not own) or a server-rejected authorization.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "not authorized: " + e.Reason
}
