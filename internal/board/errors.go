package board

import "errors"

// ErrRemoteUnavailable marks transient platform failures: timeouts,
// connection resets, 5xx responses. Callers may retry.
var ErrRemoteUnavailable = errors.New("board unavailable")

// ErrRemoteRejected marks terminal refusals: validation failures, permission
// errors, 4xx responses. Retrying cannot help; the reason is surfaced
// verbatim.
var ErrRemoteRejected = errors.New("board rejected request")

// ErrNotFound is returned when the referenced entity does not exist on the
// platform. It is terminal.
var ErrNotFound = errors.New("not found")

// Retryable reports whether the error is worth retrying.
func Retryable(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable)
}
