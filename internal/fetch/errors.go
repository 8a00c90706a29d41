package fetch

import (
	"errors"
	"fmt"
)

// TerminalHTTPError is a non-retryable HTTP status (4xx other than 429,
// or an unexpected redirect left over after the client followed the chain).
type TerminalHTTPError struct {
	Status int
}

func (e *TerminalHTTPError) Error() string {
	return fmt.Sprintf("terminal http status %d", e.Status)
}

// TransientHTTPError is a retryable HTTP status (429 or 5xx). It is
// surfaced only when retries are exhausted.
type TransientHTTPError struct {
	Status int
}

func (e *TransientHTTPError) Error() string {
	return fmt.Sprintf("transient http status %d", e.Status)
}

// UnexpectedPayloadError reports a response that parsed as a
// recognizable-but-invalid shape, such as an API error envelope where data
// was expected. Reported per target; never aborts the run.
type UnexpectedPayloadError struct {
	Detail string
}

func (e *UnexpectedPayloadError) Error() string {
	return fmt.Sprintf("unexpected payload: %s", e.Detail)
}

// PersistenceError wraps a failure to write the audit trail (ledger or
// manifest). Unlike per-target errors it is fatal to the run: an
// un-auditable run defeats the purpose of the system.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort the whole run rather than just
// the current target.
func IsFatal(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
