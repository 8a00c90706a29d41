// Package fetch implements the fetch orchestration core: robots gating,
// per-domain politeness, a retrying transport with an explicit retry table,
// and the orchestrator that composes them into a single audited run.
package fetch

import (
	"context"
	"time"
)

// Target is one logical fetch intent. It is immutable once constructed;
// physical retry attempts are tracked separately in Attempt records.
type Target struct {
	Domain   string            `json:"domain"`
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Attempt records one physical network call for a target, including
// retries. Attempts are append-only audit records and never mutated.
type Attempt struct {
	Target        Target        `json:"-"`
	Number        int           `json:"number"`
	StartedAt     time.Time     `json:"started_at"`
	Elapsed       time.Duration `json:"elapsed"`
	Status        int           `json:"status,omitempty"`
	Err           string        `json:"error,omitempty"`
	RobotsAllowed bool          `json:"robots_allowed"`
}

// OutcomeStatus is the final disposition of a target.
type OutcomeStatus string

// Final dispositions recorded in the manifest.
const (
	StatusSuccess OutcomeStatus = "success"
	StatusSkipped OutcomeStatus = "skipped"
	StatusFailed  OutcomeStatus = "failed"
)

// Skip reasons the orchestrator assigns.
const (
	SkipReasonRobots    = "robots disallow"
	SkipReasonDuplicate = "duplicate"
	SkipReasonCanceled  = "run canceled"
)

// Outcome is produced exactly once per Target. On success Body holds the
// raw response payload for downstream parsers; on a duplicate skip the
// payload is dropped so it is never re-emitted.
type Outcome struct {
	Target      Target
	Status      OutcomeStatus
	HTTPStatus  int
	Body        []byte
	ContentType string
	SkipReason  string
	Err         error
	Attempts    []Attempt
}

// Source describes one ordered batch of targets sharing a tag and policy.
type Source struct {
	Tag     string
	Targets []Target
	// Dedup enables fingerprint suppression for this source. The key is
	// the canonicalized target URL, a stable identity that does not vary
	// between fetches of the same item.
	Dedup bool
	// Validate, when set, inspects a successful response body. A non-nil
	// error converts the outcome to Failed without aborting the run.
	Validate func(t Target, status int, body []byte) error
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// Hasher computes digests for dedup fingerprints.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// AttemptSink receives every physical attempt before control returns to
// the caller. Implementations must make the record durable or fail.
type AttemptSink interface {
	Append(a Attempt) error
}

// DomainLimiter blocks until the caller may issue a request to domain.
type DomainLimiter interface {
	Acquire(ctx context.Context, domain string) error
}
