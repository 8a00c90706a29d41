// Package dedup persists the set of content fingerprints that suppresses
// re-emission of previously seen items across runs.
package dedup

// Store is a persisted fingerprint set. Mark is idempotent and the
// Seen-then-Mark sequence in MarkIfNew is atomic per fingerprint, so under
// concurrency a fingerprint is reported new to exactly one caller.
type Store interface {
	Seen(fingerprint string) (bool, error)
	Mark(fingerprint string) error
	// MarkIfNew marks the fingerprint and reports whether it was unseen.
	MarkIfNew(fingerprint string) (bool, error)
	Close() error
}
