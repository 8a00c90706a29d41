package fetch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fetchwright/fetchwright/internal/metrics"
)

// RobotsPolicy answers whether a target may be fetched at all.
type RobotsPolicy interface {
	Evaluate(ctx context.Context, target Target) RobotsDecision
}

// Transport performs one logical fetch including retries.
type Transport interface {
	Fetch(ctx context.Context, target Target) Outcome
}

// DedupStore suppresses re-emission of previously seen fingerprints.
// MarkIfNew must be atomic: under concurrency a fingerprint is reported
// new to exactly one caller.
type DedupStore interface {
	MarkIfNew(fingerprint string) (bool, error)
}

// ManifestRecorder accumulates outcomes into the run manifest.
type ManifestRecorder interface {
	Record(o Outcome)
}

// Orchestrator composes the gate, limiter, transport, dedup store and
// manifest into "fetch this list of targets for this source". A single
// target failure never aborts the run; only a persistence failure in the
// audit trail does.
type Orchestrator struct {
	robots    RobotsPolicy
	limiter   DomainLimiter
	transport Transport
	dedup     DedupStore
	manifest  ManifestRecorder
	hasher    Hasher
	workers   int
	logger    *zap.Logger

	mu       sync.Mutex
	fatalErr error
}

// NewOrchestrator wires the core components. workers <= 0 means serial.
func NewOrchestrator(
	robots RobotsPolicy,
	limiter DomainLimiter,
	transport Transport,
	dedup DedupStore,
	manifest ManifestRecorder,
	hasher Hasher,
	workers int,
	logger *zap.Logger,
) *Orchestrator {
	if workers <= 0 {
		workers = 1
	}
	return &Orchestrator{
		robots:    robots,
		limiter:   limiter,
		transport: transport,
		dedup:     dedup,
		manifest:  manifest,
		hasher:    hasher,
		workers:   workers,
		logger:    logger,
	}
}

// Run fetches the source's targets, issuing them in the given order, and
// streams one outcome per target. The channel closes when every submitted
// target has an outcome; canceled or fatally aborted targets still get a
// Skipped outcome so manifest counts always add up to the batch size.
// Callers check Err after draining the stream.
func (o *Orchestrator) Run(ctx context.Context, src Source) <-chan Outcome {
	out := make(chan Outcome)

	go func() {
		defer close(out)

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		targets := make(chan Target)
		go func() {
			defer close(targets)
			for _, t := range src.Targets {
				targets <- t
			}
		}()

		var wg sync.WaitGroup
		for i := 0; i < o.workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for target := range targets {
					oc := o.process(runCtx, src, target)
					if IsFatal(oc.Err) {
						o.setFatal(oc.Err)
						cancel()
					}
					o.manifest.Record(oc)
					metrics.IncOutcome(src.Tag, string(oc.Status), oc.SkipReason)
					out <- oc
				}
			}()
		}
		wg.Wait()
	}()

	return out
}

// Err returns the first fatal error observed, if any. Valid once the
// outcome stream has been drained.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fatalErr
}

func (o *Orchestrator) setFatal(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fatalErr == nil {
		o.fatalErr = err
	}
}

func (o *Orchestrator) fatal() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fatalErr != nil
}

func (o *Orchestrator) process(ctx context.Context, src Source, target Target) Outcome {
	if ctx.Err() != nil || o.fatal() {
		return Outcome{Target: target, Status: StatusSkipped, SkipReason: SkipReasonCanceled}
	}

	decision := o.robots.Evaluate(ctx, target)
	if !decision.Allowed {
		o.logger.Warn("robots disallow",
			zap.String("source", src.Tag),
			zap.String("domain", target.Domain),
			zap.String("url", target.URL))
		return Outcome{Target: target, Status: StatusSkipped, SkipReason: SkipReasonRobots}
	}

	// The one and only politeness suspension point.
	if err := o.limiter.Acquire(ctx, target.Domain); err != nil {
		return Outcome{Target: target, Status: StatusSkipped, SkipReason: SkipReasonCanceled}
	}

	oc := o.transport.Fetch(ctx, target)
	if oc.Status != StatusSuccess {
		if oc.Err != nil && !IsFatal(oc.Err) {
			o.logger.Warn("fetch failed",
				zap.String("source", src.Tag),
				zap.String("url", target.URL),
				zap.Int("attempts", len(oc.Attempts)),
				zap.Error(oc.Err))
		}
		return oc
	}

	if src.Validate != nil {
		if verr := src.Validate(target, oc.HTTPStatus, oc.Body); verr != nil {
			o.logger.Warn("payload rejected",
				zap.String("source", src.Tag),
				zap.String("url", target.URL),
				zap.Error(verr))
			oc.Status = StatusFailed
			oc.Err = verr
			oc.Body = nil
			return oc
		}
	}

	if src.Dedup {
		newItem, err := o.markFingerprint(target)
		if err != nil {
			// Dedup is an optimization, not audit state; a store hiccup
			// must not lose the payload.
			o.logger.Warn("dedup mark failed; passing item through",
				zap.String("url", target.URL), zap.Error(err))
		} else if !newItem {
			oc.Status = StatusSkipped
			oc.SkipReason = SkipReasonDuplicate
			oc.Body = nil
			return oc
		}
	}

	return oc
}

func (o *Orchestrator) markFingerprint(target Target) (bool, error) {
	canon, err := CanonicalURL(target.URL)
	if err != nil {
		return false, err
	}
	fp, err := o.hasher.Hash([]byte(canon))
	if err != nil {
		return false, err
	}
	return o.dedup.MarkIfNew(fp)
}
