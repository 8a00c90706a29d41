package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// robotsMaxBytes caps how much of a robots.txt file is read.
const robotsMaxBytes = 1 << 20

// RobotsDecision is the cached per-domain answer plus the per-path test
// for the target that asked.
type RobotsDecision struct {
	Domain      string
	Allowed     bool
	EvaluatedAt time.Time
}

// RobotsGate evaluates and caches robots.txt permission per domain. The
// policy is compliance-first: if robots.txt cannot be retrieved (network
// error, non-2xx, timeout) or parsed, every path on that domain is denied.
// Retrieval happens once per domain per run; there is no retry.
type RobotsGate struct {
	client    *http.Client
	userAgent string
	clock     Clock
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string]*robotsEntry
}

type robotsEntry struct {
	once        sync.Once
	data        *robotstxt.RobotsData // nil means deny everything
	evaluatedAt time.Time
}

// NewRobotsGate builds a gate for the given user agent.
func NewRobotsGate(userAgent string, timeout time.Duration, clock Clock, logger *zap.Logger) *RobotsGate {
	return &RobotsGate{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		clock:     clock,
		logger:    logger,
		cache:     make(map[string]*robotsEntry),
	}
}

// Evaluate answers whether the target's path may be fetched. The first
// call for a domain retrieves robots.txt; later calls for the same domain
// reuse the cached policy without re-fetching, so contention on one domain
// never blocks another.
func (g *RobotsGate) Evaluate(ctx context.Context, target Target) RobotsDecision {
	parsed, err := url.Parse(target.URL)
	if err != nil {
		return RobotsDecision{Domain: target.Domain, Allowed: false, EvaluatedAt: g.clock.Now()}
	}

	g.mu.Lock()
	entry, ok := g.cache[target.Domain]
	if !ok {
		entry = &robotsEntry{}
		g.cache[target.Domain] = entry
	}
	g.mu.Unlock()

	entry.once.Do(func() {
		entry.evaluatedAt = g.clock.Now()
		data, loadErr := g.load(ctx, parsed)
		if loadErr != nil {
			g.logger.Warn("robots fetch failed; denying domain",
				zap.String("domain", target.Domain),
				zap.Error(loadErr))
			return
		}
		entry.data = data
	})

	return RobotsDecision{
		Domain:      target.Domain,
		Allowed:     g.allowedFor(entry.data, parsed),
		EvaluatedAt: entry.evaluatedAt,
	}
}

func (g *RobotsGate) allowedFor(data *robotstxt.RobotsData, u *url.URL) bool {
	if data == nil {
		return false
	}
	group := data.FindGroup(g.userAgent)
	if group == nil {
		return true
	}
	return group.Test(pathForRobots(u))
}

func (g *RobotsGate) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("robots status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}

func pathForRobots(u *url.URL) string {
	p := u.Path
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
