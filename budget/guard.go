package budget

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/corelattice/aec/core"
	"github.com/corelattice/aec/kv"
	"github.com/corelattice/aec/resilience"
)

const snapshotCacheKey = "budget:ledger"

// ledgerCacheTTL is deliberately long, not zero: kv.Cache.Set treats a
// zero ttl as "use the cache's default TTL" (an hour, per kv's own
// default), which would silently expire the ledger out of cache an hour
// after the last spend and contradict spec.md §6's "durable across
// process restarts". The on-disk snapshot has no such expiry, but the
// cache mirror needs its own explicit long-lived TTL to match.
const ledgerCacheTTL = 10 * 365 * 24 * time.Hour

// Config seeds the initial ledger limits.
type Config struct {
	GlobalLimit  float64
	PerProvider  map[string]float64
	SnapshotPath string
}

// preferenceTable maps a task kind to providers in preference order;
// Recommend filters this by remaining budget.
var preferenceTable = map[string][]string{
	"chat":   {"anthropic", "openai", "local"},
	"code":   {"anthropic", "openai"},
	"vision": {"openai", "anthropic"},
	"reason": {"anthropic", "openai"},
	"route":  {"local", "anthropic"},
	"custom": {"local", "anthropic", "openai"},
}

// Guard is the Budget Guard (BG): a single lock around check+record
// ensures no over-admission under concurrent checks, per spec.md §5.
type Guard struct {
	mu       sync.Mutex
	ledger   Ledger
	cache    kv.Cache
	logger   core.ComponentAwareLogger
	snapshot string

	breakersMu sync.Mutex
	breakers   map[string]*resilience.CircuitBreaker
}

// NewGuard constructs a Guard. cache may be nil to disable the durable
// kv.Cache mirror (the on-disk snapshot, if configured, still applies).
func NewGuard(cfg Config, cache kv.Cache, logger core.ComponentAwareLogger) *Guard {
	if logger == nil {
		logger = core.NewProductionLogger(core.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "aec").(core.ComponentAwareLogger)
	}

	perProvider := make(map[string]*ProviderLedger, len(cfg.PerProvider))
	for provider, limit := range cfg.PerProvider {
		perProvider[provider] = &ProviderLedger{Limit: limit}
	}

	return &Guard{
		ledger: Ledger{
			GlobalLimit: cfg.GlobalLimit,
			PerProvider: perProvider,
			ResetAt:     nextMonthBoundary(time.Now()),
		},
		cache:    cache,
		logger:   logger.WithComponent("framework/budget").(core.ComponentAwareLogger),
		snapshot: cfg.SnapshotPath,
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

// Restore loads a previously persisted ledger, preferring the kv.Cache
// mirror and falling back to the on-disk snapshot file.
func (g *Guard) Restore(ctx context.Context) error {
	var doc *document

	if g.cache != nil {
		if v, err := g.cache.Get(ctx, snapshotCacheKey); err == nil {
			if d, ok := decodeDocument(v); ok {
				doc = d
			}
		}
	}

	if doc == nil && g.snapshot != "" {
		data, err := os.ReadFile(g.snapshot)
		if err == nil {
			var d document
			if jsonErr := json.Unmarshal(data, &d); jsonErr == nil {
				doc = &d
			}
		}
	}

	if doc == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.ledger.GlobalLimit = doc.GlobalLimit
	g.ledger.GlobalUsed = doc.TotalCost
	g.ledger.ResetAt = doc.ResetAt
	for provider, pl := range doc.ServiceBreakdown {
		g.ledger.PerProvider[provider] = pl
	}

	return nil
}

// BreakerFor returns (creating if necessary) the circuit breaker guarding
// calls to provider's fallback endpoint.
func (g *Guard) BreakerFor(provider string) *resilience.CircuitBreaker {
	g.breakersMu.Lock()
	defer g.breakersMu.Unlock()

	cb, ok := g.breakers[provider]
	if !ok {
		cfg := resilience.DefaultConfig()
		cfg.Name = "budget-" + provider
		cb, _ = resilience.NewCircuitBreaker(cfg)
		g.breakers[provider] = cb
	}
	return cb
}

// Check reports whether estimatedCost would fit within both the global
// and per-provider caps, without committing it. Denies with
// budget_exceeded if either cap would be crossed.
func (g *Guard) Check(ctx context.Context, provider string, estimatedCost float64) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeResetLocked()

	providerLedger := g.providerLocked(provider)

	globalRemaining := g.ledger.GlobalLimit - g.ledger.GlobalUsed
	providerRemaining := providerLedger.Limit - providerLedger.Used

	if g.ledger.GlobalUsed+estimatedCost > g.ledger.GlobalLimit {
		return Decision{Admitted: false, GlobalRemaining: globalRemaining, ProviderRemaining: providerRemaining, Reason: "budget_exceeded"}, nil
	}
	if providerLedger.Limit > 0 && providerLedger.Used+estimatedCost > providerLedger.Limit {
		return Decision{Admitted: false, GlobalRemaining: globalRemaining, ProviderRemaining: providerRemaining, Reason: "budget_exceeded"}, nil
	}

	return Decision{Admitted: true, GlobalRemaining: globalRemaining - estimatedCost, ProviderRemaining: providerRemaining - estimatedCost}, nil
}

// Record commits actualCost to provider's and the global ledger, then
// flushes to durable storage. Must be preceded by an admitted Check in
// the caller's workflow, but does not itself re-verify admission (the
// caller already made that decision; spec.md's invariant is about the
// combination of the two, not Record alone).
func (g *Guard) Record(ctx context.Context, provider string, actualCost float64, tokensIn, tokensOut int64) error {
	g.mu.Lock()
	g.maybeResetLocked()

	pl := g.providerLocked(provider)
	pl.Used += actualCost
	pl.Requests++
	pl.TokensIn += tokensIn
	pl.TokensOut += tokensOut
	g.ledger.GlobalUsed += actualCost
	providerUsed := pl.Used

	snapshot := g.snapshotLocked()
	g.mu.Unlock()

	if reg := core.GetGlobalMetricsRegistry(); reg != nil {
		reg.Gauge("aec.budget.global_used", snapshot.GlobalUsed)
		reg.Gauge("aec.budget.provider_used", providerUsed, "provider", provider)
	}

	return g.persist(ctx, snapshot)
}

// Status returns a copy of the ledger.
func (g *Guard) Status() Ledger {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

// Recommend suggests a provider for taskKind, preferring the preference
// table order filtered by remaining budget, falling back to the provider
// with the largest remaining balance.
func (g *Guard) Recommend(taskKind string, estimatedCost float64) Recommendation {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeResetLocked()

	prefs := preferenceTable[taskKind]
	for _, provider := range prefs {
		pl, ok := g.ledger.PerProvider[provider]
		if !ok {
			continue
		}
		if pl.Limit == 0 || pl.Used+estimatedCost <= pl.Limit {
			return Recommendation{Recommended: provider, Reason: "preferred for " + taskKind, Alternatives: remaining(prefs, provider)}
		}
	}

	var best string
	var bestRemaining float64 = -1
	for provider, pl := range g.ledger.PerProvider {
		remain := pl.Limit - pl.Used
		if remain > bestRemaining {
			bestRemaining = remain
			best = provider
		}
	}

	if best == "" {
		return Recommendation{Reason: "no providers configured"}
	}
	return Recommendation{Recommended: best, Reason: "largest remaining balance", Alternatives: remaining(prefs, best)}
}

func remaining(all []string, chosen string) []string {
	out := make([]string, 0, len(all))
	for _, p := range all {
		if p != chosen {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (g *Guard) providerLocked(provider string) *ProviderLedger {
	pl, ok := g.ledger.PerProvider[provider]
	if !ok {
		pl = &ProviderLedger{}
		g.ledger.PerProvider[provider] = pl
	}
	return pl
}

// maybeResetLocked zeroes the ledger if the current time has crossed
// ResetAt, per spec.md §4.5's monthly reset rule. Caller must hold g.mu.
func (g *Guard) maybeResetLocked() {
	now := time.Now()
	if now.Before(g.ledger.ResetAt) {
		return
	}

	g.ledger.GlobalUsed = 0
	for _, pl := range g.ledger.PerProvider {
		pl.Used = 0
		pl.Requests = 0
		pl.TokensIn = 0
		pl.TokensOut = 0
	}
	g.ledger.ResetAt = nextMonthBoundary(now)
}

func (g *Guard) snapshotLocked() Ledger {
	cp := Ledger{
		GlobalLimit: g.ledger.GlobalLimit,
		GlobalUsed:  g.ledger.GlobalUsed,
		ResetAt:     g.ledger.ResetAt,
		PerProvider: make(map[string]*ProviderLedger, len(g.ledger.PerProvider)),
	}
	for k, v := range g.ledger.PerProvider {
		copied := *v
		cp.PerProvider[k] = &copied
	}
	return cp
}

func (g *Guard) persist(ctx context.Context, snapshot Ledger) error {
	doc := document{
		GlobalLimit:      snapshot.GlobalLimit,
		TotalCost:        snapshot.GlobalUsed,
		ServiceBreakdown: snapshot.PerProvider,
		ResetAt:          snapshot.ResetAt,
		LastUpdate:       time.Now(),
	}

	if g.cache != nil {
		err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
			return g.cache.Set(ctx, snapshotCacheKey, doc, ledgerCacheTTL)
		})
		if err != nil {
			g.logger.Warn("failed to persist ledger to cache after retries", map[string]interface{}{"error": err.Error()})
		}
	}

	if g.snapshot != "" {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("budget: marshal snapshot: %w", err)
		}
		if err := os.WriteFile(g.snapshot, data, 0o600); err != nil {
			return fmt.Errorf("budget: write snapshot: %w", err)
		}
	}

	return nil
}

func nextMonthBoundary(t time.Time) time.Time {
	year, month, _ := t.Date()
	return time.Date(year, month+1, 1, 0, 0, 0, 0, t.Location())
}

func decodeDocument(v interface{}) (*document, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var d document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, false
	}
	return &d, true
}
