package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckAdmitsWithinLimits(t *testing.T) {
	g := NewGuard(Config{GlobalLimit: 100, PerProvider: map[string]float64{"anthropic": 50}}, nil, nil)
	ctx := context.Background()

	d, err := g.Check(ctx, "anthropic", 10)
	require.NoError(t, err)
	require.True(t, d.Admitted)
}

func TestCheckDeniesOverGlobalLimit(t *testing.T) {
	g := NewGuard(Config{GlobalLimit: 5, PerProvider: map[string]float64{"anthropic": 50}}, nil, nil)
	ctx := context.Background()

	d, err := g.Check(ctx, "anthropic", 10)
	require.NoError(t, err)
	require.False(t, d.Admitted)
	require.Equal(t, "budget_exceeded", d.Reason)
}

func TestRecordKeepsGlobalAndProviderInSync(t *testing.T) {
	g := NewGuard(Config{GlobalLimit: 100, PerProvider: map[string]float64{"anthropic": 100, "openai": 100}}, nil, nil)
	ctx := context.Background()

	require.NoError(t, g.Record(ctx, "anthropic", 10, 100, 50))
	require.NoError(t, g.Record(ctx, "openai", 5, 10, 5))

	status := g.Status()
	var sum float64
	for _, pl := range status.PerProvider {
		sum += pl.Used
	}
	require.InDelta(t, status.GlobalUsed, sum, 1e-9)
	require.InDelta(t, 15.0, status.GlobalUsed, 1e-9)
}

func TestDeniedCheckDoesNotMutateLedger(t *testing.T) {
	g := NewGuard(Config{GlobalLimit: 5, PerProvider: map[string]float64{"anthropic": 50}}, nil, nil)
	ctx := context.Background()

	before := g.Status()
	_, err := g.Check(ctx, "anthropic", 10)
	require.NoError(t, err)
	after := g.Status()

	require.Equal(t, before.GlobalUsed, after.GlobalUsed)
}

func TestMonthlyResetZeroesLedger(t *testing.T) {
	g := NewGuard(Config{GlobalLimit: 100, PerProvider: map[string]float64{"anthropic": 100}}, nil, nil)
	ctx := context.Background()

	require.NoError(t, g.Record(ctx, "anthropic", 10, 0, 0))
	g.mu.Lock()
	g.ledger.ResetAt = time.Now().Add(-time.Hour)
	g.mu.Unlock()

	d, err := g.Check(ctx, "anthropic", 1)
	require.NoError(t, err)
	require.True(t, d.Admitted)

	status := g.Status()
	require.Equal(t, 0.0, status.GlobalUsed)
	require.True(t, status.ResetAt.After(time.Now()))
}
