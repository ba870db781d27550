package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordSuccessKeepsHealthy(t *testing.T) {
	s := NewSupervisor(Config{}, nil, nil)
	s.RegisterAgent("a")
	s.RecordSuccess("a", 100)
	require.Equal(t, StatusHealthy, s.Status("a"))
}

func TestCriticalThenHealSucceeds(t *testing.T) {
	s := NewSupervisor(Config{AlertThreshold: 3}, nil, nil)
	s.RegisterAgent("a")
	s.SetHealer(func(ctx context.Context, agentID string) error { return nil })

	ctx := context.Background()
	s.RecordFailure(ctx, "a", "internal")
	require.Equal(t, StatusHealthy, s.Status("a"))
	s.RecordFailure(ctx, "a", "internal")
	require.Equal(t, StatusDegraded, s.Status("a"))
	s.RecordFailure(ctx, "a", "internal")
	require.Equal(t, StatusHealthy, s.Status("a"))

	report := s.Report()
	m := report.Agents["a"]
	require.Equal(t, 0, m.ConsecutiveFailures)
}

func TestCriticalHealFails(t *testing.T) {
	s := NewSupervisor(Config{AlertThreshold: 3}, nil, nil)
	s.RegisterAgent("a")
	s.SetHealer(func(ctx context.Context, agentID string) error { return errors.New("boom") })

	ctx := context.Background()
	s.RecordFailure(ctx, "a", "internal")
	s.RecordFailure(ctx, "a", "internal")
	s.RecordFailure(ctx, "a", "internal")

	require.Equal(t, StatusFailed, s.Status("a"))
}

func TestErrorHistoryBounded(t *testing.T) {
	s := NewSupervisor(Config{AlertThreshold: 100}, nil, nil)
	s.RegisterAgent("a")
	s.SetHealer(func(ctx context.Context, agentID string) error { return nil })
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		s.RecordFailure(ctx, "a", "internal")
	}
	report := s.Report()
	require.LessOrEqual(t, len(report.Agents["a"].ErrorHistory), errorHistoryCap)
}
