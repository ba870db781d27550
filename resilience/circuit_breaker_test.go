package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/corelattice/aec/core"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerClosedAllowsAndRecords(t *testing.T) {
	cb, err := NewCircuitBreaker(DefaultConfig())
	require.NoError(t, err)

	err = cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)

	success, failure := cb.window.GetCounts()
	require.Equal(t, uint64(1), success)
	require.Equal(t, uint64(0), failure)
}

func TestCircuitBreakerOpensAfterErrorThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = "test-opens"
	cfg.VolumeThreshold = 2
	cfg.ErrorThreshold = 0.5
	cb, err := NewCircuitBreaker(cfg)
	require.NoError(t, err)

	failing := errors.New("boom")
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func() error { return failing })
	}

	require.Equal(t, StateOpen, cb.state.Load().(CircuitState))

	err = cb.Execute(context.Background(), func() error { return nil })
	require.ErrorIs(t, err, core.ErrCircuitBreakerOpen)
}

func TestCircuitBreakerIgnoresConfigurationErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = "test-ignores"
	cfg.VolumeThreshold = 1
	cfg.ErrorThreshold = 0.1
	cb, err := NewCircuitBreaker(cfg)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func() error { return core.ErrInvalidConfiguration })
	}

	require.Equal(t, StateClosed, cb.state.Load().(CircuitState))
}

func TestCircuitBreakerHalfOpenRecoversToClosed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = "test-recovers"
	cfg.VolumeThreshold = 1
	cfg.ErrorThreshold = 0.1
	cfg.SleepWindow = 10 * time.Millisecond
	cfg.HalfOpenRequests = 1
	cfg.SuccessThreshold = 0.5
	cb, err := NewCircuitBreaker(cfg)
	require.NoError(t, err)

	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, StateOpen, cb.state.Load().(CircuitState))

	time.Sleep(20 * time.Millisecond)

	err = cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, StateClosed, cb.state.Load().(CircuitState))
}

func TestCircuitBreakerRecoversPanicAsError(t *testing.T) {
	cb, err := NewCircuitBreaker(DefaultConfig())
	require.NoError(t, err)

	err = cb.Execute(context.Background(), func() error { panic("kaboom") })
	require.Error(t, err)
}

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}
