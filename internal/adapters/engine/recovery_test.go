package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/ports"
)

func testRetryRunner(policy domain.RetryPolicy) *recoverableRunner {
	return newRecoverableRunner(policy, slog.Default())
}

func TestExecute_AttemptTimeout(t *testing.T) {
	r := testRetryRunner(domain.RetryPolicy{MaxRetries: 0, BaseBackoff: time.Millisecond, Multiplier: 2.0})

	runner := ports.RunnerFunc(func(ctx context.Context, n domain.Node, input domain.NodeInput) (domain.NodeResult, error) {
		select {
		case <-ctx.Done():
			return domain.NodeResult{}, ctx.Err()
		case <-time.After(10 * time.Second):
			return domain.NodeResult{}, nil
		}
	})

	out := r.execute(context.Background(), runner, domain.Node{ID: "slow"}, domain.NodeInput{RunID: "r", NodeID: "slow"}, 20*time.Millisecond)

	require.Error(t, out.err)
	assert.ErrorIs(t, out.err, context.DeadlineExceeded)
	assert.Equal(t, 1, out.attempts)
}

func TestExecute_CancellationStopsRetries(t *testing.T) {
	r := testRetryRunner(domain.RetryPolicy{MaxRetries: 5, BaseBackoff: time.Hour, Multiplier: 2.0})

	ctx, cancel := context.WithCancel(context.Background())
	runner := ports.RunnerFunc(func(context.Context, domain.Node, domain.NodeInput) (domain.NodeResult, error) {
		cancel()
		return domain.NodeResult{}, errors.New("transient")
	})

	start := time.Now()
	out := r.execute(ctx, runner, domain.Node{ID: "flaky"}, domain.NodeInput{RunID: "r", NodeID: "flaky"}, 0)

	// the hour-long backoff must not be waited out once the context is gone
	assert.Less(t, time.Since(start), time.Second)
	require.Error(t, out.err)
	assert.Equal(t, 1, out.attempts)
}

func TestExecute_PanicBecomesError(t *testing.T) {
	r := testRetryRunner(domain.RetryPolicy{MaxRetries: 0, BaseBackoff: time.Millisecond, Multiplier: 2.0})

	runner := ports.RunnerFunc(func(context.Context, domain.Node, domain.NodeInput) (domain.NodeResult, error) {
		panic("index out of range")
	})

	out := r.execute(context.Background(), runner, domain.Node{ID: "broken"}, domain.NodeInput{RunID: "r", NodeID: "broken"}, 0)

	require.Error(t, out.err)
	assert.True(t, domain.IsPanicError(out.err))

	var execErr *domain.NodeExecutionError
	require.ErrorAs(t, out.err, &execErr)
	assert.Equal(t, "broken", execErr.NodeID)
}
