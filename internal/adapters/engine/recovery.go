package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/ports"
)

// recoverableRunner wraps runner invocation with panic isolation and the
// configured retry budget. A panic is converted to a PanicError and counts
// as a failed attempt like any other runner error.
type recoverableRunner struct {
	logger *slog.Logger
	retry  domain.RetryPolicy
}

func newRecoverableRunner(retry domain.RetryPolicy, logger *slog.Logger) *recoverableRunner {
	return &recoverableRunner{
		logger: logger.With("component", "recoverable-runner"),
		retry:  retry,
	}
}

type attemptOutcome struct {
	result   domain.NodeResult
	attempts int
	err      error
}

// execute runs the node's runner up to 1+MaxRetries times with the
// configured backoff between attempts. Backoff sleeps are context-aware so
// cancellation is not delayed by a waiting retry.
func (r *recoverableRunner) execute(ctx context.Context, runner ports.NodeRunner, node domain.Node, input domain.NodeInput, timeout time.Duration) attemptOutcome {
	var lastErr error

	for attempt := 1; attempt <= r.retry.MaxRetries+1; attempt++ {
		result, err := r.runOnce(ctx, runner, node, input, timeout)
		if err == nil {
			return attemptOutcome{result: result, attempts: attempt}
		}
		lastErr = &domain.NodeExecutionError{
			RunID:   input.RunID,
			NodeID:  node.ID,
			Attempt: attempt,
			Err:     err,
		}

		if ctx.Err() != nil {
			return attemptOutcome{attempts: attempt, err: lastErr}
		}

		if attempt <= r.retry.MaxRetries {
			backoff := r.retry.BackoffFor(attempt)
			r.logger.Debug("node attempt failed, backing off",
				"run_id", input.RunID,
				"node_id", node.ID,
				"attempt", attempt,
				"backoff", backoff,
				"error", err.Error(),
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return attemptOutcome{attempts: attempt, err: lastErr}
			}
		}
	}

	return attemptOutcome{attempts: r.retry.MaxRetries + 1, err: lastErr}
}

func (r *recoverableRunner) runOnce(ctx context.Context, runner ports.NodeRunner, node domain.Node, input domain.NodeInput, timeout time.Duration) (result domain.NodeResult, err error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			panicErr := domain.NewPanicError(input.RunID, node.ID, rec)
			r.logger.Error("node runner panicked",
				"run_id", input.RunID,
				"node_id", node.ID,
				"panic_value", rec,
				"stack_trace", panicErr.StackTrace,
			)
			result = domain.NodeResult{}
			err = panicErr
		}
	}()

	return runner.Execute(runCtx, node, input)
}
