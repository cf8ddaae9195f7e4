package domain

import (
	"fmt"
	"log/slog"
	"time"
)

type Config struct {
	DataDir string       `json:"data_dir" yaml:"data_dir"`
	Logger  *slog.Logger `json:"-" yaml:"-"`

	Engine EngineConfig `json:"engine" yaml:"engine"`
	Retry  RetryPolicy  `json:"retry" yaml:"retry"`
}

type EngineConfig struct {
	// MaxConcurrentNodes throttles how many parallel-eligible nodes may run
	// at once; 0 means unbounded.
	MaxConcurrentNodes   int           `json:"max_concurrent_nodes" yaml:"max_concurrent_nodes"`
	NodeExecutionTimeout time.Duration `json:"node_execution_timeout" yaml:"node_execution_timeout"`

	// FailOnValidationError makes a validation node failure propagate Skipped
	// downstream like a phase failure; false records the failure but marks
	// the node Completed so the graph proceeds.
	FailOnValidationError bool `json:"fail_on_validation_error" yaml:"fail_on_validation_error"`

	// CancelGracePeriod bounds how long in-flight runners may keep running
	// after a cancellation request before being abandoned as Failed.
	CancelGracePeriod time.Duration `json:"cancel_grace_period" yaml:"cancel_grace_period"`
}

// RetryPolicy configures the node retry budget and the backoff curve. The
// curve shape is deliberately configuration, not a constant.
type RetryPolicy struct {
	MaxRetries  int           `json:"max_retries" yaml:"max_retries"`
	BaseBackoff time.Duration `json:"base_backoff" yaml:"base_backoff"`
	MaxBackoff  time.Duration `json:"max_backoff" yaml:"max_backoff"`
	Multiplier  float64       `json:"multiplier" yaml:"multiplier"`
}

// BackoffFor returns the delay before the given retry attempt (1-based).
func (p RetryPolicy) BackoffFor(attempt int) time.Duration {
	backoff := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		return p.MaxBackoff
	}
	return backoff
}

func (c *Config) Validate() error {
	if c.Engine.MaxConcurrentNodes < 0 {
		return fmt.Errorf("%w: max_concurrent_nodes must be >= 0", ErrInvalidConfig)
	}
	if c.Engine.NodeExecutionTimeout < 0 {
		return fmt.Errorf("%w: node_execution_timeout must be >= 0", ErrInvalidConfig)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", ErrInvalidConfig)
	}
	if c.Retry.BaseBackoff < 0 {
		return fmt.Errorf("%w: base_backoff must be >= 0", ErrInvalidConfig)
	}
	if c.Retry.Multiplier < 1.0 {
		return fmt.Errorf("%w: multiplier must be >= 1.0", ErrInvalidConfig)
	}
	return nil
}
