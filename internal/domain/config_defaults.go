package domain

import (
	"time"
)

func DefaultConfig() *Config {
	return &Config{
		Engine: DefaultEngineConfig(),
		Retry:  DefaultRetryPolicy(),
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxConcurrentNodes:    8,
		NodeExecutionTimeout:  5 * time.Minute,
		FailOnValidationError: true,
		CancelGracePeriod:     30 * time.Second,
	}
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  30 * time.Second,
		Multiplier:  2.0,
	}
}
