package loom

import (
	"log/slog"
	"time"

	"github.com/loomworks/loom/internal/domain"
)

type Config = domain.Config

type EngineConfig = domain.EngineConfig

type RetryPolicy = domain.RetryPolicy

func DefaultConfig() *Config {
	return domain.DefaultConfig()
}

func DefaultEngineConfig() EngineConfig {
	return domain.DefaultEngineConfig()
}

func DefaultRetryPolicy() RetryPolicy {
	return domain.DefaultRetryPolicy()
}

// ConfigBuilder assembles a Config fluently, starting from defaults.
type ConfigBuilder struct {
	config *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: DefaultConfig()}
}

// WithDataDir points checkpoints at a durable badger store; empty keeps
// run state in memory only.
func (b *ConfigBuilder) WithDataDir(dir string) *ConfigBuilder {
	b.config.DataDir = dir
	return b
}

func (b *ConfigBuilder) WithLogger(logger *slog.Logger) *ConfigBuilder {
	b.config.Logger = logger
	return b
}

func (b *ConfigBuilder) WithMaxConcurrentNodes(n int) *ConfigBuilder {
	b.config.Engine.MaxConcurrentNodes = n
	return b
}

func (b *ConfigBuilder) WithNodeExecutionTimeout(d time.Duration) *ConfigBuilder {
	b.config.Engine.NodeExecutionTimeout = d
	return b
}

// WithFailOnValidationError controls whether a validation node failure
// propagates like a phase failure (true) or is recorded as a warning while
// the graph proceeds (false).
func (b *ConfigBuilder) WithFailOnValidationError(fail bool) *ConfigBuilder {
	b.config.Engine.FailOnValidationError = fail
	return b
}

func (b *ConfigBuilder) WithCancelGracePeriod(d time.Duration) *ConfigBuilder {
	b.config.Engine.CancelGracePeriod = d
	return b
}

func (b *ConfigBuilder) WithRetryPolicy(policy RetryPolicy) *ConfigBuilder {
	b.config.Retry = policy
	return b
}

func (b *ConfigBuilder) Build() (*Config, error) {
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	return b.config, nil
}
