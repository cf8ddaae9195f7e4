package ports

import (
	"context"

	"github.com/loomworks/loom/internal/domain"
)

// NodeRunner is the per-kind execution strategy supplied by the caller.
// The engine places no constraint on runner internals; runners may block on
// I/O and must honor ctx cancellation.
type NodeRunner interface {
	Execute(ctx context.Context, node domain.Node, input domain.NodeInput) (domain.NodeResult, error)
}

// RunnerFunc adapts a plain function to NodeRunner.
type RunnerFunc func(ctx context.Context, node domain.Node, input domain.NodeInput) (domain.NodeResult, error)

func (f RunnerFunc) Execute(ctx context.Context, node domain.Node, input domain.NodeInput) (domain.NodeResult, error) {
	return f(ctx, node, input)
}
