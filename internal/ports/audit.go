package ports

import (
	"context"

	"github.com/loomworks/loom/internal/domain"
)

// AuditGateway is implemented by an external collaborator that scores a
// terminal run. The engine forwards the verdict without interpreting it.
type AuditGateway interface {
	Evaluate(ctx context.Context, report *domain.RunReport) (domain.Verdict, error)
}
