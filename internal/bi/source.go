package bi

import (
	"context"

	"github.com/imobcrm/crm-backend/pkg/db/models"
)

// Source reads client records with their full timelines preloaded. It may
// over-select: every aggregation re-applies the predicates in memory.
type Source interface {
	FindClients(ctx context.Context, q ClientQuery) ([]models.Client, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, q ClientQuery) ([]models.Client, error)

func (f SourceFunc) FindClients(ctx context.Context, q ClientQuery) ([]models.Client, error) {
	return f(ctx, q)
}
