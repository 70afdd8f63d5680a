package interfaces

import (
	"context"

	"merlin/internal/types"
)

// InsightProvider turns a finished analysis into commentary. It never decides.
type InsightProvider interface {
	Name() string
	Generate(ctx context.Context, bundle types.ResultBundle) (types.Insight, error)
}
