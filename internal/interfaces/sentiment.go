package interfaces

import (
	"context"
	"time"

	"merlin/internal/types"
)

type SentimentSource interface {
	Name() string
	FetchDocuments(ctx context.Context, since, until time.Time) ([]types.Document, error)
}
