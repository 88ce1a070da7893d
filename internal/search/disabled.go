package search

import (
	"context"

	"github.com/ocrcheck/pipeline/internal/models"
)

// Disabled is the no-op indexer used when no search endpoint is configured.
type Disabled struct{}

func (Disabled) Index(context.Context, *models.Document) error { return nil }
func (Disabled) Delete(context.Context, string) error          { return nil }
