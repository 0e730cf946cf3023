// Package source defines job listing providers and the query they serve.
package source

import (
	"context"

	"github.com/sells-group/apply-cli/internal/model"
)

// Query narrows a fetch to the listings worth pulling.
type Query struct {
	Keywords []string
	Location string
	Limit    int
}

// Source yields raw listings from one job board or feed.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]model.RawListing, error)
}
