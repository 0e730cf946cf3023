package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/apply-cli/internal/fingerprint"
	"github.com/sells-group/apply-cli/internal/gateway"
	"github.com/sells-group/apply-cli/internal/model"
	"github.com/sells-group/apply-cli/internal/source"
	"github.com/sells-group/apply-cli/internal/store"
)

// DiscoverResult counts one discovery sweep.
type DiscoverResult struct {
	Fetched  int
	Archived int64
	New      int
	Merged   int
}

// Discoverer pulls listings from the configured boards through the
// upstream gateway and lands them in the store.
type Discoverer struct {
	store   store.Store
	gw      *gateway.Gateway
	sources []source.Source
}

// NewDiscoverer creates a discoverer over the given sources.
func NewDiscoverer(st store.Store, gw *gateway.Gateway, sources []source.Source) *Discoverer {
	return &Discoverer{store: st, gw: gw, sources: sources}
}

// Discover fetches every source concurrently, archives the raw
// payloads, and upserts each listing under its fingerprint. A source
// that fails (circuit open, rate budget exhausted) is logged and
// skipped; the sweep continues with the rest.
func (d *Discoverer) Discover(ctx context.Context, q source.Query) (DiscoverResult, error) {
	var mu sync.Mutex
	var all []model.RawListing

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(len(d.sources))
	for _, src := range d.sources {
		g.Go(func() error {
			listings, err := gateway.CallVal(gCtx, d.gw, src.Name(), "fetch", func(ctx context.Context) ([]model.RawListing, error) {
				return src.Fetch(ctx, q)
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				zap.L().Warn("source fetch failed, discovery continues",
					zap.String("source", src.Name()),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			all = append(all, listings...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DiscoverResult{}, err
	}

	result := DiscoverResult{Fetched: len(all)}
	if len(all) == 0 {
		return result, nil
	}

	archived, err := d.store.ArchiveRaw(ctx, all)
	if err != nil {
		return result, err
	}
	result.Archived = archived

	now := time.Now().UTC()
	for _, listing := range all {
		fp := fingerprint.Identify(listing)
		op := model.FromListing(fp, listing, now)
		merged, err := d.store.UpsertDiscovered(ctx, op, false)
		if err != nil {
			zap.L().Warn("upsert failed",
				zap.String("fingerprint", fp),
				zap.String("source", listing.Source),
				zap.Error(err),
			)
			continue
		}
		if merged {
			result.Merged++
		} else {
			result.New++
		}
	}

	zap.L().Info("discovery sweep complete",
		zap.Int("fetched", result.Fetched),
		zap.Int64("archived", result.Archived),
		zap.Int("new", result.New),
		zap.Int("merged", result.Merged),
	)
	return result, nil
}
