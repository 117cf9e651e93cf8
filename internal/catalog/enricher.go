package catalog

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/memohai/trackcard/internal/linkscan"
)

// Fetcher looks up a single catalog reference.
type Fetcher interface {
	Fetch(ctx context.Context, kind linkscan.Kind, id, market string) (Item, error)
}

// Enricher fetches metadata for a message's references concurrently.
type Enricher struct {
	fetcher Fetcher
	market  string
	logger  *slog.Logger
}

func NewEnricher(log *slog.Logger, fetcher Fetcher, market string) *Enricher {
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{
		fetcher: fetcher,
		market:  market,
		logger:  log.With(slog.String("component", "enricher")),
	}
}

// Enrich returns the items that could be fetched, in the order of refs.
// Failed lookups are logged and left out.
func (e *Enricher) Enrich(ctx context.Context, refs []linkscan.Reference) []Item {
	if len(refs) == 0 {
		return nil
	}
	results := make([]*Item, len(refs))

	// Workers never return an error so one failure cannot cancel the others.
	var g errgroup.Group
	g.SetLimit(linkscan.MaxReferences)
	for i, ref := range refs {
		g.Go(func() error {
			item, err := e.fetcher.Fetch(ctx, ref.Kind, ref.ID, e.market)
			if err != nil {
				e.logger.Debug("catalog fetch dropped",
					slog.String("kind", string(ref.Kind)),
					slog.String("id", ref.ID),
					slog.Any("error", err),
				)
				return nil
			}
			results[i] = &item
			return nil
		})
	}
	_ = g.Wait()

	items := make([]Item, 0, len(refs))
	for _, item := range results {
		if item != nil {
			items = append(items, *item)
		}
	}
	return items
}
