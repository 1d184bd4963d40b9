package analytics

import "context"

// IndexStats is the per-index part of Stats.
type IndexStats struct {
	DocumentCount uint64
}

// Stats are aggregate index statistics of the search server.
type Stats struct {
	DatabaseSize uint64
	Indexes      map[string]IndexStats
}

// StatsProvider supplies aggregate index statistics on demand. A failing
// provider skips the identify of the current tick.
type StatsProvider interface {
	AllStats(ctx context.Context) (Stats, error)
}

// StatsProviderFunc adapts a function to a StatsProvider.
type StatsProviderFunc func(ctx context.Context) (Stats, error)

func (f StatsProviderFunc) AllStats(ctx context.Context) (Stats, error) {
	return f(ctx)
}
