package media

import (
	"context"
	"log/slog"

	"threads/internal/cache"
	"threads/internal/middleware"
	"threads/internal/observability"
)

// Sweeper deletes stored objects that no row references anymore. Failures
// are logged and counted. Nothing is retried.
type Sweeper struct {
	storage ObjectStorage
	cache   *cache.Cache
}

// NewSweeper builds a sweeper. With nil storage Sweep does nothing.
func NewSweeper(storage ObjectStorage, c *cache.Cache) *Sweeper {
	return &Sweeper{storage: storage, cache: c}
}

// Sweep removes every storage id among refs. Absolute URLs and empty
// strings are skipped. It returns how many objects were removed.
func (s *Sweeper) Sweep(ctx context.Context, refs []string) int {
	if s == nil || s.storage == nil {
		return 0
	}
	seen := make(map[string]struct{}, len(refs))
	removed := 0
	for _, ref := range refs {
		if ref == "" || IsAbsoluteURL(ref) {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}

		if err := s.storage.Remove(ctx, ref); err != nil {
			observability.MediaRemoveFailures.Inc()
			middleware.Logger.WarnContext(ctx, "stored media not removed",
				slog.String("storage_id", ref), slog.String("error", err.Error()))
			continue
		}
		s.cache.Invalidate(ctx, cache.MediaURLKey(ref))
		removed++
	}
	return removed
}
