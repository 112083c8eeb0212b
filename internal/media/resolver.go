package media

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"threads/internal/cache"
	"threads/internal/middleware"
	"threads/internal/observability"

	"golang.org/x/sync/errgroup"
)

const resolveConcurrency = 8

// Resolver exchanges media references for retrievable URLs. A reference is
// either an absolute URL, returned as is, or an opaque storage id.
type Resolver struct {
	storage ObjectStorage
	cache   *cache.Cache
	expiry  time.Duration
}

// NewResolver builds a resolver. storage and c may be nil; without storage
// every storage id resolves to absent.
func NewResolver(storage ObjectStorage, c *cache.Cache, expiry time.Duration) *Resolver {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Resolver{storage: storage, cache: c, expiry: expiry}
}

// IsAbsoluteURL reports whether ref carries both a scheme and a host.
func IsAbsoluteURL(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Resolve returns the URL for ref and whether one exists.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	if IsAbsoluteURL(ref) {
		return ref, true
	}
	if r == nil || r.storage == nil {
		observability.MediaResolveFailures.WithLabelValues("no_storage").Inc()
		return "", false
	}

	var resolved string
	err := r.cache.Aside(ctx, cache.MediaURLKey(ref), &resolved, cache.MediaURLTTL(r.expiry), func() error {
		u, err := r.storage.PresignedURL(ctx, ref, r.expiry)
		if err != nil {
			return err
		}
		resolved = u
		return nil
	})
	if err != nil {
		reason := "storage_error"
		if errors.Is(err, ErrObjectNotFound) {
			reason = "not_found"
		}
		observability.MediaResolveFailures.WithLabelValues(reason).Inc()
		middleware.Logger.WarnContext(ctx, "media reference unresolved",
			slog.String("ref", ref),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return "", false
	}
	return resolved, true
}

// ResolveAll resolves refs concurrently and keeps only the successes, in
// input order. One failing reference never affects the others.
func (r *Resolver) ResolveAll(ctx context.Context, refs []string) []string {
	if len(refs) == 0 {
		return []string{}
	}

	type result struct {
		url string
		ok  bool
	}
	results := make([]result, len(refs))

	var g errgroup.Group
	g.SetLimit(resolveConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			u, ok := r.Resolve(ctx, ref)
			results[i] = result{url: u, ok: ok}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(refs))
	for _, res := range results {
		if res.ok {
			out = append(out, res.url)
		}
	}
	return out
}
