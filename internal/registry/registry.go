// Package registry maintains the in-process list of known application names
// the slot extractor matches against. Names come from the business tables
// and are refreshed lazily on a TTL.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Source interface {
	FetchApps(ctx context.Context) ([]string, error)
}

type Registry struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	apps      []string
	fetchedAt time.Time
}

func New(source Source, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Registry{source: source, ttl: ttl, now: time.Now}
}

// Apps returns the current app list, refreshing it when the TTL has passed.
// A failed refresh falls back to the previously fetched list when one
// exists, so a transient source outage does not break extraction.
func (r *Registry) Apps(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	if r.apps != nil && r.now().Sub(r.fetchedAt) < r.ttl {
		apps := r.apps
		r.mu.RUnlock()
		return apps, nil
	}
	r.mu.RUnlock()

	fetched, err := r.source.FetchApps(ctx)
	if err != nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.apps != nil {
			return r.apps, nil
		}
		return nil, fmt.Errorf("fetch known apps: %w", err)
	}

	r.mu.Lock()
	r.apps = fetched
	r.fetchedAt = r.now()
	r.mu.Unlock()
	return fetched, nil
}
