// Package viewmodel holds client-side state containers that drive list,
// dashboard and editor screens from the API client. Each container is an
// explicit object owned by its caller.
package viewmodel

import (
	"context"
	"errors"
	"sync"

	"patient-records-server/internal/client"
	"patient-records-server/internal/pagination"
)

// ErrLoadInProgress is returned when LoadNext is called while a previous
// call has not finished.
var ErrLoadInProgress = errors.New("page load already in progress")

// PageFetcher loads one 1-based page.
type PageFetcher[T any] func(ctx context.Context, page, limit int) (client.Page[T], error)

// Pager accumulates successive pages into one ordered list. Items already
// loaded are never refetched or reordered.
type Pager[T any] struct {
	fetch PageFetcher[T]
	limit int

	mu         sync.Mutex
	items      []T
	loaded     int
	totalPages int
	started    bool
	loading    bool
}

// NewPager returns an empty pager. A non-positive limit uses the server
// default page size.
func NewPager[T any](fetch PageFetcher[T], limit int) *Pager[T] {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	return &Pager[T]{fetch: fetch, limit: limit}
}

// HasMore reports whether LoadNext would fetch another page. It is true
// before the first load.
func (p *Pager[T]) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore()
}

func (p *Pager[T]) hasMore() bool {
	return !p.started || p.loaded < p.totalPages
}

// Loading reports whether a LoadNext call is outstanding.
func (p *Pager[T]) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Items returns a copy of everything loaded so far.
func (p *Pager[T]) Items() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]T, len(p.items))
	copy(out, p.items)
	return out
}

// LoadNext fetches the page after the last loaded one and appends its items.
// It is a no-op once the last page is loaded. On error nothing changes and
// the same page is requested by the next call.
func (p *Pager[T]) LoadNext(ctx context.Context) error {
	p.mu.Lock()
	if p.loading {
		p.mu.Unlock()
		return ErrLoadInProgress
	}
	if !p.hasMore() {
		p.mu.Unlock()
		return nil
	}
	p.loading = true
	next := p.loaded + 1
	p.mu.Unlock()

	page, err := p.fetch(ctx, next, p.limit)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false
	if err != nil {
		return err
	}

	p.items = append(p.items, page.Items...)
	p.loaded = next
	p.totalPages = page.TotalPages
	p.started = true
	return nil
}

// LoadAll keeps calling LoadNext until no page remains.
func (p *Pager[T]) LoadAll(ctx context.Context) error {
	for p.HasMore() {
		if err := p.LoadNext(ctx); err != nil {
			return err
		}
	}
	return nil
}
