package store

import (
	"sync"
)

// Pager tracks the paging cursor for the notification query. The next page is
// derived purely from the server-reported current page vs total pages, and a
// fetch may only begin when no other fetch is in flight and a next page is
// known to exist.
type Pager struct {
	mu         sync.Mutex
	page       int
	totalPages int
	fetching   bool
}

// NewPager creates a pager positioned before the first page.
func NewPager() *Pager {
	return &Pager{}
}

// Begin reserves the next page to fetch. It returns (0, false) when a fetch
// is already in flight or the server reported no further page.
func (p *Pager) Begin() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fetching {
		return 0, false
	}
	if p.page > 0 && p.page >= p.totalPages {
		return 0, false
	}
	p.fetching = true
	return p.page + 1, true
}

// Complete records the server-reported paging metadata after a successful
// fetch and releases the in-flight guard.
func (p *Pager) Complete(page, totalPages int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fetching = false
	p.observe(page, totalPages)
}

// Observe records paging metadata from a refresh that re-fetched already
// loaded pages and so never went through Begin.
func (p *Pager) Observe(page, totalPages int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observe(page, totalPages)
}

// observe requires the caller to hold the lock.
func (p *Pager) observe(page, totalPages int) {
	if page > p.page {
		p.page = page
	}
	p.totalPages = totalPages
}

// Abort releases the in-flight guard without advancing the cursor.
func (p *Pager) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetching = false
}

// Reset rewinds the cursor, e.g. for a fresh subscription.
func (p *Pager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = 0
	p.totalPages = 0
	p.fetching = false
}

// Loaded returns how many pages have been fetched so far.
func (p *Pager) Loaded() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// HasMore reports whether the server has more pages.
func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page == 0 || p.page < p.totalPages
}
