package store

import (
	"sort"
	"sync"
	"time"

	"github.com/feedpulse/feedpulse/internal/feed/domain/model"
	"github.com/feedpulse/feedpulse/internal/platform/logger"
)

// RefreshFunc is invoked asynchronously after a live push is ingested so the
// authoritative server state eventually reconciles too.
type RefreshFunc func()

// Merger owns the authoritative in-memory notification collection for one
// subscription. It reconciles three sources — paginated fetches, infinite
// fetches and live pushes — into one de-duplicated collection kept in
// descending createdAt order. The collection is exposed only as snapshots;
// id is the sole de-duplication key.
type Merger struct {
	mu      sync.RWMutex
	items   []model.Notification
	refresh RefreshFunc
	log     logger.Logger
}

// Option configures a Merger.
type Option func(*Merger)

// WithRefresh sets the query-refresh trigger fired after a push is ingested.
func WithRefresh(fn RefreshFunc) Option {
	return func(m *Merger) {
		m.refresh = fn
	}
}

// WithLogger sets the merger logger.
func WithLogger(log logger.Logger) Option {
	return func(m *Merger) {
		m.log = log
	}
}

// NewMerger creates an empty merger.
func NewMerger(opts ...Option) *Merger {
	m := &Merger{
		log: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IngestPushed adds a live-pushed notification. A notification whose id is
// already held is a no-op: a fetch-refresh racing a push must not produce a
// duplicate. New items are prepended, a push being definitionally the newest.
// Returns whether the item was inserted.
func (m *Merger) IngestPushed(n model.Notification) bool {
	m.mu.Lock()
	if m.indexOf(n.ID) >= 0 {
		m.mu.Unlock()
		m.log.Debug("duplicate push skipped", "id", n.ID)
		return false
	}
	m.items = append([]model.Notification{n}, m.items...)
	m.mu.Unlock()

	if m.refresh != nil {
		go m.refresh()
	}
	return true
}

// Reconcile merges the flattened fetched pages into the collection. Existing
// entries are seeded first and fetched entries applied on top, so a fetched
// record supersedes a stale local one; the merged set is then re-sorted by
// createdAt descending. State is only swapped when the merged set actually
// differs, to avoid redundant churn. Returns whether the collection changed.
func (m *Merger) Reconcile(fetched []model.Notification) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := make(map[string]model.Notification, len(m.items)+len(fetched))
	order := make([]string, 0, len(m.items)+len(fetched))

	for _, n := range m.items {
		merged[n.ID] = n
		order = append(order, n.ID)
	}
	for _, n := range fetched {
		if _, seen := merged[n.ID]; !seen {
			order = append(order, n.ID)
		}
		merged[n.ID] = n
	}

	next := make([]model.Notification, 0, len(order))
	for _, id := range order {
		next = append(next, merged[id])
	}
	sort.SliceStable(next, func(i, j int) bool {
		if next[i].CreatedAt.Equal(next[j].CreatedAt) {
			return next[i].ID > next[j].ID
		}
		return next[i].CreatedAt.After(next[j].CreatedAt)
	})

	if equalCollections(m.items, next) {
		return false
	}

	m.items = next
	return true
}

// Items returns an immutable snapshot of the collection.
func (m *Merger) Items() []model.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make([]model.Notification, len(m.items))
	copy(snapshot, m.items)
	return snapshot
}

// Get returns the notification with the given id.
func (m *Merger) Get(id string) (model.Notification, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.indexOf(id); i >= 0 {
		return m.items[i], true
	}
	return model.Notification{}, false
}

// Len returns the collection size.
func (m *Merger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// UnreadCount is always derived from the collection, never stored, so it can
// never drift from the displayed list.
func (m *Merger) UnreadCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, n := range m.items {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// ApplyRead marks the given ids read with the given timestamp. Intended to be
// called only after the remote mutation succeeded. Returns how many entries
// actually changed.
func (m *Merger) ApplyRead(ids []string, at time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := 0
	for _, id := range ids {
		if i := m.indexOf(id); i >= 0 && !m.items[i].IsRead {
			m.items[i].MarkRead(at)
			changed++
		}
	}
	return changed
}

// ApplyReadAll marks every held notification read.
func (m *Merger) ApplyReadAll(at time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := 0
	for i := range m.items {
		if !m.items[i].IsRead {
			m.items[i].MarkRead(at)
			changed++
		}
	}
	return changed
}

// Remove drops the notification with the given id.
func (m *Merger) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return false
	}
	m.items = append(m.items[:i], m.items[i+1:]...)
	return true
}

// PruneExpired drops entries past their expiresAt. Returns how many were
// removed.
func (m *Merger) PruneExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.items[:0]
	pruned := 0
	for _, n := range m.items {
		if n.IsExpired(now) {
			pruned++
			continue
		}
		kept = append(kept, n)
	}
	m.items = kept
	return pruned
}

// indexOf requires the caller to hold the lock.
func (m *Merger) indexOf(id string) int {
	for i, n := range m.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// equalCollections compares by id sequence and read state. An O(n) walk per
// fetch, which is fine at notification-feed scale.
func equalCollections(a, b []model.Notification) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].IsRead != b[i].IsRead {
			return false
		}
		if !a[i].ModifiedAt.Equal(b[i].ModifiedAt) {
			return false
		}
	}
	return true
}
