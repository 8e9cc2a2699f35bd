package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedpulse/feedpulse/internal/feed/domain/model"
)

func notif(id string, createdAt time.Time, read bool) model.Notification {
	return model.Notification{
		ID:        id,
		Title:     "title " + id,
		IsRead:    read,
		CreatedAt: createdAt,
	}
}

var baseTime = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func TestIngestPushedPrepends(t *testing.T) {
	m := NewMerger()

	require.True(t, m.IngestPushed(notif("a", baseTime, false)))
	require.True(t, m.IngestPushed(notif("b", baseTime.Add(time.Minute), false)))

	items := m.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].ID, "newest push goes to the front")
	assert.Equal(t, "a", items[1].ID)
}

func TestIngestPushedDeduplicates(t *testing.T) {
	m := NewMerger()

	require.True(t, m.IngestPushed(notif("a", baseTime, false)))
	assert.False(t, m.IngestPushed(notif("a", baseTime, true)), "same id is a no-op")

	items := m.Items()
	require.Len(t, items, 1)
	assert.False(t, items[0].IsRead, "original entry untouched")
}

func TestIngestPushedTriggersRefresh(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	done := make(chan struct{}, 2)

	m := NewMerger(WithRefresh(func() {
		mu.Lock()
		calls++
		mu.Unlock()
		done <- struct{}{}
	}))

	m.IngestPushed(notif("a", baseTime, false))
	<-done

	// Duplicate push must not refresh
	m.IngestPushed(notif("a", baseTime, false))

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestReconcileDedupFetchedWins(t *testing.T) {
	m := NewMerger()

	// Push n1 unread, then a fetched page carries n1 read: exactly one n1
	// survives with the fetched value.
	m.IngestPushed(notif("n1", baseTime, false))

	fetched := notif("n1", baseTime, true)
	changed := m.Reconcile([]model.Notification{fetched})
	assert.True(t, changed)

	items := m.Items()
	require.Len(t, items, 1)
	assert.True(t, items[0].IsRead, "most-recently-applied value wins")
}

func TestReconcileOrdering(t *testing.T) {
	m := NewMerger()
	m.IngestPushed(notif("mid", baseTime.Add(30*time.Minute), false))

	fetched := []model.Notification{
		notif("old", baseTime, false),
		notif("new", baseTime.Add(time.Hour), false),
	}
	m.Reconcile(fetched)

	items := m.Items()
	require.Len(t, items, 3)
	for i := 0; i < len(items)-1; i++ {
		assert.False(t, items[i].CreatedAt.Before(items[i+1].CreatedAt),
			"items[%d] must not be older than items[%d]", i, i+1)
	}
	assert.Equal(t, "new", items[0].ID)
	assert.Equal(t, "mid", items[1].ID)
	assert.Equal(t, "old", items[2].ID)
}

func TestReconcileSkipsWhenUnchanged(t *testing.T) {
	m := NewMerger()
	a := notif("a", baseTime.Add(time.Minute), false)
	b := notif("b", baseTime, true)

	require.True(t, m.Reconcile([]model.Notification{a, b}))
	assert.False(t, m.Reconcile([]model.Notification{a, b}), "identical content causes no churn")
	assert.False(t, m.Reconcile([]model.Notification{b, a}), "order of fetched input is irrelevant")
}

func TestReconcileConvergentEitherOrder(t *testing.T) {
	a := notif("a", baseTime.Add(time.Minute), false)
	b := notif("b", baseTime, false)

	pushFirst := NewMerger()
	pushFirst.IngestPushed(a)
	pushFirst.Reconcile([]model.Notification{a, b})

	fetchFirst := NewMerger()
	fetchFirst.Reconcile([]model.Notification{a, b})
	fetchFirst.IngestPushed(a)

	assert.Equal(t, pushFirst.Items(), fetchFirst.Items(), "id-keyed merge is order-convergent")
}

func TestUnreadCountAlwaysDerived(t *testing.T) {
	m := NewMerger()
	m.Reconcile([]model.Notification{
		notif("a", baseTime.Add(2*time.Minute), false),
		notif("b", baseTime.Add(time.Minute), true),
		notif("c", baseTime, false),
	})

	assert.Equal(t, 2, m.UnreadCount())

	m.ApplyRead([]string{"a"}, baseTime.Add(time.Hour))
	assert.Equal(t, 1, m.UnreadCount())

	m.Remove("c")
	assert.Equal(t, 0, m.UnreadCount())

	// Always equal to a manual filter over the snapshot
	manual := 0
	for _, n := range m.Items() {
		if !n.IsRead {
			manual++
		}
	}
	assert.Equal(t, manual, m.UnreadCount())
}

func TestApplyRead(t *testing.T) {
	m := NewMerger()
	m.Reconcile([]model.Notification{
		notif("a", baseTime, false),
		notif("b", baseTime.Add(time.Minute), false),
	})

	at := baseTime.Add(time.Hour)
	changed := m.ApplyRead([]string{"a", "missing"}, at)
	assert.Equal(t, 1, changed)

	n, ok := m.Get("a")
	require.True(t, ok)
	assert.True(t, n.IsRead)
	require.NotNil(t, n.ReadAt)
	assert.Equal(t, at, *n.ReadAt)

	// One-directional: re-applying does nothing
	assert.Equal(t, 0, m.ApplyRead([]string{"a"}, at.Add(time.Hour)))
}

func TestApplyReadAll(t *testing.T) {
	m := NewMerger()
	m.Reconcile([]model.Notification{
		notif("a", baseTime, false),
		notif("b", baseTime.Add(time.Minute), true),
		notif("c", baseTime.Add(2*time.Minute), false),
	})

	changed := m.ApplyReadAll(baseTime.Add(time.Hour))
	assert.Equal(t, 2, changed)
	assert.Equal(t, 0, m.UnreadCount())
}

func TestRemove(t *testing.T) {
	m := NewMerger()
	m.Reconcile([]model.Notification{notif("a", baseTime, false)})

	assert.True(t, m.Remove("a"))
	assert.False(t, m.Remove("a"))
	assert.Equal(t, 0, m.Len())
}

func TestPruneExpired(t *testing.T) {
	now := baseTime.Add(time.Hour)
	past := baseTime.Add(time.Minute)
	future := now.Add(time.Hour)

	expired := notif("gone", baseTime, false)
	expired.ExpiresAt = &past
	alive := notif("stays", baseTime.Add(time.Minute), false)
	alive.ExpiresAt = &future
	forever := notif("forever", baseTime.Add(2*time.Minute), false)

	m := NewMerger()
	m.Reconcile([]model.Notification{expired, alive, forever})

	assert.Equal(t, 1, m.PruneExpired(now))
	assert.Equal(t, 2, m.Len())
	_, ok := m.Get("gone")
	assert.False(t, ok)
}

func TestSnapshotIsImmutable(t *testing.T) {
	m := NewMerger()
	m.Reconcile([]model.Notification{notif("a", baseTime, false)})

	snapshot := m.Items()
	snapshot[0].IsRead = true

	n, ok := m.Get("a")
	require.True(t, ok)
	assert.False(t, n.IsRead, "mutating a snapshot must not touch the collection")
}

// Worked scenario: push a, reconcile older b, mark a read.
func TestScenarioPushReconcileMarkRead(t *testing.T) {
	m := NewMerger()

	m.IngestPushed(notif("a", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), false))
	require.Equal(t, 1, m.Len())
	require.Equal(t, 1, m.UnreadCount())

	m.Reconcile([]model.Notification{
		notif("b", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), false),
	})
	items := m.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "b", items[1].ID)

	m.ApplyRead([]string{"a"}, time.Now().UTC())
	n, _ := m.Get("a")
	assert.True(t, n.IsRead)
	assert.Equal(t, 1, m.UnreadCount(), "only b is still unread")
}
