package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/feedpulse/feedpulse/internal/feed/domain/model"
	"github.com/feedpulse/feedpulse/internal/feed/store"
	"github.com/feedpulse/feedpulse/internal/feed/stream"
	"github.com/feedpulse/feedpulse/internal/platform/logger"
	"github.com/feedpulse/feedpulse/internal/platform/metrics"
	"github.com/feedpulse/feedpulse/pkg/api"
)

// NotificationAPI is the slice of the backend client the feed needs.
// *api.NotificationService satisfies it.
type NotificationAPI interface {
	List(ctx context.Context, opts *api.ListOptions) (*api.NotificationPage, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	MarkManyRead(ctx context.Context, ids []string) error
	Delete(ctx context.Context, id string) error
}

// Publisher re-broadcasts feed changes to local consumers.
type Publisher interface {
	Publish(event string, data interface{})
}

// Deps bundles the collaborators of a FeedService.
type Deps struct {
	API          NotificationAPI
	Manager      *stream.Manager
	Cursors      store.CursorStore
	Publisher    Publisher
	Logger       logger.Logger
	Metrics      *metrics.Metrics
	Subscription string
	PageSize     int
}

// FeedService owns one feed subscription: one stream manager, one merger,
// one paging cursor. It drains the manager's lifecycle signals into the
// merger and fronts every read/delete mutation, patching the collection
// strictly after the remote call succeeded.
type FeedService struct {
	api       NotificationAPI
	manager   *stream.Manager
	merger    *store.Merger
	cursors   store.CursorStore
	pager     *store.Pager
	publisher Publisher
	log       logger.Logger
	metrics   *metrics.Metrics

	subscription string
	pageSize     int

	lastLive  atomic.Int64
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// NewFeedService wires a feed service. Manager and API are required; the
// rest defaults to in-memory or no-op collaborators.
func NewFeedService(deps Deps) *FeedService {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Cursors == nil {
		deps.Cursors = store.NewMemoryCursorStore()
	}
	if deps.PageSize <= 0 {
		deps.PageSize = 20
	}
	if deps.Subscription == "" {
		deps.Subscription = "default"
	}

	s := &FeedService{
		api:          deps.API,
		manager:      deps.Manager,
		cursors:      deps.Cursors,
		pager:        store.NewPager(),
		publisher:    deps.Publisher,
		log:          deps.Logger,
		metrics:      deps.Metrics,
		subscription: deps.Subscription,
		pageSize:     deps.PageSize,
	}
	s.merger = store.NewMerger(
		store.WithLogger(deps.Logger),
		store.WithRefresh(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.Refresh(ctx); err != nil {
				s.log.Warn("post-push refresh failed", "error", err)
			}
		}),
	)
	return s
}

// Subscribe opens the stream and starts draining it into the merger.
func (s *FeedService) Subscribe() {
	s.startOnce.Do(func() {
		s.manager.Start()
		s.wg.Add(1)
		go s.drain()
	})
}

// Close tears the subscription down: stream disconnected, timers cancelled,
// drain loop finished. Safe to call more than once.
func (s *FeedService) Close() {
	s.closeOnce.Do(func() {
		s.manager.Disconnect()
	})
	s.wg.Wait()
}

func (s *FeedService) drain() {
	defer s.wg.Done()

	for sig := range s.manager.Signals() {
		switch sig.Kind {
		case stream.SignalOpened:
			s.touchLiveness()
			if s.metrics != nil {
				s.metrics.StreamConnectsTotal.Inc()
				s.metrics.StreamConnected.Set(1)
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := s.Refresh(ctx); err != nil {
					s.log.Warn("refresh after connect failed", "error", err)
				}
			}()

		case stream.SignalMessage:
			s.handleEvent(sig.Event)

		case stream.SignalErrored:
			if s.metrics != nil {
				s.metrics.StreamErrorsTotal.Inc()
				s.metrics.StreamConnected.Set(0)
				if s.manager.State() == stream.StateReconnecting {
					s.metrics.StreamReconnectsTotal.Inc()
				}
			}

		case stream.SignalClosed:
			if s.metrics != nil {
				s.metrics.StreamConnected.Set(0)
			}
		}
	}
}

func (s *FeedService) handleEvent(ev *stream.Event) {
	env := stream.Normalize(ev)
	if env == nil {
		if s.metrics != nil {
			s.metrics.StreamEventsDropped.Inc()
		}
		s.log.Debug("unparseable stream event dropped", "event", ev.Name)
		return
	}
	if s.metrics != nil {
		s.metrics.StreamEventsTotal.WithLabelValues(env.Event).Inc()
	}

	switch env.Event {
	case stream.EventNotification:
		n := model.FromStreamPayload(env.Data)
		if s.merger.IngestPushed(n) {
			if s.metrics != nil {
				s.metrics.FeedIngestedTotal.Inc()
			}
			s.saveCursor(ev.ID)
			s.publish("notification", n)
			s.log.Info("notification received", "id", n.ID, "type", n.Type)
		} else if s.metrics != nil {
			s.metrics.FeedDuplicatesTotal.Inc()
		}
		s.updateGauges()
		s.touchLiveness()

	case stream.EventConnection, stream.EventHeartbeat:
		// Liveness only; no notification semantics.
		s.touchLiveness()

	default:
		s.log.Debug("unknown stream event ignored", "event", env.Event)
	}
}

// Refresh re-fetches every loaded page (at least the first) and reconciles
// the flattened result. A fetch failure leaves the collection as it was,
// stale but consistent.
func (s *FeedService) Refresh(ctx context.Context) error {
	pages := s.pager.Loaded()
	if pages == 0 {
		pages = 1
	}

	var fetched []model.Notification
	totalPages := 0
	for page := 1; page <= pages; page++ {
		res, err := s.api.List(ctx, &api.ListOptions{Page: page, PageSize: s.pageSize})
		if err != nil {
			return fmt.Errorf("failed to refresh notifications: %w", err)
		}
		fetched = append(fetched, res.Items...)
		totalPages = res.Meta.TotalPages
		if res.Meta.Page >= res.Meta.TotalPages {
			pages = page
			break
		}
	}
	s.pager.Observe(pages, totalPages)

	s.reconcile(fetched)
	return nil
}

// LoadMore fetches the next page, if one exists and no fetch is in flight.
func (s *FeedService) LoadMore(ctx context.Context) error {
	page, ok := s.pager.Begin()
	if !ok {
		return nil
	}

	res, err := s.api.List(ctx, &api.ListOptions{Page: page, PageSize: s.pageSize})
	if err != nil {
		s.pager.Abort()
		return fmt.Errorf("failed to load page %d: %w", page, err)
	}

	reported := res.Meta.Page
	if reported == 0 {
		reported = page
	}
	s.pager.Complete(reported, res.Meta.TotalPages)

	s.reconcile(res.Items)
	return nil
}

func (s *FeedService) reconcile(fetched []model.Notification) {
	changed := s.merger.Reconcile(fetched)
	if s.metrics != nil {
		outcome := "unchanged"
		if changed {
			outcome = "changed"
		}
		s.metrics.FeedReconcilesTotal.WithLabelValues(outcome).Inc()
	}
	if changed {
		s.publish("feed", s.merger.Items())
	}
	s.updateGauges()
}

// MarkAsRead marks one notification read: remote call first, local patch
// strictly after success. On failure the collection is untouched and the
// error propagates.
func (s *FeedService) MarkAsRead(ctx context.Context, id string) error {
	if err := s.api.MarkRead(ctx, id); err != nil {
		s.observeMutation("mark_read", false)
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	s.observeMutation("mark_read", true)

	s.merger.ApplyRead([]string{id}, time.Now().UTC())
	s.publish("read", []string{id})
	s.updateGauges()
	return nil
}

// MarkAllAsRead marks every notification read.
func (s *FeedService) MarkAllAsRead(ctx context.Context) error {
	if err := s.api.MarkAllRead(ctx); err != nil {
		s.observeMutation("mark_all_read", false)
		return fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	s.observeMutation("mark_all_read", true)

	s.merger.ApplyReadAll(time.Now().UTC())
	s.publish("read-all", nil)
	s.updateGauges()
	return nil
}

// MarkMultipleAsRead marks the given notifications read.
func (s *FeedService) MarkMultipleAsRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.api.MarkManyRead(ctx, ids); err != nil {
		s.observeMutation("mark_many_read", false)
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	s.observeMutation("mark_many_read", true)

	s.merger.ApplyRead(ids, time.Now().UTC())
	s.publish("read", ids)
	s.updateGauges()
	return nil
}

// Delete removes a notification remotely, then locally.
func (s *FeedService) Delete(ctx context.Context, id string) error {
	if err := s.api.Delete(ctx, id); err != nil {
		s.observeMutation("delete", false)
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	s.observeMutation("delete", true)

	s.merger.Remove(id)
	s.publish("deleted", id)
	s.updateGauges()
	return nil
}

// Items returns a snapshot of the merged collection.
func (s *FeedService) Items() []model.Notification {
	return s.merger.Items()
}

// UnreadCount returns the derived unread count.
func (s *FeedService) UnreadCount() int {
	return s.merger.UnreadCount()
}

// HasMore reports whether the backend has further pages.
func (s *FeedService) HasMore() bool {
	return s.pager.HasMore()
}

// StreamState returns the stream connection state.
func (s *FeedService) StreamState() stream.State {
	return s.manager.State()
}

// PruneExpired drops expired notifications from the collection.
func (s *FeedService) PruneExpired() int {
	pruned := s.merger.PruneExpired(time.Now().UTC())
	if pruned > 0 {
		if s.metrics != nil {
			s.metrics.FeedPrunedTotal.Add(float64(pruned))
		}
		s.publish("feed", s.merger.Items())
		s.updateGauges()
		s.log.Info("expired notifications pruned", "count", pruned)
	}
	return pruned
}

// LastLive returns when the stream last showed signs of life.
func (s *FeedService) LastLive() time.Time {
	nanos := s.lastLive.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func (s *FeedService) touchLiveness() {
	s.lastLive.Store(time.Now().UnixNano())
}

func (s *FeedService) saveCursor(eventID string) {
	if eventID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.cursors.Save(ctx, s.subscription, eventID); err != nil {
		s.log.Warn("failed to save stream cursor", "error", err)
	}
}

func (s *FeedService) publish(event string, data interface{}) {
	if s.publisher != nil {
		s.publisher.Publish(event, data)
	}
}

func (s *FeedService) observeMutation(operation string, ok bool) {
	if s.metrics == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	s.metrics.MutationsTotal.WithLabelValues(operation, outcome).Inc()
}

func (s *FeedService) updateGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.FeedSize.Set(float64(s.merger.Len()))
	s.metrics.FeedUnread.Set(float64(s.merger.UnreadCount()))
}
