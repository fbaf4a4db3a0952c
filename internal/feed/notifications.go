package feed

import (
	"context"
	"sync"
	"time"

	"feedsync/internal/models"
	"feedsync/internal/poller"
	"feedsync/internal/readstate"
)

// NotificationCenter is the notification panel: a tracker plus the
// all/unread filter toggle.
type NotificationCenter struct {
	tracker *readstate.Tracker

	mu      sync.Mutex
	showAll bool
}

// NewNotificationCenter creates a panel showing all notifications.
func NewNotificationCenter(src readstate.Source, opts Options) *NotificationCenter {
	return &NotificationCenter{tracker: readstate.New(src, opts.reporter()), showAll: true}
}

// Tracker exposes the underlying read-state tracker.
func (n *NotificationCenter) Tracker() *readstate.Tracker {
	return n.tracker
}

// Refresh reloads every notification.
func (n *NotificationCenter) Refresh(ctx context.Context) error {
	return n.tracker.Load(ctx)
}

// ShowAll sets the filter: all notifications when true, unread only otherwise.
func (n *NotificationCenter) ShowAll(all bool) {
	n.mu.Lock()
	n.showAll = all
	n.mu.Unlock()
}

// ToggleFilter flips between all and unread.
func (n *NotificationCenter) ToggleFilter() {
	n.mu.Lock()
	n.showAll = !n.showAll
	n.mu.Unlock()
}

// Filter returns the active filter.
func (n *NotificationCenter) Filter() readstate.Filter {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.showAll {
		return readstate.FilterAll
	}
	return readstate.FilterUnread
}

// Visible returns the notifications the active filter selects.
func (n *NotificationCenter) Visible() []models.Notification {
	return n.tracker.Items(n.Filter())
}

// UnreadCount returns the displayed counter.
func (n *NotificationCenter) UnreadCount() int {
	return n.tracker.UnreadCount()
}

// MarkRead marks one notification read.
func (n *NotificationCenter) MarkRead(ctx context.Context, id string) error {
	return n.tracker.MarkRead(ctx, id)
}

// MarkAllRead marks every notification read. Nothing is sent when the
// counter is already zero.
func (n *NotificationCenter) MarkAllRead(ctx context.Context) error {
	if n.tracker.UnreadCount() == 0 && len(n.tracker.Items(readstate.FilterUnread)) == 0 {
		return nil
	}
	return n.tracker.MarkAllRead(ctx)
}

// UnreadBadge keeps a tracker's counter fresh by polling the unread count.
type UnreadBadge struct {
	tracker  *readstate.Tracker
	interval time.Duration

	mu     sync.Mutex
	poller *poller.Poller
}

// NewUnreadBadge creates a stopped badge polling every interval.
func NewUnreadBadge(tracker *readstate.Tracker, interval time.Duration) *UnreadBadge {
	return &UnreadBadge{tracker: tracker, interval: interval}
}

// Start begins polling. Starting a running badge does nothing.
func (b *UnreadBadge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.poller != nil {
		return
	}
	b.poller = poller.Start(ctx, "unread-count", b.interval, b.tracker.RefreshCount)
}

// Stop ends polling; in-flight refreshes still land. Safe to call repeatedly.
func (b *UnreadBadge) Stop() {
	b.mu.Lock()
	p := b.poller
	b.poller = nil
	b.mu.Unlock()
	if p != nil {
		p.Stop()
		p.Wait()
	}
}

// Count returns the displayed unread counter.
func (b *UnreadBadge) Count() int {
	return b.tracker.UnreadCount()
}
