// Package readstate tracks notification read flags and the unread counter.
package readstate

import (
	"context"
	"fmt"
	"sync"

	"feedsync/internal/models"
	"feedsync/internal/observability"
	"feedsync/internal/optimistic"
)

// Source is the slice of the API the tracker needs.
type Source interface {
	Notifications(ctx context.Context) ([]models.Notification, error)
	UnreadNotifications(ctx context.Context) ([]models.Notification, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Filter selects which notifications Items returns.
type Filter int

const (
	FilterAll Filter = iota
	FilterUnread
)

// ParseFilter maps "all"/"unread" to a Filter; anything else is FilterAll.
func ParseFilter(s string) Filter {
	if s == "unread" {
		return FilterUnread
	}
	return FilterAll
}

func (f Filter) String() string {
	if f == FilterUnread {
		return "unread"
	}
	return "all"
}

// ErrPending is returned when a conflicting read transition is in flight.
var ErrPending = optimistic.ErrPending

// silent keeps per-item fields from reporting; the tracker reports once per operation.
var silent = optimistic.ReporterFunc(func(context.Context, string, error) {})

// Tracker owns one view's notification list. Safe for concurrent use.
type Tracker struct {
	src      Source
	reporter optimistic.Reporter

	mu     sync.Mutex
	order  []string
	items  map[string]models.Notification
	read   map[string]*optimistic.Field[bool]
	unread int

	// issued numbers every counter-affecting fetch and local change;
	// applied is the highest number whose effect is visible.
	issued  uint64
	applied uint64
	// loadSeq and countSeq are the sequence numbers of the last applied
	// list load and server count; the later one is the counter's base.
	loadSeq  uint64
	countSeq uint64

	singlesPending int
	bulkPending    bool
	observers      []func()
}

// New creates an empty tracker. A nil reporter uses optimistic.LogReporter.
func New(src Source, reporter optimistic.Reporter) *Tracker {
	if reporter == nil {
		reporter = optimistic.LogReporter{}
	}
	return &Tracker{
		src:      src,
		reporter: reporter,
		items:    map[string]models.Notification{},
		read:     map[string]*optimistic.Field[bool]{},
	}
}

// OnChange registers fn to run after every visible change.
func (t *Tracker) OnChange(fn func()) {
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

func (t *Tracker) notify() {
	t.mu.Lock()
	observers := t.observers
	unread := t.unread
	t.mu.Unlock()

	observability.UnreadNotifications.Set(float64(unread))
	for _, fn := range observers {
		fn()
	}
}

// issueLocked reserves the next sequence number.
func (t *Tracker) issueLocked() uint64 {
	t.issued++
	return t.issued
}

// localChangeLocked records a local counter change, which supersedes every
// fetch issued before it.
func (t *Tracker) localChangeLocked() {
	t.applied = t.issueLocked()
}

// rollbackLocked undoes one optimistic read whose local change was numbered
// local. counted reports whether that change actually lowered the counter.
// A server count applied after the change already counts the item as unread;
// a list load after it counted the still-pending item as read.
func (t *Tracker) rollbackLocked(local uint64, counted bool) bool {
	if t.recountedSinceLocked(local) {
		return false
	}
	if t.loadSeq > local || counted {
		t.unread++
		return true
	}
	return false
}

// recountedSinceLocked reports whether the counter's base is a server count
// applied after the local change numbered local.
func (t *Tracker) recountedSinceLocked(local uint64) bool {
	return t.countSeq > local && t.countSeq > t.loadSeq
}

func (t *Tracker) staleLocked(seq uint64, source string) bool {
	if seq < t.applied {
		observability.StaleResponses.WithLabelValues(source).Inc()
		return true
	}
	return false
}

// Load fetches all notifications and resets the counter from them.
func (t *Tracker) Load(ctx context.Context) error {
	return t.load(ctx, "notifications", t.src.Notifications)
}

// LoadUnread fetches only unread notifications.
func (t *Tracker) LoadUnread(ctx context.Context) error {
	return t.load(ctx, "notifications.unread", t.src.UnreadNotifications)
}

func (t *Tracker) load(ctx context.Context, source string, fetch func(context.Context) ([]models.Notification, error)) error {
	t.mu.Lock()
	seq := t.issueLocked()
	t.mu.Unlock()

	list, err := fetch(ctx)
	if err != nil {
		return fmt.Errorf("load %s: %w", source, err)
	}

	t.mu.Lock()
	if t.staleLocked(seq, source) {
		t.mu.Unlock()
		return nil
	}

	order := make([]string, 0, len(list))
	items := make(map[string]models.Notification, len(list))
	read := make(map[string]*optimistic.Field[bool], len(list))
	for _, n := range list {
		if _, dup := items[n.ID]; dup {
			continue
		}
		order = append(order, n.ID)
		items[n.ID] = n
		// A pending transition keeps its field so its settle still lands.
		if f, ok := t.read[n.ID]; ok && f.Pending() {
			read[n.ID] = f
			continue
		}
		read[n.ID] = optimistic.NewField("notification.read", n.Read, silent)
	}

	unread := 0
	for _, id := range order {
		if !read[id].Value() {
			unread++
		}
	}

	t.order, t.items, t.read = order, items, read
	t.unread = unread
	t.applied = seq
	t.loadSeq = seq
	t.mu.Unlock()

	t.notify()
	return nil
}

// RefreshCount replaces the counter with the server's value unless a later
// fetch or local change has already been applied.
func (t *Tracker) RefreshCount(ctx context.Context) error {
	t.mu.Lock()
	seq := t.issueLocked()
	t.mu.Unlock()

	n, err := t.src.UnreadCount(ctx)
	if err != nil {
		return fmt.Errorf("refresh unread count: %w", err)
	}

	t.mu.Lock()
	if t.staleLocked(seq, "unread-count") {
		t.mu.Unlock()
		return nil
	}
	if n < 0 {
		n = 0
	}
	t.unread = n
	t.applied = seq
	t.countSeq = seq
	t.mu.Unlock()

	t.notify()
	return nil
}

// MarkRead flips one notification to read and decrements the counter before
// the request is sent. Marking an already-read notification does nothing.
func (t *Tracker) MarkRead(ctx context.Context, id string) error {
	t.mu.Lock()
	f, ok := t.read[id]
	if !ok {
		t.mu.Unlock()
		return models.NewNotFoundError("Notification", id)
	}
	if f.Pending() || t.bulkPending {
		t.mu.Unlock()
		observability.OptimisticRejected.WithLabelValues("notification.read").Inc()
		return ErrPending
	}
	if f.Value() {
		t.mu.Unlock()
		return nil
	}
	m, err := f.Begin(func(bool) bool { return true })
	if err != nil {
		t.mu.Unlock()
		return err
	}
	counted := t.unread > 0
	if counted {
		t.unread--
	}
	t.localChangeLocked()
	local := t.applied
	t.singlesPending++
	t.mu.Unlock()
	t.notify()

	err = t.src.MarkNotificationRead(ctx, id)

	t.mu.Lock()
	t.singlesPending--
	if err != nil {
		m.Fail(ctx, err)
		// A load that dropped the item already left it out of the counter.
		if t.read[id] == f && t.rollbackLocked(local, counted) {
			t.localChangeLocked()
		}
	} else {
		m.Keep()
	}
	t.mu.Unlock()

	if err != nil {
		t.reporter.Report(ctx, "notification.read", err)
	}
	t.notify()
	return err
}

// MarkAllRead flips every notification to read and zeroes the counter with
// one request. On failure every flag and the counter return to their prior
// values exactly.
func (t *Tracker) MarkAllRead(ctx context.Context) error {
	t.mu.Lock()
	if t.bulkPending || t.singlesPending > 0 {
		t.mu.Unlock()
		observability.OptimisticRejected.WithLabelValues("notification.read_all").Inc()
		return ErrPending
	}

	type begun struct {
		id string
		f  *optimistic.Field[bool]
		m  *optimistic.Mutation[bool]
	}
	var mutations []begun
	for _, id := range t.order {
		f := t.read[id]
		if f.Value() {
			continue
		}
		m, err := f.Begin(func(bool) bool { return true })
		if err != nil {
			for _, done := range mutations {
				done.m.Fail(ctx, err)
			}
			t.mu.Unlock()
			return err
		}
		mutations = append(mutations, begun{id: id, f: f, m: m})
	}
	priorUnread := t.unread
	t.unread = 0
	t.localChangeLocked()
	local := t.applied
	t.bulkPending = true
	t.mu.Unlock()
	t.notify()

	err := t.src.MarkAllNotificationsRead(ctx)

	t.mu.Lock()
	t.bulkPending = false
	restored := 0
	for _, b := range mutations {
		if err != nil {
			b.m.Fail(ctx, err)
			if t.read[b.id] == b.f {
				restored++
			}
		} else {
			b.m.Keep()
		}
	}
	if err != nil && !t.recountedSinceLocked(local) {
		if t.loadSeq > local {
			t.unread += restored
		} else {
			t.unread = priorUnread
		}
		t.localChangeLocked()
	}
	t.mu.Unlock()

	if err != nil {
		t.reporter.Report(ctx, "notification.read_all", err)
	}
	t.notify()
	return err
}

// UnreadCount returns the displayed unread counter.
func (t *Tracker) UnreadCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unread
}

// Items projects the loaded notifications through filter, in server order.
func (t *Tracker) Items(filter Filter) []models.Notification {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.Notification, 0, len(t.order))
	for _, id := range t.order {
		n := t.items[id]
		n.Read = t.read[id].Value()
		if filter == FilterUnread && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Get returns one notification with its displayed read flag.
func (t *Tracker) Get(id string) (models.Notification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.items[id]
	if !ok {
		return models.Notification{}, false
	}
	n.Read = t.read[id].Value()
	return n, true
}

// Pending reports whether any read transition is in flight.
func (t *Tracker) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bulkPending || t.singlesPending > 0
}
