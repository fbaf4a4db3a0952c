// Package optimistic implements the single-field optimistic update state
// machine: Settled -> Pending(optimistic, previous) -> Settled.
package optimistic

import (
	"context"
	"errors"
	"sync"

	"feedsync/internal/models"
	"feedsync/internal/observability"
)

// ErrPending is returned by Begin while a mutation of the same field is in flight.
var ErrPending = models.NewConflictError("A change to this item is already in progress")

// Reporter receives every failed mutation once the field has been rolled back.
type Reporter interface {
	Report(ctx context.Context, field string, err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, field string, err error)

func (f ReporterFunc) Report(ctx context.Context, field string, err error) { f(ctx, field, err) }

// LogReporter logs failures through the global logger.
type LogReporter struct{}

func (LogReporter) Report(ctx context.Context, field string, err error) {
	observability.LogRollback(ctx, field, err)
}

// Phase is the state of a field.
type Phase int

const (
	Settled Phase = iota
	Pending
)

func (p Phase) String() string {
	if p == Pending {
		return "pending"
	}
	return "settled"
}

// Field is one optimistically mutated value. Safe for concurrent use.
type Field[T any] struct {
	name     string
	reporter Reporter

	mu        sync.Mutex
	phase     Phase
	value     T
	previous  T
	seq       uint64
	observers []func(value T, phase Phase)
}

// NewField creates a settled field. A nil reporter uses LogReporter.
func NewField[T any](name string, initial T, reporter Reporter) *Field[T] {
	if reporter == nil {
		reporter = LogReporter{}
	}
	return &Field[T]{name: name, value: initial, reporter: reporter}
}

// Name identifies the field in logs and metrics.
func (f *Field[T]) Name() string {
	return f.name
}

// Value returns the displayed value: the optimistic one while pending.
func (f *Field[T]) Value() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Phase returns the current phase.
func (f *Field[T]) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// Pending reports whether a mutation is in flight.
func (f *Field[T]) Pending() bool {
	return f.Phase() == Pending
}

// OnChange registers fn to run after every transition, with the new value.
func (f *Field[T]) OnChange(fn func(value T, phase Phase)) {
	f.mu.Lock()
	f.observers = append(f.observers, fn)
	f.mu.Unlock()
}

// Begin applies intent to the current value and makes the result visible
// immediately. It fails with ErrPending while another mutation is in flight.
func (f *Field[T]) Begin(intent func(current T) T) (*Mutation[T], error) {
	f.mu.Lock()
	if f.phase == Pending {
		f.mu.Unlock()
		observability.OptimisticRejected.WithLabelValues(f.name).Inc()
		return nil, ErrPending
	}
	f.previous = f.value
	f.value = intent(f.value)
	f.phase = Pending
	f.seq++
	m := &Mutation[T]{field: f, seq: f.seq, optimistic: f.value}
	value, observers := f.value, f.observers
	f.mu.Unlock()

	notify(observers, value, Pending)
	return m, nil
}

// Set replaces a settled value, e.g. after an authoritative reload. It fails
// with ErrPending while a mutation is in flight.
func (f *Field[T]) Set(value T) error {
	f.mu.Lock()
	if f.phase == Pending {
		f.mu.Unlock()
		return ErrPending
	}
	f.value = value
	observers := f.observers
	f.mu.Unlock()

	notify(observers, value, Settled)
	return nil
}

func notify[T any](observers []func(T, Phase), value T, phase Phase) {
	for _, fn := range observers {
		fn(value, phase)
	}
}

// Mutation is the handle for one in-flight change. Only the first settle counts.
type Mutation[T any] struct {
	field      *Field[T]
	seq        uint64
	optimistic T
	once       sync.Once
}

// Optimistic returns the value made visible by Begin.
func (m *Mutation[T]) Optimistic() T {
	return m.optimistic
}

// Previous returns the value the field will revert to on failure.
func (m *Mutation[T]) Previous() T {
	m.field.mu.Lock()
	defer m.field.mu.Unlock()
	return m.field.previous
}

// Succeed settles the field on the server-confirmed value.
func (m *Mutation[T]) Succeed(confirmed T) {
	m.once.Do(func() {
		m.field.settle(m.seq, confirmed)
		observability.RecordOptimistic(m.field.name, true)
	})
}

// Keep settles the field on the optimistic value, for endpoints that return no body.
func (m *Mutation[T]) Keep() {
	m.once.Do(func() {
		m.field.settle(m.seq, m.optimistic)
		observability.RecordOptimistic(m.field.name, true)
	})
}

// Fail reverts the field and reports err. Never retries.
func (m *Mutation[T]) Fail(ctx context.Context, err error) {
	m.once.Do(func() {
		f := m.field
		f.mu.Lock()
		previous := f.previous
		f.mu.Unlock()
		f.settle(m.seq, previous)
		observability.RecordOptimistic(f.name, false)
		if err == nil {
			err = errors.New("mutation failed")
		}
		f.reporter.Report(ctx, f.name, err)
	})
}

// Settle dispatches to Fail when err is non-nil and to Succeed otherwise.
func (m *Mutation[T]) Settle(ctx context.Context, confirmed T, err error) {
	if err != nil {
		m.Fail(ctx, err)
		return
	}
	m.Succeed(confirmed)
}

func (f *Field[T]) settle(seq uint64, value T) {
	f.mu.Lock()
	if f.phase != Pending || f.seq != seq {
		f.mu.Unlock()
		return
	}
	f.value = value
	f.phase = Settled
	var zero T
	f.previous = zero
	observers := f.observers
	f.mu.Unlock()

	notify(observers, value, Settled)
}

// Apply runs one mutation end to end: begin with intent, call the server,
// settle with the value call returns. The call's error is returned after
// rollback.
func Apply[T any](ctx context.Context, f *Field[T], intent func(T) T, call func(ctx context.Context, optimistic T) (T, error)) error {
	m, err := f.Begin(intent)
	if err != nil {
		return err
	}
	confirmed, err := call(ctx, m.Optimistic())
	m.Settle(ctx, confirmed, err)
	return err
}
