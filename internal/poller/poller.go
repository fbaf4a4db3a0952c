// Package poller invokes a function immediately and then at a fixed interval
// until stopped.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"feedsync/internal/observability"
)

// DefaultInterval is used when Start is given a non-positive interval.
const DefaultInterval = 30 * time.Second

// Func is one poll. Its error is logged and the schedule continues.
type Func func(ctx context.Context) error

// Poller runs Func on a fixed schedule. Calls may overlap when one takes
// longer than the interval; Stop does not cancel calls already in flight.
type Poller struct {
	name     string
	interval time.Duration
	fn       Func

	stopOnce sync.Once
	stopCh   chan struct{}
	loopDone chan struct{}
	inflight sync.WaitGroup
}

// Start invokes fn right away and then every interval. Cancelling ctx stops
// the schedule like Stop; calls receive a context detached from ctx's
// cancellation.
func Start(ctx context.Context, name string, interval time.Duration, fn Func) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Poller{
		name:     name,
		interval: interval,
		fn:       fn,
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go p.loop(ctx)
	return p
}

// Interval returns the schedule period.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Stop ends the schedule. Safe to call more than once and after ctx is done.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}

// Wait blocks until the schedule has ended and every in-flight call returned.
func (p *Poller) Wait() {
	<-p.loopDone
	p.inflight.Wait()
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.loopDone)

	callCtx := context.WithoutCancel(ctx)
	p.invoke(callCtx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Stop may race with a tick; a closed stopCh wins.
			select {
			case <-p.stopCh:
				return
			default:
			}
			p.invoke(callCtx)
		}
	}
}

func (p *Poller) invoke(ctx context.Context) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		ctx := observability.WithCorrelationID(ctx, observability.GenerateCorrelationID())
		fields := map[string]interface{}{"poller": p.name}

		defer func() {
			if r := recover(); r != nil {
				observability.PollTicks.WithLabelValues(p.name, "panic").Inc()
				observability.LogAsyncOperationError(ctx, "poll", fmt.Errorf("panic: %v", r), fields)
			}
		}()

		observability.LogAsyncOperationStart(ctx, "poll", fields)
		if err := p.fn(ctx); err != nil {
			observability.PollTicks.WithLabelValues(p.name, "error").Inc()
			observability.LogAsyncOperationError(ctx, "poll", err, fields)
			return
		}
		observability.PollTicks.WithLabelValues(p.name, "ok").Inc()
		observability.LogAsyncOperationEnd(ctx, "poll", fields)
	}()
}
