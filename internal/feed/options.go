// Package feed composes the sync primitives into the per-view state the CLI
// and status server render: post cards, feeds, comment threads,
// notifications, the unread badge and learning plans.
package feed

import (
	"feedsync/internal/featureflags"
	"feedsync/internal/media"
	"feedsync/internal/optimistic"
)

// EditPolicy decides what a failed save does to edit mode.
type EditPolicy int

const (
	// StayEditing keeps edit mode and the draft after a failed save.
	StayEditing EditPolicy = iota
	// ExitEditing leaves edit mode; the content reverts and the draft is dropped.
	ExitEditing
)

// Options carries what every view needs from the session and config.
// Flags are the signed-in user's flags; View selects view-scoped rules.
type Options struct {
	UserID     string
	Reporter   optimistic.Reporter
	Flags      featureflags.Set
	View       string
	Limits     media.Limits
	EditPolicy EditPolicy
}

func (o Options) reporter() optimistic.Reporter {
	if o.Reporter == nil {
		return optimistic.LogReporter{}
	}
	return o.Reporter
}

func (o Options) coalesceLikes() bool {
	return o.Flags.Enabled(featureflags.CoalesceLikes, o.View)
}
