// Package notify decides whether a newly polled feed item deserves a notification.
package notify

import (
	"time"

	"github.com/lysyi3m/tubewatch/app/feed"
	"github.com/lysyi3m/tubewatch/app/source"
)

const DefaultGraceWindow = 5 * time.Minute

type Reason string

const (
	ReasonNotApproved   Reason = "not_approved"
	ReasonFirstSightNew Reason = "first_sight_new"
	ReasonFirstSightOld Reason = "first_sight_old"
	ReasonNewItem       Reason = "new_item"
	ReasonUnchanged     Reason = "unchanged"
)

type Decision struct {
	Notify bool
	Reason Reason
}

// Decide applies the notification table. The snapshot is nil when nothing was ever seen
// for the source. A first sighting only notifies when the item was published within the
// grace window, so back-catalog content found on the first check stays silent.
func Decide(approved bool, snap *source.FeedSnapshot, entry feed.Entry, now time.Time, grace time.Duration) Decision {
	switch {
	case !approved:
		return Decision{Reason: ReasonNotApproved}
	case snap == nil || snap.LastSeenItemID == "":
		if now.Sub(entry.PublishedAt) <= grace {
			return Decision{Notify: true, Reason: ReasonFirstSightNew}
		}
		return Decision{Reason: ReasonFirstSightOld}
	case snap.LastSeenItemID != entry.ItemID:
		return Decision{Notify: true, Reason: ReasonNewItem}
	default:
		return Decision{Reason: ReasonUnchanged}
	}
}
