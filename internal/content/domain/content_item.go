package domain

import (
	"time"
)

// Collection names one of the two backlogs held by the content store.
type Collection string

const (
	// CollectionImmediate is the unordered backlog of ready-to-publish posts.
	CollectionImmediate Collection = "immediate"
	// CollectionScheduled holds posts tagged with a fire hour and recurrence flag.
	CollectionScheduled Collection = "scheduled"
)

// Record attribute names, shared by both collections at rest.
const (
	AttrKey       = "uuid"
	AttrBody      = "post"
	AttrTime      = "time"
	AttrRecurring = "recurring"
)

// ContentItem is a ready-to-publish post in the immediate backlog.
type ContentItem struct {
	Key  string `json:"uuid"`
	Body string `json:"post"`
}

// ScheduledItem is a post that fires when the current hour matches FireWindow's hour.
type ScheduledItem struct {
	Key        string    `json:"uuid"`
	Body       string    `json:"post"`
	FireWindow time.Time `json:"time"`
	Recurring  bool      `json:"recurring"`
}

// FiresAt reports whether the item is due at now. Only the hour of day is
// compared, with FireWindow converted into now's location first, so an item
// fires on every invocation that lands in its hour.
func (s ScheduledItem) FiresAt(now time.Time) bool {
	return s.HourIn(now.Location()) == now.Hour()
}

// HourIn is the hour of day the item fires at when invocations run in loc.
func (s ScheduledItem) HourIn(loc *time.Location) int {
	return s.FireWindow.In(loc).Hour()
}

// Content returns the publishable part of the scheduled item.
func (s ScheduledItem) Content() ContentItem {
	return ContentItem{Key: s.Key, Body: s.Body}
}

// Selection is the single item picked for one invocation, together with the
// collection it came from and whether it must be deleted after dispatch.
type Selection struct {
	Item                ContentItem
	Source              Collection
	DeleteAfterDispatch bool
}

// SelectImmediate builds the selection for a backlog item; backlog items are always deleted.
func SelectImmediate(item ContentItem) *Selection {
	return &Selection{Item: item, Source: CollectionImmediate, DeleteAfterDispatch: true}
}

// SelectScheduled builds the selection for a scheduled item; recurring items survive dispatch.
func SelectScheduled(item ScheduledItem) *Selection {
	return &Selection{Item: item.Content(), Source: CollectionScheduled, DeleteAfterDispatch: !item.Recurring}
}
