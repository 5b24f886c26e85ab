package eventsourcing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gregbrowndev/eventsourcing/recorder"
)

// Notification is the domain-level view of recorder.Notification: a
// stored event exposed with its globally dense id.
type Notification struct {
	ID uint64
	recorder.StoredEvent
}

// Section identifies a contiguous, 1-based, inclusive range of
// notification ids, formatted as "start,end". A trailing section may
// return fewer than end-start+1 notifications without error if the log
// hasn't caught up to end yet.
type Section struct {
	Start uint64
	End   uint64
}

// ParseSection parses an ASCII "start,end" identifier.
func ParseSection(id string) (Section, error) {
	parts := strings.SplitN(id, ",", 2)
	if len(parts) != 2 {
		return Section{}, ProgrammingError(fmt.Sprintf("malformed section id %q", id))
	}
	start, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Section{}, ProgrammingError(fmt.Sprintf("malformed section id %q", id))
	}
	end, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Section{}, ProgrammingError(fmt.Sprintf("malformed section id %q", id))
	}
	if start < 1 || end < start {
		return Section{}, ProgrammingError(fmt.Sprintf("malformed section id %q", id))
	}
	return Section{Start: start, End: end}, nil
}

func (s Section) String() string {
	return strconv.FormatUint(s.Start, 10) + "," + strconv.FormatUint(s.End, 10)
}

// NotificationLog exposes paged, ordered access to every notification
// ever committed, across all aggregates.
type NotificationLog struct {
	store  recorder.Interface
	mapper *Mapper
}

func NewNotificationLog(store recorder.Interface, mapper *Mapper) *NotificationLog {
	return &NotificationLog{store: store, mapper: mapper}
}

// Section returns the notifications in the requested range. A partial
// trailing section is not an error.
func (l *NotificationLog) Section(ctx context.Context, section Section) ([]Notification, error) {
	limit := int(section.End - section.Start + 1)
	recs, err := l.store.SelectNotifications(ctx, section.Start, limit, recorder.Filter{})
	if err != nil {
		return nil, err
	}
	out := make([]Notification, len(recs))
	for i, r := range recs {
		out[i] = Notification{ID: r.ID, StoredEvent: r.StoredEvent}
	}
	return out, nil
}

// MaxID returns the highest notification id committed so far.
func (l *NotificationLog) MaxID(ctx context.Context) (uint64, error) {
	return l.store.MaxNotificationID(ctx)
}

// Select is a lower-level accessor used by reader.Reader to fetch pages
// filtered by event topic, label or partition.
func (l *NotificationLog) Select(ctx context.Context, start uint64, limit int, filter recorder.Filter) ([]Notification, error) {
	recs, err := l.store.SelectNotifications(ctx, start, limit, filter)
	if err != nil {
		return nil, err
	}
	out := make([]Notification, len(recs))
	for i, r := range recs {
		out[i] = Notification{ID: r.ID, StoredEvent: r.StoredEvent}
	}
	return out, nil
}
