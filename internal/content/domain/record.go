package domain

import (
	"fmt"
	"time"
)

// Record is one row as returned by a store scan: attribute name to value.
// Absent attributes are simply missing from the map.
type Record map[string]any

// DecodeContentItem turns a backlog record into a ContentItem. Every problem
// is collected into a single DecodeError instead of stopping at the first.
func DecodeContentItem(r Record) (ContentItem, error) {
	d := recordDecoder{rec: r}
	key := d.requireString(AttrKey)
	body := d.requireString(AttrBody)
	if err := d.err(CollectionImmediate, key); err != nil {
		return ContentItem{}, err
	}
	return ContentItem{Key: key, Body: body}, nil
}

// DecodeScheduledItem turns a scheduled record into a ScheduledItem.
// The fire window must be an RFC 3339 timestamp.
func DecodeScheduledItem(r Record) (ScheduledItem, error) {
	d := recordDecoder{rec: r}
	key := d.requireString(AttrKey)
	body := d.requireString(AttrBody)
	fire := d.requireTime(AttrTime)
	recurring := d.requireBool(AttrRecurring)
	if err := d.err(CollectionScheduled, key); err != nil {
		return ScheduledItem{}, err
	}
	return ScheduledItem{Key: key, Body: body, FireWindow: fire, Recurring: recurring}, nil
}

// ContentItemRecord is the at-rest shape of a backlog item.
func ContentItemRecord(item ContentItem) Record {
	return Record{AttrKey: item.Key, AttrBody: item.Body}
}

// ScheduledItemRecord is the at-rest shape of a scheduled item.
func ScheduledItemRecord(item ScheduledItem) Record {
	return Record{
		AttrKey:       item.Key,
		AttrBody:      item.Body,
		AttrTime:      item.FireWindow.Format(time.RFC3339),
		AttrRecurring: item.Recurring,
	}
}

type recordDecoder struct {
	rec      Record
	problems []string
}

func (d *recordDecoder) missing(attr string) {
	d.problems = append(d.problems, fmt.Sprintf("missing %q", attr))
}

func (d *recordDecoder) malformed(attr string, format string, args ...any) {
	d.problems = append(d.problems, fmt.Sprintf("malformed %q: %s", attr, fmt.Sprintf(format, args...)))
}

func (d *recordDecoder) requireString(attr string) string {
	v, ok := d.rec[attr]
	if !ok || v == nil {
		d.missing(attr)
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.malformed(attr, "want string, got %T", v)
		return ""
	}
	if s == "" {
		d.malformed(attr, "empty string")
	}
	return s
}

func (d *recordDecoder) requireBool(attr string) bool {
	v, ok := d.rec[attr]
	if !ok || v == nil {
		d.missing(attr)
		return false
	}
	b, ok := v.(bool)
	if !ok {
		d.malformed(attr, "want bool, got %T", v)
		return false
	}
	return b
}

func (d *recordDecoder) requireTime(attr string) time.Time {
	v, ok := d.rec[attr]
	if !ok || v == nil {
		d.missing(attr)
		return time.Time{}
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			d.malformed(attr, "not an RFC 3339 timestamp: %v", err)
			return time.Time{}
		}
		return parsed
	default:
		d.malformed(attr, "want timestamp string, got %T", v)
		return time.Time{}
	}
}

func (d *recordDecoder) err(c Collection, key string) error {
	if len(d.problems) == 0 {
		return nil
	}
	return &DecodeError{Collection: c, Key: key, Problems: d.problems}
}
