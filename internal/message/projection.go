package message

import (
	"strconv"
	"time"
)

// TimeGapThreshold is the minimum gap between consecutive messages that
// produces a time separator. The comparison is inclusive.
const TimeGapThreshold = time.Minute

const (
	labelToday     = "Today"
	labelYesterday = "Yesterday"
	dateLayout     = "02/01/2006"
	clockLayout    = "15:04"
)

// EntryKind classifies a timeline entry.
type EntryKind string

const (
	EntryMessage       EntryKind = "message"
	EntryDateSeparator EntryKind = "date_separator"
	EntryTimeSeparator EntryKind = "time_separator"
)

// Entry is a display-only projection unit: a message or a separator.
type Entry struct {
	Kind    EntryKind
	Key     string
	Label   string
	At      time.Time
	Message *Message
}

// IsSeparator reports whether the entry is a date or time separator.
func (e Entry) IsSeparator() bool {
	return e.Kind == EntryDateSeparator || e.Kind == EntryTimeSeparator
}

// Project walks newest-first messages oldest to newest, inserting a date
// separator when the calendar day changes and otherwise a time separator
// when the gap to the previous message reaches TimeGapThreshold. The result
// is newest-first. Labels are computed relative to now, so they go stale if
// the projection is kept across a day boundary.
func Project(newestFirst []Message, now time.Time, loc *time.Location) []Entry {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	entries := make([]Entry, 0, len(newestFirst)*2)

	var prev *Message
	for i := len(newestFirst) - 1; i >= 0; i-- {
		msg := newestFirst[i]
		at := msg.CreatedAt.In(loc)
		switch {
		case prev == nil || !sameDay(prev.CreatedAt.In(loc), at):
			entries = append(entries, Entry{
				Kind:  EntryDateSeparator,
				Key:   "date:" + at.Format("2006-01-02"),
				Label: DayLabel(at, now),
				At:    at,
			})
		case msg.CreatedAt.Sub(prev.CreatedAt) >= TimeGapThreshold:
			entries = append(entries, Entry{
				Kind:  EntryTimeSeparator,
				Key:   "gap:" + entryKey(msg, i),
				Label: TimeLabel(at, now),
				At:    at,
			})
		}
		entries = append(entries, Entry{
			Kind:    EntryMessage,
			Key:     entryKey(msg, i),
			At:      at,
			Message: &newestFirst[i],
		})
		prev = &newestFirst[i]
	}

	for l, r := 0, len(entries)-1; l < r; l, r = l+1, r-1 {
		entries[l], entries[r] = entries[r], entries[l]
	}
	return entries
}

// DayLabel returns "Today", "Yesterday" or an absolute dd/MM/yyyy date for t
// relative to now. Both values must share a location.
func DayLabel(t, now time.Time) string {
	if sameDay(t, now) {
		return labelToday
	}
	y, m, d := now.Date()
	if sameDay(t, time.Date(y, m, d-1, 12, 0, 0, 0, now.Location())) {
		return labelYesterday
	}
	return t.Format(dateLayout)
}

// TimeLabel returns the day-qualified HH:mm label for t, e.g. "Today 14:05".
func TimeLabel(t, now time.Time) string {
	return DayLabel(t, now) + " " + t.Format(clockLayout)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func entryKey(msg Message, idx int) string {
	if msg.ID != "" {
		return msg.ID
	}
	return "idx:" + msg.CreatedAt.Format(time.RFC3339Nano) + ":" + strconv.Itoa(idx)
}
