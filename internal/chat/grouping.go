package chat

import (
	"fmt"
	"time"

	"linkup-client/internal/domain"
)

// DayGroup is one display bucket: a day label and the messages on that day,
// in the order they were given.
type DayGroup struct {
	Label    string
	Messages []domain.Message
}

// GroupByDay partitions an ordered message list into day-labeled buckets.
// Labels are "Today", "Yesterday" or an absolute date; both label order and
// in-bucket order follow the input order. Messages without a parseable
// timestamp are skipped.
//
// Pure and recomputed from scratch on every call, so the labels for old
// messages shift correctly when the calendar day rolls over.
func GroupByDay(messages []domain.Message) []DayGroup {
	return groupByDayAt(messages, time.Now())
}

func groupByDayAt(messages []domain.Message, now time.Time) []DayGroup {
	today := truncateDay(now)
	yesterday := today.AddDate(0, 0, -1)

	var groups []DayGroup
	index := make(map[string]int)

	for _, msg := range messages {
		ts, ok := msg.CreatedTime()
		if !ok {
			continue
		}
		day := truncateDay(ts.Local())

		var label string
		switch {
		case day.Equal(today):
			label = "Today"
		case day.Equal(yesterday):
			label = "Yesterday"
		default:
			label = formatDay(day)
		}

		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, DayGroup{Label: label})
		}
		groups[i].Messages = append(groups[i].Messages, msg)
	}
	return groups
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func formatDay(t time.Time) string {
	return fmt.Sprintf("%d of %s %d", t.Day(), t.Month().String(), t.Year())
}
