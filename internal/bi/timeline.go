package bi

import (
	"math"
	"sort"
	"time"

	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
)

const dayLayout = "2006-01-02"

// eventRow is one (client, event) pair of a flattened timeline.
type eventRow struct {
	client *models.Client
	event  models.ClientEvent
}

func flatten(clients []models.Client) []eventRow {
	var rows []eventRow
	for i := range clients {
		for _, event := range clients[i].Events {
			rows = append(rows, eventRow{client: &clients[i], event: event})
		}
	}
	return rows
}

func sortedTimeline(events []models.ClientEvent) []models.ClientEvent {
	sorted := make([]models.ClientEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})
	return sorted
}

// earliestEvent returns the date of the chronologically first event.
func earliestEvent(events []models.ClientEvent) (time.Time, bool) {
	sorted := sortedTimeline(events)
	for _, event := range sorted {
		if !event.OccurredAt.IsZero() {
			return event.OccurredAt, true
		}
	}
	return time.Time{}, false
}

// leadCreatedAt is the registration date, or the first timeline event for
// legacy records that were imported without one.
func leadCreatedAt(c models.Client) (time.Time, bool) {
	if c.CreatedAt != nil && !c.CreatedAt.IsZero() {
		return *c.CreatedAt, true
	}
	return earliestEvent(c.Events)
}

func hasEventInWindow(c models.Client, q Query, eventType *enums.TimelineEventType) bool {
	for _, event := range c.Events {
		if eventType != nil && event.Type != *eventType {
			continue
		}
		if q.Contains(event.OccurredAt) {
			return true
		}
	}
	return false
}

func hasEventOfType(c models.Client, eventType enums.TimelineEventType) bool {
	for _, event := range c.Events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func dayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// rate is round(to/from*100), zero when from is zero.
func rate(from, to int64) int64 {
	if from == 0 {
		return 0
	}
	return int64(math.Round(float64(to) / float64(from) * 100))
}
