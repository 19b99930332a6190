package bi

import (
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
)

// buildSeries emits one row per UTC day of the window, zero-filled. Leads are
// bucketed by creation day and sales by event day; the two are not cohorts.
func buildSeries(population []models.Client, q Query) []SeriesPoint {
	leads := map[string]int64{}
	for _, c := range population {
		if at, ok := leadCreatedAt(c); ok {
			leads[dayKey(at)]++
		}
	}

	sales := map[string]int64{}
	for _, row := range flatten(population) {
		if row.event.Type == enums.TimelineVendaGerada && q.Contains(row.event.OccurredAt) {
			sales[dayKey(row.event.OccurredAt)]++
		}
	}

	first, last := startOfDay(q.Start), startOfDay(q.End)
	points := make([]SeriesPoint, 0, int(last.Sub(first).Hours()/24)+1)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		key := dayKey(day)
		points = append(points, SeriesPoint{
			Date:       key,
			Leads:      leads[key],
			Vendas:     sales[key],
			Conversion: rate(leads[key], sales[key]),
		})
	}
	return points
}
