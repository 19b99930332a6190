package bi

import (
	"math"
	"time"

	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

const msPerDay = float64(24 * time.Hour / time.Millisecond)

// saleGroup accumulates the in-window sale events of one client.
type saleGroup struct {
	client    *models.Client
	count     int64
	firstSale time.Time
}

type salesSummary struct {
	total   int64
	vgv     decimal.Decimal
	closing []time.Duration
}

// reduceSales runs flatten, in-window VendaGerada filter, group by client,
// then reduce. Each matching event attributes the client's whole sale value.
func reduceSales(clients []models.Client, q Query) salesSummary {
	groups := map[*models.Client]*saleGroup{}
	var order []*saleGroup
	for _, row := range flatten(clients) {
		if row.event.Type != enums.TimelineVendaGerada || !q.Contains(row.event.OccurredAt) {
			continue
		}
		g, ok := groups[row.client]
		if !ok {
			g = &saleGroup{client: row.client, firstSale: row.event.OccurredAt}
			groups[row.client] = g
			order = append(order, g)
		}
		g.count++
		if row.event.OccurredAt.Before(g.firstSale) {
			g.firstSale = row.event.OccurredAt
		}
	}

	summary := salesSummary{vgv: decimal.Zero}
	for _, g := range order {
		summary.total += g.count
		summary.vgv = summary.vgv.Add(saleValue(g.client).Mul(decimal.NewFromInt(g.count)))
		first, ok := earliestEvent(g.client.Events)
		if !ok {
			continue
		}
		if elapsed := g.firstSale.Sub(first); elapsed > 0 {
			summary.closing = append(summary.closing, elapsed)
		}
	}
	return summary
}

func saleValue(c *models.Client) decimal.Decimal {
	if !c.SaleValue.Valid {
		return decimal.Zero
	}
	return c.SaleValue.Decimal
}

func ticketMedio(vgv decimal.Decimal, total int64) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return vgv.Div(decimal.NewFromInt(total)).Round(2)
}

// averageDays averages elapsed times in milliseconds and rounds to whole days.
func averageDays(elapsed []time.Duration) int64 {
	if len(elapsed) == 0 {
		return 0
	}
	var totalMs float64
	for _, e := range elapsed {
		totalMs += float64(e.Milliseconds())
	}
	return int64(math.Round(totalMs / float64(len(elapsed)) / msPerDay))
}

func countEventsInWindow(clients []models.Client, q Query, eventType enums.TimelineEventType) int64 {
	var n int64
	for _, row := range flatten(clients) {
		if row.event.Type == eventType && q.Contains(row.event.OccurredAt) {
			n++
		}
	}
	return n
}

func countDocumentation(clients []models.Client) int64 {
	var n int64
	for _, c := range clients {
		if c.Status.IsDocumentation() {
			n++
		}
	}
	return n
}

// computeKPIs reduces the three independently fetched populations.
func computeKPIs(q Query, sales, calls, docs []models.Client) KPIs {
	sales = filterPopulation(sales, q.withEventType(enums.TimelineVendaGerada))
	calls = filterPopulation(calls, q.withEventType(enums.TimelineLigacao))
	docs = filterPopulation(docs, q.withStatuses(enums.DocumentationStatuses...))

	summary := reduceSales(sales, q)
	return KPIs{
		TotalVendas:          summary.total,
		VGVTotal:             summary.vgv.InexactFloat64(),
		TicketMedio:          ticketMedio(summary.vgv, summary.total).InexactFloat64(),
		TempoMedioFechamento: averageDays(summary.closing),
		NumeroLigacoes:       countEventsInWindow(calls, q, enums.TimelineLigacao),
		NumeroDocumentos:     countDocumentation(docs),
	}
}
