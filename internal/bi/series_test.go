package bi

import (
	"testing"
	"time"

	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/stretchr/testify/require"
)

func TestBuildSeries_SaleClosedOnLaterDay(t *testing.T) {
	q := window(1, 3)
	c := newClient(enums.ClientStatusVendaGerada,
		[]models.ClientEvent{event(enums.TimelineVendaGerada, at(3, 15))},
		withCreatedAt(at(1, 9)), withSale("250000"))

	got := buildSeries([]models.Client{c}, q)
	require.Equal(t, []SeriesPoint{
		{Date: "2025-03-02", Leads: 1, Vendas: 0, Conversion: 0},
		{Date: "2025-03-03", Leads: 0, Vendas: 0, Conversion: 0},
		{Date: "2025-03-04", Leads: 0, Vendas: 1, Conversion: 0},
	}, got)
}

func TestBuildSeries_DenseRowCount(t *testing.T) {
	q := window(0, 30)
	got := buildSeries(nil, q)
	require.Len(t, got, 31)
	require.Equal(t, "2025-03-01", got[0].Date)
	require.Equal(t, "2025-03-31", got[30].Date)
	for _, p := range got {
		require.Zero(t, p.Leads)
		require.Zero(t, p.Conversion)
	}

	single := buildSeries(nil, Query{Start: at(4, 8), End: at(4, 9)})
	require.Len(t, single, 1)
}

func TestBuildSeries_SameDayConversion(t *testing.T) {
	q := window(0, 0)
	var clients []models.Client
	for i := 0; i < 4; i++ {
		clients = append(clients, newClient(enums.ClientStatusPrimeiroAtendimento,
			[]models.ClientEvent{event(enums.TimelineObservacao, at(0, 8))}, withCreatedAt(at(0, 8))))
	}
	clients = append(clients, newClient(enums.ClientStatusVendaGerada,
		[]models.ClientEvent{event(enums.TimelineVendaGerada, at(0, 18))}, withCreatedAt(at(-10, 0))))

	got := buildSeries(clients, q)
	require.Equal(t, []SeriesPoint{{Date: "2025-03-01", Leads: 4, Vendas: 1, Conversion: 25}}, got)
}

func TestBuildSeries_LeadDateFallsBackToFirstEvent(t *testing.T) {
	q := window(0, 2)
	legacy := newClient(enums.ClientStatusInteressado, []models.ClientEvent{
		event(enums.TimelineLigacao, at(2, 4)),
		event(enums.TimelineObservacao, at(1, 23)),
	})

	got := buildSeries([]models.Client{legacy}, q)
	require.EqualValues(t, 0, got[0].Leads)
	require.EqualValues(t, 1, got[1].Leads)
	require.EqualValues(t, 0, got[2].Leads)
}

func TestBuildSeries_BucketsInUTC(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*60*60)
	q := Query{
		Start: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, time.March, 2, 23, 59, 59, 0, time.UTC),
	}
	// 22:00 local on March 1st is 01:00 UTC on March 2nd
	c := newClient(enums.ClientStatusInteressado,
		[]models.ClientEvent{event(enums.TimelineObservacao, time.Date(2025, time.March, 1, 22, 0, 0, 0, saoPaulo))},
	)

	got := buildSeries([]models.Client{c}, q)
	require.Len(t, got, 2)
	require.EqualValues(t, 0, got[0].Leads)
	require.EqualValues(t, 1, got[1].Leads)
}
