package bi

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	pkgerrors "github.com/imobcrm/crm-backend/pkg/errors"
	"github.com/stretchr/testify/require"
)

func ids(clients []models.Client) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(clients))
	for _, c := range clients {
		out = append(out, c.ID)
	}
	return out
}

func TestFilterPopulationWindowIsInclusive(t *testing.T) {
	q := window(1, 3)
	onStart := newClient(enums.ClientStatusInteressado, []models.ClientEvent{event(enums.TimelineObservacao, q.Start)})
	onEnd := newClient(enums.ClientStatusInteressado, []models.ClientEvent{event(enums.TimelineObservacao, q.End)})
	before := newClient(enums.ClientStatusInteressado, []models.ClientEvent{event(enums.TimelineObservacao, at(0, 23))})
	after := newClient(enums.ClientStatusInteressado, []models.ClientEvent{event(enums.TimelineLigacao, at(4, 0))})
	noEvents := newClient(enums.ClientStatusInteressado, nil)

	got := filterPopulation([]models.Client{onStart, onEnd, before, after, noEvents}, ClientQuery{Query: q})
	require.Equal(t, []uuid.UUID{onStart.ID, onEnd.ID}, ids(got))
}

func TestFilterPopulationOwnership(t *testing.T) {
	q := window(0, 2)
	events := func() []models.ClientEvent {
		return []models.ClientEvent{event(enums.TimelineObservacao, at(1, 9))}
	}
	a := newClient(enums.ClientStatusInteressado, events(), ownedBy(ownerA))
	b := newClient(enums.ClientStatusInteressado, events(), ownedBy(ownerB))
	pool := newClient(enums.ClientStatusPrimeiroAtendimento, events(), unassigned())
	all := []models.Client{a, b, pool}

	t.Run("no owners excludes the pool", func(t *testing.T) {
		got := filterPopulation(all, ClientQuery{Query: q})
		require.Equal(t, []uuid.UUID{a.ID, b.ID}, ids(got))
	})

	t.Run("owner set restricts", func(t *testing.T) {
		q := q
		q.OwnerIDs = []uuid.UUID{ownerB}
		got := filterPopulation(all, ClientQuery{Query: q})
		require.Equal(t, []uuid.UUID{b.ID}, ids(got))
	})

	t.Run("pool only when asked for", func(t *testing.T) {
		q := q
		q.IncludeUnassigned = true
		got := filterPopulation(all, ClientQuery{Query: q})
		require.Equal(t, []uuid.UUID{a.ID, b.ID, pool.ID}, ids(got))

		q.OwnerIDs = []uuid.UUID{ownerA}
		got = filterPopulation(all, ClientQuery{Query: q})
		require.Equal(t, []uuid.UUID{a.ID, pool.ID}, ids(got))
	})
}

func TestFilterPopulationNarrowing(t *testing.T) {
	q := window(0, 5)
	sold := newClient(enums.ClientStatusVendaGerada, []models.ClientEvent{event(enums.TimelineVendaGerada, at(2, 0))})
	// sale outside the window, but another event inside it
	soldEarlier := newClient(enums.ClientStatusVendaGerada, []models.ClientEvent{
		event(enums.TimelineVendaGerada, at(-3, 0)),
		event(enums.TimelineObservacao, at(1, 0)),
	})
	docs := newClient(enums.ClientStatusDocumentacaoRecebida, []models.ClientEvent{event(enums.TimelineCNE, at(3, 0))})
	all := []models.Client{sold, soldEarlier, docs, sold}

	got := filterPopulation(all, q.withEventType(enums.TimelineVendaGerada))
	require.Equal(t, []uuid.UUID{sold.ID}, ids(got), "duplicates are dropped")

	got = filterPopulation(all, q.withStatuses(enums.DocumentationStatuses...))
	require.Equal(t, []uuid.UUID{docs.ID}, ids(got))
}

func TestQueryValidate(t *testing.T) {
	require.NoError(t, window(0, 0).Validate())

	err := Query{End: epoch}.Validate()
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = Query{Start: at(2, 0), End: at(1, 0)}.Validate()
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestQueryValidateBoundsWindowWidth(t *testing.T) {
	require.NoError(t, window(0, MaxRangeDays-1).Validate())

	err := window(0, MaxRangeDays).Validate()
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Equal(t, MaxRangeDays, pkgerrors.As(err).Details().(map[string]any)["maxRangeDays"])

	far := Query{Start: EarliestDate, End: time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)}
	require.True(t, pkgerrors.IsCode(far.Validate(), pkgerrors.CodeValidation))
}

func TestCheckWindowRejectsDatesBeforeEarliest(t *testing.T) {
	first := time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	err := CheckWindow(first, first.Add(24*time.Hour))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Contains(t, err.Error(), "earliest")

	require.NoError(t, CheckWindow(EarliestDate, EarliestDate.AddDate(0, 0, 30)))
}
