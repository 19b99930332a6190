package bi

import (
	"testing"

	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/stretchr/testify/require"
)

func TestComputeFunnel_CallsToFirstContact(t *testing.T) {
	q := window(0, 9)
	var clients []models.Client
	statuses := []enums.ClientStatus{
		enums.ClientStatusPrimeiroAtendimento,
		enums.ClientStatusPrimeiroAtendimento,
		enums.ClientStatusInteressado,
		enums.ClientStatusArquivado,
	}
	for _, status := range statuses {
		clients = append(clients, newClient(status, []models.ClientEvent{event(enums.TimelineLigacao, at(2, 0))}))
	}
	for i := 0; i < 6; i++ {
		clients = append(clients, newClient(enums.ClientStatusArquivado, []models.ClientEvent{event(enums.TimelineObservacao, at(3, 0))}))
	}

	got := computeFunnel(filterPopulation(clients, ClientQuery{Query: q}))
	require.EqualValues(t, 4, got.Ligacoes)
	require.EqualValues(t, 2, got.Atendimentos)
	require.EqualValues(t, 50, got.Conversoes.LigacaoParaAtendimento)
	require.EqualValues(t, 1, got.Interessados)
	require.EqualValues(t, 50, got.Conversoes.AtendimentoParaInteressado)
	require.Zero(t, got.Documentacao)
	require.Zero(t, got.Conversoes.InteressadoParaDocumentacao)
	require.Zero(t, got.Conversoes.DocumentacaoParaVenda, "zero source stage yields zero")
}

func TestComputeFunnel_EmptyIsZero(t *testing.T) {
	require.Equal(t, Funnel{}, computeFunnel(nil))
}

func TestComputeFunnel_EventsAnywhereInTimeline(t *testing.T) {
	q := window(10, 12)
	c := newClient(enums.ClientStatusDocumentacaoRecebida, []models.ClientEvent{
		event(enums.TimelineLigacao, at(1, 0)),
		event(enums.TimelineVendaGerada, at(30, 0)),
		event(enums.TimelineObservacao, at(11, 0)),
	})

	got := computeFunnel(filterPopulation([]models.Client{c}, ClientQuery{Query: q}))
	require.EqualValues(t, 1, got.Ligacoes)
	require.EqualValues(t, 1, got.Vendas)
	require.EqualValues(t, 1, got.Documentacao)
	require.EqualValues(t, 100, got.Conversoes.DocumentacaoParaVenda)
}

func TestComputeFunnel_RatesStayInRangeForNarrowingFunnel(t *testing.T) {
	var clients []models.Client
	add := func(n int, status enums.ClientStatus, events ...enums.TimelineEventType) {
		for i := 0; i < n; i++ {
			var timeline []models.ClientEvent
			for _, typ := range events {
				timeline = append(timeline, event(typ, at(0, 12)))
			}
			clients = append(clients, newClient(status, timeline))
		}
	}
	add(7, enums.ClientStatusPrimeiroAtendimento, enums.TimelineLigacao)
	add(3, enums.ClientStatusInteressado, enums.TimelineLigacao)
	add(2, enums.ClientStatusDocumentacaoRecebida, enums.TimelineLigacao)
	add(1, enums.ClientStatusVendaGerada, enums.TimelineLigacao, enums.TimelineVendaGerada)

	got := computeFunnel(clients)
	require.EqualValues(t, 13, got.Ligacoes)
	for _, r := range []int64{
		got.Conversoes.LigacaoParaAtendimento,
		got.Conversoes.AtendimentoParaInteressado,
		got.Conversoes.InteressadoParaDocumentacao,
		got.Conversoes.DocumentacaoParaVenda,
	} {
		require.GreaterOrEqual(t, r, int64(0))
		require.LessOrEqual(t, r, int64(100))
	}
	require.EqualValues(t, 54, got.Conversoes.LigacaoParaAtendimento)
	require.EqualValues(t, 43, got.Conversoes.AtendimentoParaInteressado)
	require.EqualValues(t, 67, got.Conversoes.InteressadoParaDocumentacao)
	require.EqualValues(t, 50, got.Conversoes.DocumentacaoParaVenda)
}

func TestRate(t *testing.T) {
	require.EqualValues(t, 0, rate(0, 5))
	require.EqualValues(t, 50, rate(4, 2))
	require.EqualValues(t, 33, rate(3, 1))
	require.EqualValues(t, 67, rate(3, 2))
	require.EqualValues(t, 150, rate(2, 3))
}
