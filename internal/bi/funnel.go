package bi

import (
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
)

// stageFlags marks which funnel gates a client has reached. Call and sale come
// from the whole timeline; the middle stages only see the current status.
type stageFlags struct {
	ligacao      bool
	atendimento  bool
	interessado  bool
	documentacao bool
	venda        bool
}

func flagsFor(c models.Client) stageFlags {
	return stageFlags{
		ligacao:      hasEventOfType(c, enums.TimelineLigacao),
		atendimento:  c.Status == enums.ClientStatusPrimeiroAtendimento,
		interessado:  c.Status == enums.ClientStatusInteressado,
		documentacao: c.Status == enums.ClientStatusDocumentacaoRecebida,
		venda:        hasEventOfType(c, enums.TimelineVendaGerada),
	}
}

func computeFunnel(population []models.Client) Funnel {
	var f Funnel
	for _, c := range population {
		flags := flagsFor(c)
		f.Ligacoes += boolCount(flags.ligacao)
		f.Atendimentos += boolCount(flags.atendimento)
		f.Interessados += boolCount(flags.interessado)
		f.Documentacao += boolCount(flags.documentacao)
		f.Vendas += boolCount(flags.venda)
	}
	f.Conversoes = Conversions{
		LigacaoParaAtendimento:      rate(f.Ligacoes, f.Atendimentos),
		AtendimentoParaInteressado:  rate(f.Atendimentos, f.Interessados),
		InteressadoParaDocumentacao: rate(f.Interessados, f.Documentacao),
		DocumentacaoParaVenda:       rate(f.Documentacao, f.Vendas),
	}
	return f
}

func boolCount(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
