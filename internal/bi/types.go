package bi

import (
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/pkg/enums"
	pkgerrors "github.com/imobcrm/crm-backend/pkg/errors"
)

// Query selects the client population an aggregation runs over: clients with
// at least one timeline event inside [Start, End], optionally limited to a set
// of owners.
type Query struct {
	Start    time.Time
	End      time.Time
	OwnerIDs []uuid.UUID
	// IncludeUnassigned admits pool records (nil owner), which are otherwise excluded.
	IncludeUnassigned bool
}

// MaxRangeDays caps the calendar days a window may span. The conversion series
// emits one row per day, so the cap bounds the response size.
const MaxRangeDays = 1830

// EarliestDate is the lower bound for startDate. It keeps explicit dates clear
// of the zero time, which Validate reads as unset.
var EarliestDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// Validate rejects a missing, inverted or oversized date range.
func (q Query) Validate() error {
	if q.Start.IsZero() || q.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "startDate and endDate are required")
	}
	return CheckWindow(q.Start, q.End)
}

// CheckWindow validates bounds the caller knows were supplied.
func CheckWindow(start, end time.Time) error {
	if start.Before(EarliestDate) {
		return pkgerrors.New(pkgerrors.CodeValidation, "startDate is before the earliest supported date").
			WithDetails(map[string]any{"startDate": start, "earliestDate": EarliestDate.Format(time.DateOnly)})
	}
	if end.Before(start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "endDate must not be before startDate").
			WithDetails(map[string]any{"startDate": start, "endDate": end})
	}
	if days := spanDays(start, end); days > MaxRangeDays {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "date range spans %d days", days).
			WithDetails(map[string]any{"startDate": start, "endDate": end, "maxRangeDays": MaxRangeDays})
	}
	return nil
}

// spanDays counts the UTC calendar days touched by [start, end].
func spanDays(start, end time.Time) int {
	return int(startOfDay(end).Sub(startOfDay(start)).Hours()/24) + 1
}

// Contains reports whether t falls inside the inclusive window.
func (q Query) Contains(t time.Time) bool {
	return !t.Before(q.Start) && !t.After(q.End)
}

// ClientQuery narrows a Query for a single storage read.
type ClientQuery struct {
	Query
	// EventType keeps clients holding an event of this type inside the window.
	EventType *enums.TimelineEventType
	// Statuses keeps clients whose current status is listed.
	Statuses []enums.ClientStatus
}

func (q Query) withEventType(t enums.TimelineEventType) ClientQuery {
	return ClientQuery{Query: q, EventType: &t}
}

func (q Query) withStatuses(statuses ...enums.ClientStatus) ClientQuery {
	return ClientQuery{Query: q, Statuses: statuses}
}

// KPIs is the headline sales dashboard.
type KPIs struct {
	TotalVendas          int64   `json:"totalVendas"`
	VGVTotal             float64 `json:"vgvTotal"`
	TicketMedio          float64 `json:"ticketMedio"`
	TempoMedioFechamento int64   `json:"tempoMedioFechamento"`
	NumeroLigacoes       int64   `json:"numeroLigacoes"`
	NumeroDocumentos     int64   `json:"numeroDocumentos"`
}

// Funnel holds stage reach counts and adjacent-stage conversion percentages.
type Funnel struct {
	Ligacoes     int64       `json:"ligacoes"`
	Atendimentos int64       `json:"atendimentos"`
	Interessados int64       `json:"interessados"`
	Documentacao int64       `json:"documentacao"`
	Vendas       int64       `json:"vendas"`
	Conversoes   Conversions `json:"conversoes"`
}

type Conversions struct {
	LigacaoParaAtendimento      int64 `json:"ligacaoParaAtendimento"`
	AtendimentoParaInteressado  int64 `json:"atendimentoParaInteressado"`
	InteressadoParaDocumentacao int64 `json:"interessadoParaDocumentacao"`
	DocumentacaoParaVenda       int64 `json:"documentacaoParaVenda"`
}

// SeriesPoint is one UTC calendar day of the conversion series.
type SeriesPoint struct {
	Date       string `json:"date"`
	Leads      int64  `json:"leads"`
	Vendas     int64  `json:"vendas"`
	Conversion int64  `json:"conversion"`
}
