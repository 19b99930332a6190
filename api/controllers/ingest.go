package controllers

import (
	"net/http"

	"github.com/imobcrm/crm-backend/api/responses"
	"github.com/imobcrm/crm-backend/api/validators"
	"github.com/imobcrm/crm-backend/internal/ingest"
	"github.com/imobcrm/crm-backend/pkg/logger"
)

// IngestLead receives a lead from an external form or ad platform. Unknown
// fields are ignored since senders attach their own tracking keys.
func IngestLead(svc ingest.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body ingest.ExternalLeadInput
		if err := validators.DecodeLenientJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		receipt, err := svc.CreateExternalLead(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, receipt)
	}
}
