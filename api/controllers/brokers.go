package controllers

import (
	"net/http"

	"github.com/imobcrm/crm-backend/api/middleware"
	"github.com/imobcrm/crm-backend/api/responses"
	"github.com/imobcrm/crm-backend/internal/users"
	pkgerrors "github.com/imobcrm/crm-backend/pkg/errors"
	"github.com/imobcrm/crm-backend/pkg/logger"
)

// ListBrokers returns the active corretores for assignment pickers.
func ListBrokers(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, role, ok := middleware.Principal(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		brokers, err := svc.ListBrokers(r.Context(), role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, brokers)
	}
}
