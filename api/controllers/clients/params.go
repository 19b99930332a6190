package clients

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/api/middleware"
	"github.com/imobcrm/crm-backend/api/validators"
	clientsvc "github.com/imobcrm/crm-backend/internal/clients"
	"github.com/imobcrm/crm-backend/pkg/enums"
	pkgerrors "github.com/imobcrm/crm-backend/pkg/errors"
	"github.com/imobcrm/crm-backend/pkg/pagination"
)

const maxSearchLen = 120

func actorFrom(r *http.Request) (clientsvc.Actor, error) {
	userID, role, ok := middleware.Principal(r.Context())
	if !ok {
		return clientsvc.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return clientsvc.Actor{UserID: userID, Role: role}, nil
}

func clientIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "clientId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid client id").WithDetails(map[string]any{"clientId": raw})
	}
	return id, nil
}

func listParams(r *http.Request) (clientsvc.ListParams, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return clientsvc.ListParams{}, err
	}
	query := r.URL.Query()
	params := clientsvc.ListParams{
		Params: pagination.Params{Limit: limit, Cursor: strings.TrimSpace(query.Get("cursor"))},
		Search: validators.SanitizeString(query.Get("search"), maxSearchLen),
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseClientStatus(raw)
		if err != nil {
			return clientsvc.ListParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		params.Status = &status
	}
	if query.Has("archived") {
		archived, err := validators.ParseQueryBool(r, "archived")
		if err != nil {
			return clientsvc.ListParams{}, err
		}
		params.Archived = &archived
	}
	owners, err := validators.ParseQueryUUIDs(r, "ownerId")
	if err != nil {
		return clientsvc.ListParams{}, err
	}
	if len(owners) > 0 {
		params.OwnerID = &owners[0]
	}
	return params, nil
}
