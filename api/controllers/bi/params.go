package bi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/api/middleware"
	"github.com/imobcrm/crm-backend/api/validators"
	"github.com/imobcrm/crm-backend/internal/bi"
	pkgerrors "github.com/imobcrm/crm-backend/pkg/errors"
)

// resolveQuery builds the aggregation query from the request. Brokers are
// always scoped to themselves; supervisors may pass any owners.
func resolveQuery(r *http.Request) (bi.Query, error) {
	userID, role, ok := middleware.Principal(r.Context())
	if !ok {
		return bi.Query{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	start, hasStart, err := validators.ParseQueryDate(r, "startDate", false)
	if err != nil {
		return bi.Query{}, err
	}
	end, hasEnd, err := validators.ParseQueryDate(r, "endDate", true)
	if err != nil {
		return bi.Query{}, err
	}
	if !hasStart || !hasEnd {
		return bi.Query{}, pkgerrors.New(pkgerrors.CodeValidation, "startDate and endDate are required")
	}

	if err := bi.CheckWindow(start, end); err != nil {
		return bi.Query{}, err
	}

	q := bi.Query{Start: start, End: end}

	if !role.IsSupervisor() {
		q.OwnerIDs = []uuid.UUID{userID}
		return q, nil
	}

	owners, err := validators.ParseQueryUUIDs(r, "ownerIds")
	if err != nil {
		return bi.Query{}, err
	}
	if len(owners) == 0 {
		if owners, err = validators.ParseQueryUUIDs(r, "userId"); err != nil {
			return bi.Query{}, err
		}
	}
	q.OwnerIDs = owners

	if q.IncludeUnassigned, err = validators.ParseQueryBool(r, "includeUnassigned"); err != nil {
		return bi.Query{}, err
	}
	return q, nil
}
