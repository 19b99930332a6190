package bi

import (
	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/pkg/db/models"
)

func ownerMatches(owner *uuid.UUID, q Query) bool {
	if owner == nil {
		return q.IncludeUnassigned
	}
	if len(q.OwnerIDs) == 0 {
		return true
	}
	for _, id := range q.OwnerIDs {
		if id == *owner {
			return true
		}
	}
	return false
}

func inPopulation(c models.Client, q Query) bool {
	return ownerMatches(c.OwnerID, q) && hasEventInWindow(c, q, nil)
}

func matches(c models.Client, q ClientQuery) bool {
	if !inPopulation(c, q.Query) {
		return false
	}
	if q.EventType != nil && !hasEventInWindow(c, q.Query, q.EventType) {
		return false
	}
	if len(q.Statuses) == 0 {
		return true
	}
	for _, status := range q.Statuses {
		if c.Status == status {
			return true
		}
	}
	return false
}

// filterPopulation keeps the clients satisfying q, dropping duplicates a
// source may return.
func filterPopulation(clients []models.Client, q ClientQuery) []models.Client {
	seen := make(map[uuid.UUID]struct{}, len(clients))
	out := make([]models.Client, 0, len(clients))
	for _, c := range clients {
		if !matches(c, q) {
			continue
		}
		if c.ID != uuid.Nil {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
		}
		out = append(out, c)
	}
	return out
}
