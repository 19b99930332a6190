package users

import (
	"context"
	"fmt"

	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	pkgerrors "github.com/imobcrm/crm-backend/pkg/errors"
)

type brokerLister interface {
	ListByRole(ctx context.Context, role enums.UserRole) ([]models.User, error)
}

// Service exposes user directory reads.
type Service interface {
	ListBrokers(ctx context.Context, callerRole enums.UserRole) ([]BrokerDTO, error)
}

type service struct {
	repo brokerLister
}

func NewService(repo brokerLister) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{repo: repo}, nil
}

// ListBrokers returns the sales agents. Only supervisors may list them.
func (s *service) ListBrokers(ctx context.Context, callerRole enums.UserRole) ([]BrokerDTO, error) {
	if !callerRole.IsSupervisor() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins and managers list brokers")
	}
	rows, err := s.repo.ListByRole(ctx, enums.UserRoleUser)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list brokers")
	}
	out := make([]BrokerDTO, 0, len(rows))
	for _, u := range rows {
		out = append(out, BrokerDTO{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	return out, nil
}
