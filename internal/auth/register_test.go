package auth

import (
	"context"
	"testing"

	"github.com/imobcrm/crm-backend/pkg/config"
	"github.com/imobcrm/crm-backend/pkg/db"
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	pkgerrors "github.com/imobcrm/crm-backend/pkg/errors"
	"github.com/imobcrm/crm-backend/pkg/logger"
	"github.com/imobcrm/crm-backend/pkg/outbox"
	"github.com/imobcrm/crm-backend/pkg/security"
	"github.com/stretchr/testify/require"
)

func newRegisterService(t *testing.T) (RegisterService, *db.Client) {
	t.Helper()
	conn, err := db.OpenInMemory(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.User{}, &models.OutboxEvent{}))
	client := db.NewFromConn(conn)

	svc, err := NewRegisterService(RegisterServiceParams{
		Tx:             client,
		Outbox:         outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		PasswordConfig: config.PasswordConfig{},
	})
	require.NoError(t, err)
	return svc, client
}

func TestRegisterCreatesBroker(t *testing.T) {
	svc, client := newRegisterService(t)

	dto, err := svc.Register(context.Background(), RegisterRequest{
		Name:     " Diego ",
		Email:    "Diego@Imob.com",
		Password: "long-enough",
	})
	require.NoError(t, err)
	require.Equal(t, "diego@imob.com", dto.Email)
	require.Equal(t, enums.UserRoleUser, dto.Role)

	var stored models.User
	require.NoError(t, client.DB().First(&stored, "id = ?", dto.ID).Error)
	require.Equal(t, "Diego", stored.Name)
	ok, err := security.VerifyPassword("long-enough", stored.PasswordHash)
	require.NoError(t, err)
	require.True(t, ok)

	var evt models.OutboxEvent
	require.NoError(t, client.DB().First(&evt).Error)
	require.Equal(t, enums.EventUserRegistered, evt.EventType)
	require.Equal(t, dto.ID, evt.AggregateID)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, client := newRegisterService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Name: "A", Email: "dup@imob.com", Password: "long-enough"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterRequest{Name: "B", Email: "DUP@imob.com", Password: "long-enough"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var events int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&events).Error)
	require.EqualValues(t, 1, events)
}

func TestRegisterValidatesInput(t *testing.T) {
	svc, _ := newRegisterService(t)
	_, err := svc.Register(context.Background(), RegisterRequest{Email: "x@imob.com", Password: "pw"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
