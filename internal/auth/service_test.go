package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pkgAuth "github.com/imobcrm/crm-backend/pkg/auth"
	"github.com/imobcrm/crm-backend/pkg/auth/session"
	"github.com/imobcrm/crm-backend/pkg/config"
	"github.com/imobcrm/crm-backend/pkg/db/models"
	"github.com/imobcrm/crm-backend/pkg/enums"
	pkgerrors "github.com/imobcrm/crm-backend/pkg/errors"
	"github.com/imobcrm/crm-backend/pkg/logger"
	"github.com/imobcrm/crm-backend/pkg/security"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var testJWT = config.JWTConfig{
	Secret:                 "secret",
	Issuer:                 "crm",
	ExpirationMinutes:      30,
	RefreshTokenTTLMinutes: 60,
}

type stubUserRepo struct {
	user        *models.User
	lastLogin   time.Time
	updatedHash string
}

func (s *stubUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s *stubUserRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s *stubUserRepo) UpdateLastLogin(_ context.Context, _ uuid.UUID, at time.Time) error {
	s.lastLogin = at
	return nil
}

func (s *stubUserRepo) UpdatePasswordHash(_ context.Context, _ uuid.UUID, hash string) error {
	s.updatedHash = hash
	return nil
}

// memoryStore backs the real session manager in tests.
type memoryStore struct {
	data map[string]string
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = value.(string)
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", session.ErrInvalidRefreshToken
	}
	return v, nil
}

func (m *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	return ok, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) AccessSessionKey(id string) string { return "crm:session:access:" + id }

func newTestService(t *testing.T, user *models.User) (Service, *stubUserRepo, *session.Manager) {
	t.Helper()
	repo := &stubUserRepo{user: user}
	mgr, err := session.NewManager(&memoryStore{data: map[string]string{}}, testJWT)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		SessionManager: mgr,
		JWTConfig:      testJWT,
		Logger:         logger.Nop(),
	})
	require.NoError(t, err)
	return svc, repo, mgr
}

func newUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	require.NoError(t, err)
	return &models.User{
		ID:           uuid.New(),
		Name:         "Carla",
		Email:        "carla@imob.com",
		PasswordHash: hash,
		Role:         enums.UserRoleManager,
		IsActive:     true,
	}
}

func TestLoginIssuesTokens(t *testing.T) {
	user := newUser(t, "s3cret-pass")
	svc, repo, mgr := newTestService(t, user)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: " CARLA@imob.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.RefreshToken)
	require.False(t, repo.lastLogin.IsZero())
	require.Equal(t, user.ID, resp.User.ID)

	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, enums.UserRoleManager, claims.Role)
	require.Equal(t, "carla@imob.com", claims.Email)

	live, err := mgr.HasSession(context.Background(), claims.ID)
	require.NoError(t, err)
	require.True(t, live)
}

func TestLoginRejectsBadCredentialsUniformly(t *testing.T) {
	user := newUser(t, "right")
	svc, _, _ := newTestService(t, user)

	_, wrongPassword := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: "wrong"})
	_, unknownEmail := svc.Login(context.Background(), LoginRequest{Email: "ghost@imob.com", Password: "right"})

	for _, err := range []error{wrongPassword, unknownEmail} {
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		require.Equal(t, pkgerrors.CodeUnauthorized, typed.Code())
		require.Equal(t, invalidCredentialsMessage, typed.Message())
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	user := newUser(t, "pw")
	user.IsActive = false
	svc, _, _ := newTestService(t, user)
	_, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: "pw"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("old-school"), bcrypt.MinCost)
	require.NoError(t, err)
	user := newUser(t, "unused")
	user.PasswordHash = string(legacy)
	svc, repo, _ := newTestService(t, user)

	_, err = svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: "old-school"})
	require.NoError(t, err)
	require.NotEmpty(t, repo.updatedHash)
	require.False(t, security.IsLegacyHash(repo.updatedHash))

	ok, err := security.VerifyPassword("old-school", repo.updatedHash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRefreshRotatesSession(t *testing.T) {
	user := newUser(t, "pw")
	svc, _, mgr := newTestService(t, user)
	ctx := context.Background()

	first, err := svc.Login(ctx, LoginRequest{Email: user.Email, Password: "pw"})
	require.NoError(t, err)
	oldClaims, err := pkgAuth.ParseAccessToken(testJWT, first.AccessToken)
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, RefreshRequest{AccessToken: first.AccessToken, RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	newClaims, err := pkgAuth.ParseAccessToken(testJWT, second.AccessToken)
	require.NoError(t, err)
	require.NotEqual(t, oldClaims.ID, newClaims.ID)

	live, err := mgr.HasSession(ctx, oldClaims.ID)
	require.NoError(t, err)
	require.False(t, live)

	// The consumed refresh token cannot be replayed.
	_, err = svc.Refresh(ctx, RefreshRequest{AccessToken: first.AccessToken, RefreshToken: first.RefreshToken})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestRefreshRejectsForeignToken(t *testing.T) {
	user := newUser(t, "pw")
	svc, _, _ := newTestService(t, user)
	_, err := svc.Refresh(context.Background(), RefreshRequest{AccessToken: "not-a-jwt", RefreshToken: "x"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestLogoutRevokesSession(t *testing.T) {
	user := newUser(t, "pw")
	svc, _, mgr := newTestService(t, user)
	ctx := context.Background()

	resp, err := svc.Login(ctx, LoginRequest{Email: user.Email, Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, resp.AccessToken))

	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	require.NoError(t, err)
	live, err := mgr.HasSession(ctx, claims.ID)
	require.NoError(t, err)
	require.False(t, live)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
