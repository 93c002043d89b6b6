package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/markaz-adp-api/internal/dto"
	"github.com/noah-isme/markaz-adp-api/internal/models"
	"github.com/noah-isme/markaz-adp-api/internal/validation"
	appErrors "github.com/noah-isme/markaz-adp-api/pkg/errors"
)

type mockAuthRepo struct {
	users      map[string]*models.User
	emailIndex map[string]string
	tokens     map[string]*models.RefreshToken

	passwordChanges int
	revokedAll      []string
	auditLogs       []models.AuditLog
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if id, ok := m.emailIndex[email]; ok {
		return m.FindByID(ctx, id)
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) Update(ctx context.Context, user *models.User) error {
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if user, ok := m.users[id]; ok {
		user.LastLogin = &ts
	}
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if user, ok := m.users[id]; ok {
		user.PasswordHash = passwordHash
		user.UpdatedAt = updatedAt
	}
	m.passwordChanges++
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	for _, token := range m.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.tokens == nil {
		m.tokens = make(map[string]*models.RefreshToken)
	}
	cp := *token
	m.tokens[token.Token] = &cp
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := m.tokens[token]; ok {
		cp := *stored
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.tokens {
		if token.ID == id {
			token.Revoked = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, *log)
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *mockAuthRepo, *models.User) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        "admin@markaz.example",
		PasswordHash: string(hash),
		FullName:     "Admin One",
		Role:         models.RoleAdmin,
		Phone:        "0511111111",
		Active:       true,
	}
	repo := &mockAuthRepo{
		users:      map[string]*models.User{user.ID: user},
		emailIndex: map[string]string{user.Email: user.ID},
	}
	service := NewAuthService(repo, validation.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "markaz-adp-api",
	})
	return service, repo, user
}

func TestAuthServiceLogin(t *testing.T) {
	service, repo, user := newAuthFixture(t)

	resp, err := service.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, user.ID, resp.User.ID)
	assert.Len(t, repo.tokens, 1)

	claims, err := service.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	service, _, user := newAuthFixture(t)

	_, err := service.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "wrong-password",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	service, repo, user := newAuthFixture(t)
	repo.users[user.ID].Active = false

	_, err := service.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "secret123",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	service, repo, user := newAuthFixture(t)

	resp, err := service.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "secret123",
	})
	require.NoError(t, err)

	refreshed, err := service.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: resp.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, resp.RefreshToken, refreshed.RefreshToken)

	// the used token is single-use
	assert.True(t, repo.tokens[resp.RefreshToken].Revoked)
	_, err = service.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: resp.RefreshToken,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshExpiredToken(t *testing.T) {
	service, repo, user := newAuthFixture(t)
	repo.tokens = map[string]*models.RefreshToken{
		"stale": {
			ID:        uuid.NewString(),
			UserID:    user.ID,
			Token:     "stale",
			ExpiresAt: time.Now().UTC().Add(-time.Hour),
		},
	}

	_, err := service.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceChangePassword(t *testing.T) {
	service, repo, user := newAuthFixture(t)

	err := service.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{
		OldPassword: "secret123",
		NewPassword: "fresh-secret",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.passwordChanges)
	assert.Equal(t, []string{user.ID}, repo.revokedAll)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users[user.ID].PasswordHash), []byte("fresh-secret")))
}

func TestAuthServiceChangePasswordWrongOld(t *testing.T) {
	service, repo, user := newAuthFixture(t)

	err := service.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "fresh-secret",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.passwordChanges)
}

func TestAuthServiceUpdateProfile(t *testing.T) {
	service, repo, user := newAuthFixture(t)

	updated, err := service.UpdateProfile(context.Background(), user.ID, dto.UpdateProfileRequest{
		FullName: "Admin Renamed",
		Phone:    "0522222222",
	})
	require.NoError(t, err)
	assert.Equal(t, "Admin Renamed", updated.FullName)
	assert.Equal(t, "0522222222", updated.Phone)
	assert.Equal(t, user.Email, updated.Email)
	assert.Equal(t, "Admin Renamed", repo.users[user.ID].FullName)
}

func TestAuthServiceUpdateProfileBadPhone(t *testing.T) {
	service, _, user := newAuthFixture(t)

	_, err := service.UpdateProfile(context.Background(), user.ID, dto.UpdateProfileRequest{
		FullName: "Admin Renamed",
		Phone:    "12345",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
