package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/zhouzirui/mindsync/backend/internal/model/user"
	"github.com/zhouzirui/mindsync/backend/pkg/apperr"
)

func newTestService(t *testing.T) (*Service, *user.MemoryStore) {
	t.Helper()
	tokens, err := NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)
	users := user.NewMemoryStore()
	svc := NewService(users, tokens)
	svc.cost = bcrypt.MinCost
	return svc, users
}

func TestRegisterAndLogin(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Name: " Jane ", Email: "Jane@Example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "Jane", res.User.Name)
	assert.Equal(t, "jane@example.com", res.User.Email)
	assert.NotEmpty(t, res.Token)

	stored, err := users.FindByID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", stored.PasswordHash)

	login, err := svc.Login(ctx, LoginInput{Email: "JANE@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, login.User.ID)

	u, err := svc.Authenticate(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, u.ID)
}

func TestRegisterValidationAndConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@example.com", Password: "12345"})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "short password: %v", err)

	_, err = svc.Register(ctx, RegisterInput{Name: "A", Email: "not-an-email", Password: "123456"})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "bad email: %v", err)

	_, err = svc.Register(ctx, RegisterInput{Name: "A", Email: "a@example.com", Password: "123456"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Name: "B", Email: "A@example.com", Password: "654321"})
	assert.True(t, apperr.Is(err, apperr.KindConflict), "duplicate: %v", err)
}

func TestLoginRejectsBadCredentialsUniformly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@example.com", Password: "123456"})
	require.NoError(t, err)

	_, wrongPassword := svc.Login(ctx, LoginInput{Email: "a@example.com", Password: "nope!!"})
	_, unknownEmail := svc.Login(ctx, LoginInput{Email: "b@example.com", Password: "123456"})

	for _, err := range []error{wrongPassword, unknownEmail} {
		var appErr *apperr.Error
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, apperr.KindUnauthorized, appErr.Kind)
		assert.Equal(t, badCredentials, appErr.Message)
	}
}

func TestDemoLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.DemoLogin(ctx, DemoLoginInput{})
	require.NoError(t, err)
	assert.True(t, res.User.IsDemo)
	assert.Equal(t, "Demo User", res.User.Name)

	named, err := svc.DemoLogin(ctx, DemoLoginInput{Username: "Kai"})
	require.NoError(t, err)
	assert.Equal(t, "Kai", named.User.Name)
	assert.NotEqual(t, res.User.ID, named.User.ID)

	claims, err := svc.tokens.Parse(named.Token)
	require.NoError(t, err)
	assert.True(t, claims.Demo)
	assert.Equal(t, named.User.ID, claims.Subject)
}

func TestTokenExpiredAndTampered(t *testing.T) {
	tokens, err := NewTokenManager("test-secret", time.Minute)
	require.NoError(t, err)

	tokens.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := tokens.Issue("u1", false)
	require.NoError(t, err)
	tokens.now = time.Now

	_, err = tokens.Parse(expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = tokens.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewTokenManager("other-secret", time.Minute)
	require.NoError(t, err)
	foreign, _, err := other.Issue("u1", false)
	require.NoError(t, err)
	_, err = tokens.Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRejectsOtherAlgorithms(t *testing.T) {
	tokens, err := NewTokenManager("test-secret", time.Minute)
	require.NoError(t, err)

	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tokens.Parse(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)
	token, _, err := svc.tokens.Issue("ghost", false)
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	_, err := NewTokenManager("", time.Hour)
	assert.Error(t, err)
}
