package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/zhouzirui/mindsync/backend/internal/logging"
	"github.com/zhouzirui/mindsync/backend/internal/model/user"
	"github.com/zhouzirui/mindsync/backend/internal/validation"
	"github.com/zhouzirui/mindsync/backend/pkg/apperr"
)

const (
	bcryptCost      = 10
	defaultDemoName = "Demo User"
	badCredentials  = "invalid email or password"
)

type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type DemoLoginInput struct {
	Username string `json:"username" validate:"max=50"`
}

// Result 登录/注册成功后返回给客户端的内容
type Result struct {
	User      user.User `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service handles accounts and token issuance.
type Service struct {
	users  user.Store
	tokens *TokenManager
	cost   int
}

func NewService(users user.Store, tokens *TokenManager) *Service {
	return &Service{users: users, tokens: tokens, cost: bcryptCost}
}

// Register 创建账户并签发令牌
func (s *Service) Register(ctx context.Context, in RegisterInput) (Result, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = user.NormalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return Result{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Result{}, apperr.New(apperr.KindStorage, "failed to hash password", err)
	}

	now := time.Now().UTC()
	u := user.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Profile:      user.Profile{Preferences: user.Preferences{NotificationsEnabled: true}},
		LastActive:   &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return Result{}, apperr.New(apperr.KindConflict, "email already registered", nil)
		}
		return Result{}, apperr.Storage("failed to create user", err)
	}

	logging.Ctx(ctx).Info().Str("user_id", u.ID).Msg("[auth] user registered")
	return s.issue(u)
}

// Login 校验邮箱密码，未知邮箱与密码错误返回相同的提示。
func (s *Service) Login(ctx context.Context, in LoginInput) (Result, error) {
	in.Email = user.NormalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return Result{}, err
	}

	u, err := s.users.FindByEmail(ctx, in.Email)
	if errors.Is(err, user.ErrNotFound) {
		return Result{}, apperr.Unauthorized(badCredentials)
	}
	if err != nil {
		return Result{}, apperr.Storage("failed to load user", err)
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return Result{}, apperr.Unauthorized(badCredentials)
	}

	return s.issue(u)
}

// DemoLogin creates a throwaway account without credentials.
func (s *Service) DemoLogin(ctx context.Context, in DemoLoginInput) (Result, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validation.Struct(in); err != nil {
		return Result{}, err
	}
	name := in.Username
	if name == "" {
		name = defaultDemoName
	}

	now := time.Now().UTC()
	u := user.User{
		ID:         uuid.NewString(),
		Name:       name,
		IsDemo:     true,
		Profile:    user.Profile{Preferences: user.Preferences{NotificationsEnabled: true}},
		LastActive: &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return Result{}, apperr.Storage("failed to create demo user", err)
	}

	logging.Ctx(ctx).Info().Str("user_id", u.ID).Msg("[auth] demo user created")
	return s.issue(u)
}

// Authenticate resolves a bearer token to its user. It returns ErrTokenExpired
// or an error wrapping ErrInvalidToken when the token cannot be trusted.
func (s *Service) Authenticate(ctx context.Context, token string) (user.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return user.User{}, err
	}
	u, err := s.users.FindByID(ctx, claims.Subject)
	if errors.Is(err, user.ErrNotFound) {
		return user.User{}, ErrInvalidToken
	}
	if err != nil {
		return user.User{}, apperr.Storage("failed to load user", err)
	}
	return u, nil
}

func (s *Service) issue(u user.User) (Result, error) {
	token, expires, err := s.tokens.Issue(u.ID, u.IsDemo)
	if err != nil {
		return Result{}, apperr.New(apperr.KindStorage, "failed to issue token", err)
	}
	return Result{User: u, Token: token, ExpiresAt: expires}, nil
}
