package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/zhouzirui/mindsync/backend/internal/logging"
	"github.com/zhouzirui/mindsync/backend/internal/model/user"
	"github.com/zhouzirui/mindsync/backend/internal/service/auth"
	"github.com/zhouzirui/mindsync/backend/pkg/utils"
)

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (user.User, error)
}

type ctxKey int

const userKey ctxKey = iota

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, u user.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(userKey).(user.User)
	return u, ok
}

// UserID returns the authenticated user id or "".
func UserID(ctx context.Context) string {
	u, _ := UserFromContext(ctx)
	return u.ID
}

// Authenticate 校验 Bearer 令牌。websocket 握手无法携带请求头，因此也接受 token 查询参数。
func Authenticate(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				utils.RespondErrorCode(w, http.StatusUnauthorized, "NO_TOKEN", "No token, authorization denied")
				return
			}

			u, err := a.Authenticate(r.Context(), token)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
			case errors.Is(err, auth.ErrTokenExpired):
				utils.RespondErrorCode(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token expired")
			case errors.Is(err, auth.ErrInvalidToken):
				utils.RespondErrorCode(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
			default:
				logging.Ctx(r.Context()).Error().Err(err).Msg("[auth] authentication failed")
				utils.RespondErrorCode(w, http.StatusInternalServerError, "AUTH_ERROR", "Authentication failed")
			}
		})
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
