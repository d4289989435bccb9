package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mindsync/backend/internal/model/user"
	"github.com/zhouzirui/mindsync/backend/internal/service/auth"
	"github.com/zhouzirui/mindsync/backend/pkg/utils"
)

type stubAuthenticator map[string]error

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (user.User, error) {
	if err, ok := s[token]; ok {
		return user.User{}, err
	}
	return user.User{ID: "u-" + token}, nil
}

func TestAuthenticate(t *testing.T) {
	authenticator := stubAuthenticator{
		"expired": auth.ErrTokenExpired,
		"forged":  auth.ErrInvalidToken,
		"broken":  errors.New("db down"),
	}
	protected := Authenticate(authenticator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"userId": UserID(r.Context())})
	}))

	cases := []struct {
		name   string
		header string
		query  string
		status int
		code   string
	}{
		{"missing", "", "", http.StatusUnauthorized, "NO_TOKEN"},
		{"wrong scheme", "Basic abc", "", http.StatusUnauthorized, "NO_TOKEN"},
		{"expired", "Bearer expired", "", http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"forged", "Bearer forged", "", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"store failure", "Bearer broken", "", http.StatusInternalServerError, "AUTH_ERROR"},
		{"valid header", "Bearer good", "", http.StatusOK, ""},
		{"valid query", "", "good", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := "/api/meditation/stats"
			if tc.query != "" {
				target += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.code != "" {
				var body utils.ErrorBody
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tc.code, body.Code)
				return
			}
			assert.JSONEq(t, `{"userId":"u-good"}`, rec.Body.String())
		})
	}
}

func TestRateLimitByIP(t *testing.T) {
	handler := RateLimitByIP(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, statuses)
}

func TestRateLimitDisabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := RateLimitByIP(0, time.Minute)(next)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestLoggerPassesThrough(t *testing.T) {
	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
