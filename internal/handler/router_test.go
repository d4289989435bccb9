package handler

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emotionmodel "github.com/zhouzirui/mindsync/backend/internal/model/emotion"
	meditationmodel "github.com/zhouzirui/mindsync/backend/internal/model/meditation"
	"github.com/zhouzirui/mindsync/backend/internal/model/user"
	"github.com/zhouzirui/mindsync/backend/internal/realtime"
	"github.com/zhouzirui/mindsync/backend/internal/service/auth"
	"github.com/zhouzirui/mindsync/backend/internal/service/coach"
	"github.com/zhouzirui/mindsync/backend/internal/service/community"
	"github.com/zhouzirui/mindsync/backend/internal/service/emotion"
	"github.com/zhouzirui/mindsync/backend/internal/service/meditation"
	"github.com/zhouzirui/mindsync/backend/pkg/utils"
)

type testAPI struct {
	t      *testing.T
	server *httptest.Server
}

func newTestAPI(t *testing.T, health func(*http.Request) error) *testAPI {
	t.Helper()
	ctx := context.Background()

	users := user.NewMemoryStore()
	tokens, err := auth.NewTokenManager("router-test-secret", time.Hour)
	require.NoError(t, err)

	medSvc := meditation.NewService(meditationmodel.NewMemoryStore(), users, meditation.Options{StatsTTL: time.Minute})
	t.Cleanup(medSvc.Close)
	coachSvc, err := coach.NewService(ctx, medSvc, nil)
	require.NoError(t, err)
	communitySvc := community.NewService(time.Minute)
	t.Cleanup(communitySvc.Close)

	hub := realtime.NewHub()
	medSvc.SetNotifier(hub)
	communitySvc.SetBroadcaster(hub)

	router := NewRouter(Dependencies{
		Auth:           auth.NewService(users, tokens),
		Users:          users,
		Meditation:     medSvc,
		Emotion:        emotion.NewService(emotionmodel.NewMemoryStore(), emotion.Options{}),
		Coach:          coachSvc,
		Community:      communitySvc,
		Hub:            hub,
		Health:         health,
		AllowedOrigins: []string{"http://localhost:3000"},
		AuthRateLimit:  100,
		AuthRateWindow: time.Minute,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testAPI{t: t, server: srv}
}

func (a *testAPI) do(method, path, token string, body any) (*http.Response, []byte) {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.send(req)
}

func (a *testAPI) send(req *http.Request) (*http.Response, []byte) {
	a.t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(a.t, err)
	return resp, buf.Bytes()
}

func (a *testAPI) demoToken(name string) string {
	a.t.Helper()
	resp, body := a.do(http.MethodPost, "/api/auth/demo-login", "", map[string]string{"username": name})
	require.Equal(a.t, http.StatusOK, resp.StatusCode, string(body))
	var res auth.Result
	require.NoError(a.t, json.Unmarshal(body, &res))
	return res.Token
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var e utils.ErrorBody
	require.NoError(t, json.Unmarshal(body, &e))
	return e.Code
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t, nil)

	resp, body := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, body = api.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "mindsync_ws_connections")

	down := newTestAPI(t, func(*http.Request) error { return errors.New("no primary") })
	resp, _ = down.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t, nil)
	resp, body := api.do(http.MethodGet, "/api/meditation/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "NO_TOKEN", errorCode(t, body))

	resp, body = api.do(http.MethodGet, "/api/meditation/stats", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", errorCode(t, body))
}

func TestRegisterLoginVerify(t *testing.T) {
	api := newTestAPI(t, nil)

	resp, body := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Mia", "email": "mia@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.NotContains(t, string(body), "passwordHash")

	resp, body = api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Mia", "email": "MIA@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", errorCode(t, body))

	resp, body = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "mia@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res auth.Result
	require.NoError(t, json.Unmarshal(body, &res))

	resp, body = api.do(http.MethodGet, "/api/auth/verify", res.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"valid":true`)

	resp, _ = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "mia@example.com", "password": "wrong!!",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = api.do(http.MethodPost, "/api/auth/register", "", "{not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t, nil)
	alice := api.demoToken("Alice")
	bob := api.demoToken("Bob")

	resp, body := api.do(http.MethodPost, "/api/meditation/sessions", alice, map[string]any{
		"sessionType": "body-scan", "title": "Evening scan", "duration": 1200, "moodBefore": "stressed",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var started meditationmodel.View
	require.NoError(t, json.Unmarshal(body, &started))
	assert.Equal(t, meditationmodel.StatusInProgress, started.Status)
	assert.Nil(t, started.Effectiveness)

	resp, body = api.do(http.MethodPost, "/api/meditation/sessions", alice, map[string]any{
		"sessionType": "yoga", "title": "x", "duration": 1200,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	path := "/api/meditation/sessions/" + started.ID
	resp, body = api.do(http.MethodGet, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))

	resp, body = api.do(http.MethodGet, "/api/coach/reflection/"+started.ID, alice, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE", errorCode(t, body))

	resp, body = api.do(http.MethodPost, path+"/complete", alice, map[string]any{
		"moodAfter": "calm", "focusScore": 8, "interruptions": 0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var completed meditationmodel.View
	require.NoError(t, json.Unmarshal(body, &completed))
	assert.Equal(t, meditationmodel.StatusCompleted, completed.Status)
	require.NotNil(t, completed.Effectiveness)
	assert.Equal(t, 100, *completed.Effectiveness)

	resp, body = api.do(http.MethodPost, path+"/complete", alice, map[string]any{"moodAfter": "calm"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE", errorCode(t, body))

	resp, body = api.do(http.MethodGet, "/api/meditation/stats", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats meditation.Stats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 1, stats.CompletedSessions)
	assert.Equal(t, 20.0, stats.TotalMinutes)
	assert.Equal(t, meditationmodel.BodyScan, stats.FavoriteSession)

	resp, body = api.do(http.MethodGet, "/api/meditation/streak", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"currentStreak":1}`, string(body))

	resp, body = api.do(http.MethodGet, "/api/meditation/sessions?limit=5&page=1", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page meditation.Page
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Len(t, page.Sessions, 1)
	assert.Equal(t, int64(1), page.Pagination.TotalItems)

	for _, q := range []string{"limit=0", "limit=101", "page=-1", "limit=abc"} {
		resp, _ = api.do(http.MethodGet, "/api/meditation/sessions?"+q, alice, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}

	resp, body = api.do(http.MethodGet, "/api/users/profile", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"completedSessions":1`)
}

func TestCoachReflectionStreamsSSE(t *testing.T) {
	api := newTestAPI(t, nil)
	token := api.demoToken("Alice")

	_, body := api.do(http.MethodPost, "/api/meditation/sessions", token, map[string]any{
		"sessionType": "quick-calm", "title": "Reset", "duration": 300, "moodBefore": "anxious",
	})
	var started meditationmodel.View
	require.NoError(t, json.Unmarshal(body, &started))
	resp, _ := api.do(http.MethodPost, "/api/meditation/sessions/"+started.ID+"/complete", token, map[string]any{"moodAfter": "tired"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = api.do(http.MethodGet, "/api/coach/reflection/"+started.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	assert.Equal(t, []string{"start", "chunk", "done"}, events)
	assert.Contains(t, string(body), "energy-boost")
}

func TestEmotionEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)
	token := api.demoToken("Alice")

	resp, body := api.do(http.MethodPost, "/api/emotion/checkin", token, map[string]any{
		"text": "feeling anxious about tomorrow", "context": map[string]string{"timeOfDay": "evening"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var checkin emotionmodel.Record
	require.NoError(t, json.Unmarshal(body, &checkin))
	assert.Equal(t, meditationmodel.Anxious, checkin.Emotion)
	assert.Equal(t, emotionmodel.SourceHeuristic, checkin.Source)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("image", "face.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("\xff\xd8\xff fake jpeg"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("location", "home"))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, api.server.URL+"/api/emotion/analyze", &form)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, body = api.send(req)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var analyzed emotionmodel.Record
	require.NoError(t, json.Unmarshal(body, &analyzed))
	assert.Equal(t, emotionmodel.SourceMock, analyzed.Source)
	assert.Equal(t, "home", analyzed.Context.Location)

	resp, body = api.do(http.MethodPost, "/api/emotion/analyze", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	resp, body = api.do(http.MethodGet, "/api/emotion/history?limit=10", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history struct {
		Records []emotionmodel.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Len(t, history.Records, 2)

	resp, _ = api.do(http.MethodGet, "/api/emotion/history?limit=500", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPreferencesAndCommunity(t *testing.T) {
	api := newTestAPI(t, nil)
	alice := api.demoToken("Alice Park")
	bob := api.demoToken("Bob")

	resp, body := api.do(http.MethodPut, "/api/users/preferences", alice, map[string]any{"theme": "dark"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"theme":"dark"`)
	assert.Contains(t, string(body), `"notificationsEnabled":true`)

	resp, _ = api.do(http.MethodPut, "/api/users/preferences", alice, map[string]any{"theme": "neon"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = api.do(http.MethodPost, "/api/community/status", alice, map[string]string{"status": "Meditating"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = api.do(http.MethodGet, "/api/community/feed", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var feed struct {
		Members []community.Member `json:"members"`
	}
	require.NoError(t, json.Unmarshal(body, &feed))
	require.Len(t, feed.Members, 5)
	assert.Equal(t, "Alice Park", feed.Members[0].Name)
	assert.Equal(t, "AP", feed.Members[0].Avatar)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000"})
	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
