package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livepoll-backend/internal/handlers"
	"livepoll-backend/internal/middleware"
	"livepoll-backend/internal/models"
	"livepoll-backend/internal/repository"
	"livepoll-backend/internal/services"
	wshub "livepoll-backend/internal/websocket"
)

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *middleware.JWTAuth) {
	t.Helper()
	hub := wshub.NewHub(nil)
	store := services.NewSessionStore(repository.NewMemorySessionRepo(), hub)
	jwtAuth := middleware.NewJWTAuth("test-secret")

	h := New(
		jwtAuth,
		handlers.NewAuthHandler(services.NewTeacherAuthService(jwtAuth, "")),
		handlers.NewSessionHandler(store),
		handlers.NewChatHandler(store),
		handlers.NewPollHandler(store),
		handlers.NewWSHandler(hub, store),
		opts,
	)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, jwtAuth
}

func post(t *testing.T, url, token string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readState(t *testing.T, conn *websocket.Conn) models.SessionState {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string              `json:"type"`
		Data models.SessionState `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, models.WSTypeState, msg.Type)
	return msg.Data
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, Options{FrontendURL: "*"})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTeacherRoutesRequireToken(t *testing.T) {
	srv, jwtAuth := newTestServer(t, Options{FrontendURL: "*"})
	base := srv.URL + "/api/v1/sessions/default"
	poll := map[string]interface{}{"question": "Q?", "options": []string{"A", "B"}}

	resp := post(t, base+"/polls", "", poll)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, base+"/kick", "", map[string]string{"name": "Sam"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := jwtAuth.GenerateTeacherToken()
	require.NoError(t, err)
	resp = post(t, base+"/polls", token, poll)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestTeacherTokenRoute(t *testing.T) {
	srv, jwtAuth := newTestServer(t, Options{FrontendURL: "*"})

	resp := post(t, srv.URL+"/api/v1/auth/teacher", "", map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tokens models.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokens))
	role, err := jwtAuth.ParseRole(tokens.Token)
	require.NoError(t, err)
	assert.Equal(t, middleware.RoleTeacher, role)
	assert.Equal(t, int(middleware.TeacherTokenTTL.Seconds()), tokens.ExpiresIn)
}

func TestClassroomFlowOverWebsocket(t *testing.T) {
	srv, jwtAuth := newTestServer(t, Options{FrontendURL: "*"})
	base := srv.URL + "/api/v1/sessions/room"

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?sessionId=room"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	initial := readState(t, conn)
	assert.Equal(t, "room", initial.SessionID)
	assert.Empty(t, initial.Students)

	require.Equal(t, http.StatusOK, post(t, base+"/participants", "", map[string]string{"name": "Sam"}).StatusCode)
	joined := readState(t, conn)
	assert.Equal(t, []string{"Sam"}, joined.Students)
	assert.Greater(t, joined.Version, initial.Version)

	token, err := jwtAuth.GenerateTeacherToken()
	require.NoError(t, err)
	created := post(t, base+"/polls", token, map[string]interface{}{"question": "Q?", "options": []string{"A", "B"}, "durationSeconds": 30})
	require.Equal(t, http.StatusCreated, created.StatusCode)
	var poll models.Poll
	require.NoError(t, json.NewDecoder(created.Body).Decode(&poll))

	withPoll := readState(t, conn)
	require.NotNil(t, withPoll.ActivePollID)
	assert.Equal(t, poll.ID, *withPoll.ActivePollID)

	answered := post(t, base+"/answers", "", map[string]interface{}{"pollId": poll.ID, "studentName": "Sam", "optionIndex": 1})
	require.Equal(t, http.StatusOK, answered.StatusCode)

	closed := readState(t, conn)
	assert.Nil(t, closed.ActivePollID)
	require.Len(t, closed.Polls, 1)
	assert.Equal(t, models.PollStatusClosed, closed.Polls[0].Status)
	assert.Equal(t, []int{0, 1}, closed.Polls[0].Counts)

	require.Equal(t, http.StatusCreated, post(t, base+"/messages", "", map[string]string{"name": "Sam", "text": "done!"}).StatusCode)
	chat := readState(t, conn)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, "done!", chat.Messages[0].Text)
}

func TestWebsocketRejectsBadSessionID(t *testing.T) {
	srv, _ := newTestServer(t, Options{FrontendURL: "*"})

	resp, err := http.Get(srv.URL + "/api/v1/ws?sessionId=" + strings.Repeat("x", 65))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStaticFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))

	srv, _ := newTestServer(t, Options{FrontendURL: "*", StaticDir: dir})

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		return resp.StatusCode, buf.String()
	}

	code, body := get("/app.js")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "console.log(1)", body)

	code, body = get("/teacher")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "app")

	code, _ = get("/api/v1/unknown")
	assert.Equal(t, http.StatusNotFound, code)
}
