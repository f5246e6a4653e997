package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackyqyz/gameinvite/internal/config"
	"github.com/jackyqyz/gameinvite/internal/invite"
	"github.com/jackyqyz/gameinvite/internal/realtime"
	"github.com/jackyqyz/gameinvite/internal/store"
)

// stubMailer lets each test script the dispatcher's behavior per recipient
// address without touching SMTP.
type stubMailer struct {
	errs  map[string]error
	calls []invite.EmailPayload
}

func (m *stubMailer) Send(_ context.Context, p invite.EmailPayload) error {
	m.calls = append(m.calls, p)
	if m.errs == nil {
		return nil
	}
	return m.errs[p.ToEmail]
}

// testEnv is one fully wired server over a fresh temp database.
type testEnv struct {
	router *chi.Mux
	store  *store.Service
	mailer *stubMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewService(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.InitSchema())
	require.NoError(t, st.Seed("", "", ""))

	cfg := &config.Config{
		JwtSecret:         "test-secret",
		RateLimitWindow:   time.Hour,
		RateLimitMaxSends: 10,
	}

	mailer := &stubMailer{}
	srv := NewServer(cfg, st, realtime.NewBroker(), mailer,
		invite.NewCoordinator(st, mailer), invite.NewInbox(st))

	router := chi.NewRouter()
	srv.RegisterRoutes(router)

	return &testEnv{router: router, store: st, mailer: mailer}
}

// do runs one request through the router and decodes the JSON response body.
func (e *testEnv) do(t *testing.T, method, path, token string, payload interface{}) (int, map[string]json.RawMessage) {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}

	req := httptest.NewRequest(method, path, &body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	decoded := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body: %s", rec.Body.String())
	}
	return rec.Code, decoded
}

// register creates an account through the public endpoint.
func (e *testEnv) register(t *testing.T, username, password, email string) int64 {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]string{
		"username": username,
		"password": password,
		"email":    email,
	})
	require.Equal(t, http.StatusCreated, code, "register %s: %s", username, body)

	var user UserResponse
	require.NoError(t, json.Unmarshal(body["user"], &user))
	return user.ID
}

// login returns the session token for an existing account.
func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, code)

	var token string
	require.NoError(t, json.Unmarshal(body["token"], &token))
	return token
}

// adminToken registers a user, promotes them directly in the store, and logs
// back in so the session carries the admin flag.
func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	id := e.register(t, "admin", "password", "admin@example.com")
	err := e.store.WriteTx(func(tx *sql.Tx) error {
		return e.store.UpdateUserProfile(tx, id, "admin@example.com", true)
	})
	require.NoError(t, err)
	return e.login(t, "admin", "password")
}

func errorMessage(t *testing.T, body map[string]json.RawMessage) string {
	t.Helper()
	var msg string
	require.NoError(t, json.Unmarshal(body["error"], &msg))
	return msg
}

// --- Registration & login ---

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name    string
		payload map[string]string
		wantMsg string
	}{
		{"short username", map[string]string{"username": "ab", "password": "secret1", "email": "a@b.com"}, "username"},
		{"short password", map[string]string{"username": "alice", "password": "12345", "email": "a@b.com"}, "password"},
		{"missing email", map[string]string{"username": "alice", "password": "secret1"}, "email"},
		{"question without answer", map[string]string{"username": "alice", "password": "secret1", "email": "a@b.com", "securityQuestion": "pet?"}, "security question"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := env.do(t, http.MethodPost, "/api/v1/users/register", "", tc.payload)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Contains(t, errorMessage(t, body), tc.wantMsg)
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "secret1", "alice@example.com")

	code, _ := env.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]string{
		"username": "alice", "password": "other12", "email": "other@example.com",
	})
	assert.Equal(t, http.StatusConflict, code)
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "secret1", "alice@example.com")

	code, _ := env.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	token := env.login(t, "alice", "secret1")
	code, body := env.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, code)

	var user UserResponse
	require.NoError(t, json.Unmarshal(body["user"], &user))
	assert.Equal(t, "alice", user.Username)
	require.NotNil(t, user.Email)
	assert.Equal(t, "alice@example.com", *user.Email)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(t, http.MethodGet, "/api/v1/notifications", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

// --- Password recovery ---

func TestPasswordRecoveryFlow(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]string{
		"username":         "carol",
		"password":         "secret1",
		"email":            "carol@example.com",
		"securityQuestion": "first pet?",
		"securityAnswer":   "rex",
	})
	require.Equal(t, http.StatusCreated, code)

	code, body := env.do(t, http.MethodGet, "/api/v1/users/carol/security-question", "", nil)
	require.Equal(t, http.StatusOK, code)
	var question string
	require.NoError(t, json.Unmarshal(body["securityQuestion"], &question))
	assert.Equal(t, "first pet?", question)

	code, _ = env.do(t, http.MethodPost, "/api/v1/users/recover", "", map[string]string{
		"username": "carol", "securityAnswer": "wrong", "newPassword": "newsecret",
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/users/recover", "", map[string]string{
		"username": "carol", "securityAnswer": "rex", "newPassword": "newsecret",
	})
	require.Equal(t, http.StatusOK, code)

	env.login(t, "carol", "newsecret")
}

func TestSecurityQuestionNotConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "plain", "secret1", "plain@example.com")

	code, _ := env.do(t, http.MethodGet, "/api/v1/users/plain/security-question", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

// --- Standalone email endpoint ---

func validSendEmailBody() map[string]string {
	return map[string]string{
		"to_email":  "friend@example.com",
		"to_name":   "小明",
		"from_name": "小红",
		"game_name": "PUBG",
		"game_time": "2025-01-01 20:00",
	}
}

func TestSendEmailSuccess(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/v1/send-email", "", validSendEmailBody())
	require.Equal(t, http.StatusOK, code)
	var ok bool
	require.NoError(t, json.Unmarshal(body["success"], &ok))
	assert.True(t, ok)
	require.Len(t, env.mailer.calls, 1)
	assert.Equal(t, "friend@example.com", env.mailer.calls[0].ToEmail)
}

func TestSendEmailValidationError(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.errs = map[string]error{"friend@example.com": &invite.ValidationError{Field: "to_name"}}

	code, body := env.do(t, http.MethodPost, "/api/v1/send-email", "", validSendEmailBody())
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, errorMessage(t, body), "to_name")
}

func TestSendEmailRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.errs = map[string]error{"friend@example.com": &invite.RateLimitedError{
		Key: "friend@example.com", RetryAfter: 10 * time.Minute,
	}}

	code, body := env.do(t, http.MethodPost, "/api/v1/send-email", "", validSendEmailBody())
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Contains(t, errorMessage(t, body), "too many emails")
}

func TestSendEmailDeliveryFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.errs = map[string]error{"friend@example.com": &invite.DeliveryError{
		Attempts: 3, Last: fmt.Errorf("connection refused"),
	}}

	code, body := env.do(t, http.MethodPost, "/api/v1/send-email", "", validSendEmailBody())
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, errorMessage(t, body), "delivery failed")

	// Outside production mode the underlying error rides along for debugging.
	var detail string
	require.NoError(t, json.Unmarshal(body["detail"], &detail))
	assert.Contains(t, detail, "connection refused")
}

// --- Invites & notifications ---

func TestInviteLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "secret1", "alice@example.com")
	bobID := env.register(t, "bob", "secret1", "bob@example.com")
	aliceToken := env.login(t, "alice", "secret1")
	bobToken := env.login(t, "bob", "secret1")

	code, body := env.do(t, http.MethodPost, "/api/v1/invites", aliceToken, map[string]interface{}{
		"recipientIds":  []int64{bobID},
		"game":          "PUBG",
		"time":          "2025-01-01 20:00",
		"message":       "晚上见",
		"notifyByEmail": true,
	})
	require.Equal(t, http.StatusOK, code)

	var succeeded int
	require.NoError(t, json.Unmarshal(body["succeeded"], &succeeded))
	assert.Equal(t, 1, succeeded)
	require.Len(t, env.mailer.calls, 1)
	assert.Equal(t, "bob@example.com", env.mailer.calls[0].ToEmail)

	// Bob sees the pending invite.
	code, body = env.do(t, http.MethodGet, "/api/v1/notifications", bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	var notifications []NotificationResponse
	require.NoError(t, json.Unmarshal(body["notifications"], &notifications))
	require.Len(t, notifications, 1)
	assert.Equal(t, "alice", notifications[0].SenderName)
	assert.Equal(t, "PUBG", notifications[0].Game)

	// Alice cannot answer Bob's invite.
	acceptPath := fmt.Sprintf("/api/v1/notifications/%d/accept", notifications[0].ID)
	code, _ = env.do(t, http.MethodPost, acceptPath, aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	// Bob accepts; a second answer is rejected.
	code, body = env.do(t, http.MethodPost, acceptPath, bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	var updated NotificationResponse
	require.NoError(t, json.Unmarshal(body["notification"], &updated))
	assert.True(t, updated.Handled)
	require.NotNil(t, updated.Accepted)
	assert.True(t, *updated.Accepted)

	code, _ = env.do(t, http.MethodPost, acceptPath, bobToken, nil)
	assert.Equal(t, http.StatusConflict, code)

	// The accept moved Bob's game record.
	code, body = env.do(t, http.MethodGet, "/api/v1/users/me", bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	var bob UserResponse
	require.NoError(t, json.Unmarshal(body["user"], &bob))
	assert.Equal(t, 1, bob.GameRecords["PUBG"])
}

func TestInviteBatchPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "secret1", "alice@example.com")
	bobID := env.register(t, "bob", "secret1", "bob@example.com")
	token := env.login(t, "alice", "secret1")

	code, body := env.do(t, http.MethodPost, "/api/v1/invites", token, map[string]interface{}{
		"recipientIds": []int64{bobID, 9999},
		"game":         "CSGO",
		"time":         "2025-01-02 21:00",
	})
	require.Equal(t, http.StatusOK, code)

	var succeeded, failed int
	require.NoError(t, json.Unmarshal(body["succeeded"], &succeeded))
	require.NoError(t, json.Unmarshal(body["failed"], &failed))
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
}

func TestInviteRejectsEmptyBatch(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "secret1", "alice@example.com")
	token := env.login(t, "alice", "secret1")

	code, _ := env.do(t, http.MethodPost, "/api/v1/invites", token, map[string]interface{}{
		"recipientIds": []int64{},
		"game":         "PUBG",
		"time":         "2025-01-01 20:00",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDeclineLeavesRecordsUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "secret1", "alice@example.com")
	bobID := env.register(t, "bob", "secret1", "bob@example.com")
	aliceToken := env.login(t, "alice", "secret1")
	bobToken := env.login(t, "bob", "secret1")

	code, _ := env.do(t, http.MethodPost, "/api/v1/invites", aliceToken, map[string]interface{}{
		"recipientIds": []int64{bobID},
		"game":         "PUBG",
		"time":         "2025-01-01 20:00",
	})
	require.Equal(t, http.StatusOK, code)

	code, body := env.do(t, http.MethodGet, "/api/v1/notifications", bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	var notifications []NotificationResponse
	require.NoError(t, json.Unmarshal(body["notifications"], &notifications))
	require.Len(t, notifications, 1)

	declinePath := fmt.Sprintf("/api/v1/notifications/%d/decline", notifications[0].ID)
	code, _ = env.do(t, http.MethodPost, declinePath, bobToken, nil)
	require.Equal(t, http.StatusOK, code)

	code, body = env.do(t, http.MethodGet, "/api/v1/users/me", bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	var bob UserResponse
	require.NoError(t, json.Unmarshal(body["user"], &bob))
	assert.Empty(t, bob.GameRecords)
}

// --- Admin surface ---

func TestAdminAccessControl(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "secret1", "alice@example.com")
	token := env.login(t, "alice", "secret1")

	code, _ := env.do(t, http.MethodGet, "/api/v1/admin/users", token, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAdminGameManagement(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)

	code, _ := env.do(t, http.MethodPost, "/api/v1/admin/games", token, map[string]string{"name": "Dota2"})
	assert.Equal(t, http.StatusCreated, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/admin/games", token, map[string]string{"name": "Dota2"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = env.do(t, http.MethodPatch, "/api/v1/admin/games/Dota2", token, map[string]string{"name": "Dota 2"})
	assert.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodDelete, "/api/v1/admin/games/CSGO", token, nil)
	assert.Equal(t, http.StatusOK, code)

	code, body := env.do(t, http.MethodGet, "/api/v1/games", token, nil)
	require.Equal(t, http.StatusOK, code)
	var games []string
	require.NoError(t, json.Unmarshal(body["games"], &games))
	assert.Contains(t, games, "Dota 2")
	assert.NotContains(t, games, "CSGO")
	assert.NotContains(t, games, "Dota2")
}

func TestAdminUserManagement(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)
	targetID := env.register(t, "target", "secret1", "target@example.com")

	newEmail := "changed@example.com"
	code, _ := env.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/admin/users/%d", targetID), token,
		map[string]interface{}{"email": newEmail})
	require.Equal(t, http.StatusOK, code)

	code, body := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/users/%d", targetID), token, nil)
	require.Equal(t, http.StatusOK, code)
	var user UserResponse
	require.NoError(t, json.Unmarshal(body["user"], &user))
	require.NotNil(t, user.Email)
	assert.Equal(t, newEmail, *user.Email)

	code, _ = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/users/%d", targetID), token, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/users/%d", targetID), token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdminCannotDeleteSelf(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)

	admin, err := env.store.GetUserByUsername(env.store.DB(), "admin")
	require.NoError(t, err)

	code, _ := env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/users/%d", admin.ID), token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAdminStats(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)
	bobID := env.register(t, "bob", "secret1", "bob@example.com")

	// Three invites for PUBG, one for CSGO.
	code, _ := env.do(t, http.MethodPost, "/api/v1/invites", token, map[string]interface{}{
		"recipientIds": []int64{bobID, bobID, bobID},
		"game":         "PUBG",
		"time":         "2025-01-01 20:00",
	})
	require.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, http.MethodPost, "/api/v1/invites", token, map[string]interface{}{
		"recipientIds": []int64{bobID},
		"game":         "CSGO",
		"time":         "2025-01-01 20:00",
	})
	require.Equal(t, http.StatusOK, code)

	code, body := env.do(t, http.MethodGet, "/api/v1/admin/stats", token, nil)
	require.Equal(t, http.StatusOK, code)

	var total int
	require.NoError(t, json.Unmarshal(body["totalInvites"], &total))
	assert.Equal(t, 4, total)

	var stats []GameStatResponse
	require.NoError(t, json.Unmarshal(body["gameStats"], &stats))
	shares := make(map[string]float64, len(stats))
	for _, stat := range stats {
		shares[stat.Game] = stat.Share
	}
	assert.InDelta(t, 75.0, shares["PUBG"], 0.01)
	assert.InDelta(t, 25.0, shares["CSGO"], 0.01)
}
