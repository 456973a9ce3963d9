package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"wardrobe/internal/core"
	"wardrobe/internal/types"
)

type mockCredentialSource struct {
	userID string
	hash   string
	role   types.UserRole
	err    error
}

func (m *mockCredentialSource) GetCredentialsByEmail(_ context.Context, _ string) (string, string, types.UserRole, error) {
	if m.err != nil {
		return "", "", "", m.err
	}
	return m.userID, m.hash, m.role, nil
}

type mockSessionManager struct {
	createFn func(ctx context.Context, userID string, role types.UserRole) (*types.Session, error)

	invalidated []string
}

func (m *mockSessionManager) CreateSession(ctx context.Context, userID string, role types.UserRole) (*types.Session, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, role)
	}
	return &types.Session{
		ID:               "sess_new_token",
		UserID:           userID,
		Role:             role,
		LastStrongAuthAt: handlerNow,
		ExpiresAt:        handlerNow.Add(168 * time.Hour),
	}, nil
}

func (m *mockSessionManager) InvalidateSession(_ context.Context, sessionID string) error {
	m.invalidated = append(m.invalidated, sessionID)
	return nil
}

type mockStepUp struct {
	err error

	lastPassword string
}

func (m *mockStepUp) Reauthenticate(_ context.Context, _ *types.Session, password string) error {
	m.lastPassword = password
	return m.err
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newAuthTestRouter(creds *mockCredentialSource, sessions *mockSessionManager, stepUp *mockStepUp) chi.Router {
	h := NewAuthHandler(creds, sessions, stepUp, core.NewValidator(testLogger()), testLogger())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func postJSON(r chi.Router, path, body string, actor *types.Actor) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req = withActor(req, *actor)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestLogin_Success(t *testing.T) {
	creds := &mockCredentialSource{
		userID: "user_1",
		hash:   hashPassword(t, "correct horse battery staple"),
		role:   types.RoleUser,
	}
	r := newAuthTestRouter(creds, &mockSessionManager{}, &mockStepUp{})

	rec := postJSON(r, "/auth/login",
		`{"email": "jamie@example.com", "password": "correct horse battery staple"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data LoginResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "sess_new_token", body.Data.Token)
	assert.Equal(t, "2026-02-22T12:00:00Z", body.Data.ExpiresAt)
}

func TestLogin_WrongPassword(t *testing.T) {
	creds := &mockCredentialSource{
		userID: "user_1",
		hash:   hashPassword(t, "the real password"),
		role:   types.RoleUser,
	}
	r := newAuthTestRouter(creds, &mockSessionManager{}, &mockStepUp{})

	rec := postJSON(r, "/auth/login",
		`{"email": "jamie@example.com", "password": "a guess"}`, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, string(types.ErrCodeAuthInvalidCreds), body.Error.Code)
	assert.Equal(t, "invalid email or password", body.Error.Message)
}

func TestLogin_UnknownEmailSameResponseAsWrongPassword(t *testing.T) {
	creds := &mockCredentialSource{
		err: types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil),
	}
	r := newAuthTestRouter(creds, &mockSessionManager{}, &mockStepUp{})

	rec := postJSON(r, "/auth/login",
		`{"email": "nobody@example.com", "password": "whatever"}`, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, string(types.ErrCodeAuthInvalidCreds), body.Error.Code)
	assert.Equal(t, "invalid email or password", body.Error.Message)
}

func TestLogin_ValidationFailure(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing email", `{"password": "x"}`},
		{"invalid email", `{"email": "not-an-email", "password": "x"}`},
		{"missing password", `{"email": "jamie@example.com"}`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newAuthTestRouter(&mockCredentialSource{}, &mockSessionManager{}, &mockStepUp{})
			rec := postJSON(r, "/auth/login", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestLogout_InvalidatesOwnSession(t *testing.T) {
	sessions := &mockSessionManager{}
	r := newAuthTestRouter(&mockCredentialSource{}, sessions, &mockStepUp{})

	actor := userActor()
	rec := postJSON(r, "/auth/logout", "", &actor)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sess_1"}, sessions.invalidated)
}

func TestLogout_Unauthenticated(t *testing.T) {
	r := newAuthTestRouter(&mockCredentialSource{}, &mockSessionManager{}, &mockStepUp{})

	rec := postJSON(r, "/auth/logout", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStepUp_Success(t *testing.T) {
	stepUp := &mockStepUp{}
	r := newAuthTestRouter(&mockCredentialSource{}, &mockSessionManager{}, stepUp)

	actor := adminHandlerActor()
	rec := postJSON(r, "/auth/step-up", `{"password": "admin password"}`, &actor)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin password", stepUp.lastPassword)
	assert.Contains(t, rec.Body.String(), `"step_up_complete":true`)
}

func TestStepUp_WrongPassword(t *testing.T) {
	stepUp := &mockStepUp{
		err: types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid password", nil),
	}
	r := newAuthTestRouter(&mockCredentialSource{}, &mockSessionManager{}, stepUp)

	actor := adminHandlerActor()
	rec := postJSON(r, "/auth/step-up", `{"password": "a guess"}`, &actor)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStepUp_RequiresSession(t *testing.T) {
	r := newAuthTestRouter(&mockCredentialSource{}, &mockSessionManager{}, &mockStepUp{})

	rec := postJSON(r, "/auth/step-up", `{"password": "x"}`, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
