// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_CreatesUser(t *testing.T) {
	deps := newTestHandler(t)

	body, _ := json.Marshal(RegisterRequest{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "correct horse battery staple",
	})
	req := httptest.NewRequest(http.MethodPost, "/user", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	deps.handler.Register(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice@example.com", resp["email"])
	assert.NotEmpty(t, resp["user_id"])
}

func TestRegister_DuplicateEmail_ReturnsConflict(t *testing.T) {
	deps := newTestHandler(t)

	body, _ := json.Marshal(RegisterRequest{Email: "bob@example.com", Username: "bob", Password: "a very long passphrase"})
	req := httptest.NewRequest(http.MethodPost, "/user", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	deps.handler.Register(httptest.NewRecorder(), req)

	req2 := httptest.NewRequest(http.MethodPost, "/user", bytes.NewReader(body))
	req2.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	deps.handler.Register(w2, req2)

	assert.Equal(t, http.StatusConflict, w2.Code)
}

func TestRegister_MalformedJSON_ReturnsBadRequest(t *testing.T) {
	deps := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/user", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	deps.handler.Register(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func registerAndLogin(t *testing.T, deps *testDeps, email, password string) *http.Cookie {
	t.Helper()

	body, _ := json.Marshal(RegisterRequest{Email: email, Username: email[:strings.Index(email, "@")], Password: password})
	req := httptest.NewRequest(http.MethodPost, "/user", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	deps.handler.Register(httptest.NewRecorder(), req)

	loginBody, _ := json.Marshal(LoginRequest{Email: email, Password: password})
	loginReq := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(loginBody))
	loginReq.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	deps.handler.Login(w, loginReq)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, c := range w.Result().Cookies() {
		if c.Name == "opentrusty_session" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestLogin_JSON_SetsSessionCookie(t *testing.T) {
	deps := newTestHandler(t)
	cookie := registerAndLogin(t, deps, "carol@example.com", "correct horse battery staple")
	assert.NotEmpty(t, cookie.Value)
}

func TestLogin_Form_RedirectsToReturnURL(t *testing.T) {
	deps := newTestHandler(t)

	body, _ := json.Marshal(RegisterRequest{Email: "dave@example.com", Username: "dave", Password: "correct horse battery staple"})
	req := httptest.NewRequest(http.MethodPost, "/user", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	deps.handler.Register(httptest.NewRecorder(), req)

	form := url.Values{
		"email":      {"dave@example.com"},
		"password":   {"correct horse battery staple"},
		"return_url": {"/auth/authorize?client_id=c1"},
	}
	loginReq := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	loginReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	deps.handler.Login(w, loginReq)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth/authorize?client_id=c1", w.Header().Get("Location"))
}

func TestLogin_WrongPassword_ReturnsUnauthorized(t *testing.T) {
	deps := newTestHandler(t)
	registerAndLogin(t, deps, "erin@example.com", "correct horse battery staple")

	body, _ := json.Marshal(LoginRequest{Email: "erin@example.com", Password: "wrong password"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	deps.handler.Login(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_WrongPassword_WithReturnURL_RerendersForm(t *testing.T) {
	deps := newTestHandler(t)
	registerAndLogin(t, deps, "frank@example.com", "correct horse battery staple")

	form := url.Values{
		"email":      {"frank@example.com"},
		"password":   {"wrong password"},
		"return_url": {"/auth/authorize?client_id=c1"},
	}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	deps.handler.Login(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "invalid email or password")
}

func TestGetCurrentUser_ReturnsProfile(t *testing.T) {
	deps := newTestHandler(t)

	body, _ := json.Marshal(RegisterRequest{Email: "grace@example.com", Username: "grace", Password: "correct horse battery staple"})
	req := httptest.NewRequest(http.MethodPost, "/user", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	deps.handler.Register(w, req)

	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	userID := created["user_id"].(string)

	getReq := httptest.NewRequest(http.MethodGet, "/user/me", nil)
	ctx := context.WithValue(getReq.Context(), userIDKey, userID)
	getReq = getReq.WithContext(ctx)
	getW := httptest.NewRecorder()

	deps.handler.GetCurrentUser(getW, getReq)

	require.Equal(t, http.StatusOK, getW.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(getW.Body.Bytes(), &resp))
	assert.Equal(t, "grace@example.com", resp["email"])
}

func TestListConsents_ReturnsGrantedConsent(t *testing.T) {
	deps := newTestHandler(t)

	require.NoError(t, deps.handler.consentService.Process(context.Background(), "user-1", "client-1", "profile", true))

	req := httptest.NewRequest(http.MethodGet, "/user/me/consents", nil)
	ctx := context.WithValue(req.Context(), userIDKey, "user-1")
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	deps.handler.ListConsents(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	consents := resp["consents"].([]any)
	require.Len(t, consents, 1)
	entry := consents[0].(map[string]any)
	assert.Equal(t, "client-1", entry["client_id"])
	assert.Equal(t, true, entry["is_active"])
}

func TestRevokeConsent_RemovesConsentCoverage(t *testing.T) {
	deps := newTestHandler(t)

	require.NoError(t, deps.handler.consentService.Process(context.Background(), "user-1", "client-1", "profile", true))

	req := httptest.NewRequest(http.MethodDelete, "/user/me/consents/client-1", nil)
	ctx := context.WithValue(req.Context(), userIDKey, "user-1")
	req = req.WithContext(ctx)
	req = withClientID(req, "client-1")
	w := httptest.NewRecorder()

	deps.handler.RevokeConsent(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	covered, err := deps.handler.consentService.Check(context.Background(), "user-1", "client-1", "profile")
	require.NoError(t, err)
	assert.False(t, covered)
}

func TestHealthCheck_ReturnsHealthy(t *testing.T) {
	deps := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	deps.handler.HealthCheck(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestHealthCheckDeep_ProbeFailure_ReturnsServiceUnavailable(t *testing.T) {
	deps := newTestHandler(t)

	probe := func(r *http.Request) error { return assert.AnError }
	handlerFunc := deps.handler.HealthCheckDeep(probe)

	req := httptest.NewRequest(http.MethodGet, "/health/deep", nil)
	w := httptest.NewRecorder()

	handlerFunc(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthCheckDeep_NilProbe_ReturnsHealthy(t *testing.T) {
	deps := newTestHandler(t)

	handlerFunc := deps.handler.HealthCheckDeep(nil)

	req := httptest.NewRequest(http.MethodGet, "/health/deep", nil)
	w := httptest.NewRecorder()

	handlerFunc(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
