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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireSessionJSON_MissingCookie_ReturnsUnauthorized(t *testing.T) {
	deps := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/user/me", nil)
	w := httptest.NewRecorder()

	deps.handler.requireSessionJSON(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSessionJSON_ValidCookie_CallsNext(t *testing.T) {
	deps := newTestHandler(t)
	cookie := registerAndLogin(t, deps, "harold@example.com", "correct horse battery staple")

	req := httptest.NewRequest(http.MethodGet, "/user/me", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()

	deps.handler.requireSessionJSON(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireSessionRedirect_MissingCookie_RedirectsToLogin(t *testing.T) {
	deps := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/authorize?client_id=c1", nil)
	w := httptest.NewRecorder()

	deps.handler.requireSessionRedirect(okHandler()).ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/auth/login?return_url=")
}

func TestRequireSessionRedirect_ValidCookie_CallsNext(t *testing.T) {
	deps := newTestHandler(t)
	cookie := registerAndLogin(t, deps, "irene@example.com", "correct horse battery staple")

	req := httptest.NewRequest(http.MethodGet, "/auth/authorize?client_id=c1", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()

	deps.handler.requireSessionRedirect(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireSessionJSON_InvalidCookie_ClearsCookieAndReturnsUnauthorized(t *testing.T) {
	deps := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/user/me", nil)
	req.AddCookie(&http.Cookie{Name: "opentrusty_session", Value: "does-not-exist"})
	w := httptest.NewRecorder()

	deps.handler.requireSessionJSON(okHandler()).ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "opentrusty_session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "expected the stale session cookie to be cleared")
}

func TestCSRFMiddleware_GetBypassesCheck(t *testing.T) {
	deps := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/authorize/decision", nil)
	w := httptest.NewRecorder()

	deps.handler.CSRFMiddleware(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCSRFMiddleware_PostWithoutHeader_ReturnsForbidden(t *testing.T) {
	deps := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/authorize/decision", nil)
	w := httptest.NewRecorder()

	deps.handler.CSRFMiddleware(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCSRFMiddleware_PostWithHeader_CallsNext(t *testing.T) {
	deps := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/authorize/decision", nil)
	req.Header.Set("X-CSRF-Token", "some-token")
	w := httptest.NewRecorder()

	deps.handler.CSRFMiddleware(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
