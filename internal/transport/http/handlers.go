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
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/opentrusty/opentrusty/internal/audit"
	"github.com/opentrusty/opentrusty/internal/consent"
	"github.com/opentrusty/opentrusty/internal/identity"
	"github.com/opentrusty/opentrusty/internal/oauth2"
	"github.com/opentrusty/opentrusty/internal/observability/logger"
	"github.com/opentrusty/opentrusty/internal/session"
	"github.com/opentrusty/opentrusty/internal/token"
)

// Handler holds HTTP handlers and dependencies.
type Handler struct {
	identityService *identity.Service
	sessionService  *session.Service
	oauth2Service   *oauth2.Service
	consentService  *consent.Service
	jwksService     *token.JwksService
	auditLogger     audit.Logger
	sessionConfig   SessionConfig
	serviceName     string
}

// SessionConfig holds session cookie configuration.
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
}

// NewHandler creates a new HTTP handler.
func NewHandler(
	identityService *identity.Service,
	sessionService *session.Service,
	oauth2Service *oauth2.Service,
	consentService *consent.Service,
	jwksService *token.JwksService,
	auditLogger audit.Logger,
	sessionConfig SessionConfig,
	serviceName string,
) *Handler {
	return &Handler{
		identityService: identityService,
		sessionService:  sessionService,
		oauth2Service:   oauth2Service,
		consentService:  consentService,
		jwksService:     jwksService,
		auditLogger:     auditLogger,
		sessionConfig:   sessionConfig,
		serviceName:     serviceName,
	}
}

// NewRouter creates a new HTTP router matching the authorization server's
// public HTTP surface: the interactive login/consent screens, the OAuth2
// authorize/token/jwks endpoints, and the JSON account/client management API.
func NewRouter(h *Handler, rateLimiter *RateLimiter, deepHealth func(r *http.Request) error) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/", h.Metadata)
	r.Get("/health", h.HealthCheck)
	r.Get("/health/deep", h.HealthCheckDeep(deepHealth))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", h.LoginPage)
		r.Post("/login", h.Login)

		r.With(h.requireSessionRedirect).Get("/authorize", h.Authorize)
		r.With(h.requireSessionRedirect).Get("/authorize/consent", h.ShowConsent)
		r.With(h.requireSessionRedirect, h.CSRFMiddleware).Post("/authorize/decision", h.ConsentDecision)

		r.Post("/token", h.Token)
		r.Get("/.well-known/jwks.json", h.JWKS)
	})

	r.Route("/user", func(r chi.Router) {
		r.Post("/", h.Register)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSessionJSON)
			r.Get("/me", h.GetCurrentUser)
			r.Put("/me", h.UpdateProfile)
			r.Put("/me/password", h.ChangePassword)
			r.Get("/me/consents", h.ListConsents)
			r.Delete("/me/consents/{clientID}", h.RevokeConsent)
		})
	})

	r.Route("/client", func(r chi.Router) {
		r.Use(h.requireSessionJSON)
		r.Post("/", h.RegisterClient)
		r.Get("/", h.ListClients)
		r.Route("/{clientID}", func(r chi.Router) {
			r.Get("/", h.GetClient)
			r.Put("/", h.UpdateClient)
			r.Delete("/", h.DeleteClient)
			r.Post("/rotate-secret", h.RotateSecret)
		})
	})

	return r
}

// Metadata serves a small discovery document at the root describing the
// service and the endpoints it exposes, in lieu of a human-facing landing
// page.
func (h *Handler) Metadata(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"service": h.serviceName,
		"endpoints": map[string]string{
			"authorization": "/auth/authorize",
			"token":         "/auth/token",
			"jwks":          "/auth/.well-known/jwks.json",
		},
	})
}

// HealthCheck returns liveness: the process is up and serving requests.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": h.serviceName,
	})
}

// HealthCheckDeep returns a handler for readiness: it additionally exercises
// whatever dependency probe the composition root wires in (database
// connectivity, signing key availability), failing closed with 503 when the
// probe errors.
func (h *Handler) HealthCheckDeep(probe func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if probe == nil {
			respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
			return
		}
		if err := probe(r); err != nil {
			slog.ErrorContext(r.Context(), "deep health check failed", logger.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// RegisterRequest represents registration data.
type RegisterRequest struct {
	Email      string `json:"email"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// Register handles user self-registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.Register(r.Context(), identity.RegisterRequest{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Profile: identity.Profile{
			GivenName:  req.GivenName,
			FamilyName: req.FamilyName,
			FullName:   req.GivenName + " " + req.FamilyName,
		},
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "registration failed", logger.Error(err), logger.Email(req.Email))
		switch err {
		case identity.ErrUserAlreadyExists:
			respondError(w, http.StatusConflict, "user already exists")
		case identity.ErrInvalidEmail, identity.ErrInvalidUsername, identity.ErrWeakPassword:
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
}

// LoginRequest represents login credentials.
type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	ReturnURL string `json:"return_url"`
}

// Login authenticates a user and starts a session. Accepts both JSON (the
// API contract) and form-encoded bodies (the interactive login page's
// submit), since it backs both the POST /auth/login machine contract and the
// browser-facing login form.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if ct := r.Header.Get("Content-Type"); len(ct) >= 16 && ct[:16] == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			respondError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		req.Email = r.FormValue("email")
		req.Password = r.FormValue("password")
		req.ReturnURL = r.FormValue("return_url")
	}

	user, err := h.identityService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if req.ReturnURL != "" {
			h.renderLoginPage(w, r, req.ReturnURL, "invalid email or password")
			return
		}
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sess, err := h.sessionService.Create(r.Context(), user.ID, getIPAddress(r), r.UserAgent())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create session", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.setSessionCookie(w, sess.ID)

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLoginSuccess,
		ActorID:   user.ID,
		Resource:  audit.ResourceSession,
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
		Metadata:  map[string]any{audit.AttrSessionID: sess.ID},
	})

	if req.ReturnURL != "" {
		http.Redirect(w, r, req.ReturnURL, http.StatusFound)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
}

// GetCurrentUser returns the authenticated user's identity.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	user, err := h.identityService.GetUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":        user.ID,
		"email":          user.Email,
		"username":       user.Username,
		"email_verified": user.EmailVerified,
		"profile":        user.Profile,
	})
}

// UpdateProfile updates the authenticated user's profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	var profile identity.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.identityService.UpdateProfile(r.Context(), userID, profile); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "profile updated successfully"})
}

// ChangePasswordRequest represents password change data.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword changes the authenticated user's password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.identityService.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword)
	if err != nil {
		switch err {
		case identity.ErrInvalidCredentials:
			respondError(w, http.StatusUnauthorized, "invalid old password")
		case identity.ErrWeakPassword:
			respondError(w, http.StatusBadRequest, "new password does not meet security requirements")
		default:
			respondError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "password changed successfully"})
}

// ListConsents lists the scope grants the authenticated user currently holds.
func (h *Handler) ListConsents(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	grants, err := h.consentService.ListForUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list consents")
		return
	}

	out := make([]map[string]any, 0, len(grants))
	for _, g := range grants {
		out = append(out, map[string]any{
			"client_id":  g.ClientID,
			"scope":      g.Scope,
			"granted_at": g.GrantedAt,
			"updated_at": g.UpdatedAt,
			"expires_at": g.ExpiresAt,
			"is_active":  g.IsActive(),
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"consents": out})
}

// RevokeConsent handles DELETE /user/me/consents/{clientID}: the user
// withdraws a previously granted consent, per spec.md §3 ("consents are
// revoked by setting revokedAt"). A client must obtain a fresh consent
// before it can be issued another authorization code.
func (h *Handler) RevokeConsent(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	clientID := chi.URLParam(r, "clientID")

	if err := h.consentService.Revoke(r.Context(), userID, clientID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to revoke consent")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "consent revoked"})
}

// Helper functions

func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    sessionID,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   86400,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.sessionConfig.CookieName,
		Value:  "",
		Path:   h.sessionConfig.CookiePath,
		Domain: h.sessionConfig.CookieDomain,
		MaxAge: -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
