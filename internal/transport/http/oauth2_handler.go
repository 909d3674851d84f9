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
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/opentrusty/opentrusty/internal/oauth2"
	"github.com/opentrusty/opentrusty/internal/observability/logger"
)

// parseAuthorizeRequest builds an oauth2.AuthorizeRequest from a query
// string, shared by the authorize, consent-page and decision handlers since
// all three round-trip the same set of parameters.
func parseAuthorizeRequest(v url.Values) *oauth2.AuthorizeRequest {
	return &oauth2.AuthorizeRequest{
		ClientID:            v.Get("client_id"),
		RedirectURI:         v.Get("redirect_uri"),
		ResponseType:        v.Get("response_type"),
		Scope:               v.Get("scope"),
		State:               v.Get("state"),
		CodeChallenge:       v.Get("code_challenge"),
		CodeChallengeMethod: v.Get("code_challenge_method"),
	}
}

// Authorize implements the GET /auth/authorize state machine (spec.md §4.7):
// validate the client and request, check whether the user has already
// granted the requested scope, and either redirect straight to a fresh code
// or signal that consent must be collected first.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	req := parseAuthorizeRequest(r.URL.Query())

	client, err := h.oauth2Service.ValidateClient(r.Context(), req)
	if err != nil {
		h.respondAuthorizeError(w, r, req, err)
		return
	}

	userID := GetUserID(r.Context())

	covered, err := h.consentService.Check(r.Context(), userID, client.ClientID, req.Scope)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to check consent")
		return
	}

	if !covered {
		respondJSON(w, http.StatusOK, map[string]any{
			"consent_url": "/auth/authorize/consent?" + r.URL.RawQuery,
			"scopes":      splitScope(req.Scope),
		})
		return
	}

	code, err := h.oauth2Service.GenerateAuthCode(r.Context(), req, userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue authorization code")
		return
	}

	http.Redirect(w, r, buildRedirectURL(req.RedirectURI, code.Code, req.State), http.StatusFound)
}

// ShowConsent renders the interactive consent confirmation screen for
// GET /auth/authorize/consent.
func (h *Handler) ShowConsent(w http.ResponseWriter, r *http.Request) {
	req := parseAuthorizeRequest(r.URL.Query())

	client, err := h.oauth2Service.ValidateClient(r.Context(), req)
	if err != nil {
		respondOAuthError(w, err, req.State)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	consentPageTemplate.Execute(w, consentPageData{
		ClientName:  client.ClientName,
		Scopes:      scopeDescriptions(req.Scope),
		QueryString: r.URL.RawQuery,
	})
}

// ConsentDecision implements POST /auth/authorize/decision (spec.md §4.6):
// records the user's approve/deny decision and, on approval, completes the
// authorize flow by issuing a code and redirecting the same way Authorize
// does for a pre-existing consent.
func (h *Handler) ConsentDecision(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	req := parseAuthorizeRequest(r.Form)
	scope := req.Scope
	if scope == "" {
		scope = "read"
	}
	req.Scope = scope

	// Validate the client and redirect_uri before doing anything else: the
	// redirect target must be proven trustworthy before it is used to carry
	// either a denial or a code back to the requester.
	if _, err := h.oauth2Service.ValidateClient(r.Context(), req); err != nil {
		h.respondAuthorizeError(w, r, req, err)
		return
	}

	approved := r.FormValue("decision") == "approve"
	userID := GetUserID(r.Context())

	if err := h.consentService.Process(r.Context(), userID, req.ClientID, scope, approved); err != nil {
		if !approved {
			http.Redirect(w, r, buildRedirectErrorURL(req.RedirectURI, "access_denied", "consent denied", req.State), http.StatusFound)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to record consent")
		return
	}

	code, err := h.oauth2Service.GenerateAuthCode(r.Context(), req, userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue authorization code")
		return
	}

	http.Redirect(w, r, buildRedirectURL(req.RedirectURI, code.Code, req.State), http.StatusFound)
}

// Token implements POST /auth/token: the authorization_code grant exchange.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	clientID, clientSecret := clientCredentialsFromRequest(r)

	tokenReq := &oauth2.TokenRequest{
		GrantType:    r.FormValue("grant_type"),
		Code:         r.FormValue("code"),
		RedirectURI:  r.FormValue("redirect_uri"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		CodeVerifier: r.FormValue("code_verifier"),
	}

	resp, err := h.oauth2Service.ExchangeToken(r.Context(), tokenReq)
	if err != nil {
		slog.WarnContext(r.Context(), "token exchange failed", logger.Error(err), logger.ClientID(tokenReq.ClientID))
		respondOAuthError(w, err, "")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// JWKS serves the signing public key set at /auth/.well-known/jwks.json.
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.jwksService.GetJWKS())
}

// clientCredentialsFromRequest reads client_id/client_secret from either the
// form body or HTTP Basic auth, as RFC 6749 §2.3.1 allows either.
func clientCredentialsFromRequest(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return r.FormValue("client_id"), r.FormValue("client_secret")
}

func (h *Handler) respondAuthorizeError(w http.ResponseWriter, r *http.Request, req *oauth2.AuthorizeRequest, err error) {
	switch err {
	case oauth2.ErrDomainInvalidClient, oauth2.ErrDomainInvalidRedirectURI:
		// The client or its redirect_uri could not be trusted: never
		// redirect, since doing so could send the error (and any attacker
		// supplied state) to an unregistered destination.
		respondOAuthError(w, err, req.State)
	default:
		http.Redirect(w, r, buildRedirectErrorURL(req.RedirectURI, errorCode(err), err.Error(), req.State), http.StatusFound)
	}
}

func errorCode(err error) string {
	if oerr, ok := err.(*oauth2.Error); ok {
		return oerr.Code
	}
	return oauth2.ErrInvalidRequest
}

// safeErrorDescription maps a bare domain sentinel to a static,
// reason-agnostic description. The token endpoint must not let a client
// distinguish why a request failed beyond its error kind (spec.md §7): an
// expired code, a replayed code, and a code that never existed all read the
// same here, as do a disabled client and a bad redirect_uri.
func safeErrorDescription(err error) string {
	switch err {
	case oauth2.ErrCodeExpired, oauth2.ErrCodeAlreadyUsed, oauth2.ErrCodeNotFound:
		return "the authorization code is invalid"
	case oauth2.ErrDomainInvalidClient, oauth2.ErrDomainInvalidRedirectURI:
		return "the client could not be authenticated"
	case oauth2.ErrDomainInvalidUser:
		return "the user could not be authenticated"
	default:
		return "the request is invalid"
	}
}

func respondOAuthError(w http.ResponseWriter, err error, state string) {
	status := http.StatusUnauthorized
	oerr, ok := err.(*oauth2.Error)
	if !ok {
		oerr = oauth2.NewError(oauth2.ErrInvalidRequest, safeErrorDescription(err))
	}
	if state != "" {
		oerr = oerr.WithState(state)
	}
	respondJSON(w, status, oerr)
}

func buildRedirectURL(redirectURI, code, state string) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func buildRedirectErrorURL(redirectURI, errCode, description, state string) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	q := u.Query()
	q.Set("error", errCode)
	if description != "" {
		q.Set("error_description", description)
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func splitScope(scope string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(scope); i++ {
		if i == len(scope) || scope[i] == ' ' {
			if i > start {
				out = append(out, scope[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// scopeDescriptions maps scope tokens in a space-delimited scope string to a
// human-readable description for the consent page (spec.md §4.6).
var knownScopeDescriptions = map[string]string{
	"read":    "View your basic account information",
	"profile": "View your name and profile details",
	"email":   "View your email address",
	"write":   "Make changes to your account on your behalf",
}

type scopeDescription struct {
	Name        string
	Description string
}

func scopeDescriptions(scope string) []scopeDescription {
	tokens := splitScope(scope)
	out := make([]scopeDescription, 0, len(tokens))
	for _, t := range tokens {
		desc, ok := knownScopeDescriptions[t]
		if !ok {
			desc = "Access to scope: " + t
		}
		out = append(out, scopeDescription{Name: t, Description: desc})
	}
	return out
}

type consentPageData struct {
	ClientName  string
	Scopes      []scopeDescription
	QueryString string
}

var consentPageTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorize {{.ClientName}}</title></head>
<body>
<h1>{{.ClientName}} is requesting access</h1>
<ul>
{{range .Scopes}}<li>{{.Description}}</li>
{{end}}
</ul>
<form method="POST" action="/auth/authorize/decision?{{.QueryString}}">
<button type="submit" name="decision" value="approve">Approve</button>
<button type="submit" name="decision" value="deny">Deny</button>
</form>
</body>
</html>
`))
