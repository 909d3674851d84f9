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
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opentrusty/opentrusty/internal/oauth2"
)

const secretRotationGrace = 24 * time.Hour

// registerClientRequest is the POST /client body.
type registerClientRequest struct {
	ClientName   string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris"`
	IsPublic     bool     `json:"is_public"`
}

// RegisterClient handles POST /client: an authenticated user registers a new
// OAuth2 client they own (spec.md §4.11).
func (h *Handler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	var req registerClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ownerID := GetUserID(r.Context())

	client, secret, err := h.oauth2Service.RegisterClient(r.Context(), ownerID, oauth2.CreateClientRequest{
		ClientName:   req.ClientName,
		RedirectURIs: req.RedirectURIs,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to register client: "+err.Error())
		return
	}

	resp := map[string]any{"client": client.ToPublic()}
	if secret != "" {
		resp["client_secret"] = secret
	}

	respondJSON(w, http.StatusCreated, resp)
}

// ListClients handles GET /client: lists the clients owned by the
// authenticated user.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	ownerID := GetUserID(r.Context())

	clients, err := h.oauth2Service.ListClients(r.Context(), ownerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list clients")
		return
	}

	out := make([]oauth2.PublicClient, 0, len(clients))
	for _, c := range clients {
		out = append(out, c.ToPublic())
	}

	respondJSON(w, http.StatusOK, map[string]any{"clients": out})
}

// GetClient handles GET /client/{clientID}.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	ownerID := GetUserID(r.Context())
	id := chi.URLParam(r, "clientID")

	client, err := h.oauth2Service.GetClient(r.Context(), id, ownerID)
	if err != nil {
		h.respondClientError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"client": client.ToPublic()})
}

// updateClientRequest is the PUT /client/{clientID} body. Pointer fields
// distinguish "omitted" from "set to empty/false" for a partial update.
type updateClientRequest struct {
	ClientName   *string  `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris"`
	IsActive     *bool    `json:"is_active"`
}

// UpdateClient handles PUT /client/{clientID}.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	ownerID := GetUserID(r.Context())
	id := chi.URLParam(r, "clientID")

	var req updateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	client, err := h.oauth2Service.UpdateClient(r.Context(), id, ownerID, oauth2.UpdateClientRequest{
		ClientName:   req.ClientName,
		RedirectURIs: req.RedirectURIs,
		IsActive:     req.IsActive,
	})
	if err != nil {
		h.respondClientError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"client": client.ToPublic()})
}

// DeleteClient handles DELETE /client/{clientID}: a soft delete
// (IsActive=false), per spec.md §4.11.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	ownerID := GetUserID(r.Context())
	id := chi.URLParam(r, "clientID")

	if err := h.oauth2Service.DeleteClient(r.Context(), id, ownerID); err != nil {
		h.respondClientError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "client deactivated"})
}

// RotateSecret handles POST /client/{clientID}/rotate-secret: issues a new
// client secret, keeping the previous one valid for a grace window.
func (h *Handler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	ownerID := GetUserID(r.Context())
	id := chi.URLParam(r, "clientID")

	client, secret, err := h.oauth2Service.RotateSecret(r.Context(), id, ownerID, secretRotationGrace)
	if err != nil {
		h.respondClientError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"client":        client.ToPublic(),
		"client_secret": secret,
	})
}

func (h *Handler) respondClientError(w http.ResponseWriter, err error) {
	switch err {
	case oauth2.ErrNotOwner:
		respondError(w, http.StatusForbidden, "client is not owned by the requesting user")
	case oauth2.ErrClientNotFound:
		respondError(w, http.StatusNotFound, "client not found")
	default:
		respondError(w, http.StatusBadRequest, err.Error())
	}
}
