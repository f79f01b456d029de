package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kindredchat/kindred/internal/auth"
	"github.com/kindredchat/kindred/internal/fault"
	"github.com/kindredchat/kindred/internal/matching"
	"github.com/kindredchat/kindred/internal/store"
)

type registerRequest struct {
	Username   string   `json:"username"`
	Password   string   `json:"password"`
	Interests  []string `json:"interests"`
	Preference string   `json:"chat_preference"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, fault.New(fault.InvalidContent, "username is required"))
		return
	}
	if len(req.Password) < 8 {
		writeError(w, fault.New(fault.InvalidContent, "password must be at least 8 characters"))
		return
	}
	pref := store.ChatType(req.Preference)
	if req.Preference == "" {
		pref = store.ChatFriendship
	}
	if !pref.Valid() {
		writeError(w, fault.New(fault.InvalidContent, "unknown chat preference"))
		return
	}
	interests := matching.NormalizeInterests(req.Interests)

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	u, err := a.store.Users().Create(r.Context(), req.Username, hash, interests, pref)
	if errors.Is(err, store.ErrConflict) {
		writeError(w, fault.New(fault.InvalidContent, "username is taken"))
		return
	}
	if err != nil {
		writeError(w, fault.Wrap(fault.StorageFailure, "could not create user", err))
		return
	}

	token, err := a.tokens.Issue(u.ID, u.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, User: viewUser(u)})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, hash, err := a.store.Users().FindByCredentials(r.Context(), req.Username)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !auth.CheckPassword(hash, req.Password)) {
		// One message for both failure modes so usernames cannot be probed.
		writeErrorStatus(w, http.StatusUnauthorized, "auth_required", "invalid username or password")
		return
	}
	if err != nil {
		writeError(w, fault.Wrap(fault.StorageFailure, "could not load user", err))
		return
	}

	token, err := a.tokens.Issue(u.ID, u.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: viewUser(u)})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := a.store.Users().GetByID(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewUser(u))
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Interests []string `json:"interests"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	interests := matching.NormalizeInterests(req.Interests)
	if len(interests) == 0 {
		writeError(w, fault.New(fault.InvalidContent, "at least one interest is required"))
		return
	}
	if err := a.store.Users().UpdateProfile(r.Context(), callerID(r), interests); err != nil {
		writeError(w, err)
		return
	}
	u, err := a.store.Users().GetByID(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewUser(u))
}

func (a *API) handleUpdatePreference(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Preference string `json:"chat_preference"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pref := store.ChatType(req.Preference)
	if !pref.Valid() {
		writeError(w, fault.New(fault.InvalidContent, "unknown chat preference"))
		return
	}
	if err := a.store.Users().UpdatePreference(r.Context(), callerID(r), pref); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"chat_preference": string(pref)})
}
