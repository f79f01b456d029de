package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kindredchat/kindred/internal/chat"
	"github.com/kindredchat/kindred/internal/fault"
	"github.com/kindredchat/kindred/internal/store"
)

const defaultPageSize = 50

func (a *API) handleListChats(w http.ResponseWriter, r *http.Request) {
	var f store.SessionFilter
	if r.URL.Query().Get("active") == "true" {
		f.ActiveOnly = true
	}
	if v := r.URL.Query().Get("archived"); v == "true" || v == "false" {
		archived := v == "true"
		f.Archived = &archived
	}

	sessions, err := a.store.Sessions().ListForUser(r.Context(), callerID(r), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": viewSessions(sessions)})
}

// sessionFor loads a session and requires the caller to be a participant.
// A missing session surfaces the same session_not_found code the WebSocket
// path emits.
func (a *API) sessionFor(r *http.Request, sessionID string) (*store.Session, error) {
	sess, err := a.store.Sessions().Get(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.New(fault.SessionNotFound, "session does not exist")
	}
	if err != nil {
		return nil, err
	}
	if !sess.HasParticipant(callerID(r)) {
		return nil, fault.New(fault.NotAParticipant, "you are not part of this session")
	}
	return sess, nil
}

func (a *API) handleGetChat(w http.ResponseWriter, r *http.Request) {
	sess, err := a.sessionFor(r, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(sess))
}

// pageParams parses page and limit, clamping limit to the configured cap.
func (a *API) pageParams(r *http.Request) (page, limit int) {
	page, limit = 1, defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > a.pageSizeMax {
		limit = a.pageSizeMax
	}
	return page, limit
}

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sess, err := a.sessionFor(r, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	page, limit := a.pageParams(r)
	msgs, err := a.store.Messages().Paginate(r.Context(), sess.ID, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": viewMessages(msgs),
		"page":     page,
		"limit":    limit,
	})
}

func (a *API) handleSearchMessages(w http.ResponseWriter, r *http.Request) {
	sess, err := a.sessionFor(r, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, fault.New(fault.InvalidContent, "search query is required"))
		return
	}
	_, limit := a.pageParams(r)
	msgs, err := a.store.Messages().Search(r.Context(), sess.ID, q, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": viewMessages(msgs)})
}

func (a *API) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	msg, err := a.coord.SendMessage(r.Context(), callerID(r), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewMessage(msg))
}

func (a *API) handleEndChat(w http.ResponseWriter, r *http.Request) {
	if err := a.coord.EndChat(r.Context(), callerID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ended": true})
}

func (a *API) handleArchive(archived bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.coord.ArchiveChat(r.Context(), callerID(r), chi.URLParam(r, "id"), archived); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"archived": archived})
	}
}

func (a *API) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := chat.ValidateContent(req.Content, a.maxContent); err != nil {
		writeError(w, err)
		return
	}
	msg, err := a.store.Messages().Edit(r.Context(), chi.URLParam(r, "id"), callerID(r), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewMessage(msg))
}

func (a *API) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Messages().Delete(r.Context(), chi.URLParam(r, "id"), callerID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddReaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Emoji) == "" {
		writeError(w, fault.New(fault.InvalidContent, "emoji is required"))
		return
	}
	if err := a.store.Messages().AddReaction(r.Context(), chi.URLParam(r, "id"), callerID(r), req.Emoji); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reacted": true})
}

func (a *API) handleBlock(block bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.blocks == nil {
			writeErrorStatus(w, http.StatusServiceUnavailable, "storage_failure", "blocking is not enabled")
			return
		}
		other := chi.URLParam(r, "userId")
		if other == "" || other == callerID(r) {
			writeError(w, fault.New(fault.InvalidContent, "invalid user id"))
			return
		}
		var err error
		if block {
			err = a.blocks.Block(r.Context(), callerID(r), other)
		} else {
			err = a.blocks.Unblock(r.Context(), callerID(r), other)
		}
		if err != nil {
			writeError(w, fault.Wrap(fault.StorageFailure, "could not update block list", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"blocked": block})
	}
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Type   string `json:"type"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := a.coord.CreateSession(r.Context(), callerID(r), req.UserID, store.ChatType(req.Type))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewSession(sess))
}

func (a *API) handleStartSearch(w http.ResponseWriter, r *http.Request) {
	if err := a.coord.StartSearch(r.Context(), callerID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"searching": true})
}
