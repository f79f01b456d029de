// Package httpapi is the REST surface: account management plus the durable
// chat history operations (listing, pagination, editing, reactions, search)
// that do not need a live WebSocket. Live traffic goes through internal/ws;
// both surfaces share the coordinator and the store.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kindredchat/kindred/internal/auth"
	"github.com/kindredchat/kindred/internal/coordinator"
	"github.com/kindredchat/kindred/internal/store"
)

// Blocker manages user-to-user blocks. Satisfied by block.Store; a nil
// Blocker disables the block endpoints.
type Blocker interface {
	Block(ctx context.Context, blockerID, blockedID string) error
	Unblock(ctx context.Context, blockerID, blockedID string) error
}

// Options configures the API. Store, Coordinator and Tokens are required.
type Options struct {
	Store           store.Store
	Coordinator     *coordinator.Coordinator
	Tokens          *auth.Manager
	Blocks          Blocker // optional
	PageSizeMax     int     // hard cap for page sizes, default 100
	MaxContentBytes int     // message payload cap, zero for the default
}

// API holds the REST handlers.
type API struct {
	store       store.Store
	coord       *coordinator.Coordinator
	tokens      *auth.Manager
	blocks      Blocker
	pageSizeMax int
	maxContent  int
}

// New creates the API.
func New(opts Options) *API {
	a := &API{
		store:       opts.Store,
		coord:       opts.Coordinator,
		tokens:      opts.Tokens,
		blocks:      opts.Blocks,
		pageSizeMax: opts.PageSizeMax,
		maxContent:  opts.MaxContentBytes,
	}
	if a.pageSizeMax <= 0 {
		a.pageSizeMax = 100
	}
	return a
}

// Router builds the route tree. The caller mounts it on the server mux.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/register", a.handleRegister)
	r.Post("/auth/login", a.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Get("/auth/me", a.handleMe)
		r.Put("/auth/profile", a.handleUpdateProfile)
		r.Put("/auth/chat-preference", a.handleUpdatePreference)

		r.Get("/chat", a.handleListChats)
		r.Get("/chat/{id}", a.handleGetChat)
		r.Get("/chat/{id}/messages", a.handleListMessages)
		r.Get("/chat/{id}/messages/search", a.handleSearchMessages)
		r.Post("/chat/{id}/messages", a.handlePostMessage)
		r.Put("/chat/{id}/end", a.handleEndChat)
		r.Put("/chat/{id}/archive", a.handleArchive(true))
		r.Put("/chat/{id}/unarchive", a.handleArchive(false))

		r.Put("/messages/{id}", a.handleEditMessage)
		r.Delete("/messages/{id}", a.handleDeleteMessage)
		r.Post("/messages/{id}/reactions", a.handleAddReaction)

		r.Post("/chat/block/{userId}", a.handleBlock(true))
		r.Post("/chat/unblock/{userId}", a.handleBlock(false))
		r.Post("/chat/create-session", a.handleCreateSession)
		r.Post("/chat/start-search", a.handleStartSearch)
	})

	return r
}

type ctxKey int

const userIDKey ctxKey = 0

// requireAuth verifies the bearer token and stores the caller's user id in the
// request context.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.TokenFromRequest(r)
		if err != nil {
			writeErrorStatus(w, http.StatusUnauthorized, "auth_required", err.Error())
			return
		}
		claims, err := a.tokens.Verify(token)
		if err != nil {
			writeErrorStatus(w, http.StatusUnauthorized, "auth_required", "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerID returns the authenticated user id placed by requireAuth.
func callerID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
