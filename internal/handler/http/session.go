package http

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"

	"github.com/cropcarry/marketplace/internal/user"
)

const (
	sessionName = "cropcarry_session"

	sessionUserKey    = "user_id"
	sessionPendingKey = "pending_user_id"
)

type contextKey string

const userContextKey contextKey = "current_user"

// Sessions wraps the cookie store and the user lookup needed to resolve the
// current user on each request.
type Sessions struct {
	store *sessions.CookieStore
	users user.Service
}

func NewSessions(secret string, users user.Service) *Sessions {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	return &Sessions{store: store, users: users}
}

func (s *Sessions) get(r *http.Request) *sessions.Session {
	// Get never fails fatally: a broken cookie yields a fresh session.
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to decode session cookie, starting a new session")
	}
	return session
}

func (s *Sessions) save(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
	if err := session.Save(r, w); err != nil {
		log.Error().Err(err).Msg("Failed to save session")
	}
}

func (s *Sessions) setUser(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	session := s.get(r)
	session.Values[sessionUserKey] = id.String()
	delete(session.Values, sessionPendingKey)
	s.save(w, r, session)
}

func (s *Sessions) setPendingUser(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	session := s.get(r)
	session.Values[sessionPendingKey] = id.String()
	s.save(w, r, session)
}

func (s *Sessions) pendingUser(r *http.Request) (uuid.UUID, bool) {
	session := s.get(r)
	raw, ok := session.Values[sessionPendingKey].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (s *Sessions) clear(w http.ResponseWriter, r *http.Request) {
	session := s.get(r)
	session.Values = make(map[interface{}]interface{})
	session.Options.MaxAge = -1
	s.save(w, r, session)
}

// RequireAuth resolves the logged-in user from the session and stores it on
// the request context. Unauthenticated requests get a 401.
func (s *Sessions) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := s.get(r)
		raw, ok := session.Values[sessionUserKey].(string)
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		id, err := uuid.FromString(raw)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		u, err := s.users.GetByID(r.Context(), id)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole gates a subtree to one role. Must run after RequireAuth.
func RequireRole(role user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := currentUser(r)
			if !ok || u.Role != role {
				respondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func currentUser(r *http.Request) (*user.User, bool) {
	u, ok := r.Context().Value(userContextKey).(*user.User)
	return u, ok
}
