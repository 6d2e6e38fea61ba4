package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/actiongate/internal/actions"
	"github.com/ziadkadry99/actiongate/internal/apitoken"
	"github.com/ziadkadry99/actiongate/internal/audit"
	"github.com/ziadkadry99/actiongate/internal/callback"
	"github.com/ziadkadry99/actiongate/internal/service"
)

func (s *Server) registerRoutes(r chi.Router) {
	r.Route("/api/callbacks/{token}", func(r chi.Router) {
		r.Post("/redeem", s.handleRedeem)
		r.Post("/retry", s.handleRetry)
	})
	r.Post("/api/actions", s.handleIssueActions)

	if s.audits != nil {
		r.Group(func(r chi.Router) {
			r.Use(s.requireScope(apitoken.ScopeAdmin))
			audit.RegisterRoutes(r, s.audits)
		})
	}
	if s.hub != nil {
		r.Get("/api/events", s.handleEvents)
	}
}

// authError carries the HTTP status an authentication failure maps to.
type authError struct {
	status  int
	message string
}

func (e *authError) Error() string { return e.message }

// authenticate resolves the calling user. A bearer API token wins; the
// X-User-ID header is honored only in dev mode.
func (s *Server) authenticate(r *http.Request, scope string) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			return "", &authError{http.StatusUnauthorized, "malformed authorization header"}
		}
		if s.tokens == nil {
			return "", &authError{http.StatusUnauthorized, "api tokens are not enabled"}
		}
		token, err := s.tokens.Authenticate(r.Context(), header[len(prefix):])
		if err != nil {
			return "", &authError{http.StatusUnauthorized, "invalid api token"}
		}
		if !token.Allows(scope) {
			return "", &authError{http.StatusForbidden, "insufficient scope"}
		}
		return token.UserID, nil
	}

	if s.cfg.DevAuth {
		if userID := r.Header.Get("X-User-ID"); userID != "" {
			return userID, nil
		}
	}
	return "", &authError{http.StatusUnauthorized, "authentication required"}
}

// requireScope is the middleware form of authenticate for route groups.
func (s *Server) requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := s.authenticate(r, scope); err != nil {
				writeAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r, apitoken.ScopeRedeem)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	token := chi.URLParam(r, "token")
	if _, err := callback.ParseToken(token); err != nil {
		writeError(w, http.StatusUnauthorized, "malformed callback token")
		return
	}

	rec, err := s.store.GetAndLock(r.Context(), token)
	if errors.Is(err, callback.ErrNotFound) {
		writeError(w, http.StatusNotFound, "callback not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := s.svc.Handle(r.Context(), rec, userID)
	writeOutcome(w, resp)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r, apitoken.ScopeRedeem)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	token := chi.URLParam(r, "token")
	if _, err := callback.ParseToken(token); err != nil {
		writeError(w, http.StatusUnauthorized, "malformed callback token")
		return
	}

	// Possession of the token is not enough to re-arm it: the caller
	// must pass the same access policy a redemption would.
	rec, err := s.store.Get(r.Context(), token)
	if errors.Is(err, callback.ErrNotFound) {
		writeError(w, http.StatusNotFound, "callback not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.policy != nil {
		if err := s.policy.Authorize(rec, userID); err != nil {
			writeError(w, http.StatusForbidden, "user may not retry this action")
			return
		}
	}

	rec, err = s.store.Retry(r.Context(), token)
	if errors.Is(err, callback.ErrNotFound) {
		writeError(w, http.StatusNotFound, "callback not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":   rec.Token,
		"status":  rec.Status,
		"retries": rec.Retries,
	})
}

func (s *Server) handleIssueActions(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r, apitoken.ScopeIssue); err != nil {
		writeAuthError(w, err)
		return
	}

	var req actions.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	buttons, err := s.issuer.IssueAll(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"buttons": buttons})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r, apitoken.ScopeAdmin); err != nil {
		writeAuthError(w, err)
		return
	}
	s.hub.ServeWS(w, r)
}

// writeOutcome maps a redemption response to its HTTP status.
func writeOutcome(w http.ResponseWriter, resp service.Response) {
	status := http.StatusOK
	switch resp.Outcome {
	case callback.OutcomeUnauthorized:
		status = http.StatusForbidden
	case callback.OutcomeRateLimited:
		status = http.StatusTooManyRequests
		secs := int(resp.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	case callback.OutcomeDuplicate:
		// A duplicate whose winner completed answers with the cached
		// result; an unresolved duplicate is a conflict.
		if !resp.Success {
			status = http.StatusConflict
		}
	case callback.OutcomeHandlerNotFound:
		status = http.StatusInternalServerError
	case callback.OutcomeNotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, resp)
}

func writeAuthError(w http.ResponseWriter, err error) {
	var ae *authError
	if errors.As(err, &ae) {
		writeError(w, ae.status, ae.message)
		return
	}
	writeError(w, http.StatusUnauthorized, "authentication required")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
