package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront/internal/id/uuid"
)

const (
	sessionCookie = "sf_session"
	sessionMaxAge = 30 * 24 * time.Hour
)

type sessionKey struct{}

// sessionMiddleware attaches the shopper session, issuing a fresh cookie when
// the request has none or carries a malformed one.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(sessionCookie); err == nil && uuid.Valid(c.Value) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, c.Value)))
			return
		}
		id, err := s.deps.Sessions.NewSessionID()
		if err != nil {
			s.logger.Error("issue session", zap.Error(err))
			s.renderError(w, r, http.StatusInternalServerError, "Something went wrong.")
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    id,
			Path:     "/",
			MaxAge:   int(sessionMaxAge.Seconds()),
			HttpOnly: true,
			Secure:   s.cfg.Server.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, id)))
	})
}

func sessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
