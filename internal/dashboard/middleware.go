package dashboard

import (
	"net"
	"net/http"
	"time"

	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"

	"guildwarden/internal/kv"
)

func (s *Server) recoverMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Dashboard handler panicked",
					zap.String("route", req.Route()),
					zap.Any("panic", r))
				err = writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		return next(w, req)
	}
}

func (s *Server) logMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		start := time.Now()
		err := next(w, req)
		s.logger.Debug("Dashboard request",
			zap.String("method", req.Method),
			zap.String("route", req.Route()),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		return err
	}
}

// rateLimitMiddleware counts requests per client address in a one-minute
// sliding window shared through the kv store.
func (s *Server) rateLimitMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		client := clientAddr(req.Request)
		count, err := s.kv.Hit(req.Context(), kv.RateKey("api", client), time.Minute)
		if err != nil {
			s.logger.Warn("Rate limiter unavailable", zap.Error(err))
			return next(w, req)
		}
		if count > s.opts.RequestsPerMinute {
			w.Header().Set("Retry-After", "60")
			return writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		}
		return next(w, req)
	}
}

func (s *Server) sessionMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		cookie, err := req.Cookie(sessionCookie)
		if err != nil {
			return writeError(w, http.StatusUnauthorized, "Not logged in")
		}
		session, err := s.sessions.Get(req.Context(), cookie.Value)
		if err != nil {
			if err != errNoSession {
				s.logger.Warn("Session lookup failed", zap.Error(err))
			}
			return writeError(w, http.StatusUnauthorized, "Not logged in")
		}
		return next(w, req.WithContext(withSession(req.Context(), session)))
	}
}

func (s *Server) guildMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		session, ok := sessionFrom(req.Context())
		if !ok || !session.CanManage(req.Param("id")) {
			return writeError(w, http.StatusForbidden, "You cannot manage this server")
		}
		return next(w, req)
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return bunrouter.JSON(w, body)
}

func writeError(w http.ResponseWriter, status int, message string) error {
	return writeJSON(w, status, map[string]any{"error": message})
}

func writeValidation(w http.ResponseWriter, details any) error {
	return writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":   "Validation failed",
		"details": details,
	})
}
