package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/meridian-dms/meridian-dms/internal/platform/httpx"
)

// Middleware wires session loading and permission checks for HTTP handlers.
type Middleware struct {
	Sessions *SessionManager
	Logger   *slog.Logger
}

// committingWriter flushes the session to Redis and sets the cookie right
// before the first byte of the response goes out, so handlers can mutate the
// session at any point.
type committingWriter struct {
	http.ResponseWriter
	ctx           context.Context
	sess          *Session
	manager       *SessionManager
	logger        *slog.Logger
	headerWritten bool
}

func (w *committingWriter) WriteHeader(statusCode int) {
	if !w.headerWritten {
		w.headerWritten = true
		if err := w.manager.Commit(w.ctx, w.ResponseWriter, w.sess); err != nil && w.logger != nil {
			w.logger.Error("commit session", slog.Any("error", err))
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *committingWriter) Write(data []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}

// LoadSession resolves the request's session and stores it in context. The
// session commits lazily on first response write.
func (m Middleware) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.Sessions.Load(r.Context(), r)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("load session", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		ctx := ContextWithSession(r.Context(), sess)
		wrapped := &committingWriter{
			ResponseWriter: w,
			ctx:            ctx,
			sess:           sess,
			manager:        m.Sessions,
			logger:         m.Logger,
		}
		next.ServeHTTP(wrapped, r.WithContext(ctx))
	})
}

// RequireAny ensures the current user holds at least one of the permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(perms, func(role Role, required []string) bool {
		for _, p := range required {
			if role.Has(p) {
				return true
			}
		}
		return len(required) == 0
	})
}

// RequireAll ensures the current user holds every permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(perms, func(role Role, required []string) bool {
		for _, p := range required {
			if !role.Has(p) {
				return false
			}
		}
		return true
	})
}

func (m Middleware) require(perms []string, allow func(Role, []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromContext(r.Context())
			if sess == nil || sess.UserID() == 0 {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
				return
			}
			if !allow(sess.Role(), perms) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
