package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

type AuthorizeFunc func(r *http.Request, identity Identity) error

type Middleware struct {
	Logger        *slog.Logger
	Authenticator Authenticator
	Authorize     AuthorizeFunc
	SkipPrefixes  []string
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range m.SkipPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		identity, err := m.Authenticator.Authenticate(r.Context(), r)
		if err != nil {
			code := "invalid_credentials"
			if errors.Is(err, ErrUnauthenticated) {
				code = "unauthorized"
			}
			m.logDeny(r, http.StatusUnauthorized, code, err)
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":      code,
				"request_id": r.Header.Get("X-Request-Id"),
			})
			return
		}

		if m.Authorize != nil {
			if err := m.Authorize(r, identity); err != nil {
				m.logDeny(r, http.StatusForbidden, "forbidden", err, "subject", identity.Subject)
				writeJSON(w, http.StatusForbidden, map[string]any{
					"error":      "forbidden",
					"request_id": r.Header.Get("X-Request-Id"),
				})
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

func (m Middleware) logDeny(r *http.Request, status int, reason string, err error, extra ...any) {
	if m.Logger == nil {
		return
	}
	attrs := []any{
		"request_id", r.Header.Get("X-Request-Id"),
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"reason", reason,
		"error", err.Error(),
	}
	attrs = append(attrs, extra...)
	m.Logger.Warn("auth denied", attrs...)
}

// MethodRoleAuthorizer requires the writer role for mutating methods and
// the reader role otherwise.
func MethodRoleAuthorizer(readerRole, writerRole string) AuthorizeFunc {
	return func(r *http.Request, identity Identity) error {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			if identity.HasRole(readerRole) || identity.HasRole(writerRole) {
				return nil
			}
		default:
			if identity.HasRole(writerRole) {
				return nil
			}
		}
		return ErrForbidden
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}
