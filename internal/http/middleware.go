package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
	"github.com/chambahq/identity-core/internal/ports"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// FlagsFactory builds the flag surface for one device scope.
type FlagsFactory func(deviceID string) ports.FlagSurface

// isBrowserRequest reports whether the client expects an HTML navigation
// rather than a JSON payload.
func isBrowserRequest(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return false
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		// No Accept header, assume a browser navigation.
		return true
	}
	return strings.Contains(accept, "text/html")
}

// redirectToLogin sends an unauthenticated browser to the sign-in entry
// point, carrying the original target so the callback can return there.
func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := safeRedirectPath(r.URL.RequestURI())
	http.Redirect(w, r, "/auth/login?redirect_uri="+url.QueryEscape(target), http.StatusSeeOther)
}

// denySignedOut redirects browser requests to the sign-in entry point and
// answers AJAX requests with 401 JSON.
func denySignedOut(w http.ResponseWriter, r *http.Request) {
	if isBrowserRequest(r) {
		redirectToLogin(w, r)
		return
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: "unauthenticated",
		Err:     errors.New("sign-in required"),
	})
}

// RequireSession returns a route-guard middleware that consults only the flag
// surface. The flags are advisory: a stale true lets the request through to a
// handler that then fails session validation, a stale false costs the user a
// sign-in round-trip. Neither outcome grants access by itself.
func RequireSession(flags FlagsFactory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, err := flags(DeviceID(r)).Read(r.Context())
			if err != nil || !got.HasSession {
				denySignedOut(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole returns a route-guard middleware that requires a signed-in
// session whose flagged role matches.
func RequireRole(flags FlagsFactory, role domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, err := flags(DeviceID(r)).Read(r.Context())
			if err != nil || !got.HasSession {
				denySignedOut(w, r)
				return
			}
			if got.Role != role {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "forbidden",
					Err:     errors.New("insufficient role"),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
