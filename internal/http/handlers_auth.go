package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
	apperrors "github.com/chambahq/identity-core/internal/errors"
	"github.com/chambahq/identity-core/internal/service"
)

// SessionCore defines the session operations the HTTP layer needs.
type SessionCore interface {
	StartSignIn(ctx context.Context, in service.StartSignInInput) (*service.StartSignInResult, error)
	CompleteCallback(ctx context.Context, in service.CallbackInput) (*service.CallbackResult, error)
	CheckSession(ctx context.Context) (service.SessionState, error)
	SignOut(ctx context.Context) error
}

// AuthHandlers provides HTTP handlers for the sign-in, callback, session, and
// sign-out endpoints.
type AuthHandlers struct {
	Cores        *CoreRegistry
	CookieDomain string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) core(r *http.Request) SessionCore {
	return h.Cores.For(DeviceID(r))
}

// routePath maps a navigation target to a UI path.
func routePath(route domainauth.Route) string {
	switch route {
	case domainauth.RouteRoleSelection:
		return "/onboarding/role"
	case domainauth.RouteCreatorOnboarding:
		return "/onboarding/creator"
	case domainauth.RouteCreatorHome:
		return "/creator"
	case domainauth.RouteCompanyHome:
		return "/company"
	default:
		return "/"
	}
}

// Login handles the OAuth sign-in initiation endpoint.
// GET /auth/login?redirect_uri=<optional_redirect>&prompt=select_account.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	result, err := h.core(r).StartSignIn(r.Context(), service.StartSignInInput{
		Method:              domainauth.MethodOAuthRedirect,
		ReturnURL:           redirectURI,
		ForceAccountChooser: r.URL.Query().Get("prompt") == "select_account",
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "sign-in start failed", "error", err)
		WriteAppError(w, err)
		return
	}

	// Already signed in with a fresh session: skip the provider round-trip.
	if result.Existing != nil {
		http.Redirect(w, r, postSignInTarget(redirectURI, result.Existing.Profile), http.StatusFound)
		return
	}

	h.setFlowCookies(w, r, flowCookieParams{
		State:       result.Flow.State,
		Nonce:       result.Flow.Nonce,
		RedirectURI: redirectURI,
	})
	http.Redirect(w, r, result.Flow.AuthURL, http.StatusFound)
}

// magicLinkRequest is the body for the magic-link endpoint.
type magicLinkRequest struct {
	Email       string `json:"email"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// MagicLink handles the magic-link sign-in initiation endpoint.
// POST /auth/magic-link.
func (h *AuthHandlers) MagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.core(r).StartSignIn(r.Context(), service.StartSignInInput{
		Method:    domainauth.MethodMagicLink,
		Email:     req.Email,
		ReturnURL: safeRedirectPath(req.RedirectURI),
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "magic link start failed", "error", err)
		WriteAppError(w, err)
		return
	}

	if result.Existing != nil {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "signed_in",
			"redirect_to": postSignInTarget("", result.Existing.Profile),
		})
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":        "link_sent",
		"pending_email": result.PendingEmail,
	})
}

// Callback handles the provider's asynchronous return.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	nonce := ""

	// A payload carrying a code must match the state and nonce issued when
	// the flow started. A bare return (no code) falls back to asking the
	// provider for an existing live session.
	if code != "" {
		stateCookie, err := r.Cookie("oauth_state")
		if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "invalid_state",
				Err:     errors.New("invalid or missing state parameter"),
			})
			return
		}
		nonceCookie, err := r.Cookie("oauth_nonce")
		if err != nil {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "missing_nonce",
				Err:     errors.New("missing nonce parameter"),
			})
			return
		}
		nonce = nonceCookie.Value
	}

	result, err := h.core(r).CompleteCallback(r.Context(), service.CallbackInput{
		Code:  code,
		State: state,
		Nonce: nonce,
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "callback completion failed", "error", err)
		WriteAppError(w, err)
		return
	}

	h.clearCookie(w, r, "oauth_state")
	h.clearCookie(w, r, "oauth_nonce")

	redirectURI := h.takePostSignInRedirect(w, r)
	http.Redirect(w, r, postSignInTarget(redirectURI, result.Profile), http.StatusFound)
}

// sessionResponse is the body returned by the session endpoint.
type sessionResponse struct {
	State      domainauth.State     `json:"state"`
	Identity   *domainauth.Identity `json:"identity,omitempty"`
	Profile    *domainauth.Profile  `json:"profile,omitempty"`
	RedirectTo string               `json:"redirect_to"`
}

// Session reports the current session state.
// GET /auth/session.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	state, err := h.core(r).CheckSession(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}

	resp := sessionResponse{State: state.State, RedirectTo: "/auth/login"}
	if state.State == domainauth.StateAuthenticated && state.Session != nil {
		resp.Identity = &state.Session.Identity
		resp.Profile = state.Session.Profile
		resp.RedirectTo = routePath(service.ResolveRedirectTarget(state.Session.Profile))
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Logout tears down the session.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.core(r).SignOut(r.Context()); err != nil {
		// Local teardown errors still cleared the in-process session; report
		// them so callers can surface a degraded sign-out.
		h.logger().ErrorContext(r.Context(), "sign-out teardown incomplete", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: string(apperrors.ErrCodeStoreWriteFailed),
			Err:     err,
		})
		return
	}

	h.clearCookie(w, r, "oauth_state")
	h.clearCookie(w, r, "oauth_nonce")
	h.clearCookie(w, r, "post_signin_redirect")

	// AJAX requests get a JSON payload; regular requests redirect.
	isAJAX := strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
	if isAJAX {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "signed_out",
			"redirect_to": "/auth/login",
		})
		return
	}
	http.Redirect(w, r, "/auth/login", http.StatusFound)
}

// postSignInTarget prefers an explicitly requested redirect over the
// profile-derived route.
func postSignInTarget(redirectURI string, profile *domainauth.Profile) string {
	if redirectURI != "" && redirectURI != "/" {
		return redirectURI
	}
	return routePath(service.ResolveRedirectTarget(profile))
}

// safeRedirectPath allows only relative paths (no scheme/host); anything else
// collapses to "/".
func safeRedirectPath(raw string) string {
	if raw == "" {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return "/"
	}
	return raw
}

func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	isSecure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecure,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// flowCookieParams groups values needed to set flow cookies (≤3 params rule).
type flowCookieParams struct {
	State       string
	Nonce       string
	RedirectURI string
}

// setFlowCookies stores the flow state, nonce, and the post-sign-in redirect
// in secure cookies.
func (h *AuthHandlers) setFlowCookies(w http.ResponseWriter, r *http.Request, p flowCookieParams) {
	isSecure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")

	for name, value := range map[string]string{
		"oauth_state":          p.State,
		"oauth_nonce":          p.Nonce,
		"post_signin_redirect": p.RedirectURI,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Domain:   h.CookieDomain,
			HttpOnly: true,
			Secure:   isSecure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   600, // 10 minutes
		})
	}
}

// takePostSignInRedirect returns the stored post-sign-in redirect and clears
// the cookie.
func (h *AuthHandlers) takePostSignInRedirect(w http.ResponseWriter, r *http.Request) string {
	redirectURI := ""
	if c, err := r.Cookie("post_signin_redirect"); err == nil {
		redirectURI = safeRedirectPath(c.Value)
		h.clearCookie(w, r, "post_signin_redirect")
	}
	return redirectURI
}
