package httpx

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
	"github.com/chambahq/identity-core/internal/observability/metrics"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Cores *CoreRegistry
	Flags FlagsFactory

	Logger       *slog.Logger
	CookieDomain string
	// DeviceCookieName names the cookie that scopes session state to a
	// browser.
	DeviceCookieName string

	// MetricsRegistry serves the Prometheus endpoint when non-nil.
	MetricsRegistry *prometheus.Registry
	MetricsPath     string

	// ReadinessChecks pings backing stores for the readiness endpoint.
	ReadinessChecks map[string]ReadinessCheck
}

// NewRouter builds the HTTP handler tree.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if services.DeviceCookieName == "" {
		services.DeviceCookieName = "identity_device"
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	if len(services.ReadinessChecks) > 0 {
		mux.Handle("GET /readyz", readinessHandler(services.ReadinessChecks))
	}

	if services.MetricsRegistry != nil {
		path := services.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, metrics.Handler(services.MetricsRegistry))
	}

	auth := &AuthHandlers{
		Cores:        services.Cores,
		CookieDomain: services.CookieDomain,
		Logger:       logger,
	}
	mux.HandleFunc("GET /auth/login", auth.Login)
	mux.HandleFunc("POST /auth/magic-link", auth.MagicLink)
	mux.HandleFunc("GET /auth/callback", auth.Callback)
	mux.HandleFunc("GET /auth/session", auth.Session)
	mux.HandleFunc("POST /auth/logout", auth.Logout)

	// Guarded demo surfaces: the guard consults only the flag surface.
	guard := RequireSession(services.Flags)
	creatorOnly := RequireRole(services.Flags, domainauth.RoleCreator)
	companyOnly := RequireRole(services.Flags, domainauth.RoleCompany)
	mux.Handle("GET /onboarding/role", guard(placeholderPage("role selection")))
	mux.Handle("GET /onboarding/creator", guard(placeholderPage("creator onboarding")))
	mux.Handle("GET /creator", creatorOnly(placeholderPage("creator home")))
	mux.Handle("GET /company", companyOnly(placeholderPage("company home")))

	handler := DeviceScope(services.DeviceCookieName, services.CookieDomain)(mux)
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}

// placeholderPage stands in for the UI that consumes this service.
func placeholderPage(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"page": name})
	})
}
