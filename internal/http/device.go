package httpx

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// deviceIDKey is an unexported context key type for the device id.
type deviceIDKey struct{}

// DeviceScope returns a middleware that ensures every request carries a
// device cookie and exposes the device id through the request context. Each
// browser gets its own session state keyed by this id.
func DeviceScope(cookieName, cookieDomain string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(cookieName); err == nil && validDeviceID(c.Value) {
				id = c.Value
			}
			if id == "" {
				id = uuid.NewString()
				isSecure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    id,
					Path:     "/",
					Domain:   cookieDomain,
					HttpOnly: true,
					Secure:   isSecure,
					SameSite: http.SameSiteLaxMode,
					MaxAge:   60 * 60 * 24 * 365,
				})
			}
			ctx := context.WithValue(r.Context(), deviceIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DeviceID returns the device id placed in the context by DeviceScope, or ""
// when the middleware did not run.
func DeviceID(r *http.Request) string {
	id, _ := r.Context().Value(deviceIDKey{}).(string)
	return id
}

func validDeviceID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}

// CoreFactory builds the session core for one device scope.
type CoreFactory func(deviceID string) SessionCore

const (
	coreIdleTTL       = 24 * time.Hour
	coreSweepInterval = time.Hour
)

// CoreRegistry hands out one session core per device id. Reuse matters: the
// in-process cache and the in-flight resolution state live inside the core,
// so two requests from the same browser must see the same instance. Cores
// idle past the TTL are evicted; a returning device gets a fresh core whose
// state is recovered from the token store.
type CoreRegistry struct {
	factory CoreFactory

	mu    sync.Mutex
	cores *gocache.Cache
}

// NewCoreRegistry creates a CoreRegistry around a factory.
func NewCoreRegistry(factory CoreFactory) *CoreRegistry {
	return newCoreRegistry(factory, coreIdleTTL, coreSweepInterval)
}

func newCoreRegistry(factory CoreFactory, idleTTL, sweep time.Duration) *CoreRegistry {
	return &CoreRegistry{factory: factory, cores: gocache.New(idleTTL, sweep)}
}

// For returns the core for a device id, creating it on first use. Each
// access slides the idle window.
func (reg *CoreRegistry) For(deviceID string) SessionCore {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if v, ok := reg.cores.Get(deviceID); ok {
		core := v.(SessionCore)
		reg.cores.SetDefault(deviceID, core)
		return core
	}
	core := reg.factory(deviceID)
	reg.cores.SetDefault(deviceID, core)
	return core
}
