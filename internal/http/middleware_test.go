package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
	mocks "github.com/chambahq/identity-core/internal/mocks/auth"
	"github.com/chambahq/identity-core/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func flagsWith(flags domainauth.Flags) FlagsFactory {
	surface := &mocks.MemoryFlagSurface{}
	_ = surface.Set(context.Background(), flags)
	return func(string) ports.FlagSurface { return surface }
}

func TestRequireSession(t *testing.T) {
	tests := []struct {
		name         string
		flags        domainauth.Flags
		accept       string
		wantStatus   int
		wantLocation string
	}{
		{"signed in", domainauth.Flags{HasSession: true}, "text/html", http.StatusOK, ""},
		{"signed out browser redirects to login", domainauth.Flags{}, "text/html", http.StatusSeeOther, "/auth/login?redirect_uri=%2Fonboarding%2Frole"},
		{"signed out without accept header redirects", domainauth.Flags{}, "", http.StatusSeeOther, "/auth/login?redirect_uri=%2Fonboarding%2Frole"},
		{"signed out ajax gets 401", domainauth.Flags{}, "application/json", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := RequireSession(flagsWith(tt.flags))
			req := httptest.NewRequest(http.MethodGet, "/onboarding/role", nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()
			mw(okHandler()).ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
		})
	}
}

func TestRequireSession_XHRGets401EvenWithHTMLAccept(t *testing.T) {
	mw := RequireSession(flagsWith(domainauth.Flags{}))
	req := httptest.NewRequest(http.MethodGet, "/creator", nil)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name         string
		flags        domainauth.Flags
		role         domainauth.Role
		accept       string
		wantStatus   int
		wantLocation string
	}{
		{"matching role", domainauth.Flags{HasSession: true, Role: domainauth.RoleCreator}, domainauth.RoleCreator, "text/html", http.StatusOK, ""},
		{"wrong role", domainauth.Flags{HasSession: true, Role: domainauth.RoleCompany}, domainauth.RoleCreator, "text/html", http.StatusForbidden, ""},
		{"no session browser redirects", domainauth.Flags{}, domainauth.RoleCreator, "text/html", http.StatusSeeOther, "/auth/login?redirect_uri=%2Fcreator"},
		{"no session ajax gets 401", domainauth.Flags{}, domainauth.RoleCreator, "application/json", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := RequireRole(flagsWith(tt.flags), tt.role)
			req := httptest.NewRequest(http.MethodGet, "/creator", nil)
			req.Header.Set("Accept", tt.accept)
			rec := httptest.NewRecorder()
			mw(okHandler()).ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
		})
	}
}

func TestRecover(t *testing.T) {
	mw := Recover(discardLogger())
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	mw(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDeviceScope_AssignsAndPreservesCookie(t *testing.T) {
	var seen []string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, DeviceID(r))
		w.WriteHeader(http.StatusOK)
	})
	mw := DeviceScope("identity_device", "")

	// First request: no cookie, one gets assigned.
	rec := httptest.NewRecorder()
	mw(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, seen, 1)
	require.NotEmpty(t, seen[0])

	var device *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "identity_device" {
			device = c
		}
	}
	require.NotNil(t, device)
	assert.Equal(t, seen[0], device.Value)

	// Second request with the cookie keeps the same id.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(device)
	mw(inner).ServeHTTP(httptest.NewRecorder(), req)
	require.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])
}

func TestDeviceScope_RejectsMalformedCookie(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = DeviceID(r)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "identity_device", Value: "not-a-uuid"})

	DeviceScope("identity_device", "")(inner).ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "not-a-uuid", seen)
	assert.NotEmpty(t, seen)
}

func TestCoreRegistry_ReusesPerDevice(t *testing.T) {
	built := 0
	reg := NewCoreRegistry(func(string) SessionCore {
		built++
		return &mockSessionCore{}
	})

	a1 := reg.For("device-a")
	a2 := reg.For("device-a")
	b := reg.For("device-b")

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.Equal(t, 2, built)
}

func TestCoreRegistry_EvictsIdleCores(t *testing.T) {
	built := 0
	reg := newCoreRegistry(func(string) SessionCore {
		built++
		return &mockSessionCore{}
	}, 40*time.Millisecond, 10*time.Millisecond)

	reg.For("device-a")
	require.Equal(t, 1, built)

	// Accesses inside the window keep the core alive.
	time.Sleep(25 * time.Millisecond)
	reg.For("device-a")
	require.Equal(t, 1, built)

	// Past the idle window the core is rebuilt.
	time.Sleep(60 * time.Millisecond)
	reg.For("device-a")
	assert.Equal(t, 2, built)
}
