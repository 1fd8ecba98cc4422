// Package metrics provides Prometheus metric collection for the session core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values for callback and check metrics.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Collector records session-core metrics against a Prometheus registry.
// A nil *Collector is safe to use; every method no-ops.
type Collector struct {
	signInStarted    *prometheus.CounterVec
	callbacks        *prometheus.CounterVec
	callbackShared   prometheus.Counter
	callbackLatency  prometheus.Histogram
	profileFallbacks prometheus.Counter
	sessionChecks    *prometheus.CounterVec
	signOuts         prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signInStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identitycore_signin_started_total",
			Help: "Sign-in flows started, by method.",
		}, []string{"method"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identitycore_callback_total",
			Help: "Callback resolutions completed, by result.",
		}, []string{"result"}),
		callbackShared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "identitycore_callback_shared_total",
			Help: "Callback invocations served by an in-flight resolution instead of a new one.",
		}),
		callbackLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "identitycore_callback_duration_seconds",
			Help:    "Latency of full callback resolutions.",
			Buckets: prometheus.DefBuckets,
		}),
		profileFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "identitycore_profile_fallback_total",
			Help: "Profile resolutions served from the cached snapshot after a primary-path failure.",
		}),
		sessionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identitycore_session_check_total",
			Help: "Session checks, by the surface that served them.",
		}, []string{"source"}),
		signOuts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "identitycore_signout_total",
			Help: "Sign-out teardowns performed.",
		}),
	}

	reg.MustRegister(
		c.signInStarted,
		c.callbacks,
		c.callbackShared,
		c.callbackLatency,
		c.profileFallbacks,
		c.sessionChecks,
		c.signOuts,
	)
	return c
}

// RecordSignInStarted counts a started sign-in flow.
func (c *Collector) RecordSignInStarted(method string) {
	if c == nil {
		return
	}
	c.signInStarted.WithLabelValues(method).Inc()
}

// RecordCallback counts a completed callback resolution and its latency.
func (c *Collector) RecordCallback(result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.callbacks.WithLabelValues(result).Inc()
	c.callbackLatency.Observe(duration.Seconds())
}

// RecordCallbackShared counts a caller that joined an in-flight resolution.
func (c *Collector) RecordCallbackShared() {
	if c == nil {
		return
	}
	c.callbackShared.Inc()
}

// RecordProfileFallback counts a fallback-path profile resolution.
func (c *Collector) RecordProfileFallback() {
	if c == nil {
		return
	}
	c.profileFallbacks.Inc()
}

// RecordSessionCheck counts a session check served by the given source
// ("cache", "token_store", "live", "unauthenticated").
func (c *Collector) RecordSessionCheck(source string) {
	if c == nil {
		return
	}
	c.sessionChecks.WithLabelValues(source).Inc()
}

// RecordSignOut counts a teardown.
func (c *Collector) RecordSignOut() {
	if c == nil {
		return
	}
	c.signOuts.Inc()
}

// Handler returns the Prometheus scrape handler for the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
