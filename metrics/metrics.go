// Package metrics counts auth activity events with prometheus and exposes
// them for scraping.
package metrics

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auth "github.com/vaultx/vaultx-auth"
	"github.com/vaultx/vaultx-auth/activitymap"
)

const namespace = "vaultx"

// Collector is an auth.ActivitySink backed by prometheus counters
type Collector struct {
	registry      *prometheus.Registry
	events        *prometheus.CounterVec
	loginFailures *prometheus.CounterVec
	federated     *prometheus.CounterVec
	accessDenied  *prometheus.CounterVec
}

var _ auth.ActivitySink = (*Collector)(nil)

type Option func(*options)

type options struct {
	runtime bool
}

// WithRuntimeCollectors adds the go runtime and process collectors
func WithRuntimeCollectors() Option {
	return func(o *options) {
		o.runtime = true
	}
}

// New creates a collector on its own registry
func New(opts ...Option) *Collector {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Auth activity events by verb.",
		}, []string{"verb", "channel"}),
		loginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "login_failures_total",
			Help:      "Failed logins by reason.",
		}, []string{"reason"}),
		federated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "federated_logins_total",
			Help:      "Federated logins by provider and whether the account was created.",
		}, []string{"provider", "created"}),
		accessDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "access_denied_total",
			Help:      "Requests rejected by the access policy by rule.",
		}, []string{"rule"}),
	}

	c.registry.MustRegister(c.events, c.loginFailures, c.federated, c.accessDenied)
	if o.runtime {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return c
}

// Registry returns the registry the counters live in
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Record implements auth.ActivitySink
func (c *Collector) Record(_ context.Context, event auth.ActivityEvent) error {
	normalized := activitymap.Normalize(event)
	c.events.WithLabelValues(normalized.Verb, normalized.Channel).Inc()

	switch event.EventType {
	case auth.ActivityEventLoginFailure:
		c.loginFailures.WithLabelValues(normalized.Label(activitymap.KeyReason)).Inc()
	case auth.ActivityEventSocialLogin:
		c.federated.WithLabelValues(
			normalized.Label(activitymap.KeyProvider),
			normalized.Label(activitymap.KeyCreated),
		).Inc()
	case auth.ActivityEventAccessDenied:
		c.accessDenied.WithLabelValues(normalized.Label(activitymap.KeyRule)).Inc()
	}

	return nil
}

// Handler serves the registry in the prometheus exposition format
func (c *Collector) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		Registry: c.registry,
	}))
}
