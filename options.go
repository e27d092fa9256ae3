package designer

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cesmii/profiledesigner/cache"
	"github.com/cesmii/profiledesigner/registry"
)

// Option configures a Designer.
type Option func(*options)

// options holds the configuration collected from Option values.
type options struct {
	cache                 cache.Cache
	store                 Store
	registry              registry.Registry
	logger                *slog.Logger
	tracerProvider        trace.TracerProvider
	meterProvider         metric.MeterProvider
	tenant                string
	failOnAlreadyImported bool
	instanceID            string
}

// WithCache sets the nodeset cache that imports load documents through.
// A cache is required.
func WithCache(c cache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithStore sets the profile store. Defaults to an in-memory store.
func WithStore(s Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithRegistry publishes imported models to a shared registry and uses it
// as a version source for exports.
func WithRegistry(r registry.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithLogger sets a custom logger.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for import and
// export spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for import
// metrics. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithTenant scopes imports to a tenant. The empty tenant imports into the
// global scope.
func WithTenant(tenant string) Option {
	return func(o *options) {
		o.tenant = tenant
	}
}

// WithFailOnAlreadyImported rejects imports whose documents are all cached
// at the same or a newer publication.
func WithFailOnAlreadyImported(fail bool) Option {
	return func(o *options) {
		o.failOnAlreadyImported = fail
	}
}

// WithInstanceID sets the id recorded on published registry records.
// Defaults to the host name.
func WithInstanceID(id string) Option {
	return func(o *options) {
		o.instanceID = id
	}
}
