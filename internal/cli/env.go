package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	designer "github.com/cesmii/profiledesigner"
	"github.com/cesmii/profiledesigner/cache"
	"github.com/cesmii/profiledesigner/config"
	"github.com/cesmii/profiledesigner/health"
	"github.com/cesmii/profiledesigner/registry"
	"github.com/cesmii/profiledesigner/store"
	"github.com/cesmii/profiledesigner/telemetry"
)

// serviceName names the process in traces and health reports.
const serviceName = "profiledesigner"

// env holds the collaborators built from the configuration for one
// command run.
type env struct {
	cfg            *config.Config
	logger         *slog.Logger
	designer       *designer.Designer
	tracerProvider *sdktrace.TracerProvider
	checks         map[string]health.Check
	closers        []namedCloser
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// overrides are command-line values that take precedence over the file.
type overrides struct {
	tenant                *string
	failOnAlreadyImported *bool
}

// loadConfig reads the file named by --config, or searches the working
// directory and its parents, falling back to the defaults. Unusable files
// are reported as configuration errors wrapping designer.ErrInvalidConfig.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := readConfig(path)
	if errors.Is(err, config.ErrInvalid) {
		return nil, designer.NewConfigurationError("cli.loadConfig", fmt.Errorf("%w: %w", designer.ErrInvalidConfig, err))
	}
	return cfg, err
}

func readConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	cfg, err := config.LoadFromDir(wd)
	if errors.Is(err, config.ErrNotFound) {
		return config.Default(), nil
	}
	return cfg, err
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.LogFormat() == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openEnv builds the cache, store, registry and designer described by cfg.
// The returned env must be closed.
func openEnv(ctx context.Context, cfg *config.Config, version string, logs io.Writer, o overrides) (_ *env, err error) {
	e := &env{
		cfg:    cfg,
		logger: newLogger(cfg, logs),
		checks: make(map[string]health.Check),
	}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	e.tracerProvider = telemetry.NewTracerProvider(serviceName, version, e.logger)

	c, err := e.openCache()
	if err != nil {
		return nil, designer.NewConfigurationError("cli.openCache", err)
	}

	st, err := e.openStore(ctx)
	if err != nil {
		return nil, designer.NewStorageError("cli.openStore", err)
	}

	opts := []designer.Option{
		designer.WithCache(c),
		designer.WithStore(st),
		designer.WithLogger(e.logger),
		designer.WithTracerProvider(e.tracerProvider),
		designer.WithTenant(cfg.Tenant()),
		designer.WithFailOnAlreadyImported(cfg.FailOnAlreadyImported()),
	}
	if o.tenant != nil {
		opts = append(opts, designer.WithTenant(*o.tenant))
	}
	if o.failOnAlreadyImported != nil {
		opts = append(opts, designer.WithFailOnAlreadyImported(*o.failOnAlreadyImported))
	}

	reg, err := e.openRegistry()
	if err != nil {
		return nil, designer.NewStorageError("cli.openRegistry", err)
	}
	if reg != nil {
		opts = append(opts, designer.WithRegistry(reg))
	}

	if e.designer, err = designer.New(opts...); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *env) openCache() (cache.Cache, error) {
	var cacheOpts []cache.Option
	cacheOpts = append(cacheOpts, cache.WithLogger(e.logger))
	if rule := e.cfg.GlobalModelRule(); rule != "" {
		policy, err := cache.NewScopePolicy(rule)
		if err != nil {
			return nil, err
		}
		cacheOpts = append(cacheOpts, cache.WithScopePolicy(policy))
	}

	var backend cache.Backend
	switch e.cfg.CacheType() {
	case config.CacheSQLite:
		b, err := cache.OpenSQLite(e.cfg.CacheSQLitePath())
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		e.addCloser("sqlite cache", b)
		e.addPingCheck("cache", b)
		backend = b
	case config.CacheRedis:
		b, err := cache.NewRedisBackend(cache.RedisOptions{
			URL:       e.cfg.RedisURL(),
			KeyPrefix: e.cfg.KeyPrefix(),
		})
		if err != nil {
			return nil, fmt.Errorf("open redis cache: %w", err)
		}
		e.addCloser("redis cache", b)
		e.addPingCheck("cache", b)
		backend = b
	default:
		dir := e.cfg.CacheDir()
		b, err := cache.NewFileBackend(dir)
		if err != nil {
			return nil, fmt.Errorf("open file cache: %w", err)
		}
		e.checks["cache"] = func(context.Context) health.Status {
			return health.WritableDirCheck(dir)
		}
		backend = b
	}

	e.logger.Debug("opened nodeset cache", "type", e.cfg.CacheType())
	return cache.New(backend, cacheOpts...), nil
}

func (e *env) openStore(ctx context.Context) (designer.Store, error) {
	path := e.cfg.StorePath()
	if path == "" {
		e.logger.Debug("using in-memory profile store")
		return store.NewMemoryStore(), nil
	}
	st, err := store.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	e.addCloser("profile store", st)
	e.addPingCheck("store", st)
	return st, nil
}

// openRegistry connects to etcd when the configuration or the environment
// names endpoints. It returns nil without a registry.
func (e *env) openRegistry() (registry.Registry, error) {
	var (
		client *registry.Client
		err    error
	)
	if e.cfg.RegistryEnabled() {
		client, err = registry.NewClient(*e.cfg.Registry, registry.WithLogger(e.logger))
	} else {
		client, err = registry.NewClientFromEnv(registry.WithLogger(e.logger))
	}
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, nil
	}
	e.addCloser("registry", client)
	e.addPingCheck("registry", client)
	return client, nil
}

func (e *env) addCloser(name string, c io.Closer) {
	e.closers = append(e.closers, namedCloser{name: name, closer: c})
}

func (e *env) addPingCheck(name string, p health.Pinger) {
	e.checks[name] = func(ctx context.Context) health.Status {
		return health.PingCheck(ctx, name, p)
	}
}

// Close releases every collaborator in reverse opening order and flushes
// pending spans.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		designer.CloseWithLog(e.closers[i].closer, e.logger, e.closers[i].name)
	}
	e.closers = nil
	if e.tracerProvider != nil {
		if err := e.tracerProvider.Shutdown(context.Background()); err != nil {
			e.logger.Warn("failed to shut down tracer provider", "error", err)
		}
	}
}
