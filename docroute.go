// Package docroute provides a top-level convenience entry point for
// assembling a document-routing system with minimal boilerplate.
//
// Usage:
//
//	import "github.com/nuxeo/docroute"
//
//	sys, err := docroute.Open(docroute.WithConfigFile("docroute.yaml"))
//	sys, err := docroute.Open(docroute.WithDefinitions(reviewDef), docroute.WithLogger(logger))
//
//	inst, err := sys.Engine.Launch(ctx, "doc-review", "doc:42", vars)
//
// Open wires the configuration loader, the definition registry (with an
// optional Redis read-through cache), the archive store, the metrics
// collector and the execution engine together; embedders who need a
// different composition use the sub-packages directly.
package docroute

import (
	"os"

	"go.uber.org/zap"

	"github.com/nuxeo/docroute/config"
	"github.com/nuxeo/docroute/internal/cache"
	"github.com/nuxeo/docroute/internal/metrics"
	"github.com/nuxeo/docroute/registry"
	"github.com/nuxeo/docroute/routing"
	"github.com/nuxeo/docroute/store"
)

// Option configures the system assembled by [Open].
type Option func(*options)

type options struct {
	cfg         *config.Config
	configPath  string
	logger      *zap.Logger
	resolver    routing.PrincipalResolver
	notifier    routing.Notifier
	definitions []*routing.Definition
	chains      map[string]routing.ChainFunc
}

// WithConfig supplies a pre-built configuration, skipping the loader.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConfigFile loads configuration from a YAML file. Environment
// variables with the DOCROUTE_ prefix still override file values.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithLogger sets a custom zap logger. Defaults to a logger built from
// the configuration's log section.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithResolver sets the principal resolver used to assign task actors.
// Defaults to [routing.LiteralResolver].
func WithResolver(r routing.PrincipalResolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithNotifier sets the audit/notification collaborator.
func WithNotifier(n routing.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithDefinitions registers workflow definitions at assembly time, in
// addition to any loaded from the configured definitions directory.
func WithDefinitions(defs ...*routing.Definition) Option {
	return func(o *options) { o.definitions = append(o.definitions, defs...) }
}

// WithChain registers a named transition chain on the engine.
func WithChain(name string, fn routing.ChainFunc) Option {
	return func(o *options) {
		if o.chains == nil {
			o.chains = make(map[string]routing.ChainFunc)
		}
		o.chains[name] = fn
	}
}

// System is a fully wired document-routing runtime.
type System struct {
	// Engine drives workflow instances.
	Engine *routing.Engine

	// Definitions is the writable in-memory registry behind the engine.
	// Register new definition versions here; when caching is enabled the
	// engine reads them through the Redis decorator.
	Definitions *registry.InMemory

	// Archive holds ended instances and tasks.
	Archive *store.Store

	logger     *zap.Logger
	ownsLogger bool
	cache      *cache.Manager
}

// Open assembles a system from configuration and options.
func Open(opts ...Option) (*System, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if cfg == nil {
		loader := config.NewLoader()
		if o.configPath != "" {
			loader = loader.WithConfigPath(o.configPath)
		}
		var err error
		cfg, err = loader.Load()
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	ownsLogger := false
	if logger == nil {
		var err error
		logger, err = cfg.Log.BuildLogger()
		if err != nil {
			return nil, err
		}
		ownsLogger = true
	}

	definitions := registry.NewInMemory(logger)
	if dir := cfg.Engine.DefinitionsDir; dir != "" {
		if _, err := os.Stat(dir); err == nil {
			if err := definitions.LoadDir(dir); err != nil {
				return nil, err
			}
		}
	}
	for _, def := range o.definitions {
		if err := definitions.Register(def); err != nil {
			return nil, err
		}
	}

	var source routing.Registry = definitions
	var cacheManager *cache.Manager
	if cfg.Engine.CacheEnabled {
		manager, err := cache.NewManager(cache.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			KeyPrefix:    cfg.Redis.KeyPrefix,
			DefaultTTL:   cfg.Engine.DefinitionCacheTTL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, logger)
		if err != nil {
			return nil, err
		}
		cacheManager = manager
		source = registry.NewCached(definitions, manager, cfg.Engine.DefinitionCacheTTL, logger)
	}

	archive, err := store.Open(store.Config{
		Driver:          store.Driver(cfg.Database.Driver),
		DSN:             cfg.Database.DSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		if cacheManager != nil {
			cacheManager.Close()
		}
		return nil, err
	}

	resolver := o.resolver
	if resolver == nil {
		resolver = routing.LiteralResolver{}
	}

	engine := routing.NewEngine(source, resolver, logger)
	engine.SetArchiver(archive)
	engine.SetCollector(metrics.NewCollector(cfg.Engine.MetricsNamespace, logger))
	if o.notifier != nil {
		engine.SetNotifier(o.notifier)
	}
	for name, fn := range o.chains {
		engine.RegisterChain(name, fn)
	}

	return &System{
		Engine:      engine,
		Definitions: definitions,
		Archive:     archive,
		logger:      logger,
		ownsLogger:  ownsLogger,
		cache:       cacheManager,
	}, nil
}

// Close releases the archive store, the cache connection and, when the
// logger was built by Open, flushes it.
func (s *System) Close() error {
	var firstErr error
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			firstErr = err
		}
	}
	if s.Archive != nil {
		if err := s.Archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.ownsLogger {
		s.logger.Sync()
	}
	return firstErr
}
