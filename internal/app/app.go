package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/utafrali/recordsearch/pkg/health"
	pkgkafka "github.com/utafrali/recordsearch/pkg/kafka"

	"github.com/utafrali/recordsearch/internal/config"
	"github.com/utafrali/recordsearch/internal/engine"
	esengine "github.com/utafrali/recordsearch/internal/engine/elasticsearch"
	"github.com/utafrali/recordsearch/internal/engine/memory"
	"github.com/utafrali/recordsearch/internal/event"
	handler "github.com/utafrali/recordsearch/internal/handler/http"
	"github.com/utafrali/recordsearch/internal/index"
	"github.com/utafrali/recordsearch/internal/metadata"
	"github.com/utafrali/recordsearch/internal/query"
	"github.com/utafrali/recordsearch/internal/security"
	"github.com/utafrali/recordsearch/internal/service"
	"github.com/utafrali/recordsearch/internal/store"
)

// App wires together all dependencies and runs the record search service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	consumers  []*pkgkafka.Consumer
	httpServer *http.Server
}

// Option customizes application wiring.
type Option func(*options)

type options struct {
	authorizer security.Authorizer
}

// WithAuthorizer plugs an external capability check into the security
// policy. Without it every read is granted and denial is left to the
// upstream gateway.
func WithAuthorizer(auth security.Authorizer) Option {
	return func(o *options) {
		o.authorizer = auth
	}
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger, optFns ...Option) (*App, error) {
	opts := options{authorizer: security.AllowAll}
	for _, o := range optFns {
		o(&opts)
	}

	// Initialize search engine based on configuration.
	var eng engine.SearchEngine
	var esEng *esengine.Engine
	switch cfg.SearchEngine {
	case "elasticsearch":
		var err error
		esEng, err = esengine.New(cfg.ElasticsearchURL, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		eng = esEng
		logger.Info("elasticsearch search engine initialized",
			slog.String("url", cfg.ElasticsearchURL),
		)
	default:
		eng = memory.New()
		logger.Info("in-memory search engine initialized")
	}

	// Canonical document store.
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("init postgres pool: %w", err)
	}
	recordStore := store.NewPostgresStore(pool)

	// Build the service layer.
	registry := metadata.NewStaticRegistry()
	policy := security.NewPolicy(opts.authorizer)
	compiler := query.NewCompiler(policy)
	indexManager := index.NewManager(eng, registry, logger)
	searchService := service.New(compiler, eng, indexManager, recordStore, registry, logger)

	// Initialize Kafka consumers for record mutation events.
	eventConsumer := event.NewConsumer(searchService, logger)

	topics := []string{
		event.TopicRecordUpserted,
		event.TopicRecordDeleted,
	}

	var consumers []*pkgkafka.Consumer
	for _, topic := range topics {
		consumerCfg := pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6, // 10 MB
		}
		c := pkgkafka.NewConsumer(consumerCfg, eventConsumer.Handle, logger)
		consumers = append(consumers, c)
	}
	logger.Info("kafka consumers initialized",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.Int("topic_count", len(topics)),
	)

	// Health checks.
	healthHandler := health.NewHandler()
	if esEng != nil {
		healthHandler.Register("elasticsearch", esEng.Ping)
	}
	healthHandler.Register("postgres", recordStore.Ping)
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
	})

	// HTTP router.
	router := handler.NewRouter(searchService, indexManager, healthHandler, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		consumers:  consumers,
		httpServer: httpServer,
	}, nil
}

// Run starts the HTTP server and Kafka consumers, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	// Start Kafka consumers in background goroutines.
	for _, c := range a.consumers {
		c := c
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// Close Kafka consumers.
	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
