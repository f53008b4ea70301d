// Package server assembles storage, sessions, the event bus and all HTTP
// handlers, and runs them until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matthewbaird/mobi/internal/activity"
	"github.com/matthewbaird/mobi/internal/analysis"
	"github.com/matthewbaird/mobi/internal/config"
	"github.com/matthewbaird/mobi/internal/event"
	"github.com/matthewbaird/mobi/internal/eventbus"
	"github.com/matthewbaird/mobi/internal/handler"
	"github.com/matthewbaird/mobi/internal/metrics"
	"github.com/matthewbaird/mobi/internal/schema"
	"github.com/matthewbaird/mobi/internal/session"
	"github.com/matthewbaird/mobi/internal/storage"
	"github.com/matthewbaird/mobi/internal/wire"
)

// App is the wired service.
type App struct {
	cfg      *config.Config
	drv      *entsql.Driver
	store    storage.Store
	activity activity.Store
	bus      *eventbus.Bus
	sessions *session.Manager
	catalog  *schema.Catalog
	analyzer analysis.Analyzer
	metrics  *metrics.Metrics
}

// New opens storage, runs migrations and wires every component.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg, metrics: metrics.New()}

	if err := a.openStores(ctx); err != nil {
		return nil, err
	}

	catalog, err := schema.Load()
	if err != nil {
		a.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "server: load field catalog")
	}
	a.catalog = catalog

	if cfg.Analysis.BaseURL != "" {
		a.analyzer = analysis.NewClient(cfg.Analysis.BaseURL,
			analysis.WithTimeout(cfg.Analysis.Timeout),
			analysis.WithMaxRetries(cfg.Analysis.MaxRetries),
			analysis.WithRateLimit(cfg.Analysis.RatePerSec),
		)
	} else {
		a.analyzer = analysis.NewOrchestrator(catalog)
	}

	a.bus = eventbus.New(cfg.Bus.Buffer)
	a.bus.Subscribe("log", eventbus.NewLogConsumer(zap.L()))
	a.bus.Subscribe("metrics", eventbus.NewMetricsConsumer(a.metrics))
	a.bus.Subscribe("activity", activity.NewIndexer(a.activity))

	a.sessions = session.NewManager(cfg.Session.MaxAge, cfg.Session.IdleTimeout, a.bus)

	a.metrics.GaugeFunc("sessions_live", "Listing sessions currently held in memory.", func() float64 {
		return float64(a.sessions.Len())
	})
	a.metrics.CounterFunc("eventbus_dropped_total", "Domain events dropped by the event bus.", func() float64 {
		return float64(a.bus.Dropped())
	})
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	if a.cfg.Store.Driver == storage.DriverMemory {
		a.store = storage.NewMemoryStore()
		a.activity = activity.NewMemoryStore()
		return nil
	}

	drv, err := storage.Open(a.cfg.Store.Driver, a.cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	a.drv = drv
	if err := Migrate(ctx, drv); err != nil {
		drv.Close() //nolint:errcheck
		return err
	}
	a.store = storage.NewSQLStore(drv)
	a.activity = activity.NewSQLStore(drv)
	return nil
}

// Migrate creates the listing, snapshot and activity tables.
func Migrate(ctx context.Context, drv *entsql.Driver) error {
	if err := storage.NewSQLStore(drv).Migrate(ctx); err != nil {
		return err
	}
	return activity.NewSQLStore(drv).CreateTable(ctx)
}

// Publisher exposes the event bus.
func (a *App) Publisher() event.Publisher { return a.bus }

// Sessions exposes the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Handler builds the HTTP router.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.Logging)
	r.Use(handler.Recovery)
	r.Use(handler.Metrics(a.metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})
	r.Handle("/metrics", a.metrics.Handler())

	handler.RegisterRoutes(r, handler.Deps{
		Sessions: a.sessions,
		Analyzer: a.analyzer,
		Store:    a.store,
		Activity: a.activity,
		Catalog:  a.catalog,
		Metrics:  a.metrics,
		LiveState: wire.NewHandler(a.sessions,
			wire.WithMetrics(a.metrics),
			wire.WithOriginPatterns(a.cfg.Server.AllowedOrigins...),
		),
	})
	return r
}

// Run serves HTTP and runs the event bus and the session janitor until ctx
// is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.bus.Run(gctx)
	})
	g.Go(func() error {
		return a.sessions.Run(gctx, a.cfg.Session.CleanupInterval)
	})
	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", srv.Addr), zap.String("store", a.cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		grace := a.cfg.Server.ShutdownGrace
		if grace <= 0 {
			grace = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server: shutdown")
		}
		return nil
	})
	return g.Wait()
}

// Close releases the database.
func (a *App) Close() error {
	if a.drv == nil {
		return nil
	}
	return a.drv.Close()
}
