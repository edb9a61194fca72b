// Package server builds the storefront's dependencies and runs the HTTP
// server until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront/internal/api"
	"github.com/JakeFAU/storefront/internal/clock/system"
	"github.com/JakeFAU/storefront/internal/config"
	"github.com/JakeFAU/storefront/internal/id/uuid"
	memorypublisher "github.com/JakeFAU/storefront/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/storefront/internal/publisher/pubsub"
	"github.com/JakeFAU/storefront/internal/shop"
	gcsstorage "github.com/JakeFAU/storefront/internal/storage/gcs"
	localstorage "github.com/JakeFAU/storefront/internal/storage/local"
	memorystorage "github.com/JakeFAU/storefront/internal/storage/memory"
	pgstore "github.com/JakeFAU/storefront/internal/storage/postgres"
)

const shutdownGrace = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	service     *shop.Service
	apiServer   *api.Server
	db          *pgstore.Store
	gcs         *storage.Client
	pubsubClose func() error
	mediaDir    string
}

// Build creates the application's dependencies. Anything opened before a
// failure is closed again.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.DB.DSN != ""),
	)

	if err := app.build(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	blobs, err := a.setupStorage(ctx)
	if err != nil {
		return err
	}
	products, carts, orders, err := a.setupDatabase(ctx)
	if err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}

	a.service = shop.NewService(shop.Deps{
		Products:  products,
		Carts:     carts,
		Orders:    orders,
		Blobs:     blobs,
		Publisher: publisher,
		IDs:       uuid.New(),
		Clock:     system.New(),
	}, shop.ServiceConfig{
		Currency:    a.cfg.Shop.Currency,
		Topic:       a.cfg.PubSub.TopicName,
		MediaPrefix: a.cfg.Storage.Prefix,
	}, a.logger)

	if a.cfg.Shop.SeedDemo {
		if err := SeedDemo(ctx, a.service, a.logger); err != nil {
			return fmt.Errorf("seed demo catalog: %w", err)
		}
	}

	deps := api.Deps{
		Shop:     a.service,
		Sessions: uuid.New(),
		Clock:    system.New(),
		MediaDir: a.mediaDir,
	}
	if a.db != nil {
		deps.Ready = a.db.Ping
	}
	a.apiServer, err = api.NewServer(deps, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("api server init failed: %w", err)
	}
	return nil
}

// Handler exposes the HTTP handler, mostly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and blocks until the context is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve http: %w", err)
	default:
		return nil
	}
}

// Close releases every client the App opened.
func (a *App) Close() {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.pubsubClose != nil {
		if err := a.pubsubClose(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClose = nil
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcs = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

func (a *App) setupStorage(ctx context.Context) (shop.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcs = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Public: a.cfg.Storage.GCSPublic,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case config.BackendLocal:
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.BaseDir))
		blobs, err := localstorage.New(localstorage.Config{
			BaseDir:    a.cfg.Storage.BaseDir,
			PublicBase: a.cfg.Storage.PublicBase,
		})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		if a.cfg.Storage.PublicBase == "/media" {
			a.mediaDir = blobs.Dir()
		}
		return blobs, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupDatabase(ctx context.Context) (shop.ProductStore, shop.CartStore, shop.OrderStore, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database DSN configured, catalog, carts and orders live in memory")
		return memorystorage.NewCatalogStore(), memorystorage.NewCartStore(), memorystorage.NewOrderStore(), nil
	}
	store, err := pgstore.New(ctx, a.cfg.DB)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("postgres store init failed: %w", err)
	}
	a.db = store
	a.logger.Info("postgres store initialized", zap.Int32("max_conns", a.cfg.DB.MaxConns))
	return store, store, store, nil
}

func (a *App) setupPublisher(ctx context.Context) (shop.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	publisher, closeFn, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.pubsubClose = closeFn
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return publisher, nil
}
