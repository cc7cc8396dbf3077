package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"catalog-browse-service/internal/api"
	"catalog-browse-service/internal/catalog"
	"catalog-browse-service/internal/config"
	"catalog-browse-service/internal/imagecache"
	"catalog-browse-service/internal/logging"
	"catalog-browse-service/internal/store"
)

const (
	appName         = "catalog"
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		// The service still runs when variables come from the environment.
		log.Debug(".env file not found, relying on system environment")
	}

	app := &cli.App{
		Name:  appName,
		Usage: "WB catalog browsing backend: product queries and cached product images",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "serve the HTTP and gRPC APIs",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply the PostgreSQL schema migrations",
				Action: migrate,
			},
			{
				Name:  "import",
				Usage: "upsert products from a JSON file into the configured store",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "path to a JSON array of products",
						Required: true,
					},
				},
				Action: importProducts,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("Service exited with error")
	}
}

// bootstrap loads configuration and sets up logging for every command.
func bootstrap() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "load configuration")
	}
	logger, err := logging.New(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		return nil, nil, err
	}
	logger.WithFields(log.Fields{
		"appEnv":      cfg.AppEnv,
		"logLevel":    cfg.LogLevel,
		"storeDriver": cfg.Store.Driver,
	}).Info("Configuration loaded")
	return cfg, logger, nil
}

// openStore returns the configured product store. The postgres store has its
// schema migrated; the memory store is seeded from STORE_SEED_FILE if set.
func openStore(ctx context.Context, cfg *config.Config, logger log.FieldLogger) (store.ProductStorer, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pg, err := store.OpenPostgres(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(pg.DB()); err != nil {
			_ = pg.Close()
			return nil, err
		}
		logger.Info("Database connection established and schema is up to date")
		return pg, nil
	default:
		mem := store.NewMemoryStore()
		if cfg.Store.SeedFile != "" {
			n, err := store.ImportFile(ctx, mem, cfg.Store.SeedFile)
			if err != nil {
				return nil, err
			}
			logger.WithFields(log.Fields{"file": cfg.Store.SeedFile, "products": n}).Info("Memory store seeded")
		}
		return mem, nil
	}
}

func serve(c *cli.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	productStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := productStore.Close(); err != nil {
			logger.WithError(err).Warn("Error closing product store")
		}
	}()

	catalogService := catalog.NewService(productStore,
		catalog.NewEngine(cfg.Catalog.DefaultPageSize, cfg.Catalog.MaxPageSize))

	origin := imagecache.NewHTTPOrigin(
		&http.Client{Timeout: cfg.ImageCache.FetchTimeout},
		cfg.ImageCache.OriginHost,
		cfg.ImageCache.MaxObjectBytes,
	)
	images, err := imagecache.New(origin, imagecache.Config{
		TTL:          cfg.ImageCache.TTL,
		MaxBytes:     cfg.ImageCache.MaxBytes,
		FetchTimeout: cfg.ImageCache.FetchTimeout,
	},
		imagecache.WithCoalescedMisses(cfg.ImageCache.CoalesceMisses),
		imagecache.WithRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return errors.Wrap(err, "create image cache")
	}
	defer images.Close()

	// --- HTTP ---
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logging.RequestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	api.NewHTTPHandler(catalogService, productStore, images, cfg.ImageCache.BrowserMaxAge, logger).RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      router,
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	// --- gRPC ---
	grpcServer, healthServer := api.NewGRPCServer(api.NewGRPCHandler(catalogService, images, logger), logger)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		return errors.Wrapf(err, "listen for gRPC on port %s", cfg.GrpcServer.Port)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("port", cfg.HttpServer.Port).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "HTTP server")
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("port", cfg.GrpcServer.Port).Info("gRPC server listening")
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return errors.Wrap(err, "gRPC server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Starting graceful shutdown...")
		healthServer.SetServingStatus(api.CatalogServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		shutdown(logger, httpServer, grpcServer)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Service shutdown sequence finished")
	return nil
}

func shutdown(logger log.FieldLogger, httpServer *http.Server, grpcServer *grpc.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server graceful shutdown failed")
	} else {
		logger.Info("HTTP server gracefully shut down")
	}

	select {
	case <-stoppedGrpc:
		logger.Info("gRPC server gracefully shut down")
	case <-shutdownCtx.Done():
		logger.WithError(shutdownCtx.Err()).Warn("gRPC server graceful shutdown timed out, forcing stop")
		grpcServer.Stop()
	}
}

func migrate(c *cli.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.StoreDriverPostgres {
		return errors.Errorf("migrate needs STORE_DRIVER=%s, got %q", config.StoreDriverPostgres, cfg.Store.Driver)
	}
	pg, err := store.OpenPostgres(c.Context, cfg.Postgres.DSN())
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := store.Migrate(pg.DB()); err != nil {
		return err
	}
	logger.Info("Schema migrations applied")
	return nil
}

func importProducts(c *cli.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Warn("Importing into the memory store; the data is dropped when this command exits")
	}
	productStore, err := openStore(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer productStore.Close()

	n, err := store.ImportFile(c.Context, productStore, c.String("file"))
	if err != nil {
		return err
	}
	logger.WithFields(log.Fields{"file": c.String("file"), "products": n}).Info("Products imported")
	return nil
}
