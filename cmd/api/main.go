package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"spritegen/internal/bootstrap"
	"spritegen/internal/generation"
	"spritegen/internal/http/handlers"
	httpapi "spritegen/internal/http/httpapi"
	"spritegen/internal/i18n"
	"spritegen/internal/infra"
	"spritegen/internal/infra/geoip"
	"spritegen/internal/pipeline"
	"spritegen/internal/scheduler"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to open stores")
	}
	defer stores.Close()

	blobs, err := bootstrap.OpenFileStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	// With the inline queue the API process also runs the pipelines.
	var dispatcher scheduler.Dispatcher
	switch cfg.QueueDriver {
	case infra.DriverInline:
		var orch *pipeline.Orchestrator
		inline := scheduler.NewInline(ctx, func(ctx context.Context, task scheduler.Task) error {
			return orch.Handle(ctx, task)
		}, scheduler.InlineOptions{Workers: cfg.WorkerConcurrency, Logger: &logger})
		defer inline.Close()
		orch, err = bootstrap.NewOrchestrator(cfg, stores, blobs, inline, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to configure pipelines")
		}
		dispatcher = inline
	default:
		queue, client, err := bootstrap.OpenQueue(ctx, cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to connect queue")
		}
		defer client.Close()
		dispatcher = queue
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	}
	defer resolver.Close()

	service := generation.NewService(generation.Options{
		Jobs:       stores.Jobs,
		Ledger:     stores.Ledger,
		Entities:   stores.Entities,
		Dispatcher: dispatcher,
		Logger:     &logger,
	})
	app := handlers.NewApp(handlers.Options{
		Generation:    service,
		WebhookSecret: cfg.WebhookSecret,
		Logger:        &logger,
		Ready:         stores.Ping,
	})

	router := chi.NewRouter()
	router.Mount("/static", http.StripPrefix("/static", http.FileServer(http.Dir(blobs.BasePath()))))
	router.Mount("/", httpapi.NewRouter(app, httpapi.RouterOptions{
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   i18n.English,
		CountryLookup:   resolver.Lookup(),
		Logger:          logger,
	}))

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Str("queue", cfg.QueueDriver).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	logger.Info().Msg("api: server stopped")
}
