package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"crowdsale/config"
	"crowdsale/core"
	"crowdsale/core/events"
	"crowdsale/gateway/auth"
	"crowdsale/gateway/middleware"
	"crowdsale/gateway/routes"
	"crowdsale/integrations/webhooks"
	"crowdsale/native/crowdsale"
	"crowdsale/observability/logging"
	telemetry "crowdsale/observability/otel"
	"crowdsale/services/assets"
	"crowdsale/services/dispatch"
	"crowdsale/services/ratefeed"
	"crowdsale/storage"
)

func main() {
	configFile := flag.String("config", "./crowdsaled.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup("crowdsaled", cfg.Environment, loggingOptions(cfg.Logging))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("crowdsaled exited", "error", err)
		os.Exit(1)
	}
}

func loggingOptions(cfg config.LoggingConfig) logging.Options {
	opts := logging.Options{Level: logging.ParseLevel(cfg.Level)}
	if strings.TrimSpace(cfg.File) != "" {
		opts.File = &logging.FileOptions{
			Path:       cfg.File,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}
	return opts
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "crowdsaled",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	manifest, err := config.LoadManifest(cfg.SaleManifest)
	if err != nil {
		return err
	}
	params, err := manifest.Params()
	if err != nil {
		return fmt.Errorf("sale manifest: %w", err)
	}

	logger.Info("crowdsaled starting",
		"env", cfg.Environment,
		"data_dir", cfg.DataDir,
		"sale_unit", params.SaleUnit.Code,
		logging.MaskField("assets_dsn", cfg.AssetsDSN),
		logging.MaskField("webhook_url", cfg.Webhook.URL),
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}

	stream := events.NewStream(0)
	var hooks *webhooks.Dispatcher
	if strings.TrimSpace(cfg.Webhook.URL) != "" {
		hooks, err = webhooks.NewDispatcher(cfg.Webhook.URL, []byte(os.Getenv(cfg.Webhook.SecretEnv)),
			webhooks.WithLogger(logger),
			webhooks.WithHTTPClient(&http.Client{Timeout: 15 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}),
			webhooks.WithQueueSize(cfg.Webhook.QueueSize),
			webhooks.WithRetryPolicy(cfg.Webhook.MaxAttempts, cfg.Webhook.Backoff, 30*cfg.Webhook.Backoff),
		)
		if err != nil {
			db.Close()
			return fmt.Errorf("configure webhooks: %w", err)
		}
		defer hooks.Close()
	}
	emitter := events.Emitter(stream)
	if hooks != nil {
		emitter = events.Multi(stream, hooks)
	}
	node, err := core.NewNode(db, params,
		core.WithLogger(logger),
		core.WithEmitter(emitter),
		core.WithCustodyBooking(),
	)
	if err != nil {
		db.Close()
		return err
	}
	defer node.Close()

	ledger, err := openLedger(ctx, cfg.AssetsDSN, params)
	if err != nil {
		return err
	}
	dispatcher, err := dispatch.New(node, ledger, cfg.Dispatcher.Interval,
		dispatch.WithLogger(logger),
		dispatch.WithBatchSize(cfg.Dispatcher.BatchSize),
	)
	if err != nil {
		return err
	}
	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("effect dispatcher stopped", "error", err)
		}
	}()

	if cfg.RateFeed.Enabled {
		stopFeed, err := startRateFeed(ctx, cfg, manifest, params, node, ledger, logger)
		if err != nil {
			return err
		}
		defer stopFeed()
	}
	if strings.TrimSpace(cfg.Reports.Dir) != "" {
		stopReports, err := scheduleReports(cfg.Reports, node, logger)
		if err != nil {
			return err
		}
		defer stopReports()
	}

	nonces, err := auth.NewBoltNonceStore(cfg.NonceDB)
	if err != nil {
		return err
	}
	defer nonces.Close()
	go pruneNonces(ctx, nonces, cfg.Auth.SignatureSkew, logger)

	secret := cfg.Auth.ResolveSecret()
	if secret == "" {
		logger.Warn("no JWT secret configured; admin and notify routes are disabled")
	}
	var authenticator *middleware.Authenticator
	if secret != "" {
		authenticator = middleware.NewAuthenticator(middleware.AuthConfig{
			HMACSecret: secret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		}, logger)
	}
	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for key, limit := range cfg.RateLimits {
		limits[key] = middleware.RateLimit{RatePerSecond: limit.RatePerSecond, Burst: limit.Burst}
	}
	router := routes.New(routes.Config{
		Sale:          node,
		Authenticator: authenticator,
		Verifier:      auth.NewVerifier(nonces, cfg.Auth.SignatureSkew, nil),
		RateLimiter:   middleware.NewRateLimiter(limits, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{LogRequests: cfg.Environment == "dev"}, logger),
		CORS:          middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		Logger:        logger,
		Events:        stream,
		Custody:       ledger,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(router, "crowdsaled"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("crowdsaled listening", "addr", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}

func openLedger(ctx context.Context, dsn string, params crowdsale.Params) (*assets.Ledger, error) {
	gdb, err := assets.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open assets ledger: %w", err)
	}
	ledger := assets.NewLedger(gdb)
	for _, unit := range []crowdsale.Unit{params.BaseUnit, params.SecondaryUnit} {
		if err := ledger.RegisterSymbol(ctx, unit, false); err != nil {
			return nil, err
		}
	}
	if err := ledger.RegisterSymbol(ctx, params.SaleUnit, !params.Transferable); err != nil {
		return nil, err
	}
	return ledger, nil
}

func startRateFeed(ctx context.Context, cfg *config.Config, manifest *config.Manifest, params crowdsale.Params, node *core.Node, ledger *assets.Ledger, logger *slog.Logger) (func(), error) {
	price, err := manifest.SalePrice(params.SaleUnit)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	sources := make([]ratefeed.Source, 0, len(cfg.RateFeed.Sources))
	for _, src := range cfg.RateFeed.Sources {
		source, err := ratefeed.Build(src.Name, src.Type, src.Endpoint, os.Getenv(src.APIKeyEnv), src.Rates, client)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	feed, err := ratefeed.New(ratefeed.Config{
		Operator:      params.Issuer,
		BaseUnit:      params.BaseUnit,
		SecondaryUnit: params.SecondaryUnit,
		USDUnit:       params.USDUnit,
		UnitsPerUSD:   price,
		Window:        manifest.RateWindow.Duration,
		MaxAge:        cfg.RateFeed.MaxAge,
		MinFeeds:      cfg.RateFeed.MinFeeds,
	}, node, sources,
		ratefeed.WithLogger(logger),
		ratefeed.WithRaised(func(ctx context.Context) (crowdsale.Quantity, error) {
			raised, err := ledger.Balance(ctx, params.Contract, params.SecondaryUnit.Code)
			if err != nil {
				return crowdsale.Quantity{}, err
			}
			return crowdsale.Quantity{Amount: raised, Unit: params.SecondaryUnit}, nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return feed.Schedule(ctx, cfg.RateFeed.Schedule)
}

func pruneNonces(ctx context.Context, nonces *auth.BoltNonceStore, skew time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := nonces.Prune(ctx, now.Add(-2*skew))
			if err != nil {
				logger.Warn("nonce prune failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Debug("pruned nonces", "count", removed)
			}
		}
	}
}
