package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata" // sweep.timezone on hosts without a zoneinfo database

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/api"
	"github.com/good-yellow-bee/pawwatch/internal/api/health"
	"github.com/good-yellow-bee/pawwatch/internal/batch"
	"github.com/good-yellow-bee/pawwatch/internal/detector"
	"github.com/good-yellow-bee/pawwatch/internal/events"
	"github.com/good-yellow-bee/pawwatch/internal/logger"
	"github.com/good-yellow-bee/pawwatch/internal/metrics"
	"github.com/good-yellow-bee/pawwatch/internal/notifier"
	"github.com/good-yellow-bee/pawwatch/internal/security"
	"github.com/good-yellow-bee/pawwatch/internal/storage"
	"github.com/good-yellow-bee/pawwatch/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "pawwatch-server",
	Short: "pawwatch server - pet health anomaly detection and alerting",
	Long: `pawwatch-server periodically sweeps every pet with an active alert rule,
detects anomalies in its health event records and delivers notifications
for the rules that fire. It also serves an HTTP API for on-demand detection,
evaluation and sweeps.`,
	SilenceUsage: true,
	RunE:         runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.VersionString("pawwatch-server"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVar(&httpAddr, "http", "", "HTTP API listen address (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	// Load configuration from file if provided
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.HTTP.Address = httpAddr
	}
	cfg.Verbose = verbose
	if cfg.Verbose {
		cfg.Log.Level = "debug"
	}

	logger.Init(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File, Pretty: cfg.Log.Pretty})
	log := logger.WithComponent("server")
	buildInfo := config.GetBuildInfo()
	metrics.SetBuildInfo(buildInfo.Version, buildInfo.Commit, buildInfo.BuildTime)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	log.Info().
		Str("version", buildInfo.Version).
		Str("records", cfg.Records.Backend).
		Str("http", cfg.HTTP.Address).
		Msg("starting pawwatch-server")

	var watcher *configWatcher
	if configFile != "" {
		if watcher, err = newConfigWatcher(configFile, app.detector); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.api.Run(gctx)
	})

	if cfg.MetricsEnabled() {
		metricsServer := metrics.NewServer(cfg.Metrics.Address)
		g.Go(metricsServer.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	if interval := cfg.SweepInterval(); interval > 0 {
		loop := &sweepLoop{
			sweeper:   app.sweeper,
			history:   app.store.TriggerHistory(),
			interval:  interval,
			retention: cfg.HistoryRetention(),
			runNow:    cfg.Sweep.RunOnStart,
			log:       logger.WithComponent("sweep-loop"),
		}
		g.Go(func() error {
			return loop.Run(gctx)
		})
	} else {
		log.Info().Msg("periodic sweeps disabled")
	}

	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run server: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

// application holds the wired components and the resources to release.
type application struct {
	store    *storage.SQLiteStorage
	detector *detector.Detector
	engine   *alerting.Engine
	sweeper  *batch.Sweeper
	api      *api.Server
	closers  []func() error
}

// Close releases resources in reverse order of creation.
func (a *application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg *Config) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()
	log := logger.WithComponent("server")

	// Auto-create data directory
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app.closers = append(app.closers, store.Close)
	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	app.store = store
	log.Info().Str("path", cfg.Database.Path).Msg("database initialized")

	var checkers []health.Checker
	checkers = append(checkers, health.NewSQLiteChecker(store.DB()))

	reader, checker, err := openRecords(ctx, cfg, store, app)
	if err != nil {
		return nil, err
	}
	if checker != nil {
		checkers = append(checkers, checker)
	}

	det, err := detector.NewDetector(reader, cfg.Detection.Options())
	if err != nil {
		return nil, fmt.Errorf("create detector: %w", err)
	}
	app.detector = det

	dispatcher, err := buildDispatcher(cfg, store)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, dispatcher.Close)

	engineOpts := &alerting.EngineOptions{
		Location: cfg.Location(),
		Now:      time.Now,
	}
	if cfg.Events.NATSURL != "" {
		publisher, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() error {
			publisher.Close()
			return nil
		})
		engineOpts.Events = publisher
		checkers = append(checkers, health.NewFuncChecker("nats", publisher.Healthy))
		log.Info().Str("url", cfg.Events.NATSURL).Msg("publishing trigger events to NATS")
	}
	app.engine = alerting.NewEngine(store.Rules(), det, dispatcher, engineOpts)

	app.sweeper = batch.NewSweeper(store.Rules(), store.Pets(), app.engine, &batch.SweepOptions{
		Workers:        cfg.Sweep.Workers,
		SubjectTimeout: cfg.SubjectTimeout(),
		LaunchRate:     cfg.Sweep.LaunchRate,
		Now:            time.Now,
	})

	apiConfig := &api.Config{
		Address:        cfg.HTTP.Address,
		Token:          cfg.HTTP.Token,
		RateLimitPerIP: cfg.HTTP.RateLimitPerIP,
		RequestTimeout: mustDuration(cfg.HTTP.RequestTimeout),
		Verbose:        cfg.Verbose,
	}
	if tlsCfg := cfg.HTTP.TLS(); tlsCfg.Enabled() {
		if apiConfig.TLS, err = security.LoadServerTLS(tlsCfg); err != nil {
			return nil, fmt.Errorf("load API TLS: %w", err)
		}
		log.Info().Bool("client_auth", tlsCfg.ClientCAFile != "").Msg("API TLS enabled")
	}
	apiServer, err := api.New(apiConfig, app.engine, store.Pets(), app.sweeper)
	if err != nil {
		return nil, fmt.Errorf("create API server: %w", err)
	}
	for _, c := range checkers {
		apiServer.RegisterHealthChecker(c)
	}
	app.api = apiServer

	return app, nil
}

// openRecords opens the configured record backend.
func openRecords(ctx context.Context, cfg *Config, store *storage.SQLiteStorage, app *application) (storage.RecordReader, health.Checker, error) {
	switch cfg.Records.Backend {
	case BackendClickHouse:
		ch := storage.NewClickHouseRecords(&storage.ClickHouseConfig{
			Addresses:     cfg.Records.ClickHouse.Addresses,
			Database:      cfg.Records.ClickHouse.Database,
			Username:      cfg.Records.ClickHouse.Username,
			Password:      cfg.Records.ClickHouse.Password,
			DialTimeout:   mustDuration(cfg.Records.ClickHouse.DialTimeout),
			Compression:   cfg.Records.ClickHouse.Compression,
			RetentionDays: cfg.Records.ClickHouse.RetentionDays,
		})
		if err := ch.Open(); err != nil {
			return nil, nil, fmt.Errorf("open clickhouse: %w", err)
		}
		app.closers = append(app.closers, ch.Close)
		if err := ch.Migrate(); err != nil {
			return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		return ch, health.NewPingChecker(BackendClickHouse, ch), nil

	case BackendPostgres:
		pg, err := storage.NewPostgresRecords(ctx, cfg.Records.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		app.closers = append(app.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pg, health.NewPingChecker(BackendPostgres, pg), nil

	default:
		return store.Records(), nil, nil
	}
}

// buildDispatcher registers the in-app notifier plus the configured email
// and push channels.
func buildDispatcher(cfg *Config, store *storage.SQLiteStorage) (*notifier.Dispatcher, error) {
	dispatcher := notifier.NewDispatcherWithRateLimit(notifier.RateLimitConfig{
		Enabled:      cfg.RateLimitEnabled(),
		MaxPerWindow: cfg.Notifications.RateLimit.MaxPerWindow,
		Window:       mustDuration(cfg.Notifications.RateLimit.Window),
	})
	dispatcher.Register(notifier.NewInAppNotifier(store.Notifications()))

	if email := cfg.Notifications.Email; email.Enabled {
		n, err := notifier.NewEmailNotifier(notifier.EmailConfig{
			Host:     email.Host,
			Port:     email.Port,
			Username: email.Username,
			Password: email.Password,
			From:     email.From,
		}, store.Users())
		if err != nil {
			return nil, fmt.Errorf("create email notifier: %w", err)
		}
		dispatcher.Register(n)
	}

	push := cfg.Notifications.Push
	switch push.Transport {
	case PushWebhook:
		n, err := notifier.NewPushWebhookNotifier(notifier.PushWebhookConfig{
			URL:     push.WebhookURL,
			Token:   push.WebhookToken,
			Timeout: mustDuration(push.Timeout),
		})
		if err != nil {
			return nil, fmt.Errorf("create push notifier: %w", err)
		}
		dispatcher.Register(n)
	case PushKafka:
		n, err := notifier.NewKafkaPushNotifier(notifier.KafkaPushConfig{
			Brokers: push.Kafka.Brokers,
			Topic:   push.Kafka.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("create kafka push notifier: %w", err)
		}
		dispatcher.Register(n)
	}

	return dispatcher, nil
}
