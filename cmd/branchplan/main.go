package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alexanderramin/branchplan/internal/cli"
	"github.com/alexanderramin/branchplan/internal/config"
	"github.com/alexanderramin/branchplan/internal/db"
	"github.com/alexanderramin/branchplan/internal/httpapi"
	"github.com/alexanderramin/branchplan/internal/repository"
	"github.com/alexanderramin/branchplan/internal/service"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Open database
	database, driver, err := db.Open(ctx, cfg.DBDriver, cfg.DB)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	// Wire repositories
	conn := db.Bind(database, driver)
	projectRepo := repository.NewSQLProjectRepo(conn)
	nodeRepo := repository.NewSQLScenarioNodeRepo(conn)
	notificationRepo := repository.NewSQLNotificationRepo(conn)

	// Wire unit of work for transactional operations
	uow := db.NewUnitOfWork(database, driver)

	// Observers: metrics always, structured call logs on request
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promObserver, err := service.NewPrometheusObserver(registry)
	if err != nil {
		return err
	}
	observers := []service.UseCaseObserver{promObserver}
	if cfg.LogCalls {
		observers = append(observers, service.NewLogUseCaseObserver(os.Stderr))
	}

	scenarioCfg := service.ScenarioConfig{MaxTreeDepth: cfg.MaxTreeDepth}
	if cfg.RedisURL != "" {
		cache, err := service.NewRedisResolveCache(ctx, cfg.RedisURL, cfg.CacheTTL())
		if err != nil {
			return fmt.Errorf("opening resolve cache: %w", err)
		}
		defer cache.Close()
		scenarioCfg.Cache = cache
	}

	app := &cli.App{
		Projects:  service.NewProjectService(projectRepo, uow, observers...),
		Scenarios: service.NewScenarioService(projectRepo, nodeRepo, notificationRepo, uow, scenarioCfg, observers...),
		Imports:   service.NewImportService(projectRepo, uow, scenarioCfg, observers...),
		HTTPAddr:  cfg.HTTPAddr,
	}

	app.Serve = func(ctx context.Context, addr string) error {
		metrics, err := httpapi.NewMetrics(registry)
		if err != nil {
			return err
		}
		srv := httpapi.NewServer(httpapi.Deps{
			Projects:  app.Projects,
			Scenarios: app.Scenarios,
			Imports:   app.Imports,
			Logger:    slog.New(slog.NewJSONHandler(os.Stderr, nil)),
			Gatherer:  registry,
			Metrics:   metrics,
			Ping:      database.PingContext,
		})
		return srv.ListenAndServe(ctx, addr)
	}

	// Detect interactive terminal for delete confirmations.
	app.IsInteractive = func() bool {
		return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	}

	// Execute root command
	rootCmd := cli.NewRootCmd(app)
	return rootCmd.ExecuteContext(ctx)
}
