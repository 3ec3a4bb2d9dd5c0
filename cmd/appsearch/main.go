package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/appsearch/appsearch/internal/api"
	"github.com/appsearch/appsearch/internal/catalog"
	"github.com/appsearch/appsearch/internal/config"
	"github.com/appsearch/appsearch/internal/health"
	"github.com/appsearch/appsearch/internal/icons"
	"github.com/appsearch/appsearch/internal/listing"
	"github.com/appsearch/appsearch/internal/logger"
	"github.com/appsearch/appsearch/internal/scheduler"
	"github.com/appsearch/appsearch/internal/scheduler/tasks"
	"github.com/appsearch/appsearch/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	searchTerm := flag.String("search", "", "Run one catalog search, print the results as JSON and exit")
	table := flag.Bool("table", false, "With -search, print a rating/price table instead of JSON")
	initConfig := flag.String("init-config", "", "Write a default config file to the given path and exit")
	flag.Parse()

	if *initConfig != "" {
		if err := config.WriteDefault(*initConfig); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote default config to %s\n", *initConfig)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		// Keep stdout clean for -search output.
		Out: os.Stderr,
	})
	defer log.Close()

	endpoint, err := catalog.NewEndpoint(catalog.EndpointConfig{
		BaseURL: cfg.Catalog.BaseURL,
		Entity:  cfg.Catalog.Entity,
		Country: cfg.Catalog.Country,
		Limit:   cfg.Catalog.Limit,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid catalog configuration")
	}

	catalogClient := transport.NewClient(transport.Config{
		Timeout:      time.Duration(cfg.Catalog.Timeout) * time.Second,
		MaxBodyBytes: cfg.Catalog.MaxBytes,
		Accept:       "application/json",
		UserAgent:    "AppSearch/" + config.Version,
	}, log.Logger)
	loader := catalog.NewLoader(catalogClient, endpoint, log.Logger)

	iconTimeout := time.Duration(cfg.Icons.Timeout) * time.Second
	iconClient := transport.NewClient(transport.Config{
		Timeout:      iconTimeout,
		MaxBodyBytes: cfg.Icons.MaxBytes,
		UserAgent:    "AppSearch/" + config.Version,
	}, log.Logger)
	fetcher := icons.NewHTTPFetcher(iconClient, log.Logger)

	if *searchTerm != "" {
		var code int
		if *table {
			coordinator := icons.NewCoordinator(fetcher, log.Logger)
			presenter := listing.NewPresenter(loader, coordinator, listing.Window{}, log.Logger)
			code = runTable(presenter, *searchTerm, iconTimeout+time.Second, log)
		} else {
			code = runSearch(loader, *searchTerm, log)
		}
		log.Close()
		os.Exit(code)
	}

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting AppSearch")

	healthSvc := health.NewService(log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	probe := tasks.NewCatalogProbeTask(loader, healthSvc, cfg.Catalog.ProbeTerm, time.Duration(cfg.Catalog.Timeout)*time.Second, log.Logger)
	if err := tasks.RegisterCatalogProbeTask(sched, probe, cfg.Catalog.ProbeCron); err != nil {
		log.Fatal().Err(err).Msg("failed to register catalog probe")
	}
	sched.Start()

	server := api.NewServer(api.Deps{
		Searcher:  loader,
		Health:    healthSvc,
		Scheduler: sched,
		Fetcher:   fetcher,
	}, log.Logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.Server.Address())
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}

	log.Info().Msg("AppSearch stopped")
}

// runSearch performs a one-shot search and returns the process exit code.
func runSearch(loader *catalog.Loader, term string, log *logger.Logger) int {
	done := make(chan catalog.Result, 1)
	loader.Load(context.Background(), term, func(r catalog.Result) {
		done <- r
	})
	result := <-done

	if !result.OK() {
		log.Error().Err(result.Err).Str("kind", string(catalog.KindOf(result.Err))).Msg("search failed")
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Items); err != nil {
		log.Error().Err(err).Msg("failed to encode results")
		return 1
	}
	return 0
}

// runTable performs a one-shot search through the list presenter, loads
// every row's icon and prints one line per row.
func runTable(presenter *listing.Presenter, term string, iconWait time.Duration, log *logger.Logger) int {
	if err := presenter.Search(context.Background(), term); err != nil {
		log.Error().Err(err).Str("kind", string(catalog.KindOf(err))).Msg("search failed")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), iconWait)
	defer cancel()
	if err := presenter.LoadAllIcons(ctx); err != nil {
		log.Warn().Err(err).Msg("not every icon finished loading")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tRATING\tPRICE\tICON")
	for _, row := range presenter.Rows() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", row.ID, row.Name, row.Category, row.Rating, row.Price, iconText(row))
	}
	if err := w.Flush(); err != nil {
		log.Error().Err(err).Msg("failed to write table")
		return 1
	}
	return 0
}

func iconText(row listing.RowView) string {
	if row.Icon == listing.IconImage {
		return fmt.Sprintf("image (%d bytes)", len(row.Image))
	}
	return string(row.Icon)
}
