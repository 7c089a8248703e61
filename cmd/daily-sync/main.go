package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stocksync/internal/config"
	"stocksync/internal/domain"
	"stocksync/internal/ingest"
	"stocksync/internal/provider"
	"stocksync/internal/store"
	"stocksync/internal/synclog"
	"stocksync/internal/util"
)

// taskOrder is the fixed sequence of the daily run. Prices first so that a
// fresh database has tickers before the slower domains start.
var taskOrder = []domain.Domain{
	domain.DomainPrices,
	domain.DomainProfiles,
	domain.DomainFundamentals,
	domain.DomainRatings,
	domain.DomainEstimates,
	domain.DomainValuation,
}

func main() {
	days := flag.Int("days", 0, "price lookback window in days (overrides config)")
	universe := flag.String("universe", "", "ticker universe file (overrides config)")
	flag.Parse()

	cfgPath := "config/stocksync.yaml"
	if p := os.Getenv("STOCKSYNC_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if *days > 0 {
		cfg.Ingest.PriceDays = *days
	}
	if *universe != "" {
		cfg.Ingest.UniverseFile = *universe
	}

	deadLetter, err := provider.OpenDeadLetter(cfg.Storage.DeadLetterPath, logger)
	if err != nil {
		log.Fatalf("failed to open dead letter file: %v", err)
	}
	defer deadLetter.Close()

	endpoints := make(map[domain.Domain]string, len(taskOrder))
	for _, d := range taskOrder {
		if !cfg.Ingest.Enabled(d) {
			continue
		}
		ep, err := cfg.Provider.Endpoint(d)
		if err != nil {
			log.Fatalf("incomplete provider config: %v", err)
		}
		endpoints[d] = ep
	}

	client := provider.NewClient(provider.Options{
		BaseURL:    cfg.Provider.BaseURL,
		APIKey:     cfg.Provider.APIKey,
		Endpoints:  endpoints,
		Timeout:    time.Duration(cfg.Provider.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Provider.MaxRetries,
		Limiter:    util.NewRateLimiter(cfg.Provider.RateLimitPerMin),
	}, deadLetter, logger)

	db, err := store.Open(cfg.Storage.SQLitePath, cfg.Storage.MaxConns)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	syncLog, err := synclog.New(db.DB(), logger)
	if err != nil {
		log.Fatalf("failed to prepare sync log: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tickers, err := ingest.ResolveUniverse(ctx, cfg.Ingest.UniverseFile, db)
	if err != nil {
		log.Fatalf("failed to resolve ticker universe: %v", err)
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -cfg.Ingest.PriceDays)

	var tasks []ingest.Task
	for _, d := range taskOrder {
		if !cfg.Ingest.Enabled(d) {
			logger.Info("domain disabled", "domain", d)
			continue
		}
		cc := cfg.Ingest.Concurrency(d)
		switch d {
		case domain.DomainPrices:
			tasks = append(tasks, ingest.PricesTask(client, db, tickers, from, to, cc))
		case domain.DomainProfiles:
			tasks = append(tasks, ingest.ProfilesTask(client, db, tickers, cc))
		case domain.DomainFundamentals:
			tasks = append(tasks, ingest.FundamentalsTask(client, db, tickers, cc))
		case domain.DomainRatings:
			tasks = append(tasks, ingest.RatingsTask(client, db, tickers, cc))
		case domain.DomainEstimates:
			tasks = append(tasks, ingest.EstimatesTask(client, db, tickers, cc))
		case domain.DomainValuation:
			tasks = append(tasks, ingest.ValuationTask(client, db, tickers, cc))
		}
	}

	session := synclog.NewSession()
	scheduler := &ingest.Scheduler{
		Logger: logger,
		OnFetch: func(u domain.Unit, out provider.Outcome) {
			syncLog.LogFetch(ctx, session, u.Key(), out.Status, out.Class.String(), out.Retries, out.Elapsed)
		},
	}
	runner := &ingest.Runner{Scheduler: scheduler, Log: syncLog, Logger: logger}

	logger.Info("starting daily sync",
		"session", session,
		"tickers", len(tickers),
		"tasks", len(tasks),
		"from", from.Format("2006-01-02"), "to", to.Format("2006-01-02"),
	)
	if err := runner.RunAll(ctx, session, tasks); err != nil {
		logger.Error("daily sync finished with failures", "session", session, "error", err)
		os.Exit(1)
	}
	logger.Info("daily sync finished", "session", session)
}
