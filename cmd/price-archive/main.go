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
	"stocksync/internal/store"
	"stocksync/internal/util"
)

func main() {
	years := flag.Int("retention-years", 0, "keep this many years in SQLite (overrides config)")
	dryRun := flag.Bool("dry-run", false, "report the cutoff without archiving")
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

	retention := cfg.Storage.RetentionYears
	if *years > 0 {
		retention = *years
	}
	cutoff := time.Now().UTC().AddDate(-retention, 0, 0).Format("2006-01-02")

	if *dryRun {
		logger.Info("dry run", "cutoff", cutoff, "archive_dir", cfg.Storage.ArchiveDir)
		return
	}

	db, err := store.Open(cfg.Storage.SQLitePath, cfg.Storage.MaxConns)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("archiving price history", "cutoff", cutoff, "archive_dir", cfg.Storage.ArchiveDir)
	archived, err := db.ArchivePrices(ctx, cfg.Storage.ArchiveDir, cutoff, logger)
	if err != nil {
		log.Fatalf("archive failed after %d rows: %v", archived, err)
	}
	logger.Info("archive complete", "rows", archived)
}
