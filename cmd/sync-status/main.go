package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"text/tabwriter"

	"stocksync/internal/config"
	"stocksync/internal/store"
	"stocksync/internal/synclog"
)

func main() {
	failures := flag.Int("failures", 0, "also show the N most recent failed or skipped tasks")
	fetches := flag.Int("fetches", 0, "also show the N most recent fetch log rows")
	flag.Parse()

	cfgPath := "config/stocksync.yaml"
	if p := os.Getenv("STOCKSYNC_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := store.Open(cfg.Storage.SQLitePath, 1)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	syncLog, err := synclog.New(db.DB(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		log.Fatalf("failed to open sync log: %v", err)
	}

	ctx := context.Background()
	statuses, err := syncLog.LatestStatuses(ctx)
	if err != nil {
		log.Fatalf("failed to read sync log: %v", err)
	}
	if len(statuses) == 0 {
		fmt.Println("no sync runs recorded")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tSTATUS\tSTARTED\tFINISHED\tUNITS\tFAILED\tWRITTEN\tDROPPED\tERROR")
	for _, s := range statuses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%d\t%d\t%s\n",
			s.Task, s.Status, s.StartedAt, s.FinishedAt,
			s.Counts.UnitsOK, s.Counts.UnitsTotal, s.Counts.UnitsFailed,
			s.Counts.RecordsWritten, s.Counts.RecordsDropped, s.Error)
	}
	w.Flush()

	if *failures > 0 {
		recent, err := syncLog.RecentFailures(ctx, *failures)
		if err != nil {
			log.Fatalf("failed to read recent failures: %v", err)
		}
		fmt.Printf("\nrecent failures (%d):\n", len(recent))
		fw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(fw, "TASK\tSTATUS\tSTARTED\tSESSION\tERROR")
		for _, s := range recent {
			fmt.Fprintf(fw, "%s\t%s\t%s\t%s\t%s\n", s.Task, s.Status, s.StartedAt, s.SessionID, s.Error)
		}
		fw.Flush()
	}

	if *fetches > 0 {
		recent, err := syncLog.RecentFetches(ctx, *fetches)
		if err != nil {
			log.Fatalf("failed to read fetch log: %v", err)
		}
		fmt.Printf("\nrecent fetches (%d):\n", len(recent))
		fw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(fw, "UNIT\tSTATUS\tCLASS\tRETRIES\tELAPSED_MS\tFETCHED\tSESSION")
		for _, f := range recent {
			fmt.Fprintf(fw, "%s\t%d\t%s\t%d\t%d\t%s\t%s\n",
				f.UnitKey, f.StatusCode, f.Class, f.Retries, f.ElapsedMS, f.FetchedAt, f.SessionID)
		}
		fw.Flush()
	}
}
