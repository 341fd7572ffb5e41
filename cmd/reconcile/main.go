// Command reconcile rebuilds attendance aggregates from ledger rows.
// The per-day counter is advisory and maintained by increment, so a
// failed increment after a successful append leaves it behind the
// ledger; this tool recounts and overwrites it. Operator-invoked, not a
// daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"memberportal/internal/attendance"
	"memberportal/internal/config"
	"memberportal/internal/docstore"
	"memberportal/internal/ledger"
	"memberportal/internal/logging"
)

func main() {
	_ = godotenv.Load()

	from := flag.String("from", "", "first date to recount (YYYY-MM-DD), defaults to today")
	to := flag.String("to", "", "last date to recount (YYYY-MM-DD), defaults to -from")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration invalid: %v", err)
	}
	logger, err := logging.Init("info", cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	start := time.Now().In(cfg.Timezone)
	if *from != "" {
		start, err = time.ParseInLocation("2006-01-02", *from, cfg.Timezone)
		if err != nil {
			log.Fatalf("bad -from date: %v", err)
		}
	}
	end := start
	if *to != "" {
		end, err = time.ParseInLocation("2006-01-02", *to, cfg.Timezone)
		if err != nil {
			log.Fatalf("bad -to date: %v", err)
		}
	}
	if end.Before(start) {
		log.Fatal("-to is before -from")
	}

	docs := docstore.NewRedis(cfg.RedisAddr)
	svc := ledger.NewClient(cfg.LedgerBaseURL, cfg.LedgerID, cfg.LedgerToken)
	mgr := ledger.NewManager(svc, logger)
	recorder := attendance.NewRecorder(mgr, docs, nil, cfg.Timezone, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := recorder.PartitionKey(day)
		agg, err := recorder.Recount(ctx, key)
		if err != nil {
			log.Fatalf("recount %s: %v", key, err)
		}
		fmt.Printf("%s: %d\n", key, agg.Count)
	}
}
