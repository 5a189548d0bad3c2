package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bidintake/internal"
	"bidintake/internal/app"
	"bidintake/internal/config"
	"bidintake/internal/logging"
	"bidintake/internal/pipeline"
	"bidintake/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	must(err)
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "mail:process":
		a, err := app.New(ctx, cfg, logger)
		must(err)
		defer a.Close()
		result, err := a.Listener.Trigger(ctx)
		must(err)
		fmt.Printf("run %s fetched=%d created=%d discarded=%d failed=%d\n",
			result.RunID, result.Fetched, len(result.Bids), result.Discarded, result.Failed)
	case "mail:listen":
		a, err := app.New(ctx, cfg, logger)
		must(err)
		defer a.Close()
		must(a.Serve(ctx))
	case "mail:health":
		mailbox, err := app.NewMailbox(ctx, cfg, logger)
		must(err)
		probe := &app.App{Config: cfg, Logger: logger, Mailbox: mailbox}
		if !probe.HealthCheck(ctx) {
			fmt.Println("mailbox: Failed")
			os.Exit(1)
		}
		fmt.Println("mailbox: Connected")
	case "mail:inspect":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "path to a raw .eml message")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		inspection, err := pipeline.InspectFile(*file)
		must(err)
		printJSON(inspection)
	case "bids:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 50, "max bids")
		status := fs.String("status", "", "filter by status")
		_ = fs.Parse(os.Args[2:])
		store := openStore(ctx, cfg)
		defer store.Close()
		bids, err := store.ListBids(ctx, storage.BidFilter{Status: internal.BidStatus(*status), Limit: *limit})
		must(err)
		printJSON(bids)
	case "bids:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "", "output xlsx path")
		limit := fs.Int("limit", 1000, "max bids")
		status := fs.String("status", "", "filter by status")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*out) == "" {
			*out = filepath.Join(cfg.OutputDir, fmt.Sprintf("bids_%s.xlsx", time.Now().UTC().Format("20060102_150405")))
		}
		store := openStore(ctx, cfg)
		defer store.Close()
		bids, err := store.ListBids(ctx, storage.BidFilter{Status: internal.BidStatus(*status), Limit: *limit})
		must(err)
		must(pipeline.ExportBidsToXLSX(bids, *out))
		logger.Info("bids exported", zap.Int("count", len(bids)), zap.String("path", *out))
		fmt.Printf("exported %d bids to %s\n", len(bids), *out)
	case "contractors:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 50, "max contractors")
		_ = fs.Parse(os.Args[2:])
		store := openStore(ctx, cfg)
		defer store.Close()
		contractors, err := store.ListContractors(ctx, *limit)
		must(err)
		printJSON(contractors)
	default:
		usage()
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.Config) storage.Store {
	store, err := storage.Open(ctx, cfg)
	must(err)
	return store
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(v))
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  bidintake mail:process")
	fmt.Println("  bidintake mail:listen")
	fmt.Println("  bidintake mail:health")
	fmt.Println("  bidintake mail:inspect --file message.eml")
	fmt.Println("  bidintake bids:list [--limit 50] [--status submitted]")
	fmt.Println("  bidintake bids:export [--out bids.xlsx] [--limit 1000] [--status submitted]")
	fmt.Println("  bidintake contractors:list [--limit 50]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
