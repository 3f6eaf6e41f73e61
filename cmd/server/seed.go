package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/soaringjerry/evibench/internal/config"
	"github.com/soaringjerry/evibench/internal/db"
	"github.com/soaringjerry/evibench/internal/logger"
	"github.com/soaringjerry/evibench/internal/services"
)

const seedUsage = "usage: server seed reseed|append [--utf8] <file.csv>"

// runSeed loads a question file into the configured store. reseed clears the
// collection first, append refuses QIDs that already exist.
func runSeed(args []string) error {
	if len(args) == 0 {
		return errors.New(seedUsage)
	}
	mode, err := services.ParseLoadMode(args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", seedUsage, err)
	}
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	utf8 := fs.Bool("utf8", false, "treat the file as UTF-8 instead of Latin-1")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New(seedUsage)
	}
	path := fs.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	recs, err := services.ParseQuestionsCSV(f, !*utf8)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	ctx := context.Background()
	store, err := db.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	defer func() { _ = store.Close(context.Background()) }()
	if cfg.Backend == config.BackendMemory {
		log.Warn("seeding the memory backend has no lasting effect")
	}

	n, err := services.NewLoaderService(store, cfg.StoreTimeout, log).Load(ctx, mode, recs)
	if err != nil {
		return err
	}
	log.Info("dataset seeded", "mode", string(mode), "records", n, "file", path)
	return nil
}
