package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soaringjerry/evibench/internal/api"
	"github.com/soaringjerry/evibench/internal/config"
	"github.com/soaringjerry/evibench/internal/db"
	"github.com/soaringjerry/evibench/internal/logger"
	"github.com/soaringjerry/evibench/internal/middleware"
	"github.com/soaringjerry/evibench/internal/services"
	"github.com/soaringjerry/evibench/internal/utils"
)

const sweepInterval = 10 * time.Minute

func main() {
	if len(os.Args) > 1 && os.Args[1] == "seed" {
		if err := runSeed(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "seed:", err)
			os.Exit(1)
		}
		return
	}
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "evibench:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("close store", "error", err)
		}
	}()

	dataset, err := services.LoadDataset(ctx, store, cfg.StoreTimeout)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	log.Info("dataset loaded", "questions", dataset.Len(), "approved", len(dataset.Emails()), "backend", cfg.Backend)

	variant, err := services.ParseVariant(cfg.Variant)
	if err != nil {
		return err
	}
	router := api.NewRouter(store, services.NewDatasetHolder(dataset), api.Options{
		Variant:       variant,
		StoreTimeout:  cfg.StoreTimeout,
		SessionSecret: cfg.SessionSecret,
		SessionTTL:    cfg.SessionTTL,
		AdminKeyHash:  cfg.AdminKeyHash,
		Logger:        log,
	})
	if cfg.SessionSecret == "" {
		log.Warn("EVIBENCH_SESSION_SECRET not set; using development secret")
	}

	commit := os.Getenv("EVIBENCH_COMMIT")
	buildTime := os.Getenv("EVIBENCH_BUILD_TIME")

	mux := http.NewServeMux()
	router.Register(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		locale := middleware.LocaleFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "EviBench",
			"locale":     locale,
			"msg":        utils.T(locale, "health.ok"),
			"variant":    string(variant),
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	handler := middleware.Chain(mux,
		middleware.RequestLogger(log),
		middleware.SecureHeaders,
		middleware.CORS(cfg.CORSOrigin),
		middleware.NoStore,
		middleware.LocaleMiddleware,
	)

	go sweepSessions(ctx, router.Sessions(), cfg.SessionTTL, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("evibench server listening", "addr", cfg.Addr, "variant", string(variant))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// sweepSessions drops sessions idle for longer than ttl.
func sweepSessions(ctx context.Context, sessions *api.SessionManager, ttl time.Duration, log *logger.Logger) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := sessions.SweepIdle(now.Add(-ttl)); n > 0 {
				log.Debug("idle sessions dropped", "count", n, "remaining", sessions.Len())
			}
		}
	}
}
