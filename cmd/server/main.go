package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	amqpsink "satdigital/internal/adapters/amqp"
	httpadapter "satdigital/internal/adapters/http"
	"satdigital/internal/adapters/notify"
	pg "satdigital/internal/adapters/postgres"
	"satdigital/internal/adapters/sqlite"
	"satdigital/internal/config"
	"satdigital/internal/metrics"
	"satdigital/internal/ports"
	"satdigital/internal/services/catalog"
	"satdigital/internal/services/compliance"
	"satdigital/internal/services/documents"
	"satdigital/internal/services/inventory"
	"satdigital/internal/services/planning"
	"satdigital/internal/services/progress"
	"satdigital/internal/services/report"
	"satdigital/internal/services/rules"
	"satdigital/internal/services/thresholds"
	"satdigital/internal/services/workflow"
	"satdigital/internal/workers/sweeper"
)

func main() {
	logger := log.New(os.Stderr, "sat-server ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	defer store.Close()

	if err := catalog.Seed(ctx, store, catalog.Default()); err != nil {
		logger.Fatalf("sections: %v", err)
	}
	loaded, err := rules.LoadFile(ctx, cfg.RulesFile)
	if err != nil {
		logger.Fatalf("rules: %v", err)
	}
	logger.Printf("rules %s loaded from %s (sha256 %s)", loaded.Rules.Version, loaded.Source, loaded.SHA256)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sinks := notify.FanOut{notify.NewLogSink(logger)}
	if cfg.AMQPURL != "" {
		pub, err := amqpsink.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatalf("amqp: %v", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
		logger.Printf("publishing notifications to exchange %s", cfg.AMQPExchange)
	}

	prog := progress.New(store)
	engine := workflow.New(store, prog, sinks, store,
		workflow.WithUploadPolicy(workflow.UploadPolicy{
			RequireCompletion: cfg.UploadRequireCompletion,
			FastTrack:         cfg.UploadFastTrack,
		}),
		workflow.WithGracePeriod(cfg.CloseGracePeriod),
		workflow.WithMetrics(m),
		workflow.WithLogger(logger),
		workflow.WithSweepWorkers(cfg.SweepWorkers),
	)
	thr := thresholds.New(store, store, loaded.Rules, ports.SystemClock{}, logger)

	srv := httpadapter.New(httpadapter.Services{
		Workflow:   engine,
		Progress:   prog,
		Documents:  documents.New(store, engine, store, ports.SystemClock{}, logger),
		Thresholds: thr,
		Inventory:  compliance.NewService(thr, inventory.New(), m),
		Reports:    report.New(store, prog, ports.SystemClock{}),
		Planning:   planning.New(store, sinks, store, ports.SystemClock{}, logger),
	}, reg, logger, httpadapter.WithMaxBodyBytes(int64(cfg.MaxBodyKB)<<10))

	sw := sweeper.New(engine, cfg.SweepInterval, logger)
	sw.Start(ctx)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	logger.Printf("listening on %s (env=%s)", cfg.ListenAddr, cfg.Env)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Printf("shutting down on %s", sig)
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server error: %v", err)
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
	cancel()
	sw.Stop()
}

// openStore selects Postgres when DATABASE_URL is set and SQLite otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *log.Logger) (ports.Store, error) {
	if cfg.UsePostgres() {
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Printf("using postgres store")
		return db, nil
	}
	s, err := sqlite.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	logger.Printf("using sqlite store at %s", cfg.SQLitePath)
	return s, nil
}
