package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/auth"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/config"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/contextstore"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/cost"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/decision"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/events"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/httpserver"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/orchestrator"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/provider"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("[startup] config load: %v", err)
	}
	log := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	card := cost.DefaultRateCard()
	if cfg.RateCardFile != "" {
		if card, err = cost.LoadRateCard(cfg.RateCardFile); err != nil {
			log.Fatalf("[startup] rate card: %v", err)
		}
	}
	predictor := cost.NewRateCardPredictor(card)

	var catalog provider.Catalog = provider.NewStaticCatalog(provider.DefaultCapabilities())
	if cfg.CatalogFile != "" {
		catalog = provider.NewFileCatalog(cfg.CatalogFile)
	}
	if _, err := catalog.Load(ctx); err != nil {
		log.Fatalf("[startup] provider catalog: %v", err)
	}

	var engineOpts []decision.Option
	if len(cfg.DenyRegions) > 0 || len(cfg.MaxDimensions) > 0 {
		engineOpts = append(engineOpts, decision.WithGuard(decision.NewStaticGuard(cfg.DenyRegions, cfg.MaxDimensions)))
	}
	engine := decision.New(predictor, engineOpts...)

	store, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	var publisher events.Publisher
	dispatchDone := make(chan struct{})
	if dispatcher := newDispatcher(ctx, cfg, log); dispatcher != nil {
		publisher = dispatcher
		go func() {
			defer close(dispatchDone)
			_ = dispatcher.Run(ctx)
		}()
	} else {
		close(dispatchDone)
	}

	svc := orchestrator.New(store, catalog, engine, predictor, orchestrator.Config{
		Publisher: publisher,
		Retention: contextstore.RetentionPolicy{
			MaxRecords: cfg.RetentionMaxRecords,
			MaxAge:     cfg.RetentionMaxAge,
		},
		Logger: log,
	})
	if cfg.RetentionEnabled() {
		go runRetention(ctx, svc, cfg.RetentionInterval, log)
	}

	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		if verifier, err = auth.NewVerifier(cfg.JWTSecret, cfg.WriteScope, cfg.JWTIssuer); err != nil {
			log.Fatalf("[startup] auth: %v", err)
		}
	} else {
		log.Warn("[startup] PLANNER_JWT_SECRET unset; mutating routes are unauthenticated")
	}

	server := httpserver.New(svc, httpserver.Options{Verifier: verifier, Logger: log})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.Addr, "store": cfg.Store}).Info("ai-planner listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	waitForShutdown(cancel, httpServer, log)
	select {
	case <-dispatchDone:
	case <-time.After(15 * time.Second):
		log.Warn("[shutdown] event dispatcher did not drain in time")
	}
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	// package-level logging in decision goes through the standard logger
	logrus.SetLevel(log.GetLevel())
	logrus.SetFormatter(log.Formatter)
	return log
}

func openStore(ctx context.Context, cfg config.Config, log *logrus.Logger) (contextstore.Store, func()) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[startup] db open: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("[startup] db ping: %v", err)
		}
		st := contextstore.NewPGStore(db)
		if err := st.Migrate(ctx); err != nil {
			log.Fatalf("[startup] %v", err)
		}
		return st, func() { db.Close() }
	case config.StoreFile:
		st, err := contextstore.NewFileStore(cfg.DataDir)
		if err != nil {
			log.Fatalf("[startup] file store: %v", err)
		}
		return st, func() {}
	default:
		log.Warn("[startup] using in-memory context store; plans are lost on restart")
		return contextstore.NewMemoryStore(), func() {}
	}
}

func newDispatcher(ctx context.Context, cfg config.Config, log *logrus.Logger) *events.Dispatcher {
	var (
		producer events.Producer
		archiver events.Archiver
	)
	if len(cfg.KafkaBrokers) > 0 {
		p, err := events.NewKafkaProducer(events.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			log.Fatalf("[startup] kafka: %v", err)
		}
		producer = p
	}
	if cfg.S3Bucket != "" {
		a, err := events.NewS3Archiver(ctx, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			log.Fatalf("[startup] s3: %v", err)
		}
		archiver = a
	}
	if producer == nil && archiver == nil {
		return nil
	}
	return events.NewDispatcher(producer, archiver, events.DispatcherConfig{
		Workers:   cfg.EventWorkers,
		QueueSize: cfg.EventQueueSize,
	}, log)
}

func runRetention(ctx context.Context, svc *orchestrator.Service, interval time.Duration, log *logrus.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.ApplyRetention(ctx); err != nil {
				log.WithError(err).Warn("[retention] purge failed")
			}
		}
	}
}

func waitForShutdown(cancel context.CancelFunc, srv *http.Server, log *logrus.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	cancel()
}
