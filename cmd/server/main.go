package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/phishguard/phishguard-go/internal/config"
	"github.com/phishguard/phishguard-go/internal/enrich"
	"github.com/phishguard/phishguard-go/internal/features"
	"github.com/phishguard/phishguard-go/internal/handlers"
	"github.com/phishguard/phishguard-go/internal/model"
	"github.com/phishguard/phishguard-go/internal/predict"
	"github.com/phishguard/phishguard-go/internal/ratelimit"
	"github.com/phishguard/phishguard-go/internal/review"
	"github.com/phishguard/phishguard-go/internal/server"
	"github.com/phishguard/phishguard-go/internal/sse"
	"github.com/phishguard/phishguard-go/internal/store"
	phishtls "github.com/phishguard/phishguard-go/internal/tls"
	"github.com/phishguard/phishguard-go/internal/ws"
)

func main() {
	configPath := flag.String("config", os.Getenv("PHISHGUARD_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := server.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Feature schema and keyword lists
	if cfg.Model.SchemaFile != "" {
		if err := features.VerifySchemaFile(cfg.Model.SchemaFile); err != nil {
			logger.Error("schema file does not match compiled schema", "path", cfg.Model.SchemaFile, "err", err)
			os.Exit(1)
		}
	}
	kw := features.DefaultKeywords()
	if cfg.Model.KeywordsFile != "" {
		if kw, err = features.LoadKeywords(cfg.Model.KeywordsFile); err != nil {
			logger.Error("failed to load keywords", "path", cfg.Model.KeywordsFile, "err", err)
			os.Exit(1)
		}
	}
	extractor := features.NewExtractor(kw)

	// Model: any load failure is fatal before the listener opens
	m, err := model.Load(cfg.Model.Path)
	if err != nil {
		logger.Error("failed to load model", "path", cfg.Model.Path, "err", err)
		os.Exit(1)
	}
	logger.Info("model loaded", "path", cfg.Model.Path, "schema", m.Schema(), "trees", m.NumTrees())

	// Audit store (optional)
	st, err := store.Open(ctx, cfg.Store.DSN, logger)
	if err != nil {
		logger.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	sseHub := sse.NewHub(logger)
	limiter := ratelimit.New()
	limiter.Configure("predict", ratelimit.Bucket{MaxRequests: cfg.RateLimit.PredictPerMinute, Window: time.Minute})
	limiter.Configure("batch", ratelimit.Bucket{MaxRequests: cfg.RateLimit.BatchPerMinute, Window: time.Minute})
	limiter.Configure("explain", ratelimit.Bucket{MaxRequests: cfg.RateLimit.ExplainPerMinute, Window: time.Minute})

	// Enrichment (optional)
	var enrichers []enrich.Enricher
	if cfg.Enrich.Content {
		enrichers = append(enrichers, enrich.NewContent(enrich.ContentOptions{
			Timeout:   cfg.Enrich.Timeout,
			MaxBody:   cfg.Enrich.MaxBody,
			UserAgent: cfg.Enrich.UserAgent,
		}))
	}
	if cfg.Enrich.DNS {
		enrichers = append(enrichers, enrich.NewDNS(cfg.Enrich.Resolver, 0, kw))
	}
	chain := enrich.NewChain(cfg.Enrich.Timeout, logger, enrichers...)
	if chain.Len() > 0 {
		logger.Info("enrichment enabled", "content", cfg.Enrich.Content, "dns", cfg.Enrich.DNS)
	}

	svc := predict.New(predict.Options{
		Model:     m,
		Extractor: extractor,
		Chain:     chain,
		Store:     st,
		Hub:       sseHub,
		Logger:    logger,
		MaxBatch:  cfg.Server.MaxBatch,
	})

	reviewer := review.New(ctx, review.Options{
		APIKey:  cfg.Review.APIKey,
		Model:   cfg.Review.Model,
		Bedrock: cfg.Review.Bedrock,
		Timeout: cfg.Review.Timeout,
	}, logger)

	wsManager := ws.NewManager(sseHub, st, logger)

	router := handlers.NewRouter(handlers.RouterConfig{
		Predict:        handlers.NewPredictHandler(svc, reviewer, limiter, cfg.Server.MaxBodyBytes, logger),
		Store:          st,
		Hub:            sseHub,
		WS:             wsManager,
		Limiter:        limiter,
		AdminKey:       cfg.Auth.APIKey,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         logger,
	})

	// Start background goroutines
	go server.RunWithRecovery(ctx, logger, "rate-limit-evict", limiter.EvictLoop)
	go server.RunWithRecovery(ctx, logger, "ws-relay", wsManager.Run)
	if cfg.Store.DSN != "" {
		go server.RunWithRecovery(ctx, logger, "store-retention", store.RetentionLoop(st, cfg.Store.Retention, logger))
	}
	if pg, ok := st.(*store.Postgres); ok {
		pgListener := sse.NewPGListener(pg, sseHub, logger)
		go server.RunWithRecovery(ctx, logger, "pg-listener", pgListener.Listen)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // SSE + WebSocket need unlimited write time
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serve := srv.ListenAndServe
	if len(cfg.TLS.Domains) > 0 {
		cm := phishtls.NewCertManager(cfg.TLS.Domains, cfg.TLS.Email, cfg.Production(), logger)
		ln, err := cm.Listen(ctx)
		if err != nil {
			logger.Error("failed to start TLS", "err", err)
			os.Exit(1)
		}
		srv.Addr = ln.Addr().String()
		serve = func() error { return srv.Serve(ln) }
	}

	logger.Info("server starting", "addr", srv.Addr, "env", cfg.Env, "tls", len(cfg.TLS.Domains) > 0)
	stop := func() {
		cancel()
		sseHub.Close()
	}
	if err := server.Serve(srv, serve, cfg.Server.ShutdownTimeout, logger, stop); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
