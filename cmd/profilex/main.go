package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vitae-cloud/profilex/internal/adapter/github"
	"github.com/vitae-cloud/profilex/internal/adapter/network"
	"github.com/vitae-cloud/profilex/internal/adapter/website"
	"github.com/vitae-cloud/profilex/internal/adapter/websearch"
	"github.com/vitae-cloud/profilex/internal/config"
	dbRedis "github.com/vitae-cloud/profilex/internal/db/redis"
	"github.com/vitae-cloud/profilex/internal/domain/source"
	logpkg "github.com/vitae-cloud/profilex/internal/logger"
	"github.com/vitae-cloud/profilex/internal/metrics"
	"github.com/vitae-cloud/profilex/internal/ratelimit"
	"github.com/vitae-cloud/profilex/internal/repository/chunkindex"
	"github.com/vitae-cloud/profilex/internal/repository/embcache"
	profilerepo "github.com/vitae-cloud/profilex/internal/repository/profile"
	sessionrepo "github.com/vitae-cloud/profilex/internal/repository/session"
	"github.com/vitae-cloud/profilex/internal/repository/sourcecache"
	"github.com/vitae-cloud/profilex/internal/repository/tokenstore"
	chiTransport "github.com/vitae-cloud/profilex/internal/transport/chi"
	"github.com/vitae-cloud/profilex/internal/transport/openai"
	chatuc "github.com/vitae-cloud/profilex/internal/usecase/chat"
	enrichuc "github.com/vitae-cloud/profilex/internal/usecase/enrich"
	healthuc "github.com/vitae-cloud/profilex/internal/usecase/health"
	indexuc "github.com/vitae-cloud/profilex/internal/usecase/index"
	retrievaluc "github.com/vitae-cloud/profilex/internal/usecase/retrieval"
	"github.com/vitae-cloud/profilex/internal/usecase/validate"
	"github.com/vitae-cloud/profilex/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting profilex",
		zap.String("env", env),
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("build_date", version.Date),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}
	defer store.Close()

	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(context.Background(), readiness); err != nil {
		logger.Fatal("Store not ready", zap.Error(err))
	}
	logger.Info("Store ready", zap.Strings("addrs", cfg.Database.Addrs))

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterEnrichmentMetrics()

	prefix := cfg.Storage.KeyPrefix

	// Embedder chain: openai -> redis cache (keys include the model version,
	// so a model upgrade never serves stale vectors).
	baseEmbedder := openai.NewEmbedder(&openai.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	embedder := embcache.New(baseEmbedder, store, prefix, metrics.EmbeddingCacheTotal, logger)

	generator := openai.NewGenerator(&openai.GeneratorConfig{
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: float32(cfg.Generation.Temperature),
		Logger:      logger,
	})

	// Repositories
	profileRepo := profilerepo.New(store, prefix)
	sessionRepo := sessionrepo.New(store, prefix)
	tokenRepo := tokenstore.New(store, prefix)
	srcCache := sourcecache.New(store, prefix, metrics.SourceCacheTotal, logger)
	chunkRepo := chunkindex.New(store, prefix, chunkindex.HNSWParams{
		M:           cfg.Indexing.HNSWM,
		EFConstruct: cfg.Indexing.HNSWEFConstruct,
	}, logger)

	limiter := ratelimit.NewLimiter(sourceQuotas(cfg.Sources))
	retry := ratelimit.Policy{
		MaxAttempts: cfg.Enrich.RetryAttempts,
		BaseDelay:   time.Duration(cfg.Enrich.RetryBaseMS) * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}

	adapters := buildAdapters(cfg.Sources, logger)
	if len(adapters) == 0 {
		logger.Warn("No source adapters enabled; enrichment will merge the base document only")
	}

	screener := validate.New(validate.Config{
		MaxFactsPerSource: cfg.Enrich.MaxFactsPerSrc,
		MaxClaimLength:    cfg.Enrich.MaxClaimLength,
	}, logger)

	enrichSvc := enrichuc.New(
		adapters, srcCache, limiter, screener, tokenRepo, profileRepo, profileRepo,
		enrichuc.Config{
			MaxParallel:    cfg.Enrich.MaxParallel,
			Retry:          retry,
			SourcePriority: parsePriority(cfg.Enrich.SourcePriority, logger),
		},
		metrics.SourceFetchTotal, logger,
	)

	indexSvc := indexuc.New(
		profileRepo, chunkRepo, embedder,
		indexuc.NewChunker(cfg.Indexing.TargetTokens, cfg.Indexing.MaxTokens),
		indexuc.Config{
			Dimensions: cfg.Embedding.Dimensions,
			BatchSize:  cfg.Embedding.BatchSize,
			Retry:      retry,
			GCGrace:    time.Duration(cfg.Indexing.GCGraceHours) * time.Hour,
		},
		metrics.IndexedTokensTotal, logger,
	)

	retrievalSvc := retrievaluc.New(chunkRepo, chunkRepo, embedder, retrievaluc.Config{
		MinSimilarity: cfg.Retrieval.MinSimilarity,
		DefaultK:      cfg.Retrieval.DefaultK,
	}, logger)

	chatSvc := chatuc.New(
		sessionRepo, profileRepo, retrievalSvc, generator,
		chatuc.Config{
			HistoryLimit:      cfg.Chat.HistoryLimit,
			MessagesPerWindow: cfg.Chat.MessagesPerMinute,
			Window:            time.Minute,
			SessionTTL:        time.Duration(cfg.Chat.SessionTTLMin) * time.Minute,
			IdleTimeout:       time.Duration(cfg.Chat.IdleTimeoutMin) * time.Minute,
			MaxContextChunks:  cfg.Chat.MaxContextChunks,
			GenerationTimeout: time.Duration(cfg.Generation.TimeoutSec) * time.Second,
		},
		metrics.ChatMessagesTotal, logger,
	)

	healthSvc := healthuc.New(store, baseEmbedder)

	server := chiTransport.NewServer(
		enrichSvc, indexSvc, retrievalSvc, chatSvc,
		profileRepo, tokenRepo, healthSvc, logger,
	)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
	logger.Info("Server stopped")
}

// buildAdapters constructs one adapter per enabled source.
func buildAdapters(src config.SourcesConfig, logger *zap.Logger) []enrichuc.Adapter {
	var adapters []enrichuc.Adapter

	if src.GitHub.Enabled {
		adapters = append(adapters, github.New(github.Config{
			BaseURL:  src.GitHub.BaseURL,
			Timeout:  time.Duration(src.GitHub.TimeoutSec) * time.Second,
			CacheTTL: time.Duration(src.GitHub.CacheTTLSec) * time.Second,
			Logger:   logger,
		}))
	}
	if src.Network.Enabled {
		a, err := network.New(network.Config{
			BaseURL:  src.Network.BaseURL,
			Timeout:  time.Duration(src.Network.TimeoutSec) * time.Second,
			CacheTTL: time.Duration(src.Network.CacheTTLSec) * time.Second,
		})
		if err != nil {
			logger.Fatal("Failed to create network adapter", zap.Error(err))
		}
		adapters = append(adapters, a)
	}
	if src.Website.Enabled {
		adapters = append(adapters, website.New(website.Config{
			Timeout:  time.Duration(src.Website.TimeoutSec) * time.Second,
			CacheTTL: time.Duration(src.Website.CacheTTLSec) * time.Second,
		}))
	}
	if src.WebSearch.Enabled {
		a, err := websearch.New(websearch.Config{
			BaseURL:  src.WebSearch.BaseURL,
			Timeout:  time.Duration(src.WebSearch.TimeoutSec) * time.Second,
			CacheTTL: time.Duration(src.WebSearch.CacheTTLSec) * time.Second,
		})
		if err != nil {
			logger.Fatal("Failed to create websearch adapter", zap.Error(err))
		}
		adapters = append(adapters, a)
	}

	return adapters
}

// sourceQuotas maps enabled sources to their per-account quotas.
func sourceQuotas(src config.SourcesConfig) map[source.Source]ratelimit.Quota {
	quotas := make(map[source.Source]ratelimit.Quota)
	if src.GitHub.Enabled {
		quotas[source.GitHub] = ratelimit.Quota{RequestsPerMinute: src.GitHub.RequestsPerMinute, Burst: src.GitHub.Burst}
	}
	if src.Network.Enabled {
		quotas[source.Network] = ratelimit.Quota{RequestsPerMinute: src.Network.RequestsPerMinute, Burst: src.Network.Burst}
	}
	if src.Website.Enabled {
		quotas[source.Website] = ratelimit.Quota{RequestsPerMinute: src.Website.RequestsPerMinute, Burst: src.Website.Burst}
	}
	if src.WebSearch.Enabled {
		quotas[source.WebSearch] = ratelimit.Quota{RequestsPerMinute: src.WebSearch.RequestsPerMinute, Burst: src.WebSearch.Burst}
	}
	return quotas
}

// parsePriority converts the configured priority list, dropping unknown names.
func parsePriority(names []string, logger *zap.Logger) []source.Source {
	var order []source.Source
	for _, n := range names {
		s, err := source.Parse(n)
		if err != nil {
			logger.Warn("Unknown source in priority list", zap.String("source", n))
			continue
		}
		order = append(order, s)
	}
	return order
}
