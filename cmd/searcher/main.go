package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/newsindex/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "store", cfg.Store.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := storage.Open(ctx, cfg, true)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	family, err := tokenizer.NewFamily(cfg.Indexer.TokenizerConfig())
	if err != nil {
		slog.Error("invalid tokenizer configuration", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer shutdownMetrics(context.Background())
	}

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.New("redis-cache", resilience.Config{
				FailureThreshold: cfg.Redis.BreakerThreshold,
				Cooldown:         cfg.Redis.BreakerCooldown,
			}, resilience.WithStateHook(func(name string, s resilience.State) {
				m.CircuitState.WithLabelValues(name).Set(float64(s))
			}))
			queryCache = cache.New(cache.Guard(redisClient, breaker), cfg.Redis.CacheTTL, m)
			slog.Info("search cache enabled",
				"addr", cfg.Redis.Addr,
				"ttl", cfg.Redis.CacheTTL,
			)
		}
	}

	// Both services lock through the store, so a rebuild started here also
	// excludes indexing and searches in other processes on a shared database.
	indexOpts := []indexer.Option{indexer.WithMetrics(m)}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		indexOpts = append(indexOpts, indexer.WithPublisher(producer))

		if queryCache != nil {
			hostname, _ := os.Hostname()
			invalidator := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, "searcher-"+hostname,
				cache.HandleIndexComplete(queryCache))
			go func() {
				if err := invalidator.Start(ctx); err != nil {
					slog.Error("cache invalidation consumer error", "error", err)
				}
			}()
			defer invalidator.Close()
			slog.Info("cache invalidation consumer started", "topic", cfg.Kafka.Topics.IndexComplete)
		}
	}
	idx := indexer.New(st, st, family, cfg.Indexer.FieldWeight, indexOpts...)
	svc := searcher.New(st, st, family,
		searcher.WithMaxTokens(cfg.Search.MaxQueryTokens),
		searcher.WithDefaultLimit(cfg.Search.DefaultLimit),
	)

	checker := health.NewChecker()
	checker.Register("store", st.Ping, true)
	if redisClient != nil {
		checker.Register("redis", redisClient.Ping, false)
	}

	h := handler.New(svc, idx, st, queryCache, m, cfg.Search)
	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		chain = middleware.RateLimit(middleware.NewLimiter(cfg.Server.RateLimit), m)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// A rebuild cut short leaves most documents unindexed; let it finish.
	h.Wait()
	slog.Info("search service stopped")
}
