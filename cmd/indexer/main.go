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
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/middleware"
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
	slog.Info("starting indexer service", "port", cfg.Ingest.Port, "store", cfg.Store.Driver, "kafka", cfg.Kafka.Enabled)

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

	indexOpts := []indexer.Option{indexer.WithMetrics(m)}
	// Without Kafka documents posted here are indexed before the request
	// returns; with it they are queued as document events and applied by
	// the consumer below.
	var docEvents publisher.EventPublisher
	if cfg.Kafka.Enabled {
		completions := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer completions.Close()
		indexOpts = append(indexOpts, indexer.WithPublisher(completions))

		changes := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents)
		defer changes.Close()
		docEvents = changes
	}
	idx := indexer.New(st, st, family, cfg.Indexer.FieldWeight, indexOpts...)

	if cfg.Kafka.Enabled {
		kafkaConsumer := kafka.NewConsumer(
			cfg.Kafka,
			cfg.Kafka.Topics.DocumentEvents,
			"",
			consumer.HandleMessage(idx, cfg.Kafka.Topics.DocumentEvents, m),
		)
		defer kafkaConsumer.Close()
		indexConsumer := consumer.New(kafkaConsumer)
		go func() {
			if err := indexConsumer.Start(ctx); err != nil {
				slog.Error("consumer error", "error", err)
			}
		}()
		slog.Info("consuming document events",
			"topic", cfg.Kafka.Topics.DocumentEvents,
			"group", cfg.Kafka.ConsumerGroup,
		)
	}

	pub := publisher.New(st, idx, docEvents, m)
	h := handler.New(pub, st, validator.Limits{
		MaxBodyBytes:   cfg.Ingest.MaxBodyBytes,
		MaxLabelLength: cfg.Ingest.MaxLabelLength,
	})

	checker := health.NewChecker()
	checker.Register("store", st.Ping, true)

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
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Ingest.Port),
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

	slog.Info("ingestion API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("indexer service stopped")
}
