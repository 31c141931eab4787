package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apiserver "github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/api_server"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/config"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/events"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/fileio"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/generation"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/imagecache"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/queue"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/service"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/status"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/pkg/log"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		zap.S().Fatalf("reading configuration: %v", err)
	}

	logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
	if err != nil {
		logLvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger := log.InitLog(logLvl)
	defer func() { _ = logger.Sync() }()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	zap.S().Info("Starting fitting API service")
	defer zap.S().Info("Fitting API service stopped")

	db, err := store.InitDB(cfg)
	if err != nil {
		zap.S().Fatalf("initializing data store: %v", err)
	}

	s := store.NewStore(db, logrus.New().WithField("component", "store"))
	defer s.Close()

	if err := s.InitialMigration(); err != nil {
		zap.S().Fatalf("running initial migration: %v", err)
	}

	statusStore := status.NewStore(durationOr(cfg.Queue.StatusTTL, time.Hour))
	cache := imagecache.New(10 * time.Minute)
	optimizer := imagecache.NewOptimizer(cfg.Generation.MaxImageSide)

	genClient := generation.NewClient(
		cfg.Generation.Endpoint,
		cfg.Generation.ApiKey,
		cfg.Generation.Model,
		generation.WithMaxAttempts(cfg.Generation.MaxAttempts),
		generation.WithHTTPClient(newGenerationHTTPClient(cfg)),
		generation.WithRateLimiter(rate.NewLimiter(rate.Limit(float64(cfg.Generation.RatePerMinute)/60.0), 1)),
	)

	producer := events.NewEventProducer(&events.StdoutWriter{})
	defer func() { _ = producer.Close() }()

	scheduler := queue.NewScheduler(
		s,
		statusStore,
		cache,
		optimizer,
		queue.Collaborators{
			Billing:   s.Credit(),
			Catalog:   s.Product(),
			Generator: genClient,
			Images:    fileio.NewReader(),
			Results:   fileio.NewWriter(cfg.Service.ResultsDir),
		},
		queue.Config{
			MaxConcurrent:     cfg.Queue.MaxConcurrent,
			MaxAttempts:       cfg.Queue.MaxAttempts,
			RetryBackoff:      durationOr(cfg.Queue.RetryBackoff, time.Minute),
			TickInterval:      durationOr(cfg.Queue.TickInterval, 30*time.Second),
			RetentionAge:      durationOr(cfg.Queue.RetentionAge, 7*24*time.Hour),
			RetentionInterval: durationOr(cfg.Queue.RetentionInterval, time.Hour),
			ImageCacheTTL:     durationOr(cfg.Generation.ImageCacheTTL, 24*time.Hour),
		},
		queue.WithObservers(queue.NewEventObserver(producer), queue.NewMetricsObserver()),
	)

	fittingSrv := service.NewFittingService(s, statusStore, cfg.Queue.MaxAttempts, cfg.Queue.MaxConcurrent)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	go scheduler.Run(ctx)

	go func() {
		listener, err := newListener(cfg.Service.MetricsAddress)
		if err != nil {
			zap.S().Fatalf("creating metrics listener: %s", err)
		}
		if err := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener).Run(ctx); err != nil {
			zap.S().Fatalf("error running metrics server: %s", err)
		}
	}()

	go func() {
		listener, err := newListener(cfg.Service.Address)
		if err != nil {
			zap.S().Fatalf("creating listener: %s", err)
		}
		if err := apiserver.New(cfg, fittingSrv, listener).Run(ctx); err != nil {
			zap.S().Fatalf("error running server: %s", err)
		}
		cancel()
	}()

	<-ctx.Done()
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}

func newGenerationHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: durationOr(cfg.Generation.RequestTimeout, 120*time.Second)}
}

func durationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
