package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/postcaster/golang_services/internal/channel_worker/app"
	"github.com/postcaster/golang_services/internal/channel_worker/channel"
	"github.com/postcaster/golang_services/internal/platform/config"
	"github.com/postcaster/golang_services/internal/platform/health"
	"github.com/postcaster/golang_services/internal/platform/logger"
	"github.com/postcaster/golang_services/internal/platform/messagebroker"
)

const (
	serviceName     = "channel-worker-service"
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(serviceName, cfg.LogLevel).With("channel", cfg.ChannelName)
	log.Info("Configuration loaded", "batch_size", cfg.ChannelBatchSize, "concurrency", cfg.ChannelConcurrency)

	ch, err := channel.New(cfg, log)
	if err != nil {
		log.Error("Failed to build channel", "error", err)
		os.Exit(1)
	}

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, serviceName+"-"+cfg.ChannelName, log)
	if err != nil {
		log.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	startCtx, startCancel := context.WithTimeout(mainCtx, startupTimeout)
	defer startCancel()
	if err := natsClient.EnsureStream(startCtx, cfg.NATSStream, cfg.StreamSubjects(), cfg.NATSDuplicateWindow); err != nil {
		log.Error("Failed to ensure fan-out stream", "error", err)
		os.Exit(1)
	}
	cons, err := natsClient.Consumer(startCtx, messagebroker.ConsumerConfig{
		Stream:        cfg.NATSStream,
		Durable:       "channel-" + cfg.ChannelName,
		FilterSubject: cfg.NATSSubject,
		AckWait:       cfg.ChannelAckWait,
		MaxDeliver:    cfg.ChannelMaxDeliver,
	})
	if err != nil {
		log.Error("Failed to create bus consumer", "error", err)
		os.Exit(1)
	}

	worker := app.NewWorker(ch, cfg.ChannelFooter, cfg.ChannelConcurrency, log)
	consumer := app.NewConsumer(worker, cons, app.ConsumerOptions{
		BatchSize: cfg.ChannelBatchSize,
		FetchWait: cfg.ChannelFetchWait,
		Retry: app.RetryPolicy{
			MaxDeliver: cfg.ChannelMaxDeliver,
			BaseDelay:  cfg.ChannelRetryDelay,
			MaxDelay:   cfg.ChannelRetryMax,
		},
		DeadLetter:        natsClient,
		DeadLetterSubject: cfg.DeadLetterSubject(cfg.ChannelName),
	}, log)

	healthServer := health.NewServer(log, 15*time.Second)
	healthServer.AddProbe("nats", func(context.Context) error {
		if !natsClient.Healthy() {
			return errors.New("nats disconnected")
		}
		return nil
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		return consumer.Run(groupCtx)
	})

	g.Go(func() error {
		log.Info("Starting metrics server", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return healthServer.Serve(groupCtx, cfg.GRPCHealthPort)
	})

	log.Info("Service is ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var groupErr error
	select {
	case sig := <-sigCh:
		log.Info("Received termination signal", "signal", sig)
	case groupErr = <-watchGroup(g):
		if groupErr != nil {
			log.Error("A critical component failed, initiating shutdown", "error", groupErr)
		}
	}

	mainCancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Error during shutdown", "error", err)
	}
	log.Info("Service shutdown complete")
	if groupErr != nil {
		os.Exit(1)
	}
}

// watchGroup returns a channel that receives the result of g.Wait().
func watchGroup(g *errgroup.Group) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Wait()
		close(errCh)
	}()
	return errCh
}
