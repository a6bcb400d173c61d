package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/postcaster/golang_services/internal/content/repository/postgres"
	"github.com/postcaster/golang_services/internal/dispatch_service/app"
	httptransport "github.com/postcaster/golang_services/internal/dispatch_service/transport/http"
	"github.com/postcaster/golang_services/internal/platform/config"
	"github.com/postcaster/golang_services/internal/platform/database"
	"github.com/postcaster/golang_services/internal/platform/health"
	"github.com/postcaster/golang_services/internal/platform/logger"
	"github.com/postcaster/golang_services/internal/platform/messagebroker"
)

const (
	serviceName     = "dispatch-service"
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	once := flag.Bool("once", false, "run a single selection and dispatch, then exit")
	flag.Parse()

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(serviceName, cfg.LogLevel)
	log.Info("Configuration loaded", "schedule", cfg.DispatchSchedule, "tz", cfg.Location().String(), "subject", cfg.NATSSubject)

	startCtx, startCancel := context.WithTimeout(mainCtx, startupTimeout)
	defer startCancel()

	dbPool, err := database.NewDBPool(startCtx, cfg.PostgresDSN, log)
	if err != nil {
		log.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	store := postgres.NewPgContentStore(dbPool, postgres.Tables{Content: cfg.ContentTable, Scheduled: cfg.ScheduledTable}, log)
	if err := store.EnsureSchema(startCtx); err != nil {
		log.Error("Failed to ensure content schema", "error", err)
		os.Exit(1)
	}

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, serviceName, log)
	if err != nil {
		log.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	if err := natsClient.EnsureStream(startCtx, cfg.NATSStream, cfg.StreamSubjects(), cfg.NATSDuplicateWindow); err != nil {
		log.Error("Failed to ensure fan-out stream", "error", err)
		os.Exit(1)
	}

	runner := app.NewRunner(
		app.NewSelector(store, log),
		app.NewDispatcher(store, natsClient, cfg.NATSSubject, log),
		cfg.Location(), cfg.DispatchTimeout, log,
	)

	if *once {
		runCtx, cancel := context.WithTimeout(mainCtx, cfg.DispatchTimeout)
		out := runner.RunOnce(runCtx)
		cancel()
		fmt.Println(out.String())
		if out.Kind == app.OutcomeFailed {
			os.Exit(1)
		}
		return
	}

	ready := func(ctx context.Context) error {
		if !natsClient.Healthy() {
			return errors.New("nats disconnected")
		}
		return store.Ping(ctx)
	}

	healthServer := health.NewServer(log, 15*time.Second)
	healthServer.AddProbe("postgres", store.Ping)
	healthServer.AddProbe("nats", func(context.Context) error {
		if !natsClient.Healthy() {
			return errors.New("nats disconnected")
		}
		return nil
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httptransport.NewRouter(store, cfg.AdminJWTSecret, cfg.Location(), ready, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		return runner.Run(groupCtx, cfg.DispatchSchedule)
	})

	g.Go(func() error {
		log.Info("Starting admin HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("Shutting down admin HTTP server")
		return httpServer.Shutdown(shutdownCtx)
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
