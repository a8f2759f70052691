package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"presence-relay/auth"
	"presence-relay/contract"
	"presence-relay/domain"
	"presence-relay/infrastructure/grpc/server"
	"presence-relay/infrastructure/websocket"
	"presence-relay/internal"
	"presence-relay/moderation"
	"presence-relay/observability"
	"presence-relay/runtime"
	"presence-relay/runtime/workers"
	"presence-relay/services"

	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a signal or a server failure.
func run() error {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Relay state, owned by the engine
	monitoring := observability.NewMonitoringManager(log)
	hasher := auth.NewHasher(auth.Params{
		Memory:      config.ArgonMemoryKB,
		Iterations:  config.ArgonIterations,
		Parallelism: auth.DefaultParams.Parallelism,
	})
	sessions := runtime.NewSessionRegistry()
	rooms := runtime.NewRoomDirectory(sessions, hasher)
	outbound := make(chan domain.Outbound, config.OutboundBufferSize)
	engine := runtime.NewEngine(log, sessions, rooms, monitoring, outbound, config.CommandBufferSize)

	censor, err := newCensor(log, config)
	if err != nil {
		return err
	}
	relay := services.NewRelayService(log, engine, censor, config.MinMessageLength)

	// 4. Transport
	hub := websocket.NewHub(log, monitoring)
	dispatcher := workers.NewDispatcher(log, hub, monitoring, outbound)
	healthServer := server.NewHealthServer(log)

	// 5. Supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		engine,
		dispatcher,
		workers.NewHealthMonitoringWorker(log, monitoring, config.MetricInterval),
		workers.NewChannelCapacityWorker(log, []workers.NamedChannel{
			{Name: "commands", Channel: engine.Requests()},
			{Name: "outbound", Channel: outbound},
		}, monitoring, config.MetricInterval, config.QueueWarnPercent),
		healthServer,
	)
	supervised := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervised)
	}()

	// 6. Servers
	errChan := make(chan error, 2)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           websocket.NewServer(ctx, log, hub, relay, monitoring, config.ConnectionBufferSize).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Starting websocket server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	healthAddress := fmt.Sprintf("%s:%d", config.Host, config.HealthPort)
	listener, err := net.Listen("tcp", healthAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", healthAddress, err)
	}
	g := grpc.NewServer()
	healthServer.Register(g)
	go func() {
		log.Info("Starting gRPC health server", "address", healthAddress)
		if err := g.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		log.Error("Server failed", "error", err)
		stop()
		shutdown(log, httpServer, g, hub, sup)
		<-supervised
		return err
	}

	// 8. Final Cleanup
	shutdown(log, httpServer, g, hub, sup)
	<-supervised
	log.Info("Program stopped cleanly")
	return nil
}

func newCensor(log *slog.Logger, config internal.Config) (contract.Censor, error) {
	if !config.ModerationEnabled {
		return nil, nil
	}
	char, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	data, err := moderation.NewEmbeddedLoader().LoadAll("censored")
	if err != nil {
		return nil, fmt.Errorf("censored words loading failed: %w", err)
	}
	log.Info("Moderation enabled", "words", len(data.Words), "languages", data.Languages)
	return moderation.NewModerator(data.Words, char, log)
}

func shutdown(log *slog.Logger, httpServer *http.Server, g *grpc.Server, hub *websocket.Hub, sup contract.ISupervisor) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	hub.CloseAll()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	g.GracefulStop()
	sup.Stop()
}
