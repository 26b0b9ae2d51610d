package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"github.com/thermowatch/thermowatch/pkg/sim"
	"github.com/thermowatch/thermowatch/pkg/wire"
	"github.com/thermowatch/thermowatch/server/internal/alerts"
	"github.com/thermowatch/thermowatch/server/internal/analysis"
	"github.com/thermowatch/thermowatch/server/internal/api"
	"github.com/thermowatch/thermowatch/server/internal/compute"
	"github.com/thermowatch/thermowatch/server/internal/conclusion"
	"github.com/thermowatch/thermowatch/server/internal/config"
	"github.com/thermowatch/thermowatch/server/internal/dashboard"
	"github.com/thermowatch/thermowatch/server/internal/events"
	"github.com/thermowatch/thermowatch/server/internal/forwarder"
	"github.com/thermowatch/thermowatch/server/internal/receiver"
	"github.com/thermowatch/thermowatch/server/internal/store"
	"github.com/thermowatch/thermowatch/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve the dashboard UI static files from this directory (e.g. ui/dist); leave empty to disable")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Secrets referenced by *_env config fields may come from a local .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env", "err", err)
	}

	slog.Info("thermowatch-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("config file not found, using defaults", "config", *configPath)
		cfg = config.Default()
	case err != nil:
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	sc := cfg.Server

	slog.Info("config loaded",
		"grpc_port", sc.GRPCPort,
		"http_port", sc.HTTPPort,
		"storage", sc.Storage.Backend,
		"device_ttl", sc.Devices.TTL,
		"events", len(sc.Events.Brokers) > 0,
		"conclusion", sc.Conclusion.Provider,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kv, err := store.Open(ctx, store.Options{
		Backend:       sc.Storage.Backend,
		SQLitePath:    sc.Storage.Path,
		RedisAddr:     sc.Storage.Redis.Addr,
		RedisPassword: sc.Storage.Redis.Password(),
		RedisDB:       sc.Storage.Redis.DB,
		RedisPrefix:   sc.Storage.Redis.Prefix,
	})
	if err != nil {
		// The dashboard still works without durability; it just forgets on restart.
		slog.Error("storage unavailable, falling back to memory", "backend", sc.Storage.Backend, "err", err)
		kv = store.NewMemory()
	}
	defer kv.Close()

	var publisher events.Publisher = events.Noop{}
	if len(sc.Events.Brokers) > 0 {
		publisher = events.NewKafka(sc.Events.Brokers, sc.Events.Topic)
	}
	defer publisher.Close()

	scenario, _ := sim.ParseScenario(sc.Analysis.Scenario) // validated by config.Load

	ctrl := dashboard.New(ctx, dashboard.Deps{
		Engine:        compute.NewEngine(sc.Thresholds),
		KV:            kv,
		History:       store.NewHistory(kv),
		Devices:       store.NewDevices(sc.Devices.TTL),
		Provider:      analysis.NewSimulated(sc.Analysis.Delay, scenario, nil),
		Forwarder:     forwarder.New(sc.Forwarder.APIURL, sc.Forwarder.Timeout),
		Publisher:     publisher,
		Alerts:        alerts.New(sc.Alerts, 0),
		Conclusions:   conclusion.FromConfig(sc.Conclusion),
		MaxImageBytes: sc.Analysis.MaxImageBytes,
	})
	defer ctrl.Close()
	go ctrl.Run(ctx)

	// Thresholds and alert rules follow the config file without a restart.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			if err := ctrl.SetThresholds(next.Server.Thresholds); err != nil {
				slog.Warn("config reload: thresholds rejected", "err", err)
			}
			ctrl.ApplyAlertConfig(next.Server.Alerts)
			slog.Info("config reloaded", "rules", len(next.Server.Alerts.Rules))
		})
		if err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}()

	// gRPC receiver for sensor agents.
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(receiver.LoggingInterceptor))
	wire.RegisterReadingServiceServer(grpcSrv, receiver.New(ctrl))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port", "port", sc.GRPCPort, "err", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("gRPC receiver listening", "port", sc.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	// WebSocket hub: periodic push plus an immediate push on every change.
	hub := ws.New(ctrl, sc.BroadcastInterval, sc.AllowedOrigins...)
	ctrl.OnChange(hub.Broadcast)
	go hub.Run(ctx)

	apiHandler := api.WrapWithLogging(logger, api.New(ctrl, sc.Analysis.MaxImageBytes))

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", apiHandler)
	httpMux.Handle("/metrics", apiHandler)
	httpMux.Handle("/ws/stream", hub)

	// Optional: serve the pre-built UI; unknown paths get index.html (SPA routing).
	if *uiDir != "" {
		files := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := *uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *uiDir+"/index.html")
				return
			}
			files.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	origins := sc.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	root := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(httpMux)
	root = handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(root)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("thermowatch-server shutting down")
	grpcSrv.GracefulStop()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
