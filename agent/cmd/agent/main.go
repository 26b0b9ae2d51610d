package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/thermowatch/thermowatch/agent/internal/config"
	"github.com/thermowatch/thermowatch/agent/internal/scraper"
	"github.com/thermowatch/thermowatch/agent/internal/security"
	"github.com/thermowatch/thermowatch/agent/internal/shipper"
)

// device pairs a configured source with its scraper.
type device struct {
	src config.Source
	s   scraper.Scraper
}

const certCheckInterval = 24 * time.Hour

// devices is the live source set, swapped wholesale on config reload.
type devices struct {
	mu   sync.RWMutex
	list []device
}

func (d *devices) sources() []config.Source {
	list := d.snapshot()
	out := make([]config.Source, len(list))
	for i, dev := range list {
		out[i] = dev.src
	}
	return out
}

func (d *devices) load(sources []config.Source) {
	var next []device
	for _, src := range sources {
		s, err := scraper.New(src)
		if err != nil {
			slog.Error("skipping source, could not build scraper", "source", src.ID, "err", err)
			continue
		}
		next = append(next, device{src: src, s: s})
		slog.Info("registered source", "id", src.ID, "type", src.Type, "device", src.DeviceID)
	}
	if len(next) == 0 {
		slog.Warn("no sources configured, agent will idle")
	}
	d.mu.Lock()
	d.list = next
	d.mu.Unlock()
}

func (d *devices) snapshot() []device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.list
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Device credentials referenced by *_env fields may live in a local .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env", "err", err)
	}

	slog.Info("thermowatch-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"sources", len(cfg.Agent.Sources),
		"scrape_interval", cfg.Agent.ScrapeInterval,
		"server_tls", cfg.Agent.ServerTLS.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var live devices
	live.load(cfg.Agent.Sources)

	// Source changes apply on the next tick. Endpoint, interval and TLS
	// changes need a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			live.load(updated.Agent.Sources)
			go security.CheckAll(ctx, live.sources())
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Device certificates are inspected at startup and once a day.
	go func() {
		security.CheckAll(ctx, live.sources())
		t := time.NewTicker(certCheckInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				security.CheckAll(ctx, live.sources())
			}
		}
	}()

	ship := shipper.New(cfg.Agent)
	go ship.Run(ctx)

	ticker := time.NewTicker(cfg.Agent.ScrapeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("thermowatch-agent shutting down", "unsent", ship.Pending())
			return
		case <-ticker.C:
			for _, d := range live.snapshot() {
				r, err := d.s.Scrape(ctx)
				if err != nil {
					slog.Warn("scrape error", "source", d.src.ID, "err", err)
					continue
				}
				ship.Ship(d.src.ID, r)
				slog.Debug("queued reading", "source", d.src.ID, "device", r.DeviceID)
			}
		}
	}
}
