// Package main is the entry point for the ArtNet/sACN-to-Govee bridge.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/adminapi"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/catalog"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/config"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/store"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/supervisor"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var configPath string
	var dryRun bool
	var migrateOnly bool

	cmd := &cli.Command{
		Name:  "bridge",
		Usage: "ArtNet/sACN to Govee LAN bridge",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to a bridge.toml config file",
				Destination: &configPath,
			},
			&cli.BoolFlag{
				Name:        "dry-run",
				Usage:       "resolve and log outgoing device updates without sending them",
				Destination: &dryRun,
			},
			&cli.BoolFlag{
				Name:        "migrate-only",
				Usage:       "run database migrations then exit",
				Destination: &migrateOnly,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, configPath, dryRun, migrateOnly)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("bridge: %v", err)
	}
}

func run(ctx context.Context, configPath string, dryRun, migrateOnly bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dryRun {
		cfg.DryRun = true
	}
	if migrateOnly {
		cfg.MigrateOnly = true
	}

	logger := newLogger(cfg)
	printBanner(logger, cfg)

	if cfg.MigrateOnly {
		st, err := store.Open(cfg.DBPath, nil, logger)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		logger.Info("migrate-only: schema up to date, exiting")
		return st.Close()
	}

	sup, err := supervisor.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("build supervisor: %w", err)
	}

	cat, err := catalog.Load(cfg.CapabilityCatalogPath)
	if err != nil {
		return fmt.Errorf("load capability catalog: %w", err)
	}

	if err := loadManualDevices(sup.Store(), cfg.ManualDevices, cat); err != nil {
		return fmt.Errorf("load manual devices: %w", err)
	}

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.APIPort),
		Handler:      adminapi.NewRouter(sup.Monitor()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	supDone := make(chan struct{})
	go func() {
		sup.Run(runCtx)
		close(supDone)
	}()

	go func() {
		logger.Info("admin api listening", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin api server error", "error", err)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-signals
		if sig == syscall.SIGHUP {
			if err := reload(logger, sup, &cfg, configPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
			continue
		}
		logger.Info("shutting down", "signal", sig.String())
		break
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin api shutdown error", "error", err)
	}

	cancelRun()
	<-supDone
	logger.Info("bridge stopped")
	return nil
}

// reload re-reads configPath and either hot-reloads the supervisor's
// mapping cache or, when db_path/capability_catalog_path changed, logs
// that an operator-driven process restart is required; this bridge does
// not re-exec itself (spec §4.S leaves that to the process supervisor).
func reload(logger *slog.Logger, sup *supervisor.Supervisor, cfg *config.Config, configPath string) error {
	next, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	if cfg.RestartRequired(next) {
		logger.Warn("config change requires a full restart, not reloading", "db_path", next.DBPath, "capability_catalog_path", next.CapabilityCatalogPath)
		return nil
	}
	*cfg = next
	if err := sup.Reload(); err != nil {
		return err
	}
	logger.Info("reloaded mapping cache")
	return nil
}

func loadManualDevices(st *store.Store, devices []config.ManualDevice, cat catalog.Catalog) error {
	for _, d := range devices {
		if err := st.UpsertManual(store.ManualDeclaration{
			ID:           d.ID,
			IP:           d.IP,
			Protocol:     d.Protocol,
			Model:        d.Model,
			Description:  d.Description,
			Capabilities: cat.ApplyDefaults(d.Model, d.Capabilities),
		}); err != nil {
			return fmt.Errorf("manual device %s: %w", d.ID, err)
		}
	}
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func printBanner(logger *slog.Logger, cfg config.Config) {
	logger.Info("govee-artnet-lan-bridge starting",
		"version", Version,
		"build_time", BuildTime,
		"git_commit", GitCommit,
		"artnet_port", cfg.ArtNetPort,
		"artnet_enabled", cfg.ArtNetEnabled,
		"sacn_port", cfg.SACNPort,
		"sacn_enabled", cfg.SACNEnabled,
		"api_port", cfg.APIPort,
		"dry_run", cfg.DryRun,
	)
}
