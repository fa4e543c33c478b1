// Package supervisor wires every subsystem together in the start order
// spec §4.S requires (bus -> store -> ingest -> mapper -> delivery),
// watches listener goroutines for socket errors and restarts them with
// backoff, and handles SIGHUP reload / SIGINT-SIGTERM graceful shutdown.
// The signal-driven lifecycle is grounded on the teacher's cmd/server/main.go.
package supervisor

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/bus"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/config"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/delivery"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/health"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/ingest"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/ingest/artnetlisten"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/ingest/sacnlisten"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/mapper"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/protocols"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/store"
)

const (
	subsystemArtNet    = "ingest.artnet"
	subsystemSACN      = "ingest.sacn"
	subsystemDelivery  = "delivery"
	subsystemDiscovery = "discovery"
)

// Subsystems returns the full set of names the health.Monitor must track,
// for wiring Config.SubsystemFailureThreshold/Cooldown at startup.
func Subsystems() []string {
	return []string{subsystemArtNet, subsystemSACN, subsystemDelivery, subsystemDiscovery}
}

// Supervisor owns the bridge's runtime subsystems and their lifecycle.
type Supervisor struct {
	cfg       config.Config
	logger    *slog.Logger
	bus       *bus.Bus
	store     *store.Store
	registry  *protocols.Registry
	mapper    *mapper.Mapper
	delivery  *delivery.Delivery
	monitor   *health.Monitor
	artnet    *artnetlisten.Listener
	sacn      *sacnlisten.Listener
	frames    chan ingest.Frame

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs every subsystem but does not start goroutines; call Run.
func New(cfg config.Config, logger *slog.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	eventBus := bus.New(logger)
	st, err := store.Open(cfg.DBPath, eventBus, logger)
	if err != nil {
		return nil, err
	}

	registry := protocols.NewRegistry()
	st.SetProtocolRegistry(registry)

	m := mapper.New(st, eventBus, logger, cfg.MapperDebounceDelay, cfg.TraceContextIDs, cfg.TraceContextSampleRate)

	backoff := health.BackoffPolicy{Base: cfg.DeviceBackoffBase, Factor: cfg.DeviceBackoffFactor, Maximum: cfg.DeviceBackoffMax}
	deliveryCfg := delivery.Config{
		SendTimeout:       cfg.DeviceSendTimeout,
		SendRetries:       cfg.DeviceSendRetries,
		OfflineThreshold:  cfg.DeviceOfflineThreshold,
		QueuePollInterval: cfg.DeviceQueuePollInterval,
		DryRun:            cfg.DryRun,
		RatePerSecond:     cfg.RateLimitPerSecond,
		RateBurst:         cfg.RateLimitBurst,
	}
	d := delivery.New(st, registry, deliveryCfg, backoff, logger)

	monitor := health.NewMonitor(Subsystems(), cfg.SubsystemFailureThreshold, cfg.SubsystemFailureCooldown)

	frames := make(chan ingest.Frame, 256)

	s := &Supervisor{
		cfg:      cfg,
		logger:   logger.With("component", "supervisor"),
		bus:      eventBus,
		store:    st,
		registry: registry,
		mapper:   m,
		delivery: d,
		monitor:  monitor,
		frames:   frames,
	}

	if cfg.ArtNetEnabled {
		s.artnet = artnetlisten.New(":"+strconv.Itoa(cfg.ArtNetPort), uint8(cfg.ArtNetPriority), logger)
	}
	if cfg.SACNEnabled {
		l, err := sacnlisten.New(":"+strconv.Itoa(cfg.SACNPort), cfg.SACNMulticast, "", logger)
		if err != nil {
			return nil, err
		}
		s.sacn = l
	}

	return s, nil
}

// Monitor exposes the health monitor for the admin API's readyz handler.
func (s *Supervisor) Monitor() *health.Monitor { return s.monitor }

// Store exposes the underlying store, e.g. for discovery/manual-device
// wiring done by cmd/bridge.
func (s *Supervisor) Store() *store.Store { return s.store }

// Run starts every subsystem and blocks until ctx is cancelled, then waits
// for the listeners, the mapper loop and delivery to return, flushes the
// mapper's pending debounced updates into the store, and closes the store.
func (s *Supervisor) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.artnet != nil {
		s.wg.Add(1)
		go s.runListener(runCtx, subsystemArtNet, s.runArtNet)
	}
	if s.sacn != nil {
		s.wg.Add(1)
		go s.runListener(runCtx, subsystemSACN, s.runSACN)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		mapper.Run(runCtx, s.mapper, s.frames)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.delivery.Run(runCtx)
	}()

	<-runCtx.Done()
	s.shutdown()
}

// Reload rebuilds the mapping cache and snapshots/restores the mapper's
// change-detection state; it does not restart listeners or re-open the
// store. Callers must check cfg.RestartRequired separately and perform a
// full process restart when it returns true (spec §4.S).
func (s *Supervisor) Reload() error {
	snapshot := s.mapper.SnapshotLastSent()
	if err := s.mapper.Rebuild(); err != nil {
		return err
	}
	s.mapper.RestoreLastSent(snapshot)
	return nil
}

// Stop cancels the run context, triggering graceful shutdown.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Supervisor) shutdown() {
	s.wg.Wait()
	s.mapper.Stop()
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "error", err)
	}
}

// runListener restarts fn with the health monitor's backoff/suppression
// whenever it returns an error, per spec §4.A.
func (s *Supervisor) runListener(ctx context.Context, subsystem string, fn func(context.Context) error) {
	defer s.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		allowed, wait := s.monitor.AllowAttempt(subsystem)
		if !allowed {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			continue
		}

		err := fn(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Error("listener exited with error", "subsystem", subsystem, "error", err)
			s.monitor.RecordFailure(subsystem, err)
			continue
		}
		s.monitor.RecordSuccess(subsystem)
	}
}

func (s *Supervisor) runArtNet(ctx context.Context) error {
	go s.fanIn(ctx, s.artnet.Frames())
	return s.artnet.Run(ctx)
}

func (s *Supervisor) runSACN(ctx context.Context) error {
	go s.fanIn(ctx, s.sacn.Frames())
	return s.sacn.Run(ctx)
}

func (s *Supervisor) fanIn(ctx context.Context, in <-chan ingest.Frame) {
	for {
		select {
		case frame, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.frames <- frame:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
