// Package delivery is spec §4.D: it drains per-device pending-state queues,
// rate limits and sends each command over the wire, and moves a failed
// command into dead letters once the device's failure count reaches the
// offline threshold. The worker
// lifecycle (ticker-driven spawn, per-id running set, graceful drain on
// stop) is grounded on the teacher's fade.Engine update loop.
package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/health"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/protocols"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/store"
)

// Backend is the subset of *store.Store Delivery depends on.
type Backend interface {
	PendingDeviceIDs() ([]string, error)
	NextState(deviceID string) (*store.PendingState, error)
	DeleteState(stateID uint64) error
	QuarantineState(row store.PendingState, reason string, details string) error
	DeviceInfo(id string) (*store.DeviceInfo, error)
	RecordSendSuccess(deviceID string, payloadHash string) error
	RecordSendFailure(deviceID string, payloadHash string, offlineThreshold int) error
}

// HandlerResolver looks up transport/port details for a device's protocol.
type HandlerResolver interface {
	HandlerFor(protocol string) (protocols.Handler, error)
}

// Config mirrors the relevant subset of internal/config.Config.
type Config struct {
	SendTimeout       time.Duration
	SendRetries       int
	OfflineThreshold  int
	QueuePollInterval time.Duration
	DryRun            bool
	RatePerSecond     float64
	RateBurst         int
}

// Delivery drains pending state for every device with queued commands.
type Delivery struct {
	backend  Backend
	handlers HandlerResolver
	cfg      Config
	backoff  health.BackoffPolicy
	limiter  *rate.Limiter
	logger   *slog.Logger

	dialTimeout func(network, address string, timeout time.Duration) (net.Conn, error)

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// New builds a Delivery. backoff governs the inter-attempt delay within a
// single command's retry budget (spec §4.D's device_backoff_* settings).
func New(backend Backend, handlers HandlerResolver, cfg Config, backoff health.BackoffPolicy, logger *slog.Logger) *Delivery {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Delivery{
		backend:     backend,
		handlers:    handlers,
		cfg:         cfg,
		backoff:     backoff,
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger.With("component", "delivery"),
		dialTimeout: net.DialTimeout,
		running:     map[string]struct{}{},
	}
}

// Run polls for devices with pending state and spawns a worker per device
// until ctx is cancelled, then waits for in-flight workers to drain.
func (d *Delivery) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.QueuePollInterval)
	defer ticker.Stop()

	d.spawnWorkers(ctx)
	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return
		case <-ticker.C:
			d.spawnWorkers(ctx)
		}
	}
}

func (d *Delivery) spawnWorkers(ctx context.Context) {
	ids, err := d.backend.PendingDeviceIDs()
	if err != nil {
		d.logger.Error("list pending device ids failed", "error", err)
		return
	}
	for _, id := range ids {
		d.mu.Lock()
		if _, active := d.running[id]; active {
			d.mu.Unlock()
			continue
		}
		d.running[id] = struct{}{}
		d.mu.Unlock()

		d.wg.Add(1)
		go func(deviceID string) {
			defer d.wg.Done()
			defer func() {
				d.mu.Lock()
				delete(d.running, deviceID)
				d.mu.Unlock()
			}()
			d.drainDevice(ctx, deviceID)
		}(id)
	}
}

// drainDevice delivers queued state for one device until the queue is
// empty, ctx is cancelled, or a command is left in place pending retry on
// a later poll cycle.
func (d *Delivery) drainDevice(ctx context.Context, deviceID string) {
	for {
		if ctx.Err() != nil {
			return
		}
		row, err := d.backend.NextState(deviceID)
		if err != nil {
			d.logger.Error("next state lookup failed", "device_id", deviceID, "error", err)
			return
		}
		if row == nil {
			return
		}
		if !d.deliverOne(ctx, *row) {
			return
		}
	}
}

// deliverOne handles a single queued command, returning true if the caller
// should keep draining this device's queue (the row was resolved one way
// or another) or false if it should back off until the next poll cycle.
func (d *Delivery) deliverOne(ctx context.Context, row store.PendingState) bool {
	hash := hashPayload(row.Payload)

	info, err := d.backend.DeviceInfo(row.DeviceID)
	if err != nil {
		d.logger.Error("device lookup failed", "device_id", row.DeviceID, "error", err)
		return false
	}
	if info == nil {
		if err := d.backend.QuarantineState(row, "device_unavailable", "device disabled, stale, or deleted"); err != nil {
			d.logger.Error("quarantine failed", "device_id", row.DeviceID, "error", err)
		}
		return true
	}
	if info.IP == "" {
		if err := d.backend.QuarantineState(row, "missing_ip", "device has no IP address on record"); err != nil {
			d.logger.Error("quarantine failed", "device_id", row.DeviceID, "error", err)
		}
		return true
	}

	if info.FailureCount == 0 && info.LastPayloadHash == hash {
		d.logger.Debug("skipping duplicate payload", "device_id", row.DeviceID)
		if err := d.backend.DeleteState(row.ID); err != nil {
			d.logger.Error("delete deduped state failed", "device_id", row.DeviceID, "error", err)
		}
		return true
	}

	handler, err := d.handlers.HandlerFor(info.Protocol)
	if err != nil {
		if err := d.backend.QuarantineState(row, "unknown_protocol", err.Error()); err != nil {
			d.logger.Error("quarantine failed", "device_id", row.DeviceID, "error", err)
		}
		return true
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return false
	}

	if d.cfg.DryRun {
		d.logger.Info("dry run: not sending", "device_id", row.DeviceID, "payload", string(row.Payload))
		if err := d.backend.RecordSendSuccess(row.DeviceID, hash); err != nil {
			d.logger.Error("record send success failed", "device_id", row.DeviceID, "error", err)
		}
		if err := d.backend.DeleteState(row.ID); err != nil {
			d.logger.Error("delete delivered state failed", "device_id", row.DeviceID, "error", err)
		}
		return true
	}

	address := net.JoinHostPort(info.IP, fmt.Sprintf("%d", handler.DefaultPort()))
	sendErr := d.sendWithRetries(ctx, handler.DefaultTransport(), address, row.Payload)
	if sendErr == nil {
		if err := d.backend.RecordSendSuccess(row.DeviceID, hash); err != nil {
			d.logger.Error("record send success failed", "device_id", row.DeviceID, "error", err)
		}
		if err := d.backend.DeleteState(row.ID); err != nil {
			d.logger.Error("delete delivered state failed", "device_id", row.DeviceID, "error", err)
		}
		return true
	}

	d.logger.Debug("send failed", "device_id", row.DeviceID, "error", sendErr)
	if err := d.backend.RecordSendFailure(row.DeviceID, hash, d.cfg.OfflineThreshold); err != nil {
		d.logger.Error("record send failure failed", "device_id", row.DeviceID, "error", err)
	}
	if info.FailureCount+1 >= d.cfg.OfflineThreshold {
		if err := d.backend.QuarantineState(row, "send_failed", sendErr.Error()); err != nil {
			d.logger.Error("quarantine failed", "device_id", row.DeviceID, "error", err)
		}
		return true
	}
	return false
}

func (d *Delivery) sendWithRetries(ctx context.Context, transport, address string, payload []byte) error {
	attempts := d.cfg.SendRetries
	if attempts < 1 {
		attempts = 1
	}
	delays := d.backoff.IterDelays(attempts)

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(delays[i-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := d.sendOnce(transport, address, payload); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (d *Delivery) sendOnce(transport, address string, payload []byte) error {
	conn, err := d.dialTimeout(transport, address, d.cfg.SendTimeout)
	if err != nil {
		return fmt.Errorf("delivery: dial %s %s: %w", transport, address, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(d.cfg.SendTimeout)); err != nil {
		return fmt.Errorf("delivery: set deadline: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("delivery: write: %w", err)
	}
	return nil
}

func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
