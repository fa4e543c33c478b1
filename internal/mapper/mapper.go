// Package mapper implements spec §4.B: it consumes ingest.Frame values,
// mixes multiple sources per universe, translates each mapped channel range
// into a Govee-shaped payload fragment, aggregates fragments per device,
// debounces, and hands the result to the Store for delivery.
package mapper

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lucsky/cuid"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/bus"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/ingest"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/store"
)

// Backend is the subset of *store.Store the Mapper depends on, kept as an
// interface so tests can supply a fake.
type Backend interface {
	AllMappingsForCache() ([]store.MappingSnapshot, error)
	EnqueueState(update store.DeviceStateUpdate) (int, error)
}

type winnerState struct {
	protocol string
	priority uint8
}

// Mapper is the frame-to-device translation stage. The zero value is not
// usable; construct with New.
type Mapper struct {
	backend         Backend
	bus             *bus.Bus
	logger          *slog.Logger
	debounceDelay   time.Duration
	traceEnabled    bool
	traceSampleRate float64

	cache atomic.Pointer[universeCache]

	winnersMu sync.Mutex
	winners   map[uint16]winnerState

	lastSentMu sync.Mutex
	lastSent   map[string][32]byte

	debounceMu sync.Mutex
	timers     map[string]*time.Timer
	pending    map[string]store.DeviceStateUpdate

	ingestMu     sync.Mutex
	ingestCounts map[uint16]uint64
	unmapped     uint64

	sampleCounter atomic.Uint64

	subs []*bus.Subscriber
}

// New builds a Mapper, performs an initial cache load from backend, and
// (if eventBus is non-nil) subscribes to mapping lifecycle events so the
// cache rebuilds whenever mappings change.
func New(backend Backend, eventBus *bus.Bus, logger *slog.Logger, debounceDelay time.Duration, traceEnabled bool, traceSampleRate float64) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mapper{
		backend:         backend,
		bus:             eventBus,
		logger:          logger.With("component", "mapper"),
		debounceDelay:   debounceDelay,
		traceEnabled:    traceEnabled,
		traceSampleRate: traceSampleRate,
		winners:         map[uint16]winnerState{},
		lastSent:        map[string][32]byte{},
		timers:          map[string]*time.Timer{},
		pending:         map[string]store.DeviceStateUpdate{},
		ingestCounts:    map[uint16]uint64{},
	}
	if err := m.Rebuild(); err != nil {
		m.logger.Error("initial cache load failed", "error", err)
	}
	if eventBus != nil {
		for _, topic := range []bus.Topic{bus.TopicMappingCreated, bus.TopicMappingUpdated, bus.TopicMappingDeleted} {
			sub := eventBus.Subscribe(topic, 8)
			m.subs = append(m.subs, sub)
			go m.watch(sub)
		}
	}
	return m
}

func (m *Mapper) watch(sub *bus.Subscriber) {
	for range sub.Channel {
		if err := m.Rebuild(); err != nil {
			m.logger.Error("cache rebuild failed", "error", err)
		}
	}
}

// Rebuild reloads the mapping cache from the backend and swaps it in
// atomically (copy-on-write, spec §4.B).
func (m *Mapper) Rebuild() error {
	snapshots, err := m.backend.AllMappingsForCache()
	if err != nil {
		return fmt.Errorf("mapper: rebuild cache: %w", err)
	}
	built := buildCache(snapshots)
	m.cache.Store(&built)
	return nil
}

// Submit runs one frame through the full pipeline: universe lookup,
// priority/last-arrived mixing, per-mapping translation, per-device
// aggregation, change detection, and debounced enqueue.
func (m *Mapper) Submit(frame ingest.Frame) {
	m.countIngest(frame.Universe)

	cachePtr := m.cache.Load()
	var entries []cacheEntry
	if cachePtr != nil {
		entries = (*cachePtr)[frame.Universe]
	}
	if len(entries) == 0 {
		m.countUnmapped()
		return
	}

	if !m.acceptFrame(frame) {
		return
	}

	var contextID string
	if m.traceEnabled && m.shouldSample() {
		contextID = fmt.Sprintf("%s-%d-%d-%s", frame.SourceProtocol, frame.Universe, frame.Sequence, cuid.New())
	}

	aggregated := map[string]map[string]any{}
	order := make([]string, 0, len(entries))

	for _, entry := range entries {
		start := entry.Channel - 1
		end := start + entry.Length
		if start < 0 || end > len(frame.Data) {
			continue
		}
		fragment, err := translate(entry, frame.Data[start:end])
		if err != nil {
			m.logger.Debug("mapping translation failed", "mapping_id", entry.MappingID, "device_id", entry.DeviceID, "error", err)
			continue
		}
		if fragment == nil {
			continue
		}
		existing, ok := aggregated[entry.DeviceID]
		if !ok {
			aggregated[entry.DeviceID] = fragment
			order = append(order, entry.DeviceID)
			continue
		}
		mergeFragment(existing, fragment)
	}

	for _, deviceID := range order {
		m.handleDeviceUpdate(deviceID, aggregated[deviceID], contextID)
	}
}

// acceptFrame applies spec §4.B's "highest priority wins, else last arrived
// wins" per-universe mixing rule. Priority 0 (including stream_terminated
// sACN packets) is dropped outright without affecting mixing state.
func (m *Mapper) acceptFrame(frame ingest.Frame) bool {
	if frame.Priority == 0 {
		return false
	}
	m.winnersMu.Lock()
	defer m.winnersMu.Unlock()

	current, ok := m.winners[frame.Universe]
	if ok && frame.Priority < current.priority {
		return false
	}
	m.winners[frame.Universe] = winnerState{protocol: frame.SourceProtocol, priority: frame.Priority}
	return true
}

func (m *Mapper) handleDeviceUpdate(deviceID string, payload map[string]any, contextID string) {
	hash, err := hashPayload(payload)
	if err != nil {
		m.logger.Debug("hash payload failed", "device_id", deviceID, "error", err)
		return
	}

	m.lastSentMu.Lock()
	if last, ok := m.lastSent[deviceID]; ok && last == hash {
		m.lastSentMu.Unlock()
		return
	}
	m.lastSent[deviceID] = hash
	m.lastSentMu.Unlock()

	m.scheduleDebounced(deviceID, payload, contextID)
}

func (m *Mapper) scheduleDebounced(deviceID string, payload map[string]any, contextID string) {
	m.debounceMu.Lock()
	defer m.debounceMu.Unlock()

	m.pending[deviceID] = store.DeviceStateUpdate{DeviceID: deviceID, Payload: payload, ContextID: contextID}

	if timer, ok := m.timers[deviceID]; ok {
		timer.Stop()
	}
	m.timers[deviceID] = time.AfterFunc(m.debounceDelay, func() { m.fireDebounce(deviceID) })
}

func (m *Mapper) fireDebounce(deviceID string) {
	m.debounceMu.Lock()
	update, ok := m.pending[deviceID]
	delete(m.pending, deviceID)
	delete(m.timers, deviceID)
	m.debounceMu.Unlock()
	if !ok {
		return
	}
	if _, err := m.backend.EnqueueState(update); err != nil {
		m.logger.Error("enqueue state failed", "device_id", deviceID, "error", err)
	}
}

// Stop cancels every pending debounce timer, flushing each one's pending
// update to the backend immediately, and unsubscribes from the bus.
func (m *Mapper) Stop() {
	m.debounceMu.Lock()
	for deviceID, timer := range m.timers {
		timer.Stop()
		if update, ok := m.pending[deviceID]; ok {
			if _, err := m.backend.EnqueueState(update); err != nil {
				m.logger.Error("flush pending update failed", "device_id", deviceID, "error", err)
			}
		}
	}
	m.timers = map[string]*time.Timer{}
	m.pending = map[string]store.DeviceStateUpdate{}
	m.debounceMu.Unlock()

	if m.bus != nil {
		for _, sub := range m.subs {
			m.bus.Unsubscribe(sub)
		}
	}
}

// SnapshotLastSent returns a copy of the per-device change-detection hash
// map, for the supervisor to carry across a hot reload (spec §4.S).
func (m *Mapper) SnapshotLastSent() map[string][32]byte {
	m.lastSentMu.Lock()
	defer m.lastSentMu.Unlock()
	out := make(map[string][32]byte, len(m.lastSent))
	for k, v := range m.lastSent {
		out[k] = v
	}
	return out
}

// RestoreLastSent replaces the change-detection hash map, e.g. after a
// supervisor reload rebuilds the Mapper.
func (m *Mapper) RestoreLastSent(snapshot map[string][32]byte) {
	m.lastSentMu.Lock()
	defer m.lastSentMu.Unlock()
	m.lastSent = make(map[string][32]byte, len(snapshot))
	for k, v := range snapshot {
		m.lastSent[k] = v
	}
}

// IngestCount returns the number of frames submitted for universe, mapped
// or not, for telemetry.
func (m *Mapper) IngestCount(universe uint16) uint64 {
	m.ingestMu.Lock()
	defer m.ingestMu.Unlock()
	return m.ingestCounts[universe]
}

// UnmappedCount returns the number of frames dropped for lacking any
// mapping in their universe.
func (m *Mapper) UnmappedCount() uint64 {
	m.ingestMu.Lock()
	defer m.ingestMu.Unlock()
	return m.unmapped
}

func (m *Mapper) countIngest(universe uint16) {
	m.ingestMu.Lock()
	m.ingestCounts[universe]++
	m.ingestMu.Unlock()
}

func (m *Mapper) countUnmapped() {
	m.ingestMu.Lock()
	m.unmapped++
	m.ingestMu.Unlock()
}

// shouldSample decides, deterministically across calls, whether this frame
// gets a context id, approximating traceSampleRate without a random source.
func (m *Mapper) shouldSample() bool {
	if m.traceSampleRate >= 1.0 {
		return true
	}
	if m.traceSampleRate <= 0 {
		return false
	}
	threshold := uint64(1.0 / m.traceSampleRate)
	if threshold == 0 {
		threshold = 1
	}
	return m.sampleCounter.Add(1)%threshold == 0
}

func hashPayload(payload map[string]any) ([32]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}

// Run drains frames from the channel until ctx is cancelled or the channel
// is closed, submitting each one. Ingest listeners are typically wired to
// this via their own Frames() channel fanned in by the supervisor.
func Run(ctx context.Context, m *Mapper, frames <-chan ingest.Frame) {
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			m.Submit(frame)
		case <-ctx.Done():
			return
		}
	}
}
