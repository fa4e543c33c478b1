package mapper

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/capabilities"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/ingest"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/store"
)

type fakeBackend struct {
	mu          sync.Mutex
	snapshots   []store.MappingSnapshot
	enqueued    []store.DeviceStateUpdate
	enqueueErrs map[string]error
}

func (f *fakeBackend) AllMappingsForCache() ([]store.MappingSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.MappingSnapshot(nil), f.snapshots...), nil
}

func (f *fakeBackend) EnqueueState(update store.DeviceStateUpdate) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enqueueErrs[update.DeviceID]; err != nil {
		return 0, err
	}
	f.enqueued = append(f.enqueued, update)
	return 1, nil
}

func (f *fakeBackend) updates(deviceID string) []store.DeviceStateUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.DeviceStateUpdate
	for _, u := range f.enqueued {
		if u.DeviceID == deviceID {
			out = append(out, u)
		}
	}
	return out
}

func defaultCaps() capabilities.NormalizedCapabilities {
	return capabilities.NormalizedCapabilities{
		ColorModes:         []string{"color"},
		SupportsBrightness: true,
		Gamma:              1.0,
		Dimmer:             1.0,
	}
}

func rgbSnapshot(deviceID string, universe uint16, channel int) store.MappingSnapshot {
	return store.MappingSnapshot{
		MappingID:    1,
		DeviceID:     deviceID,
		Universe:     universe,
		Channel:      channel,
		Length:       3,
		MappingType:  "range",
		Fields:       []string{"r", "g", "b"},
		Capabilities: defaultCaps(),
	}
}

func frame(universe uint16, protocol string, priority uint8, data []byte) ingest.Frame {
	var f ingest.Frame
	f.Universe = universe
	f.SourceProtocol = protocol
	f.Priority = priority
	f.Timestamp = time.Unix(0, 0)
	copy(f.Data[:], data)
	return f
}

func TestSubmitTranslatesAndEnqueuesRange(t *testing.T) {
	backend := &fakeBackend{snapshots: []store.MappingSnapshot{rgbSnapshot("dev-1", 1, 1)}}
	m := New(backend, nil, nil, 10*time.Millisecond, false, 0)

	m.Submit(frame(1, "artnet", 100, []byte{255, 128, 0}))

	require.Eventually(t, func() bool { return len(backend.updates("dev-1")) == 1 }, time.Second, 5*time.Millisecond)
	update := backend.updates("dev-1")[0]
	color, ok := update.Payload["color"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 255, color["r"])
	assert.Equal(t, 128, color["g"])
	assert.Equal(t, 0, color["b"])
}

func TestSubmitDropsFrameForUnmappedUniverse(t *testing.T) {
	backend := &fakeBackend{}
	m := New(backend, nil, nil, 5*time.Millisecond, false, 0)

	m.Submit(frame(9, "artnet", 100, []byte{1, 2, 3}))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, backend.updates("dev-1"))
	assert.Equal(t, uint64(1), m.UnmappedCount())
}

func TestSubmitDropsZeroPriorityFrame(t *testing.T) {
	backend := &fakeBackend{snapshots: []store.MappingSnapshot{rgbSnapshot("dev-1", 1, 1)}}
	m := New(backend, nil, nil, 5*time.Millisecond, false, 0)

	m.Submit(frame(1, "sacn", 0, []byte{255, 255, 255}))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, backend.updates("dev-1"))
}

func TestSubmitPriorityMixingPrefersHigherPriority(t *testing.T) {
	backend := &fakeBackend{snapshots: []store.MappingSnapshot{rgbSnapshot("dev-1", 1, 1)}}
	m := New(backend, nil, nil, 30*time.Millisecond, false, 0)

	m.Submit(frame(1, "artnet", 100, []byte{10, 10, 10}))
	m.Submit(frame(1, "sacn", 200, []byte{20, 20, 20}))
	m.Submit(frame(1, "artnet", 50, []byte{30, 30, 30})) // lower priority, rejected

	require.Eventually(t, func() bool { return len(backend.updates("dev-1")) > 0 }, time.Second, 5*time.Millisecond)
	// debounce coalesces all accepted updates into the latest one (sacn@200)
	updates := backend.updates("dev-1")
	last := updates[len(updates)-1]
	color := last.Payload["color"].(map[string]any)
	assert.Equal(t, 20, color["r"])
}

func TestSubmitDebounceCoalescesRapidUpdates(t *testing.T) {
	backend := &fakeBackend{snapshots: []store.MappingSnapshot{rgbSnapshot("dev-1", 1, 1)}}
	m := New(backend, nil, nil, 40*time.Millisecond, false, 0)

	m.Submit(frame(1, "artnet", 100, []byte{1, 1, 1}))
	m.Submit(frame(1, "artnet", 100, []byte{2, 2, 2}))
	m.Submit(frame(1, "artnet", 100, []byte{3, 3, 3}))

	require.Eventually(t, func() bool { return len(backend.updates("dev-1")) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, backend.updates("dev-1"), 1)
	color := backend.updates("dev-1")[0].Payload["color"].(map[string]any)
	assert.Equal(t, 3, color["r"])
}

func TestSubmitChangeDetectionSkipsDuplicatePayload(t *testing.T) {
	backend := &fakeBackend{snapshots: []store.MappingSnapshot{rgbSnapshot("dev-1", 1, 1)}}
	m := New(backend, nil, nil, 5*time.Millisecond, false, 0)

	m.Submit(frame(1, "artnet", 100, []byte{7, 7, 7}))
	require.Eventually(t, func() bool { return len(backend.updates("dev-1")) == 1 }, time.Second, 5*time.Millisecond)

	m.Submit(frame(1, "artnet", 100, []byte{7, 7, 7}))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, backend.updates("dev-1"), 1)
}

func TestSubmitAggregatesMultipleMappingsPerDevice(t *testing.T) {
	snapshots := []store.MappingSnapshot{
		rgbSnapshot("dev-1", 1, 1),
		{
			MappingID:    2,
			DeviceID:     "dev-1",
			Universe:     1,
			Channel:      4,
			Length:       1,
			MappingType:  "discrete",
			Field:        "dimmer",
			Capabilities: defaultCaps(),
		},
	}
	backend := &fakeBackend{snapshots: snapshots}
	m := New(backend, nil, nil, 10*time.Millisecond, false, 0)

	m.Submit(frame(1, "artnet", 100, []byte{255, 0, 0, 128}))

	require.Eventually(t, func() bool { return len(backend.updates("dev-1")) == 1 }, time.Second, 5*time.Millisecond)
	payload := backend.updates("dev-1")[0].Payload
	color := payload["color"].(map[string]any)
	assert.Equal(t, 255, color["r"])
	assert.Equal(t, 128, payload["brightness"])
}

func TestStopFlushesPendingDebounce(t *testing.T) {
	backend := &fakeBackend{snapshots: []store.MappingSnapshot{rgbSnapshot("dev-1", 1, 1)}}
	m := New(backend, nil, nil, time.Hour, false, 0)

	m.Submit(frame(1, "artnet", 100, []byte{9, 9, 9}))
	assert.Empty(t, backend.updates("dev-1"))

	m.Stop()
	assert.Len(t, backend.updates("dev-1"), 1)
}

func TestSnapshotAndRestoreLastSent(t *testing.T) {
	backend := &fakeBackend{snapshots: []store.MappingSnapshot{rgbSnapshot("dev-1", 1, 1)}}
	m := New(backend, nil, nil, 5*time.Millisecond, false, 0)

	m.Submit(frame(1, "artnet", 100, []byte{1, 2, 3}))
	require.Eventually(t, func() bool { return len(backend.updates("dev-1")) == 1 }, time.Second, 5*time.Millisecond)

	snap := m.SnapshotLastSent()
	require.Contains(t, snap, "dev-1")

	m2 := New(backend, nil, nil, 5*time.Millisecond, false, 0)
	m2.RestoreLastSent(snap)

	m2.Submit(frame(1, "artnet", 100, []byte{1, 2, 3}))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, backend.updates("dev-1"), 1) // still one: duplicate suppressed after restore
}
