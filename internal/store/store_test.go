package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/bus"
)

type fakeWrapper struct{}

func (fakeWrapper) Wrap(payload map[string]any) ([][]byte, error) {
	return [][]byte{[]byte(`{"msg":{"cmd":"turn","data":{"value":1}}}`)}, nil
}

type fakeRegistry struct{}

func (fakeRegistry) Resolve(protocol string) (Wrapper, bool) {
	if protocol == "govee" {
		return fakeWrapper{}, true
	}
	return nil, false
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := t.TempDir() + "/test.db"
	s, err := Open(path, bus.New(nil), nil)
	require.NoError(t, err)
	s.SetProtocolRegistry(fakeRegistry{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertDiscoveryThenUpdate(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertDiscovery(DiscoveryResult{
		ID: "dev-1", Protocol: "govee", IP: "10.0.0.5", Model: "H6159",
	}))
	info, err := s.DeviceInfo("dev-1")
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, "10.0.0.5", info.IP)

	require.NoError(t, s.UpsertDiscovery(DiscoveryResult{
		ID: "dev-1", Protocol: "govee", IP: "10.0.0.6", Model: "H6159",
	}))
	info, err = s.DeviceInfo("dev-1")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.6", info.IP)
}

func TestCreateMappingRejectsOverlap(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertManual(ManualDeclaration{ID: "dev-1", IP: "10.0.0.5", Protocol: "govee"}))

	_, err := s.CreateMapping(MappingSpec{
		DeviceID: "dev-1", Universe: 1, Channel: 1, Length: 3, MappingType: "range", Fields: []string{"r", "g", "b"},
	})
	require.NoError(t, err)

	_, err = s.CreateMapping(MappingSpec{
		DeviceID: "dev-1", Universe: 1, Channel: 2, Length: 2, MappingType: "range", Fields: []string{"r", "g"},
	})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = s.CreateMapping(MappingSpec{
		DeviceID: "dev-1", Universe: 1, Channel: 2, Length: 2, MappingType: "range",
		Fields: []string{"r", "g"}, AllowOverlap: true,
	})
	require.NoError(t, err)
}

func TestCreateMappingConfiguresDevice(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertManual(ManualDeclaration{ID: "dev-1", IP: "10.0.0.5", Protocol: "govee"}))

	id, err := s.CreateMapping(MappingSpec{
		DeviceID: "dev-1", Universe: 1, Channel: 10, Length: 1, MappingType: "discrete", Field: "power",
	})
	require.NoError(t, err)

	var device Device
	require.NoError(t, s.db.Where("id = ?", "dev-1").First(&device).Error)
	require.True(t, device.Configured)

	require.NoError(t, s.DeleteMapping(id))
	require.NoError(t, s.db.Where("id = ?", "dev-1").First(&device).Error)
	require.False(t, device.Configured)
}

func TestEnqueueAndDeliverState(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertManual(ManualDeclaration{ID: "dev-1", IP: "10.0.0.5", Protocol: "govee"}))

	n, err := s.EnqueueState(DeviceStateUpdate{DeviceID: "dev-1", Payload: map[string]any{"turn": "on"}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	ids, err := s.PendingDeviceIDs()
	require.NoError(t, err)
	require.Contains(t, ids, "dev-1")

	head, err := s.NextState("dev-1")
	require.NoError(t, err)
	require.NotNil(t, head)

	require.NoError(t, s.DeleteState(head.ID))
	head, err = s.NextState("dev-1")
	require.NoError(t, err)
	require.Nil(t, head)
}

func TestRecordSendFailureTransitionsOffline(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertManual(ManualDeclaration{ID: "dev-1", IP: "10.0.0.5", Protocol: "govee"}))

	require.NoError(t, s.RecordSendFailure("dev-1", "hash1", 3))
	require.NoError(t, s.RecordSendFailure("dev-1", "hash1", 3))
	require.NoError(t, s.RecordSendFailure("dev-1", "hash1", 3))

	var device Device
	require.NoError(t, s.db.Where("id = ?", "dev-1").First(&device).Error)
	require.True(t, device.Offline)
	require.GreaterOrEqual(t, device.FailureCount, 3)

	require.NoError(t, s.RecordSendSuccess("dev-1", "hash1"))
	require.NoError(t, s.db.Where("id = ?", "dev-1").First(&device).Error)
	require.False(t, device.Offline)
	require.Equal(t, 0, device.FailureCount)
}

func TestQuarantineStateWritesDeadLetter(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertManual(ManualDeclaration{ID: "dev-1", IP: "10.0.0.5", Protocol: "govee"}))
	_, err := s.EnqueueState(DeviceStateUpdate{DeviceID: "dev-1", Payload: map[string]any{"turn": "on"}})
	require.NoError(t, err)

	head, err := s.NextState("dev-1")
	require.NoError(t, err)
	require.NoError(t, s.QuarantineState(*head, "missing_ip", "no IP on file"))

	remaining, err := s.NextState("dev-1")
	require.NoError(t, err)
	require.Nil(t, remaining)

	var letters []DeadLetter
	require.NoError(t, s.db.Find(&letters).Error)
	require.Len(t, letters, 1)
	require.Equal(t, "missing_ip", letters[0].Reason)
}
