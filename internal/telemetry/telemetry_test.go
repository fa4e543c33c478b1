package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectorsWithoutPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.IngestPacketsTotal.WithLabelValues("artnet", "1").Inc()
	m.IngestMalformedTotal.WithLabelValues("sacn").Inc()
	m.MappingMissesTotal.WithLabelValues("9").Inc()
	m.SendResultsTotal.WithLabelValues("success").Inc()
	m.QueueDepth.WithLabelValues("dev-1").Set(3)
	m.OfflineDevices.Set(2)
	m.SubsystemStatus.WithLabelValues("ingest.artnet").Set(StatusValue("ok"))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestUniverseLabelFormatsNumber(t *testing.T) {
	assert.Equal(t, "42", UniverseLabel(42))
}

func TestStatusValueMapsKnownStatuses(t *testing.T) {
	assert.Equal(t, 1.0, StatusValue("ok"))
	assert.Equal(t, 0.5, StatusValue("degraded"))
	assert.Equal(t, 0.5, StatusValue("recovering"))
	assert.Equal(t, 0.0, StatusValue("suppressed"))
	assert.Equal(t, 0.0, StatusValue("unknown"))
}

func TestQueueDepthGaugeVecTracksPerDevice(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.QueueDepth.WithLabelValues("dev-1").Set(5)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "bridge_queue_depth" {
			found = f
		}
	}
	require.NotNil(t, found)
	require.Len(t, found.Metric, 1)
	assert.Equal(t, 5.0, found.Metric[0].GetGauge().GetValue())
}
