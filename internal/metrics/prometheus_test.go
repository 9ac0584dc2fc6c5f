package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	// Two instances on separate registries must not collide.
	m1 := NewMetrics(prometheus.NewRegistry())
	m2 := NewMetrics(prometheus.NewRegistry())

	m1.RecordUploadReceived()

	assert.Equal(t, float64(1), testutil.ToFloat64(m1.UploadsReceived))
	assert.Equal(t, float64(0), testutil.ToFloat64(m2.UploadsReceived))
}

func TestRecordUploadStored(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordUploadStored(2048, 0.002)
	m.RecordUploadStored(1024, 0.001)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.UploadsStored))
	assert.Equal(t, float64(3072), testutil.ToFloat64(m.BytesStored))

	count, err := testutil.GatherAndCount(reg, "trio_upload_size_bytes")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecordHTTP(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordHTTPRequest("POST", "/api/store-audio", "200", 0.01)
	m.RecordHTTPRequest("POST", "/api/store-audio", "400", 0.01)
	m.RecordHTTPError("POST", "/api/store-audio", "client_error")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/store-audio", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPErrors.WithLabelValues("POST", "/api/store-audio", "client_error")))
}
