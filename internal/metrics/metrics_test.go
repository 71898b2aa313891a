package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCounters(t *testing.T) {
	before := counterValue(t, RateLimited.WithLabelValues("/state"))
	IncRateLimited("/state")
	assert.Equal(t, before+1, counterValue(t, RateLimited.WithLabelValues("/state")))

	before = counterValue(t, PairingOutcomes.WithLabelValues("approved"))
	IncPairingOutcome("approved")
	assert.Equal(t, before+1, counterValue(t, PairingOutcomes.WithLabelValues("approved")))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	IncCommand("play")
	IncBroadcast("state-update")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ytmcompanion_commands_dispatched_total")
	assert.Contains(t, string(body), "ytmcompanion_broadcast_events_total")
}
