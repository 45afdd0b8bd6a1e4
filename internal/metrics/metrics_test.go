package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCallLabelsStatus(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCall("client", "list", 200, 10*time.Millisecond)
	m.ObserveCall("client", "list", 200, 10*time.Millisecond)
	m.ObserveCall("client", "delete", 0, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("client", "list", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("client", "delete", "transport_error")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCall("sale", "create", 500, time.Second)
	m.Discarded("picker")
}

func TestDiscarded(t *testing.T) {
	m := New(nil)
	m.Discarded("records")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.discarded.WithLabelValues("records")))
}
