package monitor

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "shard")
	require.NotNil(t, m)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(families), 4)
}

func TestSinkPublishDropsWhenBufferFull(t *testing.T) {
	s := NewSink("nats://127.0.0.1:1", "subj", "cluster", zerolog.Nop())
	for i := 0; i < 300; i++ {
		s.Publish(NewEvent("test", nil))
	}
	assert.LessOrEqual(t, len(s.events), cap(s.events))
}
