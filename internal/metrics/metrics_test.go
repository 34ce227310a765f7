package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	m.SetConnectionState("ready", []string{"ready"})
	m.FrameReceived()
	m.PushMerged("statement", 1)
	m.ParseError()
	m.UnknownSchema()
	m.NormalizeError()
	m.PageUpdate()
	m.Registration("sent")
	m.WriterFlush(3)
	m.WriterError()
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FrameReceived()
	m.FrameReceived()
	m.PushMerged("statement", 3)
	m.Registration("dropped")

	if got := testutil.ToFloat64(m.framesReceived); got != 2 {
		t.Errorf("frames_received = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.entitiesMerged); got != 3 {
		t.Errorf("entities_merged = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.pushesMerged.WithLabelValues("statement")); got != 1 {
		t.Errorf("pushes_merged{statement} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.registrations.WithLabelValues("dropped")); got != 1 {
		t.Errorf("registrations{dropped} = %v, want 1", got)
	}
}

func TestMetrics_ConnectionState(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	all := []string{"connecting", "ready", "closed"}

	m.SetConnectionState("ready", all)

	if got := testutil.ToFloat64(m.connectionState.WithLabelValues("ready")); got != 1 {
		t.Errorf("state{ready} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.connectionState.WithLabelValues("closed")); got != 0 {
		t.Errorf("state{closed} = %v, want 0", got)
	}
}
