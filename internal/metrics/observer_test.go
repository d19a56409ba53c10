package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserverRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewObserver("test", reg)
	if err != nil {
		t.Fatalf("new observer: %v", err)
	}

	o.ObserveStage("upload", 20*time.Millisecond, "ok")
	o.ObserveStage("upload", 5*time.Millisecond, "network")
	o.ObserveUploadBytes(2048)
	o.ObserveClusters(3)

	if got := testutil.ToFloat64(o.stageOutcomes.WithLabelValues("upload", "network")); got != 1 {
		t.Fatalf("expected one network outcome, got %v", got)
	}
	if got := testutil.ToFloat64(o.uploadedBytes); got != 2048 {
		t.Fatalf("unexpected uploaded bytes %v", got)
	}
	if got := testutil.ToFloat64(o.clusterCount); got != 3 {
		t.Fatalf("unexpected cluster gauge %v", got)
	}

	expected := `
# HELP test_map_marker_builds_total Marker snapshots computed without a memo hit.
# TYPE test_map_marker_builds_total counter
test_map_marker_builds_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_map_marker_builds_total"); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestObserverDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewObserver("dup", reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewObserver("dup", reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestNilObserverIsNoop(t *testing.T) {
	var o *Observer
	o.ObserveStage("normalize", time.Second, "ok")
	o.ObserveUploadBytes(1)
	o.ObserveClusters(1)
}
