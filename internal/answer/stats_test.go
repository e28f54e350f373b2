package answer

import (
	"testing"
	"time"
)

func TestCallStatsSnapshotPercentiles(t *testing.T) {
	stats := NewCallStats(time.Hour)
	stats.Record("chat", 100*time.Millisecond)
	stats.Record("chat", 200*time.Millisecond)
	stats.Record("chat", 300*time.Millisecond)
	stats.Record("chat", 400*time.Millisecond)
	stats.Record("chat", 500*time.Millisecond)

	snap, ok := stats.Snapshot()["chat"]
	if !ok {
		t.Fatal("chat series missing")
	}
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinMs != 100 {
		t.Fatalf("expected min=100, got %d", snap.MinMs)
	}
	if snap.MaxMs != 500 {
		t.Fatalf("expected max=500, got %d", snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestCallStatsSeriesAreIndependent(t *testing.T) {
	stats := NewCallStats(time.Hour)
	stats.Record("chat", 100*time.Millisecond)
	stats.Record("embed_query", 20*time.Millisecond)
	stats.Record("embed_query", 40*time.Millisecond)

	snaps := stats.Snapshot()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 series, got %d", len(snaps))
	}
	if snaps["chat"].Count != 1 {
		t.Errorf("chat count = %d", snaps["chat"].Count)
	}
	if snaps["embed_query"].Count != 2 || snaps["embed_query"].MaxMs != 40 {
		t.Errorf("embed_query = %+v", snaps["embed_query"])
	}
}

func TestCallStatsPrunesExpiredSamples(t *testing.T) {
	stats := NewCallStats(10 * time.Millisecond)
	stats.Record("chat", 100*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	if snaps := stats.Snapshot(); len(snaps) != 0 {
		t.Fatalf("expected empty snapshot after prune, got %+v", snaps)
	}

	stats.Record("chat", 200*time.Millisecond)
	snap := stats.Snapshot()["chat"]
	if snap.Count != 1 {
		t.Fatalf("expected count=1 for fresh sample, got %d", snap.Count)
	}
	if snap.MinMs != 200 || snap.MaxMs != 200 {
		t.Fatalf("expected min=max=200, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}

func TestCallStatsRecordClampsNegativeDuration(t *testing.T) {
	stats := NewCallStats(time.Hour)
	stats.Record("chat", -10*time.Millisecond)
	snap := stats.Snapshot()["chat"]
	if snap.Count != 1 {
		t.Fatalf("expected count=1, got %d", snap.Count)
	}
	if snap.MinMs != 0 || snap.MaxMs != 0 {
		t.Fatalf("expected clamped duration=0, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}
