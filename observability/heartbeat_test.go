package observability

import (
	"context"
	"testing"
	"time"
)

func TestHeartbeatWriter(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, MetricsConfig{FlushInterval: time.Hour})
	t.Cleanup(func() { mm.Close() })
	ctx := context.Background()

	if hs, err := LatestHeartbeat(ctx, db, "scandoc", time.Minute); err != nil || hs != nil {
		t.Fatalf("before any beat: %+v, %v", hs, err)
	}

	hw := NewHeartbeatWriter(db, "scandoc", time.Hour, mm, nil)
	hw.Start(ctx)
	deadline := time.Now().Add(5 * time.Second)
	var hs *HeartbeatStatus
	for time.Now().Before(deadline) {
		var err error
		if hs, err = LatestHeartbeat(ctx, db, "scandoc", time.Minute); err != nil {
			t.Fatal(err)
		}
		if hs != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	hw.Stop()
	hw.Stop()

	if hs == nil || !hs.Alive || hs.PID == 0 || hs.GoroutinesCount == 0 {
		t.Fatalf("status = %+v", hs)
	}
	mm.Flush()
	got, err := mm.Query(ctx, MetricQuery{Name: MetricGoroutinesCount})
	if err != nil || len(got) == 0 {
		t.Errorf("goroutine gauge = %+v, %v", got, err)
	}
}

func TestLatestHeartbeat_Stale(t *testing.T) {
	db := setupObsDB(t)
	old := time.Now().Add(-10 * time.Minute).Unix()
	if _, err := db.Exec(`INSERT INTO worker_heartbeats (worker_name, hostname, worker_pid, timestamp)
		VALUES ('scandoc', 'host', 42, ?)`, old); err != nil {
		t.Fatal(err)
	}
	hs, err := LatestHeartbeat(context.Background(), db, "scandoc", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if hs.Alive || hs.StaleSince == nil || *hs.StaleSince < 8*time.Minute {
		t.Errorf("status = %+v", hs)
	}

	n, err := CleanupHeartbeats(context.Background(), db, 0)
	if err != nil || n != 0 {
		t.Errorf("zero days cleanup = %d, %v", n, err)
	}
}

func TestHeartbeatWriter_StopWithoutStart(t *testing.T) {
	db := setupObsDB(t)
	hw := NewHeartbeatWriter(db, "scandoc", 0, nil, nil)
	hw.Stop()
	if err := hw.WriteHeartbeat(context.Background()); err != nil {
		t.Fatal(err)
	}
}
