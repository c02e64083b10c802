package progress

import (
	"path/filepath"
	"testing"
	"time"

	"robocurse/internal/copytool"
	"robocurse/internal/logging"
	"robocurse/internal/rcconfig"
	"robocurse/internal/rcmodel"
	"robocurse/internal/scheduler"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(t.TempDir(), logging.LogSettings{NoLogs: true})
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	return log
}

func newTestReporter(t *testing.T) (*Reporter, *scheduler.Scheduler) {
	t.Helper()
	cfg := rcconfig.New()
	sched, err := scheduler.New(cfg, &copytool.ExecLauncher{}, copytool.DefaultLogParser{}, testLogger(t), nil)
	if err != nil {
		t.Fatalf("failed to construct scheduler: %v", err)
	}
	healthPath := filepath.Join(t.TempDir(), "health.json")
	r := New(sched, testLogger(t), "session-1", healthPath, 0, false)
	return r, sched
}

func TestComputeETA_Table(t *testing.T) {
	tests := []struct {
		name          string
		elapsed       time.Duration
		bytesComplete int64
		totalBytes    int64
		start         time.Time
		wantNil       bool
		wantZero      bool
	}{
		{"zero start time", time.Second, 10, 100, time.Time{}, true, false},
		{"no bytes yet", time.Second, 0, 100, time.Now(), true, false},
		{"complete", time.Second, 100, 100, time.Now(), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeETA(tt.elapsed, tt.bytesComplete, tt.totalBytes, tt.start)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("want nil ETA, got %v", *got)
				}
				return
			}
			if got == nil {
				t.Fatal("want non-nil ETA")
			}
			if tt.wantZero && *got != 0 {
				t.Fatalf("want zero ETA, got %v", *got)
			}
		})
	}
}

func TestGetStatus_ReflectsScheduler(t *testing.T) {
	r, sched := newTestReporter(t)
	r.StartProfile("demo", 4, 1000)

	sched.CompletedChunks.PushBack(&rcmodel.Chunk{ChunkID: 1})
	sched.CompletedChunks.PushBack(&rcmodel.Chunk{ChunkID: 2})

	st := r.GetStatus()
	if st.ChunksTotal != 4 {
		t.Fatalf("want ChunksTotal=4, got %d", st.ChunksTotal)
	}
	if st.ChunksComplete != 2 {
		t.Fatalf("want ChunksComplete=2, got %d", st.ChunksComplete)
	}
	if st.CurrentProfileName != "demo" {
		t.Fatalf("want profile name 'demo', got %q", st.CurrentProfileName)
	}
}

func TestWriteHealth_ThrottlesAndReads(t *testing.T) {
	r, _ := newTestReporter(t)
	r.healthEvery = time.Hour

	if err := r.WriteHealth(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, err := r.GetHealth()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h == nil {
		t.Fatal("expected health document to exist")
	}
	if h.SessionID != "session-1" {
		t.Fatalf("want session id 'session-1', got %q", h.SessionID)
	}

	// Throttled: a non-forced call right after should not error even though
	// it's a no-op.
	if err := r.WriteHealth(false); err != nil {
		t.Fatalf("unexpected error on throttled write: %v", err)
	}
}
