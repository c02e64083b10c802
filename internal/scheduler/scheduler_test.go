package scheduler

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"robocurse/internal/copytool"
	"robocurse/internal/logging"
	"robocurse/internal/rcconfig"
	"robocurse/internal/rcmodel"
)

// fakeLauncher spawns a real, fast-exiting subprocess per chunk so the
// scheduler's non-blocking-harvest machinery (the goroutine-plus-channel
// substitute for a "HasExited" probe) has a genuine *os.Process to wait on,
// with a caller-controlled exit code.
type fakeLauncher struct {
	exitCode    int
	failLaunch  bool
	startedCh   chan struct{}
}

func (f *fakeLauncher) StartChunkJob(ctx context.Context, chunk *rcmodel.Chunk, baseArgs []string) (*rcmodel.Job, error) {
	if f.failLaunch {
		return nil, errLaunch
	}
	cmd := exec.Command("sh", "-c", "exit "+itoaTest(f.exitCode))
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	chunk.Status = rcmodel.StatusRunning
	if f.startedCh != nil {
		f.startedCh <- struct{}{}
	}
	return &rcmodel.Job{Process: cmd.Process, Chunk: chunk, StartTime: time.Now(), LogPath: "/dev/null"}, nil
}

var errLaunch = &launchFailure{}

type launchFailure struct{}

func (*launchFailure) Error() string { return "fake launch failure" }

func itoaTest(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

type fakeParser struct{}

func (fakeParser) Parse(string) copytool.Stats {
	return copytool.Stats{ParseSuccess: true}
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(t.TempDir(), logging.LogSettings{NoLogs: true})
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	return log
}

func newTestScheduler(t *testing.T, launcher copytool.Launcher) *Scheduler {
	t.Helper()
	cfg := rcconfig.New()
	s, err := New(cfg, launcher, fakeParser{}, testLogger(t), []string{"/E"})
	if err != nil {
		t.Fatalf("failed to construct scheduler: %v", err)
	}
	return s
}

func newChunk(id int64) *rcmodel.Chunk {
	return &rcmodel.Chunk{ChunkID: id, SourcePath: `C:\a`, DestinationPath: `D:\a`, EstimatedSize: 100}
}

// TestTick_AtMostNConcurrency covers invariant #6.
func TestTick_AtMostNConcurrency(t *testing.T) {
	s := newTestScheduler(t, &fakeLauncher{exitCode: 0})
	for i := int64(1); i <= 5; i++ {
		s.ChunkQueue.PushBack(newChunk(i))
	}

	s.Tick(context.Background(), 2)
	if s.ActiveJobCount() > 2 {
		t.Fatalf("want at most 2 active jobs, got %d", s.ActiveJobCount())
	}
}

// TestTick_PausePreservesQueue covers invariant #7.
func TestTick_PausePreservesQueue(t *testing.T) {
	s := newTestScheduler(t, &fakeLauncher{exitCode: 0})
	for i := int64(1); i <= 3; i++ {
		s.ChunkQueue.PushBack(newChunk(i))
	}
	s.RequestPause()

	before := s.ChunkQueue.Len()
	s.Tick(context.Background(), 5)

	if s.ChunkQueue.Len() != before {
		t.Fatalf("want queue length unchanged at %d, got %d", before, s.ChunkQueue.Len())
	}
	if s.ActiveJobCount() != 0 {
		t.Fatalf("want no active jobs while paused, got %d", s.ActiveJobCount())
	}
}

// TestStopAllJobs_S6 matches spec scenario S6.
func TestStopAllJobs_S6(t *testing.T) {
	s := newTestScheduler(t, &fakeLauncher{exitCode: 0})
	s.ChunkQueue.PushBack(newChunk(1))
	s.ChunkQueue.PushBack(newChunk(2))

	// Launch two jobs without harvesting them.
	s.launch(context.Background(), 2)
	if s.ActiveJobCount() != 2 {
		t.Fatalf("want 2 active jobs before stop, got %d", s.ActiveJobCount())
	}

	s.RequestStop()
	s.Tick(context.Background(), 2)

	if s.ActiveJobCount() != 0 {
		t.Fatalf("want 0 active jobs after stop, got %d", s.ActiveJobCount())
	}
	if s.Phase() != rcmodel.PhaseStopped {
		t.Fatalf("want Phase=Stopped, got %v", s.Phase())
	}
}

// TestHandleFailedChunk_S4_RetryWithBackoff matches spec scenario S4.
func TestHandleFailedChunk_S4_RetryWithBackoff(t *testing.T) {
	s := newTestScheduler(t, &fakeLauncher{})
	chunk := newChunk(1)
	chunk.RetryCount = 1

	result := copytool.Result{Exit: copytool.ExitMeaning{Severity: rcmodel.SeverityError, ShouldRetry: true}}
	before := time.Now()
	s.HandleFailedChunk(chunk, result)

	if chunk.RetryCount != 2 {
		t.Fatalf("want RetryCount=2, got %d", chunk.RetryCount)
	}
	if s.FailedChunks.Len() != 0 {
		t.Fatalf("want FailedChunks unchanged (empty), got %d", s.FailedChunks.Len())
	}
	if chunk.RetryAfter == nil {
		t.Fatal("want RetryAfter set")
	}
	wantMin := before.Add(5 * 2 * time.Second) // Base=5, Multiplier=2, RetryCount=2
	if chunk.RetryAfter.Before(wantMin.Add(-2 * time.Second)) {
		t.Fatalf("RetryAfter too soon: %v vs expected around %v", chunk.RetryAfter, wantMin)
	}
}

// TestHandleFailedChunk_S5_ExhaustedRetries matches spec scenario S5.
func TestHandleFailedChunk_S5_ExhaustedRetries(t *testing.T) {
	s := newTestScheduler(t, &fakeLauncher{})
	chunk := newChunk(1)
	chunk.RetryCount = 2

	result := copytool.Result{Exit: copytool.ExitMeaning{Severity: rcmodel.SeverityError, ShouldRetry: true}}
	s.HandleFailedChunk(chunk, result)

	if chunk.RetryCount != 3 {
		t.Fatalf("want RetryCount=3, got %d", chunk.RetryCount)
	}
	if s.FailedChunks.Len() != 1 {
		t.Fatalf("want chunk in FailedChunks, got len=%d", s.FailedChunks.Len())
	}
	if s.ChunkQueue.Len() != 0 {
		t.Fatal("want chunk not re-enqueued after exhausting retries")
	}
}

func TestCircuitBreaker_Trips(t *testing.T) {
	s := newTestScheduler(t, &fakeLauncher{})
	for i := int64(1); i < s.cfg.CircuitBreakerThreshold; i++ {
		s.CheckCircuitBreaker(i, "boom")
		if s.CircuitBreakerTripped.Load() {
			t.Fatalf("breaker tripped early at failure %d", i)
		}
	}
	s.CheckCircuitBreaker(s.cfg.CircuitBreakerThreshold, "boom")
	if !s.CircuitBreakerTripped.Load() {
		t.Fatal("want breaker tripped at threshold")
	}
	if !s.StopRequested.Load() {
		t.Fatal("want StopRequested set once breaker trips")
	}
}
