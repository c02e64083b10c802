// Package progress implements the Progress/Status/Health surface (spec
// §4.7): a read-only view over the scheduler's counters, a throttled JSON
// health file, and additive Prometheus gauges.
package progress

import (
	"sync"
	"time"

	"robocurse/internal/copytool"
	"robocurse/internal/logging"
	"robocurse/internal/rcmodel"
	"robocurse/internal/scheduler"
)

// Status is the GetStatus() snapshot (spec §4.7).
type Status struct {
	Phase              rcmodel.Phase
	CurrentProfileName string
	ProfileProgress    float64
	ChunksComplete     int
	ChunksTotal        int
	Elapsed            time.Duration
	ETA                *time.Duration // nil means undefined ("--")
}

// Reporter wires a Scheduler's counters into GetStatus/WriteHealth. One
// Reporter is constructed per run and lives alongside its Scheduler and
// Manager; in-flight byte estimates are read from active jobs' logs with
// copytool.DefaultLogParser.
type Reporter struct {
	sched     *scheduler.Scheduler
	log       *logging.Logger
	sessionID string

	mu                 sync.Mutex
	startTime          time.Time
	currentProfileName string
	totalChunks        int
	totalBytes         int64

	metrics *metricsSet // nil when disabled

	healthPath    string
	healthEvery   time.Duration
	lastHealthMu  sync.Mutex
	lastHealthAt  time.Time
}

// New constructs a Reporter. healthEvery <= 0 disables throttling (every
// WriteHealth call writes).
func New(sched *scheduler.Scheduler, log *logging.Logger, sessionID, healthPath string, healthEvery time.Duration, enableMetrics bool) *Reporter {
	r := &Reporter{
		sched:       sched,
		log:         log,
		sessionID:   sessionID,
		healthPath:  healthPath,
		healthEvery: healthEvery,
	}
	if enableMetrics {
		r.metrics = newMetricsSet()
	}
	return r
}

// StartProfile resets per-profile accounting; called once planning for a
// profile completes and its chunks have been enqueued.
func (r *Reporter) StartProfile(name string, totalChunks int, totalBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startTime = time.Now()
	r.currentProfileName = name
	r.totalChunks = totalChunks
	r.totalBytes = totalBytes
}

// UpdateProgressStats is the scheduler's end-of-tick hook (spec §4.3 step
// 4). It refreshes the Prometheus gauges when metrics are enabled; GetStatus
// itself always recomputes live from the scheduler, so this hook's only job
// beyond metrics is a place future instrumentation can attach.
func (r *Reporter) UpdateProgressStats() {
	if r.metrics == nil {
		return
	}
	st := r.GetStatus()
	r.metrics.update(st, r.bytesComplete(), r.sched.CircuitBreakerTripped.Load())
}

// GetStatus implements the status-snapshot contract (spec §4.7).
func (r *Reporter) GetStatus() Status {
	r.mu.Lock()
	start := r.startTime
	name := r.currentProfileName
	total := r.totalChunks
	totalBytes := r.totalBytes
	r.mu.Unlock()

	complete := r.sched.CompletedChunks.Len() + r.sched.WarningChunks.Len()

	var progressPct float64
	if total > 0 {
		progressPct = 100 * float64(complete) / float64(total)
	}

	elapsed := time.Duration(0)
	if !start.IsZero() {
		elapsed = time.Since(start)
	}

	bytesComplete := r.bytesComplete()
	eta := computeETA(elapsed, bytesComplete, totalBytes, start)

	return Status{
		Phase:              r.sched.Phase(),
		CurrentProfileName: name,
		ProfileProgress:    progressPct,
		ChunksComplete:     complete,
		ChunksTotal:        total,
		Elapsed:            elapsed,
		ETA:                eta,
	}
}

// computeETA implements spec §4.7's ETA rules exactly.
func computeETA(elapsed time.Duration, bytesComplete, totalBytes int64, start time.Time) *time.Duration {
	if start.IsZero() || elapsed < time.Millisecond || bytesComplete == 0 {
		return nil
	}
	if bytesComplete >= totalBytes {
		zero := time.Duration(0)
		return &zero
	}
	remaining := totalBytes - bytesComplete
	eta := time.Duration(int64(elapsed) * remaining / bytesComplete)
	return &eta
}

// bytesComplete implements spec §4.7's byte accounting: the completed
// counter plus a best-effort, in-flight estimate read from each active
// job's log. An unreadable in-flight log contributes 0, never an error.
func (r *Reporter) bytesComplete() int64 {
	total := r.sched.CompletedChunkBytes.Load()

	r.sched.ForEachActiveJob(func(job *rcmodel.Job) {
		total += inFlightBytes(job)
	})
	return total
}

func inFlightBytes(job *rcmodel.Job) int64 {
	stats := copytool.DefaultLogParser{}.Parse(job.LogPath + ".tmp")
	if !stats.ParseSuccess {
		return 0
	}
	return stats.BytesCopied
}
