// Package scheduler implements the Concurrent Job Scheduler (spec §4.3):
// a single controller tick loop that launches copy-tool child processes up
// to a bounded concurrency limit, harvests their results without ever
// blocking on process exit, and routes each result through retry/backoff
// and circuit-breaker logic.
//
// Grounded on the teacher's Worker() (worker.go): bounded producers, a
// single serializing consumer, atomic counters, a mutex-guarded map, and
// context-cancellation discipline all carry over — only the unit of work
// changes, from "one file copy" to "one chunk dispatched as a child
// process".
package scheduler

import (
	"context"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"robocurse/internal/copytool"
	"robocurse/internal/logging"
	"robocurse/internal/rcconfig"
	"robocurse/internal/rcmodel"
)

// waitResult is delivered by a job's background wait goroutine once its
// process exits — the channel-based analogue of the spec's "non-blocking
// HasExited probe": the tick loop only ever selects on it with a default
// case, never calls Wait itself.
type waitResult struct {
	exitCode int
	duration time.Duration
}

// Scheduler is the explicit handle the Design Notes call for: one value per
// run, holding its queues, its active-job map, its atomic counters, and its
// injected collaborators. No package-level state.
type Scheduler struct {
	cfg      *rcconfig.Config
	launcher copytool.Launcher
	parser   copytool.LogParser
	log      *logging.Logger
	baseArgs []string

	ChunkQueue      *rcmodel.Queue[*rcmodel.Chunk]
	CompletedChunks *rcmodel.Queue[*rcmodel.Chunk]
	WarningChunks   *rcmodel.Queue[*rcmodel.Chunk]
	FailedChunks    *rcmodel.Queue[*rcmodel.Chunk]

	mu         sync.Mutex
	ActiveJobs map[int]*rcmodel.Job
	waiters    map[int]chan waitResult

	CompletedChunkBytes atomic.Int64
	CompletedChunkFiles atomic.Int64
	TotalFilesSkipped   atomic.Int64
	ConsecutiveFailures atomic.Int64
	CircuitBreakerTripped atomic.Bool

	StopRequested  atomic.Bool
	PauseRequested atomic.Bool
	phase          atomic.Int32

	mismatchMu sync.RWMutex
	mismatchOverride *rcmodel.Severity

	errMu    sync.Mutex
	errorMsgs []string

	// ProgressHook, if set, is invoked at the end of every Tick (spec §4.3
	// step 4, UpdateProgressStats) — wired by the top-level orchestrator to
	// the progress package rather than imported directly here, to avoid a
	// scheduler -> progress -> scheduler import cycle.
	ProgressHook func()
}

// New constructs a Scheduler. baseArgs are the caller-supplied copy-tool
// switches applied to every chunk (spec §4.4), validated once here so a bad
// profile configuration fails before any chunk launches.
func New(cfg *rcconfig.Config, launcher copytool.Launcher, parser copytool.LogParser, log *logging.Logger, baseArgs []string) (*Scheduler, error) {
	if err := copytool.Sanitize(baseArgs); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:             cfg,
		launcher:        launcher,
		parser:          parser,
		log:             log,
		baseArgs:        baseArgs,
		ChunkQueue:      rcmodel.NewQueue[*rcmodel.Chunk](),
		CompletedChunks: rcmodel.NewQueue[*rcmodel.Chunk](),
		WarningChunks:   rcmodel.NewQueue[*rcmodel.Chunk](),
		FailedChunks:    rcmodel.NewQueue[*rcmodel.Chunk](),
		ActiveJobs:      make(map[int]*rcmodel.Job),
		waiters:         make(map[int]chan waitResult),
	}
	s.phase.Store(int32(rcmodel.PhaseIdle))
	return s, nil
}

func (s *Scheduler) Phase() rcmodel.Phase { return rcmodel.Phase(s.phase.Load()) }
func (s *Scheduler) setPhase(p rcmodel.Phase) { s.phase.Store(int32(p)) }

// SetMismatchSeverity installs the current profile's MismatchSeverity
// override (spec §4.4's CurrentRobocopyOptions), nil meaning "use default".
func (s *Scheduler) SetMismatchSeverity(sev *rcmodel.Severity) {
	s.mismatchMu.Lock()
	s.mismatchOverride = sev
	s.mismatchMu.Unlock()
}

func (s *Scheduler) currentMismatchSeverity() *rcmodel.Severity {
	s.mismatchMu.RLock()
	defer s.mismatchMu.RUnlock()
	return s.mismatchOverride
}

// EnqueueChunks pushes a planner's output onto ChunkQueue in order.
func (s *Scheduler) EnqueueChunks(chunks []*rcmodel.Chunk) {
	for _, c := range chunks {
		s.ChunkQueue.PushBack(c)
	}
}

func (s *Scheduler) RequestStop()    { s.StopRequested.Store(true) }
func (s *Scheduler) RequestPause()   { s.PauseRequested.Store(true) }
func (s *Scheduler) RequestResume()  { s.PauseRequested.Store(false) }

func (s *Scheduler) ActiveJobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ActiveJobs)
}

// ForEachActiveJob calls fn once per currently active job, on a snapshot
// taken under the lock — fn itself runs lock-free so it may do I/O (e.g.
// reading a job's in-flight log) without blocking the tick loop.
func (s *Scheduler) ForEachActiveJob(fn func(job *rcmodel.Job)) {
	s.mu.Lock()
	jobs := make([]*rcmodel.Job, 0, len(s.ActiveJobs))
	for _, j := range s.ActiveJobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		fn(j)
	}
}

func (s *Scheduler) ErrorMessages() []string {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	out := make([]string, len(s.errorMsgs))
	copy(out, s.errorMsgs)
	return out
}

func (s *Scheduler) enqueueError(msg string) {
	s.errMu.Lock()
	s.errorMsgs = append(s.errorMsgs, msg)
	s.errMu.Unlock()
}

// ResetForProfile zeroes the per-profile byte/file/error counters once the
// orchestrator has finished aggregating a ProfileResult. ConsecutiveFailures
// and CircuitBreakerTripped are deliberately left alone: the circuit breaker
// is a run-level concept (spec glossary: "halts the run"), not a per-profile
// one.
func (s *Scheduler) ResetForProfile() {
	s.CompletedChunkBytes.Store(0)
	s.CompletedChunkFiles.Store(0)
	s.TotalFilesSkipped.Store(0)
	s.errMu.Lock()
	s.errorMsgs = nil
	s.errMu.Unlock()
}

// Tick runs one scheduler iteration (spec §4.3's exact four steps).
// maxConcurrent must already be validated to [1,128] by the caller
// (StartReplicationRun per spec §4.3).
func (s *Scheduler) Tick(ctx context.Context, maxConcurrent int) {
	if s.StopRequested.Load() {
		s.StopAllJobs()
		return
	}
	if s.Phase() != rcmodel.PhaseReplicating {
		s.setPhase(rcmodel.PhaseReplicating)
	}

	s.harvest()
	s.launch(ctx, maxConcurrent)

	if s.ProgressHook != nil {
		s.ProgressHook()
	}
}

// harvest implements step 2: for every active job whose process has
// exited, route it through the completion handler and remove it.
func (s *Scheduler) harvest() {
	type done struct {
		job *rcmodel.Job
		res waitResult
	}
	var finished []done

	s.mu.Lock()
	for pid, job := range s.ActiveJobs {
		ch := s.waiters[pid]
		select {
		case res := <-ch:
			finished = append(finished, done{job: job, res: res})
			delete(s.ActiveJobs, pid)
			delete(s.waiters, pid)
		default:
		}
	}
	s.mu.Unlock()

	for _, f := range finished {
		s.routeCompletion(f.job, f.res)
	}
}

// launch implements step 3. It bounds itself to a single pass over however
// many chunks were queued at the start of the tick, so a chunk that gets
// re-enqueued (retry-not-yet-due, or launch failure) is picked up on a
// later tick rather than looping forever within this one.
func (s *Scheduler) launch(ctx context.Context, maxConcurrent int) {
	attempts := s.ChunkQueue.Len()
	for i := 0; i < attempts; i++ {
		if s.PauseRequested.Load() || s.ActiveJobCount() >= maxConcurrent {
			return
		}
		chunk, ok := s.ChunkQueue.PopFront()
		if !ok {
			return
		}

		if chunk.RetryAfter != nil && chunk.RetryAfter.After(time.Now()) {
			s.ChunkQueue.PushBack(chunk)
			return
		}

		job, err := s.launcher.StartChunkJob(ctx, chunk, s.baseArgs)
		if job == nil {
			s.log.Warnf("chunk %d: launch failed: %v", chunk.ChunkID, err)
			s.handleLaunchFailure(chunk)
			continue
		}

		s.registerJob(job)
	}
}

func (s *Scheduler) handleLaunchFailure(chunk *rcmodel.Chunk) {
	chunk.RetryCount++
	if chunk.RetryCount >= s.cfg.MaxChunkRetries {
		chunk.Status = rcmodel.StatusFailed
		s.FailedChunks.PushBack(chunk)
		s.enqueueError("chunk " + strconv.FormatInt(chunk.ChunkID, 10) + ": launch failed after exhausting retries")
		return
	}
	s.ChunkQueue.PushBack(chunk)
}

func (s *Scheduler) registerJob(job *rcmodel.Job) {
	pid := job.Process.Pid
	ch := make(chan waitResult, 1)
	start := job.StartTime

	go func(p *os.Process) {
		state, _ := p.Wait()
		code := 0
		if state != nil {
			code = state.ExitCode()
		}
		ch <- waitResult{exitCode: code, duration: time.Since(start)}
	}(job.Process)

	s.mu.Lock()
	s.ActiveJobs[pid] = job
	s.waiters[pid] = ch
	s.mu.Unlock()
}

// routeCompletion classifies a finished job's result and moves its chunk
// to the appropriate terminal queue, or back onto ChunkQueue for retry.
func (s *Scheduler) routeCompletion(job *rcmodel.Job, wr waitResult) {
	result := copytool.CompleteRobocopyJob(job, wr.exitCode, s.currentMismatchSeverity(), s.parser, wr.duration)
	chunk := job.Chunk

	switch result.Exit.Severity {
	case rcmodel.SeveritySuccess:
		s.CompletedChunks.PushBack(chunk)
		s.CompletedChunkBytes.Add(result.Stats.BytesCopied)
		s.CompletedChunkFiles.Add(result.Stats.FilesCopied)
		s.TotalFilesSkipped.Add(result.Stats.FilesSkipped)
		s.ResetOnSuccess()
	case rcmodel.SeverityWarning:
		s.WarningChunks.PushBack(chunk)
		s.CompletedChunkBytes.Add(result.Stats.BytesCopied)
		s.CompletedChunkFiles.Add(result.Stats.FilesCopied)
		s.TotalFilesSkipped.Add(result.Stats.FilesSkipped)
	default: // Error, Fatal
		s.CheckCircuitBreaker(chunk.ChunkID, result.Exit.Message)
		s.HandleFailedChunk(chunk, result)
	}
}

// StopAllJobs kills every active process (spec §4.3's stop semantics).
func (s *Scheduler) StopAllJobs() {
	s.mu.Lock()
	jobs := make([]*rcmodel.Job, 0, len(s.ActiveJobs))
	for _, job := range s.ActiveJobs {
		jobs = append(jobs, job)
	}
	s.mu.Unlock()

	for _, job := range jobs {
		if err := job.Process.Kill(); err != nil && err != os.ErrProcessDone {
			s.log.Errorf("chunk %d: kill failed: %v", job.Chunk.ChunkID, err)
		}
	}

	s.mu.Lock()
	s.ActiveJobs = make(map[int]*rcmodel.Job)
	s.waiters = make(map[int]chan waitResult)
	s.mu.Unlock()

	s.setPhase(rcmodel.PhaseStopped)
}
