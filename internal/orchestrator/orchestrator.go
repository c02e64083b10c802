// Package orchestrator wires the Directory Profiler, Chunk Planner,
// Scheduler and Snapshot Lifecycle Manager into the single explicit handle
// called for by the Design Notes ("global mutable state -> explicit
// handle"): one Orchestrator value per process, constructed once, holding
// no package-level state of its own.
package orchestrator

import (
	"context"
	"time"

	"robocurse/internal/copytool"
	"robocurse/internal/logging"
	"robocurse/internal/planner"
	"robocurse/internal/profiler"
	"robocurse/internal/progress"
	"robocurse/internal/rcconfig"
	"robocurse/internal/rcerr"
	"robocurse/internal/rcmodel"
	"robocurse/internal/scheduler"
	"robocurse/internal/snapshot"
)

// Orchestrator ties the five subsystems together for the lifetime of a run.
// It is the thing a caller constructs once and drives to completion; there
// is no hidden global it reaches for.
type Orchestrator struct {
	cfg *rcconfig.Config
	log *logging.Logger

	prof    *profiler.Profiler
	plan    *planner.Planner
	sched   *scheduler.Scheduler
	snapMgr *snapshot.Manager
	report  *progress.Reporter
}

// Deps lets callers substitute fakes for every external collaborator
// (list tool, copy tool, snapshot tool, log parser) without New reaching
// into exec.Command itself — tests build a Deps by hand; cmd/robocursed
// builds one from real binaries.
type Deps struct {
	Lister       profiler.Lister
	Launcher     copytool.Launcher
	LogParser    copytool.LogParser
	SnapProvider snapshot.Provider
	SessionID    string
	BaseCopyArgs []string
	Concurrency  int // planner fan-out width during Smart-mode descent
}

// New constructs an Orchestrator, wiring every subsystem from cfg and deps.
func New(cfg *rcconfig.Config, log *logging.Logger, deps Deps) (*Orchestrator, error) {
	prof := profiler.New(deps.Lister, cfg.ProfileCacheMaxAgeHours, log)
	pl := planner.New(prof, deps.Concurrency)

	sched, err := scheduler.New(cfg, deps.Launcher, deps.LogParser, log, deps.BaseCopyArgs)
	if err != nil {
		return nil, err
	}

	snapMgr := snapshot.New(deps.SnapProvider, cfg.TrackingFilePath, deps.SessionID, cfg, log)

	reporter := progress.New(sched, log, deps.SessionID, cfg.HealthFilePath,
		time.Duration(cfg.HealthCheckIntervalSeconds)*time.Second, cfg.EnableMetrics)
	sched.ProgressHook = reporter.UpdateProgressStats

	return &Orchestrator{
		cfg:     cfg,
		log:     log,
		prof:    prof,
		plan:    pl,
		sched:   sched,
		snapMgr: snapMgr,
		report:  reporter,
	}, nil
}

// RequestStop, RequestPause and RequestResume pass straight through to the
// scheduler — the orchestrator adds no state of its own for run control.
func (o *Orchestrator) RequestStop()   { o.sched.RequestStop() }
func (o *Orchestrator) RequestPause()  { o.sched.RequestPause() }
func (o *Orchestrator) RequestResume() { o.sched.RequestResume() }

// GetStatus passes through to the progress reporter.
func (o *Orchestrator) GetStatus() progress.Status { return o.report.GetStatus() }

// StartReplicationRun executes every profile in order (spec §2's top-level
// flow), sweeping orphaned snapshots once up front, and returns one
// ProfileResult per profile attempted. A circuit-breaker trip or an
// explicit stop ends the run early, and a ValidationError or ProfileError
// from planning ends it with that error; PreflightErrors, snapshot-creation
// failures and per-chunk failures are recorded on that profile's result and
// the run continues to the next profile (spec §7's propagation table).
func (o *Orchestrator) StartReplicationRun(ctx context.Context, profiles []*rcmodel.Profile, maxConcurrentJobs int) ([]*rcmodel.ProfileResult, error) {
	if maxConcurrentJobs < 1 || maxConcurrentJobs > 128 {
		return nil, rcerr.NewValidation("maxConcurrentJobs", "must be between 1 and 128")
	}

	if err := o.snapMgr.SweepOrphans(ctx); err != nil {
		o.log.Warnf("orphan sweep failed: %v", err)
	}

	var results []*rcmodel.ProfileResult
	for _, profile := range profiles {
		result, err := o.runProfile(ctx, profile, maxConcurrentJobs)
		if err != nil {
			// ProfileError / ValidationError surfaced by planning: per spec
			// §7's table, a ProfileError "propagates to the planner, which
			// fails the run with the same error" — read literally, that
			// fails the whole run, not just this profile.
			return results, err
		}
		results = append(results, result)

		if o.sched.StopRequested.Load() {
			break
		}
	}
	return results, nil
}

// runProfile drives one profile from preflight through CompleteCurrentProfile.
func (o *Orchestrator) runProfile(ctx context.Context, profile *rcmodel.Profile, maxConcurrentJobs int) (*rcmodel.ProfileResult, error) {
	start := time.Now()

	if err := o.preflight(profile); err != nil {
		return &rcmodel.ProfileResult{
			Name:           profile.Name,
			Status:         rcmodel.ResultFailed,
			PreflightError: err,
			Errors:         []string{err.Error()},
			Duration:       time.Since(start),
		}, nil
	}

	o.sched.SetMismatchSeverity(profile.MismatchSeverity)

	var chunks []*rcmodel.Chunk
	var planErr error
	if profile.UseSnapshot {
		planErr = o.snapMgr.WithSnapshot(ctx, profile.Source, func(view string) error {
			// Plan entirely against the snapshot-relative view: every
			// chunk's SourcePath and DestinationPath (via MapDest) come out
			// rooted under view/profile.Destination respectively, so the
			// scheduler launches copies reading from the frozen snapshot.
			scoped := *profile
			scoped.Source = view
			var err error
			chunks, err = o.plan.Plan(ctx, &scoped)
			return err
		})
	} else {
		chunks, planErr = o.plan.Plan(ctx, profile)
	}

	if planErr != nil {
		// A SnapshotError aborts this profile only (spec §7); everything
		// else from planning (ValidationError, ProfileError) fails the run.
		if _, isSnapshotErr := planErr.(*rcerr.SnapshotError); isSnapshotErr {
			return &rcmodel.ProfileResult{
				Name:           profile.Name,
				Status:         rcmodel.ResultFailed,
				PreflightError: planErr,
				Errors:         []string{planErr.Error()},
				Duration:       time.Since(start),
			}, nil
		}
		return nil, planErr
	}

	var totalBytes int64
	for _, c := range chunks {
		totalBytes += c.EstimatedSize
	}
	o.report.StartProfile(profile.Name, len(chunks), totalBytes)
	o.sched.EnqueueChunks(chunks)

	o.runTickLoop(ctx, maxConcurrentJobs)

	result := o.completeCurrentProfile(profile.Name, start)
	return result, nil
}

// preflight runs the pre-run checks a profile must pass before planning
// begins (spec §7's PreflightError: "pre-run check on a profile fails").
// Only empty Source/Destination are checked here; a Source that does not
// exist is rejected by the planner's validation, whose ValidationError fails
// the whole run.
func (o *Orchestrator) preflight(profile *rcmodel.Profile) error {
	if profile.Source == "" {
		return rcerr.NewPreflight(profile.Name, rcerr.NewValidation("Source", "must not be empty"))
	}
	if profile.Destination == "" {
		return rcerr.NewPreflight(profile.Name, rcerr.NewValidation("Destination", "must not be empty"))
	}
	return nil
}

// runTickLoop drives the scheduler until every chunk has reached a
// terminal queue (or the run stops), pacing itself at cfg.TickInterval and
// throttling health-file writes through the reporter on every iteration.
func (o *Orchestrator) runTickLoop(ctx context.Context, maxConcurrentJobs int) {
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			o.sched.RequestStop()
		}

		o.sched.Tick(ctx, maxConcurrentJobs)
		if err := o.report.WriteHealth(false); err != nil {
			o.log.Warnf("write health: %v", err)
		}

		if o.sched.StopRequested.Load() {
			return
		}
		if o.sched.ChunkQueue.Len() == 0 && o.sched.ActiveJobCount() == 0 {
			return
		}

		select {
		case <-ctx.Done():
			o.sched.RequestStop()
		case <-ticker.C:
		}
	}
}

// completeCurrentProfile implements CompleteCurrentProfile (spec §4.7/§8
// S7): it drains the three terminal queues, aggregates a ProfileResult, and
// resets the scheduler's per-profile counters. The result is built from the
// contents each Queue.Clear() returns, per the Open Question decision
// recorded in DESIGN.md.
//
// Status here follows §7's literal rule (any Failed chunk forces
// Status=Failed) rather than scenario S7's expected Status=Warning despite
// ChunksFailed=1 — that scenario conflicts with §7's own stated rule, and
// is treated as the inconsistent one; see DESIGN.md's Open Question entry.
func (o *Orchestrator) completeCurrentProfile(name string, start time.Time) *rcmodel.ProfileResult {
	completed := o.sched.CompletedChunks.Clear()
	warned := o.sched.WarningChunks.Clear()
	failed := o.sched.FailedChunks.Clear()

	var bytesCopied, filesCopied int64
	for _, c := range completed {
		bytesCopied += c.EstimatedSize
		filesCopied += c.EstimatedFiles
	}
	for _, c := range warned {
		bytesCopied += c.EstimatedSize
		filesCopied += c.EstimatedFiles
	}

	status := rcmodel.ResultSuccess
	switch {
	case len(failed) > 0:
		status = rcmodel.ResultFailed
	case len(warned) > 0:
		status = rcmodel.ResultWarning
	}

	result := &rcmodel.ProfileResult{
		Name:           name,
		Status:         status,
		ChunksComplete: len(completed) + len(warned),
		ChunksFailed:   len(failed),
		BytesCopied:    bytesCopied,
		FilesCopied:    filesCopied,
		FilesSkipped:   o.sched.TotalFilesSkipped.Load(),
		Duration:       time.Since(start),
		Errors:         o.sched.ErrorMessages(),
	}

	o.sched.ResetForProfile()
	return result
}
