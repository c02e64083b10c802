// Package planner implements the Directory Profiler's companion, the Chunk
// Planner (spec §4.2): it walks a source tree via the profiler and emits a
// flat, ordered list of disjoint Chunks whose union covers the tree.
package planner

import (
	"context"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"robocurse/internal/profiler"
	"robocurse/internal/rcerr"
	"robocurse/internal/rcmodel"
)

// Planner turns a Profile into an ordered chunk list, using a Profiler to
// size directories and a bounded fan-out to profile siblings concurrently
// during recursive descent — legitimate here because planning happens once,
// before the tick loop starts, and is not the hot path the scheduler
// serializes (grounded on restic's/azcopy's bounded-fanout directory walks).
type Planner struct {
	prof        *profiler.Profiler
	concurrency int
	exists      func(string) bool
}

// New constructs a Planner. concurrency bounds how many sibling directories
// are profiled at once during Smart-mode descent; values <= 0 default to 4.
func New(prof *profiler.Profiler, concurrency int) *Planner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Planner{prof: prof, concurrency: concurrency, exists: defaultExists}
}

func defaultExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Plan implements the Chunk Planner contract (spec §4.2).
func (pl *Planner) Plan(ctx context.Context, profile *rcmodel.Profile) ([]*rcmodel.Chunk, error) {
	if err := pl.validate(profile); err != nil {
		return nil, err
	}

	counter := &chunkIDCounter{}

	if profile.ScanMode == rcmodel.ScanFlat {
		dp, err := pl.prof.Profile(ctx, profile.Source, true)
		if err != nil {
			return nil, err
		}
		chunk := &rcmodel.Chunk{
			ChunkID:         counter.nextID(),
			SourcePath:      profile.Source,
			DestinationPath: MapDest(profile.Source, profile.Source, profile.Destination),
			EstimatedSize:   dp.TotalSize,
			EstimatedFiles:  dp.FileCount,
			Kind:            rcmodel.KindRecursive,
			Status:          rcmodel.StatusPending,
		}
		return []*rcmodel.Chunk{chunk}, nil
	}

	d := &descender{
		pl:         pl,
		profile:    profile,
		counter:    counter,
	}
	if err := d.descend(ctx, profile.Source, 0); err != nil {
		return nil, err
	}
	return d.chunks, nil
}

func (pl *Planner) validate(p *rcmodel.Profile) error {
	if p.Source == "" {
		return rcerr.NewValidation("Source", "must not be empty")
	}
	if !pl.exists(p.Source) {
		return rcerr.NewValidation("Source", "does not exist: "+p.Source)
	}
	if p.Destination == "" {
		return rcerr.NewValidation("Destination", "must not be empty")
	}
	if p.ChunkMaxBytes <= p.ChunkMinBytes {
		return rcerr.NewValidation("ChunkMaxBytes", "must be greater than ChunkMinBytes")
	}
	if p.ChunkMaxFiles < 1 {
		return rcerr.NewValidation("ChunkMaxFiles", "must be >= 1")
	}
	if p.ChunkMaxDepth < 0 {
		return rcerr.NewValidation("ChunkMaxDepth", "must be >= 0")
	}
	return nil
}

// descender holds the mutable state of one Smart-mode Plan() call: the
// accumulated chunk list (mutex-guarded, since sibling directories are
// profiled concurrently) and the shared chunk id counter.
type descender struct {
	pl      *Planner
	profile *rcmodel.Profile
	counter *chunkIDCounter

	mu     sync.Mutex
	chunks []*rcmodel.Chunk
}

// emit assigns c's ChunkID and appends it to the accumulated list under the
// same lock. Sibling directories are profiled concurrently (descend fans
// out via errgroup), so id assignment and append must be one critical
// section, not two: assigning an id in one call and appending in a
// separate, later-acquired lock would let a goroutine that drew a higher
// id race ahead of one that drew a lower id, violating the "ids increase
// in emission order" contract.
func (d *descender) emit(c *rcmodel.Chunk) {
	d.mu.Lock()
	c.ChunkID = d.counter.nextID()
	d.chunks = append(d.chunks, c)
	d.mu.Unlock()
}

// descend implements the recursive-descent contract (spec §4.2 steps 1-4)
// for directory path at depth k.
func (d *descender) descend(ctx context.Context, path string, depth int) error {
	dp, err := d.pl.prof.Profile(ctx, path, true)
	if err != nil {
		return err
	}

	children, err := d.pl.prof.ListChildDirectories(ctx, path)
	if err != nil {
		return err
	}

	accept := depth >= d.profile.ChunkMaxDepth ||
		dp.TotalSize <= d.profile.ChunkMinBytes ||
		(dp.TotalSize <= d.profile.ChunkMaxBytes && dp.FileCount <= int64(d.profile.ChunkMaxFiles)) ||
		len(children) == 0

	if accept {
		d.emit(&rcmodel.Chunk{
			SourcePath:      path,
			DestinationPath: MapDest(path, d.profile.Source, d.profile.Destination),
			EstimatedSize:   dp.TotalSize,
			EstimatedFiles:  dp.FileCount,
			Kind:            rcmodel.KindRecursive,
			Status:          rcmodel.StatusPending,
		})
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.pl.concurrency)
	for _, child := range children {
		g.Go(func() error { return d.descend(gctx, child, depth+1) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	files, err := d.pl.prof.ListFilesAtLevel(ctx, path)
	if err != nil {
		return err
	}
	if len(files) > 0 {
		var size int64
		for _, f := range files {
			size += f.Size
		}
		d.emit(&rcmodel.Chunk{
			SourcePath:      path,
			DestinationPath: MapDest(path, d.profile.Source, d.profile.Destination),
			EstimatedSize:   size,
			EstimatedFiles:  int64(len(files)),
			Kind:            rcmodel.KindFilesOnly,
			ExtraCopyArgs:   []string{"/LEV:1"},
			Status:          rcmodel.StatusPending,
		})
	}
	return nil
}
