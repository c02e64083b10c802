// Package profiler implements the Directory Profiler (spec §4.1): it
// estimates a directory's size/file count by delegating listing to the
// external copy tool in list-only mode and parsing its line-oriented
// output, with a normalized-path cache in front of repeated calls.
package profiler

import (
	"context"
	"os/exec"
	"sort"
	"time"

	"robocurse/internal/logging"
	"robocurse/internal/rcerr"
	"robocurse/internal/rcmodel"
)

// Lister invokes the external copy tool in list-only mode and returns its
// raw stdout. Injected so tests can substitute a fake without spawning a
// real process — the copy-tool binary itself is an out-of-scope black box
// (spec §1).
type Lister interface {
	List(ctx context.Context, path string) (output string, err error)
}

// ExecLister shells out to a real copy-tool binary for listing.
type ExecLister struct {
	BinaryPath string
	// ListArgs follow the path argument; callers configure the switches their copy tool needs for a recursive,
	// size-annotated, no-op listing (e.g. "/L /E /BYTES /NJH /NJS").
	ListArgs []string
}

func (e *ExecLister) List(ctx context.Context, path string) (string, error) {
	args := append([]string{path}, e.ListArgs...)
	cmd := exec.CommandContext(ctx, e.BinaryPath, args...)
	out, err := cmd.CombinedOutput()
	// A non-zero exit status is not treated as a failure: list-only exit
	// codes are copy-tool bitsets, not errors, and no copy occurred, so the
	// output is returned as-is. Only a failure to run the tool is returned
	// (Profile wraps it as a ProfileError).
	if err != nil {
		if _, isExit := err.(*exec.ExitError); !isExit {
			return "", err
		}
	}
	return string(out), nil
}

// Profiler profiles directories and lists their immediate children,
// caching results keyed by normalized path (spec §4.1).
type Profiler struct {
	lister Lister
	cache  *cache
	log    *logging.Logger
}

// New constructs a Profiler. maxAgeHours bounds cache freshness (spec §3
// default 24); log may be nil only in tests that don't exercise logging.
func New(lister Lister, maxAgeHours int, log *logging.Logger) *Profiler {
	return &Profiler{lister: lister, cache: newCache(maxAgeHours), log: log}
}

// Profile returns the DirectoryProfile for path, consulting the cache first
// when useCache is true. Fails with ProfileError if the list tool fails.
func (p *Profiler) Profile(ctx context.Context, path string, useCache bool) (rcmodel.DirectoryProfile, error) {
	if useCache {
		if dp, ok := p.cache.get(path); ok {
			return dp, nil
		}
	}

	out, err := p.lister.List(ctx, path)
	if err != nil {
		return rcmodel.DirectoryProfile{}, rcerr.NewProfile(path, err)
	}

	res := parseListOutput(out)
	dp := rcmodel.DirectoryProfile{
		Path:      path,
		TotalSize: res.TotalSize,
		FileCount: res.FileCount,
		DirCount:  res.DirCount,
	}
	if dp.FileCount > 0 {
		dp.AvgFileSize = dp.TotalSize / dp.FileCount
	}
	dp.LastScanned = time.Now()

	p.cache.put(path, dp)
	return dp, nil
}

// ListChildDirectories returns the immediate (non-recursive) subdirectories
// of path, derived from the same list-only output as Profile but without
// caching: the planner calls this once per directory during descent and
// the result is not a DirectoryProfile.
func (p *Profiler) ListChildDirectories(ctx context.Context, path string) ([]string, error) {
	out, err := p.lister.List(ctx, path)
	if err != nil {
		return nil, rcerr.NewProfile(path, err)
	}
	dirs := childDirsFromOutput(path, out)
	sort.Strings(dirs)
	return dirs, nil
}

// ListFilesAtLevel returns files directly inside path (not recursive, not
// subdirectories), used by the planner's files-at-level chunk emission
// (spec §4.2 step 4).
func (p *Profiler) ListFilesAtLevel(ctx context.Context, path string) ([]FileInfo, error) {
	out, err := p.lister.List(ctx, path)
	if err != nil {
		return nil, rcerr.NewProfile(path, err)
	}
	return filesAtLevelFromOutput(path, out), nil
}

// FileInfo is a minimal file record returned by ListFilesAtLevel.
type FileInfo struct {
	Name string
	Size int64
}

func (p *Profiler) GetStatistics() Statistics { return p.cache.statistics() }
func (p *Profiler) Clear()                    { p.cache.clear() }
func (p *Profiler) ResetStatistics()          { p.cache.resetStatistics() }
