// Package copytool supervises the external copy-tool binary: launching one
// child process per chunk with a sanitized argument vector and a per-chunk
// log file, then, once the scheduler observes the process has exited,
// interpreting its exit code and log into a chunk result (spec §4.4).
//
// Grounded on the teacher's os/exec usage pattern and its
// copyfileStream temp-file-then-rename durability idiom (backup.go), here
// applied to a subprocess's redirected log output instead of a copied file.
package copytool

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"robocurse/internal/logging"
	"robocurse/internal/rcerr"
	"robocurse/internal/rcmodel"
)

// Launcher starts a child copy process for one chunk. Implementations must
// not block waiting for the process to exit (spec §5: the tick loop never
// calls a blocking Wait).
type Launcher interface {
	StartChunkJob(ctx context.Context, chunk *rcmodel.Chunk, baseArgs []string) (*rcmodel.Job, error)
}

// ExecLauncher launches a real copy-tool binary via os/exec.
type ExecLauncher struct {
	BinaryPath string
	LogDir     string
	Log        *logging.Logger
}

// StartChunkJob implements Launcher (spec §4.4). Returns (nil, err) on any
// launch failure, after logging — callers that only care about the null
// contract can ignore the error and check for a nil Job.
func (l *ExecLauncher) StartChunkJob(ctx context.Context, chunk *rcmodel.Chunk, baseArgs []string) (*rcmodel.Job, error) {
	args := make([]string, 0, len(baseArgs)+len(chunk.ExtraCopyArgs))
	args = append(args, baseArgs...)
	args = append(args, chunk.ExtraCopyArgs...)

	if err := Sanitize(args); err != nil {
		l.Log.Errorf("chunk %d: rejected copy-tool args: %v", chunk.ChunkID, err)
		return nil, err
	}

	fullArgs := append([]string{chunk.SourcePath, chunk.DestinationPath}, args...)

	logPath := l.logPathFor(chunk.ChunkID)
	tmpPath := logPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		l.Log.Errorf("chunk %d: failed to open log file %s: %v", chunk.ChunkID, tmpPath, err)
		return nil, rcerr.NewLaunch(chunk.ChunkID, err)
	}

	cmd := exec.Command(l.BinaryPath, fullArgs...)
	cmd.Stdout = f
	cmd.Stderr = f

	if err := cmd.Start(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		l.Log.Errorf("chunk %d: launch failed: %v", chunk.ChunkID, err)
		return nil, rcerr.NewLaunch(chunk.ChunkID, err)
	}

	// The child inherited a duplicated handle to f when the process started;
	// closing our copy here doesn't affect its redirected output and lets us
	// avoid threading an *os.File through the scheduler's Job bookkeeping.
	_ = f.Close()

	chunk.Status = rcmodel.StatusRunning
	return &rcmodel.Job{
		Process:   cmd.Process,
		Chunk:     chunk,
		StartTime: time.Now(),
		LogPath:   logPath,
	}, nil
}

func (l *ExecLauncher) logPathFor(chunkID int64) string {
	return filepath.Join(l.LogDir, "chunk-"+strconv.FormatInt(chunkID, 10)+".log")
}
