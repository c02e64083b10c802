// Package logging wraps zap's SugaredLogger behind the level-gated,
// multi-sink API the orchestration core's components share: one *Logger
// instance, created once, passed explicitly to every component (no
// globals), safe for concurrent use from the tick loop, walkers, and the
// log-reader goroutine alike.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogSettings controls where logs go.
//
// Modes:
// - NoLogs=true  => console-only (stdout). No log files are created.
// - NoLogs=false => write logs to rotated files under LogDir.
type LogSettings struct {
	NoLogs bool
	LogDir string

	// MaxSizeMB/MaxBackups/MaxAgeDays configure lumberjack rotation for each
	// log file (main, count and error). Zero values fall back to 64 MB, 14
	// backups and 30 days (see New and rotator).
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger is a lightweight, goroutine-safe logger shared across the
// scheduler, profiler, planner and snapshot manager.
//
// Thread safety model:
//   - zap's core is safe for concurrent use by construction.
//   - levels/settings are set once at New() and never mutated afterward, so
//     no lock is needed to read them from multiple goroutines.
type Logger struct {
	ConfigDir string
	settings  LogSettings
	levels    map[string]bool

	sugar      *zap.SugaredLogger
	countSugar *zap.SugaredLogger // nil in NoLogs mode
	errSugar   *zap.SugaredLogger // nil in NoLogs mode

	closeOnce sync.Once
	closers   []func() error
}

// New initializes a Logger.
//
// Behavior:
//   - Reads configDir/logging.json (if present) to determine enabled log
//     levels; falls back to sensible defaults otherwise (see loadLevels).
//   - If settings.NoLogs is false, settings.LogDir must be set and is
//     created eagerly so permission problems surface at startup rather than
//     mid-run (important for unattended/scheduled invocations).
func New(configDir string, settings LogSettings) (*Logger, error) {
	levels, err := loadLevels(configDir)
	if err != nil {
		return nil, err
	}

	l := &Logger{ConfigDir: configDir, settings: settings, levels: levels}

	if settings.NoLogs {
		l.sugar = newSugar(zapcore.AddSync(os.Stdout))
		return l, nil
	}

	if settings.LogDir == "" {
		return nil, fmt.Errorf("log dir is empty (settings.LogDir)")
	}
	if err := os.MkdirAll(settings.LogDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	maxAge := settings.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 30
	}

	mainLJ := l.rotator("maintenance.log", settings, maxAge)
	countLJ := l.rotator("count.log", settings, maxAge)
	errLJ := l.rotator("errors.log", settings, maxAge)

	l.sugar = newSugar(zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout), zapcore.AddSync(mainLJ)))
	l.countSugar = newSugar(zapcore.AddSync(countLJ))
	l.errSugar = newSugar(zapcore.AddSync(errLJ))
	l.closers = append(l.closers, mainLJ.Close, countLJ.Close, errLJ.Close)

	return l, nil
}

func (l *Logger) rotator(name string, s LogSettings, maxAge int) *lumberjack.Logger {
	maxSize := s.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 64
	}
	maxBackups := s.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 14
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(s.LogDir, name),
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
	}
}

func newSugar(sink zapcore.WriteSyncer) *zap.SugaredLogger {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		MessageKey:   "msg",
		EncodeTime:   zapcore.TimeEncoderOfLayout("01/02/06 15:04:05"),
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		LineEnding:   zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
	})
	core := zapcore.NewCore(enc, sink, zapcore.DebugLevel)
	return zap.New(core).Sugar()
}

// Close flushes and releases the underlying rotated log files. Safe to call
// multiple times; a no-op in NoLogs mode.
func (l *Logger) Close() error {
	var first error
	l.closeOnce.Do(func() {
		_ = l.sugar.Sync()
		for _, c := range l.closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
	})
	return first
}

// loadLevels loads log-level enable/disable configuration from
// logging.json, defaulting to INFO/WARN/ERROR/SUCCESS/FATAL/COUNT enabled
// and DEBUG disabled (avoids noisy scheduled runs). Unknown levels fail
// open (are treated as enabled) so a new level introduced in code is never
// silently dropped before logging.json is updated.
func loadLevels(configDir string) (map[string]bool, error) {
	path := filepath.Join(configDir, "logging.json")

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{
				"DEBUG":   false,
				"COUNT":   true,
				"INFO":    true,
				"WARN":    true,
				"ERROR":   true,
				"SUCCESS": true,
				"FATAL":   true,
			}, nil
		}
		return nil, fmt.Errorf("stat logging config: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read logging config: %w", err)
	}

	var levels map[string]bool
	if err := json.Unmarshal(b, &levels); err != nil {
		return nil, fmt.Errorf("parse logging config: %w", err)
	}
	return levels, nil
}

// Enabled returns whether a log level is enabled (fail-open for unknown levels).
func (l *Logger) Enabled(level string) bool {
	level = strings.ToUpper(strings.TrimSpace(level))
	enabled, ok := l.levels[level]
	return !ok || enabled
}

// Log writes a single line at the given level. COUNT lines are duplicated
// to the count log; ERROR lines are duplicated to the error log — same
// fan-out the teacher's appendLine-per-file scheme used, now backed by
// rotated writers instead of raw os.OpenFile-per-line.
func (l *Logger) Log(level, msg string) {
	level = strings.ToUpper(strings.TrimSpace(level))
	if !l.Enabled(level) {
		return
	}

	switch level {
	case "DEBUG":
		l.sugar.Debug(msg)
	case "ERROR", "FATAL":
		l.sugar.Error(msg)
		if l.errSugar != nil {
			l.errSugar.Error(msg)
		}
	case "WARN":
		l.sugar.Warn(msg)
	case "COUNT":
		l.sugar.Info(msg)
		if l.countSugar != nil {
			l.countSugar.Info(msg)
		}
	default:
		l.sugar.Info(msg)
	}
}

func (l *Logger) Debug(msg string)   { l.Log("DEBUG", msg) }
func (l *Logger) Info(msg string)    { l.Log("INFO", msg) }
func (l *Logger) Warn(msg string)    { l.Log("WARN", msg) }
func (l *Logger) Error(msg string)   { l.Log("ERROR", msg) }
func (l *Logger) Success(msg string) { l.Log("SUCCESS", msg) }
func (l *Logger) Count(msg string)   { l.Log("COUNT", msg) }

// Fatal logs the message and exits the process with code 1.
//
// IMPORTANT: os.Exit(1) terminates immediately, so deferred calls do NOT
// run; the log files are flushed and closed (Close) just before exiting.
// Use only for unrecoverable startup states.
func (l *Logger) Fatal(msg string) {
	l.Log("FATAL", msg)
	_ = l.Close()
	os.Exit(1)
}

func (l *Logger) Debugf(format string, args ...any)   { l.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)    { l.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)    { l.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any)   { l.Error(fmt.Sprintf(format, args...)) }
func (l *Logger) Successf(format string, args ...any) { l.Success(fmt.Sprintf(format, args...)) }
func (l *Logger) Countf(format string, args ...any)   { l.Count(fmt.Sprintf(format, args...)) }
func (l *Logger) Fatalf(format string, args ...any)   { l.Fatal(fmt.Sprintf(format, args...)) }
