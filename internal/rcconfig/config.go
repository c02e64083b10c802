// Package rcconfig holds the orchestrator's ambient settings: operator-facing
// knobs for the process itself (binary paths, file locations, tick cadence,
// retry/circuit-breaker defaults). This is deliberately not a Profile loader
// — spec.md names "configuration file loading" as an out-of-scope external
// collaborator, so Profiles are always constructed in Go by the caller.
// Config is instead built with functional options, the way aistore's cmn
// package and gastrolog's service configs are constructed.
package rcconfig

import "time"

// Config is the orchestrator's ambient settings (spec §6/§9).
type Config struct {
	// CopyToolPath is the external copy-tool binary (spec's "sole subject of
	// orchestration" collaborator; never invoked with unsanitized args).
	CopyToolPath string
	// SnapshotToolPath is the external volume-shadow-copy-equivalent binary.
	SnapshotToolPath string

	// LogDir holds per-chunk copy-tool log files, one per run.
	LogDir string
	// TrackingFilePath is the persisted JSON array of SnapshotRecord.
	TrackingFilePath string
	// HealthFilePath is the JSON health document (spec §4.7).
	HealthFilePath string

	// TickInterval is the scheduler's tick cadence (spec §4.3, typical 500ms-1s).
	TickInterval time.Duration
	// HealthCheckIntervalSeconds throttles WriteHealth (spec §4.7).
	HealthCheckIntervalSeconds int

	// MaxChunkRetries caps RetryCount (spec §3, default 3).
	MaxChunkRetries int
	// RetryBaseSeconds/RetryMultiplier/RetryMaxSeconds parametrize backoff
	// (spec §4.5 defaults: 5, 2, 300).
	RetryBaseSeconds  int
	RetryMultiplier   float64
	RetryMaxSeconds   int
	CircuitBreakerThreshold int64

	// SnapshotRetryCount/SnapshotRetryDelaySeconds parametrize snapshot
	// creation retry (spec §4.6 defaults: 3, implementation-defined).
	SnapshotRetryCount       int
	SnapshotRetryDelaySeconds int

	// ProfileCacheMaxAgeHours bounds DirectoryProfile cache freshness
	// (spec §3 default 24).
	ProfileCacheMaxAgeHours int

	// EnableMetrics toggles the additive Prometheus gauges (SPEC_FULL §4.7).
	EnableMetrics bool
}

// Option mutates a Config during construction.
type Option func(*Config)

// New builds a Config with spec-mandated defaults, then applies opts.
func New(opts ...Option) *Config {
	c := &Config{
		LogDir:                    "logs",
		TrackingFilePath:          "robocurse-snapshots.json",
		HealthFilePath:            "robocurse-health.json",
		TickInterval:              750 * time.Millisecond,
		HealthCheckIntervalSeconds: 5,
		MaxChunkRetries:           3,
		RetryBaseSeconds:          5,
		RetryMultiplier:           2,
		RetryMaxSeconds:           300,
		CircuitBreakerThreshold:   10,
		SnapshotRetryCount:        3,
		SnapshotRetryDelaySeconds: 10,
		ProfileCacheMaxAgeHours:   24,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithCopyTool(path string) Option        { return func(c *Config) { c.CopyToolPath = path } }
func WithSnapshotTool(path string) Option    { return func(c *Config) { c.SnapshotToolPath = path } }
func WithLogDir(dir string) Option           { return func(c *Config) { c.LogDir = dir } }
func WithTrackingFile(path string) Option    { return func(c *Config) { c.TrackingFilePath = path } }
func WithHealthFile(path string) Option      { return func(c *Config) { c.HealthFilePath = path } }
func WithTickInterval(d time.Duration) Option { return func(c *Config) { c.TickInterval = d } }
func WithMetrics(enabled bool) Option        { return func(c *Config) { c.EnableMetrics = enabled } }
