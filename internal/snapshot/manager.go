package snapshot

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"robocurse/internal/logging"
	"robocurse/internal/rcconfig"
	"robocurse/internal/rcerr"
	"robocurse/internal/rcmodel"
)

// Manager is the explicit handle for the Snapshot Lifecycle (spec §4.6),
// constructed once per process and shared across every profile in a run.
type Manager struct {
	provider  Provider
	tracking  *trackingStore
	sessionID string
	cfg       *rcconfig.Config
	log       *logging.Logger
}

// New constructs a Manager. sessionID identifies this process's run, used
// by the orphan sweep to tell "ours" from "a prior process's leftovers".
func New(provider Provider, trackingFilePath, sessionID string, cfg *rcconfig.Config, log *logging.Logger) *Manager {
	return &Manager{
		provider:  provider,
		tracking:  newTrackingStore(trackingFilePath),
		sessionID: sessionID,
		cfg:       cfg,
		log:       log,
	}
}

// SweepOrphans implements the crash-resilient orphan sweep (spec §4.6): any
// tracked record whose SessionID isn't this process's is a leftover from a
// process that no longer exists, so its snapshot (if the OS still has it)
// and its tracking record are both deleted.
func (m *Manager) SweepOrphans(ctx context.Context) error {
	records, err := m.tracking.all()
	if err != nil {
		return err
	}

	existing, err := m.provider.ListExisting(ctx)
	if err != nil {
		return rcerr.NewSnapshot("list", err)
	}
	existingSet := make(map[string]bool, len(existing))
	for _, id := range existing {
		existingSet[id] = true
	}

	for _, rec := range records {
		if rec.SessionID == m.sessionID {
			continue
		}
		if rec.JunctionPath != "" {
			if err := m.provider.RemoveJunction(ctx, rec.JunctionPath); err != nil {
				m.log.Warnf("orphan sweep: remove junction %s: %v", rec.JunctionPath, err)
			}
		}
		if existingSet[rec.ShadowID] {
			if err := m.provider.Delete(ctx, rec.ShadowID); err != nil {
				m.log.Warnf("orphan sweep: delete snapshot %s: %v", rec.ShadowID, err)
			}
		}
		if err := m.tracking.remove(rec.ShadowID); err != nil {
			m.log.Warnf("orphan sweep: untrack %s: %v", rec.ShadowID, err)
		}
	}
	return nil
}

// Body is the caller-supplied function run with a snapshot-relative path
// substituted for sourcePath.
type Body func(snapshotView string) error

// WithSnapshot implements the scoped-acquisition guard (spec §4.6 and
// Design Notes' "strict resource guard"): it creates a snapshot, invokes
// body with the rewritten path, and releases the snapshot on every exit
// path including body returning an error. Release is idempotent.
func (m *Manager) WithSnapshot(ctx context.Context, sourcePath string, body Body) error {
	volume, server, share, rest, isUNC, err := splitSourcePath(sourcePath)
	if err != nil {
		return err
	}

	var rec rcmodel.SnapshotRecord
	if err := m.createWithRetry(ctx, volumeForCreate(volume, server), &rec); err != nil {
		return rcerr.NewSnapshot("create", err)
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		m.release(ctx, rec)
	}
	defer release()

	var view string
	if isUNC {
		junctionName := ".robocurse-vss-" + uuid.NewString()
		junctionPath := `\\` + server + `\` + share + `\` + junctionName
		if err := m.provider.CreateJunction(ctx, junctionPath, rec.ShadowPath); err != nil {
			return rcerr.NewSnapshot("create", err)
		}
		rec.JunctionPath = junctionPath
		rec.ServerName = server
		rec.ShareName = share
		view = junctionPath + rest
	} else {
		view = rec.ShadowPath + rest
	}

	rec.SourceVolume = volume
	rec.SessionID = m.sessionID
	rec.CreatedAt = now()
	if err := m.tracking.add(rec); err != nil {
		m.log.Warnf("snapshot %s: failed to persist tracking record: %v", rec.ShadowID, err)
	}

	return body(view)
}

func (m *Manager) createWithRetry(ctx context.Context, volume string, rec *rcmodel.SnapshotRecord) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(m.cfg.SnapshotRetryDelaySeconds) * time.Second
	b.Multiplier = 1 // fixed delay between attempts, not exponential (spec §4.6: "RetryDelaySeconds between attempts")
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0

	operation := func() error {
		id, path, err := m.provider.Create(ctx, volume)
		if err != nil {
			return err
		}
		rec.ShadowID = id
		rec.ShadowPath = path
		return nil
	}
	return backoff.Retry(operation, backoff.WithMaxRetries(b, uint64(m.cfg.SnapshotRetryCount)))
}

// release removes any junction, deletes the OS snapshot, and untracks it.
// Cleanup failure after a successful body does not mask that success — it
// is logged at Warning (spec §4.6).
func (m *Manager) release(ctx context.Context, rec rcmodel.SnapshotRecord) {
	if rec.JunctionPath != "" {
		if err := m.provider.RemoveJunction(ctx, rec.JunctionPath); err != nil {
			m.log.Warnf("snapshot %s: failed to remove junction %s: %v", rec.ShadowID, rec.JunctionPath, err)
		}
	}
	if rec.ShadowID != "" {
		if err := m.provider.Delete(ctx, rec.ShadowID); err != nil {
			m.log.Warnf("snapshot %s: failed to delete: %v", rec.ShadowID, err)
		}
		if err := m.tracking.remove(rec.ShadowID); err != nil {
			m.log.Warnf("snapshot %s: failed to untrack: %v", rec.ShadowID, err)
		}
	}
}

func now() time.Time { return time.Now() }

// volumeForCreate picks what to hand the provider's Create: a bare volume
// for a local path, or the server name for a UNC path (the snapshot is
// created on the remote server out-of-band, per spec §4.6).
func volumeForCreate(volume, server string) string {
	if server != "" {
		return server
	}
	return volume
}

// splitSourcePath implements both the local and remote path-rewrite
// preconditions (spec §4.6): for a local path it extracts the volume
// (accepting lowercase drive letters and a trailing separator, rejecting
// UNC); for a UNC path it extracts {server, share, rest}, any of which
// missing is an error.
func splitSourcePath(p string) (volume, server, share, rest string, isUNC bool, err error) {
	norm := rcmodel.NormalizePath(p)

	if strings.HasPrefix(norm, `\\`) {
		parts := strings.SplitN(strings.TrimPrefix(norm, `\\`), `\`, 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return "", "", "", "", true, rcerr.NewValidation("sourcePath", "UNC path missing server or share: "+p)
		}
		server = parts[0]
		share = parts[1]
		if len(parts) == 3 {
			rest = `\` + parts[2]
		}
		return "", server, share, rest, true, nil
	}

	if len(norm) < 2 || norm[1] != ':' {
		return "", "", "", "", false, rcerr.NewValidation("sourcePath", "not a drive-letter or UNC path: "+p)
	}
	drive := strings.ToUpper(norm[:1])
	volume = drive + ":"
	rest = norm[2:]
	return volume, "", "", rest, false, nil
}
