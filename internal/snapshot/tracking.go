package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"robocurse/internal/rcmodel"
)

// trackingStore persists []rcmodel.SnapshotRecord as a JSON array, guarding
// every read-modify-write with an exclusive OS file lock (spec §4.6) and
// making every write durable via the teacher's temp-file-then-rename
// pattern (backup.go's copyfileStream), generalized here from copying a
// file's bytes to serializing a JSON document.
type trackingStore struct {
	path     string
	lockPath string
}

func newTrackingStore(path string) *trackingStore {
	return &trackingStore{path: path, lockPath: path + ".lock"}
}

// withLock runs fn while holding an exclusive lock spanning the read and
// the write, so two concurrent processes never interleave a
// read-modify-write cycle.
func (t *trackingStore) withLock(fn func(records []rcmodel.SnapshotRecord) ([]rcmodel.SnapshotRecord, error)) error {
	fl := flock.New(t.lockPath)
	if err := fl.Lock(); err != nil {
		return errors.Wrap(err, "tracking file lock")
	}
	defer fl.Unlock()

	records, err := t.readLocked()
	if err != nil {
		return err
	}

	updated, err := fn(records)
	if err != nil {
		return err
	}

	return t.writeLocked(updated)
}

func (t *trackingStore) readLocked() ([]rcmodel.SnapshotRecord, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read tracking file")
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []rcmodel.SnapshotRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(err, "parse tracking file")
	}
	return records, nil
}

func (t *trackingStore) writeLocked(records []rcmodel.SnapshotRecord) error {
	if records == nil {
		records = []rcmodel.SnapshotRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal tracking file")
	}

	tmp := t.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return errors.Wrap(err, "create tracking file dir")
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write tracking file temp")
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return errors.Wrap(err, "rename tracking file temp")
	}
	return nil
}

// add appends rec to the tracking file (spec §4.6: "read, append, write").
func (t *trackingStore) add(rec rcmodel.SnapshotRecord) error {
	return t.withLock(func(records []rcmodel.SnapshotRecord) ([]rcmodel.SnapshotRecord, error) {
		return append(records, rec), nil
	})
}

// remove filters out shadowID (spec §4.6: "read, filter out the ShadowId, write").
func (t *trackingStore) remove(shadowID string) error {
	return t.withLock(func(records []rcmodel.SnapshotRecord) ([]rcmodel.SnapshotRecord, error) {
		out := records[:0]
		for _, r := range records {
			if r.ShadowID != shadowID {
				out = append(out, r)
			}
		}
		return out, nil
	})
}

// all returns every tracked record (read-only, used by the orphan sweep).
func (t *trackingStore) all() ([]rcmodel.SnapshotRecord, error) {
	fl := flock.New(t.lockPath)
	if err := fl.Lock(); err != nil {
		return nil, errors.Wrap(err, "tracking file lock")
	}
	defer fl.Unlock()
	return t.readLocked()
}
