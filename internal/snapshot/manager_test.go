package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"robocurse/internal/logging"
	"robocurse/internal/rcconfig"
	"robocurse/internal/rcmodel"
)

func recordFor(shadowID, sessionID string) rcmodel.SnapshotRecord {
	return rcmodel.SnapshotRecord{ShadowID: shadowID, SessionID: sessionID, ShadowPath: `\\?\GLOBALROOT\fake`}
}

type fakeProvider struct {
	nextID      int
	created     map[string]bool
	junctions   map[string]bool
	failCreate  int // number of times Create should fail before succeeding
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{created: map[string]bool{}, junctions: map[string]bool{}}
}

func (f *fakeProvider) Create(ctx context.Context, volume string) (string, string, error) {
	if f.failCreate > 0 {
		f.failCreate--
		return "", "", errors.New("transient create failure")
	}
	f.nextID++
	id := "shadow-" + itoaSnap(f.nextID)
	path := `\\?\GLOBALROOT\Device\VolumeShadowCopy` + itoaSnap(f.nextID)
	f.created[id] = true
	return id, path, nil
}

func (f *fakeProvider) Delete(ctx context.Context, shadowID string) error {
	delete(f.created, shadowID)
	return nil
}

func (f *fakeProvider) CreateJunction(ctx context.Context, junctionPath, target string) error {
	f.junctions[junctionPath] = true
	return nil
}

func (f *fakeProvider) RemoveJunction(ctx context.Context, junctionPath string) error {
	delete(f.junctions, junctionPath)
	return nil
}

func (f *fakeProvider) ListExisting(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.created))
	for id := range f.created {
		ids = append(ids, id)
	}
	return ids, nil
}

func itoaSnap(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(t.TempDir(), logging.LogSettings{NoLogs: true})
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	return log
}

func newTestManager(t *testing.T, fp *fakeProvider) *Manager {
	t.Helper()
	cfg := rcconfig.New()
	trackingPath := filepath.Join(t.TempDir(), "tracking.json")
	return New(fp, trackingPath, "session-1", cfg, testLogger(t))
}

// TestWithSnapshot_LocalPath_ScopedRelease covers invariant #5.
func TestWithSnapshot_LocalPath_ScopedRelease(t *testing.T) {
	fp := newFakeProvider()
	mgr := newTestManager(t, fp)

	var sawView string
	err := mgr.WithSnapshot(context.Background(), `C:\Data\Sub`, func(view string) error {
		sawView = view
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sawView == "" {
		t.Fatal("expected a rewritten snapshot view path")
	}
	if len(fp.created) != 0 {
		t.Fatalf("expected snapshot deleted after WithSnapshot returns, got %d still tracked", len(fp.created))
	}

	records, err := mgr.tracking.all()
	if err != nil {
		t.Fatalf("unexpected tracking read error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected tracking file empty after release, got %d records", len(records))
	}
}

// TestWithSnapshot_ReleasesOnBodyError covers invariant #5's "regardless of
// success or failure of the body" clause.
func TestWithSnapshot_ReleasesOnBodyError(t *testing.T) {
	fp := newFakeProvider()
	mgr := newTestManager(t, fp)

	bodyErr := errors.New("body failed")
	err := mgr.WithSnapshot(context.Background(), `C:\Data`, func(view string) error {
		return bodyErr
	})
	if !errors.Is(err, bodyErr) {
		t.Fatalf("want body error propagated, got %v", err)
	}
	if len(fp.created) != 0 {
		t.Fatal("expected snapshot released even though body returned an error")
	}
}

func TestWithSnapshot_UNCPath_CreatesJunction(t *testing.T) {
	fp := newFakeProvider()
	mgr := newTestManager(t, fp)

	var sawView string
	err := mgr.WithSnapshot(context.Background(), `\\server\share\sub`, func(view string) error {
		sawView = view
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fp.junctions) != 0 {
		t.Fatal("expected junction removed after release")
	}
	if sawView == "" {
		t.Fatal("expected a rewritten junction-relative view path")
	}
}

func TestCreateWithRetry_RetriesThenSucceeds(t *testing.T) {
	fp := newFakeProvider()
	fp.failCreate = 2
	cfg := rcconfig.New()
	cfg.SnapshotRetryCount = 3
	cfg.SnapshotRetryDelaySeconds = 0
	mgr := New(fp, filepath.Join(t.TempDir(), "tracking.json"), "session-1", cfg, testLogger(t))

	called := false
	err := mgr.WithSnapshot(context.Background(), `C:\Data`, func(view string) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success after transient create failures, got %v", err)
	}
	if !called {
		t.Fatal("expected body to run")
	}
}

func TestSweepOrphans_RemovesOtherSessionRecords(t *testing.T) {
	fp := newFakeProvider()
	mgr := newTestManager(t, fp)

	// Seed a tracked record from a different (dead) session whose snapshot
	// still exists according to the provider.
	fp.created["shadow-dead"] = true
	if err := mgr.tracking.add(recordFor("shadow-dead", "dead-session")); err != nil {
		t.Fatalf("failed to seed tracking record: %v", err)
	}

	if err := mgr.SweepOrphans(context.Background()); err != nil {
		t.Fatalf("unexpected sweep error: %v", err)
	}

	if fp.created["shadow-dead"] {
		t.Fatal("expected orphaned snapshot deleted by sweep")
	}
	records, _ := mgr.tracking.all()
	if len(records) != 0 {
		t.Fatalf("expected orphan record untracked, got %d remaining", len(records))
	}
}
