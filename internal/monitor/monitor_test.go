package monitor_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hopper/internal/editorial"
	"hopper/internal/logging"
	"hopper/internal/monitor"
	"hopper/internal/notify"
	"hopper/internal/store"
	"hopper/internal/testsupport"
)

// parkingEditorial blocks the first journal lookup until released and
// records the context state observed when it wakes up.
type parkingEditorial struct {
	entered chan struct{}
	release chan struct{}

	enterOnce  sync.Once
	recordOnce sync.Once
	lookupErr  error
}

func newParkingEditorial() *parkingEditorial {
	return &parkingEditorial{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *parkingEditorial) JournalByISSN(ctx context.Context, _ string) (*editorial.Journal, error) {
	p.enterOnce.Do(func() { close(p.entered) })
	select {
	case <-p.release:
	case <-ctx.Done():
	}
	p.recordOnce.Do(func() { p.lookupErr = ctx.Err() })
	return nil, nil
}

func (p *parkingEditorial) FindIssue(context.Context, string, editorial.IssueCriteria) (*editorial.Issue, error) {
	return nil, nil
}

func (p *parkingEditorial) IsRegisteredDOI(context.Context, string) (bool, error) {
	return false, nil
}

func TestMonitorProcessesDroppedPackage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	mon := monitor.New(cfg, st, notify.NewService(cfg, logger), nil, nil, logger)
	if err := mon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mon.Stop()

	inbox := cfg.Paths.WatchDirs[0]
	testsupport.BuildArticleArchive(t, filepath.Join(inbox, "pkg.zip"), testsupport.ArticleXMLOptions{})

	attempt := waitForAttempt(t, st, 10*time.Second)

	// No editorial client is wired, so the pipeline degrades the attempt
	// and marks the original failed.
	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := os.Stat(filepath.Join(inbox, "failed_pkg.zip")); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("original was not marked failed")
		}
		time.Sleep(50 * time.Millisecond)
	}

	reloaded, err := st.GetAttempt(context.Background(), attempt.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if reloaded.IsValid {
		t.Error("attempt should have degraded without an editorial client")
	}
}

func TestMonitorIgnoresNonArchives(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	mon := monitor.New(cfg, st, notify.NewService(cfg, logger), nil, nil, logger)
	if err := mon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mon.Stop()

	inbox := cfg.Paths.WatchDirs[0]
	if err := os.WriteFile(filepath.Join(inbox, "note.txt"), []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(500 * time.Millisecond)
	attempts, err := st.ListAttempts(context.Background())
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Fatalf("non-archive produced %d attempts", len(attempts))
	}
}

func TestStopLetsInFlightItemFinish(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	parked := newParkingEditorial()
	mon := monitor.New(cfg, st, notify.NewService(cfg, logger), parked, nil, logger)
	if err := mon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	inbox := cfg.Paths.WatchDirs[0]
	testsupport.BuildArticleArchive(t, filepath.Join(inbox, "pkg.zip"), testsupport.ArticleXMLOptions{})

	select {
	case <-parked.entered:
	case <-time.After(10 * time.Second):
		t.Fatal("worker never reached the editorial lookup")
	}

	stopped := make(chan struct{})
	go func() {
		mon.Stop()
		close(stopped)
	}()

	// Stop must wait for the parked item, not abandon it.
	select {
	case <-stopped:
		t.Fatal("Stop returned while an item was still in flight")
	case <-time.After(200 * time.Millisecond):
	}

	close(parked.release)

	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		t.Fatal("Stop did not return after the item finished")
	}

	if parked.lookupErr != nil {
		t.Fatalf("shutdown cancelled the in-flight lookup: %v", parked.lookupErr)
	}

	// The item ran its full teardown: no journal resolved, so the attempt
	// degraded and the original was marked failed.
	if _, err := os.Stat(filepath.Join(inbox, "failed_pkg.zip")); err != nil {
		t.Errorf("in-flight item did not run to completion: %v", err)
	}
	attempts, err := st.ListAttempts(context.Background())
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].IsValid {
		t.Fatalf("expected one degraded attempt, got %+v", attempts)
	}
}

func TestMonitorStopIsSynchronous(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	mon := monitor.New(cfg, st, notify.NewService(cfg, logger), nil, nil, logger)
	if err := mon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		mon.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	// Stop is safe to call again.
	mon.Stop()
}

func waitForAttempt(t *testing.T, st *store.Store, timeout time.Duration) *store.Attempt {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		attempts, err := st.ListAttempts(context.Background())
		if err != nil {
			t.Fatalf("ListAttempts: %v", err)
		}
		if len(attempts) > 0 {
			return attempts[0]
		}
		if time.Now().After(deadline) {
			t.Fatal("no attempt appeared")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
