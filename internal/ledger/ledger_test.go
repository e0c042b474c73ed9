package ledger_test

import (
	"context"
	"testing"

	"hopper/internal/ledger"
	"hopper/internal/logging"
	"hopper/internal/store"
	"hopper/internal/testsupport"
)

func TestEntryBracketsCheckpointWithSentinels(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := testsupport.MustOpenSession(t, st)
	ctx := context.Background()

	attempt := testsupport.NewAttempt(t, session, "ledger-1", "/inbox/a.zip")
	led := ledger.New(session, nil, logging.NewNop())

	entry, err := led.Open(ctx, attempt.ID, store.PointValidation, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := entry.Tell(ctx, "license", "license statement present", store.StatusOK); err != nil {
		t.Fatalf("Tell: %v", err)
	}
	if err := entry.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cp, err := st.CheckpointFor(ctx, attempt.ID, store.PointValidation)
	if err != nil {
		t.Fatalf("CheckpointFor: %v", err)
	}
	if cp == nil || cp.StartedAt == nil || cp.EndedAt == nil {
		t.Fatalf("checkpoint not closed: %+v", cp)
	}

	notices, err := st.Notices(ctx, cp.ID)
	if err != nil {
		t.Fatalf("Notices: %v", err)
	}
	if len(notices) != 3 {
		t.Fatalf("expected serv_begin + stage + serv_end, got %d notices", len(notices))
	}
	if notices[0].Status != store.StatusServBegin {
		t.Errorf("first notice = %s, want serv_begin", notices[0].Status)
	}
	if notices[1].Label != "license" || notices[1].Status != store.StatusOK {
		t.Errorf("unexpected stage notice: %+v", notices[1])
	}
	if notices[2].Status != store.StatusServEnd {
		t.Errorf("last notice = %s, want serv_end", notices[2].Status)
	}
}

func TestEntryRefusesNoticesAfterClose(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := testsupport.MustOpenSession(t, st)
	ctx := context.Background()

	attempt := testsupport.NewAttempt(t, session, "ledger-2", "/inbox/b.zip")
	led := ledger.New(session, nil, logging.NewNop())

	entry, err := led.Open(ctx, attempt.ID, store.PointCheckin, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := entry.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := entry.Tell(ctx, "late", "too late", store.StatusOK); err == nil {
		t.Fatal("Tell after Close must fail")
	}
	// Close is idempotent.
	if err := entry.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestReopenKeepsOriginalStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := testsupport.MustOpenSession(t, st)
	ctx := context.Background()

	attempt := testsupport.NewAttempt(t, session, "ledger-3", "/inbox/c.zip")
	led := ledger.New(session, nil, logging.NewNop())

	first, err := led.Open(ctx, attempt.ID, store.PointValidation, "")
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	second, err := led.Open(ctx, attempt.ID, store.PointValidation, "")
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if !second.Checkpoint().StartedAt.Equal(*first.Checkpoint().StartedAt) {
		t.Fatal("reopen overwrote the start timestamp")
	}

	notices, err := st.Notices(ctx, first.Checkpoint().ID)
	if err != nil {
		t.Fatalf("Notices: %v", err)
	}
	if len(notices) != 1 {
		t.Fatalf("reopen should not add a second opening sentinel, got %d notices", len(notices))
	}
}
