package store_test

import (
	"context"
	"errors"
	"testing"

	"hopper/internal/store"
	"hopper/internal/testsupport"
)

func TestInsertAttemptDetectsDuplicateChecksum(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := testsupport.MustOpenSession(t, st)
	ctx := context.Background()

	first := testsupport.NewAttempt(t, session, "abc123", "/inbox/a.zip")

	tx, err := session.BeginCheckin(ctx)
	if err != nil {
		t.Fatalf("BeginCheckin: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.InsertAttempt(ctx, "abc123", "/inbox/b.zip", ""); !errors.Is(err, store.ErrDuplicated) {
		t.Fatalf("expected ErrDuplicated, got %v", err)
	}
	_ = tx.Rollback()

	// The first record is unaffected by the failed resubmission.
	kept, err := st.FindAttemptByChecksum(ctx, "abc123")
	if err != nil {
		t.Fatalf("FindAttemptByChecksum: %v", err)
	}
	if kept == nil || kept.ID != first.ID || kept.PackagePath != "/inbox/a.zip" {
		t.Fatalf("original attempt mutated: %+v", kept)
	}
}

func TestResolveOrCreateArticleDeduplicatesByTitle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := testsupport.MustOpenSession(t, st)
	ctx := context.Background()

	create := func(checksum string) *store.ArticlePkg {
		tx, err := session.BeginCheckin(ctx)
		if err != nil {
			t.Fatalf("BeginCheckin: %v", err)
		}
		if _, err := tx.InsertAttempt(ctx, checksum, "/inbox/"+checksum+".zip", ""); err != nil {
			t.Fatalf("InsertAttempt: %v", err)
		}
		article, err := tx.ResolveOrCreateArticle(ctx, &store.ArticlePkg{
			ArticleTitle: "Effects of caffeine",
			JournalTitle: "Braz J Med Biol Res",
			ISSNPrint:    "0100-879X",
		})
		if err != nil {
			t.Fatalf("ResolveOrCreateArticle: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		return article
	}

	first := create("sum-1")
	second := create("sum-2")
	if first.ID != second.ID {
		t.Fatalf("same title resolved to different articles: %d vs %d", first.ID, second.ID)
	}
}

func TestCheckpointLifecycleLaws(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := testsupport.MustOpenSession(t, st)
	ctx := context.Background()

	attempt := testsupport.NewAttempt(t, session, "cp-laws", "/inbox/cp.zip")

	cp, err := session.EnsureCheckpoint(ctx, attempt.ID, store.PointValidation)
	if err != nil {
		t.Fatalf("EnsureCheckpoint: %v", err)
	}

	// end before start fails loudly.
	if _, err := session.EndCheckpoint(ctx, cp.ID); !errors.Is(err, store.ErrCheckpointNotStarted) {
		t.Fatalf("expected ErrCheckpointNotStarted, got %v", err)
	}
	// tell before start fails.
	if _, err := session.AddNotice(ctx, cp.ID, "stage", "msg", store.StatusOK); !errors.Is(err, store.ErrCheckpointNotStarted) {
		t.Fatalf("expected ErrCheckpointNotStarted on notice, got %v", err)
	}

	started, err := session.StartCheckpoint(ctx, cp.ID)
	if err != nil {
		t.Fatalf("StartCheckpoint: %v", err)
	}
	if started.StartedAt == nil {
		t.Fatal("start timestamp not set")
	}

	// start is idempotent.
	startedAgain, err := session.StartCheckpoint(ctx, cp.ID)
	if err != nil {
		t.Fatalf("second StartCheckpoint: %v", err)
	}
	if !startedAgain.StartedAt.Equal(*started.StartedAt) {
		t.Fatal("repeated start overwrote the timestamp")
	}

	if _, err := session.AddNotice(ctx, cp.ID, "stage", "all good", store.StatusOK); err != nil {
		t.Fatalf("AddNotice: %v", err)
	}

	ended, err := session.EndCheckpoint(ctx, cp.ID)
	if err != nil {
		t.Fatalf("EndCheckpoint: %v", err)
	}
	if ended.EndedAt == nil {
		t.Fatal("end timestamp not set")
	}

	// end is idempotent.
	endedAgain, err := session.EndCheckpoint(ctx, cp.ID)
	if err != nil {
		t.Fatalf("second EndCheckpoint: %v", err)
	}
	if !endedAgain.EndedAt.Equal(*ended.EndedAt) {
		t.Fatal("repeated end overwrote the timestamp")
	}

	// closed checkpoints refuse notices.
	if _, err := session.AddNotice(ctx, cp.ID, "stage", "late", store.StatusOK); !errors.Is(err, store.ErrCheckpointClosed) {
		t.Fatalf("expected ErrCheckpointClosed, got %v", err)
	}
}

func TestNoticesKeepArrivalOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := testsupport.MustOpenSession(t, st)
	ctx := context.Background()

	attempt := testsupport.NewAttempt(t, session, "order", "/inbox/order.zip")
	cp, err := session.EnsureCheckpoint(ctx, attempt.ID, store.PointCheckin)
	if err != nil {
		t.Fatalf("EnsureCheckpoint: %v", err)
	}
	if _, err := session.StartCheckpoint(ctx, cp.ID); err != nil {
		t.Fatalf("StartCheckpoint: %v", err)
	}

	labels := []string{"first", "second", "third"}
	for _, label := range labels {
		if _, err := session.AddNotice(ctx, cp.ID, label, "msg", store.StatusWarning); err != nil {
			t.Fatalf("AddNotice %s: %v", label, err)
		}
	}

	notices, err := st.Notices(ctx, cp.ID)
	if err != nil {
		t.Fatalf("Notices: %v", err)
	}
	if len(notices) != len(labels) {
		t.Fatalf("expected %d notices, got %d", len(labels), len(notices))
	}
	for idx, notice := range notices {
		if notice.Label != labels[idx] {
			t.Errorf("notice %d label = %q, want %q", idx, notice.Label, labels[idx])
		}
	}
}

func TestDeleteAttemptCascades(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := testsupport.MustOpenSession(t, st)
	ctx := context.Background()

	attempt := testsupport.NewAttempt(t, session, "del-1", "/inbox/del.zip")
	cp, err := session.EnsureCheckpoint(ctx, attempt.ID, store.PointValidation)
	if err != nil {
		t.Fatalf("EnsureCheckpoint: %v", err)
	}
	if _, err := session.StartCheckpoint(ctx, cp.ID); err != nil {
		t.Fatalf("StartCheckpoint: %v", err)
	}
	if _, err := session.AddNotice(ctx, cp.ID, "license", "present", store.StatusOK); err != nil {
		t.Fatalf("AddNotice: %v", err)
	}

	removed, err := st.DeleteAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("DeleteAttempt: %v", err)
	}
	if !removed {
		t.Fatal("delete reported nothing removed")
	}

	if got, err := st.GetAttempt(ctx, attempt.ID); err != nil || got != nil {
		t.Fatalf("attempt survived delete: %+v, %v", got, err)
	}
	if got, err := st.CheckpointFor(ctx, attempt.ID, store.PointValidation); err != nil || got != nil {
		t.Fatalf("checkpoint survived delete: %+v, %v", got, err)
	}
	notices, err := st.Notices(ctx, cp.ID)
	if err != nil {
		t.Fatalf("Notices: %v", err)
	}
	if len(notices) != 0 {
		t.Fatalf("notices survived delete: %d", len(notices))
	}

	// A second delete finds nothing.
	removed, err = st.DeleteAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("second DeleteAttempt: %v", err)
	}
	if removed {
		t.Fatal("second delete reported a removal")
	}
}

func TestSetValidityAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := testsupport.MustOpenSession(t, st)
	ctx := context.Background()

	a := testsupport.NewAttempt(t, session, "s1", "/inbox/s1.zip")
	testsupport.NewAttempt(t, session, "s2", "/inbox/s2.zip")

	if err := session.SetValidity(ctx, a.ID, true); err != nil {
		t.Fatalf("SetValidity: %v", err)
	}
	if err := st.SetQueuedForCheckout(ctx, a.ID, true); err != nil {
		t.Fatalf("SetQueuedForCheckout: %v", err)
	}

	stats, err := st.AttemptStats(ctx)
	if err != nil {
		t.Fatalf("AttemptStats: %v", err)
	}
	if stats.Total != 2 || stats.Valid != 1 || stats.Invalid != 1 || stats.Queued != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
