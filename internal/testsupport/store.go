package testsupport

import (
	"context"
	"testing"

	"hopper/internal/config"
	"hopper/internal/store"
)

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// MustOpenSession pins a session for tests and registers cleanup.
func MustOpenSession(t testing.TB, st *store.Store) *store.Session {
	t.Helper()

	session, err := st.NewSession(context.Background())
	if err != nil {
		t.Fatalf("store.NewSession: %v", err)
	}
	t.Cleanup(func() {
		session.Close()
	})
	return session
}

// NewAttempt inserts an attempt for tests using its own short transaction.
func NewAttempt(t testing.TB, session *store.Session, checksum, packagePath string) *store.Attempt {
	t.Helper()

	tx, err := session.BeginCheckin(context.Background())
	if err != nil {
		t.Fatalf("session.BeginCheckin: %v", err)
	}
	attempt, err := tx.InsertAttempt(context.Background(), checksum, packagePath, "")
	if err != nil {
		_ = tx.Rollback()
		t.Fatalf("tx.InsertAttempt: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("tx.Commit: %v", err)
	}
	return attempt
}
