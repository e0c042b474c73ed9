package checkin_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"hopper/internal/checkin"
	"hopper/internal/guard"
	"hopper/internal/logging"
	"hopper/internal/store"
	"hopper/internal/testsupport"
)

type fixture struct {
	guard     *guard.Guard
	procedure *checkin.Procedure
	store     *store.Store
	inbox     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := testsupport.MustOpenSession(t, st)
	return &fixture{
		guard:     guard.New(cfg.Paths.WorkDir, "", logging.NewNop()),
		procedure: checkin.New(session, logging.NewNop()),
		store:     st,
		inbox:     cfg.Paths.WatchDirs[0],
	}
}

func (f *fixture) hold(t *testing.T, name string, opts testsupport.ArticleXMLOptions) *guard.Package {
	t.Helper()
	path := filepath.Join(f.inbox, name)
	testsupport.BuildArticleArchive(t, path, opts)
	held, err := f.guard.Hold(path)
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	t.Cleanup(func() { _ = held.Close() })
	return held
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture(t)
	held := f.hold(t, "pkg.zip", testsupport.ArticleXMLOptions{})

	attempt, err := f.procedure.Run(context.Background(), held)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !attempt.IsValid {
		t.Error("attempt should be valid")
	}
	if attempt.ArticlePkgID == nil {
		t.Fatal("attempt not linked to an article package")
	}

	article, err := f.store.GetArticle(context.Background(), *attempt.ArticlePkgID)
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if article == nil || article.ISSNPrint != "0100-879X" {
		t.Fatalf("unexpected article: %+v", article)
	}
}

func TestRunMissingPDFStaysInvalid(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.inbox, "noPdf.zip")
	testsupport.BuildArchive(t, path, map[string][]byte{
		"article.xml": testsupport.ArticleXML(testsupport.ArticleXMLOptions{}),
	})
	held, err := f.guard.Hold(path)
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	defer held.Close()

	attempt, err := f.procedure.Run(context.Background(), held)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if attempt.IsValid {
		t.Error("attempt without a PDF must stay invalid")
	}
}

func TestRunMissingISSNStaysInvalid(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.inbox, "noIssn.zip")
	xml := testsupport.ArticleXML(testsupport.ArticleXMLOptions{})
	stripped := strings.ReplaceAll(string(xml), `<issn pub-type="ppub">0100-879X</issn>`, "")
	testsupport.BuildArchive(t, path, map[string][]byte{
		"article.xml": []byte(stripped),
		"article.pdf": []byte("%PDF"),
	})
	held, err := f.guard.Hold(path)
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	defer held.Close()

	attempt, err := f.procedure.Run(context.Background(), held)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if attempt.IsValid {
		t.Error("attempt without any ISSN must stay invalid")
	}
}

func TestRunDuplicateResubmission(t *testing.T) {
	f := newFixture(t)
	first := f.hold(t, "pkg.zip", testsupport.ArticleXMLOptions{})

	original, err := f.procedure.Run(context.Background(), first)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Same bytes under a different name: checksum collision.
	second := f.hold(t, "pkg-copy.zip", testsupport.ArticleXMLOptions{})
	if _, err := f.procedure.Run(context.Background(), second); !errors.Is(err, store.ErrDuplicated) {
		t.Fatalf("expected ErrDuplicated, got %v", err)
	}

	kept, err := f.store.GetAttempt(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if kept == nil || !kept.IsValid {
		t.Fatalf("first attempt affected by duplicate: %+v", kept)
	}
}
