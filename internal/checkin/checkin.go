package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"hopper/internal/archive"
	"hopper/internal/guard"
	"hopper/internal/logging"
	"hopper/internal/store"
)

// ErrSourceVanished marks a package whose original disappeared between
// detection and admission.
var ErrSourceVanished = errors.New("source package vanished")

// ErrInvalidInput marks packages rejected for data-quality reasons rather
// than operational ones.
var ErrInvalidInput = errors.New("invalid input package")

// Procedure admits held packages against one store session. A procedure is
// bound to a single worker; sessions are never shared.
type Procedure struct {
	session *store.Session
	logger  *slog.Logger
}

// New builds a procedure over the worker's session.
func New(session *store.Session, logger *slog.Logger) *Procedure {
	return &Procedure{
		session: session,
		logger:  logging.NewComponentLogger(logger, "checkin"),
	}
}

// Run admits one held package. The attempt row is always created invalid
// first; it is marked valid only when the structural and bibliographic
// checks both pass and the article package resolves. Metadata trouble
// degrades the attempt to invalid instead of aborting the admission.
//
// Returned errors wrap ErrSourceVanished when the original is gone,
// store.ErrDuplicated on checksum collision, and ErrInvalidInput for
// data-quality rejections.
func (p *Procedure) Run(ctx context.Context, held *guard.Package) (*store.Attempt, error) {
	if err := held.Lock(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceVanished, held.OriginalPath())
		}
		return nil, fmt.Errorf("lock package: %w", err)
	}

	checksum, err := archive.Checksum(held.WorkPath())
	if err != nil {
		return nil, fmt.Errorf("checksum package: %w", err)
	}

	tx, err := p.session.BeginCheckin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	attempt, err := tx.InsertAttempt(ctx, checksum, held.OriginalPath(), held.WorkPath())
	if err != nil {
		if store.IsNotNullViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}

	article, structural := p.assess(ctx, tx, held, attempt)
	if article != nil && structural {
		if err := tx.MarkValid(ctx, attempt.ID, article.ID); err != nil {
			return nil, err
		}
		attempt.IsValid = true
		attempt.ArticlePkgID = &article.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit checkin: %w", err)
	}

	p.logger.Info("attempt checked in",
		logging.Int64(logging.FieldAttemptID, attempt.ID),
		logging.String(logging.FieldPackage, held.OriginalPath()),
		logging.Bool("valid", attempt.IsValid))
	return attempt, nil
}

// assess resolves the article package and runs the admission checks. All
// failures here degrade the attempt; none abort the transaction.
func (p *Procedure) assess(ctx context.Context, tx *store.Tx, held *guard.Package, attempt *store.Attempt) (*store.ArticlePkg, bool) {
	meta, err := held.Inspector().Metadata()
	if err != nil {
		p.logger.Warn("bibliographic extraction failed, attempt stays invalid",
			logging.Int64(logging.FieldAttemptID, attempt.ID),
			logging.Error(err))
		return nil, false
	}

	if !bibliographicComplete(meta) {
		p.logger.Warn("bibliographic data incomplete, attempt stays invalid",
			logging.Int64(logging.FieldAttemptID, attempt.ID))
		return nil, false
	}

	article, err := tx.ResolveOrCreateArticle(ctx, &store.ArticlePkg{
		ArticleTitle:   meta[archive.FieldArticleTitle],
		JournalTitle:   meta[archive.FieldJournalTitle],
		ISSNPrint:      meta[archive.FieldISSNPrint],
		ISSNElectronic: meta[archive.FieldISSNElectronic],
		Year:           meta[archive.FieldYear],
		Volume:         meta[archive.FieldVolume],
		Number:         meta[archive.FieldNumber],
		SupplVolume:    meta[archive.FieldSupplVolume],
		SupplNumber:    meta[archive.FieldSupplNumber],
	})
	if err != nil {
		p.logger.Warn("article package resolution failed, attempt stays invalid",
			logging.Int64(logging.FieldAttemptID, attempt.ID),
			logging.Error(err))
		return nil, false
	}

	return article, structurallySound(held.Inspector())
}

// structurallySound requires at least one XML document and one PDF body.
func structurallySound(insp *archive.Inspector) bool {
	return len(insp.OpenMembers("xml")) > 0 && len(insp.OpenMembers("pdf")) > 0
}

// bibliographicComplete requires a non-empty article title and at least one
// ISSN.
func bibliographicComplete(meta archive.Metadata) bool {
	if strings.TrimSpace(meta[archive.FieldArticleTitle]) == "" {
		return false
	}
	return strings.TrimSpace(meta[archive.FieldISSNPrint]) != "" ||
		strings.TrimSpace(meta[archive.FieldISSNElectronic]) != ""
}
