package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"hopper/internal/archive"
	"hopper/internal/checkin"
	"hopper/internal/guard"
	"hopper/internal/ledger"
	"hopper/internal/logging"
	"hopper/internal/notify"
	"hopper/internal/pipeline"
	"hopper/internal/store"
)

// worker processes one path at a time on its own persistence session.
type worker struct {
	monitor   *Monitor
	session   *store.Session
	procedure *checkin.Procedure
	runner    *pipeline.Runner
	ledger    *ledger.Ledger
	logger    *slog.Logger
}

func newWorker(m *Monitor, session *store.Session, logger *slog.Logger) *worker {
	led := ledger.New(session, m.notifier, logger)
	timeout := time.Duration(m.cfg.Editorial.RequestTimeout) * time.Second
	return &worker{
		monitor:   m,
		session:   session,
		procedure: checkin.New(session, logger),
		runner:    pipeline.NewRunner(session, led, m.editorial, timeout, logger),
		ledger:    led,
		logger:    logger,
	}
}

// process runs the full intake for one path. Failures are classified,
// reported, and contained; the worker always returns to the queue.
func (w *worker) process(ctx context.Context, path string) {
	held, err := w.monitor.guard.Hold(path)
	if err != nil {
		w.classifyHoldFailure(path, err)
		return
	}
	defer func() {
		if closeErr := held.Close(); closeErr != nil {
			w.logger.Warn("package release failed",
				logging.String(logging.FieldPackage, path), logging.Error(closeErr))
		}
	}()

	attempt, err := w.procedure.Run(ctx, held)
	if err != nil {
		w.classifyCheckinFailure(path, held, err)
		return
	}

	checkinRef := w.announce(ctx, attempt, path)
	w.recordCheckin(ctx, attempt, checkinRef)

	if err := w.runner.Run(ctx, attempt, held, checkinRef); err != nil {
		w.logger.Error("validation run aborted",
			logging.Int64(logging.FieldAttemptID, attempt.ID),
			logging.String(logging.FieldPackage, path),
			logging.Error(err))
		w.monitor.report(path, "aborted", err.Error())
		return
	}

	outcome := "validated"
	if !attempt.IsValid {
		outcome = "invalid"
	}
	w.monitor.report(path, outcome, fmt.Sprintf("attempt %d", attempt.ID))
}

func (w *worker) classifyHoldFailure(path string, err error) {
	switch {
	case os.IsNotExist(err):
		w.logger.Warn("source vanished before hold",
			logging.String(logging.FieldPackage, path))
		w.monitor.report(path, "vanished", "source disappeared before processing")
	case errors.Is(err, archive.ErrCorruptArchive):
		w.logger.Warn("corrupt archive",
			logging.String(logging.FieldPackage, path), logging.Error(err))
		if markErr := w.monitor.guard.MarkFailedPath(path); markErr != nil {
			w.logger.Warn("cannot mark corrupt package", logging.Error(markErr))
		}
		w.monitor.report(path, "corrupt", err.Error())
	default:
		w.logger.Error("hold failed",
			logging.String(logging.FieldPackage, path), logging.Error(err))
		w.monitor.report(path, "failed", err.Error())
	}
}

func (w *worker) classifyCheckinFailure(path string, held *guard.Package, err error) {
	switch {
	case errors.Is(err, store.ErrDuplicated):
		w.logger.Info("duplicate package",
			logging.String(logging.FieldPackage, path))
		if markErr := held.MarkDuplicated(true); markErr != nil {
			w.logger.Warn("cannot mark duplicate", logging.Error(markErr))
		}
		w.monitor.report(path, "duplicated", "checksum already checked in")
	case errors.Is(err, checkin.ErrSourceVanished):
		w.logger.Warn("source vanished mid-analysis",
			logging.String(logging.FieldPackage, path))
		w.monitor.report(path, "vanished", "source disappeared during checkin")
	case errors.Is(err, checkin.ErrInvalidInput):
		w.logger.Warn("data-quality rejection",
			logging.String(logging.FieldPackage, path), logging.Error(err))
		if markErr := held.MarkFailed(true); markErr != nil {
			w.logger.Warn("cannot mark failed package", logging.Error(markErr))
		}
		w.monitor.report(path, "rejected", err.Error())
	default:
		w.logger.Error("checkin failed",
			logging.String(logging.FieldPackage, path), logging.Error(err))
		if markErr := held.MarkFailed(true); markErr != nil {
			w.logger.Warn("cannot mark failed package", logging.Error(markErr))
		}
		w.monitor.report(path, "failed", err.Error())
	}
}

// announce notifies the editorial system of the accepted checkin. Failure
// is logged and leaves the correlation reference empty.
func (w *worker) announce(ctx context.Context, attempt *store.Attempt, path string) string {
	payload := notify.CheckinPayload{
		AttemptRef:  fmt.Sprintf("%d", attempt.ID),
		PackageName: filepath.Base(path),
		UploadedAt:  attempt.CreatedAt.Format(time.RFC3339),
	}
	if attempt.ArticlePkgID != nil {
		payload.ArticlePkgRef = fmt.Sprintf("%d", *attempt.ArticlePkgID)
		article, err := w.session.GetArticle(ctx, *attempt.ArticlePkgID)
		if err == nil && article != nil {
			payload.ArticleTitle = article.ArticleTitle
			payload.JournalTitle = article.JournalTitle
			payload.IssueLabel = issueLabel(article)
		}
	}

	ref, err := w.monitor.notifier.Checkin(ctx, payload)
	if err != nil {
		w.logger.Warn("checkin announcement failed",
			logging.Int64(logging.FieldAttemptID, attempt.ID), logging.Error(err))
		return ""
	}
	return ref
}

// recordCheckin brackets the checkin point in the ledger with one outcome
// notice.
func (w *worker) recordCheckin(ctx context.Context, attempt *store.Attempt, checkinRef string) {
	entry, err := w.ledger.Open(ctx, attempt.ID, store.PointCheckin, checkinRef)
	if err != nil {
		w.logger.Warn("cannot open checkin checkpoint",
			logging.Int64(logging.FieldAttemptID, attempt.ID), logging.Error(err))
		return
	}

	status := store.StatusOK
	message := "package admitted"
	if !attempt.IsValid {
		status = store.StatusWarning
		message = "package admitted but failed admission checks"
	}
	if err := entry.Tell(ctx, "checkin", message, status); err != nil {
		w.logger.Warn("cannot record checkin notice",
			logging.Int64(logging.FieldAttemptID, attempt.ID), logging.Error(err))
	}
	if err := entry.Close(ctx); err != nil {
		w.logger.Warn("cannot close checkin checkpoint",
			logging.Int64(logging.FieldAttemptID, attempt.ID), logging.Error(err))
	}
}

func issueLabel(article *store.ArticlePkg) string {
	label := ""
	if article.Volume != "" {
		label = "v" + article.Volume
	}
	if article.Number != "" {
		label += "n" + article.Number
	}
	if article.Year != "" {
		if label != "" {
			label += " "
		}
		label += article.Year
	}
	return label
}
