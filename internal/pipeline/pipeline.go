package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hopper/internal/archive"
	"hopper/internal/editorial"
	"hopper/internal/guard"
	"hopper/internal/ledger"
	"hopper/internal/logging"
	"hopper/internal/store"
)

const setupLabel = "setup"

// Item is the unit of work flowing through the stages: the attempt under
// validation, its bibliographic identity, the held package, and the
// journal/issue context resolved during setup.
type Item struct {
	Attempt   *store.Attempt
	Article   *store.ArticlePkg
	Package   *guard.Package
	Journal   *editorial.Journal
	Issue     *editorial.Issue
	Session   *store.Session
	Editorial editorial.Client
}

// Document returns the item's parsed primary XML member.
func (it *Item) Document() (*archive.Document, error) {
	return it.Package.Inspector().PrimaryDocument()
}

// Stage is one validation unit. Applies gates execution; an unmet gate
// skips the stage without recording anything. Validate returns the notice
// status and description for the ledger.
type Stage interface {
	Name() string
	Applies(item *Item) bool
	Validate(ctx context.Context, item *Item) (store.Status, string)
}

// Outcome is the tri-state result of one stage slot.
type Outcome int

const (
	OutcomeRan Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

// Runner executes a registered stage list over one attempt at a time.
type Runner struct {
	session       *store.Session
	ledger        *ledger.Ledger
	editorial     editorial.Client
	stages        []Stage
	lookupTimeout time.Duration
	logger        *slog.Logger
}

// NewRunner wires a runner with the default stage list. client may be nil,
// in which case setup degrades every attempt (no journal context can be
// resolved).
func NewRunner(session *store.Session, led *ledger.Ledger, client editorial.Client, lookupTimeout time.Duration, logger *slog.Logger) *Runner {
	if lookupTimeout <= 0 {
		lookupTimeout = 15 * time.Second
	}
	return &Runner{
		session:       session,
		ledger:        led,
		editorial:     client,
		stages:        DefaultStages(),
		lookupTimeout: lookupTimeout,
		logger:        logging.NewComponentLogger(logger, "pipeline"),
	}
}

// SetStages replaces the registered stage list. Order is execution order.
func (r *Runner) SetStages(stages []Stage) {
	r.stages = stages
}

// Run validates one attempt end to end. The checkpoint is opened before any
// stage and closed on every exit path, as is the package lock. A ledger
// write failure aborts the run; everything else degrades the attempt and
// keeps going.
func (r *Runner) Run(ctx context.Context, attempt *store.Attempt, held *guard.Package, checkinRef string) error {
	entry, err := r.ledger.Open(ctx, attempt.ID, store.PointValidation, checkinRef)
	if err != nil {
		return fmt.Errorf("open validation checkpoint: %w", err)
	}

	started := time.Now().UTC()
	if err := r.session.SetValidationWindow(ctx, attempt.ID, &started, nil); err != nil {
		return err
	}

	item := &Item{Attempt: attempt, Package: held, Session: r.session, Editorial: r.editorial}
	var fatal error

	if err := r.setup(ctx, entry, item); err != nil {
		fatal = err
	} else {
		for _, stage := range r.stages {
			outcome, err := r.runStage(ctx, entry, stage, item)
			if outcome == OutcomeFailed {
				fatal = err
				break
			}
		}
	}

	return errors.Join(fatal, r.teardown(ctx, entry, item))
}

// setup locks the package and resolves the journal/issue context. Any
// resolution failure marks the attempt invalid and records one error
// notice; only a ledger write failure is returned.
func (r *Runner) setup(ctx context.Context, entry *ledger.Entry, item *Item) error {
	if err := item.Package.Lock(); err != nil {
		return r.degrade(ctx, entry, item, fmt.Sprintf("cannot lock package: %v", err))
	}

	if !item.Attempt.IsValid {
		// Already invalid at checkin; stages will short-circuit.
		return nil
	}

	if item.Attempt.ArticlePkgID == nil {
		return r.degrade(ctx, entry, item, "attempt has no article package")
	}
	article, err := r.session.GetArticle(ctx, *item.Attempt.ArticlePkgID)
	if err != nil {
		return r.degrade(ctx, entry, item, fmt.Sprintf("load article package: %v", err))
	}
	if article == nil {
		return r.degrade(ctx, entry, item, "article package row missing")
	}
	item.Article = article

	if r.editorial == nil {
		return r.degrade(ctx, entry, item, "no editorial client configured")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	journal, issue, err := r.resolveContext(lookupCtx, article)
	if err != nil {
		return r.degrade(ctx, entry, item, fmt.Sprintf("journal/issue resolution failed: %v", err))
	}
	if journal == nil {
		return r.degrade(ctx, entry, item, fmt.Sprintf("no journal registered for ISSN %q/%q", article.ISSNPrint, article.ISSNElectronic))
	}
	if issue == nil {
		return r.degrade(ctx, entry, item, fmt.Sprintf("no issue matches volume %q number %q year %q", article.Volume, article.Number, article.Year))
	}

	item.Journal = journal
	item.Issue = issue
	return nil
}

// resolveContext looks the journal up by print ISSN first and falls back to
// the electronic ISSN only when the first lookup yields nothing.
func (r *Runner) resolveContext(ctx context.Context, article *store.ArticlePkg) (*editorial.Journal, *editorial.Issue, error) {
	journal, err := r.editorial.JournalByISSN(ctx, article.ISSNPrint)
	if err != nil {
		return nil, nil, err
	}
	if journal == nil {
		journal, err = r.editorial.JournalByISSN(ctx, article.ISSNElectronic)
		if err != nil {
			return nil, nil, err
		}
	}
	if journal == nil {
		return nil, nil, nil
	}

	issue, err := r.editorial.FindIssue(ctx, journal.Ref, editorial.IssueCriteria{
		Year:        article.Year,
		Volume:      article.Volume,
		Number:      article.Number,
		SupplVolume: article.SupplVolume,
		SupplNumber: article.SupplNumber,
	})
	if err != nil {
		return nil, nil, err
	}
	return journal, issue, nil
}

// degrade marks the attempt invalid and records a single error notice. The
// pipeline continues so downstream stages short-circuit cleanly.
func (r *Runner) degrade(ctx context.Context, entry *ledger.Entry, item *Item, message string) error {
	if err := r.session.SetValidity(ctx, item.Attempt.ID, false); err != nil {
		return err
	}
	item.Attempt.IsValid = false
	r.logger.Warn("attempt degraded to invalid",
		logging.Int64(logging.FieldAttemptID, item.Attempt.ID),
		logging.String("reason", message))
	return entry.Tell(ctx, setupLabel, message, store.StatusError)
}

func (r *Runner) runStage(ctx context.Context, entry *ledger.Entry, stage Stage, item *Item) (Outcome, error) {
	if !stage.Applies(item) {
		r.logger.Debug("stage skipped",
			logging.Int64(logging.FieldAttemptID, item.Attempt.ID),
			logging.String(logging.FieldStage, stage.Name()))
		return OutcomeSkipped, nil
	}

	status, description := stage.Validate(ctx, item)
	if err := entry.Tell(ctx, stage.Name(), description, status); err != nil {
		r.logger.Error("notice recording failed, aborting run",
			logging.Int64(logging.FieldAttemptID, item.Attempt.ID),
			logging.String(logging.FieldStage, stage.Name()),
			logging.Error(err))
		return OutcomeFailed, err
	}
	return OutcomeRan, nil
}

// teardown closes the checkpoint, restores permissions, and marks the
// original failed when the attempt ended invalid.
func (r *Runner) teardown(ctx context.Context, entry *ledger.Entry, item *Item) error {
	var errs []error

	ended := time.Now().UTC()
	if err := r.session.SetValidationWindow(ctx, item.Attempt.ID, nil, &ended); err != nil {
		errs = append(errs, err)
	}
	if err := entry.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close validation checkpoint: %w", err))
	}
	if err := item.Package.Unlock(); err != nil {
		errs = append(errs, err)
	}
	if !item.Attempt.IsValid {
		if err := item.Package.MarkFailed(true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
