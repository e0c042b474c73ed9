package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"hopper/internal/logging"
	"hopper/internal/notify"
	"hopper/internal/store"
)

// sentinelLabel tags the bookkeeping notices that bracket a checkpoint.
const sentinelLabel = "service"

// Ledger opens checkpoint entries on one worker's session.
type Ledger struct {
	session  *store.Session
	notifier notify.Service
	logger   *slog.Logger
}

// New binds a ledger to a session and notifier. notifier may be nil.
func New(session *store.Session, notifier notify.Service, logger *slog.Logger) *Ledger {
	return &Ledger{
		session:  session,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "ledger"),
	}
}

// Entry is one open checkpoint accepting notices.
type Entry struct {
	ledger     *Ledger
	checkpoint *store.Checkpoint
	checkinRef string
}

// Open ensures the checkpoint for (attempt, point) exists, stamps its start
// once, and records the opening sentinel. Re-opening an already started
// checkpoint keeps the original timestamps. checkinRef correlates forwarded
// notices with the remote checkin announcement; empty disables forwarding
// correlation.
func (l *Ledger) Open(ctx context.Context, attemptID int64, point store.Point, checkinRef string) (*Entry, error) {
	cp, err := l.session.EnsureCheckpoint(ctx, attemptID, point)
	if err != nil {
		return nil, err
	}

	alreadyStarted := cp.StartedAt != nil
	cp, err = l.session.StartCheckpoint(ctx, cp.ID)
	if err != nil {
		return nil, err
	}

	entry := &Entry{ledger: l, checkpoint: cp, checkinRef: checkinRef}
	if !alreadyStarted {
		if err := entry.Tell(ctx, sentinelLabel, "service started", store.StatusServBegin); err != nil {
			return nil, fmt.Errorf("record opening sentinel: %w", err)
		}
	}
	return entry, nil
}

// Checkpoint returns the backing checkpoint row.
func (e *Entry) Checkpoint() *store.Checkpoint {
	return e.checkpoint
}

// Tell appends one notice. The local insert is the source of truth: its
// failure is fatal. Forwarding to the notifier is best effort and only
// logged.
func (e *Entry) Tell(ctx context.Context, label, message string, status store.Status) error {
	notice, err := e.ledger.session.AddNotice(ctx, e.checkpoint.ID, label, message, status)
	if err != nil {
		return fmt.Errorf("record notice: %w", err)
	}

	if e.ledger.notifier == nil {
		return nil
	}
	forwardErr := e.ledger.notifier.Notice(ctx, notify.NoticePayload{
		Checkin:    e.checkinRef,
		Stage:      label,
		Checkpoint: string(e.checkpoint.Point),
		Message:    message,
		Status:     string(status),
	})
	if forwardErr != nil {
		e.ledger.logger.Warn("notice forwarding failed",
			logging.Int64("notice_id", notice.ID),
			logging.String(logging.FieldStage, label),
			logging.Error(forwardErr))
	}
	return nil
}

// Close records the closing sentinel and stamps the end once. After Close
// the entry refuses further notices through the checkpoint itself.
func (e *Entry) Close(ctx context.Context) error {
	if e.checkpoint.EndedAt != nil {
		return nil
	}
	if err := e.Tell(ctx, sentinelLabel, "service finished", store.StatusServEnd); err != nil {
		return err
	}
	cp, err := e.ledger.session.EndCheckpoint(ctx, e.checkpoint.ID)
	if err != nil {
		return err
	}
	e.checkpoint = cp
	return nil
}
