package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const checkpointColumns = "id, attempt_id, point, started_at, ended_at"

// EnsureCheckpoint returns the checkpoint row for (attempt, point), creating
// an unopened one when absent.
func (s *Session) EnsureCheckpoint(ctx context.Context, attemptID int64, point Point) (*Checkpoint, error) {
	existing, err := checkpointFor(ctx, s.conn, attemptID, point)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	res, err := s.conn.ExecContext(
		ctx,
		`INSERT INTO checkpoints (attempt_id, point) VALUES (?, ?)`,
		attemptID,
		point,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return checkpointFor(ctx, s.conn, attemptID, point)
		}
		return nil, fmt.Errorf("insert checkpoint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &Checkpoint{ID: id, AttemptID: attemptID, Point: point}, nil
}

// StartCheckpoint stamps started_at once. Repeated calls keep the original
// timestamp.
func (s *Session) StartCheckpoint(ctx context.Context, checkpointID int64) (*Checkpoint, error) {
	_, err := s.conn.ExecContext(
		ctx,
		`UPDATE checkpoints SET started_at = ? WHERE id = ? AND started_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339Nano),
		checkpointID,
	)
	if err != nil {
		return nil, fmt.Errorf("start checkpoint: %w", err)
	}
	return s.getCheckpoint(ctx, checkpointID)
}

// EndCheckpoint stamps ended_at once. Ending before starting is a
// programming error and fails with ErrCheckpointNotStarted; ending twice
// keeps the original timestamp.
func (s *Session) EndCheckpoint(ctx context.Context, checkpointID int64) (*Checkpoint, error) {
	cp, err := s.getCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("checkpoint %d not found", checkpointID)
	}
	if cp.StartedAt == nil {
		return nil, fmt.Errorf("end checkpoint %d: %w", checkpointID, ErrCheckpointNotStarted)
	}
	if cp.EndedAt != nil {
		return cp, nil
	}

	_, err = s.conn.ExecContext(
		ctx,
		`UPDATE checkpoints SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339Nano),
		checkpointID,
	)
	if err != nil {
		return nil, fmt.Errorf("end checkpoint: %w", err)
	}
	return s.getCheckpoint(ctx, checkpointID)
}

// AddNotice appends a notice to an open checkpoint. The insert runs inside a
// savepoint on the session's connection so a failure leaves no partial row.
// Closed or never-opened checkpoints refuse notices.
func (s *Session) AddNotice(ctx context.Context, checkpointID int64, label, message string, status Status) (*Notice, error) {
	cp, err := s.getCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("checkpoint %d not found", checkpointID)
	}
	if cp.StartedAt == nil {
		return nil, fmt.Errorf("notice on checkpoint %d: %w", checkpointID, ErrCheckpointNotStarted)
	}
	if cp.EndedAt != nil {
		return nil, fmt.Errorf("notice on checkpoint %d: %w", checkpointID, ErrCheckpointClosed)
	}

	if _, err := s.conn.ExecContext(ctx, "SAVEPOINT notice"); err != nil {
		return nil, fmt.Errorf("open notice savepoint: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.conn.ExecContext(
		ctx,
		`INSERT INTO notices (checkpoint_id, recorded_at, label, message, status)
         VALUES (?, ?, ?, ?, ?)`,
		checkpointID,
		now.Format(time.RFC3339Nano),
		label,
		message,
		status,
	)
	if err != nil {
		if _, rbErr := s.conn.ExecContext(ctx, "ROLLBACK TO notice"); rbErr != nil {
			return nil, fmt.Errorf("rollback notice savepoint: %w (after %v)", rbErr, err)
		}
		_, _ = s.conn.ExecContext(ctx, "RELEASE notice")
		return nil, fmt.Errorf("insert notice: %w", err)
	}
	if _, err := s.conn.ExecContext(ctx, "RELEASE notice"); err != nil {
		return nil, fmt.Errorf("release notice savepoint: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &Notice{
		ID:           id,
		CheckpointID: checkpointID,
		RecordedAt:   now,
		Label:        label,
		Message:      message,
		Status:       status,
	}, nil
}

func (s *Session) getCheckpoint(ctx context.Context, id int64) (*Checkpoint, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE id = ?`, id)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return cp, nil
}

// CheckpointFor returns the checkpoint for (attempt, point), nil when absent.
func (s *Store) CheckpointFor(ctx context.Context, attemptID int64, point Point) (*Checkpoint, error) {
	return checkpointFor(ctx, s.db, attemptID, point)
}

func checkpointFor(ctx context.Context, q querier, attemptID int64, point Point) (*Checkpoint, error) {
	row := q.QueryRowContext(
		ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE attempt_id = ? AND point = ?`,
		attemptID,
		point,
	)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint for attempt: %w", err)
	}
	return cp, nil
}

// Notices returns a checkpoint's notices in arrival order.
func (s *Store) Notices(ctx context.Context, checkpointID int64) ([]*Notice, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, checkpoint_id, recorded_at, label, message, status
         FROM notices WHERE checkpoint_id = ? ORDER BY id`,
		checkpointID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notices: %w", err)
	}
	defer rows.Close()

	var notices []*Notice
	for rows.Next() {
		var (
			notice      Notice
			recordedRaw string
			statusRaw   string
		)
		if err := rows.Scan(&notice.ID, &notice.CheckpointID, &recordedRaw, &notice.Label, &notice.Message, &statusRaw); err != nil {
			return nil, err
		}
		if recorded, err := parseTimeString(recordedRaw); err == nil {
			notice.RecordedAt = recorded
		}
		notice.Status = Status(statusRaw)
		notices = append(notices, &notice)
	}
	return notices, rows.Err()
}

func scanCheckpoint(scanner interface{ Scan(dest ...any) error }) (*Checkpoint, error) {
	var (
		id         int64
		attemptID  int64
		pointRaw   string
		startedRaw sql.NullString
		endedRaw   sql.NullString
	)
	if err := scanner.Scan(&id, &attemptID, &pointRaw, &startedRaw, &endedRaw); err != nil {
		return nil, err
	}
	cp := &Checkpoint{ID: id, AttemptID: attemptID, Point: Point(pointRaw)}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			cp.StartedAt = &started
		}
	}
	if endedRaw.Valid {
		if ended, err := parseTimeString(endedRaw.String); err == nil {
			cp.EndedAt = &ended
		}
	}
	return cp, nil
}
