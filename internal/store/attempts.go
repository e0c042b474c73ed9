package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const attemptColumns = "id, checksum, package_path, work_path, created_at, is_valid, validation_started_at, validation_ended_at, queued_for_checkout, articlepkg_id"

// Tx wraps one checkin transaction. All mutations join the same transaction
// and become visible only on Commit.
type Tx struct {
	tx *sql.Tx
}

// BeginCheckin opens a checkin transaction on the session's connection.
func (s *Session) BeginCheckin(ctx context.Context) (*Tx, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin checkin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// InsertAttempt inserts a new, initially invalid attempt. A checksum
// collision yields ErrDuplicated.
func (t *Tx) InsertAttempt(ctx context.Context, checksum, packagePath, workPath string) (*Attempt, error) {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(
		ctx,
		`INSERT INTO attempts (checksum, package_path, work_path, created_at, is_valid, queued_for_checkout)
         VALUES (?, ?, ?, ?, 0, 0)`,
		checksum,
		packagePath,
		nullableString(workPath),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicated, checksum)
		}
		return nil, fmt.Errorf("insert attempt: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &Attempt{
		ID:          id,
		Checksum:    checksum,
		PackagePath: packagePath,
		WorkPath:    workPath,
		CreatedAt:   now,
	}, nil
}

// MarkValid flags the attempt valid and links its article package.
func (t *Tx) MarkValid(ctx context.Context, attemptID, articleID int64) error {
	_, err := t.tx.ExecContext(
		ctx,
		`UPDATE attempts SET is_valid = 1, articlepkg_id = ? WHERE id = ?`,
		articleID,
		attemptID,
	)
	if err != nil {
		return fmt.Errorf("mark attempt valid: %w", err)
	}
	return nil
}

// GetAttempt fetches an attempt by identifier. Returns nil when absent.
func (s *Store) GetAttempt(ctx context.Context, id int64) (*Attempt, error) {
	return getAttempt(ctx, s.db, id)
}

// GetAttempt fetches an attempt through the session's connection.
func (s *Session) GetAttempt(ctx context.Context, id int64) (*Attempt, error) {
	return getAttempt(ctx, s.conn, id)
}

func getAttempt(ctx context.Context, q querier, id int64) (*Attempt, error) {
	row := q.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id)
	attempt, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}

// FindAttemptByChecksum returns the attempt matching a checksum, nil when
// absent.
func (s *Store) FindAttemptByChecksum(ctx context.Context, checksum string) (*Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE checksum = ?`, checksum)
	attempt, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find attempt by checksum: %w", err)
	}
	return attempt, nil
}

// ListAttempts returns attempts ordered by creation time.
func (s *Store) ListAttempts(ctx context.Context) ([]*Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+attemptColumns+` FROM attempts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// SetValidity updates the validity flag outside a checkin transaction. Used
// when a pipeline run degrades an attempt.
func (s *Session) SetValidity(ctx context.Context, attemptID int64, valid bool) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE attempts SET is_valid = ? WHERE id = ?`, boolToInt(valid), attemptID)
	if err != nil {
		return fmt.Errorf("set attempt validity: %w", err)
	}
	return nil
}

// SetValidationWindow records when validation began and ended. Either bound
// may be nil to leave it untouched.
func (s *Session) SetValidationWindow(ctx context.Context, attemptID int64, started, ended *time.Time) error {
	if started != nil {
		if _, err := s.conn.ExecContext(ctx,
			`UPDATE attempts SET validation_started_at = ? WHERE id = ?`,
			nullableTime(started), attemptID); err != nil {
			return fmt.Errorf("set validation start: %w", err)
		}
	}
	if ended != nil {
		if _, err := s.conn.ExecContext(ctx,
			`UPDATE attempts SET validation_ended_at = ? WHERE id = ?`,
			nullableTime(ended), attemptID); err != nil {
			return fmt.Errorf("set validation end: %w", err)
		}
	}
	return nil
}

// SetQueuedForCheckout flags the attempt for the checkout workflow.
func (s *Store) SetQueuedForCheckout(ctx context.Context, attemptID int64, queued bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE attempts SET queued_for_checkout = ? WHERE id = ?`, boolToInt(queued), attemptID)
	if err != nil {
		return fmt.Errorf("set queued for checkout: %w", err)
	}
	return nil
}

// DeleteAttempt removes an attempt; checkpoints and notices cascade.
func (s *Store) DeleteAttempt(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// AttemptStats returns aggregate attempt counts.
func (s *Store) AttemptStats(ctx context.Context) (Stats, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT COUNT(1),
               COALESCE(SUM(is_valid), 0),
               COALESCE(SUM(queued_for_checkout), 0)
        FROM attempts`)
	var stats Stats
	if err := row.Scan(&stats.Total, &stats.Valid, &stats.Queued); err != nil {
		return Stats{}, fmt.Errorf("attempt stats: %w", err)
	}
	stats.Invalid = stats.Total - stats.Valid
	return stats, nil
}

func scanAttempt(scanner interface{ Scan(dest ...any) error }) (*Attempt, error) {
	var (
		id         int64
		checksum   string
		pkgPath    string
		workPath   sql.NullString
		createdRaw string
		isValid    int
		startedRaw sql.NullString
		endedRaw   sql.NullString
		queued     int
		articleID  sql.NullInt64
	)
	if err := scanner.Scan(
		&id,
		&checksum,
		&pkgPath,
		&workPath,
		&createdRaw,
		&isValid,
		&startedRaw,
		&endedRaw,
		&queued,
		&articleID,
	); err != nil {
		return nil, err
	}

	attempt := &Attempt{
		ID:                id,
		Checksum:          checksum,
		PackagePath:       pkgPath,
		WorkPath:          workPath.String,
		IsValid:           isValid != 0,
		QueuedForCheckout: queued != 0,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		attempt.CreatedAt = created
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			attempt.ValidationStarted = &started
		}
	}
	if endedRaw.Valid {
		if ended, err := parseTimeString(endedRaw.String); err == nil {
			attempt.ValidationEnded = &ended
		}
	}
	if articleID.Valid {
		value := articleID.Int64
		attempt.ArticlePkgID = &value
	}
	return attempt, nil
}
