package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const articleColumns = "id, article_title, journal_title, issn_print, issn_electronic, year, volume, number, suppl_volume, suppl_number"

// ResolveOrCreateArticle looks up an article package by title, creating it
// when absent. The work happens inside a savepoint so a failure here can be
// rolled back without aborting the surrounding checkin transaction.
// Concurrent creation races are tolerated by catching the uniqueness
// violation and retrying the lookup.
func (t *Tx) ResolveOrCreateArticle(ctx context.Context, pkg *ArticlePkg) (*ArticlePkg, error) {
	if pkg == nil || pkg.ArticleTitle == "" {
		return nil, errors.New("article package requires a title")
	}

	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT articlepkg"); err != nil {
		return nil, fmt.Errorf("open articlepkg savepoint: %w", err)
	}

	resolved, err := t.resolveOrCreateArticle(ctx, pkg)
	if err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO articlepkg"); rbErr != nil {
			return nil, fmt.Errorf("rollback articlepkg savepoint: %w (after %v)", rbErr, err)
		}
		_, _ = t.tx.ExecContext(ctx, "RELEASE articlepkg")
		return nil, err
	}

	if _, err := t.tx.ExecContext(ctx, "RELEASE articlepkg"); err != nil {
		return nil, fmt.Errorf("release articlepkg savepoint: %w", err)
	}
	return resolved, nil
}

func (t *Tx) resolveOrCreateArticle(ctx context.Context, pkg *ArticlePkg) (*ArticlePkg, error) {
	existing, err := findArticleByTitle(ctx, t.tx, pkg.ArticleTitle)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	res, err := t.tx.ExecContext(
		ctx,
		`INSERT INTO articlepkgs (
            article_title, journal_title, issn_print, issn_electronic,
            year, volume, number, suppl_volume, suppl_number
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pkg.ArticleTitle,
		nullableString(pkg.JournalTitle),
		nullableString(pkg.ISSNPrint),
		nullableString(pkg.ISSNElectronic),
		nullableString(pkg.Year),
		nullableString(pkg.Volume),
		nullableString(pkg.Number),
		nullableString(pkg.SupplVolume),
		nullableString(pkg.SupplNumber),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			// Lost the creation race; the row exists now.
			existing, lookupErr := findArticleByTitle(ctx, t.tx, pkg.ArticleTitle)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("insert articlepkg: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	created := *pkg
	created.ID = id
	return &created, nil
}

// GetArticle fetches an article package by identifier. Returns nil when
// absent.
func (s *Store) GetArticle(ctx context.Context, id int64) (*ArticlePkg, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articlepkgs WHERE id = ?`, id)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get articlepkg: %w", err)
	}
	return article, nil
}

// GetArticle fetches an article package through the session's connection.
func (s *Session) GetArticle(ctx context.Context, id int64) (*ArticlePkg, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articlepkgs WHERE id = ?`, id)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get articlepkg: %w", err)
	}
	return article, nil
}

// FindArticleByTitle returns the article package with the given title, nil
// when absent.
func (s *Store) FindArticleByTitle(ctx context.Context, title string) (*ArticlePkg, error) {
	return findArticleByTitle(ctx, s.db, title)
}

func findArticleByTitle(ctx context.Context, q querier, title string) (*ArticlePkg, error) {
	row := q.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articlepkgs WHERE article_title = ?`, title)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find articlepkg by title: %w", err)
	}
	return article, nil
}

func scanArticle(scanner interface{ Scan(dest ...any) error }) (*ArticlePkg, error) {
	var (
		id             int64
		title          string
		journalTitle   sql.NullString
		issnPrint      sql.NullString
		issnElectronic sql.NullString
		year           sql.NullString
		volume         sql.NullString
		number         sql.NullString
		supplVolume    sql.NullString
		supplNumber    sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&title,
		&journalTitle,
		&issnPrint,
		&issnElectronic,
		&year,
		&volume,
		&number,
		&supplVolume,
		&supplNumber,
	); err != nil {
		return nil, err
	}
	return &ArticlePkg{
		ID:             id,
		ArticleTitle:   title,
		JournalTitle:   journalTitle.String,
		ISSNPrint:      issnPrint.String,
		ISSNElectronic: issnElectronic.String,
		Year:           year.String,
		Volume:         volume.String,
		Number:         number.String,
		SupplVolume:    supplVolume.String,
		SupplNumber:    supplNumber.String,
	}, nil
}
