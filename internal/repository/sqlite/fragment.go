package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/fragments/internal/apperror"
	"github.com/sakif/fragments/internal/model"
	"github.com/sakif/fragments/internal/repository"
)

var (
	_ repository.FragmentRepository  = (*DB)(nil)
	_ repository.ResonanceRepository = (*DB)(nil)
	_ repository.WhisperRepository   = (*DB)(nil)
)

const fragmentColumns = `id, title, author, code, technology, password_hash, thumbnail_url,
	resonance_count, whisper_count, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanFragment(row scanner, f *model.Fragment) error {
	return row.Scan(
		&f.ID, &f.Title, &f.Author, &f.Code, &f.Technology, &f.PasswordHash, &f.ThumbnailURL,
		&f.ResonanceCount, &f.WhisperCount, &f.CreatedAt, &f.UpdatedAt,
	)
}

// Create inserts f, filling in its ID and timestamps. xid IDs sort by
// creation time.
func (db *DB) Create(ctx context.Context, f *model.Fragment) error {
	f.ID = xid.New().String()
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO fragments (id, title, author, code, technology, password_hash, thumbnail_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Title, f.Author, f.Code, f.Technology, f.PasswordHash, f.ThumbnailURL,
		f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating fragment: %w", err)
	}
	return nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*model.Fragment, error) {
	var f model.Fragment
	row := db.conn.QueryRowContext(ctx, `SELECT `+fragmentColumns+` FROM fragments WHERE id = ?`, id)
	if err := scanFragment(row, &f); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("fragment", id)
		}
		return nil, fmt.Errorf("sqlite: getting fragment %s: %w", id, err)
	}
	return &f, nil
}

// List returns fragments newest first.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Fragment, error) {
	limit, offset := clamp(opts.Limit, opts.Offset)

	query := `SELECT ` + fragmentColumns + ` FROM fragments`
	args := []any{}
	if opts.Technology != "" {
		query += ` WHERE technology = ?`
		args = append(args, opts.Technology)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing fragments: %w", err)
	}
	defer rows.Close()

	fragments := make([]model.Fragment, 0, limit)
	for rows.Next() {
		var f model.Fragment
		if err := scanFragment(rows, &f); err != nil {
			return nil, fmt.Errorf("sqlite: scanning fragment row: %w", err)
		}
		fragments = append(fragments, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating fragments: %w", err)
	}
	return fragments, nil
}

func (db *DB) SetThumbnail(ctx context.Context, id, url string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE fragments SET thumbnail_url = ?, updated_at = ? WHERE id = ?`,
		url, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting thumbnail of %s: %w", id, err)
	}
	return expectOne(result, "fragment", id)
}

// Delete removes the fragment; its resonances and whispers cascade.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM fragments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting fragment %s: %w", id, err)
	}
	return expectOne(result, "fragment", id)
}

// expectOne turns "no row matched" into a NotFound error.
func expectOne(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
