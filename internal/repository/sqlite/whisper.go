package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/fragments/internal/model"
	"github.com/sakif/fragments/internal/repository"
)

// CreateWhisper stores w and bumps the fragment's whisper count.
func (db *DB) CreateWhisper(ctx context.Context, w *model.Whisper) error {
	w.ID = xid.New().String()
	w.CreatedAt = time.Now().UTC()

	_, err := db.inTx(ctx, func(tx *sql.Tx) (int, error) {
		if err := fragmentExists(ctx, tx, w.FragmentID); err != nil {
			return 0, err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO whispers (id, fragment_id, author, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			w.ID, w.FragmentID, w.Author, w.Content, w.CreatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("sqlite: creating whisper: %w", err)
		}
		return bumpCount(ctx, tx, w.FragmentID, "whisper_count", 1)
	})
	return err
}

// ListWhispers returns a fragment's whispers oldest first, so a thread reads
// top to bottom.
func (db *DB) ListWhispers(ctx context.Context, fragmentID string, opts repository.ListOptions) ([]model.Whisper, error) {
	limit, offset := clamp(opts.Limit, opts.Offset)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, fragment_id, author, content, created_at
		 FROM whispers
		 WHERE fragment_id = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ? OFFSET ?`,
		fragmentID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing whispers: %w", err)
	}
	defer rows.Close()

	whispers := make([]model.Whisper, 0, limit)
	for rows.Next() {
		var w model.Whisper
		if err := rows.Scan(&w.ID, &w.FragmentID, &w.Author, &w.Content, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning whisper row: %w", err)
		}
		whispers = append(whispers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating whispers: %w", err)
	}
	return whispers, nil
}
