package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"srdash/pages"
)

// sqliteTime is the layout SQLite's datetime() functions produce, so stored
// timestamps compare correctly against datetime('now', ...).
const sqliteTime = "2006-01-02 15:04:05"

// StoredEnhancement is a row of enhancement_history.
type StoredEnhancement struct {
	ID int64 `json:"id"`
	pages.EnhancementRecord
}

// EnhancementStats summarizes the history table.
type EnhancementStats struct {
	Total             int64   `json:"total"`
	Resolved          int64   `json:"resolved"`
	Rejected          int64   `json:"rejected"`
	AvgElapsedSeconds float64 `json:"avgElapsedSeconds"`
}

// Repository reads and writes enhancement history.
type Repository struct {
	db *Database
}

// NewRepository creates a Repository on database.
func NewRepository(database *Database) *Repository {
	return &Repository{db: database}
}

// InsertEnhancement stores rec and returns its row id. A record with a
// task id already present is ignored and returns 0.
func (r *Repository) InsertEnhancement(ctx context.Context, rec pages.EnhancementRecord) (int64, error) {
	conn, err := r.db.conn()
	if err != nil {
		return 0, err
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO enhancement_history (
			task_id, page, endpoint, scale, input_name, input_bytes,
			input_resolution, output_bytes, output_resolution, status,
			error_message, elapsed_seconds, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID,
		rec.Page,
		rec.Endpoint,
		rec.Scale,
		rec.InputName,
		rec.InputBytes,
		rec.InputResolution,
		rec.OutputBytes,
		rec.OutputResolution,
		rec.Status,
		rec.Error,
		rec.ElapsedSeconds,
		createdAt.UTC().Format(sqliteTime),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert enhancement: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return 0, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// ListEnhancements returns the newest records first. page filters by page
// when not empty. limit <= 0 defaults to 50.
func (r *Repository) ListEnhancements(ctx context.Context, page string, limit int) ([]StoredEnhancement, error) {
	conn, err := r.db.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, task_id, page, endpoint, scale, input_name, input_bytes,
			   input_resolution, output_bytes, output_resolution, status,
			   error_message, elapsed_seconds, created_at
		FROM enhancement_history`
	args := []any{}
	if page != "" {
		query += ` WHERE page = ?`
		args = append(args, page)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enhancements: %w", err)
	}
	defer rows.Close()

	var records []StoredEnhancement
	for rows.Next() {
		rec, err := scanEnhancement(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enhancement rows: %w", err)
	}
	return records, nil
}

func scanEnhancement(rows *sql.Rows) (StoredEnhancement, error) {
	var rec StoredEnhancement
	var createdAt any
	err := rows.Scan(
		&rec.ID,
		&rec.TaskID,
		&rec.Page,
		&rec.Endpoint,
		&rec.Scale,
		&rec.InputName,
		&rec.InputBytes,
		&rec.InputResolution,
		&rec.OutputBytes,
		&rec.OutputResolution,
		&rec.Status,
		&rec.Error,
		&rec.ElapsedSeconds,
		&createdAt,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan enhancement row: %w", err)
	}
	rec.CreatedAt = parseCreatedAt(createdAt)
	return rec, nil
}

// parseCreatedAt accepts both forms the driver may return for a DATETIME
// column.
func parseCreatedAt(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		for _, layout := range []string{sqliteTime, time.RFC3339Nano} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	case []byte:
		return parseCreatedAt(string(t))
	}
	return time.Time{}
}

// Stats counts records by outcome.
func (r *Repository) Stats(ctx context.Context) (EnhancementStats, error) {
	var stats EnhancementStats
	conn, err := r.db.conn()
	if err != nil {
		return stats, err
	}

	err = conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
			   COALESCE(SUM(CASE WHEN status = 'resolved' THEN 1 ELSE 0 END), 0),
			   COALESCE(SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END), 0),
			   COALESCE(AVG(CASE WHEN status = 'resolved' THEN elapsed_seconds END), 0)
		FROM enhancement_history`).Scan(&stats.Total, &stats.Resolved, &stats.Rejected, &stats.AvgElapsedSeconds)
	if err != nil {
		return stats, fmt.Errorf("failed to compute enhancement stats: %w", err)
	}
	return stats, nil
}
