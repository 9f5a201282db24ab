package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

var attemptColumns = []string{
	"id", "session_id", "quiz_id", "status", "version", "theta", "standard_error",
	"item_count", "data", "feedback", "created_at", "updated_at", "completed_at",
}

// attemptRepo implements AttemptRepo.
type attemptRepo struct {
	db *sql.DB
}

func (r *attemptRepo) Create(ctx context.Context, rec *AttemptRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt
	rec.Version = 1

	query, args := builder.Insert(attemptsTable.Name).
		Columns(attemptColumns...).
		Values(rec.ID, rec.SessionID, nullString(rec.QuizID), rec.Status, rec.Version,
			rec.Theta, rec.StandardError, rec.ItemCount, rawOrNull(rec.Data, "{}"),
			rawOrNil(rec.Feedback), rec.CreatedAt, rec.UpdatedAt, nullTime(rec.CompletedAt)).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create attempt %s: %w", rec.ID, err)
	}
	return nil
}

func (r *attemptRepo) Get(ctx context.Context, id string) (*AttemptRecord, error) {
	query, args := builder.Select(attemptColumns...).
		From(builder.Table(attemptsTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()

	rec, err := scanAttempt(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt %s: %w", id, err)
	}
	return rec, nil
}

func (r *attemptRepo) Update(ctx context.Context, rec *AttemptRecord) error {
	updatedAt := time.Now().UTC()
	query, args := builder.Update(attemptsTable.Name).
		Set("status", rec.Status).
		Set("version", rec.Version+1).
		Set("theta", rec.Theta).
		Set("standard_error", rec.StandardError).
		Set("item_count", rec.ItemCount).
		Set("data", rawOrNull(rec.Data, "{}")).
		Set("updated_at", updatedAt).
		Set("completed_at", nullTime(rec.CompletedAt)).
		Where(entsql.And(
			entsql.EQ("id", rec.ID),
			entsql.EQ("version", rec.Version),
		)).
		Query()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update attempt %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update attempt %s: %w", rec.ID, err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, rec.ID); err != nil {
			return err
		}
		return fmt.Errorf("attempt %s at version %d: %w", rec.ID, rec.Version, ErrConflict)
	}

	rec.Version++
	rec.UpdatedAt = updatedAt
	return nil
}

func (r *attemptRepo) SetFeedback(ctx context.Context, id string, feedback json.RawMessage) error {
	query, args := builder.Update(attemptsTable.Name).
		Set("feedback", rawOrNil(feedback)).
		Where(entsql.EQ("id", id)).
		Query()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set feedback on %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *attemptRepo) List(ctx context.Context, f AttemptFilter) ([]AttemptRecord, error) {
	sel := builder.Select(attemptColumns...).
		From(builder.Table(attemptsTable.Name)).
		OrderBy(entsql.Desc("updated_at"), "id")
	if f.Status != "" {
		sel.Where(entsql.EQ("status", f.Status))
	}
	if f.SessionID != "" {
		sel.Where(entsql.EQ("session_id", f.SessionID))
	}
	if !f.UpdatedBefore.IsZero() {
		sel.Where(entsql.LT("updated_at", f.UpdatedBefore.UTC()))
	}
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	query, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *attemptRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	query, args := builder.Select("status", entsql.As(entsql.Count("*"), "n")).
		From(builder.Table(attemptsTable.Name)).
		GroupBy("status").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanAttempt(row rowScanner) (*AttemptRecord, error) {
	var (
		rec       AttemptRecord
		quizID    sql.NullString
		data      string
		feedback  sql.NullString
		completed sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.SessionID, &quizID, &rec.Status, &rec.Version,
		&rec.Theta, &rec.StandardError, &rec.ItemCount, &data, &feedback,
		&rec.CreatedAt, &rec.UpdatedAt, &completed)
	if err != nil {
		return nil, err
	}
	rec.QuizID = quizID.String
	rec.Data = json.RawMessage(data)
	if feedback.Valid {
		rec.Feedback = json.RawMessage(feedback.String)
	}
	if completed.Valid {
		t := completed.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func rawOrNull(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	return string(raw)
}

func rawOrNil(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
