package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// eventRepo implements EventRepo backed by the global sequence counter.
type eventRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

// stamp assigns the next sequence number and a timestamp if unset.
func (r *eventRepo) stamp(ctx context.Context, ts time.Time) (int64, time.Time, error) {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("next sequence: %w", err)
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	return seqNum, ts.UTC(), nil
}

func (r *eventRepo) AppendAttemptEvent(ctx context.Context, data AttemptEventData) error {
	seqNum, ts, err := r.stamp(ctx, data.Timestamp)
	if err != nil {
		return err
	}

	query, args := builder.Insert(attemptEventsTable.Name).
		Columns("sequence", "timestamp", "attempt_id", "action", "item_count",
			"theta", "standard_error", "detail").
		Values(seqNum, ts, data.AttemptID, data.Action, data.ItemCount,
			data.Theta, data.StandardError, data.Detail).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save attempt event: %w", err)
	}
	return nil
}

func (r *eventRepo) AppendAnswerEvent(ctx context.Context, data AnswerEventData) error {
	seqNum, ts, err := r.stamp(ctx, data.Timestamp)
	if err != nil {
		return err
	}

	query, args := builder.Insert(answerEventsTable.Name).
		Columns("sequence", "timestamp", "attempt_id", "item_id", "position",
			"correct", "theta", "standard_error", "converged").
		Values(seqNum, ts, data.AttemptID, data.ItemID, data.Position,
			data.Correct, data.Theta, data.StandardError, data.Converged).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save answer event: %w", err)
	}
	return nil
}

func (r *eventRepo) AttemptEvents(ctx context.Context, attemptID string) ([]AttemptEventData, error) {
	query, args := builder.Select("id", "sequence", "timestamp", "attempt_id", "action",
		"item_count", "theta", "standard_error", "detail").
		From(builder.Table(attemptEventsTable.Name)).
		Where(entsql.EQ("attempt_id", attemptID)).
		OrderBy("sequence").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempt events: %w", err)
	}
	defer rows.Close()

	var out []AttemptEventData
	for rows.Next() {
		var e AttemptEventData
		if err := rows.Scan(&e.ID, &e.Sequence, &e.Timestamp, &e.AttemptID, &e.Action,
			&e.ItemCount, &e.Theta, &e.StandardError, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan attempt event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *eventRepo) AnswerEvents(ctx context.Context, attemptID string) ([]AnswerEventData, error) {
	query, args := builder.Select("id", "sequence", "timestamp", "attempt_id", "item_id",
		"position", "correct", "theta", "standard_error", "converged").
		From(builder.Table(answerEventsTable.Name)).
		Where(entsql.EQ("attempt_id", attemptID)).
		OrderBy("sequence").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query answer events: %w", err)
	}
	defer rows.Close()

	var out []AnswerEventData
	for rows.Next() {
		var e AnswerEventData
		if err := rows.Scan(&e.ID, &e.Sequence, &e.Timestamp, &e.AttemptID, &e.ItemID,
			&e.Position, &e.Correct, &e.Theta, &e.StandardError, &e.Converged); err != nil {
			return nil, fmt.Errorf("scan answer event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
