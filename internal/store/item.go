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

var itemColumns = []string{
	"id", "bank", "prompt", "options", "correct_options", "topic_tags",
	"a", "b", "c", "d", "created_at", "updated_at",
}

// itemRepo implements ItemRepo.
type itemRepo struct {
	db *sql.DB
}

func (r *itemRepo) Upsert(ctx context.Context, items []ItemRecord) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	ins := builder.Insert(itemsTable.Name).Columns(itemColumns...)
	for _, it := range items {
		options, err := json.Marshal(it.Options)
		if err != nil {
			return 0, fmt.Errorf("marshal options of %s: %w", it.ID, err)
		}
		correct, err := json.Marshal(it.CorrectOptions)
		if err != nil {
			return 0, fmt.Errorf("marshal correct options of %s: %w", it.ID, err)
		}
		tags, err := json.Marshal(it.TopicTags)
		if err != nil {
			return 0, fmt.Errorf("marshal tags of %s: %w", it.ID, err)
		}
		ins.Values(it.ID, it.Bank, it.Prompt, string(options), string(correct), string(tags),
			it.A, it.B, it.C, it.D, now, now)
	}
	ins.OnConflict(
		entsql.ConflictColumns("id"),
		entsql.ResolveWith(func(u *entsql.UpdateSet) {
			for _, c := range itemColumns {
				if c == "id" || c == "created_at" {
					continue
				}
				u.SetExcluded(c)
			}
		}),
	)

	query, args := ins.Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("upsert items: %w", err)
	}
	return len(items), nil
}

func (r *itemRepo) Get(ctx context.Context, id string) (*ItemRecord, error) {
	query, args := builder.Select(itemColumns...).
		From(builder.Table(itemsTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()

	rec, err := scanItem(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return rec, nil
}

func (r *itemRepo) List(ctx context.Context, bank string) ([]ItemRecord, error) {
	sel := builder.Select(itemColumns...).
		From(builder.Table(itemsTable.Name)).
		OrderBy("id")
	if bank != "" {
		sel.Where(entsql.EQ("bank", bank))
	}
	query, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []ItemRecord
	for rows.Next() {
		rec, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*ItemRecord, error) {
	var rec ItemRecord
	var options, correct, tags string
	err := row.Scan(&rec.ID, &rec.Bank, &rec.Prompt, &options, &correct, &tags,
		&rec.A, &rec.B, &rec.C, &rec.D, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(options), &rec.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal([]byte(correct), &rec.CorrectOptions); err != nil {
		return nil, fmt.Errorf("decode correct options: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &rec.TopicTags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return &rec, nil
}
