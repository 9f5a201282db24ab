package store

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table layouts. Migration goes through ent's schema migrator so column
// types follow ent's SQLite mapping; queries are built with ent's SQL
// builder.

var (
	itemsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "bank", Type: field.TypeString, Default: ""},
		{Name: "prompt", Type: field.TypeString, Size: 2147483647},
		{Name: "options", Type: field.TypeJSON},
		{Name: "correct_options", Type: field.TypeJSON},
		{Name: "topic_tags", Type: field.TypeJSON},
		{Name: "a", Type: field.TypeFloat64},
		{Name: "b", Type: field.TypeFloat64},
		{Name: "c", Type: field.TypeFloat64},
		{Name: "d", Type: field.TypeFloat64},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	itemsTable = &schema.Table{
		Name:       "items",
		Columns:    itemsColumns,
		PrimaryKey: []*schema.Column{itemsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "item_bank", Columns: []*schema.Column{itemsColumns[1]}},
		},
	}

	attemptsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "session_id", Type: field.TypeString},
		{Name: "quiz_id", Type: field.TypeString, Nullable: true},
		{Name: "status", Type: field.TypeString},
		{Name: "version", Type: field.TypeInt, Default: 1},
		{Name: "theta", Type: field.TypeFloat64},
		{Name: "standard_error", Type: field.TypeFloat64},
		{Name: "item_count", Type: field.TypeInt, Default: 0},
		{Name: "data", Type: field.TypeJSON},
		{Name: "feedback", Type: field.TypeJSON, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "completed_at", Type: field.TypeTime, Nullable: true},
	}
	attemptsTable = &schema.Table{
		Name:       "attempts",
		Columns:    attemptsColumns,
		PrimaryKey: []*schema.Column{attemptsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "attempt_session_id", Columns: []*schema.Column{attemptsColumns[1]}},
			{Name: "attempt_status_updated_at", Columns: []*schema.Column{attemptsColumns[3], attemptsColumns[11]}},
		},
	}

	attemptEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "attempt_id", Type: field.TypeString},
		{Name: "action", Type: field.TypeString},
		{Name: "item_count", Type: field.TypeInt},
		{Name: "theta", Type: field.TypeFloat64},
		{Name: "standard_error", Type: field.TypeFloat64},
		{Name: "detail", Type: field.TypeString, Default: ""},
	}
	attemptEventsTable = &schema.Table{
		Name:       "attempt_events",
		Columns:    attemptEventsColumns,
		PrimaryKey: []*schema.Column{attemptEventsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "attemptevent_attempt_id", Columns: []*schema.Column{attemptEventsColumns[3]}},
		},
	}

	answerEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "attempt_id", Type: field.TypeString},
		{Name: "item_id", Type: field.TypeString},
		{Name: "position", Type: field.TypeInt},
		{Name: "correct", Type: field.TypeBool},
		{Name: "theta", Type: field.TypeFloat64},
		{Name: "standard_error", Type: field.TypeFloat64},
		{Name: "converged", Type: field.TypeBool},
	}
	answerEventsTable = &schema.Table{
		Name:       "answer_events",
		Columns:    answerEventsColumns,
		PrimaryKey: []*schema.Column{answerEventsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "answerevent_attempt_id", Columns: []*schema.Column{answerEventsColumns[3]}},
		},
	}

	llmRequestEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "provider", Type: field.TypeString},
		{Name: "model", Type: field.TypeString},
		{Name: "purpose", Type: field.TypeString},
		{Name: "input_tokens", Type: field.TypeInt},
		{Name: "output_tokens", Type: field.TypeInt},
		{Name: "latency_ms", Type: field.TypeInt64},
		{Name: "success", Type: field.TypeBool},
		{Name: "error_message", Type: field.TypeString, Default: ""},
		{Name: "request_body", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "response_body", Type: field.TypeString, Size: 2147483647, Default: ""},
	}
	llmRequestEventsTable = &schema.Table{
		Name:       "llm_request_events",
		Columns:    llmRequestEventsColumns,
		PrimaryKey: []*schema.Column{llmRequestEventsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "llmrequestevent_purpose", Columns: []*schema.Column{llmRequestEventsColumns[5]}},
		},
	}

	tables = []*schema.Table{
		itemsTable,
		attemptsTable,
		attemptEventsTable,
		answerEventsTable,
		llmRequestEventsTable,
	}
)

// builder produces SQLite-flavoured queries.
var builder = entsql.Dialect(dialect.SQLite)

// migrate creates or updates all tables.
func migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Create(ctx, tables...); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}
