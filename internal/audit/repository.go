// Package audit records attribute writes and backend events in the
// audit_logs table and reads them back for the API.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the trail.
const (
	ActionSet      = "attribute.set"
	ActionFallback = "backend.fallback"
	ActionHotplug  = "hotplug.change"
)

// Outcomes of an action.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout is fixed-width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one audit trail row.
type Entry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	DisplayID string         `json:"display_id,omitempty"`
	Attribute string         `json:"attribute,omitempty"`
	Value     *int64         `json:"value,omitempty"`
	Previous  *int64         `json:"previous,omitempty"`
	Outcome   string         `json:"outcome"`
	ErrorCode string         `json:"error_code,omitempty"`
	Backend   string         `json:"backend,omitempty"`
	Source    string         `json:"source"`
	Actor     string         `json:"actor,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Action    string
	DisplayID string
	Attribute string
	Outcome   string
	Since     time.Time
	Limit     int // default 50, max 200
	Offset    int
}

// ListResult is one page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and lists audit entries.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository keeps entries in SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Create inserts an entry. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.Action == "" || entry.Outcome == "" || entry.Source == "" {
		return errors.New("audit entry requires action, outcome and source")
	}
	if entry.ID == "" {
		entry.ID = "aud-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}

	var details *string
	if entry.Details != nil {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		details = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs
		 (id, action, display_id, attribute, value, previous, outcome, error_code, backend, source, actor, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action,
		nullableString(entry.DisplayID), nullableString(entry.Attribute),
		nullableInt(entry.Value), nullableInt(entry.Previous),
		entry.Outcome, nullableString(entry.ErrorCode), nullableString(entry.Backend),
		entry.Source, nullableString(entry.Actor), details,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// List returns entries matching the filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	add := func(column, value string) {
		if value != "" {
			conditions = append(conditions, column+" = ?")
			args = append(args, value)
		}
	}
	add("action", filter.Action)
	add("display_id", filter.DisplayID)
	add("attribute", filter.Attribute)
	add("outcome", filter.Outcome)
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM audit_logs " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := `SELECT id, action, display_id, attribute, value, previous, outcome, error_code,
		backend, source, actor, details, created_at
		FROM audit_logs ` + where + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?` //nolint:gosec // WHERE built from parameterised conditions
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var displayID, attr, errorCode, backend, actor, details sql.NullString
	var value, previous sql.NullInt64
	var createdAt string

	if err := rows.Scan(&e.ID, &e.Action, &displayID, &attr, &value, &previous, &e.Outcome,
		&errorCode, &backend, &e.Source, &actor, &details, &createdAt); err != nil {
		return Entry{}, fmt.Errorf("scanning audit entry: %w", err)
	}

	e.DisplayID = displayID.String
	e.Attribute = attr.String
	e.ErrorCode = errorCode.String
	e.Backend = backend.String
	e.Actor = actor.String
	if value.Valid {
		v := value.Int64
		e.Value = &v
	}
	if previous.Valid {
		v := previous.Int64
		e.Previous = &v
	}
	if details.Valid && details.String != "" {
		var m map[string]any
		if json.Unmarshal([]byte(details.String), &m) == nil {
			e.Details = m
		}
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}
