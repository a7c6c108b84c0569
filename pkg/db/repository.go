package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// DefaultHistoryLimit caps ListInvocations when no limit is given.
const DefaultHistoryLimit = 20

// Repository provides database access for the audit trail.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertInvocationParams holds parameters for InsertInvocation.
type InsertInvocationParams struct {
	ID         string
	Namespace  string
	Command    string
	UserName   string
	RoomID     string
	Params     map[string]interface{}
	Outcome    string
	ErrorCode  int
	DurationMs int64
}

// InsertInvocation records one dispatched command. An empty ID gets a new UUID.
func (r *Repository) InsertInvocation(ctx context.Context, params InsertInvocationParams) (*Invocation, error) {
	slog.Debug(fmt.Sprintf("%s - InsertInvocation ns=%s command=%s user=%s", repoLogPrefix, params.Namespace, params.Command, params.UserName))

	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	encoded, err := encodeParams(params.Params)
	if err != nil {
		return nil, fmt.Errorf("%s - encode params: %w", repoLogPrefix, err)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO chatop_invocations
		   (id, namespace, command, user_name, room_id, params, outcome, error_code, duration_ms, created)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, namespace, command, user_name, room_id, params, outcome, error_code, duration_ms, created`,
		id, params.Namespace, params.Command, params.UserName, nullableString(params.RoomID),
		encoded, params.Outcome, nullableInt(params.ErrorCode), params.DurationMs, time.Now().UTC())

	return scanInvocation(row)
}

// ListInvocationsParams holds parameters for ListInvocations.
type ListInvocationsParams struct {
	Namespace string
	UserName  string
	Command   string
	Limit     int
}

// ListInvocations returns the most recent invocations, newest first, with
// optional filters.
func (r *Repository) ListInvocations(ctx context.Context, params ListInvocationsParams) ([]Invocation, error) {
	limit := params.Limit
	if limit < 1 {
		limit = DefaultHistoryLimit
	}

	query := `SELECT id, namespace, command, user_name, room_id, params, outcome, error_code, duration_ms, created
	          FROM chatop_invocations WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if params.Namespace != "" {
		query += fmt.Sprintf(` AND namespace = $%d`, argIdx)
		args = append(args, params.Namespace)
		argIdx++
	}
	if params.UserName != "" {
		query += fmt.Sprintf(` AND user_name = $%d`, argIdx)
		args = append(args, params.UserName)
		argIdx++
	}
	if params.Command != "" {
		query += fmt.Sprintf(` AND command = $%d`, argIdx)
		args = append(args, params.Command)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created DESC LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - list invocations: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// CountByCommand summarizes invocations per command for a namespace, ordered
// by total descending.
func (r *Repository) CountByCommand(ctx context.Context, namespace string) ([]CommandCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT command,
		        COUNT(*)::int,
		        COUNT(*) FILTER (WHERE outcome <> 'ok')::int
		 FROM chatop_invocations
		 WHERE namespace = $1
		 GROUP BY command
		 ORDER BY 2 DESC, command`, namespace)
	if err != nil {
		return nil, fmt.Errorf("%s - count by command: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []CommandCount
	for rows.Next() {
		var c CommandCount
		if err := rows.Scan(&c.Command, &c.Total, &c.Failed); err != nil {
			return nil, fmt.Errorf("%s - scan count: %w", repoLogPrefix, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- helpers ---

func scanInvocation(row pgx.Row) (*Invocation, error) {
	var inv Invocation
	err := row.Scan(&inv.ID, &inv.Namespace, &inv.Command, &inv.UserName, &inv.RoomID,
		&inv.Params, &inv.Outcome, &inv.ErrorCode, &inv.DurationMs, &inv.Created)
	if err != nil {
		return nil, fmt.Errorf("%s - scan invocation: %w", repoLogPrefix, err)
	}
	return &inv, nil
}

func encodeParams(params map[string]interface{}) ([]byte, error) {
	if params == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(params)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
