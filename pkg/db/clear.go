package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearInvocations truncates the audit trail. Schema is preserved.
func ClearInvocations(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing chatop_invocations", clearLogPrefix))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE chatop_invocations`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Audit trail cleared", clearLogPrefix))
	return nil
}

// PruneInvocations deletes audit rows created before cutoff and returns how
// many were removed.
func PruneInvocations(ctx context.Context, pool *pgxpool.Pool, cutoff time.Time) (int64, error) {
	tag, err := pool.Exec(ctx, `DELETE FROM chatop_invocations WHERE created < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s - prune failed: %w", clearLogPrefix, err)
	}
	n := tag.RowsAffected()
	slog.Info(fmt.Sprintf("%s - Pruned %d rows older than %s", clearLogPrefix, n, cutoff.Format(time.RFC3339)))
	return n, nil
}
