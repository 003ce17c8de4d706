package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"batisecure/internal/gdpr/service"
)

// sqlCleanupStrategy builds a CleanupStrategy that hard-deletes rows of one
// table older than the retention cutoff. Only tables holding transient data
// get one; business records (devis, chantiers) are never swept.
func sqlCleanupStrategy(db *sql.DB, table, timeColumn string) service.CleanupStrategy {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s < $1`, table, timeColumn)
	return func(ctx context.Context, cutoff time.Time) (int, error) {
		res, err := db.ExecContext(ctx, query, cutoff)
		if err != nil {
			return 0, fmt.Errorf("sweep %s: %w", table, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("sweep %s: %w", table, err)
		}
		return int(affected), nil
	}
}
