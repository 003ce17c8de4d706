package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists security events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed security event store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}
	query := `
		INSERT INTO security_events (id, user_id, action, resource, ip_address, user_agent, success, risk_level, details, occurred_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Action,
		entry.Resource,
		entry.IPAddress,
		entry.UserAgent,
		entry.Success,
		string(entry.RiskLevel),
		details,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append security event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	query := `
		SELECT id, COALESCE(user_id, ''), action, resource, ip_address, user_agent, success, risk_level, details, occurred_at
		FROM security_events
		WHERE user_id = $1
		ORDER BY occurred_at
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListSince(ctx context.Context, since time.Time) ([]Entry, error) {
	query := `
		SELECT id, COALESCE(user_id, ''), action, resource, ip_address, user_agent, success, risk_level, details, occurred_at
		FROM security_events
		WHERE occurred_at >= $1
		ORDER BY occurred_at
	`
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("list security events since: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) CountByRiskLevel(ctx context.Context, since time.Time) (map[RiskLevel]int, error) {
	query := `
		SELECT risk_level, COUNT(*)
		FROM security_events
		WHERE occurred_at >= $1
		GROUP BY risk_level
	`
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("count security events: %w", err)
	}
	defer rows.Close()

	counts := make(map[RiskLevel]int)
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[RiskLevel(level)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event counts: %w", err)
	}
	return counts, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var level string
		var details []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Resource, &e.IPAddress, &e.UserAgent, &e.Success, &level, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}
		e.RiskLevel = RiskLevel(level)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal event details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security events: %w", err)
	}
	return entries, nil
}
