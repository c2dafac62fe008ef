package store

import (
	"database/sql"
	"fmt"
	"time"
)

// APIUsage records the outcome of one external provider call.
type APIUsage struct {
	ID             int64     `json:"id"`
	Provider       string    `json:"provider"`
	Operation      string    `json:"operation"`
	TokensUsed     int       `json:"tokens_used"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Success        bool      `json:"success"`
	ErrorDetails   string    `json:"error_details,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// UsageSummary aggregates api_usage_metrics per provider.
type UsageSummary struct {
	Provider      string  `json:"provider"`
	Calls         int     `json:"calls"`
	Failures      int     `json:"failures"`
	Tokens        int     `json:"tokens"`
	AvgResponseMs float64 `json:"avg_response_ms"`
}

func insertUsage(x execer, u *APIUsage) error {
	success := 0
	if u.Success {
		success = 1
	}
	_, err := x.Exec(`
		INSERT INTO api_usage_metrics (provider, operation, tokens_used, response_time_ms, success, error_details, created_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?)
	`, u.Provider, u.Operation, u.TokensUsed, u.ResponseTimeMs, success, u.ErrorDetails, toMillis(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert api usage: %w", err)
	}
	return nil
}

// RecordUsage appends one usage row.
func (db *DB) RecordUsage(u *APIUsage) error { return insertUsage(db, u) }

// ListUsage returns usage rows, oldest first.
func (db *DB) ListUsage() ([]APIUsage, error) {
	rows, err := db.Query(`
		SELECT id, provider, operation, tokens_used, response_time_ms, success, error_details, created_at
		FROM api_usage_metrics ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list api usage: %w", err)
	}
	defer rows.Close()

	var out []APIUsage
	for rows.Next() {
		var u APIUsage
		var success int
		var details sql.NullString
		var created int64
		if err := rows.Scan(&u.ID, &u.Provider, &u.Operation, &u.TokensUsed, &u.ResponseTimeMs, &success, &details, &created); err != nil {
			return nil, fmt.Errorf("scan api usage: %w", err)
		}
		u.Success = success != 0
		u.ErrorDetails = details.String
		u.CreatedAt = fromMillis(created)
		out = append(out, u)
	}
	return out, rows.Err()
}

// SummarizeUsage groups usage rows by provider.
func (db *DB) SummarizeUsage() ([]UsageSummary, error) {
	rows, err := db.Query(`
		SELECT provider, COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
			COALESCE(SUM(tokens_used), 0), COALESCE(AVG(response_time_ms), 0)
		FROM api_usage_metrics GROUP BY provider ORDER BY provider
	`)
	if err != nil {
		return nil, fmt.Errorf("summarize api usage: %w", err)
	}
	defer rows.Close()

	var out []UsageSummary
	for rows.Next() {
		var s UsageSummary
		if err := rows.Scan(&s.Provider, &s.Calls, &s.Failures, &s.Tokens, &s.AvgResponseMs); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
