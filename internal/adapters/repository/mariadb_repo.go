// Package repository implements data persistence adapters
// Following Hexagonal Architecture: Adapters implement ports defined in core
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"intake-chat/internal/core/domain"
	"intake-chat/internal/core/ports"
)

// Ensure MariaDBRepository implements the required interfaces
var _ ports.ExchangeLogRepository = (*MariaDBRepository)(nil)

// exchangeLogSchema is created on startup when missing
const exchangeLogSchema = `
	CREATE TABLE IF NOT EXISTS exchange_logs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		visit_id VARCHAR(64) NOT NULL,
		session_id BIGINT NOT NULL,
		agent_id BIGINT NOT NULL,
		user_message TEXT NOT NULL,
		response_json JSON NULL,
		status VARCHAR(16) NOT NULL,
		error_log TEXT NULL,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME(3) NOT NULL,
		INDEX idx_exchange_session (session_id),
		INDEX idx_exchange_created (created_at)
	)
`

// MariaDBRepository stores the webhook exchange audit trail
type MariaDBRepository struct {
	db *sql.DB
}

// NewMariaDBRepository creates a new MariaDB repository instance
func NewMariaDBRepository(db *sql.DB) *MariaDBRepository {
	return &MariaDBRepository{
		db: db,
	}
}

// EnsureSchema creates the exchange_logs table if needed
func (r *MariaDBRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, exchangeLogSchema); err != nil {
		return fmt.Errorf("ensure exchange_logs schema: %w", err)
	}
	return nil
}

// ============================================================================
// ExchangeLogRepository Implementation
// ============================================================================

// SaveExchange persists one webhook round trip
func (r *MariaDBRepository) SaveExchange(ctx context.Context, log *domain.ExchangeLog) error {
	query := `
		INSERT INTO exchange_logs (
			visit_id, session_id, agent_id, user_message,
			response_json, status, error_log, latency_ms, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var responseJSON any
	if len(log.ResponseJSON) > 0 {
		responseJSON = []byte(log.ResponseJSON)
	}

	result, err := r.db.ExecContext(ctx, query,
		log.VisitID,
		log.SessionID,
		log.AgentID,
		log.UserMessage,
		responseJSON,
		log.Status,
		log.ErrorLog,
		log.LatencyMS,
		log.CreatedAt,
	)
	if err != nil {
		slog.Error("Failed to save exchange log",
			"error", err,
			"session_id", log.SessionID,
		)
		return fmt.Errorf("save exchange log: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		log.ID = id
	}

	slog.Debug("Exchange log saved",
		"session_id", log.SessionID,
		"status", log.Status,
		"latency_ms", log.LatencyMS,
	)
	return nil
}

// ListBySession returns the exchanges of a session, oldest first
func (r *MariaDBRepository) ListBySession(ctx context.Context, sessionID int64, limit int) ([]domain.ExchangeLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, visit_id, session_id, agent_id, user_message,
			   response_json, status, error_log, latency_ms, created_at
		FROM exchange_logs
		WHERE session_id = ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		slog.Error("Failed to list exchange logs", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("list exchange logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.ExchangeLog
	for rows.Next() {
		var (
			entry        domain.ExchangeLog
			responseJSON []byte
			errorLog     sql.NullString
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.VisitID,
			&entry.SessionID,
			&entry.AgentID,
			&entry.UserMessage,
			&responseJSON,
			&entry.Status,
			&errorLog,
			&entry.LatencyMS,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan exchange log: %w", err)
		}
		entry.ResponseJSON = responseJSON
		if errorLog.Valid {
			msg := errorLog.String
			entry.ErrorLog = &msg
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchange logs: %w", err)
	}

	return logs, nil
}

// PurgeBefore deletes exchanges older than cutoff in batches of 1000
func (r *MariaDBRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM exchange_logs
		WHERE created_at < ?
		LIMIT 1000
	`, cutoff)
	if err != nil {
		slog.Error("Failed to purge exchange logs", "error", err)
		return 0, fmt.Errorf("purge exchange logs: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// Ping checks database connectivity
func (r *MariaDBRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
