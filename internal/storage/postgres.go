package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) initSchema() error {
	createTableSQL := `
		CREATE TABLE IF NOT EXISTS tickets (
			id VARCHAR(36) PRIMARY KEY,
			channel_id VARCHAR(255) NOT NULL,
			message_ts VARCHAR(255) NOT NULL,
			customer_name VARCHAR(500) NOT NULL,
			team_id VARCHAR(255) NOT NULL,
			priority VARCHAR(100),
			category VARCHAR(100),
			request_hash VARCHAR(64) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := s.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create tickets table: %w", err)
	}

	indexes := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_message ON tickets(channel_id, message_ts);",
		"CREATE INDEX IF NOT EXISTS idx_tickets_request_hash ON tickets(request_hash);",
		"CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets(created_at);",
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func (s *PostgresStore) RecordTicket(ctx context.Context, rec *TicketRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO tickets (
			id, channel_id, message_ts, customer_name, team_id,
			priority, category, request_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (channel_id, message_ts) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.ChannelID,
		rec.MessageTS,
		rec.CustomerName,
		rec.TeamID,
		rec.Priority,
		rec.Category,
		rec.RequestHash,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record ticket: %w", err)
	}

	return nil
}

func (s *PostgresStore) RecentTickets(ctx context.Context, limit int) ([]TicketRecord, error) {
	query := `
		SELECT id, channel_id, message_ts, customer_name, team_id,
		       priority, category, request_hash, created_at
		FROM tickets
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent tickets: %w", err)
	}
	defer rows.Close()

	var records []TicketRecord
	for rows.Next() {
		var rec TicketRecord
		err := rows.Scan(
			&rec.ID,
			&rec.ChannelID,
			&rec.MessageTS,
			&rec.CustomerName,
			&rec.TeamID,
			&rec.Priority,
			&rec.Category,
			&rec.RequestHash,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// HashRequest fingerprints a ticket's request body for deduplication.
func HashRequest(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash)
}
