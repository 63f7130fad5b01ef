package storage

import (
	"context"
	"time"
)

// TicketRecord is one posted ticket message, kept as an audit trail so
// operators can find and reconcile bot-created tickets without scanning
// channel history.
type TicketRecord struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channel_id"`
	MessageTS    string    `json:"message_ts"`
	CustomerName string    `json:"customer_name"`
	TeamID       string    `json:"team_id"`
	Priority     string    `json:"priority"`
	Category     string    `json:"category"`
	RequestHash  string    `json:"request_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the ticket audit log. Recording is best-effort from the
// caller's point of view; a storage failure never fails a ticket post.
type Store interface {
	RecordTicket(ctx context.Context, rec *TicketRecord) error
	RecentTickets(ctx context.Context, limit int) ([]TicketRecord, error)
	Close() error
}
