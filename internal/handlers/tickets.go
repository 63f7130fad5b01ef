package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"dshelp/internal/storage"
)

const defaultTicketLimit = 50

// TicketsHandler serves the ticket audit log over HTTP for internal
// dashboards.
type TicketsHandler struct {
	store storage.Store // nil when no database is configured
}

func NewTicketsHandler(store storage.Store) *TicketsHandler {
	return &TicketsHandler{store: store}
}

type ticketResponse struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channel_id"`
	MessageTS    string    `json:"message_ts"`
	CustomerName string    `json:"customer_name"`
	TeamID       string    `json:"team_id"`
	Priority     string    `json:"priority"`
	Category     string    `json:"category"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h *TicketsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "ticket audit log not configured", http.StatusServiceUnavailable)
		return
	}

	limit := defaultTicketLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.store.RecentTickets(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list ticket records", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	response := make([]ticketResponse, 0, len(records))
	for _, rec := range records {
		response = append(response, ticketResponse{
			ID:           rec.ID,
			ChannelID:    rec.ChannelID,
			MessageTS:    rec.MessageTS,
			CustomerName: rec.CustomerName,
			TeamID:       rec.TeamID,
			Priority:     rec.Priority,
			Category:     rec.Category,
			CreatedAt:    rec.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"tickets": response}); err != nil {
		slog.Error("Failed to encode ticket list", "error", err)
	}
}
