package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dshelp_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dshelp_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Slack metrics
	SlackMentions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dshelp_slack_mentions_total",
			Help: "Total number of Slack app mentions received",
		},
	)

	SlackEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dshelp_slack_events_received_total",
			Help: "Total number of Slack events received",
		},
		[]string{"event_type", "status"},
	)

	ThreadFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dshelp_thread_fetches_total",
			Help: "Total number of thread reply fetches during context discovery",
		},
		[]string{"status"},
	)

	// Classification metrics
	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dshelp_classifications_total",
			Help: "Total number of scope classifications",
		},
		[]string{"category", "in_scope"},
	)

	// Model gateway metrics
	OpenAIAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dshelp_openai_api_calls_total",
			Help: "Total number of OpenAI API calls",
		},
		[]string{"purpose", "status"},
	)

	OpenAIAPICallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dshelp_openai_api_call_duration_seconds",
			Help:    "Duration of OpenAI API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dshelp_tool_invocations_total",
			Help: "Total number of tool invocations by the response generator",
		},
		[]string{"tool", "status"},
	)

	// Ticket metrics
	TicketsPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dshelp_tickets_posted_total",
			Help: "Total number of ticket messages posted",
		},
		[]string{"status"},
	)

	// Storage metrics
	TicketRecordsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dshelp_ticket_records_stored_total",
			Help: "Total number of ticket records written to the audit log",
		},
		[]string{"status"},
	)
)
