package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsRunning - sessions currently owned by the overseer.
	SessionsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_sessions_running",
		Help: "Number of sessions currently running",
	})

	// SessionState - current lifecycle state per session (1 for the active state).
	SessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_session_state",
			Help: "Lifecycle state of each session; the active state is 1",
		},
		[]string{"session", "state"},
	)

	// ConnectAttempts - connection attempts per session and outcome.
	ConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_connect_attempts_total",
			Help: "Connection attempts per session by result",
		},
		[]string{"session", "result"},
	)

	// LinesReceived - protocol lines read per session, split by parse result.
	LinesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_lines_received_total",
			Help: "Protocol lines received per session",
		},
		[]string{"session", "parsed"},
	)

	// LinesSent - protocol lines written per session.
	LinesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_lines_sent_total",
			Help: "Protocol lines written per session",
		},
		[]string{"session"},
	)

	// ProtocolCommands - dispatched protocol commands.
	ProtocolCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_protocol_commands_total",
			Help: "Protocol commands dispatched per command name",
		},
		[]string{"command"},
	)

	// UserCommands - bot command invocations per session and command.
	UserCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_user_commands_total",
			Help: "Total number of bot commands called per session and per command",
		},
		[]string{"session", "command"},
	)

	// CredentialRenewals - renewal attempts by result.
	CredentialRenewals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_credential_renewals_total",
			Help: "Credential renewals by result",
		},
		[]string{"result"},
	)

	// LineProcessingTime - time spent dispatching one received line.
	LineProcessingTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bot_line_processing_seconds",
			Help:    "Time to parse and dispatch one received line",
			Buckets: prometheus.ExponentialBuckets(0.00005, 1.5, 25),
		},
	)
)
