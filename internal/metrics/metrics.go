package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Close and drop reasons used as label values.
const (
	ReasonClosed       = "closed"
	ReasonDisconnected = "disconnected"
	ReasonExpired      = "expired"

	DropNotMember = "not_member"
	DropNoPeer    = "no_peer"
	DropQueueFull = "queue_full"
	DropPeerGone  = "peer_gone"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_sessions_created_total",
		Help: "Sessions created",
	})

	CreateFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_session_create_failures_total",
		Help: "create-session requests answered with CREATE_FAILED",
	})

	Joins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_joins_total",
		Help: "Join attempts by result code (ok or error code)",
	}, []string{"result"})

	SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_sessions_closed_total",
		Help: "Sessions torn down by reason",
	}, []string{"reason"})

	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_sessions_swept_total",
		Help: "Expired sessions removed by the background sweeper",
	})

	Relayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_relayed_messages_total",
		Help: "Signaling messages delivered to a peer, by event",
	}, []string{"event"})

	RelayDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_relay_dropped_total",
		Help: "Signaling messages not delivered, by reason",
	}, []string{"reason"})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signal_connections_active",
		Help: "Open websocket connections",
	})

	InvalidFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_invalid_frames_total",
		Help: "Frames that could not be decoded",
	})
)

// RegisterSessionGauge exports the current store size. It must be called at
// most once per registry.
func RegisterSessionGauge(reg prometheus.Registerer, count func() float64) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "signal_sessions_stored",
		Help: "Session records currently held by the store",
	}, count))
}
