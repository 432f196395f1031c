package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	confirmedAttendees = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rsvp_confirmed_attendees",
			Help: "Cached confirmed attendee count per event",
		},
		[]string{"event_id"},
	)

	rsvpOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsvp_operations_total",
			Help: "Total RSVP operations",
		},
		[]string{"operation", "status"},
	)

	notificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Notification trigger outcomes",
		},
		[]string{"kind", "status"},
	)

	realtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Currently registered realtime connections",
		},
	)

	realtimeRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_rooms",
			Help: "Event rooms with at least one subscriber",
		},
	)

	realtimeDropped = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_dropped_messages",
			Help: "Messages dropped on slow realtime consumers",
		},
	)

	rsvpDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rsvp_request_duration_seconds",
			Help:    "Duration of RSVP request handling",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
	)
)

// HubStats is what the realtime hub exposes for collection.
type HubStats interface {
	Stats() (conns, rooms int, dropped int64)
}

// CounterReader reads the cached confirmed count for an event.
type CounterReader interface {
	Confirmed(ctx context.Context, eventID string) (int, error)
}

type Monitor struct {
	redis   *redis.Client
	counter CounterReader
	hub     HubStats
}

func NewMonitor(redisClient *redis.Client, counter CounterReader, hub HubStats) *Monitor {
	monitor := &Monitor{redis: redisClient, counter: counter, hub: hub}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()

		m.collectCounterMetrics(ctx)
		m.collectHubMetrics()
	}
}

func (m *Monitor) collectCounterMetrics(ctx context.Context) {
	if m.counter == nil {
		return
	}
	keys, _ := m.redis.Keys(ctx, "rsvp:confirmed:*").Result()
	for _, key := range keys {
		eventID := key[len("rsvp:confirmed:"):]
		count, err := m.counter.Confirmed(ctx, eventID)
		if err != nil {
			continue
		}
		confirmedAttendees.WithLabelValues(eventID).Set(float64(count))
	}
}

func (m *Monitor) collectHubMetrics() {
	if m.hub == nil {
		return
	}
	conns, rooms, dropped := m.hub.Stats()
	realtimeConnections.Set(float64(conns))
	realtimeRooms.Set(float64(rooms))
	realtimeDropped.Set(float64(dropped))
}

// TrackRSVPOperation records an rsvp/cancel/promote outcome.
func (m *Monitor) TrackRSVPOperation(operation, status string) {
	rsvpOperations.WithLabelValues(operation, status).Inc()
}

// TrackNotification records a notification trigger outcome.
func (m *Monitor) TrackNotification(kind, status string) {
	notificationDeliveries.WithLabelValues(kind, status).Inc()
}

// TrackRSVPDuration records how long an RSVP request took end to end.
func (m *Monitor) TrackRSVPDuration(duration time.Duration) {
	rsvpDuration.Observe(duration.Seconds())
}
