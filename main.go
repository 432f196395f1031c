// main.go
package main

import (
	"log"
	"net/http"

	"event-sphere/config"
	"event-sphere/handlers"
	"event-sphere/internal/ledger"
	"event-sphere/internal/realtime"
	"event-sphere/internal/services"
	_ "event-sphere/migrations"
	"event-sphere/monitoring"
	"event-sphere/security"
	"event-sphere/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
)

func main() {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Initialize PubNub (optional; without keys the in-process hub is the
	// only fan-out)
	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(pubnub.GenerateUUID()))
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pn = pubnub.NewPubNub(pnConfig)
	}

	// Realtime layer
	hub := realtime.NewHub(64, cfg.ConnectionTTL, cfg.SweepInterval)
	broadcaster := realtime.NewPubNubBroadcaster(hub, pn)

	// Initialize services
	store := ledger.NewStore(app)
	counter := ledger.NewCounter(redisClient, cfg.CounterTTL)

	// Monitoring
	monitor := monitoring.NewMonitor(redisClient, counter, hub)

	notifyService := services.NewNotifyService(app, cfg.NotifyWorkers, cfg.NotifyQueueSize, monitor)
	rsvpService := services.NewRSVPService(store, counter, broadcaster, notifyService, monitor, cfg.AutoPromoteWaitlist)

	// Initialize handlers
	rsvpHandler := handlers.NewRSVPHandler(app, rsvpService)
	realtimeHandler := handlers.NewRealtimeHandler(app, hub)

	// Rate limiting
	rateLimiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Register routes
	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		// Background workers
		hub.Start()
		notifyService.Start()

		// RSVP endpoints
		se.Router.POST("/api/events/{id}/rsvp", rsvpHandler.RequestRSVP).
			Bind(apis.RequireAuth()).
			BindFunc(rateLimiter.AntiBotMiddleware()).
			BindFunc(rateLimiter.RSVPRateLimit())
		se.Router.DELETE("/api/events/{id}/rsvp", rsvpHandler.CancelRSVP).
			Bind(apis.RequireAuth()).
			BindFunc(rateLimiter.RSVPRateLimit())
		se.Router.GET("/api/events/{id}/rsvp", rsvpHandler.GetMyRSVP).
			Bind(apis.RequireAuth())
		se.Router.GET("/api/events/{id}/attendees", rsvpHandler.GetAttendees).
			Bind(apis.RequireAuth())

		// Realtime room control
		se.Router.POST("/api/realtime/connect", realtimeHandler.Connect).
			Bind(apis.RequireAuth())
		se.Router.POST("/api/realtime/join", realtimeHandler.Join).
			Bind(apis.RequireAuth())
		se.Router.POST("/api/realtime/leave", realtimeHandler.Leave).
			Bind(apis.RequireAuth())
		se.Router.POST("/api/realtime/disconnect", realtimeHandler.Disconnect).
			Bind(apis.RequireAuth())
		se.Router.GET("/api/realtime/poll", realtimeHandler.Poll).
			Bind(apis.RequireAuth())

		// Health check
		se.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return se.Next()
	})

	// Graceful shutdown of background workers
	app.OnTerminate().BindFunc(func(te *core.TerminateEvent) error {
		notifyService.Shutdown()
		hub.Shutdown()
		return te.Next()
	})

	// Prometheus endpoint on its own port
	if cfg.EnableMetrics {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("Metrics listening on :%s", cfg.MetricsPort)
			if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
	}

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}
