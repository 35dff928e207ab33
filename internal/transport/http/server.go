package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/relay"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

// NewServer builds the relay HTTP server: the websocket endpoint, the room
// REST API, health and metrics. A nil gatherer disables /metrics.
func NewServer(
	hub *relay.Hub,
	st store.Store,
	cfg config.Relay,
	gatherer prometheus.Gatherer,
	m *metrics.Relay,
	logger *zerolog.Logger,
) *stdhttp.Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	if st != nil {
		rooms := NewRoomHandlers(st, logger)
		api := router.Group("/api/v1/rooms")
		{
			api.POST("", rooms.CreateRoom)
			api.GET("/:roomId", rooms.GetRoom)
			api.GET("/:roomId/messages", rooms.ListMessages)
		}
	}

	// The websocket endpoint bypasses gin so Accept can hijack an untouched
	// response writer.
	mux := stdhttp.NewServeMux()
	mux.Handle("/chat", NewWSHandler(hub, cfg.MessagesPerSecond, m, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
