package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/hackmatch/hackmatch/pkg/chat"
	"github.com/hackmatch/hackmatch/pkg/database"
)

// Server wires the messaging core to its two external surfaces: the REST
// API (stateless, per-call credential) and the websocket push surface
// (credential supplied once at open). Both carry identical semantics over
// the same Message Router.
type Server struct {
	config    Config
	db        *database.DB
	auth      *Authenticator
	presence  *chat.Presence
	rooms     *chat.Rooms
	router    *chat.Router
	metrics   *Metrics
	engine    *gin.Engine
	startTime time.Time
}

// New creates a server instance. The presence registry, room multiplexer and
// router are owned by the server and torn down with it; nothing is global.
// metrics may be nil (tests), in which case nothing is recorded.
func New(config Config, db *database.DB, resolver UserResolver, metrics *Metrics) *Server {
	presence := chat.NewPresence()
	rooms := chat.NewRooms()
	router := chat.NewRouter(db, presence, rooms)

	if metrics != nil {
		presence.SetMetrics(metrics)
		rooms.SetMetrics(metrics)
		router.SetMetrics(metrics)
	}

	s := &Server{
		config:    config,
		db:        db,
		auth:      NewAuthenticator(config.JWTSecret, config.TokenTTL, resolver),
		presence:  presence,
		rooms:     rooms,
		router:    router,
		metrics:   metrics,
		startTime: time.Now(),
	}
	s.engine = s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	if s.config.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws", s.HandleWebSocket)

	api := engine.Group("/api", s.auth.Middleware())
	api.GET("/messages/team/:channel", s.handleTeamHistory)
	api.GET("/messages/direct/:userID", s.handleDirectHistory)
	api.POST("/messages/team/:channel", s.handlePostTeamMessage)
	api.POST("/messages/direct/:userID", s.handlePostDirectMessage)
	api.PUT("/messages/read", s.handleMarkRead)

	return engine
}

// Handler returns the HTTP handler for the whole server
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Auth returns the server's authenticator, used by tooling to mint tokens
func (s *Server) Auth() *Authenticator {
	return s.auth
}

// CloseConnections tears down every live websocket connection. Each
// connection's read loop runs its own unregister/unsubscribe on the way out.
func (s *Server) CloseConnections() {
	conns := s.presence.Connections()
	for _, c := range conns {
		if client, ok := c.(*wsClient); ok {
			client.close()
		}
	}
	if len(conns) > 0 {
		log.Info().Int("connections", len(conns)).Msg("closed live connections")
	}
}
