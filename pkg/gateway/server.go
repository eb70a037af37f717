// Package gateway exposes the job scheduler and workspace over HTTP: a
// REST API for projects, threads, files and message submission, a polling
// endpoint for job status, and a websocket stream of job lifecycle events.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/harun/loom/internal/observability"
	"github.com/harun/loom/pkg/jobs"
	"github.com/harun/loom/pkg/workspace"
)

// Server is the HTTP gateway
type Server struct {
	host           string
	port           int
	workspace      *workspace.Manager
	jobs           *jobs.Manager
	server         *http.Server
	upgrader       websocket.Upgrader
	authHandler    *AuthHandler
	broadcaster    *EventBroadcaster
	logger         zerolog.Logger
	isShuttingDown bool
	shutdownMu     sync.RWMutex
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	SharedSecret string
	Workspace    *workspace.Manager
	Jobs         *jobs.Manager
	Logger       zerolog.Logger
}

// NewServer creates a new gateway server
func NewServer(cfg Config) (*Server, error) {
	observability.EnsureRegistered()

	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Workspace == nil {
		return nil, fmt.Errorf("workspace manager is required")
	}
	if cfg.Jobs == nil {
		return nil, fmt.Errorf("job manager is required")
	}

	logger := cfg.Logger.With().Str("component", "gateway").Logger()

	s := &Server{
		host:        cfg.Host,
		port:        cfg.Port,
		workspace:   cfg.Workspace,
		jobs:        cfg.Jobs,
		authHandler: NewAuthHandler(cfg.SharedSecret),
		broadcaster: NewEventBroadcaster(logger),
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Local daemon, origin checks are the secret's job
			},
		},
	}

	// Forward job lifecycle transitions to websocket subscribers. The
	// broadcaster never blocks, which the manager requires of handlers.
	cfg.Jobs.OnEvent(func(e jobs.Event) {
		s.broadcaster.Broadcast(e.Type, e.Job)
	})

	return s, nil
}

// routes builds the HTTP mux
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.Handle("GET /ws", s.authHandler.Middleware(http.HandlerFunc(s.handleWebSocket)))

	api := http.NewServeMux()
	api.HandleFunc("GET /api/projects", s.handleListProjects)
	api.HandleFunc("POST /api/projects", s.handleCreateProject)
	api.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	api.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)
	api.HandleFunc("GET /api/projects/{id}/tree", s.handleTree)
	api.HandleFunc("GET /api/projects/{id}/files", s.handleReadFile)
	api.HandleFunc("PUT /api/projects/{id}/files", s.handleWriteFile)
	api.HandleFunc("GET /api/projects/{id}/threads", s.handleListThreads)
	api.HandleFunc("POST /api/projects/{id}/threads", s.handleCreateThread)
	api.HandleFunc("DELETE /api/projects/{id}/threads/{tid}", s.handleDeleteThread)
	api.HandleFunc("GET /api/projects/{id}/threads/{tid}/messages", s.handleListMessages)
	api.HandleFunc("POST /api/projects/{id}/threads/{tid}/messages", s.handleSubmitMessage)
	api.HandleFunc("GET /api/jobs/{id}", s.handleJobStatus)
	api.HandleFunc("GET /api/jobs", s.handleJobStats)

	mux.Handle("/api/", s.authHandler.Middleware(api))

	return mux
}

// Start starts the gateway server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the gateway server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	s.broadcaster.Broadcast("server.shutdown", map[string]interface{}{
		"message": "Server is shutting down",
	})
	s.broadcaster.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// handleWebSocket upgrades a connection and registers it with the broadcaster
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &Client{
		ID:          clientID,
		Conn:        conn,
		ConnectedAt: time.Now(),
		IPAddress:   r.RemoteAddr,
	}
	s.broadcaster.Add(client)

	s.logger.Info().
		Str("clientId", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	go s.readLoop(client)
}

// readLoop drains the connection until the client goes away. Incoming
// frames are discarded, the stream is broadcast-only.
func (s *Server) readLoop(client *Client) {
	defer func() {
		s.broadcaster.Remove(client.ID)
		client.Conn.Close()
		s.logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("clientId", client.ID).Msg("WebSocket error")
			}
			return
		}
	}
}

// Broadcast sends an event to all connected clients.
func (s *Server) Broadcast(event string, data interface{}) {
	s.broadcaster.Broadcast(event, data)
}

// ConnectedClients returns the number of websocket subscribers.
func (s *Server) ConnectedClients() int {
	return s.broadcaster.Count()
}
