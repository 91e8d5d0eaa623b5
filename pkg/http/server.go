// Package http exposes the operator surface: fault report intake,
// diagnostic download, health, Prometheus metrics, and a live incident
// feed over WebSocket.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faultline/faultline/pkg/aggregate"
	"github.com/faultline/faultline/pkg/eventbus"
	"github.com/faultline/faultline/pkg/incident"
	"github.com/faultline/faultline/pkg/logger"
)

// ServerConfig holds configuration for the operator HTTP server
type ServerConfig struct {
	ListenAddr string
}

// Server is the operator HTTP server
type Server struct {
	config     ServerConfig
	aggregator *aggregate.Aggregator
	retriever  *aggregate.Retriever
	store      *incident.Store
	bus        *eventbus.Bus
	log        *logger.Logger
	httpServer *http.Server
	mu         sync.RWMutex
	clients    map[string]*FeedClient
}

// FeedClient represents a connected live-feed subscriber
type FeedClient struct {
	ID   string
	Send chan []byte
}

// NewServer creates the operator HTTP server
func NewServer(config ServerConfig, agg *aggregate.Aggregator, retr *aggregate.Retriever, store *incident.Store, bus *eventbus.Bus) *Server {
	if config.ListenAddr == "" {
		config.ListenAddr = ":8484"
	}

	return &Server{
		config:     config,
		aggregator: agg,
		retriever:  retr,
		store:      store,
		bus:        bus,
		log:        logger.Global().WithComponent("http"),
		clients:    make(map[string]*FeedClient),
	}
}

// Handler builds the route mux. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/report", s.handleReport)
	mux.HandleFunc("/detail/", s.handleDetail)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleFeed)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Info("starting operator HTTP server", "addr", s.config.ListenAddr)

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		s.log.Info("stopping operator HTTP server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rep aggregate.Report
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid report body")
		return
	}
	defer r.Body.Close()

	if rep.Diagnostic == "" || rep.Summary == "" {
		s.writeError(w, http.StatusBadRequest, "diagnostic and summary are required")
		return
	}

	outcome, err := s.aggregator.Report(r.Context(), rep)
	if err != nil {
		var repErr *aggregate.ReportError
		if errors.As(err, &repErr) {
			s.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":    repErr.Error(),
				"recorded": repErr.Recorded,
				"stage":    repErr.Stage,
			})
			return
		}
		s.writeError(w, http.StatusInternalServerError, "report failed")
		return
	}

	status := http.StatusOK
	if outcome.Created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, outcome)
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ref := strings.TrimPrefix(r.URL.Path, "/detail/")
	if ref == "" {
		s.writeError(w, http.StatusBadRequest, "missing notification ref")
		return
	}

	artifact, err := s.retriever.Retrieve(r.Context(), ref)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "retrieve failed")
		return
	}
	if artifact == nil {
		s.writeError(w, http.StatusNotFound, "no traceback found")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.Write(artifact.Data)

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeDetailServed, Ref: ref})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "degraded",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
		"incidents":         stats.Incidents,
		"total_occurrences": stats.TotalOccurrences,
		"feed_subscribers":  s.bus.Subscribers(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// WebSocket live incident feed
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := &FeedClient{
		ID:   uuid.NewString(),
		Send: make(chan []byte, 256),
	}

	s.mu.Lock()
	s.clients[client.ID] = client
	s.mu.Unlock()

	s.log.Info("feed client connected", "client_id", client.ID)

	events, unsubscribe := s.bus.Subscribe()
	done := make(chan struct{})

	defer func() {
		unsubscribe()
		close(done)
		s.mu.Lock()
		delete(s.clients, client.ID)
		s.mu.Unlock()
		s.log.Info("feed client disconnected", "client_id", client.ID)
	}()

	go s.forwardEvents(client, events, done)
	go s.writePump(conn, client)
	s.readPump(conn)
}

// forwardEvents copies bus events into the client's send buffer until the
// connection goes away. A client that cannot keep up loses events. It is the
// sole sender on client.Send and closes it on return.
func (s *Server) forwardEvents(client *FeedClient, events <-chan eventbus.Event, done <-chan struct{}) {
	defer close(client.Send)

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			select {
			case client.Send <- data:
			default:
			}
		case <-done:
			return
		}
	}
}

func (s *Server) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug("feed read error", "error", err)
			}
			break
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, client *FeedClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
