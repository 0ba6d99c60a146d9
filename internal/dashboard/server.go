// Package dashboard streams sync progress and point balance changes to
// browsers over WebSocket.
//
// Every client is greeted with a stats message, then receives sync state
// transitions and a points_update after each committed award or redemption.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

type MessageType string

const (
	MessageTypeSyncStatus   MessageType = "sync_status"
	MessageTypeSyncComplete MessageType = "sync_complete"
	MessageTypeSyncFailed   MessageType = "sync_failed"
	MessageTypePointsUpdate MessageType = "points_update"
	// Sent on connect and after every finished sync
	MessageTypeStats MessageType = "stats"
)

// Message is the JSON envelope written to clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	queueSize    = 100
	outboxSize   = 16
	writeTimeout = 5 * time.Second
)

// Config configures a Server. Port 0 picks a free port.
type Config struct {
	Port   int
	Logger *log.Logger
}

func DefaultConfig() *Config {
	return &Config{Port: 8080, Logger: log.Default()}
}

// client is one WebSocket subscriber. Frames are written only by the
// goroutine serving its request; out buffers them so one slow browser
// cannot hold up the others.
type client struct {
	conn *websocket.Conn
	out  chan []byte
}

// Server fans dashboard messages out to connected clients.
type Server struct {
	addr    string
	ln      net.Listener
	srv     *http.Server
	logger  *log.Logger
	welcome func() Message

	mu      sync.Mutex
	clients map[*client]struct{}

	queue  chan Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    fmt.Sprintf(":%d", config.Port),
		logger:  logger,
		welcome: func() Message { return Message{Type: MessageTypeStats} },
		clients: make(map[*client]struct{}),
		queue:   make(chan Message, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetWelcome replaces the message sent to each client on connect.
// Call it before Start.
func (s *Server) SetWelcome(fn func() Message) {
	s.welcome = fn
}

// Start listens on the configured port and serves /ws and /health in the
// background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveClient)
	mux.HandleFunc("GET /health", s.serveHealth)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.wg.Add(2)
	go s.dispatch()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Dashboard serve error: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every client and waits for all server goroutines.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for c := range s.clients {
		_ = c.conn.CloseNow()
		delete(s.clients, c)
	}
	s.mu.Unlock()

	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down dashboard: %w", err)
		}
	}
	s.wg.Wait()

	s.logger.Println("Dashboard stopped")
	return nil
}

// Broadcast queues msg for every client. It never blocks: when the queue
// is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.queue <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Printf("WARNING: Dashboard queue full, dropping %s", msg.Type)
	}
}

func (s *Server) dispatch() {
	defer s.wg.Done()

	for {
		var msg Message
		select {
		case <-s.ctx.Done():
			return
		case msg = <-s.queue:
		}

		data, err := encode(msg)
		if err != nil {
			s.logger.Printf("Failed to encode %s: %v", msg.Type, err)
			continue
		}

		s.mu.Lock()
		for c := range s.clients {
			select {
			case c.out <- data:
			default:
				// The serving goroutine sees the closed conn and cleans up
				s.logger.Println("WARNING: Dashboard client too slow, disconnecting")
				_ = c.conn.CloseNow()
			}
		}
		s.mu.Unlock()
	}
}

func encode(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return json.Marshal(msg)
}

// serveClient owns one WebSocket for its whole life. Clients only listen;
// a data frame from the browser closes the connection.
func (s *Server) serveClient(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, out: make(chan []byte, outboxSize)}
	if data, err := encode(s.welcome()); err == nil {
		c.out <- data
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.CloseNow()
		return
	}
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()
	defer s.drop(c)

	s.logger.Printf("Client connected (total: %d)", n)

	alive := conn.CloseRead(s.ctx)
	for {
		select {
		case <-alive.Done():
			return
		case data := <-c.out:
			ctx, cancel := context.WithTimeout(alive, writeTimeout)
			err := conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()

	if !ok || s.ctx.Err() != nil {
		_ = c.conn.CloseNow()
		return
	}
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("Client disconnected (total: %d)", n)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
