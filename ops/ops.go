// Operational HTTP/WebSocket surface.
//
// Grounded on go-kgp's web.go (an *http.Server built from a ServeMux,
// started in a goroutine, torn down with Shutdown(context.Background()))
// and ws.go (upgrading a single route to a streaming connection). This
// package exposes process health and periodic activity snapshots, not
// the dropped spectator/bot-match features: no game state is streamed,
// only aggregate counts.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Source reports the counters a Snapshot is built from. The caller
// (cmd/jeux) supplies a *jserver.Server, which reports the session
// registry's live count and its own game counters.
type Source interface {
	LiveSessions() int
	GamesInProgress() int
	GamesCompleted() int
}

// Snapshot is one periodic metrics sample, serialised as JSON over the
// /metrics WebSocket endpoint.
type Snapshot struct {
	Time            time.Time `json:"time"`
	LiveSessions    int       `json:"live_sessions"`
	GamesInProgress int       `json:"games_in_progress"`
	GamesCompleted  int       `json:"games_completed"`
}

// Server serves /healthz and a /metrics WebSocket stream of Snapshots
// sampled from Source at a fixed interval.
type Server struct {
	src      Source
	interval time.Duration
	log      *log.Logger

	http     *http.Server
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn map[*websocket.Conn]struct{}
}

// New builds a Server for SRC, sampling every INTERVAL.
func New(src Source, interval time.Duration, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		src:      src,
		interval: interval,
		log:      logger,
		conn:     make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/metrics", s.handleMetrics)
	s.http = &http.Server{Handler: mux}
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Print("ops: upgrade: ", err)
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conn, conn)
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(s.snapshot()); err != nil {
			return
		}
	}
}

func (s *Server) snapshot() Snapshot {
	return Snapshot{
		Time:            time.Now(),
		LiveSessions:    s.src.LiveSessions(),
		GamesInProgress: s.src.GamesInProgress(),
		GamesCompleted:  s.src.GamesCompleted(),
	}
}

// Serve listens on ":port" and runs until the listener fails or
// Shutdown is called, at which point it returns http.ErrServerClosed.
func (s *Server) Serve(port uint) error {
	s.http.Addr = fmt.Sprintf(":%d", port)
	s.log.Printf("ops: listening on %s", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server, closing any open
// /metrics connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.conn {
		c.Close()
	}
	s.mu.Unlock()
	return s.http.Shutdown(ctx)
}
