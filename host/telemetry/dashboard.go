package telemetry

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"bldcservo/core"
)

// DashboardServer polls a Controller for Status snapshots and pushes
// them as JSON to any number of connected browser clients over
// WebSocket, for a live telemetry dashboard.
type DashboardServer struct {
	ctl *Controller

	httpServer *http.Server
	upgrader   websocket.Upgrader

	clients   map[int64]*dashboardClient
	clientsMu sync.RWMutex
	nextID    int64

	pollInterval time.Duration
	stop         chan struct{}
}

type dashboardClient struct {
	id     int64
	conn   *websocket.Conn
	sendCh chan statusSnapshot
	done   chan struct{}
}

// statusSnapshot is the JSON shape pushed to dashboard clients.
type statusSnapshot struct {
	Mode              string  `json:"mode"`
	Fault             string  `json:"fault"`
	Position          float32 `json:"position"`
	VelocityUnitsPerS float32 `json:"velocity_units_per_s"`
	BusVoltage        float32 `json:"bus_voltage"`
	TimestampUnixMs    int64   `json:"timestamp_unix_ms"`
}

// NewDashboardServer builds a server that polls ctl every pollInterval
// and serves a WebSocket endpoint at addr (e.g. ":8080").
func NewDashboardServer(ctl *Controller, addr string, pollInterval time.Duration) *DashboardServer {
	s := &DashboardServer{
		ctl:          ctl,
		pollInterval: pollInterval,
		clients:      make(map[int64]*dashboardClient),
		stop:         make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Run starts the HTTP server and the poll loop. It blocks until the
// HTTP server stops (normally via Close).
func (s *DashboardServer) Run() error {
	go s.pollLoop()
	return s.httpServer.ListenAndServe()
}

// Close stops polling and shuts down the HTTP server.
func (s *DashboardServer) Close() error {
	close(s.stop)
	return s.httpServer.Close()
}

func (s *DashboardServer) pollLoop() {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			status, err := s.ctl.RequestStatus()
			if err != nil {
				log.Printf("dashboard: status poll failed: %v", err)
				continue
			}
			s.broadcast(statusToSnapshot(status, now))
		}
	}
}

func statusToSnapshot(status core.Status, at time.Time) statusSnapshot {
	return statusSnapshot{
		Mode:              status.Mode.String(),
		Fault:             status.Fault.String(),
		Position:          status.UnwrappedScaled,
		VelocityUnitsPerS: status.VelocityUnitsPerS,
		BusVoltage:        status.BusVoltage,
		TimestampUnixMs:   at.UnixMilli(),
	}
}

func (s *DashboardServer) broadcast(snap statusSnapshot) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		select {
		case c.sendCh <- snap:
		default:
			log.Printf("dashboard: dropping snapshot for client %d (channel full)", c.id)
		}
	}
}

func (s *DashboardServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("dashboard: websocket upgrade failed: %v", err)
		return
	}

	id := atomic.AddInt64(&s.nextID, 1)
	client := &dashboardClient{
		id:     id,
		conn:   conn,
		sendCh: make(chan statusSnapshot, 16),
		done:   make(chan struct{}),
	}

	s.clientsMu.Lock()
	s.clients[id] = client
	s.clientsMu.Unlock()

	go s.writePump(client)
	go s.readPump(client)
}

func (s *DashboardServer) readPump(c *dashboardClient) {
	defer s.removeClient(c)
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *DashboardServer) writePump(c *dashboardClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case snap := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (s *DashboardServer) removeClient(c *dashboardClient) {
	s.clientsMu.Lock()
	delete(s.clients, c.id)
	s.clientsMu.Unlock()
	close(c.done)
}
