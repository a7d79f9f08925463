package debug

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/xorbits-io/xorbits/pkg/actor"
	"github.com/xorbits-io/xorbits/pkg/subtask"
)

var log = logrus.WithField("component", "debug")

// GraphLookup resolves a task ID to the subtask graph the Graph Analyzer
// produced for it, or false if the task is unknown.
type GraphLookup func(taskID string) (*subtask.Graph, bool)

// Server exposes a read-only HTTP introspection surface over one node's
// actor pool and subtask graphs. Routing follows the teacher's gin.New +
// gin.Logger/gin.Recovery pattern; the WebSocket event stream is grounded
// on pkg/observability/monitoring_dashboard.go's upgrade-then-broadcast
// shape, retargeted from dashboard metrics to subpool health events.
type Server struct {
	pool   *actor.MainPool
	graphs GraphLookup

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*websocket.Conn
}

// PoolHealthEvent is broadcast over the WebSocket stream whenever pool
// health is polled.
type PoolHealthEvent struct {
	Timestamp time.Time        `json:"timestamp"`
	Pools     []SubPoolSummary `json:"pools"`
}

// SubPoolSummary is the JSON shape returned by /debug/pools and streamed
// over the WebSocket feed.
type SubPoolSummary struct {
	ProcessIndex    int    `json:"process_index"`
	Label           string `json:"label"`
	ExternalAddress string `json:"external_address"`
	Status          string `json:"status"`
	ActorCount      int    `json:"actor_count"`
}

// NewServer builds a debug Server over pool and a graph lookup function.
func NewServer(pool *actor.MainPool, graphs GraphLookup) *Server {
	return &Server{
		pool:   pool,
		graphs: graphs,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*websocket.Conn),
	}
}

// Router builds the gin engine serving the introspection endpoints.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/debug/subtaskgraph/:task_id", s.handleSubtaskGraph)
	r.GET("/debug/pools", s.handlePools)
	r.GET("/debug/pools/ws", s.handlePoolsWebSocket)

	return r
}

func (s *Server) handleSubtaskGraph(c *gin.Context) {
	taskID := c.Param("task_id")
	g, ok := s.graphs(taskID)
	if !ok {
		c.String(http.StatusNotFound, "no subtask graph for task %q", taskID)
		return
	}
	c.Header("Content-Type", "text/vnd.graphviz")
	if err := WriteDOT(c.Writer, g); err != nil {
		c.String(http.StatusInternalServerError, "render dot: %v", err)
	}
}

func (s *Server) poolSummaries() []SubPoolSummary {
	subpools := s.pool.SubPools()
	out := make([]SubPoolSummary, 0, len(subpools))
	for addr, sp := range subpools {
		out = append(out, SubPoolSummary{
			ProcessIndex:    sp.ProcessIndex(),
			Label:           sp.Label(),
			ExternalAddress: addr,
			Status:          sp.Status().String(),
			ActorCount:      sp.ActorCount(),
		})
	}
	return out
}

func (s *Server) handlePools(c *gin.Context) {
	c.JSON(http.StatusOK, PoolHealthEvent{
		Timestamp: time.Now(),
		Pools:     s.poolSummaries(),
	})
}

// handlePoolsWebSocket upgrades the connection and pushes a PoolHealthEvent
// snapshot every interval until the client disconnects.
func (s *Server) handlePoolsWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	clientID := fmt.Sprintf("debug-client-%d", time.Now().UnixNano())
	s.mu.Lock()
	s.clients[clientID] = conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, clientID)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	go s.streamPoolHealth(clientID, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) streamPoolHealth(clientID string, conn *websocket.Conn) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	send := func() bool {
		s.mu.RLock()
		_, alive := s.clients[clientID]
		s.mu.RUnlock()
		if !alive {
			return false
		}
		event := PoolHealthEvent{Timestamp: time.Now(), Pools: s.poolSummaries()}
		return conn.WriteJSON(event) == nil
	}

	if !send() {
		return
	}
	for range ticker.C {
		if !send() {
			return
		}
	}
}
