package streamhandler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mcpbox/internal/domain/activity"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/infrastructure/metrics"
	"mcpbox/internal/interfaces/httpserver/middlewares"
	"mcpbox/internal/interfaces/httpserver/responses"
	"mcpbox/internal/utils/platformerrors"
)

const (
	queueCapacity     = 1000
	keepAliveInterval = 15 * time.Second
)

// Filters narrow which activity entries a connection receives. Empty
// fields match everything.
type Filters struct {
	ServerID *string
	LogTypes map[activity.LogType]struct{}
	Levels   map[activity.Level]struct{}
}

// Match reports whether the entry passes the filters.
func (f Filters) Match(e activity.Entry) bool {
	if f.ServerID != nil {
		if e.ServerID == nil || *e.ServerID != *f.ServerID {
			return false
		}
	}
	if len(f.LogTypes) > 0 {
		if _, ok := f.LogTypes[e.LogType]; !ok {
			return false
		}
	}
	if len(f.Levels) > 0 {
		if _, ok := f.Levels[e.Level]; !ok {
			return false
		}
	}
	return true
}

// connection is one live admin stream. The queue is bounded and lossy:
// a slow consumer drops events rather than stalling the broadcaster.
type connection struct {
	id    string
	queue chan activity.Entry

	mu      sync.Mutex
	filters Filters
}

func (c *connection) matches(e activity.Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters.Match(e)
}

func (c *connection) setFilters(f Filters) {
	c.mu.Lock()
	c.filters = f
	c.mu.Unlock()
}

// StreamHandler serves the admin activity live stream. It registers itself
// as an activity listener and fans entries out to every matching
// connection.
type StreamHandler struct {
	logger zerolog.Logger

	mu          sync.Mutex
	connections map[string]*connection
}

func NewStreamHandler(activityLogger *activity.Logger) *StreamHandler {
	h := &StreamHandler{
		logger:      logger.Component("live_stream"),
		connections: make(map[string]*connection),
	}
	activityLogger.AddListener(h.broadcast)
	return h
}

// broadcast enqueues the entry on every matching connection without
// blocking. Full queues drop the event.
func (h *StreamHandler) broadcast(e activity.Entry) {
	h.mu.Lock()
	conns := make([]*connection, 0, len(h.connections))
	for _, conn := range h.connections {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if !conn.matches(e) {
			continue
		}
		select {
		case conn.queue <- e:
		default:
			metrics.StreamEventsDroppedTotal.Inc()
			h.logger.Warn().Str("connection_id", conn.id).Msg("stream queue full, event dropped")
		}
	}
}

// Stream serves GET /v1/admin/stream.
func (h *StreamHandler) Stream(c *gin.Context) {
	flusher, ok := middlewares.PrepareSSE(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}

	conn := &connection{
		id:      uuid.NewString()[:8],
		queue:   make(chan activity.Entry, queueCapacity),
		filters: filtersFromQuery(c),
	}
	h.register(conn)
	defer h.unregister(conn.id)

	metrics.SSEConnections.Inc()
	defer metrics.SSEConnections.Dec()

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"type\":\"connected\",\"connection_id\":%q}\n\n", conn.id)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-conn.queue:
			payload, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: log\ndata: %s\n\n", payload)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// filterRequest is the POST /v1/admin/stream/:id/filter body. SSE is
// one-way, so filter changes arrive out of band.
type filterRequest struct {
	ServerID *string  `json:"server_id"`
	LogTypes []string `json:"log_types"`
	Levels   []string `json:"levels"`
}

// UpdateFilter replaces the filters of a live connection.
func (h *StreamHandler) UpdateFilter(c *gin.Context) {
	connID := c.Param("id")

	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid filter body", "stream-001")
		return
	}

	h.mu.Lock()
	conn, ok := h.connections[connID]
	h.mu.Unlock()
	if !ok {
		responses.HandleNewError(c, platformerrors.ErrorTypeNotFound, "connection not found", "stream-002")
		return
	}

	conn.setFilters(Filters{
		ServerID: req.ServerID,
		LogTypes: toLogTypeSet(req.LogTypes),
		Levels:   toLevelSet(req.Levels),
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "connection_id": connID})
}

func (h *StreamHandler) register(conn *connection) {
	h.mu.Lock()
	h.connections[conn.id] = conn
	h.mu.Unlock()
}

func (h *StreamHandler) unregister(id string) {
	h.mu.Lock()
	delete(h.connections, id)
	h.mu.Unlock()
}

func filtersFromQuery(c *gin.Context) Filters {
	f := Filters{}
	if serverID := c.Query("server_id"); serverID != "" {
		f.ServerID = &serverID
	}
	f.LogTypes = toLogTypeSet(splitParam(c.Query("log_types")))
	f.Levels = toLevelSet(splitParam(c.Query("levels")))
	return f
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toLogTypeSet(values []string) map[activity.LogType]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[activity.LogType]struct{}, len(values))
	for _, v := range values {
		set[activity.LogType(v)] = struct{}{}
	}
	return set
}

func toLevelSet(values []string) map[activity.Level]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[activity.Level]struct{}, len(values))
	for _, v := range values {
		set[activity.Level(v)] = struct{}{}
	}
	return set
}
