package streamhandler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/query"
)

type fakeActivityRepo struct{}

func (fakeActivityRepo) CreateBatch(context.Context, []*activity.Entry) error { return nil }
func (fakeActivityRepo) FindByFilter(context.Context, activity.Filter, *query.Pagination) ([]*activity.Entry, error) {
	return nil, nil
}
func (fakeActivityRepo) Count(context.Context, activity.Filter) (int64, error) { return 0, nil }
func (fakeActivityRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}
func (fakeActivityRepo) Stats(context.Context, activity.StatsQuery) (*activity.Stats, error) {
	return &activity.Stats{}, nil
}

func newTestHandler() *StreamHandler {
	return &StreamHandler{
		logger:      zerolog.Nop(),
		connections: make(map[string]*connection),
	}
}

func addConnection(h *StreamHandler, id string, f Filters, capacity int) *connection {
	conn := &connection{id: id, queue: make(chan activity.Entry, capacity), filters: f}
	h.register(conn)
	return conn
}

func strptr(s string) *string { return &s }

func TestFiltersMatch(t *testing.T) {
	entry := activity.Entry{
		ServerID: strptr("srv-1"),
		LogType:  activity.TypeAlert,
		Level:    activity.LevelWarning,
	}

	assert.True(t, Filters{}.Match(entry))
	assert.True(t, Filters{ServerID: strptr("srv-1")}.Match(entry))
	assert.False(t, Filters{ServerID: strptr("srv-2")}.Match(entry))
	assert.False(t, Filters{ServerID: strptr("srv-1")}.Match(activity.Entry{LogType: activity.TypeAlert}))

	typed := Filters{LogTypes: toLogTypeSet([]string{"alert", "error"})}
	assert.True(t, typed.Match(entry))
	assert.False(t, typed.Match(activity.Entry{LogType: activity.TypeSystem}))

	leveled := Filters{Levels: toLevelSet([]string{"error"})}
	assert.False(t, leveled.Match(entry))
	assert.True(t, leveled.Match(activity.Entry{Level: activity.LevelError}))
}

func TestBroadcastDeliversToMatchingConnections(t *testing.T) {
	h := newTestHandler()
	all := addConnection(h, "all", Filters{}, 10)
	alertsOnly := addConnection(h, "alerts", Filters{LogTypes: toLogTypeSet([]string{"alert"})}, 10)

	h.broadcast(activity.Entry{LogType: activity.TypeSystem, Message: "boot"})
	h.broadcast(activity.Entry{LogType: activity.TypeAlert, Message: "sandbox down"})

	require.Len(t, all.queue, 2)
	require.Len(t, alertsOnly.queue, 1)
	got := <-alertsOnly.queue
	assert.Equal(t, "sandbox down", got.Message)
}

func TestBroadcastDropsWhenQueueFull(t *testing.T) {
	h := newTestHandler()
	conn := addConnection(h, "slow", Filters{}, 1)

	done := make(chan struct{})
	go func() {
		h.broadcast(activity.Entry{Message: "first"})
		h.broadcast(activity.Entry{Message: "second"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full queue")
	}

	require.Len(t, conn.queue, 1)
	got := <-conn.queue
	assert.Equal(t, "first", got.Message)
}

func TestUpdateFilterUnknownConnection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestHandler()
	engine := gin.New()
	engine.POST("/v1/admin/stream/:id/filter", h.UpdateFilter)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/stream/nope/filter", strings.NewReader(`{"levels":["error"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateFilterChangesLiveConnection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestHandler()
	conn := addConnection(h, "conn-1", Filters{}, 10)

	engine := gin.New()
	engine.POST("/v1/admin/stream/:id/filter", h.UpdateFilter)

	body := bytes.NewReader([]byte(`{"server_id":"srv-9","log_types":["mcp_request"]}`))
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/stream/conn-1/filter", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	h.broadcast(activity.Entry{ServerID: strptr("srv-9"), LogType: activity.TypeMCPRequest})
	h.broadcast(activity.Entry{ServerID: strptr("srv-9"), LogType: activity.TypeSystem})
	h.broadcast(activity.Entry{ServerID: strptr("other"), LogType: activity.TypeMCPRequest})

	require.Len(t, conn.queue, 1)
}

func TestListenerReceivesLoggedEntries(t *testing.T) {
	activityLogger := activity.NewLogger(fakeActivityRepo{}, nil, time.Hour, 100)
	h := NewStreamHandler(activityLogger)
	conn := addConnection(h, "live", Filters{}, 10)

	activityLogger.Log(activity.Entry{LogType: activity.TypeAudit, Message: "server created"})

	require.Eventually(t, func() bool { return len(conn.queue) == 1 }, time.Second, 5*time.Millisecond)
	got := <-conn.queue
	assert.Equal(t, "server created", got.Message)
}

func TestStreamSendsConnectedAndLogEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestHandler()
	engine := gin.New()
	engine.GET("/v1/admin/stream", h.Stream)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/stream?log_types=alert", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			h.mu.Lock()
			n := len(h.connections)
			h.mu.Unlock()
			if n == 1 {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		h.broadcast(activity.Entry{LogType: activity.TypeSystem, Message: "filtered out"})
		h.broadcast(activity.Entry{LogType: activity.TypeAlert, Message: "sandbox unreachable"})
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	engine.ServeHTTP(rec, req)
	wg.Wait()

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, `"type":"connected"`)
	assert.Contains(t, body, "event: log")
	assert.Contains(t, body, "sandbox unreachable")
	assert.NotContains(t, body, "filtered out")

	h.mu.Lock()
	remaining := len(h.connections)
	h.mu.Unlock()
	assert.Zero(t, remaining)
}
