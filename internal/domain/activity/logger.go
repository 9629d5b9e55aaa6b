package activity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mcpbox/internal/domain/query"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/infrastructure/metrics"
)

const (
	// ringCapacity bounds the in-memory buffer served by RecentLogs.
	ringCapacity = 1000
	// maxNotificationTasks bounds concurrent listener-notification
	// goroutines; beyond it notifications are dropped, never queued.
	maxNotificationTasks = 100
	// flushTimeout caps one batch insert.
	flushTimeout = 10 * time.Second
)

// RedactionPolicy reports whether sensitive detail keys must be redacted.
// It must not block: it is consulted on every Log call.
type RedactionPolicy interface {
	RedactionEnabled() bool
}

// alwaysRedact is the policy used when none is supplied.
type alwaysRedact struct{}

func (alwaysRedact) RedactionEnabled() bool { return true }

// Logger collects activity entries without blocking callers. Entries are
// buffered and bulk-inserted on a short interval; a bounded ring keeps the
// most recent entries for instant reads, and registered listeners receive
// every entry for live broadcast.
//
// One mutex guards the pending buffer, the flush flag, the ring, and the
// listener bookkeeping. No I/O happens while it is held.
type Logger struct {
	repo      Repository
	redaction RedactionPolicy
	logger    zerolog.Logger

	batchInterval time.Duration
	batchSize     int
	maxRequeue    int

	mu             sync.Mutex
	pending        []*Entry
	flushScheduled bool
	ring           []*Entry
	ringStart      int
	ringCount      int
	listeners      map[int]func(Entry)
	nextListenerID int
	notifyTasks    map[int]struct{}
	nextTaskID     int
}

// NewLogger creates the process-wide activity logger. redaction may be nil,
// in which case redaction is always on.
func NewLogger(repo Repository, redaction RedactionPolicy, batchInterval time.Duration, batchSize int) *Logger {
	if batchInterval <= 0 {
		batchInterval = 100 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if redaction == nil {
		redaction = alwaysRedact{}
	}
	return &Logger{
		repo:          repo,
		redaction:     redaction,
		logger:        logger.Component("activity"),
		batchInterval: batchInterval,
		batchSize:     batchSize,
		maxRequeue:    batchSize * 10,
		ring:          make([]*Entry, ringCapacity),
		listeners:     make(map[int]func(Entry)),
		notifyTasks:   make(map[int]struct{}),
	}
}

// Log records one entry. It sanitizes details, buffers the entry for the
// next batch insert, pushes it into the recent-entries ring, and fans it
// out to listeners. It never blocks on the database.
func (l *Logger) Log(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}
	e.Details = Sanitize(e.Details, l.redaction.RedactionEnabled())

	entry := e

	l.mu.Lock()
	l.pending = append(l.pending, &entry)
	l.ringPush(&entry)

	if len(l.listeners) > 0 {
		if len(l.notifyTasks) >= maxNotificationTasks {
			l.logger.Warn().Int("tasks", len(l.notifyTasks)).Msg("listener notification dropped: task limit reached")
		} else {
			snapshot := make([]func(Entry), 0, len(l.listeners))
			for _, fn := range l.listeners {
				snapshot = append(snapshot, fn)
			}
			taskID := l.nextTaskID
			l.nextTaskID++
			l.notifyTasks[taskID] = struct{}{}
			go l.runNotifyTask(taskID, snapshot, entry)
		}
	}

	l.scheduleFlushLocked()
	l.mu.Unlock()
}

func (l *Logger) runNotifyTask(taskID int, listeners []func(Entry), e Entry) {
	defer func() {
		l.mu.Lock()
		delete(l.notifyTasks, taskID)
		l.mu.Unlock()
	}()
	for _, fn := range listeners {
		fn(e)
	}
}

// scheduleFlushLocked ensures exactly one flush task is in flight. Callers
// must hold l.mu.
func (l *Logger) scheduleFlushLocked() {
	if l.flushScheduled {
		return
	}
	l.flushScheduled = true
	go l.flushAfterDelay()
}

func (l *Logger) flushAfterDelay() {
	time.Sleep(l.batchInterval)

	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	var insertErr error
	if len(batch) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		insertErr = l.repo.CreateBatch(ctx, batch)
		cancel()
	}

	l.mu.Lock()
	if insertErr != nil {
		l.logger.Error().Err(insertErr).Int("batch", len(batch)).Msg("activity batch insert failed, requeueing")
		combined := make([]*Entry, 0, len(batch)+len(l.pending))
		combined = append(combined, batch...)
		combined = append(combined, l.pending...)
		if len(combined) > l.maxRequeue {
			dropped := len(combined) - l.maxRequeue
			combined = combined[dropped:]
			metrics.RecordDroppedActivityLogs(dropped)
			l.logger.Warn().Int("dropped", dropped).Msg("activity backlog over limit, dropping oldest entries")
		}
		l.pending = combined
	}
	l.flushScheduled = false
	if len(l.pending) > 0 {
		l.scheduleFlushLocked()
	}
	l.mu.Unlock()
}

// Flush synchronously drains the pending buffer. Used on shutdown.
func (l *Logger) Flush(ctx context.Context) error {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return l.repo.CreateBatch(ctx, batch)
}

func (l *Logger) ringPush(e *Entry) {
	if l.ringCount < ringCapacity {
		l.ring[(l.ringStart+l.ringCount)%ringCapacity] = e
		l.ringCount++
		return
	}
	l.ring[l.ringStart] = e
	l.ringStart = (l.ringStart + 1) % ringCapacity
}

// RecentLogs returns up to n of the most recent entries in chronological
// order, straight from memory.
func (l *Logger) RecentLogs(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.ringCount {
		n = l.ringCount
	}
	out := make([]Entry, 0, n)
	for i := l.ringCount - n; i < l.ringCount; i++ {
		out = append(out, *l.ring[(l.ringStart+i)%ringCapacity])
	}
	return out
}

// AddListener registers a callback invoked for every logged entry. The
// callback must not block. Returns an id for RemoveListener.
func (l *Logger) AddListener(fn func(Entry)) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextListenerID
	l.nextListenerID++
	l.listeners[id] = fn
	return id
}

// RemoveListener unregisters a listener.
func (l *Logger) RemoveListener(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.listeners, id)
}

// List queries persisted entries.
func (l *Logger) List(ctx context.Context, filter Filter, p *query.Pagination) ([]*Entry, int64, error) {
	entries, err := l.repo.FindByFilter(ctx, filter, p)
	if err != nil {
		return nil, 0, err
	}
	count, err := l.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return entries, count, nil
}

// Stats aggregates persisted entries.
func (l *Logger) Stats(ctx context.Context, q StatsQuery) (*Stats, error) {
	return l.repo.Stats(ctx, q)
}

// CleanupOldLogs deletes entries older than retentionDays and returns the
// number removed.
func (l *Logger) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	deleted, err := l.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		l.logger.Info().Int64("deleted", deleted).Int("retention_days", retentionDays).Msg("activity log cleanup complete")
	}
	return deleted, nil
}

// LogMCPRequest records an inbound gateway request before it is handled.
func (l *Logger) LogMCPRequest(requestID, method string, params map[string]any, serverID *string) {
	l.Log(Entry{
		ServerID:  serverID,
		LogType:   TypeMCPRequest,
		Level:     LevelInfo,
		Message:   "MCP request: " + method,
		Details:   map[string]any{"method": method, "params": params},
		RequestID: requestID,
	})
}

// LogMCPResponse records the outcome of a gateway request. It is always
// logged after the matching LogMCPRequest so the ring preserves pairing.
func (l *Logger) LogMCPResponse(requestID, method string, success bool, durationMS int, errMsg string) {
	level := LevelInfo
	details := map[string]any{"method": method, "success": success}
	if !success {
		level = LevelError
		details["error"] = errMsg
	}
	d := durationMS
	l.Log(Entry{
		LogType:    TypeMCPResponse,
		Level:      level,
		Message:    "MCP response: " + method,
		Details:    details,
		RequestID:  requestID,
		DurationMS: &d,
	})
}

// LogAlert records an operator-facing warning.
func (l *Logger) LogAlert(message string, details map[string]any) {
	l.Log(Entry{LogType: TypeAlert, Level: LevelWarning, Message: message, Details: details})
}

// LogError records an operational error.
func (l *Logger) LogError(message string, details map[string]any) {
	l.Log(Entry{LogType: TypeError, Level: LevelError, Message: message, Details: details})
}

// LogAudit records an administrative mutation.
func (l *Logger) LogAudit(message string, details map[string]any) {
	l.Log(Entry{LogType: TypeAudit, Level: LevelInfo, Message: message, Details: details})
}

// LogSystem records lifecycle events (startup, registration, scheduler).
func (l *Logger) LogSystem(message string, details map[string]any) {
	l.Log(Entry{LogType: TypeSystem, Level: LevelInfo, Message: message, Details: details})
}
