package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const batchSize = 50

// DBHandler is an slog.Handler that batches records at or above a level into
// the sync_logs table.
type DBHandler struct {
	store Store
	level slog.Leveler
	attrs []slog.Attr

	state *bufferState
}

type bufferState struct {
	mu     sync.Mutex
	buffer []models.SyncLog
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup

	fallback *slog.Logger
}

func NewDBHandler(store Store, level slog.Leveler) *DBHandler {
	h := &DBHandler{
		store: store,
		level: level,
		state: &bufferState{
			buffer: make([]models.SyncLog, 0, batchSize),
			ticker: time.NewTicker(5 * time.Second),
			done:   make(chan struct{}),

			fallback: slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		},
	}
	h.state.wg.Add(1)
	go h.flushLoop()
	return h
}

func (h *DBHandler) flushLoop() {
	defer h.state.wg.Done()
	for {
		select {
		case <-h.state.ticker.C:
			h.flush()
		case <-h.state.done:
			h.flush()
			return
		}
	}
}

func (h *DBHandler) flush() {
	s := h.state
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.buffer
	s.buffer = make([]models.SyncLog, 0, batchSize)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.store.Write(ctx, batch); err != nil {
		// Must not go through slog.Default, which fans out to this handler.
		h.state.fallback.Warn("failed to flush sync logs to DB", "error", err, "count", len(batch))
	}
}

// Stop flushes what is buffered and ends the background loop.
func (h *DBHandler) Stop() {
	h.state.ticker.Stop()
	close(h.state.done)
	h.state.wg.Wait()
}

func (h *DBHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *DBHandler) Handle(ctx context.Context, record slog.Record) error {
	entry := models.SyncLog{
		ID:        uuid.New(),
		Timestamp: record.Time.UTC(),
		Level:     record.Level.String(),
		Message:   record.Message,
		RequestID: RequestID(ctx),
	}

	extra := make(map[string]interface{})
	apply := func(a slog.Attr) bool {
		a.Value = a.Value.Resolve()
		switch a.Key {
		case "request_id":
			entry.RequestID = a.Value.String()
		case "event":
			entry.Event = a.Value.String()
		case "action_type":
			entry.ActionType = a.Value.String()
		case "email":
			entry.Email = a.Value.String()
		case "product_id":
			entry.ProductID = a.Value.String()
		case "membership_id":
			if id, ok := int64Value(a.Value); ok {
				entry.MembershipID = &id
			}
		case "error":
			entry.Error = a.Value.String()
		case "latency_ms":
			switch a.Value.Kind() {
			case slog.KindFloat64:
				entry.LatencyMs = int(math.Round(a.Value.Float64()))
			case slog.KindInt64:
				entry.LatencyMs = int(a.Value.Int64())
			case slog.KindDuration:
				entry.LatencyMs = int(a.Value.Duration().Milliseconds())
			}
		default:
			extra[a.Key] = a.Value.Any()
		}
		return true
	}
	for _, a := range h.attrs {
		apply(a)
	}
	record.Attrs(apply)

	if len(extra) > 0 {
		if b, err := json.Marshal(extra); err == nil {
			entry.Extra = datatypes.JSON(b)
		}
	}

	s := h.state
	s.mu.Lock()
	s.buffer = append(s.buffer, entry)
	needFlush := len(s.buffer) >= batchSize
	s.mu.Unlock()

	if needFlush {
		go h.flush()
	}
	return nil
}

func (h *DBHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

// WithGroup is a no-op; rows are flat.
func (h *DBHandler) WithGroup(string) slog.Handler {
	return h
}

func int64Value(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	}
	return 0, false
}
