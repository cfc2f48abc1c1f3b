package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/queue"
)

// MessageType tags queued history entries.
const MessageType = "history.append"

var _ attendance.Recorder = (*QueueRecorder)(nil)

// QueueRecorder defers history writes to a worker. Append reports true once
// the entry is queued; the worker does the dedupe.
type QueueRecorder struct {
	q queue.Queue
}

func NewQueueRecorder(q queue.Queue) *QueueRecorder {
	return &QueueRecorder{q: q}
}

func (r *QueueRecorder) Append(ctx context.Context, entry attendance.HistoryEntry) (bool, error) {
	body, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}
	if err := r.q.Publish(ctx, queue.Message{Type: MessageType, Body: body}); err != nil {
		return false, fmt.Errorf("publish history entry: %w", err)
	}
	return true, nil
}

// Drain consumes queued entries into store until ctx ends.
func Drain(ctx context.Context, q queue.Queue, store Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	msgs, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for msg := range msgs {
		// A message already taken off the queue is stored even during shutdown.
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		apply(writeCtx, store, msg, logger)
		cancel()
	}
	return ctx.Err()
}

// Flush stores messages left behind after Drain stopped and reports how many
// were history entries.
func Flush(ctx context.Context, msgs []queue.Message, store Store, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	n := 0
	for _, msg := range msgs {
		if apply(ctx, store, msg, logger) {
			n++
		}
	}
	return n
}

func apply(ctx context.Context, store Store, msg queue.Message, logger *slog.Logger) bool {
	if msg.Type != MessageType {
		logger.Warn("skipping unknown message", "type", msg.Type)
		return false
	}
	var entry attendance.HistoryEntry
	if err := json.Unmarshal(msg.Body, &entry); err != nil {
		logger.Warn("skipping malformed history entry", "error", err)
		return false
	}
	added, err := store.Append(ctx, entry)
	if err != nil {
		logger.Error("history append failed", "station", entry.Station, "id", entry.Identifier, "error", err)
		return false
	}
	logger.Info("history entry stored", "station", entry.Station, "id", entry.Identifier, "added", added)
	return true
}
