package db

import (
	"context"
	"time"

	"go.uber.org/zap"

	"srdash/pages"
)

// HistoryWriter records settled enhancement tasks without blocking the
// page that settled them. It implements pages.HistoryRecorder.
type HistoryWriter struct {
	repo   *Repository
	writer *AsyncWriter[pages.EnhancementRecord]
	logger *zap.Logger
}

// NewHistoryWriter creates and starts a writer backed by repo.
func NewHistoryWriter(repo *Repository, capacity int, logger *zap.Logger) *HistoryWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HistoryWriter{
		repo:   repo,
		logger: logger.Named("history"),
	}
	h.writer = NewAsyncWriter(h.insert, capacity)
	h.writer.Start()
	return h
}

func (h *HistoryWriter) insert(ctx context.Context, rec pages.EnhancementRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := h.repo.InsertEnhancement(ctx, rec); err != nil {
		h.logger.Error("failed to record enhancement",
			zap.String("task_id", rec.TaskID),
			zap.Error(err))
		return err
	}
	return nil
}

// RecordEnhancement queues rec. When the queue is full the record is
// written synchronously instead of being lost.
func (h *HistoryWriter) RecordEnhancement(rec pages.EnhancementRecord) {
	if h.writer.Write(rec) {
		return
	}
	h.logger.Warn("history queue full, writing synchronously", zap.String("task_id", rec.TaskID))
	_ = h.insert(context.Background(), rec)
}

// Close drains queued records.
func (h *HistoryWriter) Close() error {
	if !h.writer.Stop(DefaultDrainTimeout) {
		h.logger.Warn("history writer did not drain in time", zap.Int("pending", h.writer.Pending()))
	}
	return nil
}
