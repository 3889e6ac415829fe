package handlers

import (
	"encoding/json"
	"time"

	"modchat/pkg/logger"
	"modchat/pkg/metrics"
	"modchat/pkg/models"
	"modchat/pkg/moderation"
	"modchat/pkg/utils"
)

// Env bundles the moderation engine and scan queue shared by handlers.
type Env struct {
	Engine *moderation.Engine
	Scan   *moderation.ScanQueue
}

// enqueueReviewItem serializes the item onto the scan queue; the workers
// persist it. Overflow is counted, logged and otherwise dropped; flags
// are advisory and message delivery never depends on them.
func (e *Env) enqueueReviewItem(item models.QueueItem) {
	if e.Scan == nil {
		return
	}
	if item.CreatedTS == 0 {
		item.CreatedTS = time.Now().UTC().UnixNano()
	}
	b, err := json.Marshal(item)
	if err != nil {
		logger.Error("flag_marshal_failed", "source", item.SourceID, "error", err)
		return
	}
	if err := e.Scan.TryEnqueue(item.ID, b); err != nil {
		metrics.ScanQueueDropped.Inc()
		logger.Warn("flag_dropped", "source", item.SourceID, "error", err)
		return
	}
	metrics.ScanQueueDepth.Set(float64(e.Scan.Len()))
}

// newQueueItem builds a pending queue item snapshotting the message
// content at flag time.
func newQueueItem(m models.Message, cats []models.CategoryScore, bl []models.BlocklistMatch) models.QueueItem {
	return models.QueueItem{
		ID:         utils.GenQueueItemID(),
		SourceID:   m.ID,
		Thread:     m.Thread,
		Author:     m.Author,
		Content:    m.Body,
		Categories: cats,
		Blocklist:  bl,
		Status:     models.StatusPending,
		CreatedTS:  time.Now().UTC().UnixNano(),
	}
}
