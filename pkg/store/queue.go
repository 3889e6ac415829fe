package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"modchat/pkg/logger"
	"modchat/pkg/models"

	"github.com/cockroachdb/pebble"
)

// Queue items live under two namespaces: an ordered entry
// modq:item:<unix_nano_padded>-<seq> holding the JSON value, and an index
// modq:id:<itemID> pointing at that entry so updates land in place.

// SaveQueueItem writes a new queue item at the tail of the queue order
// and indexes it by ID.
func SaveQueueItem(item models.QueueItem) error {
	if db == nil {
		return notOpen()
	}
	ts := item.CreatedTS
	if ts == 0 {
		ts = time.Now().UTC().UnixNano()
		item.CreatedTS = ts
	}
	s := atomic.AddUint64(&seq, 1)
	key := fmt.Sprintf("modq:item:%s", sortKey(ts, s))
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("save_queue_item_failed", "id", item.ID, "error", err)
		return err
	}
	idxKey := []byte("modq:id:" + item.ID)
	if err := db.Set(idxKey, []byte(key), pebble.Sync); err != nil {
		logger.Error("save_queue_index_failed", "id", item.ID, "error", err)
		return err
	}
	logger.Debug("queue_item_saved", "id", item.ID, "source", item.SourceID)
	return nil
}

// GetQueueItem returns a queue item by ID.
func GetQueueItem(id string) (models.QueueItem, error) {
	if db == nil {
		return models.QueueItem{}, notOpen()
	}
	entryKey, err := queueEntryKey(id)
	if err != nil {
		return models.QueueItem{}, err
	}
	v, closer, err := db.Get(entryKey)
	if err != nil {
		return models.QueueItem{}, fmt.Errorf("queue item missing entry: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	var item models.QueueItem
	if err := json.Unmarshal(v, &item); err != nil {
		return models.QueueItem{}, fmt.Errorf("invalid queue item JSON: %w", err)
	}
	return item, nil
}

// UpdateQueueItem rewrites an existing item in place, keeping its queue
// position.
func UpdateQueueItem(item models.QueueItem) error {
	if db == nil {
		return notOpen()
	}
	entryKey, err := queueEntryKey(item.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}
	if err := db.Set(entryKey, data, pebble.Sync); err != nil {
		logger.Error("update_queue_item_failed", "id", item.ID, "error", err)
		return err
	}
	return nil
}

// ListQueueItems returns queue items in flag order. An empty or "all"
// status returns everything; otherwise items are filtered by status.
func ListQueueItems(status models.QueueStatus) ([]models.QueueItem, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("modq:item:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.QueueItem
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var item models.QueueItem
		if err := json.Unmarshal(iter.Value(), &item); err != nil {
			logger.Warn("list_queue_bad_value", "error", err)
			continue
		}
		if status != "" && status != "all" && item.Status != status {
			continue
		}
		out = append(out, item)
	}
	return out, iter.Error()
}

// PurgeResolvedBefore deletes approved/rejected queue items reviewed
// before the cutoff (ns). Returns how many items were removed. When
// dryRun is set nothing is deleted and the would-be count is returned.
func PurgeResolvedBefore(cutoff int64, batchSize int, dryRun bool) (int, error) {
	if db == nil {
		return 0, notOpen()
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	prefix := []byte("modq:item:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	type victim struct{ entry, idx []byte }
	var victims []victim
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var item models.QueueItem
		if err := json.Unmarshal(iter.Value(), &item); err != nil {
			continue
		}
		if !item.Status.Terminal() || item.ReviewedTS == 0 || item.ReviewedTS >= cutoff {
			continue
		}
		victims = append(victims, victim{
			entry: append([]byte(nil), iter.Key()...),
			idx:   []byte("modq:id:" + item.ID),
		})
		if len(victims) >= batchSize {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if dryRun {
		return len(victims), nil
	}
	for _, v := range victims {
		if err := db.Delete(v.entry, pebble.Sync); err != nil {
			return 0, err
		}
		if err := db.Delete(v.idx, pebble.Sync); err != nil {
			return 0, err
		}
	}
	return len(victims), nil
}

func queueEntryKey(id string) ([]byte, error) {
	idxKey := []byte("modq:id:" + id)
	v, closer, err := db.Get(idxKey)
	if err != nil {
		return nil, fmt.Errorf("queue item not found: %s", id)
	}
	key := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return key, nil
}
