package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"modchat/pkg/logger"
	"modchat/pkg/models"
	"modchat/pkg/utils"

	"github.com/cockroachdb/pebble"
)

var db *pebble.DB

// seq reduces key collisions when multiple writes share the same
// nanosecond timestamp.
var seq uint64

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notOpen() error { return fmt.Errorf("pebble not opened; call store.Open first") }

func sortKey(ts int64, s uint64) string { return fmt.Sprintf("%020d-%06d", ts, s) }

// SaveMessage appends a message version to its thread. Messages are
// ordered by insertion time via a sortable timestamp prefix; every write
// is also indexed under the message ID so versions can be listed.
func SaveMessage(msg models.Message) error {
	if db == nil {
		return notOpen()
	}
	ts := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&seq, 1)
	// Key format: thread:<threadID>:msg:<unix_nano_padded>-<seq>
	key := fmt.Sprintf("thread:%s:msg:%s", msg.Thread, sortKey(ts, s))

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("save_message_failed", "thread", msg.Thread, "key", key, "error", err)
		return err
	}
	if msg.ID != "" {
		idxKey := fmt.Sprintf("version:msg:%s:%s", msg.ID, sortKey(ts, s))
		if err := db.Set([]byte(idxKey), data, pebble.Sync); err != nil {
			logger.Error("save_message_index_failed", "key", idxKey, "error", err)
			return err
		}
	}
	logger.Debug("message_saved", "thread", msg.Thread, "id", msg.ID)
	return nil
}

// ListMessages returns the latest version of every message in a thread,
// in insertion order. An optional limit keeps only the newest n entries.
func ListMessages(threadID string, limit ...int) ([]models.Message, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("thread:" + threadID + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	// A message appears once per version under the thread prefix; keep the
	// last version seen and preserve first-insertion order.
	byID := map[string]int{}
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Warn("list_messages_bad_value", "thread", threadID, "error", err)
			continue
		}
		if idx, ok := byID[m.ID]; ok && m.ID != "" {
			out[idx] = m
			continue
		}
		byID[m.ID] = len(out)
		out = append(out, m)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if len(limit) > 0 && limit[0] >= 0 && limit[0] < len(out) {
		out = out[len(out)-limit[0]:]
	}
	return out, nil
}

// ListMessageVersions returns all stored versions for a message ID in
// chronological order.
func ListMessageVersions(msgID string) ([]models.Message, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("version:msg:" + msgID + ":")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid message JSON: %w", err)
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// GetLatestMessage returns the latest version for a message ID or an
// error if none found.
func GetLatestMessage(msgID string) (models.Message, error) {
	vers, err := ListMessageVersions(msgID)
	if err != nil {
		return models.Message{}, err
	}
	if len(vers) == 0 {
		return models.Message{}, fmt.Errorf("message not found: %s", msgID)
	}
	return vers[len(vers)-1], nil
}

// SaveThread stores thread metadata under a reserved key.
func SaveThread(th models.Thread) error {
	if db == nil {
		return notOpen()
	}
	data, err := json.Marshal(th)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}
	key := []byte("thread:" + th.ID + ":meta")
	if err := db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("save_thread_failed", "thread", th.ID, "error", err)
		return err
	}
	logger.Debug("thread_saved", "thread", th.ID)
	return nil
}

// GetThread returns the stored thread metadata for a given thread ID.
func GetThread(threadID string) (models.Thread, error) {
	if db == nil {
		return models.Thread{}, notOpen()
	}
	key := []byte("thread:" + threadID + ":meta")
	v, closer, err := db.Get(key)
	if err != nil {
		return models.Thread{}, err
	}
	if closer != nil {
		defer closer.Close()
	}
	var th models.Thread
	if err := json.Unmarshal(v, &th); err != nil {
		return models.Thread{}, fmt.Errorf("invalid thread metadata: %w", err)
	}
	return th, nil
}

// SoftDeleteThread marks the thread as deleted and appends a tombstone
// message so clients see when and by whom.
func SoftDeleteThread(threadID, actor string) error {
	th, err := GetThread(threadID)
	if err != nil {
		logger.Error("soft_delete_load_failed", "thread", threadID, "error", err)
		return err
	}
	th.Deleted = true
	th.DeletedTS = time.Now().UTC().UnixNano()
	if err := SaveThread(th); err != nil {
		return err
	}
	tomb := models.Message{
		ID:      utils.GenID(),
		Thread:  threadID,
		Author:  actor,
		TS:      th.DeletedTS,
		Body:    models.DeletedPlaceholder,
		Deleted: true,
	}
	if err := SaveMessage(tomb); err != nil {
		logger.Error("soft_delete_append_tombstone_failed", "thread", threadID, "error", err)
		return err
	}
	logger.Info("thread_soft_deleted", "thread", threadID, "actor", actor)
	return nil
}

// ListThreads returns all saved thread metadata values.
func ListThreads() ([]models.Thread, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("thread:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Thread
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var th models.Thread
		if err := json.Unmarshal(iter.Value(), &th); err != nil {
			continue
		}
		out = append(out, th)
	}
	return out, iter.Error()
}
