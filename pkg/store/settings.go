package store

import (
	"encoding/json"
	"fmt"

	"modchat/pkg/moderation"

	"github.com/cockroachdb/pebble"
)

const settingsKey = "config:moderation"

// SaveModerationSettings persists the admin-editable moderation settings.
func SaveModerationSettings(s moderation.Settings) error {
	if db == nil {
		return notOpen()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return db.Set([]byte(settingsKey), data, pebble.Sync)
}

// GetModerationSettings returns the stored settings, or (ok=false) when
// none were ever saved.
func GetModerationSettings() (moderation.Settings, bool, error) {
	if db == nil {
		return moderation.Settings{}, false, notOpen()
	}
	v, closer, err := db.Get([]byte(settingsKey))
	if err != nil {
		if err == pebble.ErrNotFound {
			return moderation.Settings{}, false, nil
		}
		return moderation.Settings{}, false, err
	}
	if closer != nil {
		defer closer.Close()
	}
	var s moderation.Settings
	if err := json.Unmarshal(v, &s); err != nil {
		return moderation.Settings{}, false, fmt.Errorf("invalid stored settings: %w", err)
	}
	return s, true, nil
}
