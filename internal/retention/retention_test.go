package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"modchat/pkg/config"
	"modchat/pkg/models"
	"modchat/pkg/store"
)

func seedResolvedItems(t *testing.T) {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })

	old := time.Now().UTC().Add(-72 * time.Hour).UnixNano()
	require.NoError(t, store.SaveQueueItem(models.QueueItem{ID: "old", Status: models.StatusApproved, ReviewedTS: old}))
	require.NoError(t, store.SaveQueueItem(models.QueueItem{ID: "fresh", Status: models.StatusRejected, ReviewedTS: time.Now().UTC().UnixNano()}))
	require.NoError(t, store.SaveQueueItem(models.QueueItem{ID: "open", Status: models.StatusPending}))
}

func TestRunOncePurgesOnlyOldResolved(t *testing.T) {
	seedResolvedItems(t)

	ret := config.RetentionConfig{Enabled: true, Period: config.Duration(24 * time.Hour)}
	require.NoError(t, RunOnce(ret))

	items, err := store.ListQueueItems("all")
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		require.NotEqual(t, "old", it.ID)
	}
}

func TestRunOnceDryRunDeletesNothing(t *testing.T) {
	seedResolvedItems(t)

	ret := config.RetentionConfig{Enabled: true, Period: config.Duration(24 * time.Hour), DryRun: true}
	require.NoError(t, RunOnce(ret))

	items, err := store.ListQueueItems("all")
	require.NoError(t, err)
	require.Len(t, items, 3)
}

func TestStartDisabledReturnsNoopCancel(t *testing.T) {
	cancel, err := Start(context.Background(), config.RetentionConfig{})
	require.NoError(t, err)
	cancel()
}

func TestStartRejectsBadConfig(t *testing.T) {
	_, err := Start(context.Background(), config.RetentionConfig{Enabled: true})
	require.Error(t, err)

	_, err = Start(context.Background(), config.RetentionConfig{
		Enabled: true,
		Period:  config.Duration(time.Hour),
		Cron:    "not a cron",
	})
	require.Error(t, err)
}
