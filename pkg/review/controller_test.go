package review

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"modchat/pkg/models"
)

// fakeQueueService scripts queue loads and review outcomes and records
// the order reviews arrive in.
type fakeQueueService struct {
	mu          sync.Mutex
	queues      map[models.QueueStatus][]models.QueueItem
	loadErr     error
	loadCount   int
	reviewErrs  map[string]error
	reviewOrder []string
}

func newFakeQueueService() *fakeQueueService {
	return &fakeQueueService{
		queues:     map[models.QueueStatus][]models.QueueItem{},
		reviewErrs: map[string]error{},
	}
}

func (f *fakeQueueService) GetQueue(_ context.Context, status models.QueueStatus) ([]models.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCount++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return append([]models.QueueItem(nil), f.queues[status]...), nil
}

func (f *fakeQueueService) ReviewItem(_ context.Context, itemID string, decision models.ReviewDecision, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviewOrder = append(f.reviewOrder, itemID)
	return f.reviewErrs[itemID]
}

func (f *fakeQueueService) loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadCount
}

func (f *fakeQueueService) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reviewOrder...)
}

func pendingItems(ids ...string) []models.QueueItem {
	out := make([]models.QueueItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.QueueItem{ID: id, Status: models.StatusPending})
	}
	return out
}

func TestLoadQueueReplacesCache(t *testing.T) {
	svc := newFakeQueueService()
	svc.queues[models.StatusPending] = pendingItems("a", "b")
	c := NewController(svc, "mod-1")

	items, err := c.LoadQueue(context.Background(), models.StatusPending)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// a later load is authoritative, not merged
	svc.queues[models.StatusPending] = pendingItems("c")
	items, err = c.LoadQueue(context.Background(), models.StatusPending)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "c", items[0].ID)
	require.Equal(t, "c", c.Items()[0].ID)
}

func TestLoadQueueFailureKeepsCacheAndFilter(t *testing.T) {
	svc := newFakeQueueService()
	svc.queues[models.StatusPending] = pendingItems("a", "b")
	c := NewController(svc, "mod-1")

	_, err := c.LoadQueue(context.Background(), models.StatusPending)
	require.NoError(t, err)

	svc.loadErr = errors.New("upstream down")
	_, err = c.LoadQueue(context.Background(), FilterAll)
	require.Error(t, err)
	require.Len(t, c.Items(), 2)
	require.Equal(t, models.StatusPending, c.Filter())
}

func TestLoadQueueSwitchesFilter(t *testing.T) {
	svc := newFakeQueueService()
	svc.queues[models.StatusPending] = pendingItems("a")
	svc.queues[models.StatusRejected] = []models.QueueItem{{ID: "z", Status: models.StatusRejected}}
	c := NewController(svc, "mod-1")

	_, err := c.LoadQueue(context.Background(), models.StatusRejected)
	require.NoError(t, err)
	require.Equal(t, models.StatusRejected, c.Filter())
	require.Equal(t, "z", c.Items()[0].ID)
}

func TestReviewOneRefreshesUnderActiveFilter(t *testing.T) {
	svc := newFakeQueueService()
	svc.queues[models.StatusPending] = pendingItems("a", "b")
	c := NewController(svc, "mod-1")
	_, err := c.LoadQueue(context.Background(), models.StatusPending)
	require.NoError(t, err)

	c.ToggleSelection("a")
	svc.queues[models.StatusPending] = pendingItems("b")

	require.NoError(t, c.ReviewOne(context.Background(), "a", models.DecisionApproved, "looks fine"))
	require.False(t, c.IsSelected("a"))
	items := c.Items()
	require.Len(t, items, 1)
	require.Equal(t, "b", items[0].ID)
}

func TestReviewOneInvalidDecision(t *testing.T) {
	svc := newFakeQueueService()
	c := NewController(svc, "mod-1")
	err := c.ReviewOne(context.Background(), "a", models.ReviewDecision("escalated"), "")
	require.Error(t, err)
	require.Empty(t, svc.order())
}

func TestReviewOneSurfacesTerminalConflict(t *testing.T) {
	svc := newFakeQueueService()
	svc.queues[models.StatusPending] = pendingItems("a")
	conflict := errors.New("item already reviewed")
	svc.reviewErrs["a"] = conflict
	c := NewController(svc, "mod-1")
	_, err := c.LoadQueue(context.Background(), models.StatusPending)
	require.NoError(t, err)
	before := svc.loads()

	err = c.ReviewOne(context.Background(), "a", models.DecisionRejected, "")
	require.ErrorIs(t, err, conflict)
	// no refresh on failure; the cache is untouched
	require.Equal(t, before, svc.loads())
	require.Len(t, c.Items(), 1)
}

func TestReviewOneFailedRefreshKeepsDecision(t *testing.T) {
	svc := newFakeQueueService()
	svc.queues[models.StatusPending] = pendingItems("a")
	c := NewController(svc, "mod-1")
	_, err := c.LoadQueue(context.Background(), models.StatusPending)
	require.NoError(t, err)

	svc.loadErr = errors.New("refresh failed")
	// the decision landed, so ReviewOne reports success despite the refresh
	require.NoError(t, c.ReviewOne(context.Background(), "a", models.DecisionApproved, ""))
	require.Len(t, c.Items(), 1)
}

func TestBulkReviewSequentialWithPerItemOutcomes(t *testing.T) {
	svc := newFakeQueueService()
	svc.queues[models.StatusPending] = pendingItems("a", "b", "c")
	bErr := errors.New("item already reviewed")
	svc.reviewErrs["b"] = bErr
	c := NewController(svc, "mod-1")
	_, err := c.LoadQueue(context.Background(), models.StatusPending)
	require.NoError(t, err)

	c.ToggleSelection("a")
	c.ToggleSelection("b")
	c.ToggleSelection("c")
	loadsBefore := svc.loads()
	svc.queues[models.StatusPending] = nil

	outcomes := c.BulkReview(context.Background(), []string{"a", "b", "c"}, models.DecisionApproved)

	// one failure does not abort the rest; outcomes mirror input order
	require.Len(t, outcomes, 3)
	require.Equal(t, "a", outcomes[0].ID)
	require.NoError(t, outcomes[0].Err)
	require.Equal(t, "b", outcomes[1].ID)
	require.ErrorIs(t, outcomes[1].Err, bErr)
	require.Equal(t, "c", outcomes[2].ID)
	require.NoError(t, outcomes[2].Err)

	// strictly sequential in input order
	require.Equal(t, []string{"a", "b", "c"}, svc.order())

	// selection cleared, exactly one refresh
	require.Empty(t, c.Selected())
	require.Equal(t, loadsBefore+1, svc.loads())
	require.Empty(t, c.Items())
}

func TestBulkReviewInvalidDecisionFailsEveryItem(t *testing.T) {
	svc := newFakeQueueService()
	c := NewController(svc, "mod-1")

	outcomes := c.BulkReview(context.Background(), []string{"a", "b"}, models.ReviewDecision("maybe"))
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		require.Error(t, o.Err)
	}
	require.Empty(t, svc.order())
}

func TestToggleSelectionAndExpansionAreIndependent(t *testing.T) {
	svc := newFakeQueueService()
	c := NewController(svc, "mod-1")

	c.ToggleSelection("a")
	require.True(t, c.IsSelected("a"))
	require.False(t, c.IsExpanded("a"))

	c.ToggleExpanded("a")
	require.True(t, c.IsExpanded("a"))

	c.ToggleSelection("a")
	require.False(t, c.IsSelected("a"))
	require.True(t, c.IsExpanded("a"))

	c.ToggleExpanded("a")
	require.False(t, c.IsExpanded("a"))
}

func TestSelectedReturnsAllToggledIDs(t *testing.T) {
	svc := newFakeQueueService()
	c := NewController(svc, "mod-1")
	c.ToggleSelection("a")
	c.ToggleSelection("b")
	require.ElementsMatch(t, []string{"a", "b"}, c.Selected())
}
