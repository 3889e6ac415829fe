package review

import (
	"context"
	"fmt"
	"sync"

	"modchat/pkg/logger"
	"modchat/pkg/models"
)

// Service is the moderation-queue backend contract.
type Service interface {
	GetQueue(ctx context.Context, status models.QueueStatus) ([]models.QueueItem, error)
	ReviewItem(ctx context.Context, itemID string, decision models.ReviewDecision, notes string) error
}

// Outcome is the per-item result of a bulk review. Err is nil on success.
type Outcome struct {
	ID  string
	Err error
}

// FilterAll loads every item regardless of status.
const FilterAll models.QueueStatus = "all"

// Controller owns the local view of the moderation queue: the cached item
// list for the active filter plus the selection and expansion sets. Safe
// for concurrent use; a slower refresh racing a review simply overwrites
// the cache last-write-wins, which is accepted behavior.
type Controller struct {
	svc      Service
	reviewer string

	mu       sync.Mutex
	filter   models.QueueStatus
	items    []models.QueueItem
	selected map[string]struct{}
	expanded map[string]struct{}
}

// NewController builds a queue controller for the given reviewer identity.
func NewController(svc Service, reviewer string) *Controller {
	return &Controller{
		svc:      svc,
		reviewer: reviewer,
		filter:   models.StatusPending,
		selected: map[string]struct{}{},
		expanded: map[string]struct{}{},
	}
}

// LoadQueue fetches the queue under the given filter and replaces the
// local cache wholesale; a fresh load is authoritative over stale local
// edits. On failure the previous cache stays visible and the error is
// returned.
func (c *Controller) LoadQueue(ctx context.Context, filter models.QueueStatus) ([]models.QueueItem, error) {
	items, err := c.svc.GetQueue(ctx, filter)
	if err != nil {
		// previous cache and filter stay in effect
		return nil, fmt.Errorf("load queue: %w", err)
	}
	c.mu.Lock()
	c.filter = filter
	c.items = items
	out := append([]models.QueueItem(nil), items...)
	c.mu.Unlock()
	return out, nil
}

// Items returns a copy of the cached item list.
func (c *Controller) Items() []models.QueueItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.QueueItem(nil), c.items...)
}

// Filter returns the active queue filter.
func (c *Controller) Filter() models.QueueStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// ReviewOne applies a single decision. On success the item leaves the
// selection set and the queue is refreshed under the active filter, so an
// item resolved while viewing "pending" disappears. A server rejection,
// including a double review of an already-terminal item, is surfaced
// rather than swallowed and leaves the cache untouched.
func (c *Controller) ReviewOne(ctx context.Context, itemID string, decision models.ReviewDecision, notes string) error {
	if !decision.Valid() {
		return fmt.Errorf("invalid decision: %q", decision)
	}
	if err := c.svc.ReviewItem(ctx, itemID, decision, notes); err != nil {
		return fmt.Errorf("review item %s: %w", itemID, err)
	}
	c.mu.Lock()
	delete(c.selected, itemID)
	filter := c.filter
	c.mu.Unlock()
	logger.AuditEvent("queue_item_reviewed", "item", itemID, "decision", string(decision), "reviewer", c.reviewer)
	if _, err := c.LoadQueue(ctx, filter); err != nil {
		// decision already landed; a failed refresh keeps the stale cache
		logger.Warn("queue_refresh_failed", "error", err)
	}
	return nil
}

// BulkReview applies the same decision to each item strictly sequentially
// in input order, matching the server's audit-log ordering. A failure on
// one item does not abort the rest; the returned outcomes mirror the
// input order. Afterwards the selection set is cleared and the queue is
// refreshed exactly once.
func (c *Controller) BulkReview(ctx context.Context, itemIDs []string, decision models.ReviewDecision) []Outcome {
	outcomes := make([]Outcome, 0, len(itemIDs))
	for _, id := range itemIDs {
		var err error
		if !decision.Valid() {
			err = fmt.Errorf("invalid decision: %q", decision)
		} else {
			err = c.svc.ReviewItem(ctx, id, decision, "")
		}
		if err == nil {
			logger.AuditEvent("queue_item_reviewed", "item", id, "decision", string(decision), "reviewer", c.reviewer)
		}
		outcomes = append(outcomes, Outcome{ID: id, Err: err})
	}
	c.mu.Lock()
	c.selected = map[string]struct{}{}
	filter := c.filter
	c.mu.Unlock()
	if _, err := c.LoadQueue(ctx, filter); err != nil {
		logger.Warn("queue_refresh_failed", "error", err)
	}
	return outcomes
}

// ToggleSelection flips an item's membership in the selection set. Pure
// local state, no network effect.
func (c *Controller) ToggleSelection(itemID string) {
	c.mu.Lock()
	if _, ok := c.selected[itemID]; ok {
		delete(c.selected, itemID)
	} else {
		c.selected[itemID] = struct{}{}
	}
	c.mu.Unlock()
}

// ToggleExpanded flips an item's expansion state, independent of
// selection.
func (c *Controller) ToggleExpanded(itemID string) {
	c.mu.Lock()
	if _, ok := c.expanded[itemID]; ok {
		delete(c.expanded, itemID)
	} else {
		c.expanded[itemID] = struct{}{}
	}
	c.mu.Unlock()
}

// IsSelected reports selection-set membership.
func (c *Controller) IsSelected(itemID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.selected[itemID]
	return ok
}

// IsExpanded reports expansion-set membership.
func (c *Controller) IsExpanded(itemID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.expanded[itemID]
	return ok
}

// Selected returns the ids currently selected, in no particular order.
func (c *Controller) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.selected))
	for id := range c.selected {
		out = append(out, id)
	}
	return out
}
