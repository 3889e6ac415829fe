package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modchat/pkg/logger"
	"modchat/pkg/models"
	"modchat/pkg/moderation"
)

// Service is the messaging backend contract the controller talks to.
// SendMessage returns *moderation.RejectionError when content is refused
// by the moderation layer; any other error is treated as transport
// failure.
type Service interface {
	SendMessage(ctx context.Context, threadID, content, replyTo string) (models.Message, error)
	ToggleLike(ctx context.Context, threadID, messageID string) (models.LikeState, error)
	DeleteMessage(ctx context.Context, threadID, messageID string) error
}

// Viewer identifies the current user for advisory authorization checks.
type Viewer struct {
	ID          string
	DisplayName string
}

// DefaultWarningTTL is how long a moderation warning stays visible before
// clearing itself.
const DefaultWarningTTL = 8 * time.Second

// Warning is the ephemeral, client-only record of a moderation rejection.
type Warning struct {
	Tier      moderation.Tier
	Message   string
	ExpiresAt time.Time
}

// Controller owns one thread's outgoing message composition: the visible
// message sequence, the single-submission-in-flight rule, and the
// time-boxed moderation warning. Safe for concurrent use.
type Controller struct {
	svc      Service
	threadID string
	viewer   Viewer
	warnTTL  time.Duration

	mu        sync.Mutex
	thread    []models.Message
	inFlight  bool
	replyTo   string
	warning   *Warning
	warnTimer *time.Timer
}

// Option configures a Controller.
type Option func(*Controller)

// WithWarningTTL overrides the warning auto-expiry interval.
func WithWarningTTL(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.warnTTL = d
		}
	}
}

// NewController builds a submission controller for one thread and viewer.
func NewController(svc Service, threadID string, viewer Viewer, opts ...Option) *Controller {
	c := &Controller{svc: svc, threadID: threadID, viewer: viewer, warnTTL: DefaultWarningTTL}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetThread seeds the visible message sequence, e.g. from an initial
// fetch. The slice is copied.
func (c *Controller) SetThread(msgs []models.Message) {
	c.mu.Lock()
	c.thread = append([]models.Message(nil), msgs...)
	c.mu.Unlock()
}

// Thread returns a copy of the visible message sequence in server order.
func (c *Controller) Thread() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.thread...)
}

// SetReplyTarget records the message the next submission replies to.
func (c *Controller) SetReplyTarget(messageID string) {
	c.mu.Lock()
	c.replyTo = messageID
	c.mu.Unlock()
}

// ReplyTarget returns the pending reply target, if any.
func (c *Controller) ReplyTarget() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyTo
}

// Submit sends a candidate message, optionally as a reply. An empty
// replyTo falls back to the pending reply target. At most one submission
// may be in flight; a second call returns ErrBusy immediately rather than
// queueing. On success the returned message is appended to the thread in
// server order and the reply target and any warning are cleared. On
// moderation rejection the thread is untouched and a tiered warning is
// installed with auto-expiry. Transport failures surface as plain errors
// and never create a warning.
func (c *Controller) Submit(ctx context.Context, content, replyTo string) (models.Message, error) {
	trimmed := strings.TrimSpace(content)

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return models.Message{}, ErrBusy
	}
	if trimmed == "" {
		c.mu.Unlock()
		return models.Message{}, ErrEmptyContent
	}
	c.inFlight = true
	if replyTo == "" {
		replyTo = c.replyTo
	}
	// resubmitting resets the warning state
	c.clearWarningLocked()
	c.mu.Unlock()

	msg, err := c.svc.SendMessage(ctx, c.threadID, trimmed, replyTo)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if err != nil {
		var rej *moderation.RejectionError
		if errors.As(err, &rej) {
			tier := moderation.Classify(rej.Reason, rej.Message)
			c.setWarningLocked(tier, rej.Message)
			logger.Debug("submission_rejected", "thread", c.threadID, "tier", string(tier))
			return models.Message{}, err
		}
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}
	c.thread = append(c.thread, msg)
	c.replyTo = ""
	return msg, nil
}

// ToggleLike flips the viewer's like on a message. The server response is
// authoritative: the local like set membership and count are applied as a
// snapshot, never as a local increment, so concurrent likes by other
// viewers cannot drift the count.
func (c *Controller) ToggleLike(ctx context.Context, messageID string) (models.LikeState, error) {
	st, err := c.svc.ToggleLike(ctx, c.threadID, messageID)
	if err != nil {
		return models.LikeState{}, fmt.Errorf("toggle like: %w", err)
	}
	c.mu.Lock()
	for i := range c.thread {
		if c.thread[i].ID == messageID {
			c.thread[i].SetLiked(c.viewer.ID, st.Liked)
			c.thread[i].LikeCount = st.LikeCount
			break
		}
	}
	c.mu.Unlock()
	return st, nil
}

// DeleteOwn soft-deletes one of the viewer's own messages. The ownership
// check here is advisory UX; the server enforces it again. On success the
// local record keeps its place in the thread with the body replaced by
// the placeholder, so replies referencing it stay intact.
func (c *Controller) DeleteOwn(ctx context.Context, messageID string) error {
	c.mu.Lock()
	var found *models.Message
	for i := range c.thread {
		if c.thread[i].ID == messageID {
			found = &c.thread[i]
			break
		}
	}
	if found == nil {
		c.mu.Unlock()
		return fmt.Errorf("message not found: %s", messageID)
	}
	if found.Author != c.viewer.ID {
		c.mu.Unlock()
		return &AuthorizationError{Reason: "cannot delete another user's message"}
	}
	c.mu.Unlock()

	if err := c.svc.DeleteMessage(ctx, c.threadID, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	c.mu.Lock()
	for i := range c.thread {
		if c.thread[i].ID == messageID {
			c.thread[i].Tombstone()
			break
		}
	}
	c.mu.Unlock()
	return nil
}

// Warning returns the active moderation warning, or nil.
func (c *Controller) Warning() *Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.warning == nil {
		return nil
	}
	w := *c.warning
	return &w
}

// DismissWarning clears the warning and cancels its expiry timer.
func (c *Controller) DismissWarning() {
	c.mu.Lock()
	c.clearWarningLocked()
	c.mu.Unlock()
}

// InputChanged tells the controller the user edited the draft; any
// visible warning is dismissed.
func (c *Controller) InputChanged() {
	c.mu.Lock()
	c.clearWarningLocked()
	c.mu.Unlock()
}

// Busy reports whether a submission is currently in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Close releases the warning timer. In-flight requests are left to
// complete; their results are simply discarded by callers.
func (c *Controller) Close() {
	c.mu.Lock()
	c.clearWarningLocked()
	c.mu.Unlock()
}

// setWarningLocked installs a warning and (re)arms its expiry timer.
// Repeated triggers reset the timer rather than stacking timers.
func (c *Controller) setWarningLocked(tier moderation.Tier, message string) {
	c.clearWarningLocked()
	w := &Warning{Tier: tier, Message: message, ExpiresAt: time.Now().Add(c.warnTTL)}
	c.warning = w
	c.warnTimer = time.AfterFunc(c.warnTTL, func() {
		c.mu.Lock()
		if c.warning == w {
			c.warning = nil
			c.warnTimer = nil
		}
		c.mu.Unlock()
	})
}

func (c *Controller) clearWarningLocked() {
	if c.warnTimer != nil {
		c.warnTimer.Stop()
		c.warnTimer = nil
	}
	c.warning = nil
}
