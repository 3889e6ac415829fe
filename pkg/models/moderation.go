package models

// QueueStatus is the review state of a flagged item. Transitions are
// one-way: pending -> approved or pending -> rejected.
type QueueStatus string

const (
	StatusPending  QueueStatus = "pending"
	StatusApproved QueueStatus = "approved"
	StatusRejected QueueStatus = "rejected"
)

// Terminal reports whether the status can no longer change.
func (s QueueStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ReviewDecision is a moderator's verdict on a queue item.
type ReviewDecision string

const (
	DecisionApproved ReviewDecision = "approved"
	DecisionRejected ReviewDecision = "rejected"
)

// Valid reports whether d is one of the two allowed decisions.
func (d ReviewDecision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// CategoryScore records one scored category together with the threshold
// that applied when the content was evaluated.
type CategoryScore struct {
	Category  string `json:"category"`
	Severity  int    `json:"severity"`
	Threshold int    `json:"threshold"`
}

// BlocklistMatch records a blocklist hit: which list and which term.
type BlocklistMatch struct {
	List string `json:"list"`
	Term string `json:"term"`
}

// QueueItem is a piece of content flagged for human review. Content is a
// snapshot taken at flag time and never mutates, even if the source
// message is later edited or deleted.
type QueueItem struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`
	Thread   string `json:"thread,omitempty"`
	Author   string `json:"author,omitempty"`
	Content  string `json:"content"`

	Categories []CategoryScore  `json:"categories,omitempty"`
	Blocklist  []BlocklistMatch `json:"blocklist,omitempty"`

	Status    QueueStatus `json:"status"`
	CreatedTS int64       `json:"created_ts"`

	// Populated only once the item leaves pending.
	ReviewedTS int64  `json:"reviewed_ts,omitempty"`
	ReviewedBy string `json:"reviewed_by,omitempty"`
	Notes      string `json:"notes,omitempty"`
}
