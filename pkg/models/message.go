package models

// DeletedPlaceholder replaces the body of a soft-deleted message. The
// record itself is retained so replies keep a valid target.
const DeletedPlaceholder = "[message removed]"

type Message struct {
	ID         string `json:"id"`
	Thread     string `json:"thread"`
	Author     string `json:"author,omitempty"`
	AuthorName string `json:"author_name,omitempty"`
	Body       string `json:"body,omitempty"`
	TS         int64  `json:"ts"`
	// Optional reply-to message ID, same thread
	ReplyTo string `json:"reply_to,omitempty"`
	// LikedBy holds the ids of viewers who currently like the message;
	// LikeCount is the server-computed size of that set.
	LikedBy   []string `json:"liked_by,omitempty"`
	LikeCount int      `json:"like_count,omitempty"`
	// Deleted flag; soft-delete implemented as an appended tombstone version
	Deleted bool `json:"deleted,omitempty"`
	Edited  bool `json:"edited,omitempty"`
}

// LikesUser reports whether uid is currently in the message's like set.
func (m *Message) LikesUser(uid string) bool {
	for _, id := range m.LikedBy {
		if id == uid {
			return true
		}
	}
	return false
}

// SetLiked adds or removes uid from the like set. Membership update, not a
// counter mutation; LikeCount stays whatever the caller assigns.
func (m *Message) SetLiked(uid string, liked bool) {
	if liked {
		if !m.LikesUser(uid) {
			m.LikedBy = append(m.LikedBy, uid)
		}
		return
	}
	out := m.LikedBy[:0]
	for _, id := range m.LikedBy {
		if id != uid {
			out = append(out, id)
		}
	}
	m.LikedBy = out
}

// Tombstone marks the message deleted and swaps the body for the fixed
// placeholder.
func (m *Message) Tombstone() {
	m.Deleted = true
	m.Body = DeletedPlaceholder
}

// LikeState is the wire result of a like toggle. Liked and LikeCount are
// server-authoritative; clients apply them as a snapshot.
type LikeState struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"like_count"`
}
