package utils

import "github.com/google/uuid"

// GenID returns a new message id.
func GenID() string { return "msg-" + uuid.NewString() }

// GenThreadID returns a new thread id.
func GenThreadID() string { return "thread-" + uuid.NewString() }

// GenQueueItemID returns a new moderation queue item id.
func GenQueueItemID() string { return "modq-" + uuid.NewString() }
