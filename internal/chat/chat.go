package chat

import (
	"context"
)

// Block is an opaque rich-message block. The core never inspects block
// contents; it only carries them from the rendering layer to the platform.
type Block map[string]any

// Message is a chat message: a plaintext fallback plus optional blocks.
type Message struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks,omitempty"`
}

// MessageRef identifies a posted message for later updates.
type MessageRef struct {
	Channel   string `json:"channel_id"`
	Timestamp string `json:"message_ts"`
}

// View is an opaque interactive view (modal) definition.
type View map[string]any

// ViewRef identifies an open view for later updates.
type ViewRef struct {
	ID   string `json:"view_id"`
	Hash string `json:"view_hash"`
}

// User describes a chat-platform user.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Email    string `json:"email"`
	TZOffset int    `json:"tz_offset"`
	Deleted  bool   `json:"deleted"`
}

// Client is the set of chat-platform calls the core makes. The concrete
// platform (message rendering included) lives outside this repository.
type Client interface {
	// PostMessage posts a message to a channel or user id.
	PostMessage(ctx context.Context, channel string, msg Message) (MessageRef, error)

	// UpdateMessage replaces the content of a previously posted message.
	UpdateMessage(ctx context.Context, ref MessageRef, msg Message) error

	// UserInfo looks up a user by id.
	UserInfo(ctx context.Context, userID string) (*User, error)

	// UserByEmail looks up a user by email address.
	UserByEmail(ctx context.Context, email string) (*User, error)

	// OpenView opens an interactive view from an interaction trigger.
	OpenView(ctx context.Context, triggerID string, view View) (ViewRef, error)

	// UpdateView replaces the content of an open view.
	UpdateView(ctx context.Context, ref ViewRef, view View) error
}

// Completer signals workflow step completion to the workflow engine that
// scheduled the current execution. The engine guarantees cross-execution
// idempotency; callers must not signal twice within one execution.
type Completer interface {
	// CompleteSuccess marks the execution as successfully finished.
	CompleteSuccess(ctx context.Context, executionID string) error

	// CompleteError marks the execution as failed with a message.
	CompleteError(ctx context.Context, executionID string, msg string) error
}
