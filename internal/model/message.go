// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat messages and user identity.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ORIGIN TYPE
// =============================================================================

// Origin tags where a message's current state came from.
type Origin string

const (
	// OriginConfirmed means the message was sourced from, or acknowledged by,
	// the server and carries a durable server-assigned id.
	OriginConfirmed Origin = "confirmed"

	// OriginPending means the message was inserted optimistically by this
	// client and has not yet been acknowledged by the server.
	OriginPending Origin = "pending"

	// OriginFailed means the send request for this message failed. The entry
	// stays visible so the user can retry.
	OriginFailed Origin = "failed"
)

// String returns the string representation of the origin.
func (o Origin) String() string {
	return string(o)
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single direct message in one conversation.
type Message struct {
	// Identity
	ID              string `json:"id"`
	ConversationKey string `json:"conversation_key"`

	// Content
	Sender  string `json:"sender"`
	Content string `json:"content"`

	// SentAt is the ordering key for display.
	SentAt time.Time `json:"sent_at"`

	// Origin tracks the confirmation state (not sent on the wire).
	Origin Origin `json:"origin"`
}

// NewPendingMessage builds an optimistic local message with a temporary id
// and the local current time as its timestamp.
func NewPendingMessage(conversationKey string, sender Identity, content string) Message {
	return Message{
		ID:              NewTempID(),
		ConversationKey: conversationKey,
		Sender:          sender.Username,
		Content:         content,
		SentAt:          time.Now(),
		Origin:          OriginPending,
	}
}

// IsPending returns true for optimistically inserted, unacknowledged messages.
func (m Message) IsPending() bool {
	return m.Origin == OriginPending
}

// IsFailed returns true if the send request for this message failed.
func (m Message) IsFailed() bool {
	return m.Origin == OriginFailed
}

// IsConfirmed returns true for server-sourced or server-acknowledged messages.
func (m Message) IsConfirmed() bool {
	return m.Origin == OriginConfirmed
}

// IsEmpty returns true if the message has no content after trimming.
func (m Message) IsEmpty() bool {
	return NormalizeContent(m.Content) == ""
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// tempIDPrefix marks client-generated temporary ids so they are never
// confused with server-assigned ones.
const tempIDPrefix = "tmp_"

// NewTempID creates a locally-unique temporary message id. The random part
// is a v4 UUID, so collisions are negligible.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id is a client-generated temporary id.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// NormalizeContent trims surrounding whitespace from message content.
// Empty content after trimming is not sendable.
func NormalizeContent(content string) string {
	return strings.TrimSpace(content)
}
