// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides the in-memory message store for one conversation.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/itshere/chatsync/internal/model"
)

// PendingCollapseWindow is the timestamp tolerance used when matching a
// pending entry against a confirmed one with the same sender and content.
// Only pending-vs-confirmed pairs are ever collapsed; two confirmed entries
// are never merged, whatever their content.
const PendingCollapseWindow = 2 * time.Second

// =============================================================================
// MESSAGE STORE
// =============================================================================

// MessageStore holds the ordered messages of a single conversation.
//
// Entries are kept sorted by SentAt ascending; ties are broken by insertion
// order so same-millisecond messages stay visually stable across re-sorts.
// All methods are safe for concurrent use: fetch and send completions arrive
// on different goroutines.
type MessageStore struct {
	mu sync.Mutex

	// key scopes this store to one conversation
	key string

	entries []entry

	// seq is a monotonic insertion counter used as the sort tie-break
	seq uint64
}

// entry pairs a message with its insertion sequence number.
type entry struct {
	msg model.Message
	seq uint64
}

// New creates an empty store scoped to one conversation.
func New(conversationKey string) *MessageStore {
	return &MessageStore{key: conversationKey}
}

// ConversationKey returns the conversation this store is scoped to.
func (s *MessageStore) ConversationKey() string {
	return s.key
}

// =============================================================================
// MUTATION
// =============================================================================

// UpsertAll inserts or replaces entries by id and re-sorts.
//
// A message already present is overwritten with itself harmlessly, which
// makes incremental fetches idempotent under retry and loose "since"
// boundaries. After the merge, pending entries that now have a confirmed
// twin (same sender, same content, timestamps within PendingCollapseWindow)
// are dropped — that is the safety net for sends the server never echoed.
func (s *MessageStore) UpsertAll(msgs []model.Message) {
	if len(msgs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range msgs {
		s.upsertLocked(m)
	}
	s.collapsePendingLocked()
	s.sortLocked()
}

// AppendPending inserts an optimistic pending message at its timestamp
// position (the local current time puts it at the logical end).
func (s *MessageStore) AppendPending(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.Origin = model.OriginPending
	s.upsertLocked(msg)
	s.sortLocked()
}

// Reconcile atomically replaces the entry with id tempID by the confirmed
// message. The confirmed entry inherits the pending entry's insertion slot
// so a same-millisecond tie does not reshuffle neighbours.
//
// Calling Reconcile with an unknown tempID is a no-op: the pending message
// was already superseded, e.g. by a concurrent full refetch.
func (s *MessageStore) Reconcile(tempID string, confirmed model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(tempID)
	if idx < 0 {
		return
	}

	confirmed.Origin = model.OriginConfirmed
	seq := s.entries[idx].seq
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)

	// The server may have already delivered the confirmed message through a
	// racing incremental fetch; upsert keeps the id unique either way.
	if existing := s.indexLocked(confirmed.ID); existing >= 0 {
		s.entries[existing].msg = confirmed
	} else {
		s.entries = append(s.entries, entry{msg: confirmed, seq: seq})
	}
	s.sortLocked()
}

// MarkFailed flips a pending entry into the failed state. Unknown ids are
// ignored, mirroring Reconcile.
func (s *MessageStore) MarkFailed(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexLocked(tempID); idx >= 0 && s.entries[idx].msg.IsPending() {
		s.entries[idx].msg.Origin = model.OriginFailed
	}
}

// Remove deletes the entry with the given id. Returns true if it existed.
// Used when a failed send is retried as a fresh pending entry.
func (s *MessageStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return false
	}
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	return true
}

// ReplaceConfirmed swaps out every confirmed entry for the given set while
// preserving pending and failed entries. Used by the full fetch so a refetch
// never loses an optimistic message that is still awaiting its server echo.
func (s *MessageStore) ReplaceConfirmed(msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if !e.msg.IsConfirmed() {
			kept = append(kept, e)
		}
	}
	s.entries = kept

	for _, m := range msgs {
		s.upsertLocked(m)
	}
	s.collapsePendingLocked()
	s.sortLocked()
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Snapshot returns a copy of the current ordered view for rendering.
// The returned slice is owned by the caller; Snapshot never mutates.
func (s *MessageStore) Snapshot() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Message, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.msg
	}
	return out
}

// Len returns the number of messages in the store.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// LatestConfirmed returns the maximum SentAt across confirmed entries.
// The second return is false when the store holds no confirmed messages.
func (s *MessageStore) LatestConfirmed() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var max time.Time
	found := false
	for _, e := range s.entries {
		if e.msg.IsConfirmed() && e.msg.SentAt.After(max) {
			max = e.msg.SentAt
			found = true
		}
	}
	return max, found
}

// Get returns the message with the given id, if present.
func (s *MessageStore) Get(id string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexLocked(id); idx >= 0 {
		return s.entries[idx].msg, true
	}
	return model.Message{}, false
}

// =============================================================================
// INTERNALS
// =============================================================================

// upsertLocked inserts or replaces by id. Replacement keeps the original
// insertion sequence so the entry does not drift within a timestamp tie.
func (s *MessageStore) upsertLocked(m model.Message) {
	if idx := s.indexLocked(m.ID); idx >= 0 {
		s.entries[idx].msg = m
		return
	}
	s.seq++
	s.entries = append(s.entries, entry{msg: m, seq: s.seq})
}

// indexLocked returns the position of id, or -1.
func (s *MessageStore) indexLocked(id string) int {
	for i, e := range s.entries {
		if e.msg.ID == id {
			return i
		}
	}
	return -1
}

// sortLocked re-sorts by SentAt ascending, insertion order on ties.
func (s *MessageStore) sortLocked() {
	sort.Slice(s.entries, func(i, j int) bool {
		a, b := s.entries[i], s.entries[j]
		if a.msg.SentAt.Equal(b.msg.SentAt) {
			return a.seq < b.seq
		}
		return a.msg.SentAt.Before(b.msg.SentAt)
	})
}

// collapsePendingLocked drops pending entries that match a confirmed entry
// by sender and content with timestamps within PendingCollapseWindow.
func (s *MessageStore) collapsePendingLocked() {
	var confirmed []model.Message
	for _, e := range s.entries {
		if e.msg.IsConfirmed() {
			confirmed = append(confirmed, e.msg)
		}
	}
	if len(confirmed) == 0 {
		return
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.msg.IsPending() && hasConfirmedTwin(e.msg, confirmed) {
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
}

// hasConfirmedTwin reports whether a confirmed message matches the pending
// one closely enough to be the server's copy of it.
func hasConfirmedTwin(pending model.Message, confirmed []model.Message) bool {
	for _, c := range confirmed {
		if c.Sender != pending.Sender || c.Content != pending.Content {
			continue
		}
		delta := c.SentAt.Sub(pending.SentAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= PendingCollapseWindow {
			return true
		}
	}
	return false
}
