// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides the in-memory message store for one conversation.
//
// The store is the single source of truth for rendering: it deduplicates by
// message id, keeps entries in non-decreasing sent-time order with a stable
// tie-break, and reconciles optimistic pending entries against their
// server-confirmed replacements.
//
// # Key Types
//
//   - MessageStore: Ordered, id-deduplicated collection of messages
//
// # Usage
//
// Merge a fetch result and read the ordered view:
//
//	st := store.New("bob")
//	st.UpsertAll(msgs)
//	for _, m := range st.Snapshot() { ... }
//
// Mutation methods never fail; corruption is prevented by construction
// (id-keyed upsert), not by error handling.
package store
