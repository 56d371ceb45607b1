// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine keeps one conversation's message store synchronized with
// the chat backend.
//
// It owns the polling lifecycle: an initial full fetch establishes the
// baseline and the incremental cursor, then a ticker drives incremental
// fetches at a fixed cadence. Failures leave the store untouched and the
// next tick retries; at most one incremental fetch is ever in flight.
//
// # Key Types
//
//   - Engine: Polling synchronizer for one conversation
//   - Coordinator: Optimistic send pipeline layered on the engine
//
// # Usage
//
//	eng := engine.New("bob", st, client, user)
//	if err := eng.FetchAll(ctx); err != nil { ... }
//	go eng.Start(ctx)
//	defer eng.Close()
//
// Closing the engine marks the view stale: any fetch or send completion
// that arrives afterwards is discarded instead of mutating a store the
// user has navigated away from.
package engine
