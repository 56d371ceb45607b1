// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine keeps one conversation's message store synchronized with
// the chat backend.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itshere/chatsync/internal/model"
	"github.com/itshere/chatsync/internal/store"
)

// Polling cadence bounds. The interval is clamped so a misconfigured value
// can neither hammer the backend nor let the view go visibly stale.
const (
	DefaultPollInterval = 5 * time.Second
	MinPollInterval     = 5 * time.Second
	MaxPollInterval     = 10 * time.Second
)

// Error variables for engine lifecycle states.
var (
	// ErrClosed indicates the engine was closed; the conversation view is
	// stale and no further syncs will run.
	ErrClosed = errors.New("sync engine closed")

	// ErrSyncBusy indicates an incremental fetch was skipped because one is
	// already in flight. Not an error condition for the poll loop.
	ErrSyncBusy = errors.New("incremental fetch already in flight")
)

// Client is the subset of the backend API the engine depends on.
type Client interface {
	Messages(ctx context.Context, key string) ([]model.Message, error)
	MessagesSince(ctx context.Context, key string, since time.Time) ([]model.Message, error)
	Send(ctx context.Context, key, content string) (*model.Message, error)
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine synchronizes a single conversation's MessageStore with the backend.
//
// One engine per open conversation. The engine never renders; the UI reads
// the store's snapshot after each successful sync.
type Engine struct {
	key      string
	store    *store.MessageStore
	client   Client
	user     model.Identity
	interval time.Duration

	mu     sync.Mutex
	cursor time.Time // max confirmed SentAt seen so far
	gen    uint64    // bumped on Close; responses from an older gen are stale
	closed bool
	cancel context.CancelFunc

	// inFlight guards the at-most-one incremental fetch invariant.
	inFlight atomic.Bool
}

// New creates an engine for one conversation. The store must be scoped to
// the same conversation key.
func New(key string, st *store.MessageStore, client Client, user model.Identity) *Engine {
	return &Engine{
		key:      key,
		store:    st,
		client:   client,
		user:     user,
		interval: DefaultPollInterval,
	}
}

// WithInterval sets the polling interval, clamped to the allowed range.
// Safe to call while the poll loop runs; the loop picks the new interval
// up on its next tick.
func (e *Engine) WithInterval(d time.Duration) *Engine {
	if d < MinPollInterval {
		d = MinPollInterval
	}
	if d > MaxPollInterval {
		d = MaxPollInterval
	}
	e.mu.Lock()
	e.interval = d
	e.mu.Unlock()
	return e
}

// pollInterval reads the current interval.
func (e *Engine) pollInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interval
}

// ConversationKey returns the conversation this engine syncs.
func (e *Engine) ConversationKey() string {
	return e.key
}

// Store returns the engine's backing store.
func (e *Engine) Store() *store.MessageStore {
	return e.store
}

// Snapshot returns the current ordered view of the conversation.
func (e *Engine) Snapshot() []model.Message {
	return e.store.Snapshot()
}

// =============================================================================
// SYNC OPERATIONS
// =============================================================================

// FetchAll retrieves the complete history and replaces the confirmed
// portion of the store, preserving optimistic entries. On success it also
// (re)establishes the incremental cursor. On failure the store and cursor
// are left exactly as they were; the caller keeps showing the last good
// view.
func (e *Engine) FetchAll(ctx context.Context) error {
	gen, err := e.generation()
	if err != nil {
		return err
	}

	msgs, err := e.client.Messages(ctx, e.key)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.gen != gen {
		// The view was torn down while the request was in flight.
		return ErrClosed
	}

	e.store.ReplaceConfirmed(msgs)
	e.advanceCursorLocked(msgs)
	return nil
}

// FetchSince retrieves messages sent after the current cursor and merges
// them into the store. If an incremental fetch is already in flight the
// call is skipped with ErrSyncBusy rather than queued; the next tick will
// cover the gap because the cursor only advances on success.
func (e *Engine) FetchSince(ctx context.Context) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		return ErrSyncBusy
	}
	defer e.inFlight.Store(false)

	gen, err := e.generation()
	if err != nil {
		return err
	}

	e.mu.Lock()
	cursor := e.cursor
	e.mu.Unlock()

	if cursor.IsZero() {
		// No baseline yet. A zero cursor degenerates into a full fetch,
		// which is correct, just not incremental.
		return e.FetchAll(ctx)
	}

	msgs, err := e.client.MessagesSince(ctx, e.key, cursor)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.gen != gen {
		return ErrClosed
	}

	e.store.UpsertAll(msgs)
	e.advanceCursorLocked(msgs)
	return nil
}

// Start runs the polling loop until the context is cancelled or the engine
// is closed. Sync failures are logged and retried on the next tick; a
// skipped tick (previous fetch still in flight) is silent.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return
	}
	e.cancel = cancel
	interval := e.interval
	e.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch err := e.FetchSince(ctx); {
			case err == nil:
			case errors.Is(err, ErrSyncBusy):
				// Previous fetch still running; skip, don't queue.
			case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled):
				return
			default:
				log.Printf("sync failed for %q, retrying next tick: %v", e.key, err)
			}

			// Pick up a hot-reloaded interval.
			if d := e.pollInterval(); d != interval {
				interval = d
				ticker.Reset(interval)
			}
		}
	}
}

// Close marks the conversation view stale and stops the poll loop. Any
// in-flight response observes the generation bump and is discarded.
// Close is idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Reopen makes a closed engine usable again for the same conversation,
// e.g. when the user navigates back. The store retains whatever it held;
// the next FetchAll refreshes it.
func (e *Engine) Reopen() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = false
}

// =============================================================================
// INTERNALS
// =============================================================================

// generation snapshots the current generation, failing if already closed.
func (e *Engine) generation() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}
	return e.gen, nil
}

// advanceCursorLocked moves the cursor to the max SentAt in the batch.
// The cursor never moves backwards, so an out-of-order response cannot
// widen future fetch windows incorrectly.
func (e *Engine) advanceCursorLocked(msgs []model.Message) {
	for _, m := range msgs {
		if m.SentAt.After(e.cursor) {
			e.cursor = m.SentAt
		}
	}
}
