// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/itshere/chatsync/internal/model"
)

// ErrUnknownMessage indicates a resend was requested for an id the store
// no longer holds.
var ErrUnknownMessage = errors.New("unknown message id")

// =============================================================================
// SEND COORDINATOR
// =============================================================================

// Coordinator runs the optimistic send pipeline for one conversation:
// append a pending entry immediately, post to the backend, then reconcile
// the pending entry against the server's echo.
type Coordinator struct {
	engine *Engine
}

// NewCoordinator creates a send coordinator bound to an engine.
func NewCoordinator(e *Engine) *Coordinator {
	return &Coordinator{engine: e}
}

// Send posts content to the conversation. The pending entry is visible in
// the store before the network call starts. Returns the server's confirmed
// message when the backend echoes one, or nil on a silent acknowledgement
// (the pending entry then collapses against a later fetch).
//
// Whitespace-only content is a silent no-op: nothing is inserted, nothing
// is sent.
func (c *Coordinator) Send(ctx context.Context, content string) (*model.Message, error) {
	content = model.NormalizeContent(content)
	if content == "" {
		return nil, nil
	}

	e := c.engine
	gen, err := e.generation()
	if err != nil {
		return nil, err
	}

	pending := model.NewPendingMessage(e.key, e.user, content)
	e.store.AppendPending(pending)

	echo, err := e.client.Send(ctx, e.key, content)
	if err != nil {
		// Keep the entry visible in the failed state so the user can
		// retry, unless the view went stale while we were sending.
		if e.sameGeneration(gen) {
			e.store.MarkFailed(pending.ID)
		}
		return nil, fmt.Errorf("send failed: %w", err)
	}

	if !e.sameGeneration(gen) {
		// Sent successfully, but the conversation was closed meanwhile.
		// The server has it; the next open's full fetch will show it.
		return echo, nil
	}

	if echo == nil {
		log.Printf("send acknowledged without echo for %q; awaiting poll", e.key)
		return nil, nil
	}

	e.store.Reconcile(pending.ID, *echo)
	return echo, nil
}

// Resend retries a failed message. The failed entry is removed and its
// content goes through the normal send pipeline as a fresh pending entry
// with a new temporary id.
func (c *Coordinator) Resend(ctx context.Context, id string) (*model.Message, error) {
	msg, ok := c.engine.store.Get(id)
	if !ok {
		return nil, ErrUnknownMessage
	}
	if !msg.IsFailed() {
		return nil, fmt.Errorf("message %s is not in the failed state", id)
	}

	c.engine.store.Remove(id)
	return c.Send(ctx, msg.Content)
}

// sameGeneration reports whether the engine is still serving the given
// view generation.
func (e *Engine) sameGeneration(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && e.gen == gen
}
