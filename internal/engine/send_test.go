// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itshere/chatsync/internal/model"
)

func TestSendOptimisticThenConfirmed(t *testing.T) {
	client := &fakeClient{}
	e := newTestEngine(client)
	coord := NewCoordinator(e)

	echo, err := coord.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.NotNil(t, echo)

	snap := e.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "srv-hello", snap[0].ID)
	assert.True(t, snap[0].IsConfirmed(), "echoed message must replace the pending entry")
	assert.False(t, model.IsTempID(snap[0].ID))
}

func TestSendPendingVisibleBeforeCompletion(t *testing.T) {
	client := &fakeClient{}
	client.mu.Lock()
	client.sendErr = errors.New("unreachable")
	client.mu.Unlock()
	e := newTestEngine(client)
	coord := NewCoordinator(e)

	_, err := coord.Send(context.Background(), "hello")
	require.Error(t, err)

	// The optimistic entry was inserted before the send and stays visible
	// in the failed state afterwards.
	snap := e.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].IsFailed())
	assert.True(t, model.IsTempID(snap[0].ID))
	assert.Equal(t, "hello", snap[0].Content)
	assert.Equal(t, "alice", snap[0].Sender)
}

func TestSendTrimsAndSkipsEmptyContent(t *testing.T) {
	client := &fakeClient{}
	e := newTestEngine(client)
	coord := NewCoordinator(e)

	echo, err := coord.Send(context.Background(), "   \n\t ")
	require.NoError(t, err)
	assert.Nil(t, echo)
	assert.Equal(t, 0, e.Store().Len(), "whitespace-only send must be a no-op")

	echo, err = coord.Send(context.Background(), "  hi  ")
	require.NoError(t, err)
	require.NotNil(t, echo)
	assert.Equal(t, "hi", echo.Content)
}

func TestSendOnClosedEngine(t *testing.T) {
	client := &fakeClient{}
	e := newTestEngine(client)
	e.Close()

	_, err := NewCoordinator(e).Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, e.Store().Len())
}

func TestSendFailureAfterCloseDoesNotMutateStore(t *testing.T) {
	release := make(chan struct{})
	client := &blockingSendClient{release: release, err: errors.New("unreachable")}
	e := newTestEngine(client)
	coord := NewCoordinator(e)

	done := make(chan error, 1)
	go func() {
		_, err := coord.Send(context.Background(), "hello")
		done <- err
	}()

	// Wait for the optimistic entry, close the view, then let the send
	// fail. The stale failure must not flip the entry to failed.
	require.Eventually(t, func() bool { return e.Store().Len() == 1 },
		2*time.Second, time.Millisecond)
	snap := e.Snapshot()
	pendingID := snap[0].ID

	e.Close()
	close(release)
	require.Error(t, <-done)

	m, ok := e.Store().Get(pendingID)
	require.True(t, ok)
	assert.True(t, m.IsPending(), "stale completion must not mark the entry failed")
}

// blockingSendClient holds Send until released, then fails with err.
type blockingSendClient struct {
	fakeClient
	release chan struct{}
	err     error
}

func (b *blockingSendClient) Send(ctx context.Context, key, content string) (*model.Message, error) {
	<-b.release
	return nil, b.err
}

func TestResendFailedMessage(t *testing.T) {
	client := &fakeClient{}
	client.mu.Lock()
	client.sendErr = errors.New("unreachable")
	client.mu.Unlock()
	e := newTestEngine(client)
	coord := NewCoordinator(e)

	_, err := coord.Send(context.Background(), "hello")
	require.Error(t, err)

	snap := e.Snapshot()
	require.Len(t, snap, 1)
	failedID := snap[0].ID

	// Network recovers; retry succeeds under a fresh temp id.
	client.mu.Lock()
	client.sendErr = nil
	client.mu.Unlock()

	echo, err := coord.Resend(context.Background(), failedID)
	require.NoError(t, err)
	require.NotNil(t, echo)

	snap = e.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "srv-hello", snap[0].ID)
	assert.True(t, snap[0].IsConfirmed())

	_, ok := e.Store().Get(failedID)
	assert.False(t, ok, "failed entry must be gone after resend")
}

func TestResendRejectsNonFailed(t *testing.T) {
	client := &fakeClient{}
	e := newTestEngine(client)
	coord := NewCoordinator(e)

	echo, err := coord.Send(context.Background(), "hello")
	require.NoError(t, err)

	_, err = coord.Resend(context.Background(), echo.ID)
	assert.Error(t, err, "confirmed messages are not resendable")

	_, err = coord.Resend(context.Background(), "tmp_never-existed")
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestSendWithoutEchoCollapsesOnNextFetch(t *testing.T) {
	client := &silentAckClient{inner: &fakeClient{}}
	e := newTestEngine(client)
	coord := NewCoordinator(e)

	echo, err := coord.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Nil(t, echo)

	// Pending entry survives the silent acknowledgement.
	snap := e.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].IsPending())

	// The poll later delivers the server's copy; the pending twin collapses.
	client.inner.setHistory(model.Message{
		ID:      "srv-1",
		Sender:  "alice",
		Content: "hello",
		SentAt:  snap[0].SentAt.Add(200 * time.Millisecond),
		Origin:  model.OriginConfirmed,
	})
	require.NoError(t, e.FetchSince(context.Background()))

	snap = e.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "srv-1", snap[0].ID)
	assert.True(t, snap[0].IsConfirmed())
}

// silentAckClient accepts sends but never echoes the created message.
type silentAckClient struct {
	inner *fakeClient
}

func (s *silentAckClient) Messages(ctx context.Context, key string) ([]model.Message, error) {
	return s.inner.Messages(ctx, key)
}

func (s *silentAckClient) MessagesSince(ctx context.Context, key string, since time.Time) ([]model.Message, error) {
	return s.inner.MessagesSince(ctx, key, since)
}

func (s *silentAckClient) Send(ctx context.Context, key, content string) (*model.Message, error) {
	if _, err := s.inner.Send(ctx, key, content); err != nil {
		return nil, err
	}
	return nil, nil
}
