// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itshere/chatsync/internal/model"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func confirmed(id, sender, content string, at time.Time) model.Message {
	return model.Message{
		ID:      id,
		Sender:  sender,
		Content: content,
		SentAt:  at,
		Origin:  model.OriginConfirmed,
	}
}

func pending(id, sender, content string, at time.Time) model.Message {
	return model.Message{
		ID:      id,
		Sender:  sender,
		Content: content,
		SentAt:  at,
		Origin:  model.OriginPending,
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestUpsertAllDeduplicatesByID(t *testing.T) {
	st := New("bob")

	st.UpsertAll([]model.Message{
		confirmed("a", "bob", "hi", base),
		confirmed("b", "bob", "there", base.Add(time.Second)),
	})
	st.UpsertAll([]model.Message{
		confirmed("a", "bob", "hi", base),
		confirmed("b", "bob", "there", base.Add(time.Second)),
	})

	assert.Equal(t, 2, st.Len(), "repeated upsert must not duplicate")
	assert.Equal(t, []string{"a", "b"}, ids(st.Snapshot()))
}

func TestUpsertAllIdempotent(t *testing.T) {
	st := New("bob")
	msgs := []model.Message{
		confirmed("a", "alice", "one", base),
		confirmed("b", "bob", "two", base.Add(2*time.Second)),
	}

	st.UpsertAll(msgs)
	first := st.Snapshot()
	st.UpsertAll(msgs)
	second := st.Snapshot()

	assert.Equal(t, first, second, "re-merging the same batch must not change the view")
}

func TestSnapshotOrderedBySentAt(t *testing.T) {
	st := New("bob")

	// Deliberately merged out of order.
	st.UpsertAll([]model.Message{
		confirmed("c", "bob", "third", base.Add(2*time.Second)),
		confirmed("a", "bob", "first", base),
		confirmed("b", "bob", "second", base.Add(time.Second)),
	})

	assert.Equal(t, []string{"a", "b", "c"}, ids(st.Snapshot()))
}

func TestSnapshotStableOnTimestampTies(t *testing.T) {
	st := New("bob")

	st.UpsertAll([]model.Message{
		confirmed("x", "bob", "1", base),
		confirmed("y", "bob", "2", base),
		confirmed("z", "bob", "3", base),
	})

	want := []string{"x", "y", "z"}
	assert.Equal(t, want, ids(st.Snapshot()))

	// Later merges must not reshuffle equal-timestamp neighbours.
	st.UpsertAll([]model.Message{confirmed("y", "bob", "2 edited", base)})
	assert.Equal(t, want, ids(st.Snapshot()))
}

func TestReconcileReplacesPending(t *testing.T) {
	st := New("bob")
	p := pending("tmp_1", "alice", "hello", base)
	st.AppendPending(p)

	st.Reconcile("tmp_1", confirmed("srv-9", "alice", "hello", base.Add(100*time.Millisecond)))

	snap := st.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "srv-9", snap[0].ID)
	assert.True(t, snap[0].IsConfirmed())

	_, ok := st.Get("tmp_1")
	assert.False(t, ok, "temp id must be gone after reconcile")
}

func TestReconcileUnknownTempIDIsNoOp(t *testing.T) {
	st := New("bob")
	st.UpsertAll([]model.Message{confirmed("a", "bob", "hi", base)})
	before := st.Snapshot()

	st.Reconcile("tmp_missing", confirmed("srv-1", "alice", "x", base))

	assert.Equal(t, before, st.Snapshot())
}

func TestReconcileAfterRacingFetchDeliveredConfirmed(t *testing.T) {
	st := New("bob")
	st.AppendPending(pending("tmp_1", "alice", "hello", base))

	// An incremental fetch delivers the server copy before the send
	// completion does. The pending twin collapses away at that point.
	st.UpsertAll([]model.Message{confirmed("srv-9", "alice", "hello", base.Add(time.Second))})
	require.Equal(t, 1, st.Len())

	// The late reconcile must not resurrect anything.
	st.Reconcile("tmp_1", confirmed("srv-9", "alice", "hello", base.Add(time.Second)))
	assert.Equal(t, []string{"srv-9"}, ids(st.Snapshot()))
}

func TestReplaceConfirmedPreservesPendingAndFailed(t *testing.T) {
	st := New("bob")
	st.UpsertAll([]model.Message{
		confirmed("a", "bob", "old", base),
		confirmed("b", "bob", "older", base.Add(time.Second)),
	})
	st.AppendPending(pending("tmp_1", "alice", "in flight", base.Add(2*time.Second)))
	st.AppendPending(pending("tmp_2", "alice", "will fail", base.Add(3*time.Second)))
	st.MarkFailed("tmp_2")

	st.ReplaceConfirmed([]model.Message{
		confirmed("a", "bob", "old", base),
		confirmed("c", "bob", "new", base.Add(4*time.Second)),
	})

	snap := st.Snapshot()
	assert.Equal(t, []string{"a", "tmp_1", "tmp_2", "c"}, ids(snap))

	m, ok := st.Get("tmp_2")
	require.True(t, ok)
	assert.True(t, m.IsFailed(), "failed state must survive a full refetch")
	_, ok = st.Get("b")
	assert.False(t, ok, "stale confirmed entry must be dropped")
}

func TestCollapsePendingAgainstConfirmedTwin(t *testing.T) {
	tests := []struct {
		name     string
		pend     model.Message
		conf     model.Message
		collapse bool
	}{
		{
			name:     "same sender and content within window",
			pend:     pending("tmp_1", "alice", "hello", base),
			conf:     confirmed("srv-1", "alice", "hello", base.Add(1500*time.Millisecond)),
			collapse: true,
		},
		{
			name:     "confirmed slightly earlier than pending",
			pend:     pending("tmp_1", "alice", "hello", base),
			conf:     confirmed("srv-1", "alice", "hello", base.Add(-time.Second)),
			collapse: true,
		},
		{
			name:     "outside the window",
			pend:     pending("tmp_1", "alice", "hello", base),
			conf:     confirmed("srv-1", "alice", "hello", base.Add(3*time.Second)),
			collapse: false,
		},
		{
			name:     "different content",
			pend:     pending("tmp_1", "alice", "hello", base),
			conf:     confirmed("srv-1", "alice", "hello!", base),
			collapse: false,
		},
		{
			name:     "different sender",
			pend:     pending("tmp_1", "alice", "hello", base),
			conf:     confirmed("srv-1", "bob", "hello", base),
			collapse: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := New("bob")
			st.AppendPending(tt.pend)
			st.UpsertAll([]model.Message{tt.conf})

			if tt.collapse {
				assert.Equal(t, 1, st.Len())
				_, ok := st.Get(tt.pend.ID)
				assert.False(t, ok, "pending twin should have collapsed")
			} else {
				assert.Equal(t, 2, st.Len())
			}
		})
	}
}

func TestCollapseNeverMergesTwoConfirmed(t *testing.T) {
	st := New("bob")

	// Identical sender, content, timestamp: distinct ids are distinct messages.
	st.UpsertAll([]model.Message{
		confirmed("a", "alice", "hello", base),
		confirmed("b", "alice", "hello", base),
	})

	assert.Equal(t, 2, st.Len())
}

func TestMarkFailedOnlyAffectsPending(t *testing.T) {
	st := New("bob")
	st.AppendPending(pending("tmp_1", "alice", "x", base))
	st.UpsertAll([]model.Message{confirmed("a", "bob", "y", base)})

	st.MarkFailed("tmp_1")
	st.MarkFailed("a")
	st.MarkFailed("tmp_unknown")

	m, _ := st.Get("tmp_1")
	assert.True(t, m.IsFailed())
	m, _ = st.Get("a")
	assert.True(t, m.IsConfirmed(), "confirmed entries must never flip to failed")
}

func TestRemove(t *testing.T) {
	st := New("bob")
	st.AppendPending(pending("tmp_1", "alice", "x", base))

	assert.True(t, st.Remove("tmp_1"))
	assert.False(t, st.Remove("tmp_1"))
	assert.Equal(t, 0, st.Len())
}

func TestLatestConfirmedIgnoresPending(t *testing.T) {
	st := New("bob")

	_, ok := st.LatestConfirmed()
	assert.False(t, ok, "empty store has no cursor basis")

	st.UpsertAll([]model.Message{
		confirmed("a", "bob", "1", base),
		confirmed("b", "bob", "2", base.Add(5*time.Second)),
	})
	st.AppendPending(pending("tmp_1", "alice", "late", base.Add(time.Hour)))

	got, ok := st.LatestConfirmed()
	require.True(t, ok)
	assert.Equal(t, base.Add(5*time.Second), got)
}
