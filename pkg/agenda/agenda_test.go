package agenda

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xpromo/pkg/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "agendas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func TestFindOrCreateIsIdempotentPerOwnerAndPrompt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, created, err := store.FindOrCreate(ctx, "user1", "promote xpromo", "it saves you time")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "it saves you time", first.Stance)

	// The stored stance wins over later arguments.
	second, created, err := store.FindOrCreate(ctx, "user1", "promote xpromo", "something else")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "it saves you time", second.Stance)

	other, created, err := store.FindOrCreate(ctx, "user2", "promote xpromo", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestSetTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, _, err := store.FindOrCreate(ctx, "user1", "prompt", "stance")
	require.NoError(t, err)
	require.NoError(t, store.SetTitle(ctx, a.ID, "Launch Week"))

	got, err := store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Launch Week", got.Title)
	assert.Equal(t, "stance", got.Stance)

	err = store.SetTitle(ctx, "missing", "x")
	assert.Error(t, err)
}

func TestAppendReplyBuildsHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, _, err := store.FindOrCreate(ctx, "user1", "prompt", "")
	require.NoError(t, err)

	now := time.Now().UTC()
	for i, text := range []string{"first", "second"} {
		r := &ReplyRecord{
			AgendaID: a.ID,
			TweetID:  "t1",
			ReplyID:  "r" + string(rune('1'+i)),
			BotID:    "b1",
			Text:     text,
			PostedAt: now,
		}
		require.NoError(t, store.AppendReply(ctx, r))
		assert.NotZero(t, r.ID)
	}

	history, err := store.Replies(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Text)
	assert.Equal(t, "second", history[1].Text)
	assert.Equal(t, "b1", history[0].BotID)

	empty, err := store.Replies(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFindByIDMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	got, err := store.FindByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}
