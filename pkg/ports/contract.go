package ports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract runs a suite of tests to verify that a CheckpointStore
// implementation adheres to the defined interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	t.Helper()
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405.000000000")
	ns := "contract-" + suffix

	key := func(thread string) domain.CheckpointKey {
		return domain.CheckpointKey{ThreadID: thread + "-" + suffix, Namespace: ns}
	}

	transcript := []domain.Message{
		domain.UserMessage("hello"),
		domain.AssistantMessage("Hi! How can I help?"),
		domain.UserMessage("what is 2 plus 2 — ünïcødé ✓"),
		domain.AssistantMessage("2 plus 2 is 4.\n\n```\n4\n```"),
	}

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, key("missing"))
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})

	t.Run("Put and Get Round-Trip", func(t *testing.T) {
		k := key("roundtrip")
		written, err := store.Put(ctx, k, transcript, 0)
		require.NoError(t, err, "Put should create a fresh checkpoint")
		assert.Equal(t, int64(1), written.Version)

		loaded, err := store.Get(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, transcript, loaded.Messages, "messages must round-trip exactly")
		assert.Equal(t, k.ThreadID, loaded.ThreadID)
		assert.Equal(t, k.Namespace, loaded.Namespace)
		assert.Equal(t, int64(1), loaded.Version)
	})

	t.Run("Put Empty Transcript", func(t *testing.T) {
		k := key("empty")
		_, err := store.Put(ctx, k, nil, 0)
		require.NoError(t, err)

		loaded, err := store.Get(ctx, k)
		require.NoError(t, err)
		assert.Empty(t, loaded.Messages)
	})

	t.Run("Compare-And-Swap", func(t *testing.T) {
		k := key("cas")
		first, err := store.Put(ctx, k, transcript[:2], 0)
		require.NoError(t, err)

		// A second creator must lose.
		_, err = store.Put(ctx, k, transcript[:1], 0)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)

		second, err := store.Put(ctx, k, transcript, first.Version)
		require.NoError(t, err)
		assert.Equal(t, first.Version+1, second.Version)

		// A stale writer must lose and leave the record untouched.
		_, err = store.Put(ctx, k, transcript[:1], first.Version)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)

		loaded, err := store.Get(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, transcript, loaded.Messages)
		assert.Equal(t, second.Version, loaded.Version)
	})

	t.Run("Concurrent Writers", func(t *testing.T) {
		k := key("race")
		base, err := store.Put(ctx, k, transcript[:1], 0)
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, conflicts := 0, 0
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Put(ctx, k, transcript[:2], base.Version)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, domain.ErrVersionConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins, "exactly one writer may win a version")
		assert.Equal(t, writers-1, conflicts)
	})

	t.Run("Isolation", func(t *testing.T) {
		a, b := key("iso-a"), key("iso-b")
		otherNS := domain.CheckpointKey{ThreadID: a.ThreadID, Namespace: ns + "-other"}

		_, err := store.Put(ctx, a, transcript[:1], 0)
		require.NoError(t, err)
		_, err = store.Put(ctx, b, transcript[:2], 0)
		require.NoError(t, err)

		la, err := store.Get(ctx, a)
		require.NoError(t, err)
		lb, err := store.Get(ctx, b)
		require.NoError(t, err)
		assert.Len(t, la.Messages, 1)
		assert.Len(t, lb.Messages, 2)

		_, err = store.Get(ctx, otherNS)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound, "namespaces must not share records")
	})

	t.Run("Delete", func(t *testing.T) {
		k := key("delete")
		_, err := store.Put(ctx, k, transcript, 0)
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, k))
		_, err = store.Get(ctx, k)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound, "Get after Delete should return ErrCheckpointNotFound")

		assert.NoError(t, store.Delete(ctx, k), "deleting a missing key is not an error")

		// A deleted thread starts over at version 1.
		again, err := store.Put(ctx, k, transcript[:1], 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), again.Version)
	})

	t.Run("List", func(t *testing.T) {
		listNS := ns + "-list"
		k1 := domain.CheckpointKey{ThreadID: "one", Namespace: listNS}
		k2 := domain.CheckpointKey{ThreadID: "two", Namespace: listNS}
		k3 := domain.CheckpointKey{ThreadID: "tmp-session", Namespace: listNS}
		for _, k := range []domain.CheckpointKey{k1, k2, k3} {
			_, err := store.Put(ctx, k, transcript[:1], 0)
			require.NoError(t, err)
		}

		defer func() {
			_ = store.Delete(ctx, k1)
			_ = store.Delete(ctx, k2)
			_ = store.Delete(ctx, k3)
		}()

		threads, err := store.List(ctx, listNS)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"one", "two", "tmp-session"}, threads)

		require.NoError(t, store.Delete(ctx, k2))
		threads, err = store.List(ctx, listNS)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"one", "tmp-session"}, threads)
	})
}
