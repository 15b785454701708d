package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/threadgraph/pkg/adapters/sqlite"
	"github.com/aretw0/threadgraph/pkg/codec"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, opts ...sqlite.Option) (*sqlite.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "checkpoints.db")
	store, err := sqlite.Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestSQLiteStore_Contract(t *testing.T) {
	store, _ := openStore(t)
	ports.RunCheckpointStoreContract(t, store)
}

func TestSQLiteStore_Contract_Msgpack(t *testing.T) {
	store, _ := openStore(t, sqlite.WithCodec(codec.Msgpack{}))
	ports.RunCheckpointStoreContract(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	store, path := openStore(t)
	key := domain.CheckpointKey{ThreadID: "t1", Namespace: domain.DefaultNamespace}

	_, err := store.Put(ctx, key, []domain.Message{domain.UserMessage("hello")}, 0)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	cp, err := reopened.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cp.Version)
	assert.Equal(t, "hello", cp.Messages[0].Content)
	assert.NoError(t, reopened.Ping(ctx))
}
