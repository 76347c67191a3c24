package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sovbtc/bitcoin-da/daverifier"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	d, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestStore_PutAndLatest(t *testing.T) {
	d := openTestDB(t)
	store := NewStore(d)
	ctx := context.Background()

	_, _, ok, err := store.Latest(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	cond1 := daverifier.ChainValidityCondition{PrevHash: [32]byte{1}, BlockHash: [32]byte{2}}
	require.NoError(t, store.PutValidityCondition(ctx, 100, cond1, 1000))

	cond2 := daverifier.ChainValidityCondition{PrevHash: [32]byte{2}, BlockHash: [32]byte{3}}
	require.NoError(t, store.PutValidityCondition(ctx, 101, cond2, 1001))

	latest, height, ok, err := store.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 101, height)
	require.Equal(t, cond2, latest)
}

func TestStore_Tip(t *testing.T) {
	d := openTestDB(t)
	store := NewStore(d)
	ctx := context.Background()

	_, ok, err := store.Tip(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	cond := daverifier.ChainValidityCondition{PrevHash: [32]byte{9}, BlockHash: [32]byte{10}}
	require.NoError(t, store.PutValidityCondition(ctx, 50, cond, 500))

	height, ok, err := store.Tip(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 50, height)
}

func TestStore_TipNeverRegresses(t *testing.T) {
	d := openTestDB(t)
	store := NewStore(d)
	ctx := context.Background()

	cond := daverifier.ChainValidityCondition{PrevHash: [32]byte{1}, BlockHash: [32]byte{2}}
	require.NoError(t, store.PutValidityCondition(ctx, 200, cond, 1))
	require.NoError(t, store.PutValidityCondition(ctx, 150, cond, 2))

	height, ok, err := store.Tip(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 200, height, "tip should not regress when re-processing an earlier height")
}

func TestStore_ConditionAt(t *testing.T) {
	d := openTestDB(t)
	store := NewStore(d)
	ctx := context.Background()

	_, ok, err := store.ConditionAt(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	cond := daverifier.ChainValidityCondition{PrevHash: [32]byte{5}, BlockHash: [32]byte{6}}
	require.NoError(t, store.PutValidityCondition(ctx, 1, cond, 42))

	got, ok, err := store.ConditionAt(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cond, got)
}

func TestOpen_RunsMigrationsIdempotently(t *testing.T) {
	d, err := Open(":memory:")
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.migrate())
}
