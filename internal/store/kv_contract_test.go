package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runKVContract checks the behaviour every KV backend shares.
// newKV must return an empty store for each subtest.
func runKVContract(t *testing.T, newKV func(t *testing.T) KV) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing keys", func(t *testing.T) {
		kv := newKV(t)

		s, ok, err := kv.GetString(ctx, KeyReferral)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, s)

		n, ok, err := kv.GetInt64(ctx, KeyReferralSet)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, n)
	})

	t.Run("string round trip", func(t *testing.T) {
		kv := newKV(t)

		require.NoError(t, kv.SetString(ctx, KeyReferral, "https://example.com/campaign?x=1"))
		got, ok, err := kv.GetString(ctx, KeyReferral)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "https://example.com/campaign?x=1", got)
	})

	t.Run("empty string is present", func(t *testing.T) {
		kv := newKV(t)

		require.NoError(t, kv.SetString(ctx, KeyOfferCode, ""))
		got, ok, err := kv.GetString(ctx, KeyOfferCode)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, got)
	})

	t.Run("int round trip", func(t *testing.T) {
		kv := newKV(t)

		require.NoError(t, kv.SetInt64(ctx, KeyReferralSet, 1767322800))
		got, ok, err := kv.GetInt64(ctx, KeyReferralSet)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(1767322800), got)
	})

	t.Run("overwrite", func(t *testing.T) {
		kv := newKV(t)

		require.NoError(t, kv.SetString(ctx, KeyReferral, "FIRST"))
		require.NoError(t, kv.SetString(ctx, KeyReferral, "SECOND"))
		got, _, err := kv.GetString(ctx, KeyReferral)
		require.NoError(t, err)
		assert.Equal(t, "SECOND", got)
	})

	t.Run("wrong kind", func(t *testing.T) {
		kv := newKV(t)

		require.NoError(t, kv.SetInt64(ctx, KeyReferralSet, 5))
		_, _, err := kv.GetString(ctx, KeyReferralSet)
		assert.ErrorIs(t, err, ErrWrongKind)

		require.NoError(t, kv.SetString(ctx, KeyDeviceID, "abc123"))
		_, _, err = kv.GetInt64(ctx, KeyDeviceID)
		assert.ErrorIs(t, err, ErrWrongKind)
	})

	t.Run("kind follows latest write", func(t *testing.T) {
		kv := newKV(t)

		require.NoError(t, kv.SetString(ctx, "k", "text"))
		require.NoError(t, kv.SetInt64(ctx, "k", 9))
		n, ok, err := kv.GetInt64(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(9), n)
	})
}

func TestMemory_KVContract(t *testing.T) {
	runKVContract(t, func(t *testing.T) KV {
		return NewMemory()
	})
}

func TestMemory_Dump(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SetString(ctx, KeyReferral, "PROMO42"))
	require.NoError(t, m.SetInt64(ctx, KeyReferralSet, 10))

	entries, err := m.Dump(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Key: KeyReferralSet, Kind: "int", Value: "10"},
		{Key: KeyReferral, Kind: "string", Value: "PROMO42"},
	}, entries)
}

func TestRedisKV_KVContract(t *testing.T) {
	url := os.Getenv("REFLINK_TEST_REDIS_URL")
	if url == "" {
		t.Skip("REFLINK_TEST_REDIS_URL not set")
	}

	client, err := ConnectRedis(url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	runKVContract(t, func(t *testing.T) KV {
		kv := NewRedisKV(client, "test:"+t.Name())
		require.NoError(t, kv.Clear(context.Background()))
		t.Cleanup(func() { kv.Clear(context.Background()) })
		return kv
	})
}

func TestConnectRedis(t *testing.T) {
	_, err := ConnectRedis("")
	assert.Error(t, err)

	client, err := ConnectRedis("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)
	client.Close()

	client, err = ConnectRedis("127.0.0.1:6380")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6380", client.Options().Addr)
	client.Close()

	_, err = ConnectRedis("redis://host:notaport/x")
	assert.Error(t, err)
}
