package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestKV(t *testing.T) (*RedisKV, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisKV(client, ""), mr
}

func TestRedisKV_SetGetRemove(t *testing.T) {
	kv, mr := setupTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "greeting", "hello"))
	assert.True(t, mr.Exists(DefaultPrefix+"greeting"))
	assert.Equal(t, int64(0), int64(mr.TTL(DefaultPrefix+"greeting")))

	val, err := kv.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", val)

	require.NoError(t, kv.Remove(ctx, "greeting"))
	_, err = kv.Get(ctx, "greeting")
	assert.ErrorIs(t, err, ErrNotFound)

	// Removing twice is fine.
	assert.NoError(t, kv.Remove(ctx, "greeting"))
}

func TestNewRedisKV_Panic(t *testing.T) {
	assert.Panics(t, func() { NewRedisKV(nil, "") })
}

func TestIntroSeen(t *testing.T) {
	kv, _ := setupTestKV(t)
	ctx := context.Background()

	assert.False(t, IntroSeen(ctx, kv))
	require.NoError(t, MarkIntroSeen(ctx, kv))
	assert.True(t, IntroSeen(ctx, kv))
}

func TestEncodeDecode(t *testing.T) {
	type line struct {
		ID    int64   `json:"id"`
		Price float64 `json:"price"`
	}

	tests := []struct {
		name string
		in   []line
	}{
		{name: "empty list", in: []line{}},
		{name: "fractional prices", in: []line{{ID: 1, Price: 19.99}, {ID: 2, Price: 0.1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(tt.in)
			require.NoError(t, err)
			assert.NotContains(t, encoded, "price", "value should not be stored as plain JSON")

			var out []line
			require.NoError(t, Decode(encoded, &out))
			assert.Equal(t, tt.in, out)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	var out []int

	err := Decode("%%% not base64", &out)
	assert.True(t, errors.Is(err, ErrMalformed))

	// valid base64, invalid JSON
	err = Decode("bm90IGpzb24=", &out)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestItemHelpers(t *testing.T) {
	kv, _ := setupTestKV(t)
	ctx := context.Background()

	var out map[string]int
	assert.ErrorIs(t, GetItem(ctx, kv, "missing", &out), ErrNotFound)

	require.NoError(t, SetItem(ctx, kv, "counts", map[string]int{"a": 1}))
	require.NoError(t, GetItem(ctx, kv, "counts", &out))
	assert.Equal(t, 1, out["a"])

	require.NoError(t, RemoveItem(ctx, kv, "counts"))
	assert.ErrorIs(t, GetItem(ctx, kv, "counts", &out), ErrNotFound)
}
