package errlog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLog(t *testing.T) (*Log, storage.KV) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	kv := storage.NewRedisKV(client, "")
	return New(kv, "https://kodeenhunter.com/shop", "storefront-test/1.0", zerolog.Nop()), kv
}

func TestLog_KeepsMostRecentTen(t *testing.T) {
	log, _ := setupTestLog(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		log.LogError(ctx, fmt.Errorf("failure %d", i), nil)
	}

	records := log.Records(ctx)
	require.Len(t, records, MaxRecords)
	assert.Equal(t, "failure 5", records[0].Message)
	assert.Equal(t, "failure 14", records[MaxRecords-1].Message)
}

func TestLog_StampsRecords(t *testing.T) {
	log, _ := setupTestLog(t)
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	log.now = func() time.Time { return fixed }

	log.LogAPIError(ctx, "/shop/orders/", 500, "Internal Server Error")

	records := log.Records(ctx)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "API Error: /shop/orders/ - 500 - Internal Server Error", rec.Message)
	assert.True(t, fixed.Equal(rec.Timestamp), "timestamp = %v", rec.Timestamp)
	assert.Equal(t, "https://kodeenhunter.com/shop", rec.URL)
	assert.Equal(t, "storefront-test/1.0", rec.UserAgent)
	assert.Equal(t, "api_error", rec.AdditionalInfo["type"])
	assert.Equal(t, "/shop/orders/", rec.AdditionalInfo["endpoint"])
}

func TestLog_NetworkErrorKeepsCause(t *testing.T) {
	log, _ := setupTestLog(t)
	ctx := context.Background()

	cause := errors.New("connection refused")
	log.LogNetworkError(ctx, "https://api.example.com/api/shop/orders/", fmt.Errorf("post order: %w", cause))

	records := log.Records(ctx)
	require.Len(t, records, 1)
	assert.Equal(t, "network_error", records[0].AdditionalInfo["type"])
	assert.Contains(t, records[0].Stack, "connection refused")
}

func TestLog_MalformedStoreIsEmpty(t *testing.T) {
	log, kv := setupTestLog(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, storage.ErrorLogKey, "{not json"))
	assert.Empty(t, log.Records(ctx))

	// Appending replaces the malformed value.
	log.LogError(ctx, errors.New("fresh"), nil)
	assert.Len(t, log.Records(ctx), 1)
}

func TestLog_Clear(t *testing.T) {
	log, _ := setupTestLog(t)
	ctx := context.Background()

	log.LogError(ctx, errors.New("boom"), nil)
	require.NoError(t, log.Clear(ctx))
	assert.Empty(t, log.Records(ctx))
}

func TestLog_NilIsNoop(t *testing.T) {
	var log *Log
	assert.NotPanics(t, func() {
		log.LogError(context.Background(), errors.New("ignored"), nil)
	})
}
