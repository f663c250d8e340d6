package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-chat-workers/internal/common/logger"
	"retail-chat-workers/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func createTestConfig() Config {
	return Config{
		TTL:           time.Hour,
		HistoryWindow: 3,
		OpTimeout:     time.Second,
		KeyPrefix:     "chat:context:",
	}
}

func turnAt(msg string, ts time.Time) models.Turn {
	return models.Turn{UserMessage: msg, Reply: "ok", Intent: models.IntentProductSearch, Timestamp: ts}
}

var t0 = time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

// ==========================
// Durable Path Tests
// ==========================

func TestStore_PutGet_Redis(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewStore(client, createTestConfig(), logger.NewTestLogger(t))
	ctx := context.Background()

	conv := models.NewConversationContext("u-1")
	conv.AppendTurn(turnAt("red roses", t0), 3)

	assert.Equal(t, SaveResult{Saved: true}, store.Put(ctx, "u-1", conv, 10*time.Minute))
	assert.True(t, mr.Exists("chat:context:u-1"))
	assert.Equal(t, 10*time.Minute, mr.TTL("chat:context:u-1"))

	lookup := store.Get(ctx, "u-1")
	require.NotNil(t, lookup.Context)
	assert.False(t, lookup.Degraded)
	assert.Equal(t, "red roses", lookup.Context.LastTurn().UserMessage)
}

func TestStore_Get_ExpiredIsAbsent(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewStore(client, createTestConfig(), logger.NewNoOpLogger())
	ctx := context.Background()

	store.Put(ctx, "u-1", models.NewConversationContext("u-1"), time.Minute)
	mr.FastForward(2 * time.Minute)

	lookup := store.Get(ctx, "u-1")
	assert.Nil(t, lookup.Context)
	assert.False(t, lookup.Degraded)
	assert.Nil(t, store.Get(ctx, "never-seen").Context)
}

func TestStore_AppendTurn_TrimsHistory(t *testing.T) {
	_, client := setupRedis(t)
	store := NewStore(client, createTestConfig(), logger.NewNoOpLogger())
	ctx := context.Background()

	for i, msg := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, SaveResult{Saved: true}, store.AppendTurn(ctx, "u-1", turnAt(msg, t0.Add(time.Duration(i)*time.Second))))
	}

	conv := store.Get(ctx, "u-1").Context
	require.NotNil(t, conv)
	require.Len(t, conv.MessageHistory, 3)
	assert.Equal(t, "c", conv.MessageHistory[0].UserMessage)
	assert.Equal(t, "e", conv.LastTurn().UserMessage)
}

func TestStore_AppendTurn_FoldsPreferences(t *testing.T) {
	_, client := setupRedis(t)
	store := NewStore(client, createTestConfig(), logger.NewNoOpLogger())
	ctx := context.Background()

	turn := turnAt("red roses for my wife", t0)
	turn.Entities = models.Entities{Colors: []string{"red"}, Flowers: []string{"rose"}, Recipient: "wife"}
	store.AppendTurn(ctx, "u-1", turn)

	conv := store.Get(ctx, "u-1").Context
	require.NotNil(t, conv)
	assert.Equal(t, []string{"red"}, conv.Preferences.Colors)
	assert.Equal(t, "wife", conv.Preferences.Recipient)
}

func TestStore_AppendTurn_ConcurrentSameUser(t *testing.T) {
	_, client := setupRedis(t)
	cfg := createTestConfig()
	cfg.HistoryWindow = 50
	store := NewStore(client, cfg, logger.NewNoOpLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.AppendTurn(ctx, "u-1", turnAt("msg", t0.Add(time.Duration(i)*time.Second)))
		}(i)
	}
	wg.Wait()

	conv := store.Get(ctx, "u-1").Context
	require.NotNil(t, conv)
	assert.Len(t, conv.MessageHistory, 20)
}

// ==========================
// Fallback Tests
// ==========================

func TestStore_FallsBackToMemoryWhenRedisDown(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewStore(client, createTestConfig(), logger.NewTestLogger(t))
	ctx := context.Background()

	mr.Close()

	assert.Equal(t, SaveResult{Saved: true, Degraded: true}, store.AppendTurn(ctx, "u-1", turnAt("white lilies", t0)))

	lookup := store.Get(ctx, "u-1")
	assert.True(t, lookup.Degraded)
	require.NotNil(t, lookup.Context)
	assert.Equal(t, "white lilies", lookup.Context.LastTurn().UserMessage)
}

func TestStore_ResumesDurablePathWhenRedisReturns(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewStore(client, createTestConfig(), logger.NewNoOpLogger())
	ctx := context.Background()

	mr.Close()
	store.AppendTurn(ctx, "u-1", turnAt("during outage", t0))

	require.NoError(t, mr.Restart())

	// the outage turn is still visible, then flushed to redis on the next write
	lookup := store.Get(ctx, "u-1")
	assert.False(t, lookup.Degraded)
	require.NotNil(t, lookup.Context)
	assert.Equal(t, "during outage", lookup.Context.LastTurn().UserMessage)

	assert.Equal(t, SaveResult{Saved: true}, store.AppendTurn(ctx, "u-1", turnAt("after recovery", t0.Add(time.Minute))))

	raw, err := mr.Get("chat:context:u-1")
	require.NoError(t, err)
	var conv models.ConversationContext
	require.NoError(t, json.Unmarshal([]byte(raw), &conv))
	assert.Len(t, conv.MessageHistory, 2)
	_, inMemory := store.memory.Get("chat:context:u-1")
	assert.False(t, inMemory)
}

func TestStore_MemoryOnly(t *testing.T) {
	store := NewStore(nil, createTestConfig(), logger.NewNoOpLogger())
	ctx := context.Background()

	assert.Equal(t, SaveResult{Saved: true}, store.AppendTurn(ctx, "u-1", turnAt("tulips", t0)))
	lookup := store.Get(ctx, "u-1")
	assert.False(t, lookup.Degraded)
	require.NotNil(t, lookup.Context)

	store.Delete(ctx, "u-1")
	assert.Nil(t, store.Get(ctx, "u-1").Context)
}

func TestStore_MemoryValuesAreCopies(t *testing.T) {
	store := NewStore(nil, createTestConfig(), logger.NewNoOpLogger())
	ctx := context.Background()

	store.AppendTurn(ctx, "u-1", turnAt("tulips", t0))
	got := store.Get(ctx, "u-1").Context
	got.MessageHistory[0].UserMessage = "mutated"

	assert.Equal(t, "tulips", store.Get(ctx, "u-1").Context.LastTurn().UserMessage)
}

// ==========================
// Command-level Tests
// ==========================

func TestStore_Get_UndecodableValueIsAbsent(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewStore(client, createTestConfig(), logger.NewNoOpLogger())

	mock.ExpectGet("chat:context:u-1").SetVal("{not json")

	lookup := store.Get(context.Background(), "u-1")
	assert.Nil(t, lookup.Context)
	assert.False(t, lookup.Degraded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Put_SetErrorFallsBack(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewStore(client, createTestConfig(), logger.NewNoOpLogger())
	conv := models.NewConversationContext("u-1")

	data, err := json.Marshal(conv)
	require.NoError(t, err)
	mock.ExpectSet("chat:context:u-1", data, 5*time.Minute).SetErr(errors.New("READONLY You can't write against a read only replica"))

	assert.Equal(t, SaveResult{Saved: true, Degraded: true}, store.Put(context.Background(), "u-1", conv, 5*time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())

	_, inMemory := store.memory.Get("chat:context:u-1")
	assert.True(t, inMemory)
}

func TestStore_Delete(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewStore(client, createTestConfig(), logger.NewNoOpLogger())

	mock.ExpectDel("chat:context:u-1").SetVal(1)
	store.Delete(context.Background(), "u-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AppendTurn_MemoryTierCap(t *testing.T) {
	tests := []struct {
		name      string
		redisDown bool
		want      SaveResult
	}{
		{name: "memory only", want: SaveResult{Saved: false}},
		{name: "redis down", redisDown: true, want: SaveResult{Saved: false, Degraded: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestConfig()
			cfg.MemoryMax = 1

			var store *Store
			if tt.redisDown {
				mr, client := setupRedis(t)
				mr.Close()
				store = NewStore(client, cfg, logger.NewNoOpLogger())
			} else {
				store = NewStore(nil, cfg, logger.NewNoOpLogger())
			}
			ctx := context.Background()

			require.True(t, store.AppendTurn(ctx, "u-1", turnAt("roses", t0)).Saved)
			// an existing entry may still be rewritten
			require.True(t, store.AppendTurn(ctx, "u-1", turnAt("tulips", t0.Add(time.Second))).Saved)

			assert.Equal(t, tt.want, store.AppendTurn(ctx, "u-2", turnAt("lilies", t0)))
			assert.Nil(t, store.Get(ctx, "u-2").Context)
		})
	}
}
