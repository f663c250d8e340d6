// Package session keeps per-user conversation context in Redis, falling back
// to an in-process cache whenever Redis cannot be reached.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"retail-chat-workers/internal/common/logger"
	"retail-chat-workers/internal/common/metrics"
	"retail-chat-workers/internal/models"
)

const lockStripes = 64

type Config struct {
	TTL           time.Duration
	HistoryWindow int
	OpTimeout     time.Duration
	KeyPrefix     string
	// MemoryMax caps the users held by the memory tier; 0 means unbounded.
	MemoryMax int
}

// Lookup is the outcome of Get. Context is nil when the user has no live
// context; absence and expiry are indistinguishable.
type Lookup struct {
	Context  *models.ConversationContext
	Degraded bool
}

// SaveResult reports the outcome of a write. Saved is false only when
// neither tier accepted it.
type SaveResult struct {
	Saved    bool
	Degraded bool
}

// Store never returns errors: every Redis failure is absorbed by the memory
// tier, and a full memory tier drops the write. Without a Redis client the
// memory tier is the primary store and nothing is reported as degraded.
type Store struct {
	rdb    redis.Cmdable
	memory *cache.Cache
	cfg    Config
	logger logger.Logger
	locks  [lockStripes]sync.Mutex
}

// NewStore builds a store. rdb may be nil, in which case only memory is used.
func NewStore(rdb redis.Cmdable, cfg Config, log logger.Logger) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "chat:context:"
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	return &Store{
		rdb:    rdb,
		memory: cache.New(cfg.TTL, 10*time.Minute),
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "context_store"}),
	}
}

func (s *Store) key(userID string) string {
	return s.cfg.KeyPrefix + userID
}

// Get returns the live context for userID.
func (s *Store) Get(ctx context.Context, userID string) Lookup {
	key := s.key(userID)

	if s.rdb != nil {
		opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
		data, err := s.rdb.Get(opCtx, key).Bytes()
		cancel()

		switch {
		case err == nil:
			var conv models.ConversationContext
			if jsonErr := json.Unmarshal(data, &conv); jsonErr != nil {
				s.logger.Warn("discarding undecodable context", map[string]interface{}{
					"userId": userID,
					"error":  jsonErr.Error(),
				})
				return Lookup{}
			}
			return Lookup{Context: &conv}
		case errors.Is(err, redis.Nil):
			// written to memory during an outage and not yet flushed back
			return Lookup{Context: s.memoryGet(key)}
		default:
			s.fallback("get", userID, err)
			return Lookup{Context: s.memoryGet(key), Degraded: true}
		}
	}

	return Lookup{Context: s.memoryGet(key)}
}

// Put stores conv for userID with the given TTL.
func (s *Store) Put(ctx context.Context, userID string, conv *models.ConversationContext, ttl time.Duration) SaveResult {
	if ttl <= 0 {
		ttl = s.cfg.TTL
	}
	key := s.key(userID)

	var res SaveResult
	if s.rdb != nil {
		data, err := json.Marshal(conv)
		if err == nil {
			opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
			err = s.rdb.Set(opCtx, key, data, ttl).Err()
			cancel()
		}
		if err == nil {
			s.memory.Delete(key)
			return SaveResult{Saved: true}
		}
		s.fallback("put", userID, err)
		res.Degraded = true
	}

	if s.memoryFull(key) {
		metrics.ChatFallbacks.WithLabelValues("context_dropped").Inc()
		s.logger.Error("memory tier full, context not saved", map[string]interface{}{
			"userId":    userID,
			"memoryMax": s.cfg.MemoryMax,
		})
		return res
	}
	s.memory.Set(key, cloneContext(conv), ttl)
	res.Saved = true
	return res
}

// AppendTurn adds turn to the user's history, trimming it to the configured
// window. Degraded also reflects a read served by the memory tier.
func (s *Store) AppendTurn(ctx context.Context, userID string, turn models.Turn) SaveResult {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	lookup := s.Get(ctx, userID)
	conv := lookup.Context
	if conv == nil {
		conv = models.NewConversationContext(userID)
	}

	conv.AppendTurn(turn, s.cfg.HistoryWindow)
	res := s.Put(ctx, userID, conv, s.cfg.TTL)
	res.Degraded = res.Degraded || lookup.Degraded
	return res
}

// Delete removes the user's context from both tiers.
func (s *Store) Delete(ctx context.Context, userID string) {
	key := s.key(userID)
	s.memory.Delete(key)

	if s.rdb == nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	if err := s.rdb.Del(opCtx, key).Err(); err != nil {
		s.fallback("delete", userID, err)
	}
}

func (s *Store) memoryGet(key string) *models.ConversationContext {
	if v, found := s.memory.Get(key); found {
		return cloneContext(v.(*models.ConversationContext))
	}
	return nil
}

// memoryFull reports whether key would be a new entry past MemoryMax.
func (s *Store) memoryFull(key string) bool {
	if s.cfg.MemoryMax <= 0 {
		return false
	}
	if _, found := s.memory.Get(key); found {
		return false
	}
	return s.memory.ItemCount() >= s.cfg.MemoryMax
}

func (s *Store) fallback(op, userID string, err error) {
	metrics.ChatFallbacks.WithLabelValues("context").Inc()
	s.logger.Warn("context store unavailable, using memory tier", map[string]interface{}{
		"op":     op,
		"userId": userID,
		"error":  err.Error(),
	})
}

func (s *Store) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.locks[h.Sum32()%lockStripes]
}

// cloneContext copies conv so callers never share memory-tier values.
func cloneContext(conv *models.ConversationContext) *models.ConversationContext {
	if conv == nil {
		return nil
	}
	out := *conv
	out.MessageHistory = append([]models.Turn(nil), conv.MessageHistory...)
	out.Preferences.Flowers = append([]string(nil), conv.Preferences.Flowers...)
	out.Preferences.Colors = append([]string(nil), conv.Preferences.Colors...)
	out.Preferences.Occasions = append([]string(nil), conv.Preferences.Occasions...)
	out.Preferences.Styles = append([]string(nil), conv.Preferences.Styles...)
	return &out
}
