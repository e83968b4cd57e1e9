package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	responseTTL = 1 * time.Hour
	keyPrefix   = "idempotency:"
)

// Response is a cached HTTP response for a replayed creation request.
type Response struct {
	StatusCode int                 `json:"status_code"`
	Body       []byte              `json:"body"`
	Headers    map[string][]string `json:"headers"`
}

// Store caches responses keyed by the client's idempotency key. Backed
// by Redis when a client is provided, otherwise by an in-process map
// (ephemeral, single-node only).
type Store struct {
	client *redis.Client
	cache  sync.Map
}

type entry struct {
	resp      Response
	timestamp time.Time
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Get(ctx context.Context, key string) (Response, bool) {
	if s.client != nil {
		data, err := s.client.Get(ctx, keyPrefix+key).Result()
		if errors.Is(err, redis.Nil) {
			return Response{}, false
		}
		if err != nil {
			log.Printf("idempotency cache read failed: %v", err)
			return Response{}, false
		}
		var resp Response
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			return Response{}, false
		}
		return resp, true
	}

	val, ok := s.cache.Load(key)
	if !ok {
		return Response{}, false
	}
	e := val.(entry)
	if time.Since(e.timestamp) > responseTTL {
		s.cache.Delete(key)
		return Response{}, false
	}
	return e.resp, true
}

func (s *Store) Set(ctx context.Context, key string, resp Response) {
	if s.client != nil {
		data, err := json.Marshal(resp)
		if err != nil {
			return
		}
		if err := s.client.Set(ctx, keyPrefix+key, data, responseTTL).Err(); err != nil {
			log.Printf("idempotency cache write failed: %v", err)
		}
		return
	}

	s.cache.Store(key, entry{
		resp:      resp,
		timestamp: time.Now(),
	})
}
