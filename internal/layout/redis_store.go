package layout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix        = "layoutdoc:"
	redisChannelPrefix    = "layoutdoc.changed:"
	redisOperationTimeout = 5 * time.Second
)

// RedisDocumentStore keeps document payloads under prefixed keys and fans
// change notifications out over one pub/sub channel per document.
type RedisDocumentStore struct {
	client *redis.Client
	logger Logger

	mu      sync.Mutex
	pubsubs map[int]*redis.PubSub
	nextSub int
	closed  bool
}

func NewRedisDocumentStore(dsn string, logger Logger) (*RedisDocumentStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, err
	}
	return &RedisDocumentStore{
		client:  redis.NewClient(opts),
		logger:  orNopLogger(logger),
		pubsubs: map[int]*redis.PubSub{},
	}, nil
}

func (s *RedisDocumentStore) Get(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOperationTimeout)
	defer cancel()
	payload, err := s.client.Get(ctx, redisKeyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *RedisDocumentStore) Set(ctx context.Context, name string, payload []byte, merge bool) error {
	ctx, cancel := context.WithTimeout(ctx, redisOperationTimeout)
	defer cancel()
	next := payload
	if merge {
		existing, err := s.client.Get(ctx, redisKeyPrefix+name).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		next, err = mergePayload(existing, payload)
		if err != nil {
			return err
		}
	}
	if err := s.client.Set(ctx, redisKeyPrefix+name, next, 0).Err(); err != nil {
		return err
	}
	return s.client.Publish(ctx, redisChannelPrefix+name, next).Err()
}

func (s *RedisDocumentStore) Subscribe(name string, onData SnapshotFunc, onError ErrorFunc) (UnsubscribeFunc, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrInvalidInput
	}
	id := s.nextSub
	s.nextSub++
	pubsub := s.client.Subscribe(context.Background(), redisChannelPrefix+name)
	s.pubsubs[id] = pubsub
	s.mu.Unlock()

	payload, err := s.Get(context.Background(), name)
	switch {
	case errors.Is(err, ErrNotFound):
		onData(nil, false)
	case err != nil:
		if onError != nil {
			onError(err)
		}
	default:
		onData(payload, true)
	}

	go func() {
		for msg := range pubsub.Channel() {
			onData([]byte(msg.Payload), true)
		}
	}()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ps, ok := s.pubsubs[id]; ok {
			_ = ps.Close()
			delete(s.pubsubs, id)
		}
	}, nil
}

func (s *RedisDocumentStore) Close() error {
	s.mu.Lock()
	s.closed = true
	for id, ps := range s.pubsubs {
		_ = ps.Close()
		delete(s.pubsubs, id)
	}
	s.mu.Unlock()
	return s.client.Close()
}
