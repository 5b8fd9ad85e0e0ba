package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// SnapshotFunc receives the current payload of a subscribed document.
// exists is false when the document has never been written.
type SnapshotFunc func(data []byte, exists bool)

// ErrorFunc receives channel-level subscription errors.
type ErrorFunc func(err error)

// UnsubscribeFunc tears down one subscription.
type UnsubscribeFunc func()

// DocumentStore is the external collaborator backing the layout slots:
// get/set/subscribe semantics on named documents. Subscribe delivers the
// current state first, then every subsequent change in arrival order.
type DocumentStore interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Set(ctx context.Context, name string, payload []byte, merge bool) error
	Subscribe(name string, onData SnapshotFunc, onError ErrorFunc) (UnsubscribeFunc, error)
	Close() error
}

// mergePayload applies a shallow JSON object merge of incoming over
// existing. A nil or empty existing payload yields incoming unchanged.
func mergePayload(existing, incoming []byte) ([]byte, error) {
	if len(existing) == 0 {
		return incoming, nil
	}
	var base map[string]json.RawMessage
	if err := json.Unmarshal(existing, &base); err != nil {
		// Unmergeable previous state is replaced, not preserved.
		return incoming, nil
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(incoming, &overlay); err != nil {
		return nil, fmt.Errorf("merge payload: %w", err)
	}
	for key, value := range overlay {
		base[key] = value
	}
	return json.Marshal(base)
}

// MemoryDocumentStore is the in-process store used for tests and local
// development.
type MemoryDocumentStore struct {
	mu          sync.Mutex
	docs        map[string][]byte
	watchers    map[string]map[int]SnapshotFunc
	nextWatcher int
	closed      bool
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		docs:     map[string][]byte{},
		watchers: map[string]map[int]SnapshotFunc{},
	}
}

func (s *MemoryDocumentStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, name)
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

func (s *MemoryDocumentStore) Set(ctx context.Context, name string, payload []byte, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	next := payload
	if merge {
		merged, err := mergePayload(s.docs[name], payload)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		next = merged
	}
	stored := make([]byte, len(next))
	copy(stored, next)
	s.docs[name] = stored
	callbacks := make([]SnapshotFunc, 0, len(s.watchers[name]))
	for _, cb := range s.watchers[name] {
		callbacks = append(callbacks, cb)
	}
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(stored, true)
	}
	return nil
}

func (s *MemoryDocumentStore) Subscribe(name string, onData SnapshotFunc, onError ErrorFunc) (UnsubscribeFunc, error) {
	_ = onError
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrInvalidInput
	}
	id := s.nextWatcher
	s.nextWatcher++
	if s.watchers[name] == nil {
		s.watchers[name] = map[int]SnapshotFunc{}
	}
	s.watchers[name][id] = onData
	current, exists := s.docs[name]
	s.mu.Unlock()

	onData(current, exists)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers[name], id)
	}, nil
}

func (s *MemoryDocumentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.watchers = map[string]map[int]SnapshotFunc{}
	return nil
}
