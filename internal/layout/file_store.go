package layout

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileDocumentStore keeps one JSON file per document under a directory and
// drives subscriptions from filesystem change events. Meant for durable
// single-host deployments and local development against a real editor.
type FileDocumentStore struct {
	dir     string
	logger  Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	subs    map[string]map[int]SnapshotFunc
	errSubs map[string]map[int]ErrorFunc
	nextSub int
	closed  bool
}

func NewFileDocumentStore(dir string, logger Logger) (*FileDocumentStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, ErrInvalidInput
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	s := &FileDocumentStore{
		dir:     dir,
		logger:  orNopLogger(logger),
		watcher: watcher,
		subs:    map[string]map[int]SnapshotFunc{},
		errSubs: map[string]map[int]ErrorFunc{},
	}
	go s.watchLoop()
	return s, nil
}

func (s *FileDocumentStore) documentPath(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *FileDocumentStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(s.documentPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *FileDocumentStore) Set(ctx context.Context, name string, payload []byte, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := payload
	if merge {
		existing, err := s.Get(ctx, name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		next, err = mergePayload(existing, payload)
		if err != nil {
			return err
		}
	}
	// Write-then-rename so watchers never observe a torn document.
	target := s.documentPath(name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, next, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

func (s *FileDocumentStore) Subscribe(name string, onData SnapshotFunc, onError ErrorFunc) (UnsubscribeFunc, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrInvalidInput
	}
	id := s.nextSub
	s.nextSub++
	if s.subs[name] == nil {
		s.subs[name] = map[int]SnapshotFunc{}
		s.errSubs[name] = map[int]ErrorFunc{}
	}
	s.subs[name][id] = onData
	if onError != nil {
		s.errSubs[name][id] = onError
	}
	s.mu.Unlock()

	payload, err := s.Get(context.Background(), name)
	if errors.Is(err, ErrNotFound) {
		onData(nil, false)
	} else if err != nil {
		if onError != nil {
			onError(err)
		}
	} else {
		onData(payload, true)
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[name], id)
		delete(s.errSubs[name], id)
	}, nil
}

func (s *FileDocumentStore) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			base := filepath.Base(event.Name)
			if !strings.HasSuffix(base, ".json") {
				continue
			}
			s.notify(strings.TrimSuffix(base, ".json"))
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.notifyError(err)
		}
	}
}

func (s *FileDocumentStore) notify(name string) {
	s.mu.Lock()
	callbacks := make([]SnapshotFunc, 0, len(s.subs[name]))
	for _, cb := range s.subs[name] {
		callbacks = append(callbacks, cb)
	}
	s.mu.Unlock()
	if len(callbacks) == 0 {
		return
	}
	payload, err := s.Get(context.Background(), name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Printf("file store: re-read %s after change: %v", name, err)
		return
	}
	for _, cb := range callbacks {
		cb(payload, err == nil)
	}
}

func (s *FileDocumentStore) notifyError(err error) {
	s.mu.Lock()
	callbacks := []ErrorFunc{}
	for _, byID := range s.errSubs {
		for _, cb := range byID {
			callbacks = append(callbacks, cb)
		}
	}
	s.mu.Unlock()
	for _, cb := range callbacks {
		cb(err)
	}
}

func (s *FileDocumentStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.subs = map[string]map[int]SnapshotFunc{}
	s.errSubs = map[string]map[int]ErrorFunc{}
	s.mu.Unlock()
	return s.watcher.Close()
}
