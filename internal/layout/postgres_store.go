package layout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
)

const (
	postgresDocumentsTable   = "layout_documents"
	postgresNotifyChannel    = "layout_documents_changed"
	postgresOperationTimeout = 5 * time.Second
	postgresListenerMinWait  = 10 * time.Second
	postgresListenerMaxWait  = time.Minute
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresDocumentStore persists layout documents in a single table and
// drives subscriptions from LISTEN/NOTIFY, one notification per changed
// document name.
type PostgresDocumentStore struct {
	dsn    string
	logger Logger
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB

	listenOnce sync.Once
	listenErr  error
	listener   *pq.Listener

	mu      sync.Mutex
	subs    map[string]map[int]SnapshotFunc
	errSubs map[string]map[int]ErrorFunc
	nextSub int
	closed  chan struct{}
}

func NewPostgresDocumentStore(dsn string, logger Logger) (*PostgresDocumentStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresDocumentStore{
		dsn:     dsn,
		logger:  orNopLogger(logger),
		openDB:  sql.Open,
		subs:    map[string]map[int]SnapshotFunc{},
		errSubs: map[string]map[int]ErrorFunc{},
		closed:  make(chan struct{}),
	}, nil
}

func (s *PostgresDocumentStore) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()
		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				name TEXT PRIMARY KEY,
				payload TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, pq.QuoteIdentifier(postgresDocumentsTable))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func (s *PostgresDocumentStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	query := fmt.Sprintf("SELECT payload FROM %s WHERE name = $1", pq.QuoteIdentifier(postgresDocumentsTable))
	var payload string
	err := s.db.QueryRowContext(ctx, query, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func (s *PostgresDocumentStore) Set(ctx context.Context, name string, payload []byte, merge bool) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	next := payload
	if merge {
		selectQuery := fmt.Sprintf("SELECT payload FROM %s WHERE name = $1 FOR UPDATE", pq.QuoteIdentifier(postgresDocumentsTable))
		var existing string
		err := tx.QueryRowContext(ctx, selectQuery, name).Scan(&existing)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		next, err = mergePayload([]byte(existing), payload)
		if err != nil {
			return err
		}
	}

	upsert := fmt.Sprintf(`
		INSERT INTO %s (name, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`, pq.QuoteIdentifier(postgresDocumentsTable))
	if _, err := tx.ExecContext(ctx, upsert, name, string(next)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", postgresNotifyChannel, name); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *PostgresDocumentStore) ensureListener() error {
	s.listenOnce.Do(func() {
		listener := pq.NewListener(s.dsn, postgresListenerMinWait, postgresListenerMaxWait, nil)
		if err := listener.Listen(postgresNotifyChannel); err != nil {
			_ = listener.Close()
			s.listenErr = err
			return
		}
		s.listener = listener
		go s.listenLoop()
	})
	return s.listenErr
}

func (s *PostgresDocumentStore) listenLoop() {
	for {
		select {
		case <-s.closed:
			return
		case notification, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			// A nil notification signals a listener reconnect; resync
			// every subscribed document since changes may have been missed.
			if notification == nil {
				s.mu.Lock()
				names := make([]string, 0, len(s.subs))
				for name := range s.subs {
					names = append(names, name)
				}
				s.mu.Unlock()
				for _, name := range names {
					s.deliver(name)
				}
				continue
			}
			s.deliver(notification.Extra)
		}
	}
}

func (s *PostgresDocumentStore) deliver(name string) {
	s.mu.Lock()
	callbacks := make([]SnapshotFunc, 0, len(s.subs[name]))
	for _, cb := range s.subs[name] {
		callbacks = append(callbacks, cb)
	}
	errCallbacks := make([]ErrorFunc, 0, len(s.errSubs[name]))
	for _, cb := range s.errSubs[name] {
		errCallbacks = append(errCallbacks, cb)
	}
	s.mu.Unlock()
	if len(callbacks) == 0 {
		return
	}
	payload, err := s.Get(context.Background(), name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Printf("postgres store: re-read %s after notify: %v", name, err)
		for _, cb := range errCallbacks {
			cb(err)
		}
		return
	}
	for _, cb := range callbacks {
		cb(payload, err == nil)
	}
}

func (s *PostgresDocumentStore) Subscribe(name string, onData SnapshotFunc, onError ErrorFunc) (UnsubscribeFunc, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	if err := s.ensureListener(); err != nil {
		return nil, err
	}
	s.mu.Lock()
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

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[name], id)
		delete(s.errSubs[name], id)
	}, nil
}

func (s *PostgresDocumentStore) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
