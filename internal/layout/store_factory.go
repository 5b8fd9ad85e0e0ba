package layout

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// DocumentStoreFactory builds a store from a full DSN. External packages can
// register additional schemes without touching the switch below.
type DocumentStoreFactory func(dsn string, logger Logger) (DocumentStore, error)

var storeFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]DocumentStoreFactory
}{
	factories: map[string]DocumentStoreFactory{},
}

func RegisterDocumentStoreFactory(scheme string, factory DocumentStoreFactory) {
	scheme = normalizeStoreScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	storeFactoryRegistry.mu.Lock()
	defer storeFactoryRegistry.mu.Unlock()
	storeFactoryRegistry.factories[scheme] = factory
}

func lookupDocumentStoreFactory(scheme string) (DocumentStoreFactory, bool) {
	scheme = normalizeStoreScheme(scheme)
	storeFactoryRegistry.mu.RLock()
	defer storeFactoryRegistry.mu.RUnlock()
	factory, ok := storeFactoryRegistry.factories[scheme]
	return factory, ok
}

func normalizeStoreScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

// BuildDocumentStoreFromDSN selects a store backend by DSN scheme:
// memory://, file://<dir>, postgres://, redis://. A bare path is treated as
// a file store directory.
func BuildDocumentStoreFromDSN(dsn string, logger Logger) (DocumentStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := normalizeStoreScheme(parsed.Scheme)
	if factory, ok := lookupDocumentStoreFactory(scheme); ok {
		return factory(dsn, logger)
	}
	switch scheme {
	case "memory", "mem", "inmem":
		return NewMemoryDocumentStore(), nil
	case "", "file":
		dir, dirErr := dsnPath(parsed, dsn)
		if dirErr != nil {
			return nil, dirErr
		}
		return NewFileDocumentStore(dir, logger)
	case "postgres", "postgresql":
		return NewPostgresDocumentStore(dsn, logger)
	case "redis", "rediss":
		return NewRedisDocumentStore(dsn, logger)
	case "mysql", "sqlite", "mongodb":
		return nil, fmt.Errorf("%w: document store %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported document store scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed == nil {
		return "", ErrInvalidInput
	}
	if strings.TrimSpace(parsed.Scheme) == "" {
		if strings.TrimSpace(raw) == "" {
			return "", ErrInvalidInput
		}
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if path == "" {
		path = strings.TrimSpace(parsed.Host)
	}
	if path == "" {
		return "", ErrInvalidInput
	}
	return path, nil
}
