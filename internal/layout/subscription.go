package layout

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
)

// CancelToken marks a lifecycle as finished. Every asynchronous completion
// (snapshot, channel error, reconnect timer) checks it before touching
// session state, so teardown can race in-flight callbacks safely.
type CancelToken struct {
	cancelled atomic.Bool
}

func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

func (t *CancelToken) Cancelled() bool {
	return t.cancelled.Load()
}

type SubscriptionState string

const (
	SubscriptionConnecting   SubscriptionState = "connecting"
	SubscriptionLive         SubscriptionState = "live"
	SubscriptionReconnecting SubscriptionState = "reconnecting"
	SubscriptionTerminated   SubscriptionState = "terminated"
)

const (
	defaultMaxRetries     = 3
	defaultRetryBaseDelay = time.Second
)

type SubscriptionOptions struct {
	// MaxRetries bounds reconnect attempts per subscription; defaults to 3.
	MaxRetries int
	// RetryBaseDelay is the first reconnect delay; it doubles per attempt.
	// Defaults to one second.
	RetryBaseDelay time.Duration
	Logger         Logger
}

// SubscriptionManager owns the live read channel of an editor session: at
// most one subscription at a time, retried on transient failure, degraded
// to the default catalog when retries are exhausted. The editor is never
// left in a blocked or errored load state.
type SubscriptionManager struct {
	store      DocumentStore
	validator  *Validator
	maxRetries int
	baseDelay  time.Duration
	logger     Logger

	mu      sync.Mutex
	current *subscription
}

func NewSubscriptionManager(store DocumentStore, opts SubscriptionOptions) *SubscriptionManager {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = defaultRetryBaseDelay
	}
	logger := orNopLogger(opts.Logger)
	return &SubscriptionManager{
		store:      store,
		validator:  NewValidator(logger),
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.RetryBaseDelay,
		logger:     logger,
	}
}

// Subscribe opens a live channel for target, tearing down any previous
// subscription first. Snapshots are validated before delivery; a missing
// document delivers the default catalog.
func (m *SubscriptionManager) Subscribe(target PlatformTarget, onSnapshot func([]Widget)) (UnsubscribeFunc, error) {
	if !target.Valid() {
		return nil, ErrInvalidTarget
	}
	if onSnapshot == nil {
		return nil, ErrInvalidInput
	}

	sub := &subscription{
		manager:    m,
		target:     target,
		onSnapshot: onSnapshot,
		token:      NewCancelToken(),
		state:      SubscriptionConnecting,
		policy:     newRetryPolicy(m.baseDelay),
	}

	m.mu.Lock()
	previous := m.current
	m.current = sub
	m.mu.Unlock()
	if previous != nil {
		previous.teardown()
	}

	sub.connect()
	return func() { m.drop(sub) }, nil
}

// Unsubscribe tears down the active subscription, if any.
func (m *SubscriptionManager) Unsubscribe() {
	m.mu.Lock()
	sub := m.current
	m.current = nil
	m.mu.Unlock()
	if sub != nil {
		sub.teardown()
	}
}

// State reports the active subscription's state machine position.
func (m *SubscriptionManager) State() SubscriptionState {
	m.mu.Lock()
	sub := m.current
	m.mu.Unlock()
	if sub == nil {
		return SubscriptionTerminated
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.state
}

func (m *SubscriptionManager) drop(sub *subscription) {
	m.mu.Lock()
	if m.current == sub {
		m.current = nil
	}
	m.mu.Unlock()
	sub.teardown()
}

func newRetryPolicy(base time.Duration) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = base
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxInterval = base * 8
	policy.MaxElapsedTime = 0
	policy.Reset()
	return policy
}

type subscription struct {
	manager    *SubscriptionManager
	target     PlatformTarget
	onSnapshot func([]Widget)
	token      *CancelToken

	mu         sync.Mutex
	state      SubscriptionState
	retries    int
	policy     backoff.BackOff
	timer      *time.Timer
	storeUnsub UnsubscribeFunc
}

func (s *subscription) connect() {
	unsub, err := s.manager.store.Subscribe(s.target.DocumentName(), s.handleData, s.handleError)
	if err != nil {
		s.handleError(err)
		return
	}
	s.mu.Lock()
	if s.token.Cancelled() || s.state == SubscriptionTerminated {
		s.mu.Unlock()
		unsub()
		return
	}
	s.storeUnsub = unsub
	s.mu.Unlock()
}

func (s *subscription) handleData(data []byte, exists bool) {
	if s.token.Cancelled() {
		return
	}
	s.mu.Lock()
	if s.state == SubscriptionTerminated {
		s.mu.Unlock()
		return
	}
	s.state = SubscriptionLive
	s.retries = 0
	s.policy.Reset()
	s.mu.Unlock()

	if !exists {
		s.onSnapshot(DefaultWidgets())
		return
	}
	s.onSnapshot(s.manager.validator.ValidateJSON(data))
}

func (s *subscription) handleError(err error) {
	if s.token.Cancelled() {
		return
	}
	s.mu.Lock()
	if s.state == SubscriptionTerminated {
		s.mu.Unlock()
		return
	}
	if s.retries >= s.manager.maxRetries {
		s.state = SubscriptionTerminated
		unsub := s.storeUnsub
		s.storeUnsub = nil
		s.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		s.manager.logger.Printf("subscription %s: retries exhausted, degrading to defaults: %v", s.target, err)
		s.onSnapshot(DefaultWidgets())
		return
	}
	s.state = SubscriptionReconnecting
	delay := s.policy.NextBackOff()
	if delay < 0 {
		delay = s.manager.baseDelay
	}
	s.retries++
	attempt := s.retries
	s.timer = time.AfterFunc(delay, s.reconnect)
	s.mu.Unlock()
	s.manager.logger.Printf("subscription %s: channel error, reconnect %d/%d in %s: %v",
		s.target, attempt, s.manager.maxRetries, delay, err)
}

func (s *subscription) reconnect() {
	if s.token.Cancelled() {
		return
	}
	s.mu.Lock()
	if s.state == SubscriptionTerminated {
		s.mu.Unlock()
		return
	}
	unsub := s.storeUnsub
	s.storeUnsub = nil
	s.state = SubscriptionConnecting
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	s.connect()
}

func (s *subscription) teardown() {
	s.token.Cancel()
	s.mu.Lock()
	s.state = SubscriptionTerminated
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	unsub := s.storeUnsub
	s.storeUnsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
