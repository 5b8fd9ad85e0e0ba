package layout

import (
	"context"
	"sort"
	"sync"
)

type SessionState string

const (
	SessionLoading   SessionState = "loading"
	SessionReady     SessionState = "ready"
	SessionSaving    SessionState = "saving"
	SessionResetting SessionState = "resetting"
	SessionClosed    SessionState = "closed"
)

type SessionOptions struct {
	Store DocumentStore
	// Author supplies the current operator id for write attribution.
	Author       func() string
	Logger       Logger
	Subscription SubscriptionOptions
	Planner      PlannerOptions
}

// EditorSession orchestrates one operator's editing of one platform
// target: draft state, dirty tracking, and the subscribe/save/reset flows.
// Reads flow store -> subscription -> validator -> draft; writes flow
// draft -> planner -> store. A draft with local edits is never silently
// overwritten by an inbound snapshot; only an explicit platform switch
// discards it.
type EditorSession struct {
	subs    *SubscriptionManager
	planner *WritePlanner
	resetc  *ResetCoordinator
	author  func() string
	logger  Logger

	mu              sync.Mutex
	state           SessionState
	target          PlatformTarget
	draft           []Widget
	lastSynced      []Widget
	editedSinceSync bool
}

// OpenEditorSession subscribes to target and returns the session in the
// Loading state; the first snapshot moves it to Ready.
func OpenEditorSession(target PlatformTarget, opts SessionOptions) (*EditorSession, error) {
	if opts.Store == nil {
		return nil, ErrInvalidInput
	}
	if !target.Valid() {
		return nil, ErrInvalidTarget
	}
	if opts.Author == nil {
		opts.Author = func() string { return "unknown" }
	}
	logger := orNopLogger(opts.Logger)
	if opts.Subscription.Logger == nil {
		opts.Subscription.Logger = logger
	}
	if opts.Planner.Logger == nil {
		opts.Planner.Logger = logger
	}
	planner := NewWritePlanner(opts.Store, opts.Planner)
	s := &EditorSession{
		subs:    NewSubscriptionManager(opts.Store, opts.Subscription),
		planner: planner,
		resetc:  NewResetCoordinator(planner, logger),
		author:  opts.Author,
		logger:  logger,
		state:   SessionLoading,
		target:  target,
	}
	if _, err := s.subs.Subscribe(target, s.onSnapshot); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *EditorSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *EditorSession) Target() PlatformTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Draft returns a copy of the widget list being edited.
func (s *EditorSession) Draft() []Widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneWidgets(s.draft)
}

// Dirty reports whether the draft differs from the last-synced baseline by
// id/order/visibility tuples.
func (s *EditorSession) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !widgetsEquivalent(s.draft, s.lastSynced)
}

// Toggle flips visibility of one widget in the draft.
func (s *EditorSession) Toggle(id string) error {
	return s.edit(func(draft []Widget) []Widget {
		return ToggleVisibility(draft, id)
	})
}

// Move reorders the draft: the widget with movedID takes targetID's
// position and the whole list is reindexed.
func (s *EditorSession) Move(movedID, targetID string) error {
	return s.edit(func(draft []Widget) []Widget {
		return Reorder(draft, movedID, targetID)
	})
}

func (s *EditorSession) edit(apply func([]Widget) []Widget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	s.draft = apply(s.draft)
	s.editedSinceSync = true
	return nil
}

func (s *EditorSession) editableLocked() error {
	switch s.state {
	case SessionReady:
		return nil
	case SessionLoading:
		return ErrNotReady
	case SessionSaving, SessionResetting:
		return ErrWriteInFlight
	default:
		return ErrSessionClosed
	}
}

// SelectPlatform switches which document family the session edits. Unsaved
// local edits are discarded by design: the draft always belongs to a single
// target, and switching selects a different document to edit.
func (s *EditorSession) SelectPlatform(target PlatformTarget) error {
	if !target.Valid() {
		return ErrInvalidTarget
	}
	s.mu.Lock()
	switch s.state {
	case SessionSaving, SessionResetting:
		s.mu.Unlock()
		return ErrWriteInFlight
	case SessionClosed:
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if target == s.target {
		s.mu.Unlock()
		return nil
	}
	s.target = target
	s.state = SessionLoading
	s.draft = nil
	s.lastSynced = nil
	s.editedSinceSync = false
	s.mu.Unlock()

	_, err := s.subs.Subscribe(target, s.onSnapshot)
	return err
}

// Save persists the draft through the write planner. Concurrent saves are
// rejected, not queued.
func (s *EditorSession) Save(ctx context.Context) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = SessionSaving
	target := s.target
	saved := cloneWidgets(s.draft)
	s.mu.Unlock()

	err := s.planner.Write(ctx, target, saved, s.author())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionSaving {
		s.state = SessionReady
	}
	if err != nil {
		return err
	}
	if s.target != target {
		// Platform switched while the write was in flight; the result no
		// longer describes the current draft.
		return nil
	}
	s.lastSynced = saved
	s.editedSinceSync = !widgetsEquivalent(s.draft, saved)
	return nil
}

// Reset overwrites the target with the default catalog. The draft is reset
// locally even when the remote write fails; the error is still returned so
// the operator sees it.
func (s *EditorSession) Reset(ctx context.Context, reason string) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = SessionResetting
	target := s.target
	s.mu.Unlock()

	defaults, err := s.resetc.Reset(ctx, target, s.author(), reason)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionResetting {
		s.state = SessionReady
	}
	if s.target != target {
		return err
	}
	s.draft = defaults
	if err != nil {
		// Remote state unknown; keep the old baseline so the session
		// reports dirty and the operator retries the save.
		s.editedSinceSync = true
		return err
	}
	s.lastSynced = cloneWidgets(defaults)
	s.editedSinceSync = false
	return nil
}

// Close terminates the session and its subscription; late callbacks from
// either are discarded.
func (s *EditorSession) Close() error {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = SessionClosed
	s.mu.Unlock()
	s.subs.Unsubscribe()
	return nil
}

func (s *EditorSession) onSnapshot(widgets []Widget) {
	sortWidgetsForDisplay(widgets)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionClosed {
		return
	}
	// A snapshot arriving after a local edit only refreshes the baseline;
	// the draft keeps the operator's unsaved work.
	s.lastSynced = widgets
	if !s.editedSinceSync {
		s.draft = cloneWidgets(widgets)
	}
	if s.state == SessionLoading {
		s.state = SessionReady
	}
}

// sortWidgetsForDisplay orders a snapshot by its order fields. Out-of-range
// or non-contiguous values from tolerated legacy documents still sort; they
// are renumbered on the next reorder or save.
func sortWidgetsForDisplay(widgets []Widget) {
	sort.SliceStable(widgets, func(i, j int) bool {
		return widgets[i].Order < widgets[j].Order
	})
}
