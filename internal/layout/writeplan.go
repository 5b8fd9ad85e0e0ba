package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultWriteDeadline = 10 * time.Second

type PlannerOptions struct {
	// WriteDeadline bounds the caller's wait for a fan-out write; defaults
	// to ten seconds. The underlying store operations are not cancelled.
	WriteDeadline time.Duration
	Logger        Logger
	// Now is a clock seam for tests.
	Now func() time.Time
}

// WritePlanner decides which documents a save touches, stamps the payload
// with attribution metadata, and fans the write out concurrently under a
// deadline. Fan-out writes are independent, never transactional.
type WritePlanner struct {
	store    DocumentStore
	deadline time.Duration
	logger   Logger
	now      func() time.Time
}

func NewWritePlanner(store DocumentStore, opts PlannerOptions) *WritePlanner {
	if opts.WriteDeadline <= 0 {
		opts.WriteDeadline = defaultWriteDeadline
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &WritePlanner{
		store:    store,
		deadline: opts.WriteDeadline,
		logger:   orNopLogger(opts.Logger),
		now:      opts.Now,
	}
}

// Plan returns the document names a write to target touches: the shared
// slot fans out to itself plus both platform mirrors, a platform slot is
// written alone.
func (p *WritePlanner) Plan(target PlatformTarget) []string {
	if target == TargetShared {
		return []string{
			TargetShared.DocumentName(),
			TargetPlatformA.DocumentName(),
			TargetPlatformB.DocumentName(),
		}
	}
	return []string{target.DocumentName()}
}

// Write persists widgets to every planned document for target, attributed
// to author. An ErrWriteTimeout means the outcome is unknown: the store may
// still complete the writes, so callers should re-verify before retrying.
func (p *WritePlanner) Write(ctx context.Context, target PlatformTarget, widgets []Widget, author string) error {
	return p.write(ctx, target, widgets, author, "")
}

// WriteReset is Write with a reset annotation carried in the payload.
func (p *WritePlanner) WriteReset(ctx context.Context, target PlatformTarget, widgets []Widget, author, reason string) error {
	return p.write(ctx, target, widgets, author, reason)
}

func (p *WritePlanner) write(ctx context.Context, target PlatformTarget, widgets []Widget, author, resetReason string) error {
	if !target.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	if len(widgets) == 0 {
		return ErrNoValidWidgets
	}

	now := p.now()
	doc := Document{
		Widgets:     widgets,
		UpdatedAt:   now.UTC(),
		UpdatedBy:   author,
		Version:     now.UnixMilli(),
		Platform:    target,
		ResetReason: resetReason,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	names := p.Plan(target)
	opID := uuid.NewString()
	p.logger.Printf("write %s: target=%s documents=%d author=%s", opID, target, len(names), author)

	type fanoutResult struct {
		name string
		err  error
	}
	results := make(chan fanoutResult, len(names))
	for _, name := range names {
		go func(name string) {
			// The parent context is passed through untouched: the deadline
			// below races only the caller's wait, not the store operation.
			results <- fanoutResult{name: name, err: p.store.Set(ctx, name, payload, true)}
		}(name)
	}

	timer := time.NewTimer(p.deadline)
	defer timer.Stop()
	succeeded := make([]string, 0, len(names))
	failed := map[string]error{}
	for range names {
		select {
		case res := <-results:
			if res.err != nil {
				failed[res.name] = res.err
			} else {
				succeeded = append(succeeded, res.name)
			}
		case <-timer.C:
			p.logger.Printf("write %s: deadline exceeded after %s", opID, p.deadline)
			return fmt.Errorf("%w after %s", ErrWriteTimeout, p.deadline)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if len(failed) > 0 {
		err := &PartialFanoutError{Succeeded: succeeded, Failed: failed}
		p.logger.Printf("write %s: %v", opID, err)
		return err
	}
	p.logger.Printf("write %s: ok", opID)
	return nil
}
