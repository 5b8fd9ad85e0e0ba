package layout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidTarget  = errors.New("invalid platform target")
	ErrNoValidWidgets = errors.New("no valid widgets to persist")
	ErrWriteTimeout   = errors.New("write deadline exceeded")
	ErrWriteInFlight  = errors.New("write already in flight")
	ErrNotReady       = errors.New("session not ready")
	ErrSessionClosed  = errors.New("session closed")
	ErrPartialFanout  = errors.New("partial fan-out failure")
	ErrNotImplemented = errors.New("not implemented")
)

// PartialFanoutError reports a fan-out write where one or more target
// documents failed. Succeeded and Failed together cover every planned
// document, so the caller can retry just the failed slots.
type PartialFanoutError struct {
	Succeeded []string
	Failed    map[string]error
}

func (e *PartialFanoutError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("fan-out write failed for %s (%d of %d documents succeeded)",
		strings.Join(names, ", "), len(e.Succeeded), len(e.Succeeded)+len(e.Failed))
}

func (e *PartialFanoutError) Is(target error) bool {
	return target == ErrPartialFanout
}

// PlatformTarget selects which layout slot an edit applies to. Shared is a
// fan-out selector: saving with it mirrors the same payload into both
// platform-specific slots as well.
type PlatformTarget string

const (
	TargetShared    PlatformTarget = "shared"
	TargetPlatformA PlatformTarget = "platform-A"
	TargetPlatformB PlatformTarget = "platform-B"
)

const documentNamePrefix = "layout."

func (t PlatformTarget) Valid() bool {
	switch t {
	case TargetShared, TargetPlatformA, TargetPlatformB:
		return true
	}
	return false
}

// DocumentName is the store slot read for this target. Reads always address
// exactly one document; only writes fan out.
func (t PlatformTarget) DocumentName() string {
	return documentNamePrefix + string(t)
}

func ParsePlatformTarget(raw string) (PlatformTarget, error) {
	target := PlatformTarget(strings.TrimSpace(raw))
	if !target.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
	}
	return target, nil
}

// Widget is one configurable content module on the storefront home screen.
type Widget struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	IsVisible   bool   `json:"isVisible"`
	Order       int    `json:"order"`
	Description string `json:"description"`
}

// Document is the persisted unit for one layout slot. Version is a
// last-writer marker derived from the wall clock, not a conflict-resolution
// mechanism: concurrent editors overwrite each other per document.
type Document struct {
	Widgets     []Widget       `json:"widgets"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	UpdatedBy   string         `json:"updatedBy"`
	Version     int64          `json:"version"`
	Platform    PlatformTarget `json:"platform"`
	// ResetReason is serialized even when empty so a merge write after a
	// reset clears the previous reason.
	ResetReason string `json:"resetReason"`
}

func cloneWidgets(widgets []Widget) []Widget {
	if widgets == nil {
		return nil
	}
	out := make([]Widget, len(widgets))
	copy(out, widgets)
	return out
}

// widgetsEquivalent compares two layouts by id/order/visibility tuples,
// ignoring list ordering and display metadata. Used for dirty detection.
func widgetsEquivalent(a, b []Widget) bool {
	if len(a) != len(b) {
		return false
	}
	keys := make(map[string]struct{}, len(a))
	for _, w := range a {
		keys[widgetStateKey(w)] = struct{}{}
	}
	for _, w := range b {
		if _, ok := keys[widgetStateKey(w)]; !ok {
			return false
		}
	}
	return true
}

func widgetStateKey(w Widget) string {
	return fmt.Sprintf("%s\x00%d\x00%t", w.ID, w.Order, w.IsVisible)
}
