package layout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func openTestSession(t *testing.T, store DocumentStore, target PlatformTarget) *EditorSession {
	t.Helper()
	session, err := OpenEditorSession(target, SessionOptions{
		Store:        store,
		Author:       func() string { return "op_42" },
		Subscription: SubscriptionOptions{RetryBaseDelay: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	waitForState(t, session, SessionReady)
	return session
}

func waitForState(t *testing.T, session *EditorSession, want SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if session.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session never reached state %s (currently %s)", want, session.State())
}

func draftIndex(widgets []Widget, id string) int {
	for i, w := range widgets {
		if w.ID == id {
			return i
		}
	}
	return -1
}

func TestSessionEndToEndSaveScenario(t *testing.T) {
	store := NewMemoryDocumentStore()
	session := openTestSession(t, store, TargetPlatformA)

	draft := session.Draft()
	if len(draft) != 8 {
		t.Fatalf("expected 8 default widgets, got %d", len(draft))
	}
	if idx := draftIndex(draft, "thin_banner"); idx != 2 {
		t.Fatalf("expected thin_banner at position 2, got %d", idx)
	}

	if err := session.Toggle("thin_banner"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	// Drag from position 2 to position 6: the target slot currently holds
	// shop_row.
	if err := session.Move("thin_banner", "shop_row"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if !session.Dirty() {
		t.Fatalf("expected dirty draft before save")
	}

	if err := session.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}

	ctx := context.Background()
	if _, err := store.Get(ctx, "layout.shared"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("platform save must not touch the shared slot")
	}
	if _, err := store.Get(ctx, "layout.platform-B"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("platform save must not touch the other platform slot")
	}
	payload, err := store.Get(ctx, "layout.platform-A")
	if err != nil {
		t.Fatalf("get saved document: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("decode saved document: %v", err)
	}
	if doc.UpdatedBy != "op_42" || doc.Platform != TargetPlatformA {
		t.Fatalf("unexpected attribution %s/%s", doc.UpdatedBy, doc.Platform)
	}
	if len(doc.Widgets) != 8 {
		t.Fatalf("expected 8 widgets persisted, got %d", len(doc.Widgets))
	}
	for i, w := range doc.Widgets {
		if w.Order != i {
			t.Fatalf("widget %s: expected contiguous order %d, got %d", w.ID, i, w.Order)
		}
	}
	moved := doc.Widgets[6]
	if moved.ID != "thin_banner" || moved.IsVisible || moved.Order != 6 {
		t.Fatalf("expected hidden thin_banner at order 6, got %+v", moved)
	}

	if session.Dirty() {
		t.Fatalf("expected clean session after save")
	}
}

func TestSessionDirtyDetection(t *testing.T) {
	session := openTestSession(t, NewMemoryDocumentStore(), TargetShared)

	if session.Dirty() {
		t.Fatalf("fresh session must not be dirty")
	}
	if err := session.Toggle("banner"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !session.Dirty() {
		t.Fatalf("toggle must mark the session dirty")
	}
	if err := session.Toggle("banner"); err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if session.Dirty() {
		t.Fatalf("toggling back restores the baseline tuple set")
	}

	if err := session.Move("banner", "shop_row"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if !session.Dirty() {
		t.Fatalf("reorder must mark the session dirty")
	}
}

func TestSessionResetClearsDirtyState(t *testing.T) {
	store := NewMemoryDocumentStore()
	session := openTestSession(t, store, TargetPlatformB)

	if err := session.Toggle("promo_banner"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := session.Reset(context.Background(), "test-cleanup"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if session.Dirty() {
		t.Fatalf("expected clean session after reset")
	}

	payload, err := store.Get(context.Background(), "layout.platform-B")
	if err != nil {
		t.Fatalf("get reset document: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("decode reset document: %v", err)
	}
	if doc.ResetReason != "test-cleanup" {
		t.Fatalf("expected reset reason, got %q", doc.ResetReason)
	}
}

func TestSessionResetFailureKeepsLocalDefaultsAndError(t *testing.T) {
	store := newRecordingStore()
	store.failNames = map[string]error{"layout.platform-A": errors.New("store down")}
	session := openTestSession(t, store, TargetPlatformA)

	if err := session.Toggle("banner"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := session.Reset(context.Background(), ""); err == nil {
		t.Fatalf("expected reset error to surface")
	}
	draft := session.Draft()
	if idx := draftIndex(draft, "banner"); idx < 0 || !draft[idx].IsVisible {
		t.Fatalf("expected draft recovered to defaults, got %+v", draft)
	}
	waitForState(t, session, SessionReady)
}

func TestSessionRejectsConcurrentWrites(t *testing.T) {
	store := newRecordingStore()
	store.block = make(chan struct{})
	session := openTestSession(t, store, TargetPlatformA)

	firstDone := make(chan error, 1)
	go func() { firstDone <- session.Save(context.Background()) }()

	waitForState(t, session, SessionSaving)
	if err := session.Save(context.Background()); !errors.Is(err, ErrWriteInFlight) {
		t.Fatalf("expected ErrWriteInFlight for concurrent save, got %v", err)
	}
	if err := session.Reset(context.Background(), ""); !errors.Is(err, ErrWriteInFlight) {
		t.Fatalf("expected ErrWriteInFlight for reset during save, got %v", err)
	}
	if err := session.Toggle("banner"); !errors.Is(err, ErrWriteInFlight) {
		t.Fatalf("expected ErrWriteInFlight for edit during save, got %v", err)
	}

	close(store.block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first save: %v", err)
	}
	waitForState(t, session, SessionReady)
}

func TestSessionPlatformSwitchDiscardsDraft(t *testing.T) {
	store := NewMemoryDocumentStore()
	session := openTestSession(t, store, TargetPlatformA)

	if err := session.Toggle("banner"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !session.Dirty() {
		t.Fatalf("expected dirty before switch")
	}

	if err := session.SelectPlatform(TargetPlatformB); err != nil {
		t.Fatalf("select platform: %v", err)
	}
	waitForState(t, session, SessionReady)
	if session.Target() != TargetPlatformB {
		t.Fatalf("expected target platform-B, got %s", session.Target())
	}
	if session.Dirty() {
		t.Fatalf("platform switch must discard unsaved edits")
	}
	draft := session.Draft()
	if idx := draftIndex(draft, "banner"); idx < 0 || !draft[idx].IsVisible {
		t.Fatalf("expected fresh defaults after switch, got %+v", draft)
	}
}

func TestSessionSnapshotDoesNotOverwriteEditedDraft(t *testing.T) {
	store := NewMemoryDocumentStore()
	session := openTestSession(t, store, TargetPlatformA)

	if err := session.Toggle("thin_banner"); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	// Another editor writes the document while our draft has local edits.
	remote := []Widget{{ID: "banner", Kind: KindBanner, IsVisible: true, Order: 0}}
	if err := store.Set(context.Background(), "layout.platform-A", mustMarshalDocument(t, remote), false); err != nil {
		t.Fatalf("remote write: %v", err)
	}

	draft := session.Draft()
	if len(draft) != 8 {
		t.Fatalf("snapshot overwrote an edited draft: %d widgets", len(draft))
	}
	idx := draftIndex(draft, "thin_banner")
	if idx < 0 || draft[idx].IsVisible {
		t.Fatalf("local toggle lost after snapshot: %+v", draft[idx])
	}
	// The baseline did move, so the session compares against remote state.
	if !session.Dirty() {
		t.Fatalf("expected dirty against the new baseline")
	}
}

func TestSessionSnapshotAdoptedWhenNotEdited(t *testing.T) {
	store := NewMemoryDocumentStore()
	session := openTestSession(t, store, TargetPlatformA)

	remote := []Widget{
		{ID: "banner", Kind: KindBanner, IsVisible: true, Order: 0},
		{ID: "shop_row", Kind: KindShopRow, IsVisible: false, Order: 1},
	}
	if err := store.Set(context.Background(), "layout.platform-A", mustMarshalDocument(t, remote), false); err != nil {
		t.Fatalf("remote write: %v", err)
	}

	draft := session.Draft()
	if len(draft) != 2 || draft[1].ID != "shop_row" {
		t.Fatalf("expected snapshot adopted into draft, got %+v", draft)
	}
	if session.Dirty() {
		t.Fatalf("adopted snapshot must not be dirty")
	}
}

func TestSessionCloseRejectsFurtherCommands(t *testing.T) {
	session := openTestSession(t, NewMemoryDocumentStore(), TargetShared)
	if err := session.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := session.Toggle("banner"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := session.Save(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := session.SelectPlatform(TargetPlatformA); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSessionSharedSaveFansOut(t *testing.T) {
	store := NewMemoryDocumentStore()
	session := openTestSession(t, store, TargetShared)

	if err := session.Toggle("banner"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := session.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}

	ctx := context.Background()
	for _, name := range []string{"layout.shared", "layout.platform-A", "layout.platform-B"} {
		if _, err := store.Get(ctx, name); err != nil {
			t.Fatalf("expected %s written, got %v", name, err)
		}
	}
}
