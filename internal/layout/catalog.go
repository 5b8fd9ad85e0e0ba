package layout

import (
	"strings"
	"sync"
)

// Widget kinds known to the storefront. The catalog below is the single
// dispatch point: adding a kind is a registry entry, not a code change at
// every render or default-construction site.
const (
	KindBanner          = "banner"
	KindBubbleNav       = "bubble-nav"
	KindThinBanner      = "thin-banner"
	KindPreferenceList  = "preference-list"
	KindDynamicList     = "dynamic-list"
	KindPromoBanner     = "promo-banner"
	KindShopRow         = "shop-row"
	KindBoostedCarousel = "boosted-carousel"
)

// DisplayInfo is what a presentation layer needs to render a widget row.
type DisplayInfo struct {
	Label string
	Icon  string
}

// KindSpec describes one widget kind: the default instance it contributes to
// a fresh layout plus its display adapter.
type KindSpec struct {
	DefaultID          string
	DefaultName        string
	DefaultDescription string
	Display            func(w Widget) DisplayInfo
}

var kindRegistry = struct {
	mu    sync.RWMutex
	specs map[string]KindSpec
	order []string
}{
	specs: map[string]KindSpec{},
}

// RegisterKind adds or replaces a widget kind. Registration order defines
// the default layout order for new kinds.
func RegisterKind(kind string, spec KindSpec) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return
	}
	kindRegistry.mu.Lock()
	defer kindRegistry.mu.Unlock()
	if _, exists := kindRegistry.specs[kind]; !exists {
		kindRegistry.order = append(kindRegistry.order, kind)
	}
	kindRegistry.specs[kind] = spec
}

// KindSpecFor returns the registered spec for a kind.
func KindSpecFor(kind string) (KindSpec, bool) {
	kindRegistry.mu.RLock()
	defer kindRegistry.mu.RUnlock()
	spec, ok := kindRegistry.specs[kind]
	return spec, ok
}

// Kinds returns all registered kinds in registration order.
func Kinds() []string {
	kindRegistry.mu.RLock()
	defer kindRegistry.mu.RUnlock()
	out := make([]string, len(kindRegistry.order))
	copy(out, kindRegistry.order)
	return out
}

// DefaultWidgets builds the canonical default layout: one widget per
// registered kind, all visible, orders 0..N-1 in registration order. Always
// returns fresh copies.
func DefaultWidgets() []Widget {
	kindRegistry.mu.RLock()
	defer kindRegistry.mu.RUnlock()
	out := make([]Widget, 0, len(kindRegistry.order))
	for i, kind := range kindRegistry.order {
		spec := kindRegistry.specs[kind]
		out = append(out, Widget{
			ID:          spec.DefaultID,
			Name:        spec.DefaultName,
			Kind:        kind,
			IsVisible:   true,
			Order:       i,
			Description: spec.DefaultDescription,
		})
	}
	return out
}

// DisplayFor resolves the display adapter for a widget, falling back to a
// generic row for unknown kinds so stale documents still render.
func DisplayFor(w Widget) DisplayInfo {
	if spec, ok := KindSpecFor(w.Kind); ok && spec.Display != nil {
		return spec.Display(w)
	}
	label := w.Name
	if label == "" {
		label = w.ID
	}
	return DisplayInfo{Label: label, Icon: "widget"}
}

func staticDisplay(icon string) func(Widget) DisplayInfo {
	return func(w Widget) DisplayInfo {
		label := w.Name
		if label == "" {
			label = w.ID
		}
		return DisplayInfo{Label: label, Icon: icon}
	}
}

func init() {
	RegisterKind(KindBanner, KindSpec{
		DefaultID:          "banner",
		DefaultName:        "Hero banner",
		DefaultDescription: "Full-width rotating hero banner",
		Display:            staticDisplay("image"),
	})
	RegisterKind(KindBubbleNav, KindSpec{
		DefaultID:          "bubble_nav",
		DefaultName:        "Bubble navigation",
		DefaultDescription: "Circular category shortcuts",
		Display:            staticDisplay("apps"),
	})
	RegisterKind(KindThinBanner, KindSpec{
		DefaultID:          "thin_banner",
		DefaultName:        "Thin banner",
		DefaultDescription: "Slim promotional strip",
		Display:            staticDisplay("remove"),
	})
	RegisterKind(KindPreferenceList, KindSpec{
		DefaultID:          "preference_list",
		DefaultName:        "Preference list",
		DefaultDescription: "Products picked from stated preferences",
		Display:            staticDisplay("favorite"),
	})
	RegisterKind(KindDynamicList, KindSpec{
		DefaultID:          "dynamic_list",
		DefaultName:        "Dynamic list",
		DefaultDescription: "Behavior-driven product rail",
		Display:            staticDisplay("bolt"),
	})
	RegisterKind(KindPromoBanner, KindSpec{
		DefaultID:          "promo_banner",
		DefaultName:        "Promo banner",
		DefaultDescription: "Campaign promotion banner",
		Display:            staticDisplay("sell"),
	})
	RegisterKind(KindShopRow, KindSpec{
		DefaultID:          "shop_row",
		DefaultName:        "Shop row",
		DefaultDescription: "Featured shops carousel",
		Display:            staticDisplay("storefront"),
	})
	RegisterKind(KindBoostedCarousel, KindSpec{
		DefaultID:          "boosted_carousel",
		DefaultName:        "Boosted carousel",
		DefaultDescription: "Sponsored placements carousel",
		Display:            staticDisplay("trending_up"),
	})
}
