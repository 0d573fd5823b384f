// Package hostchrome projects session state onto the host shell's chrome
// (primary action button, back action) and relays chrome clicks back into
// the session.
package hostchrome

import (
	"sync"

	"github.com/R3E-Network/miniapp_storefront/internal/domain"
)

// DefaultReviewLabel prefixes the primary button label.
const DefaultReviewLabel = "Review order"

// CommandSink receives chrome commands.
type CommandSink interface {
	ShowPrimary(label string, enabled bool)
	HidePrimary()
	ShowBack()
	HideBack()
}

// EventSource delivers chrome clicks.
type EventSource interface {
	OnPrimaryClick(fn func())
	OnBackClick(fn func())
}

// Navigator opens external links in the host.
type Navigator interface {
	OpenLink(url string) error
}

// State is the part of the session the chrome reflects.
type State struct {
	Items        int
	Total        domain.Money
	ViewingStore bool
	SheetOpen    bool
}

// Session is what the adapter drives on clicks. Each method reports whether
// it changed anything.
type Session interface {
	ChromeState() State
	OpenOrderSheet() bool
	CloseOrderSheet() bool
	Exit() bool
}

// Config holds adapter presentation settings.
type Config struct {
	ReviewLabel     string
	DefaultCurrency string
}

type projection struct {
	primaryVisible bool
	label          string
	backVisible    bool
}

// Adapter is a stateless projection plus relay. It remembers the last
// projection only to avoid resending identical commands.
type Adapter struct {
	sink CommandSink
	cfg  Config

	mu     sync.Mutex
	last   projection
	synced bool
}

// New creates an adapter writing to sink.
func New(sink CommandSink, cfg Config) *Adapter {
	if cfg.ReviewLabel == "" {
		cfg.ReviewLabel = DefaultReviewLabel
	}
	return &Adapter{sink: sink, cfg: cfg}
}

// Label renders the primary button label for a state.
func (a *Adapter) Label(s State) string {
	return a.cfg.ReviewLabel + " · " + s.Total.Format(a.cfg.DefaultCurrency)
}

// Sync pushes the projection of s to the host.
func (a *Adapter) Sync(s State) {
	next := projection{
		primaryVisible: s.Items > 0,
		backVisible:    s.ViewingStore || s.SheetOpen,
	}
	if next.primaryVisible {
		next.label = a.Label(s)
	}

	a.mu.Lock()
	prev, synced := a.last, a.synced
	a.last, a.synced = next, true
	a.mu.Unlock()

	if !synced || prev.primaryVisible != next.primaryVisible || prev.label != next.label {
		if next.primaryVisible {
			a.sink.ShowPrimary(next.label, true)
		} else {
			a.sink.HidePrimary()
		}
	}
	if !synced || prev.backVisible != next.backVisible {
		if next.backVisible {
			a.sink.ShowBack()
		} else {
			a.sink.HideBack()
		}
	}
}

// Reset forgets the last projection so the next Sync resends everything.
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.synced = false
	a.mu.Unlock()
}

// Bind wires the host's clicks to the session.
func (a *Adapter) Bind(src EventSource, s Session) {
	src.OnPrimaryClick(func() { HandlePrimaryClick(s) })
	src.OnBackClick(func() { HandleBackClick(s) })
}

// HandlePrimaryClick opens the order sheet when the cart has items.
func HandlePrimaryClick(s Session) bool {
	if s.ChromeState().Items == 0 {
		return false
	}
	return s.OpenOrderSheet()
}

// HandleBackClick closes the sheet if it is open, otherwise leaves the store
// if one is being viewed, otherwise does nothing.
func HandleBackClick(s Session) bool {
	st := s.ChromeState()
	switch {
	case st.SheetOpen:
		return s.CloseOrderSheet()
	case st.ViewingStore:
		return s.Exit()
	default:
		return false
	}
}
