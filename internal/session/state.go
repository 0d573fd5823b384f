package session

import (
	"encoding/json"
	"fmt"

	"github.com/R3E-Network/miniapp_storefront/internal/domain"
	"github.com/R3E-Network/miniapp_storefront/internal/hostchrome"
)

// Mode is the top-level navigation state of a session.
type Mode int32

const (
	// ModeBrowsing shows the store list. Sessions start here.
	ModeBrowsing Mode = iota

	// ModeViewingStore shows one store's menu and the cart.
	ModeViewingStore
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeBrowsing:
		return "browsing"
	case ModeViewingStore:
		return "viewing_store"
	default:
		return fmt.Sprintf("mode(%d)", m)
	}
}

// MarshalJSON implements json.Marshaler.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, ok := ParseMode(str)
	if !ok {
		return fmt.Errorf("unknown mode %q", str)
	}
	*m = parsed
	return nil
}

// ParseMode converts a string to Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "browsing":
		return ModeBrowsing, true
	case "viewing_store":
		return ModeViewingStore, true
	default:
		return ModeBrowsing, false
	}
}

// Snapshot is a complete, immutable rendering of a session. Version grows
// with every change.
type Snapshot struct {
	Version uint64 `json:"version"`
	Mode    Mode   `json:"mode"`

	Stores        []domain.Store `json:"stores"`
	StoresLoading bool           `json:"stores_loading"`
	StoresError   string         `json:"stores_error,omitempty"`

	Store            *domain.Store     `json:"store,omitempty"`
	CatalogLoading   bool              `json:"catalog_loading"`
	CatalogError     string            `json:"catalog_error,omitempty"`
	Categories       []domain.Category `json:"categories"`
	ActiveCategoryID string            `json:"active_category_id,omitempty"`

	Cart       []domain.CartEntry `json:"cart"`
	Summary    domain.CartSummary `json:"summary"`
	TotalLabel string             `json:"total_label"`
	SheetOpen  bool               `json:"sheet_open"`
	Submitting bool               `json:"submitting"`

	Theme hostchrome.Theme `json:"theme"`
}

// Chrome projects the snapshot onto the host chrome state.
func (s Snapshot) Chrome() hostchrome.State {
	return hostchrome.State{
		Items:        s.Summary.Items,
		Total:        s.Summary.Total,
		ViewingStore: s.Mode == ModeViewingStore,
		SheetOpen:    s.SheetOpen,
	}
}

// ActiveCategory returns the selected category, if any.
func (s Snapshot) ActiveCategory() (domain.Category, bool) {
	for _, c := range s.Categories {
		if c.ID == s.ActiveCategoryID {
			return c, true
		}
	}
	return domain.Category{}, false
}
