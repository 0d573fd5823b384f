package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Messages is the buyer-facing copy. OrderPlaced takes the confirmation
// reference as its only verb.
type Messages struct {
	ReviewOrder        string `yaml:"review_order"`
	NothingToSubmit    string `yaml:"nothing_to_submit"`
	OrderPlaced        string `yaml:"order_placed"`
	CatalogUnavailable string `yaml:"catalog_unavailable"`
	StoresUnavailable  string `yaml:"stores_unavailable"`
	SubmitFailed       string `yaml:"submit_failed"`
	NotPurchasable     string `yaml:"not_purchasable"`
}

// DefaultMessages returns the built-in copy.
func DefaultMessages() Messages {
	return Messages{
		ReviewOrder:        "Review order",
		NothingToSubmit:    "Nothing to submit: none of the items in your cart can be ordered.",
		OrderPlaced:        "Order %s placed. Thank you!",
		CatalogUnavailable: "This store's menu could not be loaded. Tap retry to try again.",
		StoresUnavailable:  "Stores could not be loaded. Tap retry to try again.",
		SubmitFailed:       "The order could not be placed. Please try again.",
		NotPurchasable:     "This item cannot be ordered right now.",
	}
}

// LoadMessages reads a YAML messages file over the defaults. An empty path
// returns the defaults; keys missing from the file keep their default.
func LoadMessages(path string) (Messages, error) {
	msgs := DefaultMessages()
	if path == "" {
		return msgs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Messages{}, fmt.Errorf("failed to read messages file: %w", err)
	}
	if err := yaml.Unmarshal(data, &msgs); err != nil {
		return Messages{}, fmt.Errorf("failed to parse messages file: %w", err)
	}
	return msgs, nil
}
