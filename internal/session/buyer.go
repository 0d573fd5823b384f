package session

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/R3E-Network/miniapp_storefront/internal/domain"
	"github.com/R3E-Network/miniapp_storefront/internal/hostchrome"
)

// DefaultBuyerEmailDomain is used when no domain is configured.
const DefaultBuyerEmailDomain = "buyers.storefront.local"

// buyerNamespace scopes name-based buyer IDs so the same host user always
// maps to the same buyer.
var buyerNamespace = uuid.MustParse("8f0e6a3c-54d1-4c55-9b47-2f1d3c9a7e21")

// BuyerFor derives the order identity for a session. Host users get a stable
// ID derived from their host user ID; anonymous sessions get a fresh guest
// ID.
func BuyerFor(host hostchrome.InitData, emailDomain string) domain.Buyer {
	emailDomain = strings.TrimSpace(emailDomain)
	if emailDomain == "" {
		emailDomain = DefaultBuyerEmailDomain
	}

	if u := host.User; u != nil {
		id := uuid.NewSHA1(buyerNamespace, []byte(strconv.FormatInt(u.ID, 10))).String()
		return domain.Buyer{
			ID:          id,
			Email:       "user-" + id + "@" + emailDomain,
			DisplayName: u.DisplayName(),
			Username:    u.Username,
		}
	}

	id := uuid.New().String()
	return domain.Buyer{
		ID:    id,
		Email: "guest-" + id + "@" + emailDomain,
		Guest: true,
	}
}
