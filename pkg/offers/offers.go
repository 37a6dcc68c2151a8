package offers

import "github.com/pkg/errors"

// ErrUnknownOffer is returned by a catalog when an offer id has no
// configuration.
var ErrUnknownOffer = errors.New("unknown offer")

// CapType says which caps govern an offer.
type CapType string

const (
	// CapBoth enforces the global offer cap and the per-user cap.
	CapBoth CapType = "both"
	// CapGlobalOnly enforces only the global offer cap.
	CapGlobalOnly CapType = "global_only"
	// CapUserOnly enforces only the per-user cap.
	CapUserOnly CapType = "user_only"
)

// Offer is one configured promotional offer.
type Offer struct {
	ID string `mapstructure:"id"`
	// Type selects which of the two caps are enforced.
	Type CapType `mapstructure:"type"`
	// OfferCap bounds total grants of this offer per reset cycle.
	OfferCap int64 `mapstructure:"offer_cap"`
	// UserCap bounds grants this offer charges against one user's
	// counter per reset cycle.
	UserCap int64 `mapstructure:"user_cap"`
}

// Catalog resolves offer ids to their configuration.
type Catalog interface {
	GetOffer(id string) (*Offer, error)
}
