package contracts

import (
	"fmt"
	"math"
	"time"
)

// AssetObservation is a single market snapshot record
// ⭐ read-only inside the allocator, produced by a SnapshotProvider
type AssetObservation struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent"` // recent % change, 2.5 = +2.5%
	Type          string  `json:"type,omitempty"` // optional asset class label (Stock, Crypto, ...)
}

// MarketSnapshot is the ordered list of candidate assets for one allocation call
type MarketSnapshot struct {
	Assets []AssetObservation `json:"assets"`
	AsOf   time.Time          `json:"asOf,omitempty"`
}

// Len returns the number of assets
func (s *MarketSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Assets)
}

// Symbols returns asset symbols in snapshot order
func (s *MarketSnapshot) Symbols() []string {
	symbols := make([]string, 0, s.Len())
	if s == nil {
		return symbols
	}
	for _, a := range s.Assets {
		symbols = append(symbols, a.Symbol)
	}
	return symbols
}

// Lookup finds an observation by symbol
func (s *MarketSnapshot) Lookup(symbol string) (AssetObservation, bool) {
	if s == nil {
		return AssetObservation{}, false
	}
	for _, a := range s.Assets {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return AssetObservation{}, false
}

// Validate checks per-asset invariants: non-empty unique symbols, finite positive prices
// and a finite change. An empty snapshot is structurally valid.
func (s *MarketSnapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil market snapshot", ErrInvalidRequest)
	}

	seen := make(map[string]struct{}, len(s.Assets))
	for i, a := range s.Assets {
		if a.Symbol == "" {
			return fmt.Errorf("%w: asset #%d has empty symbol", ErrInvalidRequest, i)
		}
		if _, dup := seen[a.Symbol]; dup {
			return fmt.Errorf("%w: duplicate symbol %s", ErrInvalidRequest, a.Symbol)
		}
		seen[a.Symbol] = struct{}{}

		if !(a.Price > 0) || math.IsInf(a.Price, 0) {
			return fmt.Errorf("%w: %s price must be positive, got %v", ErrInvalidRequest, a.Symbol, a.Price)
		}
		if math.IsNaN(a.ChangePercent) || math.IsInf(a.ChangePercent, 0) {
			return fmt.Errorf("%w: %s change percent is not finite", ErrInvalidRequest, a.Symbol)
		}
	}

	return nil
}
