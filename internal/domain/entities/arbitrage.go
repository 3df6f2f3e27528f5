package entities

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ArbitrageOpportunity is the go/no-go verdict on a simulated route.
type ArbitrageOpportunity struct {
	RouteID string `json:"routeId"`
	// ReferencePrice converts one unit of the route's output into input units.
	ReferencePrice decimal.Decimal `json:"referencePrice"`
	Capital        *big.Int        `json:"capital"`
	OutputValue    *big.Int        `json:"outputValue"` // simulated output measured in input units
	ExpectedProfit *big.Int        `json:"expectedProfit"`
	MinProfitBps   uint64          `json:"minProfitBps"`
	Exact          bool            `json:"exact"`
	Profitable     bool            `json:"profitable"`
}

// ConditionalSpread compares YES and NO prices against one unit of collateral.
type ConditionalSpread struct {
	YesPrice decimal.Decimal `json:"yesPrice"`
	NoPrice  decimal.Decimal `json:"noPrice"`
	Sum      decimal.Decimal `json:"sum"`
	// DeviationBps is |sum - 1| in basis points.
	DeviationBps int64 `json:"deviationBps"`
	// Action is "sell_yes_buy_no" when YES trades above 1-NO, "sell_no_buy_yes" when below.
	Action     string `json:"action,omitempty"`
	Profitable bool   `json:"profitable"`
}

// MarketPrices is a point-in-time view of the conditional markets. Prices
// are quoted in collateral units; a zero value means the market has no
// configured venue path.
type MarketPrices struct {
	YesPrice    decimal.Decimal `json:"yesPrice"`
	NoPrice     decimal.Decimal `json:"noPrice"`
	SpotPrice   decimal.Decimal `json:"spotPrice"`
	Probability decimal.Decimal `json:"probability"`
	// SyntheticPrice is YesPrice*p + NoPrice*(1-p).
	SyntheticPrice decimal.Decimal `json:"syntheticPrice"`
	// GapBps is (SyntheticPrice/SpotPrice - 1) in basis points.
	GapBps int64              `json:"gapBps"`
	Spread *ConditionalSpread `json:"spread,omitempty"`
}
