package entities

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Quote is the priced outcome of selling AmountIn on one pool snapshot.
type Quote struct {
	Pool           *Pool           `json:"pool"`
	Direction      Direction       `json:"direction"`
	AmountIn       *big.Int        `json:"amountIn"`
	AmountOut      *big.Int        `json:"amountOut"`
	PriceImpactBps uint64          `json:"priceImpactBps"`
	EffectivePrice decimal.Decimal `json:"effectivePrice"` // tokenIn per tokenOut
	Authoritative  bool            `json:"authoritative"`
}

func (q *Quote) TokenIn() Token  { return q.Pool.TokenIn(q.Direction) }
func (q *Quote) TokenOut() Token { return q.Pool.TokenOut(q.Direction) }

// SwapStep is one conversion inside a route.
type SwapStep struct {
	Pool         *Pool     `json:"pool"`
	Direction    Direction `json:"direction"`
	AmountIn     *big.Int  `json:"amountIn"`
	MinAmountOut *big.Int  `json:"minAmountOut"`
	Deadline     time.Time `json:"deadline"`
	Quote        *Quote    `json:"quote,omitempty"`
}

func (s *SwapStep) TokenIn() Token  { return s.Pool.TokenIn(s.Direction) }
func (s *SwapStep) TokenOut() Token { return s.Pool.TokenOut(s.Direction) }
func (s *SwapStep) Venue() Venue    { return s.Pool.Venue }

// Route is an ordered, immutable sequence of swap steps.
type Route struct {
	ID          string     `json:"id"`
	Steps       []SwapStep `json:"steps"`
	AmountIn    *big.Int   `json:"amountIn"`
	AmountOut   *big.Int   `json:"amountOut"` // quoted output of the last step
	SlippageBps uint64     `json:"slippageBps"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// NewRoute validates the step chain and assembles a route.
func NewRoute(steps []SwapStep, slippageBps uint64, now time.Time) (*Route, error) {
	r := &Route{
		ID:          uuid.NewString(),
		Steps:       steps,
		SlippageBps: slippageBps,
		CreatedAt:   now,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.AmountIn = new(big.Int).Set(steps[0].AmountIn)
	if last := steps[len(steps)-1]; last.Quote != nil {
		r.AmountOut = new(big.Int).Set(last.Quote.AmountOut)
	}
	return r, nil
}

// Validate checks that the route is non-empty and every junction connects.
// It performs no I/O.
func (r *Route) Validate() error {
	if r == nil || len(r.Steps) == 0 {
		return fmt.Errorf("%w: route has no steps", ErrInvalidRoute)
	}
	for i := range r.Steps {
		if r.Steps[i].Pool == nil {
			return fmt.Errorf("%w: step %d has no pool", ErrInvalidRoute, i)
		}
	}
	if r.Steps[0].AmountIn == nil || r.Steps[0].AmountIn.Sign() <= 0 {
		return fmt.Errorf("%w: route input must be positive", ErrInvalidAmount)
	}
	for i := 0; i+1 < len(r.Steps); i++ {
		out := r.Steps[i].TokenOut()
		in := r.Steps[i+1].TokenIn()
		if out.Address != in.Address {
			return fmt.Errorf("%w: step %d outputs %s but step %d expects %s",
				ErrInvalidRoute, i, out, i+1, in)
		}
	}
	return nil
}

func (r *Route) TokenIn() Token  { return r.Steps[0].TokenIn() }
func (r *Route) TokenOut() Token { return r.Steps[len(r.Steps)-1].TokenOut() }

// PriceImpactBps sums the per-step impacts, an upper bound for the route.
func (r *Route) PriceImpactBps() uint64 {
	var total uint64
	for _, s := range r.Steps {
		if s.Quote != nil {
			total += s.Quote.PriceImpactBps
		}
	}
	if total > bpsDenominator {
		return bpsDenominator
	}
	return total
}
