package entities

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// VenueKind is the pricing curve family of a venue. The set is closed.
type VenueKind string

const (
	ConstantProduct VenueKind = "constant_product"
	WeightedPool    VenueKind = "weighted_pool"
	WrapVault       VenueKind = "wrap_vault"
)

// Protocol identifies the on-chain contract family behind a venue
type Protocol string

const (
	ProtocolUniswapV2 Protocol = "uniswap_v2"
	ProtocolUniswapV3 Protocol = "uniswap_v3"
	ProtocolBalancer  Protocol = "balancer"
	ProtocolERC4626   Protocol = "erc4626"
)

// Direction selects which side of a venue is sold
type Direction uint8

const (
	ZeroForOne Direction = iota
	OneForZero
)

// For vaults token0 is the underlying asset and token1 the share token.
const (
	Wrap   = ZeroForOne
	Unwrap = OneForZero
)

func (d Direction) String() string {
	if d == ZeroForOne {
		return "0->1"
	}
	return "1->0"
}

// Reverse returns the opposite direction
func (d Direction) Reverse() Direction {
	if d == ZeroForOne {
		return OneForZero
	}
	return ZeroForOne
}

// Venue is a registry entry: static description of one pool or vault.
type Venue struct {
	Name     string         `json:"name"`
	Kind     VenueKind      `json:"kind"`
	Protocol Protocol       `json:"protocol"`
	Address  common.Address `json:"address"`
	PoolID   common.Hash    `json:"poolId,omitempty"`
	Token0   Token          `json:"token0"`
	Token1   Token          `json:"token1"`
	FeeBps   uint64         `json:"feeBps"`
	FeePips  uint64         `json:"feePips,omitempty"` // hundredths of a bip as read on chain, concentrated-liquidity pools only
	Weight0  uint64         `json:"weight0,omitempty"` // basis points, weighted pools only
	Weight1  uint64         `json:"weight1,omitempty"`
	Router   common.Address `json:"router,omitempty"`
	Quoter   common.Address `json:"quoter,omitempty"`
}

// DirectionFor returns the direction that sells tokenIn on this venue
func (v Venue) DirectionFor(tokenIn common.Address) (Direction, bool) {
	switch tokenIn {
	case v.Token0.Address:
		return ZeroForOne, true
	case v.Token1.Address:
		return OneForZero, true
	}
	return 0, false
}

func (v Venue) TokenIn(d Direction) Token {
	if d == ZeroForOne {
		return v.Token0
	}
	return v.Token1
}

func (v Venue) TokenOut(d Direction) Token {
	if d == ZeroForOne {
		return v.Token1
	}
	return v.Token0
}

// Spender is the contract that pulls tokenIn during a swap on this venue.
func (v Venue) Spender() common.Address {
	switch v.Kind {
	case WrapVault:
		return v.Address
	default:
		if v.Router != (common.Address{}) {
			return v.Router
		}
		return v.Address
	}
}

func (v Venue) Label() string {
	if v.Name != "" {
		return v.Name
	}
	return fmt.Sprintf("%s:%s", v.Protocol, v.Address.Hex())
}

// Pool is a point-in-time snapshot of a venue's pricing state. Snapshots are
// read fresh for every quoting or simulation pass.
type Pool struct {
	Venue    Venue    `json:"venue"`
	Reserve0 *big.Int `json:"reserve0,omitempty"`
	Reserve1 *big.Int `json:"reserve1,omitempty"`
	// Rate is the vault's assets per 1e18 shares.
	Rate              *big.Int `json:"rate,omitempty"`
	RateAuthoritative bool     `json:"rateAuthoritative"`
	BlockNumber       uint64   `json:"blockNumber"`
	UpdatedAt         int64    `json:"updatedAt"`
}

func (p *Pool) Kind() VenueKind { return p.Venue.Kind }

func (p *Pool) TokenIn(d Direction) Token  { return p.Venue.TokenIn(d) }
func (p *Pool) TokenOut(d Direction) Token { return p.Venue.TokenOut(d) }

// Reserves returns (reserveIn, reserveOut) for direction d
func (p *Pool) Reserves(d Direction) (*big.Int, *big.Int) {
	if d == ZeroForOne {
		return p.Reserve0, p.Reserve1
	}
	return p.Reserve1, p.Reserve0
}

func (p *Pool) weights(d Direction) (uint64, uint64) {
	if d == ZeroForOne {
		return p.Venue.Weight0, p.Venue.Weight1
	}
	return p.Venue.Weight1, p.Venue.Weight0
}

// Curve returns the pricing curve for trading in direction d.
func (p *Pool) Curve(d Direction) (Curve, error) {
	switch p.Venue.Kind {
	case ConstantProduct, WeightedPool:
		reserveIn, reserveOut := p.Reserves(d)
		if !positive(reserveIn) || !positive(reserveOut) {
			return nil, ErrInsufficientLiquidity
		}
		if p.Venue.Kind == ConstantProduct {
			return &constantProductCurve{reserveIn: reserveIn, reserveOut: reserveOut, feeBps: p.Venue.FeeBps}, nil
		}
		wIn, wOut := p.weights(d)
		if wIn == 0 || wOut == 0 {
			return nil, fmt.Errorf("%w: weighted pool %s has no weights", ErrUnsupportedVenue, p.Venue.Label())
		}
		return &weightedCurve{
			balanceIn:  reserveIn,
			balanceOut: reserveOut,
			weightIn:   wIn,
			weightOut:  wOut,
			feeBps:     p.Venue.FeeBps,
		}, nil
	case WrapVault:
		if !positive(p.Rate) {
			return nil, ErrInsufficientLiquidity
		}
		return newVaultCurve(p.Rate, d, p.RateAuthoritative), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedVenue, p.Venue.Kind)
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
