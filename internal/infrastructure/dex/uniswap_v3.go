package dex

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

var (
	// slot0() returns (uint160 sqrtPriceX96, int24 tick, ...)
	slot0Selector = common.Hex2Bytes("3850c7bd")
	// liquidity() returns (uint128)
	liquiditySelector = common.Hex2Bytes("1a686502")
	// fee() returns (uint24), hundredths of a bip
	poolFeeSelector = common.Hex2Bytes("ddca3f43")
	// quoteExactInputSingle((address,address,uint256,uint24,uint160)) returns (uint256,uint160,uint32,uint256)
	quoteExactInputSingleSelector = common.Hex2Bytes("c6a5026a")
)

var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// UniswapV3Client models a concentrated-liquidity pool as a constant-product
// pool over its virtual reserves, x = L/sqrtP and y = L*sqrtP. The model
// holds inside the active tick; the quoter supplies exact previews.
type UniswapV3Client struct {
	caller ContractCaller
}

func NewUniswapV3Client(caller ContractCaller) *UniswapV3Client {
	return &UniswapV3Client{caller: caller}
}

func (c *UniswapV3Client) Protocol() entities.Protocol {
	return entities.ProtocolUniswapV3
}

func (c *UniswapV3Client) ReadPool(ctx context.Context, venue entities.Venue) (*entities.Pool, error) {
	token0, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &venue.Address, Data: token0Selector})
	if err != nil {
		return nil, fmt.Errorf("failed to get token0: %w", err)
	}
	if len(token0) < 32 || common.BytesToAddress(token0[12:32]) != venue.Token0.Address {
		return nil, fmt.Errorf("venue %s: token0 does not match configuration", venue.Label())
	}

	sqrtPriceX96, err := readWord(ctx, c.caller, venue.Address, slot0Selector)
	if err != nil {
		return nil, fmt.Errorf("failed to get slot0: %w", err)
	}
	liquidity, err := readWord(ctx, c.caller, venue.Address, liquiditySelector)
	if err != nil {
		return nil, fmt.Errorf("failed to get liquidity: %w", err)
	}
	fee, err := readWord(ctx, c.caller, venue.Address, poolFeeSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to get fee: %w", err)
	}

	reserve0, reserve1 := virtualReserves(liquidity, sqrtPriceX96)
	// the local curve rounds the fee up so it never overstates the output
	venue.FeePips = fee.Uint64()
	venue.FeeBps = (venue.FeePips + 99) / 100

	return &entities.Pool{
		Venue:     venue,
		Reserve0:  reserve0,
		Reserve1:  reserve1,
		UpdatedAt: time.Now().Unix(),
	}, nil
}

// virtualReserves returns (L*2^96/sqrtP, L*sqrtP/2^96)
func virtualReserves(liquidity, sqrtPriceX96 *big.Int) (*big.Int, *big.Int) {
	if liquidity.Sign() == 0 || sqrtPriceX96.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	reserve0 := new(big.Int).Mul(liquidity, q96)
	reserve0.Div(reserve0, sqrtPriceX96)
	reserve1 := new(big.Int).Mul(liquidity, sqrtPriceX96)
	reserve1.Div(reserve1, q96)
	return reserve0, reserve1
}

func (c *UniswapV3Client) Preview(ctx context.Context, pool *entities.Pool, dir entities.Direction, amountIn *big.Int) (*big.Int, error) {
	if pool.Venue.Quoter == (common.Address{}) {
		return nil, entities.ErrPreviewUnsupported
	}
	return c.quoteExactInputSingle(ctx, pool.Venue.Quoter, pool.TokenIn(dir).Address, pool.TokenOut(dir).Address, amountIn, feeTier(pool.Venue))
}

// feeTier is the pool's fee in hundredths of a bip, which identifies the
// pool to the quoter and router. Venues not yet read fall back to the
// configured bps.
func feeTier(venue entities.Venue) uint64 {
	if venue.FeePips != 0 {
		return venue.FeePips
	}
	return venue.FeeBps * 100
}

// quoteExactInputSingle calls QuoterV2 to get exact output amount
// Struct params: (tokenIn, tokenOut, amountIn, fee, sqrtPriceLimitX96)
func (c *UniswapV3Client) quoteExactInputSingle(ctx context.Context, quoter, tokenIn, tokenOut common.Address, amountIn *big.Int, fee uint64) (*big.Int, error) {
	// sqrtPriceLimitX96 = 0, no limit
	data := encodeUint(quoteExactInputSingleSelector,
		addressWord(tokenIn),
		addressWord(tokenOut),
		amountIn,
		new(big.Int).SetUint64(fee),
		big.NewInt(0),
	)

	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &quoter,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("quoter call failed: %w", err)
	}

	// Response: (amountOut uint256, sqrtPriceX96After uint160, initializedTicksCrossed uint32, gasEstimate uint256)
	if len(result) < 32 {
		return nil, fmt.Errorf("invalid quoter response length: %d", len(result))
	}

	return new(big.Int).SetBytes(result[0:32]), nil
}

func (c *UniswapV3Client) BuildSwap(step *entities.SwapStep, amountIn, minAmountOut *big.Int, recipient common.Address) (Call, error) {
	router := step.Venue().Router
	if router == (common.Address{}) {
		return Call{}, fmt.Errorf("%w: venue %s has no router", entities.ErrUnsupportedVenue, step.Venue().Label())
	}

	data, err := uniswapV3RouterABIParsed.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           step.TokenIn().Address,
		TokenOut:          step.TokenOut().Address,
		Fee:               new(big.Int).SetUint64(feeTier(step.Venue())),
		Recipient:         recipient,
		Deadline:          deadlineUnix(step),
		AmountIn:          amountIn,
		AmountOutMinimum:  minAmountOut,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return Call{}, err
	}

	return Call{
		To:   router,
		Data: data,
		Allowances: []Allowance{
			{Token: step.TokenIn().Address, Spender: router, Amount: amountIn},
		},
	}, nil
}
