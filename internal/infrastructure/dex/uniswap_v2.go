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

// UniswapV2 ABI function signatures (keccak256 hash of function signature)
var (
	// getReserves() returns (uint112 reserve0, uint112 reserve1, uint32 blockTimestampLast)
	getReservesSelector = common.Hex2Bytes("0902f1ac")
	// token0() returns (address)
	token0Selector = common.Hex2Bytes("0dfe1681")
)

// UniswapV2Client reads and trades Uniswap V2 compatible pairs
type UniswapV2Client struct {
	caller ContractCaller
}

func NewUniswapV2Client(caller ContractCaller) *UniswapV2Client {
	return &UniswapV2Client{caller: caller}
}

func (c *UniswapV2Client) Protocol() entities.Protocol {
	return entities.ProtocolUniswapV2
}

// ReadPool fetches the pair's reserves. The venue must list its tokens in
// the pair's own token0/token1 order.
func (c *UniswapV2Client) ReadPool(ctx context.Context, venue entities.Venue) (*entities.Pool, error) {
	token0, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &venue.Address, Data: token0Selector})
	if err != nil {
		return nil, fmt.Errorf("failed to get token0: %w", err)
	}
	if len(token0) < 32 {
		return nil, fmt.Errorf("invalid token0 response length")
	}
	if common.BytesToAddress(token0[12:32]) != venue.Token0.Address {
		return nil, fmt.Errorf("venue %s: token0 is %s on chain", venue.Label(), common.BytesToAddress(token0[12:32]).Hex())
	}

	reserves, err := c.getReserves(ctx, venue.Address)
	if err != nil {
		return nil, err
	}

	return &entities.Pool{
		Venue:     venue,
		Reserve0:  reserves[0],
		Reserve1:  reserves[1],
		UpdatedAt: time.Now().Unix(),
	}, nil
}

// getReserves fetches reserves from a pair
func (c *UniswapV2Client) getReserves(ctx context.Context, pairAddress common.Address) ([2]*big.Int, error) {
	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &pairAddress,
		Data: getReservesSelector,
	})
	if err != nil {
		return [2]*big.Int{}, fmt.Errorf("failed to get reserves: %w", err)
	}

	if len(result) < 64 {
		return [2]*big.Int{}, fmt.Errorf("invalid reserves response length")
	}

	reserve0 := new(big.Int).SetBytes(result[0:32])
	reserve1 := new(big.Int).SetBytes(result[32:64])

	return [2]*big.Int{reserve0, reserve1}, nil
}

// Preview asks the router for getAmountsOut along the single-hop path
func (c *UniswapV2Client) Preview(ctx context.Context, pool *entities.Pool, dir entities.Direction, amountIn *big.Int) (*big.Int, error) {
	router := pool.Venue.Router
	if router == (common.Address{}) {
		return nil, entities.ErrPreviewUnsupported
	}

	path := []common.Address{pool.TokenIn(dir).Address, pool.TokenOut(dir).Address}
	data, err := uniswapV2RouterABIParsed.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}

	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &router, Data: data})
	if err != nil {
		return nil, fmt.Errorf("getAmountsOut call failed: %w", err)
	}

	out, err := uniswapV2RouterABIParsed.Unpack("getAmountsOut", result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode getAmountsOut: %w", err)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) != 2 {
		return nil, fmt.Errorf("unexpected getAmountsOut result")
	}
	return amounts[1], nil
}

func (c *UniswapV2Client) BuildSwap(step *entities.SwapStep, amountIn, minAmountOut *big.Int, recipient common.Address) (Call, error) {
	router := step.Venue().Router
	if router == (common.Address{}) {
		return Call{}, fmt.Errorf("%w: venue %s has no router", entities.ErrUnsupportedVenue, step.Venue().Label())
	}

	path := []common.Address{step.TokenIn().Address, step.TokenOut().Address}
	data, err := uniswapV2RouterABIParsed.Pack("swapExactTokensForTokens", amountIn, minAmountOut, path, recipient, deadlineUnix(step))
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
