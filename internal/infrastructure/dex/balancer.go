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

// BalancerVaultAddress is the Balancer V2 vault (same address on every chain)
var BalancerVaultAddress = common.HexToAddress("0xBA12222222228d8Ba445958a75a0704d566BF2C8")

var (
	// getPoolTokens(bytes32 poolId) returns (address[] tokens, uint256[] balances, uint256 lastChangeBlock)
	getPoolTokensSelector = common.Hex2Bytes("f94d4668")
	// getNormalizedWeights() returns (uint256[])
	getNormalizedWeightsSelector = common.Hex2Bytes("f89f27ed")
	// getSwapFeePercentage() returns (uint256)
	getSwapFeePercentageSelector = common.Hex2Bytes("55c67628")
)

const balancerSwapKindGivenIn uint8 = 0

var oneE18 = big.NewInt(1e18)

// BalancerClient reads and trades Balancer V2 weighted pools through the vault
type BalancerClient struct {
	caller ContractCaller
}

func NewBalancerClient(caller ContractCaller) *BalancerClient {
	return &BalancerClient{caller: caller}
}

func (c *BalancerClient) Protocol() entities.Protocol {
	return entities.ProtocolBalancer
}

func (c *BalancerClient) vault(venue entities.Venue) common.Address {
	if venue.Router != (common.Address{}) {
		return venue.Router
	}
	return BalancerVaultAddress
}

// ReadPool fetches balances, normalized weights and the swap fee. Weights and
// fee fall back to the venue configuration when the pool does not expose them.
func (c *BalancerClient) ReadPool(ctx context.Context, venue entities.Venue) (*entities.Pool, error) {
	tokens, balances, err := c.getPoolTokens(ctx, c.vault(venue), venue.PoolID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool tokens: %w", err)
	}

	idx0, idx1 := -1, -1
	for i, token := range tokens {
		if token == venue.Token0.Address {
			idx0 = i
		}
		if token == venue.Token1.Address {
			idx1 = i
		}
	}
	if idx0 == -1 || idx1 == -1 {
		return nil, fmt.Errorf("token not found in pool %s", venue.Label())
	}

	if weights, err := c.getNormalizedWeights(ctx, venue.Address); err == nil && len(weights) == len(tokens) {
		venue.Weight0 = toBps(weights[idx0])
		venue.Weight1 = toBps(weights[idx1])
	}
	if fee, err := readWord(ctx, c.caller, venue.Address, getSwapFeePercentageSelector); err == nil {
		venue.FeeBps = toBps(fee)
	}

	return &entities.Pool{
		Venue:     venue,
		Reserve0:  balances[idx0],
		Reserve1:  balances[idx1],
		UpdatedAt: time.Now().Unix(),
	}, nil
}

// toBps converts a 1e18 fixed-point fraction to basis points
func toBps(v *big.Int) uint64 {
	bps := new(big.Int).Mul(v, big.NewInt(10000))
	return bps.Div(bps, oneE18).Uint64()
}

// Preview runs queryBatchSwap through eth_call; the vault reverts state
// changes inside the query so the call is read-only.
func (c *BalancerClient) Preview(ctx context.Context, pool *entities.Pool, dir entities.Direction, amountIn *big.Int) (*big.Int, error) {
	vault := c.vault(pool.Venue)
	swaps := []balancerBatchSwapStep{{
		PoolId:        pool.Venue.PoolID,
		AssetInIndex:  big.NewInt(0),
		AssetOutIndex: big.NewInt(1),
		Amount:        amountIn,
		UserData:      []byte{},
	}}
	assets := []common.Address{pool.TokenIn(dir).Address, pool.TokenOut(dir).Address}
	funds := balancerFundManagement{}

	data, err := balancerVaultABIParsed.Pack("queryBatchSwap", balancerSwapKindGivenIn, swaps, assets, funds)
	if err != nil {
		return nil, err
	}

	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &vault, Data: data})
	if err != nil {
		return nil, fmt.Errorf("queryBatchSwap call failed: %w", err)
	}

	out, err := balancerVaultABIParsed.Unpack("queryBatchSwap", result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode queryBatchSwap: %w", err)
	}
	deltas, ok := out[0].([]*big.Int)
	if !ok || len(deltas) != 2 {
		return nil, fmt.Errorf("unexpected queryBatchSwap result")
	}
	// vault deltas are negative for assets leaving the pool
	return new(big.Int).Neg(deltas[1]), nil
}

func (c *BalancerClient) BuildSwap(step *entities.SwapStep, amountIn, minAmountOut *big.Int, recipient common.Address) (Call, error) {
	vault := c.vault(step.Venue())
	data, err := balancerVaultABIParsed.Pack("swap",
		balancerSingleSwap{
			PoolId:   step.Venue().PoolID,
			Kind:     balancerSwapKindGivenIn,
			AssetIn:  step.TokenIn().Address,
			AssetOut: step.TokenOut().Address,
			Amount:   amountIn,
			UserData: []byte{},
		},
		balancerFundManagement{Sender: recipient, Recipient: recipient},
		minAmountOut,
		deadlineUnix(step),
	)
	if err != nil {
		return Call{}, err
	}

	return Call{
		To:   vault,
		Data: data,
		Allowances: []Allowance{
			{Token: step.TokenIn().Address, Spender: vault, Amount: amountIn},
		},
	}, nil
}

// getPoolTokens fetches token addresses and balances from the vault
func (c *BalancerClient) getPoolTokens(ctx context.Context, vault common.Address, poolID [32]byte) ([]common.Address, []*big.Int, error) {
	// Encode getPoolTokens(poolId)
	data := make([]byte, 36)
	copy(data[0:4], getPoolTokensSelector)
	copy(data[4:36], poolID[:])

	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &vault,
		Data: data,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("getPoolTokens call failed: %w", err)
	}

	// Parse result - returns (address[] tokens, uint256[] balances, uint256 lastChangeBlock)
	if len(result) < 192 {
		return nil, nil, fmt.Errorf("invalid getPoolTokens response length")
	}

	tokenWords, err := dynamicWords(result, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid tokens array: %w", err)
	}
	balances, err := dynamicWords(result, 32)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid balances array: %w", err)
	}
	if len(tokenWords) != len(balances) {
		return nil, nil, fmt.Errorf("tokens and balances differ in length")
	}

	tokens := make([]common.Address, len(tokenWords))
	for i, w := range tokenWords {
		tokens[i] = common.BigToAddress(w)
	}
	return tokens, balances, nil
}

func (c *BalancerClient) getNormalizedWeights(ctx context.Context, pool common.Address) ([]*big.Int, error) {
	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: getNormalizedWeightsSelector})
	if err != nil {
		return nil, err
	}
	return dynamicWords(result, 0)
}

// dynamicWords decodes a dynamic array of 32-byte words whose offset is
// stored at headPos
func dynamicWords(result []byte, headPos uint64) ([]*big.Int, error) {
	if headPos+32 > uint64(len(result)) {
		return nil, fmt.Errorf("head out of range")
	}
	offset := new(big.Int).SetBytes(result[headPos : headPos+32]).Uint64()
	if offset+32 > uint64(len(result)) {
		return nil, fmt.Errorf("invalid offset")
	}

	length := new(big.Int).SetBytes(result[offset : offset+32]).Uint64()
	if length > uint64(len(result))/32 {
		return nil, fmt.Errorf("invalid array length")
	}
	words := make([]*big.Int, length)
	for i := uint64(0); i < length; i++ {
		start := offset + 32 + i*32
		if start+32 > uint64(len(result)) {
			return nil, fmt.Errorf("invalid array data")
		}
		words[i] = new(big.Int).SetBytes(result[start : start+32])
	}
	return words, nil
}
