package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

// ERC4626 selectors
var (
	// convertToAssets(uint256 shares) returns (uint256)
	convertToAssetsSelector = common.Hex2Bytes("07a2d13a")
	// previewRedeem(uint256 shares) returns (uint256)
	previewRedeemSelector = common.Hex2Bytes("4cdad506")
	// deposit(uint256 assets, address receiver) returns (uint256 shares)
	depositSelector = common.Hex2Bytes("6e553f65")
	// redeem(uint256 shares, address receiver, address owner) returns (uint256 assets)
	redeemSelector = common.Hex2Bytes("ba087652")
)

// VaultClient wraps and unwraps through an ERC4626 vault. Token0 of the venue
// is the underlying asset, Token1 the share token (the vault itself).
type VaultClient struct {
	caller ContractCaller
	logger *zap.Logger
}

func NewVaultClient(caller ContractCaller, logger *zap.Logger) *VaultClient {
	return &VaultClient{caller: caller, logger: logger}
}

func (c *VaultClient) Protocol() entities.Protocol {
	return entities.ProtocolERC4626
}

// ReadPool reads convertToAssets(1e18). If the vault rejects the call the
// snapshot carries an assumed 1:1 rate flagged as not authoritative; RPC
// outages are returned as errors.
func (c *VaultClient) ReadPool(ctx context.Context, venue entities.Venue) (*entities.Pool, error) {
	pool := &entities.Pool{
		Venue:     venue,
		UpdatedAt: time.Now().Unix(),
	}

	result, err := c.call(ctx, venue.Address, convertToAssetsSelector, entities.RateScale)
	switch {
	case err == nil && result.Sign() > 0:
		pool.Rate = result
		pool.RateAuthoritative = true
	case err != nil && errors.Is(err, entities.ErrRPCUnavailable):
		return nil, fmt.Errorf("failed to read vault rate: %w", err)
	default:
		c.logger.Warn("vault rate unavailable, assuming 1:1",
			zap.String("venue", venue.Label()),
			zap.Error(err),
		)
		pool.Rate = new(big.Int).Set(entities.RateScale)
	}
	return pool, nil
}

// Preview supports unwraps through previewRedeem. Wraps have no preview
// path here and return ErrPreviewUnsupported.
func (c *VaultClient) Preview(ctx context.Context, pool *entities.Pool, dir entities.Direction, amountIn *big.Int) (*big.Int, error) {
	if dir == entities.Wrap {
		return nil, entities.ErrPreviewUnsupported
	}
	out, err := c.call(ctx, pool.Venue.Address, previewRedeemSelector, amountIn)
	if err != nil {
		return nil, fmt.Errorf("previewRedeem call failed: %w", err)
	}
	return out, nil
}

func (c *VaultClient) BuildSwap(step *entities.SwapStep, amountIn, minAmountOut *big.Int, recipient common.Address) (Call, error) {
	vault := step.Venue().Address
	if step.Direction == entities.Wrap {
		return Call{
			To:   vault,
			Data: encodeUint(depositSelector, amountIn, addressWord(recipient)),
			Allowances: []Allowance{
				{Token: step.TokenIn().Address, Spender: vault, Amount: amountIn},
			},
		}, nil
	}
	// the owner burns its own shares, no allowance needed
	return Call{
		To:   vault,
		Data: encodeUint(redeemSelector, amountIn, addressWord(recipient), addressWord(recipient)),
	}, nil
}

func (c *VaultClient) call(ctx context.Context, to common.Address, selector []byte, arg *big.Int) (*big.Int, error) {
	data := encodeUint(selector, arg)
	result, err := c.caller.CallContract(ctx, callMsg(to, data))
	if err != nil {
		return nil, err
	}
	if len(result) < 32 {
		return nil, fmt.Errorf("invalid response length: %d", len(result))
	}
	return new(big.Int).SetBytes(result[0:32]), nil
}
