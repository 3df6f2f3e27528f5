package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

var (
	// allowance(address owner, address spender) returns (uint256)
	allowanceSelector = common.Hex2Bytes("dd62ed3e")
	// balanceOf(address) returns (uint256)
	balanceOfSelector = common.Hex2Bytes("70a08231")
	// approve(address spender, uint256 amount) returns (bool)
	approveSelector = common.Hex2Bytes("095ea7b3")
	// symbol() returns (string)
	symbolSelector = common.Hex2Bytes("95d89b41")
	// decimals() returns (uint8)
	decimalsSelector = common.Hex2Bytes("313ce567")
)

// MaxUint256 is used for unlimited approvals
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ERC20Client reads balances, allowances and metadata of ERC20 tokens
type ERC20Client struct {
	caller ContractCaller
}

func NewERC20Client(caller ContractCaller) *ERC20Client {
	return &ERC20Client{caller: caller}
}

func (c *ERC20Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	result, err := c.caller.CallContract(ctx, callMsg(token, encodeUint(allowanceSelector, addressWord(owner), addressWord(spender))))
	if err != nil {
		return nil, fmt.Errorf("failed to get allowance: %w", err)
	}
	if len(result) < 32 {
		return nil, fmt.Errorf("invalid allowance response length")
	}
	return new(big.Int).SetBytes(result[0:32]), nil
}

func (c *ERC20Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	result, err := c.caller.CallContract(ctx, callMsg(token, encodeUint(balanceOfSelector, addressWord(owner))))
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	if len(result) < 32 {
		return nil, fmt.Errorf("invalid balance response length")
	}
	return new(big.Int).SetBytes(result[0:32]), nil
}

// TokenMetadata reads symbol and decimals
func (c *ERC20Client) TokenMetadata(ctx context.Context, addr common.Address) (entities.Token, error) {
	decimals, err := readWord(ctx, c.caller, addr, decimalsSelector)
	if err != nil {
		return entities.Token{}, fmt.Errorf("failed to get decimals: %w", err)
	}
	if !decimals.IsUint64() || decimals.Uint64() > 77 {
		return entities.Token{}, fmt.Errorf("invalid decimals %s", decimals)
	}

	result, err := c.caller.CallContract(ctx, callMsg(addr, symbolSelector))
	if err != nil {
		return entities.Token{}, fmt.Errorf("failed to get symbol: %w", err)
	}

	return entities.Token{
		Address:  addr,
		Symbol:   decodeSymbol(result),
		Decimals: uint8(decimals.Uint64()),
	}, nil
}

// decodeSymbol accepts both ABI strings and legacy bytes32 symbols
func decodeSymbol(result []byte) string {
	if len(result) == 32 {
		return string(bytes.TrimRight(result, "\x00"))
	}
	if len(result) < 64 {
		return ""
	}
	offset := new(big.Int).SetBytes(result[0:32]).Uint64()
	if offset+32 > uint64(len(result)) {
		return ""
	}
	length := new(big.Int).SetBytes(result[offset : offset+32]).Uint64()
	if offset+32+length > uint64(len(result)) {
		return ""
	}
	return string(result[offset+32 : offset+32+length])
}

// ApproveCall builds approve(spender, amount) on token
func ApproveCall(token, spender common.Address, amount *big.Int) Call {
	return Call{
		To:   token,
		Data: encodeUint(approveSelector, addressWord(spender), amount),
	}
}

// BalanceOfMsg builds the balanceOf(owner) call on token, for batching
func BalanceOfMsg(token, owner common.Address) ethereum.CallMsg {
	return callMsg(token, encodeUint(balanceOfSelector, addressWord(owner)))
}

// DecodeUint reads the first word of a call result
func DecodeUint(result []byte) (*big.Int, error) {
	if len(result) < 32 {
		return nil, fmt.Errorf("invalid response length: %d", len(result))
	}
	return new(big.Int).SetBytes(result[0:32]), nil
}
