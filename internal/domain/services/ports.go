package services

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/dex"
)

// PoolReader reads fresh venue snapshots
type PoolReader interface {
	ReadPool(ctx context.Context, venue entities.Venue) (*entities.Pool, error)
}

// Previewer asks a venue for the output of a trade without changing state
type Previewer interface {
	Preview(ctx context.Context, pool *entities.Pool, dir entities.Direction, amountIn *big.Int) (*big.Int, error)
}

// SwapBuilder encodes the state-changing call for a step
type SwapBuilder interface {
	BuildSwap(step *entities.SwapStep, amountIn, minAmountOut *big.Int, recipient common.Address) (dex.Call, error)
}

type BlockReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// ChainWriter is the chain-write capability used by the orchestrator
type ChainWriter interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	Submit(ctx context.Context, req entities.TxRequest, signer entities.TxSigner) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*entities.Receipt, error)
}

type TokenReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// RecordSaver persists finished execution records
type RecordSaver interface {
	SaveRecord(ctx context.Context, record *entities.ExecutionRecord) error
}
