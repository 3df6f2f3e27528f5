package services

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/dex"
)

func units(token entities.Token, amount string) *big.Int {
	return token.ToUnits(decimal.RequireFromString(amount))
}

var (
	vaultVenue = entities.Venue{
		Name:     "waGNO vault",
		Kind:     entities.WrapVault,
		Protocol: entities.ProtocolERC4626,
		Address:  entities.WAGNO.Address,
		Token0:   entities.GNO,
		Token1:   entities.WAGNO,
	}
	weightedVenue = entities.Venue{
		Name:     "balancer",
		Kind:     entities.WeightedPool,
		Protocol: entities.ProtocolBalancer,
		Address:  common.HexToAddress("0xd1d7fa8871d84d0e77020fc28b7cd5718c446522"),
		Token0:   entities.WAGNO,
		Token1:   entities.SDAI,
		FeeBps:   25,
		Weight0:  5000,
		Weight1:  5000,
		Router:   common.HexToAddress("0xBA12222222228d8Ba445958a75a0704d566BF2C8"),
	}
	yesCollateralVenue = entities.Venue{
		Name:     "sDAI/YES_sDAI",
		Kind:     entities.ConstantProduct,
		Protocol: entities.ProtocolUniswapV2,
		Address:  common.HexToAddress("0x1001"),
		Token0:   entities.SDAI,
		Token1:   entities.SDAIYes,
		FeeBps:   30,
		Router:   common.HexToAddress("0x2002"),
	}
	yesVenue = entities.Venue{
		Name:     "YES pool",
		Kind:     entities.ConstantProduct,
		Protocol: entities.ProtocolUniswapV3,
		Address:  common.HexToAddress("0x9a14d28909f42823ee29847f87a15fb3b6e8aed3"),
		Token0:   entities.GNOYes,
		Token1:   entities.SDAIYes,
		FeeBps:   100,
		Router:   common.HexToAddress("0x592abc3734cd0d458e6e44a2db2992a3d00283a4"),
	}
)

func testVenues() []entities.Venue {
	return []entities.Venue{vaultVenue, weightedVenue, yesCollateralVenue, yesVenue}
}

func testPools() map[common.Address]*entities.Pool {
	return map[common.Address]*entities.Pool{
		vaultVenue.Address: {
			Venue:             vaultVenue,
			Rate:              units(entities.GNO, "1.1"),
			RateAuthoritative: true,
		},
		weightedVenue.Address: {
			Venue:    weightedVenue,
			Reserve0: units(entities.WAGNO, "100"),
			Reserve1: units(entities.SDAI, "12000"),
		},
		yesCollateralVenue.Address: {
			Venue:    yesCollateralVenue,
			Reserve0: units(entities.SDAI, "1000"),
			Reserve1: units(entities.SDAIYes, "1600"),
		},
		yesVenue.Address: {
			Venue:    yesVenue,
			Reserve0: units(entities.GNOYes, "50"),
			Reserve1: units(entities.SDAIYes, "6500"),
		},
	}
}

// fakeVenues serves pools from memory. Previews return the curve output
// minus haircut wei; vault wraps cannot be previewed.
type fakeVenues struct {
	mu         sync.Mutex
	pools      map[common.Address]*entities.Pool
	readErr    map[common.Address]error
	previewErr error
	haircut    int64
	reads      int
	previews   int
}

func newFakeVenues() *fakeVenues {
	return &fakeVenues{pools: testPools(), readErr: map[common.Address]error{}, haircut: 1}
}

func (f *fakeVenues) ReadPool(ctx context.Context, venue entities.Venue) (*entities.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if err := f.readErr[venue.Address]; err != nil {
		return nil, err
	}
	pool, ok := f.pools[venue.Address]
	if !ok {
		return nil, errors.New("no such pool")
	}
	cp := *pool
	cp.BlockNumber = 100
	return &cp, nil
}

func (f *fakeVenues) Preview(ctx context.Context, pool *entities.Pool, dir entities.Direction, amountIn *big.Int) (*big.Int, error) {
	f.mu.Lock()
	f.previews++
	err := f.previewErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if pool.Kind() == entities.WrapVault && dir == entities.Wrap {
		return nil, entities.ErrPreviewUnsupported
	}
	curve, err := pool.Curve(dir)
	if err != nil {
		return nil, err
	}
	out := entities.FloorRat(curve.AmountOut(amountIn))
	return out.Sub(out, big.NewInt(f.haircut)), nil
}

func (f *fakeVenues) BuildSwap(step *entities.SwapStep, amountIn, minAmountOut *big.Int, recipient common.Address) (dex.Call, error) {
	spender := step.Venue().Spender()
	return dex.Call{
		To:   spender,
		Data: append([]byte{0xaa, byte(step.Direction)}, amountIn.Bytes()...),
		Allowances: []dex.Allowance{
			{Token: step.TokenIn().Address, Spender: spender, Amount: amountIn},
		},
	}, nil
}

type fakeBlocks struct{ n uint64 }

func (b fakeBlocks) BlockNumber(ctx context.Context) (uint64, error) { return b.n, nil }

type fakeSigner struct{ addr common.Address }

func (s fakeSigner) Address() common.Address { return s.addr }
func (s fakeSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return tx, nil
}

var testAccount = fakeSigner{addr: common.HexToAddress("0xbeef")}

var approveSelector = common.Hex2Bytes("095ea7b3")

func isApproval(data []byte) bool {
	return bytes.HasPrefix(data, approveSelector)
}

type allowanceKey struct {
	token, spender common.Address
}

// fakeChain records submissions. Swap-level failures are keyed by the index
// of the swap (approvals excluded).
type fakeChain struct {
	mu sync.Mutex

	chainID     int64
	nonce       uint64
	allowances  map[allowanceKey]*big.Int
	balances    map[common.Address]*big.Int
	estimateErr map[int]error
	submitErr   map[int]error
	revertSwap  map[int]bool
	revertApprv bool
	// afterSubmit runs with the lock held after every recorded submission.
	afterSubmit func(c *fakeChain, req entities.TxRequest)

	submitted  []entities.TxRequest
	estimates  int
	swapSubmit int
	receipts   map[common.Hash]*entities.Receipt
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		chainID:     100,
		nonce:       7,
		allowances:  map[allowanceKey]*big.Int{},
		balances:    map[common.Address]*big.Int{},
		estimateErr: map[int]error{},
		submitErr:   map[int]error{},
		revertSwap:  map[int]bool{},
		receipts:    map[common.Hash]*entities.Receipt{},
	}
}

func (c *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(c.chainID), nil
}

func (c *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.nonce, nil
}

func (c *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}

func (c *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isApproval(msg.Data) {
		return 50000, nil
	}
	idx := c.estimates
	c.estimates++
	if err := c.estimateErr[idx]; err != nil {
		return 0, err
	}
	return 100000, nil
}

func (c *fakeChain) Submit(ctx context.Context, req entities.TxRequest, signer entities.TxSigner) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted = append(c.submitted, req)
	hash := common.BigToHash(big.NewInt(int64(len(c.submitted))))

	status := entities.ReceiptStatusSuccessful
	if isApproval(req.Data) {
		if c.revertApprv {
			status = types.ReceiptStatusFailed
		}
	} else {
		idx := c.swapSubmit
		c.swapSubmit++
		if err := c.submitErr[idx]; err != nil {
			if errors.Is(err, entities.ErrTransactionStatusUnknown) {
				return hash, err
			}
			return common.Hash{}, err
		}
		if c.revertSwap[idx] {
			status = types.ReceiptStatusFailed
		}
	}
	c.receipts[hash] = &entities.Receipt{TxHash: hash, Status: status, GasUsed: 42000, BlockNumber: 101}
	if c.afterSubmit != nil {
		c.afterSubmit(c, req)
	}
	return hash, nil
}

func (c *fakeChain) WaitForReceipt(ctx context.Context, hash common.Hash) (*entities.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, entities.ErrTransactionStatusUnknown
	}
	return r, nil
}

func (c *fakeChain) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.allowances[allowanceKey{token, spender}]; ok {
		return a, nil
	}
	return new(big.Int), nil
}

func (c *fakeChain) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.balances[token]; ok {
		return b, nil
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil), nil
}

func (c *fakeChain) approvals() []entities.TxRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []entities.TxRequest
	for _, r := range c.submitted {
		if isApproval(r.Data) {
			out = append(out, r)
		}
	}
	return out
}

func (c *fakeChain) swaps() []entities.TxRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []entities.TxRequest
	for _, r := range c.submitted {
		if !isApproval(r.Data) {
			out = append(out, r)
		}
	}
	return out
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
