package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

// ContractCaller is the read-only chain capability venue clients need
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// Allowance is an ERC20 allowance a call consumes
type Allowance struct {
	Token   common.Address
	Spender common.Address
	Amount  *big.Int
}

// Call is an unsigned contract invocation
type Call struct {
	To         common.Address
	Data       []byte
	Value      *big.Int
	Allowances []Allowance
}

// VenueClient reads and trades one protocol family
type VenueClient interface {
	Protocol() entities.Protocol

	// ReadPool returns a fresh snapshot of the venue
	ReadPool(ctx context.Context, venue entities.Venue) (*entities.Pool, error)

	// Preview asks the venue contract for the output of a trade without
	// changing state. Returns entities.ErrPreviewUnsupported when the venue
	// has no read-only entry point for the operation.
	Preview(ctx context.Context, pool *entities.Pool, dir entities.Direction, amountIn *big.Int) (*big.Int, error)

	BuildSwap(step *entities.SwapStep, amountIn, minAmountOut *big.Int, recipient common.Address) (Call, error)
}

// Venues is the protocol-agnostic view used by the domain services
type Venues interface {
	ReadPool(ctx context.Context, venue entities.Venue) (*entities.Pool, error)
	Preview(ctx context.Context, pool *entities.Pool, dir entities.Direction, amountIn *big.Int) (*big.Int, error)
	BuildSwap(step *entities.SwapStep, amountIn, minAmountOut *big.Int, recipient common.Address) (Call, error)
}

// Registry dispatches to the client registered for a venue's protocol
type Registry struct {
	clients map[entities.Protocol]VenueClient
}

func NewRegistry(clients ...VenueClient) *Registry {
	r := &Registry{clients: make(map[entities.Protocol]VenueClient, len(clients))}
	for _, c := range clients {
		r.clients[c.Protocol()] = c
	}
	return r
}

func (r *Registry) client(venue entities.Venue) (VenueClient, error) {
	c, ok := r.clients[venue.Protocol]
	if !ok {
		return nil, fmt.Errorf("%w: no client for protocol %q", entities.ErrUnsupportedVenue, venue.Protocol)
	}
	return c, nil
}

func (r *Registry) ReadPool(ctx context.Context, venue entities.Venue) (*entities.Pool, error) {
	c, err := r.client(venue)
	if err != nil {
		return nil, err
	}
	return c.ReadPool(ctx, venue)
}

func (r *Registry) Preview(ctx context.Context, pool *entities.Pool, dir entities.Direction, amountIn *big.Int) (*big.Int, error) {
	c, err := r.client(pool.Venue)
	if err != nil {
		return nil, err
	}
	return c.Preview(ctx, pool, dir, amountIn)
}

func (r *Registry) BuildSwap(step *entities.SwapStep, amountIn, minAmountOut *big.Int, recipient common.Address) (Call, error) {
	c, err := r.client(step.Venue())
	if err != nil {
		return Call{}, err
	}
	return c.BuildSwap(step, amountIn, minAmountOut, recipient)
}

// readWord calls a zero-argument view returning a single 32-byte word
func readWord(ctx context.Context, caller ContractCaller, to common.Address, selector []byte) (*big.Int, error) {
	result, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: selector})
	if err != nil {
		return nil, err
	}
	if len(result) < 32 {
		return nil, fmt.Errorf("invalid response length: %d", len(result))
	}
	return new(big.Int).SetBytes(result[0:32]), nil
}

// encodeUint appends 32-byte big-endian words to a selector
func encodeUint(selector []byte, args ...*big.Int) []byte {
	data := make([]byte, 4+32*len(args))
	copy(data[0:4], selector)
	for i, a := range args {
		b := a.Bytes()
		end := 4 + 32*(i+1)
		copy(data[end-len(b):end], b)
	}
	return data
}

func addressWord(a common.Address) *big.Int {
	return new(big.Int).SetBytes(a.Bytes())
}

func deadlineUnix(step *entities.SwapStep) *big.Int {
	return big.NewInt(step.Deadline.Unix())
}

func callMsg(to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &to, Data: data}
}
