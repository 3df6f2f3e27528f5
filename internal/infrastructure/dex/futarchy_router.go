package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FutarchyRouter splits collateral into YES/NO positions of a proposal and
// merges them back.
type FutarchyRouter struct {
	Address  common.Address
	Proposal common.Address
}

func NewFutarchyRouter(address, proposal common.Address) *FutarchyRouter {
	return &FutarchyRouter{Address: address, Proposal: proposal}
}

// SplitCall converts amount of collateral into amount of YES and amount of NO
func (r *FutarchyRouter) SplitCall(collateral common.Address, amount *big.Int) (Call, error) {
	data, err := futarchyRouterABIParsed.Pack("splitPosition", r.Proposal, collateral, amount)
	if err != nil {
		return Call{}, fmt.Errorf("failed to encode splitPosition: %w", err)
	}
	return Call{
		To:   r.Address,
		Data: data,
		Allowances: []Allowance{
			{Token: collateral, Spender: r.Address, Amount: amount},
		},
	}, nil
}

// MergeCall burns amount of YES and NO to release amount of collateral
func (r *FutarchyRouter) MergeCall(collateral, yes, no common.Address, amount *big.Int) (Call, error) {
	data, err := futarchyRouterABIParsed.Pack("mergePositions", r.Proposal, collateral, amount)
	if err != nil {
		return Call{}, fmt.Errorf("failed to encode mergePositions: %w", err)
	}
	return Call{
		To:   r.Address,
		Data: data,
		Allowances: []Allowance{
			{Token: yes, Spender: r.Address, Amount: amount},
			{Token: no, Spender: r.Address, Amount: amount},
		},
	}, nil
}
