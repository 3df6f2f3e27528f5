package entities

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ReceiptStatusSuccessful is the receipt status of a transaction that did not revert
const ReceiptStatusSuccessful = types.ReceiptStatusSuccessful

// TxRequest is an unsigned transaction descriptor
type TxRequest struct {
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Nonce    uint64
	ChainID  *big.Int
}

// TxSigner signs transactions for one account
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

type Receipt struct {
	TxHash      common.Hash
	Status      uint64
	GasUsed     uint64
	BlockNumber uint64
}

func (r *Receipt) Succeeded() bool {
	return r.Status == ReceiptStatusSuccessful
}
