package entities

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals uint8          `json:"decimals"`
}

// ToUnits converts a human-readable amount into the token's base units,
// truncating any precision the token cannot represent.
func (t Token) ToUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(int32(t.Decimals)).Truncate(0).BigInt()
}

// FromUnits converts base units into a human-readable amount.
func (t Token) FromUnits(units *big.Int) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -int32(t.Decimals))
}

func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}

// SDAI is Savings xDAI on Gnosis Chain
var SDAI = Token{
	Address:  common.HexToAddress("0xaf204776c7245bF4147c2612BF6e5972Ee483701"),
	Symbol:   "sDAI",
	Name:     "Savings xDAI",
	Decimals: 18,
}

// GNO is the Gnosis token on Gnosis Chain
var GNO = Token{
	Address:  common.HexToAddress("0x9C58BAcC331c9aa871AFD802DB6379a98e80CEdb"),
	Symbol:   "GNO",
	Name:     "Gnosis",
	Decimals: 18,
}

// WAGNO is the Aave static (ERC4626) wrapper around aGNO
var WAGNO = Token{
	Address:  common.HexToAddress("0x7c16f0185a26db0ae7a9377f23bc18ea7ce5d644"),
	Symbol:   "waGNO",
	Name:     "Wrapped Aave Gnosis GNO",
	Decimals: 18,
}

var (
	SDAIYes = Token{
		Address:  common.HexToAddress("0x493A0D1c776f8797297Aa8B34594fBd0A7F8968a"),
		Symbol:   "YES_sDAI",
		Name:     "sDAI YES position",
		Decimals: 18,
	}
	SDAINo = Token{
		Address:  common.HexToAddress("0xE1133Ef862f3441880adADC2096AB67c63f6E102"),
		Symbol:   "NO_sDAI",
		Name:     "sDAI NO position",
		Decimals: 18,
	}
	GNOYes = Token{
		Address:  common.HexToAddress("0x177304d505eCA60E1aE0dAF1bba4A4c4181dB8Ad"),
		Symbol:   "YES_GNO",
		Name:     "GNO YES position",
		Decimals: 18,
	}
	GNONo = Token{
		Address:  common.HexToAddress("0xf1B3E5Ffc0219A4F8C0ac69EC98C97709EdfB6c9"),
		Symbol:   "NO_GNO",
		Name:     "GNO NO position",
		Decimals: 18,
	}
)
