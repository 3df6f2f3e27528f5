package dex

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const uniswapV2RouterABI = `[
	{"name":"getAmountsOut","type":"function","stateMutability":"view",
	 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"name":"swapExactTokensForTokens","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

const uniswapV3RouterABI = `[
	{"name":"exactInputSingle","type":"function","stateMutability":"payable",
	 "inputs":[{"name":"params","type":"tuple","components":[
		{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},
		{"name":"recipient","type":"address"},{"name":"deadline","type":"uint256"},{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMinimum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
	 "outputs":[{"name":"amountOut","type":"uint256"}]}
]`

const balancerVaultABI = `[
	{"name":"swap","type":"function","stateMutability":"payable",
	 "inputs":[
		{"name":"singleSwap","type":"tuple","components":[
			{"name":"poolId","type":"bytes32"},{"name":"kind","type":"uint8"},{"name":"assetIn","type":"address"},
			{"name":"assetOut","type":"address"},{"name":"amount","type":"uint256"},{"name":"userData","type":"bytes"}]},
		{"name":"funds","type":"tuple","components":[
			{"name":"sender","type":"address"},{"name":"fromInternalBalance","type":"bool"},
			{"name":"recipient","type":"address"},{"name":"toInternalBalance","type":"bool"}]},
		{"name":"limit","type":"uint256"},{"name":"deadline","type":"uint256"}],
	 "outputs":[{"name":"amountCalculated","type":"uint256"}]},
	{"name":"queryBatchSwap","type":"function","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"kind","type":"uint8"},
		{"name":"swaps","type":"tuple[]","components":[
			{"name":"poolId","type":"bytes32"},{"name":"assetInIndex","type":"uint256"},{"name":"assetOutIndex","type":"uint256"},
			{"name":"amount","type":"uint256"},{"name":"userData","type":"bytes"}]},
		{"name":"assets","type":"address[]"},
		{"name":"funds","type":"tuple","components":[
			{"name":"sender","type":"address"},{"name":"fromInternalBalance","type":"bool"},
			{"name":"recipient","type":"address"},{"name":"toInternalBalance","type":"bool"}]}],
	 "outputs":[{"name":"assetDeltas","type":"int256[]"}]}
]`

const futarchyRouterABI = `[
	{"name":"splitPosition","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"proposal","type":"address"},{"name":"collateralToken","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[]},
	{"name":"mergePositions","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"proposal","type":"address"},{"name":"collateralToken","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[]}
]`

var (
	uniswapV2RouterABIParsed = mustParseABI(uniswapV2RouterABI)
	uniswapV3RouterABIParsed = mustParseABI(uniswapV3RouterABI)
	balancerVaultABIParsed   = mustParseABI(balancerVaultABI)
	futarchyRouterABIParsed  = mustParseABI(futarchyRouterABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// exactInputSingleParams mirrors ISwapRouter.ExactInputSingleParams
type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

type balancerSingleSwap struct {
	PoolId   [32]byte
	Kind     uint8
	AssetIn  common.Address
	AssetOut common.Address
	Amount   *big.Int
	UserData []byte
}

type balancerBatchSwapStep struct {
	PoolId        [32]byte
	AssetInIndex  *big.Int
	AssetOutIndex *big.Int
	Amount        *big.Int
	UserData      []byte
}

type balancerFundManagement struct {
	Sender              common.Address
	FromInternalBalance bool
	Recipient           common.Address
	ToInternalBalance   bool
}
