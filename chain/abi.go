package chain

import (
	"bytes"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const loanABIJSON = `[
	{"type":"function","name":"getDebts","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"tuple[]","components":[{"name":"name","type":"bytes32"},{"name":"debt","type":"uint256"}]}]},
	{"type":"function","name":"getAllAssetsBalances","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"tuple[]","components":[{"name":"name","type":"bytes32"},{"name":"balance","type":"uint256"}]}]},
	{"type":"function","name":"getAllOwnedAssets","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"bytes32[]"}]},
	{"type":"function","name":"getStakedPositions","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"tuple[]","components":[{"name":"asset","type":"address"},{"name":"symbol","type":"bytes32"},{"name":"identifier","type":"bytes32"},{"name":"balanceSelector","type":"bytes4"},{"name":"unstakeSelector","type":"bytes4"}]}]},
	{"type":"function","name":"getHealthRatio","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getMaxLiquidationBonus","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

const tokenManagerABIJSON = `[
	{"type":"function","name":"getAllPoolAssets","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"bytes32[]"}]},
	{"type":"function","name":"getAssetAddress","stateMutability":"view",
	 "inputs":[{"name":"_asset","type":"bytes32"},{"name":"allowInactive","type":"bool"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"debtCoverage","stateMutability":"view",
	 "inputs":[{"name":"","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

const factoryABIJSON = `[
	{"type":"function","name":"getAllLoans","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address[]"}]}
]`

const flashLoanABIJSON = `[
	{"type":"function","name":"executeFlashloan","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"assets","type":"address[]"},
		{"name":"amounts","type":"uint256[]"},
		{"name":"interestRateModes","type":"uint256[]"},
		{"name":"params","type":"bytes"},
		{"name":"bonus","type":"uint256"},
		{"name":"liquidator","type":"address"},
		{"name":"loanAddress","type":"address"},
		{"name":"tokenManager","type":"address"}],
	 "outputs":[]}
]`

const erc20ABIJSON = `[
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	loanABI         = mustParseABI(loanABIJSON)
	tokenManagerABI = mustParseABI(tokenManagerABIJSON)
	factoryABI      = mustParseABI(factoryABIJSON)
	flashLoanABI    = mustParseABI(flashLoanABIJSON)
	erc20ABI        = mustParseABI(erc20ABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

type (
	nameAmount struct {
		Name [32]byte
		Debt *big.Int
	}

	nameBalance struct {
		Name    [32]byte
		Balance *big.Int
	}

	stakedPosition struct {
		Asset           common.Address
		Symbol          [32]byte
		Identifier      [32]byte
		BalanceSelector [4]byte
		UnstakeSelector [4]byte
	}
)

// ToBytes32 encodes a symbol the way the protocol names assets.
func ToBytes32(symbol string) [32]byte {
	var out [32]byte
	copy(out[:], symbol)
	return out
}

func FromBytes32(b [32]byte) string {
	return string(bytes.TrimRight(b[:], "\x00"))
}
