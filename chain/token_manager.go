package chain

import (
	"context"
	"math/big"
	"sync"

	core "github.com/DomeLiquid/liquidator"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// TokenManager resolves protocol assets. Asset metadata is immutable for the
// life of the process and is cached after the first read.
type TokenManager struct {
	backend Backend
	address common.Address

	mu     sync.RWMutex
	assets map[string]*core.Asset
}

var _ core.TokenManager = (*TokenManager)(nil)

func NewTokenManager(backend Backend, address common.Address) *TokenManager {
	return &TokenManager{
		backend: backend,
		address: address,
		assets:  map[string]*core.Asset{},
	}
}

func (tm *TokenManager) Address() common.Address {
	return tm.address
}

func (tm *TokenManager) PoolAssets(ctx context.Context) ([]string, error) {
	out, err := call(ctx, tm.backend, common.Address{}, tm.address, tokenManagerABI, "getAllPoolAssets", nil)
	if err != nil {
		return nil, err
	}
	names := *abi.ConvertType(out[0], new([][32]byte)).(*[][32]byte)
	symbols := make([]string, len(names))
	for i, n := range names {
		symbols[i] = FromBytes32(n)
	}
	return symbols, nil
}

func (tm *TokenManager) GetAsset(ctx context.Context, symbol string) (*core.Asset, error) {
	tm.mu.RLock()
	asset, ok := tm.assets[symbol]
	tm.mu.RUnlock()
	if ok {
		return asset, nil
	}

	out, err := call(ctx, tm.backend, common.Address{}, tm.address, tokenManagerABI, "getAssetAddress", nil, ToBytes32(symbol), true)
	if err != nil {
		return nil, err
	}
	address := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if address == (common.Address{}) {
		return nil, errors.Wrapf(core.ErrNotFound, "asset %s", symbol)
	}

	out, err = call(ctx, tm.backend, common.Address{}, tm.address, tokenManagerABI, "debtCoverage", nil, address)
	if err != nil {
		return nil, err
	}
	coverage := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)

	out, err = call(ctx, tm.backend, common.Address{}, address, erc20ABI, "decimals", nil)
	if err != nil {
		return nil, err
	}
	decimals := *abi.ConvertType(out[0], new(uint8)).(*uint8)

	asset = &core.Asset{
		Symbol:       symbol,
		Address:      address,
		Decimals:     int32(decimals),
		DebtCoverage: decimal.NewFromBigInt(coverage, -core.HEALTH_RATIO_DECIMALS),
	}
	tm.mu.Lock()
	tm.assets[symbol] = asset
	tm.mu.Unlock()
	return asset, nil
}
