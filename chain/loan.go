package chain

import (
	"context"
	"math/big"

	core "github.com/DomeLiquid/liquidator"
	"github.com/DomeLiquid/liquidator/utils"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Loans reads loan state through the loan's view facets.
type Loans struct {
	backend Backend
	tokens  core.TokenManager
	// views are evaluated as the liquidator
	from common.Address
}

var _ core.LoanReader = (*Loans)(nil)

func NewLoans(backend Backend, tokens core.TokenManager, from common.Address) *Loans {
	return &Loans{backend: backend, tokens: tokens, from: from}
}

func (l *Loans) Debts(ctx context.Context, loan common.Address) (core.AssetAmounts, error) {
	out, err := call(ctx, l.backend, l.from, loan, loanABI, "getDebts", nil)
	if err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new([]nameAmount)).(*[]nameAmount)

	amounts := make(core.AssetAmounts, 0, len(raw))
	for _, r := range raw {
		amount, err := l.toAmount(ctx, FromBytes32(r.Name), r.Debt)
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, amount)
	}
	return amounts, nil
}

func (l *Loans) Balances(ctx context.Context, loan common.Address) (core.AssetAmounts, error) {
	out, err := call(ctx, l.backend, l.from, loan, loanABI, "getAllAssetsBalances", nil)
	if err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new([]nameBalance)).(*[]nameBalance)

	amounts := make(core.AssetAmounts, 0, len(raw))
	for _, r := range raw {
		amount, err := l.toAmount(ctx, FromBytes32(r.Name), r.Balance)
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, amount)
	}
	return amounts, nil
}

func (l *Loans) OwnedAssets(ctx context.Context, loan common.Address) ([]string, error) {
	out, err := call(ctx, l.backend, l.from, loan, loanABI, "getAllOwnedAssets", nil)
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

func (l *Loans) StakedPositions(ctx context.Context, loan common.Address) ([]core.StakedPosition, error) {
	out, err := call(ctx, l.backend, l.from, loan, loanABI, "getStakedPositions", nil)
	if err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new([]stakedPosition)).(*[]stakedPosition)

	positions := make([]core.StakedPosition, len(raw))
	for i, r := range raw {
		positions[i] = core.StakedPosition{
			Asset:           r.Asset,
			Symbol:          FromBytes32(r.Symbol),
			Identifier:      FromBytes32(r.Identifier),
			BalanceSelector: r.BalanceSelector,
			UnstakeSelector: r.UnstakeSelector,
		}
	}
	return positions, nil
}

func (l *Loans) HealthRatio(ctx context.Context, loan common.Address, oraclePayload []byte) (decimal.Decimal, error) {
	out, err := call(ctx, l.backend, l.from, loan, loanABI, "getHealthRatio", oraclePayload)
	if err != nil {
		return decimal.Zero, err
	}
	ratio := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return utils.FromWei(ratio, core.HEALTH_RATIO_DECIMALS), nil
}

// MaxLiquidationBonus is returned by the loan in per-mille.
func (l *Loans) MaxLiquidationBonus(ctx context.Context, loan common.Address) (decimal.Decimal, error) {
	out, err := call(ctx, l.backend, l.from, loan, loanABI, "getMaxLiquidationBonus", nil)
	if err != nil {
		return decimal.Zero, err
	}
	perMille := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return core.BonusFromPerMille(perMille.Int64()), nil
}

func (l *Loans) toAmount(ctx context.Context, symbol string, raw *big.Int) (core.AssetAmount, error) {
	asset, err := l.tokens.GetAsset(ctx, symbol)
	if err != nil {
		return core.AssetAmount{}, err
	}
	return core.AssetAmount{Symbol: symbol, Amount: utils.FromWei(raw, asset.Decimals)}, nil
}

// Factory enumerates every loan created by the protocol.
type Factory struct {
	backend Backend
	address common.Address
}

var _ core.LoanRegistry = (*Factory)(nil)

func NewFactory(backend Backend, address common.Address) *Factory {
	return &Factory{backend: backend, address: address}
}

func (f *Factory) AllLoans(ctx context.Context) ([]common.Address, error) {
	out, err := call(ctx, f.backend, common.Address{}, f.address, factoryABI, "getAllLoans", nil)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}
