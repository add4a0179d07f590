package engine

import (
	"context"
	"math/big"
	"sync"

	core "github.com/DomeLiquid/liquidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	loanAddr       = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	usdcAddr       = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	ethAddr        = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	liquidatorAddr = common.HexToAddress("0x0000000000000000000000000000000000000001")
	tmAddr         = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeLoans struct {
	mu          sync.Mutex
	debts       core.AssetAmounts
	balances    core.AssetAmounts
	owned       []string
	health      map[common.Address]decimal.Decimal
	healthErr   map[common.Address]error
	maxBonus    decimal.Decimal
	debtReads   int
	bonusReads  int
	payloadSeen [][]byte
}

func newFakeLoans() *fakeLoans {
	return &fakeLoans{
		debts:    core.AssetAmounts{{Symbol: "USDC", Amount: d("1000")}, {Symbol: "ETH", Amount: d("0")}},
		balances: core.AssetAmounts{{Symbol: "ETH", Amount: d("0.55")}},
		owned:    []string{"ETH"},
		health:   map[common.Address]decimal.Decimal{},
		maxBonus: d("0.05"),
	}
}

func (f *fakeLoans) Debts(ctx context.Context, loan common.Address) (core.AssetAmounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debtReads++
	return f.debts.Clone(), nil
}

func (f *fakeLoans) Balances(ctx context.Context, loan common.Address) (core.AssetAmounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances.Clone(), nil
}

func (f *fakeLoans) OwnedAssets(ctx context.Context, loan common.Address) ([]string, error) {
	return f.owned, nil
}

func (f *fakeLoans) StakedPositions(ctx context.Context, loan common.Address) ([]core.StakedPosition, error) {
	return nil, nil
}

func (f *fakeLoans) HealthRatio(ctx context.Context, loan common.Address, payload []byte) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloadSeen = append(f.payloadSeen, payload)
	if err := f.healthErr[loan]; err != nil {
		return decimal.Zero, err
	}
	if h, ok := f.health[loan]; ok {
		return h, nil
	}
	return d("0.9163"), nil
}

func (f *fakeLoans) MaxLiquidationBonus(ctx context.Context, loan common.Address) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bonusReads++
	return f.maxBonus, nil
}

type fakeTokens struct{}

func (fakeTokens) PoolAssets(ctx context.Context) ([]string, error) {
	return []string{"USDC", "ETH"}, nil
}

func (fakeTokens) GetAsset(ctx context.Context, symbol string) (*core.Asset, error) {
	switch symbol {
	case "USDC":
		return &core.Asset{Symbol: "USDC", Address: usdcAddr, Decimals: 6, DebtCoverage: d("0.833")}, nil
	case "ETH":
		return &core.Asset{Symbol: "ETH", Address: ethAddr, Decimals: 18, DebtCoverage: d("0.833")}, nil
	}
	return nil, errors.Wrapf(core.ErrNotFound, "asset %s", symbol)
}

type fakeOracle struct {
	mu         sync.Mutex
	prices     map[string]decimal.Decimal
	payloadErr error
	requests   [][]string
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{prices: map[string]decimal.Decimal{"USDC": d("1"), "ETH": d("2000")}}
}

func (f *fakeOracle) Attestations(ctx context.Context, symbols []string) ([]*core.SignedPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, symbols)
	out := make([]*core.SignedPrice, 0, len(symbols))
	for _, s := range symbols {
		p, ok := f.prices[s]
		if !ok {
			return nil, errors.Errorf("no price for %s", s)
		}
		out = append(out, &core.SignedPrice{Symbol: s, Value: p})
	}
	return out, nil
}

func (f *fakeOracle) Payload(attestations []*core.SignedPrice) ([]byte, error) {
	if f.payloadErr != nil {
		return nil, f.payloadErr
	}
	return []byte{0xca, 0xfe, byte(len(attestations))}, nil
}

type fakeUnstaker struct {
	name  string
	err   error
	calls int
}

func (f *fakeUnstaker) Name() string { return f.name }

func (f *fakeUnstaker) Unstake(ctx context.Context, loan common.Address) error {
	f.calls++
	return f.err
}

type approval struct {
	token, spender common.Address
	amount         *big.Int
}

type fakeApprover struct {
	approvals []approval
	err       error
}

func (f *fakeApprover) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	if f.err != nil {
		return f.err
	}
	f.approvals = append(f.approvals, approval{token, spender, amount})
	return nil
}

type fakeFlash struct {
	calls []*core.LiquidationCall
	err   error
}

func (f *fakeFlash) Liquidate(ctx context.Context, call *core.LiquidationCall) (common.Hash, error) {
	if f.err != nil {
		return common.Hash{}, f.err
	}
	f.calls = append(f.calls, call)
	return common.BigToHash(big.NewInt(int64(len(f.calls)))), nil
}

type fakeWatcher struct {
	mu       sync.Mutex
	receipts map[common.Hash]*core.TxReceipt
	// receipt status for every hash not in receipts, nil leaves them pending
	status  *bool
	dropped bool
	// Dropped calls
	dropChecks int
}

func newFakeWatcher(success bool) *fakeWatcher {
	return &fakeWatcher{receipts: map[common.Hash]*core.TxReceipt{}, status: &success}
}

func (f *fakeWatcher) Receipt(ctx context.Context, hash common.Hash) (*core.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	if f.status == nil {
		return nil, core.ErrNotFound
	}
	return &core.TxReceipt{TxHash: hash, BlockNumber: 101, Success: *f.status}, nil
}

func (f *fakeWatcher) RevertReason(ctx context.Context, hash common.Hash) (string, error) {
	return "insufficient repayment", nil
}

func (f *fakeWatcher) Dropped(ctx context.Context, hash common.Hash) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropChecks++
	return f.dropped, nil
}

func (f *fakeWatcher) setDropped(dropped bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = dropped
}

func (f *fakeWatcher) setStatus(status *bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

type memoryAttempts struct {
	mu       sync.Mutex
	attempts map[string]*core.Attempt
	// returned by CreateAttempt while set
	createErr error
}

func newMemoryAttempts() *memoryAttempts {
	return &memoryAttempts{attempts: map[string]*core.Attempt{}}
}

func (m *memoryAttempts) CreateAttempt(ctx context.Context, a *core.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *a
	m.attempts[a.Id] = &cp
	return nil
}

func (m *memoryAttempts) setCreateErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

func (m *memoryAttempts) UpdateAttemptStatus(ctx context.Context, id string, status core.AttemptStatus, message string, updatedAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return core.ErrNotFound
	}
	a.Status, a.Message, a.UpdatedAt = status, message, updatedAt
	return nil
}

func (m *memoryAttempts) GetAttempt(ctx context.Context, id string) (*core.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memoryAttempts) ListUnresolvedAttempts(ctx context.Context, loan string) ([]*core.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*core.Attempt
	for _, a := range m.attempts {
		if a.Loan == loan && a.Status.Unresolved() {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

type notification struct {
	event, title, message string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeNotifier) Notify(ctx context.Context, event, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{event, title, message})
	return nil
}

func (f *fakeNotifier) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, n := range f.sent {
		out[i] = n.event
	}
	return out
}

type fakeRegistry struct {
	loans []common.Address
}

func (f *fakeRegistry) AllLoans(ctx context.Context) ([]common.Address, error) {
	return f.loans, nil
}
