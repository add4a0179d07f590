package engine

import (
	"context"
	"sync"
	"time"

	core "github.com/DomeLiquid/liquidator"
	"github.com/DomeLiquid/liquidator/chain"
	"github.com/DomeLiquid/liquidator/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	Config struct {
		Sizing core.SizingParams
		// When false the bonus cap is read from each loan.
		PinMaxBonus         bool
		AllowanceMargin     decimal.Decimal
		PreflightThreshold  decimal.Decimal
		ConfirmationTimeout time.Duration
		PollInterval        time.Duration
		// A submitted transaction without receipt is checked for being dropped
		// once it is this old.
		DropAfter time.Duration
	}

	Dependencies struct {
		Loans        core.LoanReader
		Tokens       core.TokenManager
		Oracle       core.PriceOracle
		Unstakers    []core.Unstaker
		Approver     core.Approver
		Flash        core.FlashLiquidator
		Watcher      core.TxWatcher
		Attempts     core.AttemptStore
		Notifier     Notifier
		Metrics      *Metrics
		Liquidator   common.Address
		TokenManager common.Address
	}

	Notifier interface {
		Notify(ctx context.Context, event, title, message string) error
	}

	AttemptRequest struct {
		// Close repays the whole debt regardless of solvency.
		Close bool
		// Empty uses the configured mode.
		Mode core.PlanMode
	}

	AttemptResult struct {
		AttemptId   string                `json:"attemptId"`
		Loan        common.Address        `json:"loan"`
		Action      core.Action           `json:"action"`
		Status      core.AttemptStatus    `json:"status"`
		Plan        *core.LiquidationPlan `json:"plan,omitempty"`
		Unstake     UnstakeReport         `json:"unstake"`
		HealthRatio decimal.Decimal       `json:"healthRatio"`
		TxHash      common.Hash           `json:"txHash"`
		Receipt     *core.TxReceipt       `json:"receipt,omitempty"`
		Reason      string                `json:"reason,omitempty"`
	}
)

func DefaultConfig() Config {
	return Config{
		Sizing:              core.DefaultSizingParams(),
		AllowanceMargin:     core.ALLOWANCE_SAFETY_MARGIN,
		PreflightThreshold:  core.PREFLIGHT_HEALTH_THRESHOLD,
		ConfirmationTimeout: 2 * time.Minute,
		PollInterval:        2 * time.Second,
		DropAfter:           10 * time.Minute,
	}
}

// Liquidator drives one liquidation attempt at a time from fresh on-chain
// state to an observed result. It never retries.
type Liquidator struct {
	Dependencies
	cfg Config
	clk clock.Clock
	log core.Log

	// submitted attempts whose record could not be stored, by loan
	mu   sync.Mutex
	held map[string]*core.Attempt
}

func New(deps Dependencies, cfg Config, clk clock.Clock, log core.Log) *Liquidator {
	return &Liquidator{Dependencies: deps, cfg: cfg, clk: clk, log: log, held: map[string]*core.Attempt{}}
}

// Liquidate runs FETCH_STATE through OBSERVE_RESULT for loan. Reverts, timeouts
// and loans that no longer need liquidating come back as results. Errors mean
// the attempt was abandoned before anything was submitted.
func (l *Liquidator) Liquidate(ctx context.Context, loan common.Address, req AttemptRequest) (*AttemptResult, error) {
	if err := l.Reconcile(ctx, loan); err != nil {
		return nil, err
	}

	params := l.cfg.Sizing
	if req.Mode != "" {
		params.Mode = req.Mode
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	snapshot, err := l.fetchState(ctx, loan)
	if err != nil {
		return nil, l.abandon(ctx, loan, core.ActionUnknown, err)
	}

	// unstaking sends transactions, a loan that is solvent off-chain is not worth them
	var report UnstakeReport
	if req.Close || !snapshot.IsSolvent() {
		report = l.maximizeCollateral(ctx, loan)
	}
	if report.Freed() {
		if snapshot, err = l.fetchState(ctx, loan); err != nil {
			return nil, l.abandon(ctx, loan, core.ActionUnknown, err)
		}
	}

	action := core.SelectAction(req.Close, snapshot.IsBankrupt())
	result := &AttemptResult{
		AttemptId: utils.AttemptId(loan.Hex(), action.String(), snapshot.ReadAt),
		Loan:      loan,
		Action:    action,
		Unstake:   report,
	}

	if !l.cfg.PinMaxBonus && action.HasBonus() {
		maxBonus, err := l.Loans.MaxLiquidationBonus(ctx, loan)
		if err != nil {
			return nil, l.abandon(ctx, loan, action, errors.Wrapf(core.ErrFetchState, "max bonus: %v", err))
		}
		params.MaxBonus = maxBonus
	}

	plan, err := core.ComputePlan(action, snapshot, params)
	if errors.Is(err, core.ErrNothingToRepay) {
		result.Status = core.AttemptStatusNotLiquidatable
		result.Reason = err.Error()
		l.finish(ctx, result)
		return result, nil
	}
	if err != nil {
		return nil, l.abandon(ctx, loan, action, err)
	}
	result.Plan = plan

	l.log.Info().
		Str("loan", loan.Hex()).
		Str("action", action.String()).
		Str("mode", string(plan.Mode)).
		Str("repay_usd", plan.TotalRepayUsd.StringFixed(2)).
		Str("bonus", plan.Bonus.String()).
		Msg("plan computed")

	if err := l.prepareAllowances(ctx, loan, snapshot, plan); err != nil {
		return nil, l.abandon(ctx, loan, action, err)
	}

	payload, err := l.oraclePayload(ctx, loan, snapshot)
	if err != nil {
		return nil, l.abandon(ctx, loan, action, err)
	}

	health, err := l.Loans.HealthRatio(ctx, loan, payload)
	if err != nil {
		return nil, l.abandon(ctx, loan, action, errors.Wrapf(core.ErrFetchState, "preflight health: %v", err))
	}
	result.HealthRatio = health
	if offChain := snapshot.HealthRatio(); offChain.Sub(health).Abs().GreaterThan(core.HEALTH_DRIFT_WARNING) {
		l.log.Warn().
			Str("loan", loan.Hex()).
			Str("on_chain", health.String()).
			Str("off_chain", offChain.StringFixed(4)).
			Msg("health ratio drift")
	}
	if health.GreaterThanOrEqual(l.cfg.PreflightThreshold) {
		l.log.Info().Str("loan", loan.Hex()).Str("health", health.String()).Msg("no longer liquidatable")
		result.Status = core.AttemptStatusNotLiquidatable
		result.Reason = "health ratio " + health.String()
		l.finish(ctx, result)
		return result, nil
	}

	// last point at which the attempt can be cancelled
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	call, err := l.liquidationCall(loan, snapshot, plan, payload)
	if err != nil {
		return nil, l.abandon(ctx, loan, action, err)
	}
	return l.execute(context.WithoutCancel(ctx), result, call, snapshot, health)
}

func (l *Liquidator) fetchState(ctx context.Context, loan common.Address) (*core.LoanSnapshot, error) {
	poolAssets, err := l.Tokens.PoolAssets(ctx)
	if err != nil {
		return nil, errors.Wrapf(core.ErrFetchState, "pool assets: %v", err)
	}
	debts, err := l.Loans.Debts(ctx, loan)
	if err != nil {
		return nil, errors.Wrapf(core.ErrFetchState, "debts: %v", err)
	}
	balances, err := l.Loans.Balances(ctx, loan)
	if err != nil {
		return nil, errors.Wrapf(core.ErrFetchState, "balances: %v", err)
	}

	snapshot := &core.LoanSnapshot{
		Address:    loan,
		Debts:      debts,
		Balances:   balances,
		Assets:     map[string]*core.Asset{},
		PoolAssets: poolAssets,
		ReadAt:     l.clk.Now().Unix(),
	}
	for _, symbol := range snapshot.Symbols() {
		asset, err := l.Tokens.GetAsset(ctx, symbol)
		if err != nil {
			return nil, errors.Wrapf(core.ErrFetchState, "asset %s: %v", symbol, err)
		}
		snapshot.Assets[symbol] = asset
	}

	attestations, err := l.Oracle.Attestations(ctx, snapshot.Symbols())
	if err != nil {
		return nil, errors.Wrapf(core.ErrFetchState, "prices: %v", err)
	}
	snapshot.Prices = core.MedianPrices(attestations)

	l.log.Debug().
		Str("loan", loan.Hex()).
		Str("total_value", snapshot.TotalValue().StringFixed(2)).
		Str("debt", snapshot.Debt().StringFixed(2)).
		Str("health", snapshot.HealthRatio().StringFixed(4)).
		Bool("bankrupt", snapshot.IsBankrupt()).
		Msg("state fetched")
	return snapshot, nil
}

// prepareAllowances approves every delivered asset afresh for this attempt.
func (l *Liquidator) prepareAllowances(ctx context.Context, loan common.Address, snapshot *core.LoanSnapshot, plan *core.LiquidationPlan) error {
	for _, delivered := range plan.DeliveredAmounts.NonZero() {
		asset, ok := snapshot.Assets[delivered.Symbol]
		if !ok {
			return errors.Wrapf(core.ErrApprove, "no metadata for %s", delivered.Symbol)
		}
		amount := utils.ToWeiCeil(delivered.Amount.Mul(l.cfg.AllowanceMargin), asset.Decimals)
		if err := l.Approver.Approve(ctx, asset.Address, loan, amount); err != nil {
			return errors.Wrapf(core.ErrApprove, "%s: %v", delivered.Symbol, err)
		}
	}
	return nil
}

// oraclePayload asks for attestations again so the payload is as fresh as
// possible when it reaches the chain.
func (l *Liquidator) oraclePayload(ctx context.Context, loan common.Address, snapshot *core.LoanSnapshot) ([]byte, error) {
	symbols := snapshot.Symbols()
	owned, err := l.Loans.OwnedAssets(ctx, loan)
	if err != nil {
		return nil, errors.Wrapf(core.ErrOraclePayload, "owned assets: %v", err)
	}
	symbols = appendMissing(symbols, owned)

	attestations, err := l.Oracle.Attestations(ctx, symbols)
	if err != nil {
		return nil, errors.Wrapf(core.ErrOraclePayload, "%v", err)
	}
	payload, err := l.Oracle.Payload(attestations)
	if err != nil {
		return nil, errors.Wrapf(core.ErrOraclePayload, "%v", err)
	}
	return payload, nil
}

func (l *Liquidator) liquidationCall(loan common.Address, snapshot *core.LoanSnapshot, plan *core.LiquidationPlan, payload []byte) (*core.LiquidationCall, error) {
	call := &core.LiquidationCall{
		Loan:          loan,
		BonusPerMille: plan.BonusPerMille(),
		Liquidator:    l.Liquidator,
		TokenManager:  l.TokenManager,
		OraclePayload: payload,
	}
	for _, repay := range plan.RepayAmounts {
		asset, ok := snapshot.Assets[repay.Symbol]
		if !ok {
			return nil, errors.Wrapf(core.ErrPlanInvariant, "no metadata for %s", repay.Symbol)
		}
		amount := utils.ToWei(repay.Amount, asset.Decimals)
		if amount.Sign() == 0 {
			continue
		}
		call.Assets = append(call.Assets, asset.Address)
		call.Amounts = append(call.Amounts, amount)
	}
	if len(call.Assets) == 0 {
		return nil, errors.Wrap(core.ErrNothingToRepay, "repay rounds to zero")
	}
	return call, nil
}

// execute submits the single liquidation transaction and waits for its
// receipt. It runs on a context that is no longer cancelled by the caller.
func (l *Liquidator) execute(ctx context.Context, result *AttemptResult, call *core.LiquidationCall, snapshot *core.LoanSnapshot, health decimal.Decimal) (*AttemptResult, error) {
	hash, err := l.Flash.Liquidate(ctx, call)
	if err != nil {
		return nil, l.abandon(ctx, result.Loan, result.Action, errors.Wrapf(core.ErrSubmit, "%v", err))
	}
	result.TxHash = hash
	l.Metrics.ObserveRepaid(result.Plan.RepaidUsd(snapshot.Prices).InexactFloat64())
	l.log.Info().Str("loan", result.Loan.Hex()).Str("tx", hash.Hex()).Msg("liquidation submitted")

	attempt := core.NewAttempt(l.clk, result.AttemptId, result.Loan.Hex(), result.Action, core.AttemptExtra{
		Plan:          result.Plan,
		BonusPerMille: call.BonusPerMille,
		HealthRatio:   health.String(),
	})
	attempt.TxHash = hash.Hex()
	recorded := l.record(ctx, attempt)

	receipt, err := chain.WaitReceipt(ctx, l.Watcher, l.clk, l.cfg.ConfirmationTimeout, l.cfg.PollInterval, hash)
	switch {
	case err != nil:
		result.Status = core.AttemptStatusUnknown
		result.Reason = err.Error()
	case receipt.Success:
		result.Status = core.AttemptStatusLiquidated
		result.Receipt = receipt
	default:
		result.Status = core.AttemptStatusReverted
		result.Receipt = receipt
		reason, err := l.Watcher.RevertReason(ctx, hash)
		if err != nil {
			l.log.Warn().Err(err).Str("tx", hash.Hex()).Msg("revert reason")
		}
		result.Reason = reason
	}

	if recorded {
		if err := l.Attempts.UpdateAttemptStatus(ctx, result.AttemptId, result.Status, result.Reason, l.clk.Now().Unix()); err != nil {
			l.log.Error().Err(err).Str("attempt", result.AttemptId).Msg("update attempt")
		}
	} else if !result.Status.Unresolved() {
		l.release(attempt)
	}
	l.finish(ctx, result)
	return result, nil
}

// record stores a submitted attempt. When the store is unavailable the attempt
// is held in memory so the loan stays blocked until its transaction is
// accounted for.
func (l *Liquidator) record(ctx context.Context, attempt *core.Attempt) bool {
	if l.Attempts != nil {
		err := l.Attempts.CreateAttempt(ctx, attempt)
		if err == nil {
			return true
		}
		l.log.Error().Err(err).Str("tx", attempt.TxHash).Msg("record attempt, holding it in memory")
	}
	l.mu.Lock()
	l.held[attempt.Loan] = attempt
	l.mu.Unlock()
	return false
}

func (l *Liquidator) heldAttempt(loan string) *core.Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[loan]
}

func (l *Liquidator) release(attempt *core.Attempt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[attempt.Loan] == attempt {
		delete(l.held, attempt.Loan)
	}
}

// Reconcile resolves earlier attempts on loan whose outcome was never observed.
// It fails with core.ErrUnreconciledAttempt while any of them may still land
// on chain.
func (l *Liquidator) Reconcile(ctx context.Context, loan common.Address) error {
	if held := l.heldAttempt(loan.Hex()); held != nil {
		if err := l.reconcileHeld(ctx, held); err != nil {
			return err
		}
	}
	if l.Attempts == nil {
		return nil
	}
	attempts, err := l.Attempts.ListUnresolvedAttempts(ctx, loan.Hex())
	if err != nil {
		return errors.Wrapf(core.ErrFetchState, "attempts: %v", err)
	}

	for _, a := range attempts {
		status, message, err := l.resolve(ctx, a)
		if err != nil {
			return err
		}
		l.updateAttempt(ctx, a, status, message)
	}
	return nil
}

// reconcileHeld stores a held attempt if the store is back, and resolves it in
// memory otherwise.
func (l *Liquidator) reconcileHeld(ctx context.Context, a *core.Attempt) error {
	if l.Attempts != nil {
		if err := l.Attempts.CreateAttempt(ctx, a); err == nil {
			l.release(a)
			return nil
		}
	}
	status, message, err := l.resolve(ctx, a)
	if err != nil {
		return err
	}
	a.UpdateStatus(l.clk, status, message)
	l.release(a)
	l.log.Info().Str("attempt", a.Id).Str("status", status.String()).Msg("held attempt reconciled")
	return nil
}

// resolve reads the chain for the final status of an unresolved attempt.
func (l *Liquidator) resolve(ctx context.Context, a *core.Attempt) (core.AttemptStatus, string, error) {
	if a.TxHash == "" {
		return core.AttemptStatusFailed, "never submitted", nil
	}
	hash := common.HexToHash(a.TxHash)
	receipt, err := l.Watcher.Receipt(ctx, hash)
	switch {
	case errors.Is(err, core.ErrNotFound):
		if l.clk.Now().Sub(time.Unix(a.CreatedAt, 0)) < l.cfg.DropAfter {
			return "", "", errors.Wrapf(core.ErrUnreconciledAttempt, "attempt %s tx %s pending", a.Id, a.TxHash)
		}
		dropped, err := l.Watcher.Dropped(ctx, hash)
		if err != nil {
			return "", "", errors.Wrapf(core.ErrUnreconciledAttempt, "attempt %s: %v", a.Id, err)
		}
		if !dropped {
			return "", "", errors.Wrapf(core.ErrUnreconciledAttempt, "attempt %s tx %s still known", a.Id, a.TxHash)
		}
		return core.AttemptStatusFailed, "dropped", nil
	case err != nil:
		return "", "", errors.Wrapf(core.ErrUnreconciledAttempt, "attempt %s: %v", a.Id, err)
	case receipt.Success:
		return core.AttemptStatusLiquidated, "reconciled", nil
	default:
		reason, _ := l.Watcher.RevertReason(ctx, receipt.TxHash)
		return core.AttemptStatusReverted, reason, nil
	}
}

func (l *Liquidator) updateAttempt(ctx context.Context, a *core.Attempt, status core.AttemptStatus, message string) {
	a.UpdateStatus(l.clk, status, message)
	if err := l.Attempts.UpdateAttemptStatus(ctx, a.Id, a.Status, a.Message, a.UpdatedAt); err != nil {
		l.log.Error().Err(err).Str("attempt", a.Id).Msg("update attempt")
		return
	}
	l.log.Info().Str("attempt", a.Id).Str("status", status.String()).Msg("attempt reconciled")
}

func (l *Liquidator) abandon(ctx context.Context, loan common.Address, action core.Action, err error) error {
	l.log.Warn().Err(err).Str("loan", loan.Hex()).Str("action", action.String()).Msg("attempt abandoned")
	l.Metrics.ObserveAttempt(action, core.AttemptStatusFailed)
	if l.Notifier != nil {
		if nerr := l.Notifier.Notify(ctx, string(core.AttemptStatusFailed), "liquidation failed "+loan.Hex(), err.Error()); nerr != nil {
			l.log.Warn().Err(nerr).Msg("notify")
		}
	}
	return err
}

func (l *Liquidator) finish(ctx context.Context, result *AttemptResult) {
	l.Metrics.ObserveAttempt(result.Action, result.Status)

	event := l.log.Info()
	if result.Status == core.AttemptStatusReverted || result.Status == core.AttemptStatusUnknown {
		event = l.log.Warn()
	}
	event.Str("loan", result.Loan.Hex()).
		Str("action", result.Action.String()).
		Str("status", result.Status.String()).
		Str("tx", result.TxHash.Hex()).
		Str("reason", result.Reason).
		Msg("attempt finished")

	if l.Notifier != nil {
		if err := l.Notifier.Notify(ctx, result.Status.String(), resultTitle(result), resultMessage(result)); err != nil {
			l.log.Warn().Err(err).Msg("notify")
		}
	}
}

func resultTitle(r *AttemptResult) string {
	return r.Action.String() + " " + r.Status.String() + " " + r.Loan.Hex()
}

func resultMessage(r *AttemptResult) string {
	msg := "attempt " + r.AttemptId
	if r.Plan != nil {
		msg += "\nrepay $" + r.Plan.TotalRepayUsd.StringFixed(2) + " bonus " + r.Plan.Bonus.String()
	}
	if r.TxHash != (common.Hash{}) {
		msg += "\ntx " + r.TxHash.Hex()
	}
	if r.Reason != "" {
		msg += "\n" + r.Reason
	}
	return msg
}

func appendMissing(symbols, more []string) []string {
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		seen[s] = true
	}
	for _, s := range more {
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	return symbols
}
