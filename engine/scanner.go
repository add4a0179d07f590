package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	core "github.com/DomeLiquid/liquidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type (
	ScannerConfig struct {
		Interval    time.Duration
		Concurrency int
		// Loans whose on-chain health ratio is at or above this are skipped.
		HealthThreshold decimal.Decimal
		LockTTL         time.Duration
	}

	Candidate struct {
		Loan        common.Address
		HealthRatio decimal.Decimal
	}

	ScanReport struct {
		Loans      int
		Candidates []Candidate
		Results    []*AttemptResult
		// loans skipped because another process holds their lock
		Locked int
		Errors int
	}
)

// Scanner finds unhealthy loans and liquidates them one by one. Health reads
// run concurrently, attempts never do.
type Scanner struct {
	registry   core.LoanRegistry
	loans      core.LoanReader
	tokens     core.TokenManager
	oracle     core.PriceOracle
	liquidator *Liquidator
	locker     Locker
	metrics    *Metrics
	cfg        ScannerConfig
	clk        clock.Clock
	log        core.Log
}

func NewScanner(registry core.LoanRegistry, liquidator *Liquidator, locker Locker, cfg ScannerConfig, clk clock.Clock, log core.Log) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Scanner{
		registry:   registry,
		loans:      liquidator.Loans,
		tokens:     liquidator.Tokens,
		oracle:     liquidator.Oracle,
		liquidator: liquidator,
		locker:     locker,
		metrics:    liquidator.Metrics,
		cfg:        cfg,
		clk:        clk,
		log:        log,
	}
}

// Run scans immediately and then on every interval until ctx is done.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := s.clk.Ticker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error().Err(err).Msg("scan failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scanner) Tick(ctx context.Context) (*ScanReport, error) {
	start := s.clk.Now()

	loans, err := s.registry.AllLoans(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "engine/scanner: list loans")
	}
	report := &ScanReport{Loans: len(loans)}

	candidates, failed, err := s.candidates(ctx, loans)
	if err != nil {
		return nil, err
	}
	report.Candidates = candidates
	report.Errors = failed

	for _, c := range candidates {
		result, err := s.attempt(ctx, c)
		switch {
		case errors.Is(err, core.ErrLockHeld):
			report.Locked++
		case err != nil:
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Errors++
		default:
			report.Results = append(report.Results, result)
		}
	}

	s.metrics.ObserveScan(len(loans), len(candidates), s.clk.Now().Sub(start).Seconds())
	s.log.Info().
		Int("loans", report.Loans).
		Int("candidates", len(report.Candidates)).
		Int("attempts", len(report.Results)).
		Int("locked", report.Locked).
		Int("errors", report.Errors).
		Msg("scan finished")
	return report, nil
}

// candidates reads every loan's health ratio with bounded concurrency and
// returns the unhealthy ones, least healthy first. Loans that fail to read are
// counted and skipped.
func (s *Scanner) candidates(ctx context.Context, loans []common.Address) ([]Candidate, int, error) {
	payloads, err := s.newPayloadCache(ctx)
	if err != nil {
		return nil, 0, err
	}

	var (
		mu         sync.Mutex
		candidates []Candidate
		failed     int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, loan := range loans {
		g.Go(func() error {
			health, err := s.health(gctx, loan, payloads)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Warn().Err(err).Str("loan", loan.Hex()).Msg("read health")
				failed++
				return nil
			}
			if health.LessThan(s.cfg.HealthThreshold) {
				candidates = append(candidates, Candidate{Loan: loan, HealthRatio: health})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, failed, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		if c := candidates[i].HealthRatio.Cmp(candidates[j].HealthRatio); c != 0 {
			return c < 0
		}
		return candidates[i].Loan.Hex() < candidates[j].Loan.Hex()
	})
	return candidates, failed, nil
}

func (s *Scanner) health(ctx context.Context, loan common.Address, payloads *payloadCache) (decimal.Decimal, error) {
	owned, err := s.loans.OwnedAssets(ctx, loan)
	if err != nil {
		return decimal.Zero, err
	}
	payload, err := payloads.get(ctx, owned)
	if err != nil {
		return decimal.Zero, err
	}
	return s.loans.HealthRatio(ctx, loan, payload)
}

func (s *Scanner) attempt(ctx context.Context, c Candidate) (*AttemptResult, error) {
	release, err := s.locker.Acquire(ctx, c.Loan.Hex(), s.cfg.LockTTL)
	if err != nil {
		if !errors.Is(err, core.ErrLockHeld) {
			s.log.Warn().Err(err).Str("loan", c.Loan.Hex()).Msg("acquire lock")
		}
		return nil, err
	}
	defer release()

	return s.liquidator.Liquidate(ctx, c.Loan, AttemptRequest{})
}

// payloadCache shares one oracle payload per distinct owned-asset set within a
// tick. Each tick starts with an empty cache so prices are never reused
// across ticks.
type payloadCache struct {
	oracle     core.PriceOracle
	poolAssets []string

	group    singleflight.Group
	mu       sync.Mutex
	payloads map[string][]byte
}

func (s *Scanner) newPayloadCache(ctx context.Context) (*payloadCache, error) {
	poolAssets, err := s.tokens.PoolAssets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "engine/scanner: pool assets")
	}
	return &payloadCache{oracle: s.oracle, poolAssets: poolAssets, payloads: map[string][]byte{}}, nil
}

func (p *payloadCache) get(ctx context.Context, owned []string) ([]byte, error) {
	symbols := appendMissing(append([]string(nil), p.poolAssets...), owned)
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	key := strings.Join(sorted, ",")

	if payload, ok := p.cached(key); ok {
		return payload, nil
	}
	// concurrent readers of the same set share one fetch, other sets do not wait
	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		if payload, ok := p.cached(key); ok {
			return payload, nil
		}
		attestations, err := p.oracle.Attestations(ctx, symbols)
		if err != nil {
			return nil, err
		}
		payload, err := p.oracle.Payload(attestations)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.payloads[key] = payload
		p.mu.Unlock()
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (p *payloadCache) cached(key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	payload, ok := p.payloads[key]
	return payload, ok
}
