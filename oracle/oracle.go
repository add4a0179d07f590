package oracle

import (
	"context"
	"sort"
	"time"

	core "github.com/DomeLiquid/liquidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
)

type Config struct {
	ServiceId         string
	UniqueSigners     int
	AuthorizedSigners []common.Address
	// Packages older than MaxDelay are dropped. Zero disables the check.
	MaxDelay         time.Duration
	CacheTTL         time.Duration
	UnsignedMetadata string
}

// Oracle serves verified signed prices from the gateways, in order of
// preference, with an optional cache in front.
type Oracle struct {
	gateways []*Gateway
	cache    Cache
	cfg      Config
	signers  map[common.Address]bool
	clk      clock.Clock
	log      core.Log
}

var _ core.PriceOracle = (*Oracle)(nil)

func New(gateways []*Gateway, cache Cache, cfg Config, clk clock.Clock, log core.Log) *Oracle {
	if cfg.UniqueSigners <= 0 {
		cfg.UniqueSigners = 1
	}
	signers := make(map[common.Address]bool, len(cfg.AuthorizedSigners))
	for _, s := range cfg.AuthorizedSigners {
		signers[s] = true
	}
	return &Oracle{
		gateways: gateways,
		cache:    cache,
		cfg:      cfg,
		signers:  signers,
		clk:      clk,
		log:      log,
	}
}

func (o *Oracle) Attestations(ctx context.Context, symbols []string) ([]*core.SignedPrice, error) {
	symbols = uniqueSymbols(symbols)
	found := make(map[string][]*core.SignedPrice, len(symbols))

	if o.cache != nil {
		cached, err := o.cache.Get(ctx, symbols)
		if err != nil {
			o.log.Warn().Err(err).Msg("oracle cache read failed")
		}
		for symbol, packages := range cached {
			if selected := o.selectPackages(symbol, packages); len(selected) >= o.cfg.UniqueSigners {
				found[symbol] = selected
			}
		}
	}

	var missing []string
	for _, s := range symbols {
		if _, ok := found[s]; !ok {
			missing = append(missing, s)
		}
	}

	if len(missing) > 0 {
		latest, err := o.fetch(ctx)
		if err != nil {
			return nil, err
		}
		fresh := make(map[string][]*core.SignedPrice, len(missing))
		for _, symbol := range missing {
			var packages []*core.SignedPrice
			for _, p := range latest[symbol] {
				sp, err := p.SignedPrice()
				if err != nil {
					o.log.Debug().Err(err).Str("symbol", symbol).Msg("skip data package")
					continue
				}
				packages = append(packages, sp)
			}
			selected := o.selectPackages(symbol, packages)
			if len(selected) < o.cfg.UniqueSigners {
				return nil, errors.Errorf("oracle: %s has %d of %d required signers", symbol, len(selected), o.cfg.UniqueSigners)
			}
			fresh[symbol] = selected
			found[symbol] = selected
		}
		if o.cache != nil && o.cfg.CacheTTL > 0 {
			if err := o.cache.Set(ctx, fresh, o.cfg.CacheTTL); err != nil {
				o.log.Warn().Err(err).Msg("oracle cache write failed")
			}
		}
	}

	out := make([]*core.SignedPrice, 0, len(symbols)*o.cfg.UniqueSigners)
	for _, s := range symbols {
		out = append(out, found[s]...)
	}
	return out, nil
}

func (o *Oracle) Payload(attestations []*core.SignedPrice) ([]byte, error) {
	return Serialize(attestations, []byte(o.cfg.UnsignedMetadata))
}

func (o *Oracle) fetch(ctx context.Context) (LatestResponse, error) {
	var lastErr error = errors.New("oracle: no gateway configured")
	for _, g := range o.gateways {
		latest, err := g.Latest(ctx)
		if err == nil {
			return latest, nil
		}
		o.log.Warn().Err(err).Msg("oracle gateway failed")
		lastErr = err
	}
	return nil, lastErr
}

// selectPackages keeps the newest valid package of each signer and returns at
// most UniqueSigners of them, newest first.
func (o *Oracle) selectPackages(symbol string, packages []*core.SignedPrice) []*core.SignedPrice {
	now := o.clk.Now()
	bySigner := map[common.Address]*core.SignedPrice{}
	for _, p := range packages {
		if p == nil || p.Symbol != symbol || !p.Value.IsPositive() {
			continue
		}
		if o.cfg.MaxDelay > 0 && now.Sub(time.UnixMilli(p.Timestamp)) > o.cfg.MaxDelay {
			continue
		}
		signer, err := RecoverSigner(p)
		if err != nil || signer != p.Signer {
			continue
		}
		if len(o.signers) > 0 && !o.signers[signer] {
			continue
		}
		if prev, ok := bySigner[signer]; !ok || p.Timestamp > prev.Timestamp {
			bySigner[signer] = p
		}
	}

	selected := make([]*core.SignedPrice, 0, len(bySigner))
	for _, p := range bySigner {
		selected = append(selected, p)
	}
	sort.Slice(selected, func(i, j int) bool {
		if selected[i].Timestamp != selected[j].Timestamp {
			return selected[i].Timestamp > selected[j].Timestamp
		}
		return selected[i].Signer.Hex() < selected[j].Signer.Hex()
	})
	if len(selected) > o.cfg.UniqueSigners {
		selected = selected[:o.cfg.UniqueSigners]
	}
	return selected
}

func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
