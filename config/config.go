// Package config holds the liquidator process configuration. Values come from
// a TOML file layered over Defaults and are then overridden by LIQUIDATOR_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	core "github.com/DomeLiquid/liquidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type Config struct {
	Chain     ChainConfig     `toml:"chain"`
	Contracts ContractsConfig `toml:"contracts"`
	Sizing    SizingConfig    `toml:"sizing"`
	Oracle    OracleConfig    `toml:"oracle"`
	Redis     RedisConfig     `toml:"redis"`
	Store     StoreConfig     `toml:"store"`
	Scanner   ScannerConfig   `toml:"scanner"`
	Unstake   UnstakeConfig   `toml:"unstake"`
	Notify    NotifyConfig    `toml:"notify"`
	Metrics   MetricsConfig   `toml:"metrics"`
	LogLevel  string          `toml:"log_level"`
	LogFormat string          `toml:"log_format"`
}

type ChainConfig struct {
	RpcURL     string `toml:"rpc_url"`
	PrivateKey string `toml:"private_key"`
	GasLimit   uint64 `toml:"gas_limit"`
	// Zero asks the node for a price.
	GasPriceGwei        decimal.Decimal `toml:"gas_price_gwei"`
	ConfirmationTimeout duration        `toml:"confirmation_timeout"`
	PollInterval        duration        `toml:"poll_interval"`
	// A transaction still without receipt after this long is checked for
	// having been dropped.
	DropAfter duration `toml:"drop_after"`
}

type ContractsConfig struct {
	TokenManager string `toml:"token_manager"`
	Factory      string `toml:"factory"`
	FlashLoan    string `toml:"flash_loan"`
}

type SizingConfig struct {
	Mode      string          `toml:"mode"`
	TargetLTV decimal.Decimal `toml:"target_ltv"`
	// Zero reads the bonus cap from each loan.
	MaxBonus           decimal.Decimal `toml:"max_bonus"`
	SupplyMargin       decimal.Decimal `toml:"supply_margin"`
	AllowanceMargin    decimal.Decimal `toml:"allowance_margin"`
	PreflightThreshold decimal.Decimal `toml:"preflight_threshold"`
	Priority           []string        `toml:"priority"`
}

type OracleConfig struct {
	Gateways          []string `toml:"gateways"`
	ServiceId         string   `toml:"service_id"`
	UniqueSigners     int      `toml:"unique_signers"`
	AuthorizedSigners []string `toml:"authorized_signers"`
	MaxDelay          duration `toml:"max_delay"`
	CacheTTL          duration `toml:"cache_ttl"`
	Timeout           duration `toml:"timeout"`
	UnsignedMetadata  string   `toml:"unsigned_metadata"`
}

// An empty Addr disables the price cache and the scanner locks.
type RedisConfig struct {
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	// Held locks are refreshed every third of this.
	LockTTL duration `toml:"lock_ttl"`
}

type StoreConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type ScannerConfig struct {
	Interval    duration `toml:"interval"`
	Concurrency int      `toml:"concurrency"`
	// Loans at or above this on-chain health ratio are not attempted.
	HealthThreshold decimal.Decimal `toml:"health_threshold"`
}

type UnstakeConfig struct {
	StakedPositions bool            `toml:"staked_positions"`
	Methods         []UnstakeMethod `toml:"methods"`
}

type UnstakeMethod struct {
	Name      string `toml:"name"`
	Signature string `toml:"signature"`
}

type NotifyConfig struct {
	MixinKeystore   string   `toml:"mixin_keystore"`
	MixinRecipients []string `toml:"mixin_recipients"`
	Events          []string `toml:"events"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			GasLimit:            8_000_000,
			GasPriceGwei:        decimal.Zero,
			ConfirmationTimeout: duration{2 * time.Minute},
			PollInterval:        duration{2 * time.Second},
			DropAfter:           duration{10 * time.Minute},
		},
		Sizing: SizingConfig{
			Mode:               string(core.PlanModeTargetLTV),
			TargetLTV:          core.DEFAULT_TARGET_LTV,
			MaxBonus:           decimal.Zero,
			SupplyMargin:       core.SUPPLY_SAFETY_MARGIN,
			AllowanceMargin:    core.ALLOWANCE_SAFETY_MARGIN,
			PreflightThreshold: core.PREFLIGHT_HEALTH_THRESHOLD,
		},
		Oracle: OracleConfig{
			Gateways:      []string{"https://oracle-gateway-1.a.redstone.finance", "https://oracle-gateway-2.a.redstone.finance"},
			ServiceId:     "redstone-avalanche-prod",
			UniqueSigners: 3,
			MaxDelay:      duration{3 * time.Minute},
			CacheTTL:      duration{10 * time.Second},
			Timeout:       duration{10 * time.Second},
		},
		Redis: RedisConfig{
			LockTTL: duration{5 * time.Minute},
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "liquidator.db",
		},
		Scanner: ScannerConfig{
			Interval:        duration{time.Minute},
			Concurrency:     8,
			HealthThreshold: core.ONE,
		},
		Unstake: UnstakeConfig{
			StakedPositions: true,
		},
		Notify: NotifyConfig{
			Events: []string{"liquidated", "reverted", "unknown", "failed"},
		},
		LogLevel:  "info",
		LogFormat: "console",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("unknown log_format %q (valid: console, json)", c.LogFormat))
	}

	if c.Chain.RpcURL == "" {
		errs = append(errs, "chain: rpc_url is required")
	}
	if c.Chain.PrivateKey == "" {
		errs = append(errs, "chain: private_key is required")
	}
	if c.Chain.GasLimit == 0 {
		errs = append(errs, "chain: gas_limit must be > 0")
	}
	if c.Chain.GasPriceGwei.IsNegative() {
		errs = append(errs, "chain: gas_price_gwei must be >= 0")
	}
	if c.Chain.ConfirmationTimeout.Duration <= 0 {
		errs = append(errs, "chain: confirmation_timeout must be > 0")
	}
	if c.Chain.DropAfter.Duration < c.Chain.ConfirmationTimeout.Duration {
		errs = append(errs, "chain: drop_after must be >= confirmation_timeout")
	}

	for name, addr := range map[string]string{
		"token_manager": c.Contracts.TokenManager,
		"factory":       c.Contracts.Factory,
		"flash_loan":    c.Contracts.FlashLoan,
	} {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("contracts: %s %q is not an address", name, addr))
		}
	}

	if err := c.SizingParams().Validate(); err != nil {
		errs = append(errs, "sizing: "+err.Error())
	}
	if c.Sizing.AllowanceMargin.LessThan(core.ONE) {
		errs = append(errs, "sizing: allowance_margin must be >= 1")
	}
	if !c.Sizing.PreflightThreshold.IsPositive() {
		errs = append(errs, "sizing: preflight_threshold must be > 0")
	}

	if len(c.Oracle.Gateways) == 0 {
		errs = append(errs, "oracle: at least one gateway is required")
	}
	if c.Oracle.ServiceId == "" {
		errs = append(errs, "oracle: service_id is required")
	}
	if c.Oracle.UniqueSigners <= 0 {
		errs = append(errs, "oracle: unique_signers must be > 0")
	}
	for _, s := range c.Oracle.AuthorizedSigners {
		if !common.IsHexAddress(s) {
			errs = append(errs, fmt.Sprintf("oracle: authorized signer %q is not an address", s))
		}
	}

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: sqlite, postgres)", c.Store.Driver))
	}
	if c.Scanner.Concurrency <= 0 {
		errs = append(errs, "scanner: concurrency must be > 0")
	}
	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be > 0")
	}
	for _, m := range c.Unstake.Methods {
		if m.Name == "" || m.Signature == "" {
			errs = append(errs, "unstake: methods need a name and a signature")
		}
	}
	if c.Notify.MixinKeystore != "" && len(c.Notify.MixinRecipients) == 0 {
		errs = append(errs, "notify: mixin_recipients is required when mixin_keystore is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SizingParams builds the sizing parameters. An unset max_bonus falls back to
// the default here and is replaced per loan unless PinnedMaxBonus.
func (c *Config) SizingParams() core.SizingParams {
	maxBonus := c.Sizing.MaxBonus
	if maxBonus.IsZero() {
		maxBonus = core.DEFAULT_MAX_BONUS
	}
	return core.SizingParams{
		TargetLTV:    c.Sizing.TargetLTV,
		MaxBonus:     maxBonus,
		SupplyMargin: c.Sizing.SupplyMargin,
		Mode:         core.PlanMode(c.Sizing.Mode),
		Priority:     c.Sizing.Priority,
	}
}

// PinnedMaxBonus reports whether the bonus cap comes from config rather than
// from each loan.
func (c *Config) PinnedMaxBonus() bool {
	return !c.Sizing.MaxBonus.IsZero()
}

func (c *Config) AuthorizedSigners() []common.Address {
	out := make([]common.Address, 0, len(c.Oracle.AuthorizedSigners))
	for _, s := range c.Oracle.AuthorizedSigners {
		out = append(out, common.HexToAddress(s))
	}
	return out
}
