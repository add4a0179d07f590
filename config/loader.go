package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Load merges the TOML file at path (skipped when empty) over Defaults, loads
// .env when present and applies LIQUIDATOR_* overrides. The result is not
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, errors.Wrapf(err, "config: decode %s", path)
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Chain.RpcURL, "LIQUIDATOR_CHAIN_RPC_URL")
	setStr(&cfg.Chain.PrivateKey, "LIQUIDATOR_CHAIN_PRIVATE_KEY")
	setUint64(&cfg.Chain.GasLimit, "LIQUIDATOR_CHAIN_GAS_LIMIT")
	setDecimal(&cfg.Chain.GasPriceGwei, "LIQUIDATOR_CHAIN_GAS_PRICE_GWEI")
	setDuration(&cfg.Chain.ConfirmationTimeout, "LIQUIDATOR_CHAIN_CONFIRMATION_TIMEOUT")

	setStr(&cfg.Contracts.TokenManager, "LIQUIDATOR_CONTRACTS_TOKEN_MANAGER")
	setStr(&cfg.Contracts.Factory, "LIQUIDATOR_CONTRACTS_FACTORY")
	setStr(&cfg.Contracts.FlashLoan, "LIQUIDATOR_CONTRACTS_FLASH_LOAN")

	setStr(&cfg.Sizing.Mode, "LIQUIDATOR_SIZING_MODE")
	setDecimal(&cfg.Sizing.TargetLTV, "LIQUIDATOR_SIZING_TARGET_LTV")
	setDecimal(&cfg.Sizing.MaxBonus, "LIQUIDATOR_SIZING_MAX_BONUS")
	setDecimal(&cfg.Sizing.SupplyMargin, "LIQUIDATOR_SIZING_SUPPLY_MARGIN")
	setStringSlice(&cfg.Sizing.Priority, "LIQUIDATOR_SIZING_PRIORITY")

	setStringSlice(&cfg.Oracle.Gateways, "LIQUIDATOR_ORACLE_GATEWAYS")
	setStr(&cfg.Oracle.ServiceId, "LIQUIDATOR_ORACLE_SERVICE_ID")
	setInt(&cfg.Oracle.UniqueSigners, "LIQUIDATOR_ORACLE_UNIQUE_SIGNERS")
	setStringSlice(&cfg.Oracle.AuthorizedSigners, "LIQUIDATOR_ORACLE_AUTHORIZED_SIGNERS")

	setStr(&cfg.Redis.Addr, "LIQUIDATOR_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LIQUIDATOR_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LIQUIDATOR_REDIS_DB")

	setStr(&cfg.Store.Driver, "LIQUIDATOR_STORE_DRIVER")
	setStr(&cfg.Store.DSN, "LIQUIDATOR_STORE_DSN")

	setDuration(&cfg.Scanner.Interval, "LIQUIDATOR_SCANNER_INTERVAL")
	setInt(&cfg.Scanner.Concurrency, "LIQUIDATOR_SCANNER_CONCURRENCY")

	setStr(&cfg.Notify.MixinKeystore, "LIQUIDATOR_NOTIFY_MIXIN_KEYSTORE")
	setStringSlice(&cfg.Notify.MixinRecipients, "LIQUIDATOR_NOTIFY_MIXIN_RECIPIENTS")
	setStringSlice(&cfg.Notify.Events, "LIQUIDATOR_NOTIFY_EVENTS")

	setStr(&cfg.Metrics.Addr, "LIQUIDATOR_METRICS_ADDR")

	setStr(&cfg.LogLevel, "LIQUIDATOR_LOG_LEVEL")
	setStr(&cfg.LogFormat, "LIQUIDATOR_LOG_FORMAT")
}

// Each helper only touches dst when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
