// Command liquidator watches loans and liquidates the unhealthy ones. With
// -loan it runs a single attempt against that loan and exits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	core "github.com/DomeLiquid/liquidator"
	"github.com/DomeLiquid/liquidator/config"
	"github.com/DomeLiquid/liquidator/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	loan := flag.String("loan", "", "liquidate this loan once and exit")
	closeLoan := flag.Bool("close", false, "repay the whole debt of -loan")
	mode := flag.String("mode", "", "plan mode override: target_ltv or sellout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	log := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	redacted := config.RedactedConfig(cfg)
	log.Info().Interface("config", redacted).Msg("liquidator starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, &log)
	if err != nil {
		log.Error().Err(err).Msg("wire dependencies")
		os.Exit(1)
	}
	defer app.Close()

	if *loan != "" {
		err = runOnce(ctx, app, *loan, engine.AttemptRequest{Close: *closeLoan, Mode: core.PlanMode(*mode)})
	} else {
		err = app.Run(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("liquidator exited with error")
		os.Exit(1)
	}
	log.Info().Msg("liquidator stopped")
}

func runOnce(ctx context.Context, app *App, loan string, req engine.AttemptRequest) error {
	if !common.IsHexAddress(loan) {
		return errors.Errorf("invalid loan address %q", loan)
	}
	if req.Mode != "" && !req.Mode.Valid() {
		return errors.Wrapf(core.ErrUnknownPlanMode, "%q", req.Mode)
	}
	result, err := app.liquidator.Liquidate(ctx, common.HexToAddress(loan), req)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.LogFormat == "json" {
		log = zerolog.New(os.Stdout)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}
	return log.Level(level).With().Timestamp().Logger()
}
