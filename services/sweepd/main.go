package sweepd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"atachain/observability/logging"
)

const (
	rpcURLEnv   = "SWEEPD_RPC_URL"
	keyFileEnv  = "SWEEPD_KEY_FILE"
	serviceEnv  = "SWEEPD_SERVICE_ADDRESS"
	treasuryEnv = "SWEEPD_TREASURY"
)

func envDefault(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

// Main runs one sweep pass using command line flags with environment
// fallbacks. It returns a non-nil error when the pass aborted.
func Main() error {
	var cfg Config
	flag.StringVar(&cfg.RPCURL, "rpc", envDefault(rpcURLEnv, ""), "reward daemon JSON-RPC endpoint")
	flag.StringVar(&cfg.KeyFile, "key", envDefault(keyFileEnv, ""), "path to the administrator's hex private key")
	flag.StringVar(&cfg.ServiceAddress, "service", envDefault(serviceEnv, ""), "expected claim service vault address")
	flag.StringVar(&cfg.TreasuryAddress, "treasury", envDefault(treasuryEnv, ""), "treasury address, shown in the run header")
	flag.DurationVar(&cfg.SafetyMargin, "margin", DefaultSafetyMargin, "extra delay past the claim window deadline")
	flag.DurationVar(&cfg.Throttle, "throttle", DefaultThrottle, "pause between successive sweep submissions")
	flag.Uint64Var(&cfg.FallbackFee, "fallback-fee", DefaultFallbackFee, "fee budget used when estimation fails")
	flag.Parse()

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	env := strings.TrimSpace(os.Getenv("ATA_ENV"))
	logger := logging.Setup("sweepd", env, logging.Options{})

	signer, err := LoadSigner(cfg.KeyFile)
	if err != nil {
		return err
	}
	logger.Info("signing as administrator", "address", fmt.Sprintf("0x%x", signer.Address()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := NewRunner(NewHTTPClient(cfg.RPCURL), signer, cfg, logger)
	started := time.Now()
	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("run complete",
		"swept", summary.Swept,
		"skipped", summary.Skipped,
		"empty", summary.Empty,
		"elapsed", time.Since(started).Round(time.Millisecond).String(),
	)
	return nil
}
