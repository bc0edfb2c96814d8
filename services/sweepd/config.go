package sweepd

import (
	"fmt"
	"strings"
	"time"
)

// Defaults for the local sweep policy. These are operator knobs, not part of
// the on-service contract.
const (
	DefaultSafetyMargin = 10 * time.Minute
	DefaultThrottle     = 2 * time.Second
	DefaultFallbackFee  = 100_000
)

// Config carries the sweep automation settings. RPCURL, KeyFile and
// ServiceAddress are required; TreasuryAddress is display only.
type Config struct {
	// RPCURL is the reward daemon's JSON-RPC endpoint.
	RPCURL string
	// KeyFile holds the administrator's hex-encoded secp256k1 key.
	KeyFile string
	// ServiceAddress is the expected vault address of the claim service,
	// checked against rewards_serviceInfo before any sweep is submitted.
	ServiceAddress string
	// TreasuryAddress, when set, is echoed in the run header so operators
	// can eyeball where swept funds land.
	TreasuryAddress string
	// SafetyMargin delays sweeping past the strict window deadline to stay
	// clear of edge-of-window claim races.
	SafetyMargin time.Duration
	// Throttle is the pause between successive sweep submissions.
	Throttle time.Duration
	// FallbackFee is the conservative fee budget used when estimation
	// fails.
	FallbackFee uint64
}

// Validate reports every missing required value in one descriptive error.
func (c *Config) Validate() error {
	missing := make([]string, 0, 3)
	if strings.TrimSpace(c.RPCURL) == "" {
		missing = append(missing, "rpc endpoint URL")
	}
	if strings.TrimSpace(c.KeyFile) == "" {
		missing = append(missing, "signing key file")
	}
	if strings.TrimSpace(c.ServiceAddress) == "" {
		missing = append(missing, "claim service address")
	}
	if len(missing) > 0 {
		return fmt.Errorf("sweepd: missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.FallbackFee == 0 {
		return fmt.Errorf("sweepd: fallback fee must be positive")
	}
	return nil
}

// ApplyDefaults fills the optional policy knobs.
func (c *Config) ApplyDefaults() {
	if c.SafetyMargin == 0 {
		c.SafetyMargin = DefaultSafetyMargin
	}
	if c.Throttle == 0 {
		c.Throttle = DefaultThrottle
	}
	if c.FallbackFee == 0 {
		c.FallbackFee = DefaultFallbackFee
	}
}
