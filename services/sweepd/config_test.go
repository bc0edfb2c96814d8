package sweepd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigValidateListsEveryMissingField(t *testing.T) {
	cfg := Config{FallbackFee: DefaultFallbackFee}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "rpc endpoint URL")
	require.Contains(t, err.Error(), "signing key file")
	require.Contains(t, err.Error(), "claim service address")
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{
		RPCURL:         "http://localhost:8680",
		KeyFile:        "admin.key",
		ServiceAddress: testVault().Hex(),
	}
	cfg.ApplyDefaults()
	require.Equal(t, DefaultSafetyMargin, cfg.SafetyMargin)
	require.Equal(t, DefaultThrottle, cfg.Throttle)
	require.Equal(t, uint64(DefaultFallbackFee), cfg.FallbackFee)
	require.NoError(t, cfg.Validate())
}

func TestConfigKeepsExplicitPolicy(t *testing.T) {
	cfg := Config{
		RPCURL:         "http://localhost:8680",
		KeyFile:        "admin.key",
		ServiceAddress: testVault().Hex(),
		SafetyMargin:   time.Hour,
		Throttle:       5 * time.Second,
		FallbackFee:    1,
	}
	cfg.ApplyDefaults()
	require.Equal(t, time.Hour, cfg.SafetyMargin)
	require.Equal(t, 5*time.Second, cfg.Throttle)
	require.Equal(t, uint64(1), cfg.FallbackFee)
}
