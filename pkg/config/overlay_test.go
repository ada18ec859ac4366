package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadStrategyOverlay_MissingFileIsNotError(t *testing.T) {
	overlay, err := LoadStrategyOverlay(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NotNil(t, overlay)
}

func TestLoadStrategyOverlay_AppliesSetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("minFundingRateBps: 25\ntrendWindow: 12\n"), 0o644))

	overlay, err := LoadStrategyOverlay(path)
	require.NoError(t, err)

	cfg := &Config{MinFundingRateBps: 10, ExitFundingRateBps: 5, TrendWindow: 24, TargetYieldBps: 100}
	overlay.Apply(cfg)

	require.EqualValues(t, 25, cfg.MinFundingRateBps)
	require.Equal(t, 12, cfg.TrendWindow)
	require.EqualValues(t, 5, cfg.ExitFundingRateBps, "unset overlay fields leave the default untouched")
}
