package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StrategyOverlay holds the subset of strategy thresholds an operator can
// tune without touching environment variables — a YAML file reviewed and
// deployed alongside the binary, grounded on the YAML-driven threshold
// files used for tunable strategy parameters elsewhere in this codebase.
type StrategyOverlay struct {
	MinFundingRateBps  *int64 `yaml:"minFundingRateBps"`
	ExitFundingRateBps *int64 `yaml:"exitFundingRateBps"`
	TrendWindow        *int   `yaml:"trendWindow"`
	TargetYieldBps     *int64 `yaml:"targetYieldBps"`
}

// LoadStrategyOverlay reads a YAML file at path and returns its parsed
// contents. A missing file is not an error — overlays are optional.
func LoadStrategyOverlay(path string) (*StrategyOverlay, error) {
	if path == "" {
		return &StrategyOverlay{}, nil
	}
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &StrategyOverlay{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read strategy overlay: %w", err)
	}
	var overlay StrategyOverlay
	if err := yaml.Unmarshal(buf, &overlay); err != nil {
		return nil, fmt.Errorf("config: parse strategy overlay: %w", err)
	}
	return &overlay, nil
}

// Apply merges any set overlay fields into cfg, overriding the
// environment-derived defaults.
func (o *StrategyOverlay) Apply(cfg *Config) {
	if o == nil {
		return
	}
	if o.MinFundingRateBps != nil {
		cfg.MinFundingRateBps = *o.MinFundingRateBps
	}
	if o.ExitFundingRateBps != nil {
		cfg.ExitFundingRateBps = *o.ExitFundingRateBps
	}
	if o.TrendWindow != nil {
		cfg.TrendWindow = *o.TrendWindow
	}
	if o.TargetYieldBps != nil {
		cfg.TargetYieldBps = *o.TargetYieldBps
	}
}
