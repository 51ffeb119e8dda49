package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"rabbit-quant/internal/domain"
)

// Strategy is the strategy file.
type Strategy struct {
	Hurst      HurstConfig    `yaml:"hurst"`
	Cycle      CycleConfig    `yaml:"cycle"`
	Filters    FilterConfig   `yaml:"filters"`
	Backtest   BacktestConfig `yaml:"backtest"`
	Risk       RiskConfig     `yaml:"risk"`
	Paper      PaperConfig    `yaml:"paper"`
	Assets     AssetConfig    `yaml:"assets"`
	Timeframes []string       `yaml:"timeframes"`
}

type HurstConfig struct {
	Threshold     float64 `yaml:"threshold"`
	MinDataPoints int     `yaml:"min_data_points"`
	// Window > 0 switches the matrix builder to a rolling estimate.
	Window int `yaml:"window"`
}

type CycleConfig struct {
	MinPeriod      int     `yaml:"min_period"`
	MaxPeriod      int     `yaml:"max_period"`
	ProjectionBars int     `yaml:"projection_bars"`
	LowpassCutoff  float64 `yaml:"lowpass_cutoff"`
	Unfiltered     bool    `yaml:"unfiltered"`
}

type FilterConfig struct {
	MacroFilterType  string  `yaml:"macro_filter_type"`
	HTFThreshold     float64 `yaml:"htf_threshold"`
	LTFThreshold     float64 `yaml:"ltf_threshold"`
	VetoThreshold    float64 `yaml:"veto_threshold"`
	HTFMAPeriod      int     `yaml:"htf_ma_period"`
	MomentumLookback int     `yaml:"momentum_lookback"`
	ZScoreWindow     int     `yaml:"zscore_window"`
	IndicatorPeriod  int     `yaml:"indicator_period"`
	PhaseLongCenter  float64 `yaml:"phase_long_center"`
	PhaseShortCenter float64 `yaml:"phase_short_center"`
	PhaseTolerance   float64 `yaml:"phase_tolerance"`
}

type BacktestConfig struct {
	HurstRange              []float64 `yaml:"hurst_range"`
	PhaseLongRange          []float64 `yaml:"phase_long_range"`
	PhaseShortRange         []float64 `yaml:"phase_short_range"`
	TrailingMultiplierRange []float64 `yaml:"trailing_atr_multiplier_range"`
	MacroFilterRange        []string  `yaml:"macro_filter_range"`
	InitialCapital          float64   `yaml:"initial_capital"`
	Commission              float64   `yaml:"commission"`
	OutputDir               string    `yaml:"output_dir"`
	Workers                 int       `yaml:"workers"`
}

type RiskConfig struct {
	RiskPerTrade         float64 `yaml:"risk_per_trade"`
	TrailingMultiplier   float64 `yaml:"trailing_atr_multiplier"`
	BreakevenThreshold   float64 `yaml:"breakeven_atr_threshold"`
	MaxPortfolioExposure float64 `yaml:"max_portfolio_exposure"`
	MaxConcurrentTrades  int     `yaml:"max_concurrent_trades"`
}

// PaperConfig is parsed for completeness; no executor consumes it.
type PaperConfig struct {
	InitialBalance    float64 `yaml:"initial_balance"`
	FixedPositionSize float64 `yaml:"fixed_position_size"`
	UseDynamicSizing  bool    `yaml:"use_dynamic_sizing"`
}

type AssetConfig struct {
	Crypto struct {
		Symbols  []string `yaml:"symbols"`
		Exchange string   `yaml:"exchange"`
	} `yaml:"crypto"`
	Stocks struct {
		Symbols []string `yaml:"symbols"`
	} `yaml:"stocks"`
}

// AllSymbols returns stock symbols followed by crypto symbols.
func (a AssetConfig) AllSymbols() []string {
	out := make([]string, 0, len(a.Stocks.Symbols)+len(a.Crypto.Symbols))
	out = append(out, a.Stocks.Symbols...)
	return append(out, a.Crypto.Symbols...)
}

// Select returns the symbols of one asset class: "crypto", "stock" or "all".
func (a AssetConfig) Select(kind string) ([]string, error) {
	switch kind {
	case "crypto":
		return append([]string(nil), a.Crypto.Symbols...), nil
	case "stock", "stocks":
		return append([]string(nil), a.Stocks.Symbols...), nil
	case "all", "":
		return a.AllSymbols(), nil
	default:
		return nil, fmt.Errorf("%w: unknown asset type %q", ErrInvalidConfig, kind)
	}
}

// DefaultStrategy returns the built-in strategy settings.
func DefaultStrategy() *Strategy {
	s := &Strategy{
		Hurst: HurstConfig{Threshold: 0.6, MinDataPoints: 256},
		Cycle: CycleConfig{MinPeriod: 10, MaxPeriod: 200, ProjectionBars: 20, LowpassCutoff: 0.1},
		Filters: FilterConfig{
			MacroFilterType:  string(domain.MacroFilterBoth),
			HTFThreshold:     50,
			LTFThreshold:     50,
			VetoThreshold:    3.0,
			HTFMAPeriod:      200,
			MomentumLookback: 20,
			ZScoreWindow:     100,
			IndicatorPeriod:  14,
			PhaseLongCenter:  4.712,
			PhaseShortCenter: 1.571,
			PhaseTolerance:   0.785,
		},
		Backtest: BacktestConfig{
			HurstRange:              []float64{0.5, 0.6, 0.7, 0.8, 0.9},
			PhaseLongRange:          []float64{4.0, 4.4, 4.712, 5.0, 5.5},
			PhaseShortRange:         []float64{1.0, 1.3, 1.571, 1.8, 2.1},
			TrailingMultiplierRange: []float64{1.5, 2.0, 2.5, 3.0},
			MacroFilterRange:        []string{"chop", "hurst", "both"},
			InitialCapital:          100_000,
			Commission:              0.001,
			OutputDir:               "data/backtest",
			Workers:                 4,
		},
		Risk: RiskConfig{
			RiskPerTrade:         0.02,
			TrailingMultiplier:   3.0,
			BreakevenThreshold:   2.0,
			MaxPortfolioExposure: 0.06,
			MaxConcurrentTrades:  3,
		},
		Paper:      PaperConfig{InitialBalance: 10_000, FixedPositionSize: 1_000},
		Timeframes: []string{"1m", "5m", "15m", "1h", "4h", "1d"},
	}
	s.Assets.Crypto.Exchange = "binance"
	return s
}

// LoadStrategy reads a strategy file over the defaults. Keys missing from
// the file keep their default value; a missing file yields the defaults.
func LoadStrategy(path string) (*Strategy, error) {
	s := DefaultStrategy()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read strategy file: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse strategy file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate rejects structurally broken settings. Numeric values are
// otherwise passed through unchecked.
func (s *Strategy) Validate() error {
	if _, err := domain.ParseMacroFilter(s.Filters.MacroFilterType); err != nil {
		return fmt.Errorf("%w: filters.macro_filter_type: %v", ErrInvalidConfig, err)
	}
	for _, f := range s.Backtest.MacroFilterRange {
		if _, err := domain.ParseMacroFilter(f); err != nil {
			return fmt.Errorf("%w: backtest.macro_filter_range: %v", ErrInvalidConfig, err)
		}
	}

	grids := map[string]int{
		"backtest.hurst_range":                   len(s.Backtest.HurstRange),
		"backtest.phase_long_range":              len(s.Backtest.PhaseLongRange),
		"backtest.phase_short_range":             len(s.Backtest.PhaseShortRange),
		"backtest.trailing_atr_multiplier_range": len(s.Backtest.TrailingMultiplierRange),
		"backtest.macro_filter_range":            len(s.Backtest.MacroFilterRange),
	}
	for name, n := range grids {
		if n == 0 {
			return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, name)
		}
	}

	if s.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("%w: backtest.initial_capital must be positive", ErrInvalidConfig)
	}
	if s.Backtest.Commission < 0 {
		return fmt.Errorf("%w: backtest.commission must not be negative", ErrInvalidConfig)
	}
	if s.Risk.MaxConcurrentTrades < 0 {
		return fmt.Errorf("%w: risk.max_concurrent_trades must not be negative", ErrInvalidConfig)
	}
	if len(s.Timeframes) == 0 {
		return fmt.Errorf("%w: timeframes is empty", ErrInvalidConfig)
	}
	return nil
}
