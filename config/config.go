package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the immutable runtime configuration. Change it with Apply.
type Config struct {
	Global  GlobalConfig            `yaml:"global"`
	Symbols map[string]SymbolConfig `yaml:"symbols"`
	App     AppConfig               `yaml:"app"`
}

// GlobalConfig holds account-wide limits.
type GlobalConfig struct {
	MinEquityPct          float64            `yaml:"min_equity_pct"`
	MaxDrawdownPct        float64            `yaml:"max_drawdown_pct"`
	DailyTargetPct        float64            `yaml:"daily_target_pct"`
	MaxDailyLossPct       *float64           `yaml:"max_daily_loss_pct,omitempty"`
	MaxDailyLossAbs       *float64           `yaml:"max_daily_loss_abs,omitempty"`
	KillswitchEnabled     bool               `yaml:"killswitch_enabled"`
	KillswitchDDLimitPct  float64            `yaml:"killswitch_dd_limit_pct"`
	KillswitchWindowHours float64            `yaml:"killswitch_window_hours"`
	MaxLotsPct            float64            `yaml:"max_lots_pct"`
	MaxOrdersTotal        int                `yaml:"max_orders_total,omitempty"`
	CooldownSeconds       float64            `yaml:"cooldown_seconds,omitempty"`
	DecisionThreshold     float64            `yaml:"decision_threshold"`
	ATRThreshold          float64            `yaml:"atr_threshold"`
	ADXThreshold          float64            `yaml:"adx_threshold"`
	Weights               map[string]float64 `yaml:"weights,omitempty"`
	AllowedSymbols        []string           `yaml:"allowed_symbols"`
	CorrelationRisk       CorrelationConfig  `yaml:"correlation_risk"`
	Exit                  GlobalExitConfig   `yaml:"exit"`
}

// CorrelationConfig lists instrument pairs that must not hold simultaneous entries.
type CorrelationConfig struct {
	Enabled bool       `yaml:"enabled"`
	Pairs   [][]string `yaml:"pairs"`
}

// GlobalExitConfig holds exit settings shared by every symbol.
type GlobalExitConfig struct {
	SevereLossPct float64 `yaml:"severe_loss_pct"`
}

// SymbolConfig holds per-instrument settings.
type SymbolConfig struct {
	PipSize          float64            `yaml:"pip_size"`
	Digits           int                `yaml:"digits"`
	ATRThreshold     float64            `yaml:"atr_threshold"`
	ADXThreshold     float64            `yaml:"adx_threshold"`
	LastATR          *float64           `yaml:"last_atr,omitempty"`
	ATRMA            *float64           `yaml:"atr_ma,omitempty"`
	Indicators       IndicatorConfig    `yaml:"indicators"`
	Risk             RiskConfig         `yaml:"risk"`
	Portfolio        PortfolioConfig    `yaml:"portfolio"`
	Exit             ExitConfig         `yaml:"exit"`
	IntegrationMode  string             `yaml:"integration_mode"`
	MaxNumEntries    *int               `yaml:"max_num_entries,omitempty"`
	PriorityDecision string             `yaml:"priority_decision,omitempty"`
	PriorityStrategy string             `yaml:"priority_strategy,omitempty"`
	PriorityFallback bool               `yaml:"priority_fallback,omitempty"`
	GlobalReversal   bool               `yaml:"global_reversal,omitempty"`
	Weights          map[string]float64 `yaml:"weights,omitempty"`
}

// IndicatorConfig holds strategy input thresholds.
type IndicatorConfig struct {
	ATR ThresholdConfig `yaml:"atr"`
	ADX ThresholdConfig `yaml:"adx"`
	RSI RSIConfig       `yaml:"rsi"`
}

// ThresholdConfig is a minimum value below which a strategy stands aside.
type ThresholdConfig struct {
	MinThreshold float64 `yaml:"min_threshold"`
}

// RSIConfig overrides the strategy RSI levels when set.
type RSIConfig struct {
	Bull *float64 `yaml:"bull_level,omitempty"`
	Bear *float64 `yaml:"bear_level,omitempty"`
}

// RiskConfig drives lot sizing and the per-symbol risk guard.
type RiskConfig struct {
	RiskPercent     float64 `yaml:"risk_percent"`
	MinLot          float64 `yaml:"min_lot"`
	MaxLot          float64 `yaml:"max_lot"`
	MaxOrders       int     `yaml:"max_orders"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`
	CooldownMinutes float64 `yaml:"cooldown_minutes"`
}

// PortfolioConfig drives the portfolio gate and leg scaling.
type PortfolioConfig struct {
	MaxRiskPct float64 `yaml:"max_risk_pct"`
	MaxOrders  int     `yaml:"max_orders"`
	SeriesMode string  `yaml:"series_mode"`
	MaxSymbols int     `yaml:"max_symbols"`
}

// ExitConfig drives stop-loss and take-profit placement.
type ExitConfig struct {
	SLATR    float64        `yaml:"sl_atr"`
	TPSteps  []float64      `yaml:"tp_steps"`
	TPPerc   []float64      `yaml:"tp_perc"`
	Trailing TrailingConfig `yaml:"trailing"`
}

// TrailingConfig drives trailing stop adjustments. Distances are in pips.
type TrailingConfig struct {
	Enabled   bool    `yaml:"enabled"`
	ATRMult   float64 `yaml:"atr_mult"`
	Breakeven float64 `yaml:"breakeven"`
}

// AppConfig holds process wiring settings.
type AppConfig struct {
	JournalDir         string        `yaml:"journal_dir"`
	DBPath             string        `yaml:"db_path"`
	HTTPAddr           string        `yaml:"http_addr"`
	Feed               string        `yaml:"feed"`
	FeedTimeout        time.Duration `yaml:"feed_timeout"`
	RegimeModelPath    string        `yaml:"regime_model_path,omitempty"`
	MetaModelPath      string        `yaml:"meta_model_path,omitempty"`
	DecisionSchedule   string        `yaml:"decision_schedule"`
	TrailingSchedule   string        `yaml:"trailing_schedule"`
	DailyResetSchedule string        `yaml:"daily_reset_schedule"`
	PaperBalance       float64       `yaml:"paper_balance"`
	PaperStateDir      string        `yaml:"paper_state_dir"`
	ATRPeriod          int           `yaml:"atr_period"`
}

// Load reads a YAML config file, fills defaults and validates the result.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(raw)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(raw []byte) (Config, error) {
	tree := map[string]any{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return Config{}, errors.Wrap(err, "decode yaml config")
	}
	return fromTree(tree)
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	cfg, err := fromTree(map[string]any{})
	if err != nil {
		// defaults are static and always valid
		panic(err)
	}
	return cfg
}

// Symbol returns the settings for symbol, falling back to defaults for unknown symbols.
func (c Config) Symbol(symbol string) SymbolConfig {
	if s, ok := c.Symbols[symbol]; ok {
		return s
	}
	return defaultSymbol()
}

// SymbolNames returns configured symbols in sorted order.
func (c Config) SymbolNames() []string {
	names := make([]string, 0, len(c.Symbols))
	for name := range c.Symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks value ranges that would make the pipeline misbehave.
func (c Config) Validate() error {
	g := c.Global
	if g.MinEquityPct < 0 || g.MinEquityPct > 100 {
		return fmt.Errorf("incorrect 'global.min_equity_pct' param in yaml config (must be within 0..100), got %v", g.MinEquityPct)
	}
	if g.MaxDrawdownPct <= 0 {
		return fmt.Errorf("incorrect 'global.max_drawdown_pct' param in yaml config (must be positive), got %v", g.MaxDrawdownPct)
	}
	if g.KillswitchWindowHours <= 0 {
		return fmt.Errorf("incorrect 'global.killswitch_window_hours' param in yaml config (must be positive), got %v", g.KillswitchWindowHours)
	}
	if g.DecisionThreshold < 0 {
		return fmt.Errorf("incorrect 'global.decision_threshold' param in yaml config (must not be negative), got %v", g.DecisionThreshold)
	}
	for i, pair := range g.CorrelationRisk.Pairs {
		if len(pair) != 2 {
			return fmt.Errorf("incorrect 'global.correlation_risk.pairs[%d]' param in yaml config (must list two symbols)", i)
		}
	}

	for _, name := range c.SymbolNames() {
		if err := c.Symbols[name].validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (s SymbolConfig) validate(name string) error {
	if s.PipSize <= 0 {
		return fmt.Errorf("incorrect 'symbols.%s.pip_size' param in yaml config (must be positive), got %v", name, s.PipSize)
	}
	if s.Digits < 0 || s.Digits > 10 {
		return fmt.Errorf("incorrect 'symbols.%s.digits' param in yaml config (must be within 0..10), got %d", name, s.Digits)
	}
	if s.Risk.MinLot <= 0 || s.Risk.MaxLot < s.Risk.MinLot {
		return fmt.Errorf("incorrect 'symbols.%s.risk' lot bounds in yaml config (need 0 < min_lot <= max_lot), got %v..%v",
			name, s.Risk.MinLot, s.Risk.MaxLot)
	}
	if s.Risk.RiskPercent < 0 {
		return fmt.Errorf("incorrect 'symbols.%s.risk.risk_percent' param in yaml config (must not be negative), got %v", name, s.Risk.RiskPercent)
	}
	if s.Exit.SLATR <= 0 {
		return fmt.Errorf("incorrect 'symbols.%s.exit.sl_atr' param in yaml config (must be positive), got %v", name, s.Exit.SLATR)
	}
	if len(s.Exit.TPSteps) == 0 {
		return fmt.Errorf("incorrect 'symbols.%s.exit.tp_steps' param in yaml config (at least one step required)", name)
	}
	if s.MaxNumEntries != nil && *s.MaxNumEntries < 0 {
		return fmt.Errorf("incorrect 'symbols.%s.max_num_entries' param in yaml config (must not be negative), got %d", name, *s.MaxNumEntries)
	}
	return nil
}
