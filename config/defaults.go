package config

import (
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	SymbolBTC = "BTCUSDc"
	SymbolXAU = "XAUUSDc"

	ModeStrict   = "strict"
	ModeMajority = "majority"
	ModePriority = "priority"
	ModeHybrid   = "hybrid"

	SeriesStrict  = "strict"
	SeriesScaling = "scaling"
)

func defaultGlobal() GlobalConfig {
	return GlobalConfig{
		MinEquityPct:          50,
		MaxDrawdownPct:        20,
		DailyTargetPct:        999,
		KillswitchEnabled:     true,
		KillswitchDDLimitPct:  10,
		KillswitchWindowHours: 6,
		MaxLotsPct:            5,
		DecisionThreshold:     0.05,
		ATRThreshold:          1.0,
		ADXThreshold:          20,
		AllowedSymbols:        []string{SymbolBTC, SymbolXAU},
		CorrelationRisk: CorrelationConfig{
			Enabled: true,
			Pairs:   [][]string{{SymbolBTC, SymbolXAU}},
		},
		Exit: GlobalExitConfig{SevereLossPct: -0.15},
	}
}

func defaultSymbol() SymbolConfig {
	return SymbolConfig{
		PipSize:      0.0001,
		Digits:       5,
		ATRThreshold: 1.0,
		ADXThreshold: 20,
		Risk: RiskConfig{
			RiskPercent:     1.0,
			MinLot:          0.01,
			MaxLot:          0.5,
			MaxOrders:       5,
			MaxDailyLossPct: 5.0,
			CooldownMinutes: 15,
		},
		Portfolio: PortfolioConfig{
			MaxRiskPct: 0.3,
			MaxOrders:  1,
			SeriesMode: SeriesStrict,
			MaxSymbols: 3,
		},
		Exit: ExitConfig{
			SLATR:   1.5,
			TPSteps: []float64{1.0, 2.0, 3.0},
			TPPerc:  []float64{40, 30, 30},
			Trailing: TrailingConfig{
				Enabled: true,
				ATRMult: 1.5,
			},
		},
		IntegrationMode: ModeHybrid,
	}
}

func defaultApp() AppConfig {
	return AppConfig{
		JournalDir:         "./wal/decisions",
		DBPath:             "./fusiontrader.db",
		HTTPAddr:           ":8080",
		FeedTimeout:        10 * time.Second,
		DecisionSchedule:   "@every 30s",
		TrailingSchedule:   "@every 10s",
		DailyResetSchedule: "0 0 0 * * *",
		PaperBalance:       10000,
		PaperStateDir:      "./wal/paper",
		ATRPeriod:          14,
	}
}

// fromTree layers tree over the defaults and decodes the typed config.
func fromTree(tree map[string]any) (Config, error) {
	base := map[string]any{
		"global": mustTree(defaultGlobal()),
		"app":    mustTree(defaultApp()),
	}

	symbols := map[string]any{}
	if raw, ok := asMap(tree["symbols"]); ok {
		for name := range raw {
			symbols[name] = mustTree(defaultSymbol())
		}
	}
	base["symbols"] = symbols

	merged := deepMerge(base, tree)

	payload, err := yaml.Marshal(merged)
	if err != nil {
		return Config{}, errors.Wrap(err, "encode merged config")
	}
	var cfg Config
	if err := yaml.Unmarshal(payload, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode merged config")
	}
	if cfg.Symbols == nil {
		cfg.Symbols = map[string]SymbolConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func toTree(v any) (map[string]any, error) {
	payload, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(payload, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func mustTree(v any) map[string]any {
	tree, err := toTree(v)
	if err != nil {
		panic(err)
	}
	return tree
}
