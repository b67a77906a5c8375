package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/fusiontrader/config"
	"gopkg.in/yaml.v3"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers collects the wizard input. Numeric fields stay strings until Patch.
type Answers struct {
	Symbols         []string
	IntegrationMode string
	RiskPercent     string
	MaxOrders       string
	Killswitch      bool
	Feed            string
	PaperBalance    string
	HTTPAddr        string
}

// DefaultAnswers pre-fills the wizard.
func DefaultAnswers() Answers {
	return Answers{
		Symbols:         []string{config.SymbolBTC, config.SymbolXAU},
		IntegrationMode: config.ModeHybrid,
		RiskPercent:     "1",
		MaxOrders:       "1",
		Killswitch:      true,
		Feed:            "./feed.json",
		PaperBalance:    "10000",
		HTTPAddr:        ":8080",
	}
}

// Patch converts the answers into a config patch.
func (a Answers) Patch() (config.Patch, error) {
	if len(a.Symbols) == 0 {
		return nil, errors.New("at least one symbol is required")
	}
	risk, err := parsePositive(a.RiskPercent, "risk percent")
	if err != nil {
		return nil, err
	}
	balance, err := parsePositive(a.PaperBalance, "paper balance")
	if err != nil {
		return nil, err
	}
	maxOrders, err := strconv.Atoi(strings.TrimSpace(a.MaxOrders))
	if err != nil || maxOrders <= 0 {
		return nil, fmt.Errorf("max orders must be a positive integer, got %q", a.MaxOrders)
	}

	symbols := map[string]any{}
	for _, s := range a.Symbols {
		symbols[s] = map[string]any{
			"integration_mode": a.IntegrationMode,
			"risk": map[string]any{
				"risk_percent": risk,
				"max_orders":   maxOrders,
			},
		}
	}

	return config.Patch{
		"global": map[string]any{
			"allowed_symbols":    append([]string(nil), a.Symbols...),
			"killswitch_enabled": a.Killswitch,
		},
		"symbols": symbols,
		"app": map[string]any{
			"feed":          strings.TrimSpace(a.Feed),
			"paper_balance": balance,
			"http_addr":     strings.TrimSpace(a.HTTPAddr),
		},
	}, nil
}

// Render builds the full YAML config for the answers.
func Render(a Answers) ([]byte, error) {
	patch, err := a.Patch()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Default().Apply(patch)
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate yaml")
	}
	return data, nil
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) error {
	a := DefaultAnswers()
	var confirm bool

	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("FUSIONTRADER CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Paper trading setup. Everything can be changed later with --set.\n"))

	fmt.Println(stepStyle.Render("STEP 1: INSTRUMENTS"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Symbols to trade").
				Options(
					huh.NewOption("Bitcoin (BTCUSDc)", config.SymbolBTC).Selected(true),
					huh.NewOption("Gold (XAUUSDc)", config.SymbolXAU).Selected(true),
				).
				Value(&a.Symbols).
				Validate(func(s []string) error {
					if len(s) == 0 {
						return fmt.Errorf("pick at least one symbol")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Strategy integration mode").
				Options(
					huh.NewOption("Hybrid (regime picks the strategy)", config.ModeHybrid),
					huh.NewOption("Strict (all strategies agree)", config.ModeStrict),
					huh.NewOption("Majority", config.ModeMajority),
					huh.NewOption("Priority", config.ModePriority),
				).
				Value(&a.IntegrationMode),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("FUSIONTRADER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: RISK"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Risk % per trade").
				Description("Share of balance risked at the stop loss (e.g. 1)").
				Value(&a.RiskPercent).
				Validate(validatePositive),
			huh.NewInput().
				Title("Max open orders per symbol").
				Value(&a.MaxOrders),
			huh.NewConfirm().
				Title("Enable drawdown kill-switch?").
				Value(&a.Killswitch),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("FUSIONTRADER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: RUNTIME"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Market feed").
				Description("JSON file path or http(s) URL").
				Value(&a.Feed),
			huh.NewInput().
				Title("Paper balance").
				Value(&a.PaperBalance).
				Validate(validatePositive),
			huh.NewInput().
				Title("Dashboard address").
				Description("Leave empty to disable the HTTP server").
				Value(&a.HTTPAddr),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("FUSIONTRADER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Symbols: %s\nMode: %s\nRisk: %s%%\nFeed: %s\nBalance: %s\n",
		strings.Join(a.Symbols, ", "), a.IntegrationMode, a.RiskPercent, a.Feed, a.PaperBalance,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	data, err := Render(a)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", path)))
	return nil
}

func validatePositive(s string) error {
	_, err := parsePositive(s, "value")
	return err
}

func parsePositive(s, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number", name)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return v, nil
}
