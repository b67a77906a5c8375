package setup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/fusiontrader/config"
)

func TestRender_ProducesLoadableConfig(t *testing.T) {
	a := DefaultAnswers()
	a.Symbols = []string{config.SymbolXAU}
	a.IntegrationMode = config.ModeMajority
	a.RiskPercent = "0.5"
	a.MaxOrders = "2"
	a.Killswitch = false
	a.HTTPAddr = ""

	data, err := Render(a)
	require.NoError(t, err)

	cfg, err := config.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, []string{config.SymbolXAU}, cfg.SymbolNames())
	xau := cfg.Symbol(config.SymbolXAU)
	assert.Equal(t, config.ModeMajority, xau.IntegrationMode)
	assert.Equal(t, 0.5, xau.Risk.RiskPercent)
	assert.Equal(t, 2, xau.Risk.MaxOrders)
	assert.False(t, cfg.Global.KillswitchEnabled)
	assert.Equal(t, []string{config.SymbolXAU}, cfg.Global.AllowedSymbols)
	assert.Equal(t, "", cfg.App.HTTPAddr)
	assert.Equal(t, 10000.0, cfg.App.PaperBalance)
	assert.Equal(t, config.Default().App.FeedTimeout, cfg.App.FeedTimeout)
}

func TestAnswersPatch_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Answers)
	}{
		{"no symbols", func(a *Answers) { a.Symbols = nil }},
		{"bad risk", func(a *Answers) { a.RiskPercent = "abc" }},
		{"negative balance", func(a *Answers) { a.PaperBalance = "-5" }},
		{"zero orders", func(a *Answers) { a.MaxOrders = "0" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := DefaultAnswers()
			tt.mutate(&a)
			_, err := a.Patch()
			require.Error(t, err)
		})
	}
}
