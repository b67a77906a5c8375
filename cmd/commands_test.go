package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

const feedJSON = `{"symbols": [{
  "symbol": "BTCUSDc", "bid": 50000, "ask": 50001, "spread": 1,
  "timeframes": {"H1": {"atr": 40, "adx": 30, "rsi": 75}}
}]}`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func isolated(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	return []string{
		"--set", "app.journal_dir=" + filepath.Join(dir, "journal"),
		"--set", "app.paper_state_dir=" + filepath.Join(dir, "paper"),
		"--set", "app.db_path=" + filepath.Join(dir, "decisions.db"),
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version)
}

func TestConfigShow_AppliesSet(t *testing.T) {
	out, err := execute(t, "config", "show", "--set", "global.min_equity_pct=45")
	require.NoError(t, err)

	cfg, err := config.Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, 45.0, cfg.Global.MinEquityPct)
}

func TestConfig_ExplicitMissingFileFails(t *testing.T) {
	_, err := execute(t, "config", "validate", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestDecideThenJournal(t *testing.T) {
	feed := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(feed, []byte(feedJSON), 0o600))
	common := isolated(t)

	out, err := execute(t, append([]string{"decide", "--feed", feed, "--json"}, common...)...)
	require.NoError(t, err)

	var decisions []domain.FinalDecision
	require.NoError(t, json.Unmarshal([]byte(out), &decisions))
	require.Len(t, decisions, 1)
	assert.Equal(t, config.SymbolBTC, decisions[0].Symbol)
	assert.Equal(t, domain.DecisionBuy, decisions[0].Decision)

	out, err = execute(t, append([]string{"journal"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, config.SymbolBTC)
	assert.Contains(t, out, "BUY")
}

func TestDecide_RequiresFeed(t *testing.T) {
	_, err := execute(t, append([]string{"decide"}, isolated(t)...)...)
	require.Error(t, err)
}
