package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

var (
	borderColor = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	buyColor    = lipgloss.Color("#73F59F")
	sellColor   = lipgloss.Color("#FF6B6B")
	mutedColor  = lipgloss.Color("#888888")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(borderColor).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

var decisionHeaders = []string{"SYMBOL", "DECISION", "CONF", "ENTRY", "LOT", "SL", "TP", "MODE", "REGIME", "REASON"}

func decisionRows(ds []domain.FinalDecision) [][]string {
	rows := make([][]string, 0, len(ds))
	for _, d := range ds {
		rows = append(rows, []string{
			d.Symbol,
			string(d.Decision),
			strconv.FormatFloat(d.Confidence, 'f', 3, 64),
			formatPrice(d.Entry),
			formatLot(d.Lot),
			formatSL(d.SL),
			formatTP(d.TP),
			d.Mode,
			string(d.Regime),
			d.Reason,
		})
	}
	return rows
}

// renderDecisions draws decisions as a colored table.
func renderDecisions(ds []domain.FinalDecision) string {
	rows := decisionRows(ds)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers(decisionHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col != 1 || row < 0 || row >= len(rows) {
				return cellStyle
			}
			switch domain.Decision(rows[row][1]) {
			case domain.DecisionBuy:
				return cellStyle.Foreground(buyColor).Bold(true)
			case domain.DecisionSell, domain.DecisionCloseAll:
				return cellStyle.Foreground(sellColor).Bold(true)
			default:
				return cellStyle.Foreground(mutedColor)
			}
		})

	return titleStyle.Render(fmt.Sprintf("%d decision(s)", len(ds))) + "\n" + t.Render()
}

func journalRows(records []domain.DecisionEventRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		switch ev := r.Event.(type) {
		case domain.FinalDecision:
			rows = append(rows, []string{
				strconv.FormatUint(r.Index, 10),
				ev.Timestamp.Format("2006-01-02 15:04:05"),
				string(r.Type),
				ev.Symbol,
				string(ev.Decision),
				ev.Reason,
			})
		case domain.OverrideEvent:
			keys := make([]string, 0, len(ev.Patch))
			for k := range ev.Patch {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			rows = append(rows, []string{
				strconv.FormatUint(r.Index, 10),
				ev.Timestamp.Format("2006-01-02 15:04:05"),
				string(r.Type),
				"",
				"",
				"patch " + strings.Join(keys, ","),
			})
		}
	}
	return rows
}

// renderJournal draws journal records as a table.
func renderJournal(records []domain.DecisionEventRecord) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers("#", "TIME", "TYPE", "SYMBOL", "DECISION", "DETAIL").
		Rows(journalRows(records)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

func formatPrice(v float64) string {
	if v == 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatLot(v float64) string {
	if v == 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatSL(sl *float64) string {
	if sl == nil {
		return "-"
	}
	return strconv.FormatFloat(*sl, 'f', -1, 64)
}

func formatTP(tp []float64) string {
	if len(tp) == 0 {
		return "-"
	}
	parts := make([]string, len(tp))
	for i, v := range tp {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, " / ")
}
