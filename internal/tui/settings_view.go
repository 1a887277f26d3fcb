package tui

import (
	"context"
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lachiem1/cashflow/internal/currency"
	"github.com/lachiem1/cashflow/internal/settings"
)

const thresholdSteps = 50

// thresholdStep moves the threshold by one slider notch. The position is
// clamped to the calibrated bounds before and after the move.
func (m model) thresholdStep(direction int) (float64, bool) {
	if !m.hasBounds {
		return 0, false
	}
	span := m.bounds.Max - m.bounds.Min
	if span <= 0 {
		return m.bounds.Min, true
	}
	step := span / thresholdSteps
	current := m.bounds.Clamp(m.chart.Threshold)
	next := m.bounds.Clamp(current + float64(direction)*step)
	return math.Round(next*100) / 100, true
}

func (m model) handleSettingsKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "up", "k":
		m.settingsFocus = (m.settingsFocus + settingsFocusCount - 1) % settingsFocusCount
		return m, nil
	case "down", "j":
		m.settingsFocus = (m.settingsFocus + 1) % settingsFocusCount
		return m, nil
	}

	switch m.settingsFocus {
	case settingsFocusThreshold:
		direction := 0
		switch key {
		case "left", "h", "-":
			direction = -1
		case "right", "l", "+":
			direction = 1
		case "0":
			return m, m.setThresholdCmd(0)
		default:
			return m, nil
		}
		next, ok := m.thresholdStep(direction)
		if !ok {
			return m.withCommandFeedback("no outflows to calibrate the threshold against")
		}
		return m, m.setThresholdCmd(next)

	case settingsFocusScaling:
		if key != "enter" && key != " " && key != "left" && key != "right" {
			return m, nil
		}
		scaled := !m.chart.Scaled
		text := "showing totals"
		if scaled {
			text = "showing monthly averages"
		}
		return m, m.mutateCmd(text, func(ctx context.Context) error {
			return m.session.SetScaled(ctx, scaled)
		})

	case settingsFocusSort:
		if key != "enter" && key != " " && key != "left" && key != "right" {
			return m, nil
		}
		next := settings.SortByAmount
		if m.chart.SortKey == settings.SortByAmount {
			next = settings.SortByPath
		}
		return m, m.mutateCmd("sorting by "+string(next), func(ctx context.Context) error {
			return m.session.SetSortKey(ctx, next)
		})
	}
	return m, nil
}

func (m model) setThresholdCmd(value float64) tea.Cmd {
	return m.mutateCmd("", func(ctx context.Context) error {
		return m.session.SetThreshold(ctx, value)
	})
}

func (m model) renderSettingsScreen(width int) string {
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	focusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD54A")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))

	label := func(idx int, text string) string {
		if idx == m.settingsFocus {
			return focusStyle.Render("> " + text)
		}
		return labelStyle.Render("  " + text)
	}

	cur := m.chart.Currency
	sliderWidth := max(10, min(60, width-30))
	threshold := label(settingsFocusThreshold, "threshold") + "  " +
		valueStyle.Render(currency.Format(m.chart.Threshold, cur))
	sliderLine := "    " + hintLine("no outflows yet")
	if m.hasBounds {
		sliderLine = fmt.Sprintf("    %s %s %s",
			hintLine(currency.Format(m.bounds.Min, cur)),
			renderSlider(m.bounds.Min, m.bounds.Max, m.chart.Threshold, sliderWidth),
			hintLine(currency.Format(m.bounds.Max, cur)))
	}

	scaling := "totals"
	if m.chart.Scaled {
		scaling = fmt.Sprintf("monthly averages over %d months", m.chart.Summary.Months)
	}
	sortBy := "category path"
	if m.chart.SortKey == settings.SortByAmount {
		sortBy = "amount"
	}

	lines := []string{
		renderScreenTitle("settings"),
		"",
		threshold,
		sliderLine,
		"",
		label(settingsFocusScaling, "amounts") + "    " + valueStyle.Render(scaling),
		"",
		label(settingsFocusSort, "sort by") + "    " + valueStyle.Render(sortBy),
		"",
		labelStyle.Render("  currency") + "   " + valueStyle.Render(cur),
		"",
		hintLine("↑/↓: select  ←/→: adjust threshold  0: no threshold  enter: toggle  :reset restores defaults"),
	}
	return strings.Join(lines, "\n")
}

func renderSlider(lo, hi, value float64, width int) string {
	track := []rune(strings.Repeat("─", width))
	pos := 0
	if hi > lo {
		v := math.Min(math.Max(value, lo), hi)
		pos = int(math.Round((v - lo) / (hi - lo) * float64(width-1)))
	}
	pos = clamp(pos, 0, width-1)
	filled := lipgloss.NewStyle().Foreground(lipgloss.Color("#F47A60")).Render(string(track[:pos]))
	knob := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD54A")).Bold(true).Render("●")
	rest := lipgloss.NewStyle().Foreground(lipgloss.Color("#4B5563")).Render(string(track[pos+1:]))
	return filled + knob + rest
}
