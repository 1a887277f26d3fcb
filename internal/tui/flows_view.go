package tui

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/lachiem1/cashflow/internal/currency"
	"github.com/lachiem1/cashflow/internal/sankey"
)

// Lines the flows body prints above the first edge row.
const flowsPreambleLines = 5

func (m model) flowsVisibleRows() int {
	if m.height == 0 {
		return 12
	}
	used := 2 + m.headerHeight() + flowsPreambleLines + 2
	if strings.TrimSpace(m.commandText) != "" {
		used += 3
	}
	return max(3, m.height-used)
}

// flowsRowsTop is the terminal row of the first rendered edge.
func (m model) flowsRowsTop() int {
	return 1 + m.headerHeight() + flowsPreambleLines
}

func (m *model) ensureFlowsScrollWindow() {
	visible := m.flowsVisibleRows()
	if m.flowsCursor < m.flowsOffset {
		m.flowsOffset = m.flowsCursor
	}
	if m.flowsCursor >= m.flowsOffset+visible {
		m.flowsOffset = m.flowsCursor - visible + 1
	}
	m.flowsOffset = clamp(m.flowsOffset, 0, max(0, len(m.flows)-visible))
}

func (m model) handleFlowsKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "up", "k":
		if m.flowsCursor > 0 {
			m.flowsCursor--
		}
	case "down", "j":
		if m.flowsCursor < len(m.flows)-1 {
			m.flowsCursor++
		}
	case "pgup":
		m.flowsCursor = max(0, m.flowsCursor-m.flowsVisibleRows())
	case "pgdown":
		m.flowsCursor = clamp(m.flowsCursor+m.flowsVisibleRows(), 0, len(m.flows)-1)
	case "home", "g":
		m.flowsCursor = 0
	case "end", "G":
		m.flowsCursor = max(0, len(m.flows)-1)
	case "enter", "x":
		return m.removeFlowAt(m.flowsCursor)
	}
	m.ensureFlowsScrollWindow()
	return m, nil
}

// removeFlowAt hides the category behind the edge at idx with its subtree.
func (m model) removeFlowAt(idx int) (tea.Model, tea.Cmd) {
	if idx < 0 || idx >= len(m.flows) {
		return m, nil
	}
	cat := m.flows[idx].Custom.Category
	if cat == nil {
		return m, nil
	}
	id, name := cat.ID, cat.Name
	session := m.session
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), defaultMutationTimeout)
		defer cancel()
		ev, ok, err := session.RemoveCategory(ctx, id)
		if err != nil {
			return mutationDoneMsg{err: err}
		}
		if !ok {
			return mutationDoneMsg{text: "the main node cannot be hidden"}
		}
		return mutationDoneMsg{text: fmt.Sprintf("hid %s (%d categories)", name, len(ev.ChildCategoryIDs))}
	}
}

func (m model) nodeNames() map[string]string {
	names := make(map[string]string, len(m.chart.Nodes))
	for _, n := range m.chart.Nodes {
		names[n.ID] = n.Name
	}
	return names
}

func (m model) renderFlowsScreen(width int) string {
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	inStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#5CCB76"))
	outStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F15B5B"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD54A"))

	balance := m.chart.Balance
	balanceStyle := inStyle
	if balance < 0 {
		balanceStyle = outStyle
	}
	scaling := "total"
	if m.chart.Scaled {
		scaling = fmt.Sprintf("per month (/%g)", m.chart.ScalingFactor)
	}

	lines := []string{
		renderScreenTitle("flows"),
		labelStyle.Render("balance: ") + balanceStyle.Render(currency.Format(balance, m.chart.Currency)) +
			labelStyle.Render("   amounts: ") + scaling +
			labelStyle.Render("   threshold: ") + currency.Format(m.chart.Threshold, m.chart.Currency),
	}
	if len(m.flows) == 0 {
		lines = append(lines, "", hintLine("No flows above the threshold. Lower it in settings or :reset."))
		return strings.Join(lines, "\n")
	}
	lines = append(lines, "")

	names := m.nodeNames()
	peak := 0.0
	for _, e := range m.flows {
		peak = math.Max(peak, e.Weight)
	}

	labelWidth := max(16, min(40, width/3))
	amountWidth := 14
	pctWidth := 7
	barWidth := max(4, width-labelWidth-amountWidth-pctWidth-8)

	visible := m.flowsVisibleRows()
	end := min(len(m.flows), m.flowsOffset+visible)
	rows := make([]string, 0, end-m.flowsOffset)
	for i := m.flowsOffset; i < end; i++ {
		e := m.flows[i]
		label := ansi.Truncate(names[e.From]+" » "+names[e.To], labelWidth, "…")
		style := inStyle
		if e.Outgoing {
			style = outStyle
		}
		pct := ""
		if e.Outgoing {
			if share, ok := sankey.Percentage(m.flows, e.To); ok {
				pct = currency.Percent(share)
			}
		}
		bar := renderFlowBar(e.Weight, peak, barWidth)
		if flowFlagged(e, m.chart.Warnings) {
			label = warnStyle.Render("! ") + label
		} else {
			label = "  " + label
		}
		row := fmt.Sprintf("%s %s %s %s",
			lipgloss.NewStyle().Width(labelWidth+2).Render(label),
			style.Render(bar),
			lipgloss.NewStyle().Width(amountWidth).Align(lipgloss.Right).Render(currency.Format(e.Custom.Real, m.chart.Currency)),
			lipgloss.NewStyle().Width(pctWidth).Align(lipgloss.Right).Render(pct),
		)
		if i == m.flowsCursor {
			row = lipgloss.NewStyle().Background(lipgloss.Color("#263249")).Render(row)
		}
		rows = append(rows, row)
	}
	lines = append(lines, strings.Join(rows, "\n"), "",
		hintLine(fmt.Sprintf("%d-%d of %d flows  enter/x or click: hide category  ?: help", m.flowsOffset+1, end, len(m.flows))))
	return strings.Join(lines, "\n")
}

func flowFlagged(e sankey.Edge, warnings map[string][]string) bool {
	if e.Custom.Category == nil {
		return false
	}
	_, ok := warnings[strconv.FormatInt(e.Custom.Category.ID, 10)]
	return ok
}

func renderFlowBar(weight, peak float64, width int) string {
	if peak <= 0 || width <= 0 {
		return strings.Repeat(" ", max(0, width))
	}
	filled := int(math.Round(weight / peak * float64(width)))
	filled = clamp(filled, 1, width)
	return strings.Repeat("█", filled) + strings.Repeat(" ", width-filled)
}
