package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var smallGlyphs = map[rune][3]string{
	'A': {"▄▀█", "█▀█", "▀ ▀"},
	'C': {"█▀▀", "█▄▄", "▀▀▀"},
	'E': {"█▀▀", "██▄", "▀▀▀"},
	'F': {"█▀▀", "█▀ ", "▀  "},
	'G': {"█▀▀", "█▄█", "▀▀▀"},
	'H': {"█ █", "█▀█", "▀ ▀"},
	'I': {"█", "█", "▀"},
	'L': {"█  ", "█▄▄", "▀▀▀"},
	'N': {"█▄ █", "█ ▀█", "▀  ▀"},
	'O': {"█▀█", "█▄█", "▀▀▀"},
	'R': {"█▀█", "█▀▄", "▀ ▀"},
	'S': {"█▀▀", "▀▀█", "▀▀▀"},
	'T': {"▀█▀", " █ ", " ▀ "},
	'W': {"█ █ █", "▀▄▀▄▀", "     "},
}

// renderGlyphTitle draws word in the three row block font. Unknown runes
// are skipped.
func renderGlyphTitle(word string) []string {
	rows := make([]string, 3)
	for _, ch := range strings.ToUpper(word) {
		glyph, ok := smallGlyphs[ch]
		if !ok {
			continue
		}
		for i := range rows {
			if rows[i] != "" {
				rows[i] += " "
			}
			rows[i] += glyph[i]
		}
	}
	return rows
}

func renderBlockTitle() string {
	raw := renderGlyphTitle("cashflow")
	return renderStyledBlockTitle(raw, segmentRuns(raw[0]))
}

func renderScreenTitle(word string) string {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#87CEEB")).
		Bold(true)
	raw := renderGlyphTitle(word)
	rows := make([]string, 0, len(raw))
	for _, line := range raw {
		rows = append(rows, style.Render(line))
	}
	return strings.Join(rows, "\n")
}

func renderStyledBlockTitle(raw []string, segments [][2]int) string {
	coral := lipgloss.NewStyle().Foreground(lipgloss.Color("#F47A60")).Bold(true)
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD54A")).Bold(true)

	rows := make([]string, 0, len(raw))
	for _, line := range raw {
		var out strings.Builder
		for idx, ch := range []rune(line) {
			if ch == ' ' {
				out.WriteRune(' ')
				continue
			}
			fill := coral
			if segmentForIndex(idx, segments)%2 == 1 {
				fill = yellow
			}
			out.WriteString(fill.Render(string(ch)))
		}
		rows = append(rows, out.String())
	}
	return strings.Join(rows, "\n")
}

// segmentRuns splits a line into its runs of non-space runes.
func segmentRuns(line string) [][2]int {
	runes := []rune(line)
	segments := make([][2]int, 0, 8)
	start := -1
	for i, ch := range runes {
		if ch != ' ' {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			segments = append(segments, [2]int{start, i - 1})
			start = -1
		}
	}
	if start != -1 {
		segments = append(segments, [2]int{start, len(runes) - 1})
	}
	if len(segments) == 0 {
		return [][2]int{{0, max(0, len(runes)-1)}}
	}
	return segments
}

func segmentForIndex(index int, segments [][2]int) int {
	for i, s := range segments {
		if index >= s[0] && index <= s[1] {
			return i
		}
	}
	return 0
}

func renderViews(items []string, selected int) string {
	itemStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true).Underline(true)
	prefixStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F47A60")).Bold(true)
	parts := make([]string, 0, len(items))
	for i, item := range items {
		label := fmt.Sprintf("%d %s", i+1, item)
		if i == selected {
			parts = append(parts, prefixStyle.Render("> ")+selectedStyle.Render(label))
			continue
		}
		parts = append(parts, itemStyle.Render("  "+label))
	}
	return strings.Join(parts, "   ")
}

func (m model) renderHeader(width int) string {
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))

	status := "never imported"
	if m.lastImport != nil {
		status = "imported " + humanize.Time(*m.lastImport)
	}
	if m.importing {
		status = "importing..."
	}
	summary := m.chart.Summary
	period := "no transactions"
	if summary.Count > 0 {
		period = fmt.Sprintf("%s to %s  %s transactions  %d accounts",
			summary.Start.Format("2 Jan 2006"),
			summary.End.Format("2 Jan 2006"),
			humanize.Comma(int64(summary.Count)),
			len(summary.Accounts))
	}
	info := []string{
		labelStyle.Render("period: ") + period,
		labelStyle.Render("status: ") + status,
	}

	lines := []string{}
	if width >= 48 {
		lines = append(lines, renderBlockTitle())
	}
	lines = append(lines, info...)
	if m.chart.Warning != "" {
		warn := lipgloss.NewStyle().Foreground(lipgloss.Color("#F15B5B")).Render(m.chart.Warning)
		lines = append(lines, warn+hintStyle.Render("  (w to dismiss)"))
	}
	lines = append(lines, "", renderViews(m.viewItems, int(m.screen)), "")
	return strings.Join(lines, "\n")
}

// headerHeight mirrors renderHeader so mouse rows can be mapped.
func (m model) headerHeight() int {
	h := 2 + 3
	if m.layoutWidth() >= 48 {
		h += 3
	}
	if m.chart.Warning != "" {
		h++
	}
	return h
}

func (m model) layoutWidth() int {
	if m.width == 0 {
		return 100
	}
	// rounded frame plus one column of padding on each side
	return max(1, m.width-4)
}

func renderHelpOverlay(maxWidth int) string {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#5FA8FF")).
		Bold(true).
		Render("Command Help")

	catalog := commandCatalog()
	commands := make([]string, 0, len(catalog))
	for _, cmd := range catalog {
		commands = append(commands, fmt.Sprintf("%-13s %s", cmd.name, cmd.description))
	}
	keys := []string{
		"",
		"keys:",
		"tab / 1-3     switch screen",
		"enter / x     hide the selected flow's category",
		"space         toggle a category",
		"b             edit a category budget",
		"/             filter categories",
		"←/→           move the threshold (settings)",
		"r             import now",
	}
	body := strings.Join(append(commands, keys...), "\n")
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFD54A")).
		Bold(true).
		Render("Esc to close")

	content := strings.Join([]string{title, "", body, "", footer}, "\n")
	panelWidth := max(36, min(maxWidth-6, 64))

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#6CBFE6")).
		Padding(1, 2).
		Width(panelWidth).
		Render(content)
}

func renderResetDialog(maxWidth int) string {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F15B5B")).
		Bold(true).
		Render("Reset chart?")
	body := "All categories become active again, budgets are cleared\nand the threshold returns to its default."
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFD54A")).
		Bold(true).
		Render("y to confirm, n or Esc to cancel")
	panelWidth := max(36, min(maxWidth-6, 64))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#F15B5B")).
		Padding(1, 2).
		Width(panelWidth).
		Render(strings.Join([]string{title, "", body, "", footer}, "\n"))
}

func renderCommandSuggestionRows(innerWidth int, matches []commandSpec, selectedIndex int, offset int) string {
	visibleRows := 2
	start := max(0, min(offset, max(0, len(matches)-1)))
	end := min(len(matches), start+visibleRows)

	rows := make([]string, 0, end-start)
	baseRow := lipgloss.NewStyle().
		Background(lipgloss.Color("#1B2330")).
		Width(innerWidth)
	selectedRow := lipgloss.NewStyle().
		Background(lipgloss.Color("#263249")).
		Width(innerWidth)
	for i := start; i < end; i++ {
		cmdStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B9B4D0"))
		descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#8D88A8"))
		prefix := "  "
		rowStyle := baseRow
		if i == selectedIndex {
			prefix = "› "
			cmdStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD54A")).Bold(true)
			descStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#D4CDE9"))
			rowStyle = selectedRow
		}
		row := prefix + cmdStyle.Render(matches[i].name) + "  " + descStyle.Render(matches[i].description)
		rows = append(rows, rowStyle.Render(row))
	}
	return strings.Join(rows, "\n")
}

func hintLine(text string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Render(text)
}
