package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/charmbracelet/x/ansi"
	"github.com/sahilm/fuzzy"
	"github.com/shopspring/decimal"

	"github.com/lachiem1/cashflow/internal/app"
	"github.com/lachiem1/cashflow/internal/currency"
)

const categoriesPreambleLines = 6

func (m model) categoriesVisibleRows() int {
	if m.height == 0 {
		return 12
	}
	used := 2 + m.headerHeight() + categoriesPreambleLines + 3
	if strings.TrimSpace(m.commandText) != "" {
		used += 3
	}
	return max(3, m.height-used)
}

func (m *model) ensureCategoriesScrollWindow() {
	m.catCursor = clamp(m.catCursor, 0, len(m.rows)-1)
	visible := m.categoriesVisibleRows()
	if m.catCursor < m.catOffset {
		m.catOffset = m.catCursor
	}
	if m.catCursor >= m.catOffset+visible {
		m.catOffset = m.catCursor - visible + 1
	}
	m.catOffset = clamp(m.catOffset, 0, max(0, len(m.rows)-visible))
}

// applyFilter narrows the rows to categories whose path fuzzily matches the
// filter query. Matches keep tree order.
func (m *model) applyFilter() {
	query := strings.TrimSpace(m.filterQuery)
	if query == "" {
		m.rows = m.categories
		return
	}
	paths := make([]string, len(m.categories))
	for i, c := range m.categories {
		paths[i] = c.Path
	}
	hit := make(map[int]bool)
	for _, match := range fuzzy.Find(query, paths) {
		hit[match.Index] = true
	}
	rows := make([]app.CategoryView, 0, len(hit))
	for i, c := range m.categories {
		if hit[i] {
			rows = append(rows, c)
		}
	}
	m.rows = rows
}

func (m model) selectedCategory() (app.CategoryView, bool) {
	if m.catCursor < 0 || m.catCursor >= len(m.rows) {
		return app.CategoryView{}, false
	}
	return m.rows[m.catCursor], true
}

func (m model) handleCategoriesKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "up", "k":
		if m.catCursor > 0 {
			m.catCursor--
		}
	case "down", "j":
		if m.catCursor < len(m.rows)-1 {
			m.catCursor++
		}
	case "pgup":
		m.catCursor = max(0, m.catCursor-m.categoriesVisibleRows())
	case "pgdown":
		m.catCursor = clamp(m.catCursor+m.categoriesVisibleRows(), 0, len(m.rows)-1)
	case "home", "g":
		m.catCursor = 0
	case "end", "G":
		m.catCursor = max(0, len(m.rows)-1)
	case " ", "space":
		cat, ok := m.selectedCategory()
		if !ok {
			return m, nil
		}
		active := !cat.Active
		verb := "enabled"
		if !active {
			verb = "disabled"
		}
		return m, m.mutateCmd(fmt.Sprintf("%s %s", verb, cat.Name), func(ctx context.Context) error {
			return m.session.SetCategoryActive(ctx, cat.ID, active)
		})
	case "x":
		cat, ok := m.selectedCategory()
		if !ok {
			return m, nil
		}
		name := cat.Name
		session := m.session
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), defaultMutationTimeout)
			defer cancel()
			ev, _, err := session.RemoveCategory(ctx, cat.ID)
			if err != nil {
				return mutationDoneMsg{err: err}
			}
			return mutationDoneMsg{text: fmt.Sprintf("hid %s (%d categories)", name, len(ev.ChildCategoryIDs))}
		}
	case "b":
		cat, ok := m.selectedCategory()
		if !ok {
			return m, nil
		}
		m.editingBudget = true
		m.budgetErr = ""
		value := ""
		if cat.HasBudget() {
			value = decimal.NewFromFloat(*cat.Budget).StringFixed(2)
		}
		m.budgetInput.SetValue(value)
		m.budgetInput.CursorEnd()
		return m, m.budgetInput.Focus()
	case "/":
		m.filtering = true
		m.filterInput.SetValue(m.filterQuery)
		m.filterInput.CursorEnd()
		return m, m.filterInput.Focus()
	case "esc":
		if m.filterQuery != "" {
			m.filterQuery = ""
			m.applyFilter()
		}
	}
	m.ensureCategoriesScrollWindow()
	return m, nil
}

func (m model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filtering = false
		m.filterInput.Blur()
		m.filterQuery = ""
		m.applyFilter()
		m.ensureCategoriesScrollWindow()
		return m, nil
	case "enter":
		m.filtering = false
		m.filterInput.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	m.filterQuery = m.filterInput.Value()
	m.applyFilter()
	m.catCursor = 0
	m.ensureCategoriesScrollWindow()
	return m, cmd
}

func (m model) handleBudgetKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editingBudget = false
		m.budgetErr = ""
		m.budgetInput.Blur()
		return m, nil
	case "enter":
		cat, ok := m.selectedCategory()
		if !ok {
			m.editingBudget = false
			m.budgetInput.Blur()
			return m, nil
		}
		budget, err := parseBudgetInput(m.budgetInput.Value())
		if err != nil {
			m.budgetErr = err.Error()
			return m, nil
		}
		m.editingBudget = false
		m.budgetErr = ""
		m.budgetInput.Blur()
		text := "cleared budget of " + cat.Name
		if budget != nil {
			text = fmt.Sprintf("budget of %s set to %s", cat.Name, currency.Format(*budget, m.chart.Currency))
		}
		return m, m.mutateCmd(text, func(ctx context.Context) error {
			return m.session.SetBudget(ctx, cat.ID, budget)
		})
	}
	var cmd tea.Cmd
	m.budgetInput, cmd = m.budgetInput.Update(msg)
	return m, cmd
}

// parseBudgetInput accepts amounts like "1,200.50" or "$80". An empty input
// clears the budget.
func parseBudgetInput(raw string) (*float64, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimLeft(cleaned, "$€£")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil, errors.New("budget must be a number")
	}
	if d.IsNegative() {
		return nil, errors.New("budget cannot be negative")
	}
	v := d.Round(2).InexactFloat64()
	return &v, nil
}

func (m model) renderCategoriesScreen(width int) string {
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	headStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Bold(true)
	offStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD54A"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F15B5B"))

	active := 0
	for _, c := range m.categories {
		if c.Active {
			active++
		}
	}
	summary := labelStyle.Render("categories: ") + fmt.Sprintf("%d active of %d", active, len(m.categories))
	if m.filterQuery != "" {
		summary += labelStyle.Render("   filter: ") + m.filterQuery + fmt.Sprintf(" (%d)", len(m.rows))
	}

	panelWidth := 0
	if width >= 100 {
		panelWidth = min(44, width/3)
	}
	tableWidth := width - panelWidth
	nameWidth := max(12, tableWidth-44)

	header := fmt.Sprintf("  %-3s %-*s %14s %12s %8s", "on", nameWidth, "category", "amount", "budget", "")
	lines := []string{
		renderScreenTitle("categories"),
		summary,
		"",
		headStyle.Render(ansi.Truncate(header, tableWidth, "")),
	}

	visible := m.categoriesVisibleRows()
	end := min(len(m.rows), m.catOffset+visible)
	rows := make([]string, 0, max(0, end-m.catOffset))
	for i := m.catOffset; i < end; i++ {
		c := m.rows[i]
		check := "[x]"
		if !c.Active {
			check = "[ ]"
		}
		name := ansi.Truncate(strings.Repeat("  ", c.Depth)+c.Name, nameWidth, "…")
		budget := ""
		if c.HasBudget() {
			budget = currency.Format(*c.Budget, m.chart.Currency)
		}
		flag := ""
		if len(c.Warnings) > 0 {
			flag = warnStyle.Render("over")
		}
		row := fmt.Sprintf("  %-3s %-*s %14s %12s %8s", check, nameWidth, name,
			currency.Format(c.Value, m.chart.Currency), budget, flag)
		switch {
		case i == m.catCursor:
			row = lipgloss.NewStyle().Background(lipgloss.Color("#263249")).Render(row)
		case !c.Active || !c.Visible:
			row = offStyle.Render(row)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		rows = append(rows, hintLine("  no categories match"))
	}
	table := strings.Join(rows, "\n")

	if panelWidth > 0 {
		if cat, ok := m.selectedCategory(); ok {
			table = lipgloss.JoinHorizontal(lipgloss.Top,
				lipgloss.NewStyle().Width(tableWidth).Render(table),
				m.renderCategoryPanel(cat, panelWidth))
		}
	}
	lines = append(lines, table, "")

	switch {
	case m.editingBudget:
		line := m.budgetInput.View()
		if m.budgetErr != "" {
			line += "  " + errStyle.Render(m.budgetErr)
		}
		lines = append(lines, line)
	case m.filtering:
		lines = append(lines, m.filterInput.View())
	default:
		lines = append(lines, hintLine("space: toggle  b: budget  x: hide subtree  /: filter  ?: help"))
	}
	return strings.Join(lines, "\n")
}

// renderCategoryPanel shows the selected category's subtree and any budget
// warnings for it.
func (m model) renderCategoryPanel(cat app.CategoryView, width int) string {
	title := lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")).Bold(true).Render(cat.Path)
	t := m.subtree(cat, max(8, width-8), 0)

	body := []string{title, "", t.String()}
	for _, w := range cat.Warnings {
		body = append(body, "", lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD54A")).Render(w))
	}
	if share, ok := categoryShare(cat, m.categories); ok {
		body = append(body, "", hintLine(currency.Percent(share)+" of its parent"))
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#6CBFE6")).
		Padding(0, 1).
		Width(width - 2).
		Render(strings.Join(body, "\n"))
}

const maxPanelDepth = 4

func (m model) subtree(cat app.CategoryView, width, depth int) *tree.Tree {
	label := ansi.Truncate(fmt.Sprintf("%s %s", cat.Name, currency.Format(cat.Value, m.chart.Currency)), width, "…")
	if !cat.Active {
		label = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Render(label)
	}
	t := tree.New().Root(label).Enumerator(tree.RoundedEnumerator)
	if depth >= maxPanelDepth {
		return t
	}
	for _, child := range m.categories {
		if child.ParentID != cat.ID {
			continue
		}
		t.Child(m.subtree(child, width-2, depth+1))
	}
	return t
}

// categoryShare is the magnitude of cat relative to the sum of it and its
// siblings.
func categoryShare(cat app.CategoryView, all []app.CategoryView) (float64, bool) {
	total := 0.0
	for _, c := range all {
		if c.ParentID == cat.ParentID && c.Active {
			total += math.Abs(c.Value)
		}
	}
	if total == 0 || !cat.Active {
		return 0, false
	}
	return math.Abs(cat.Value) / total, true
}
