package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/lachiem1/cashflow/internal/app"
	"github.com/lachiem1/cashflow/internal/importer"
	"github.com/lachiem1/cashflow/internal/sankey"
	"github.com/lachiem1/cashflow/internal/slider"
)

// Refresher starts an out-of-band import.
type Refresher interface {
	Refresh() error
}

type Options struct {
	Refresher    Refresher
	ImportEvents <-chan importer.Event
	LastImport   *time.Time
	ExportPath   string
	Logger       zerolog.Logger
}

const defaultMutationTimeout = 10 * time.Second

type sessionEventMsg struct {
	ev app.Event
}

type importEventMsg struct {
	ev importer.Event
}

type mutationDoneMsg struct {
	text string
	err  error
}

type clearCommandTextMsg struct {
	id int
}

type commandSpec struct {
	name        string
	description string
}

type screenMode int

const (
	screenFlows screenMode = iota
	screenCategories
	screenSettings
)

const (
	settingsFocusThreshold = iota
	settingsFocusScaling
	settingsFocusSort
	settingsFocusCount
)

type model struct {
	session      *app.Session
	refresher    Refresher
	importEvents <-chan importer.Event
	exportPath   string
	log          zerolog.Logger

	width  int
	height int

	screen    screenMode
	viewItems []string
	cmd       textinput.Model
	cmdActive bool

	chart      app.Chart
	flows      []sankey.Edge
	categories []app.CategoryView
	rows       []app.CategoryView
	bounds     slider.Bounds
	hasBounds  bool

	flowsCursor   int
	flowsOffset   int
	catCursor     int
	catOffset     int
	settingsFocus int

	filterInput   textinput.Model
	filtering     bool
	filterQuery   string
	budgetInput   textinput.Model
	editingBudget bool
	budgetErr     string

	commandText             string
	commandTextID           int
	commandSuggestions      []commandSpec
	commandSuggestionIndex  int
	commandSuggestionOffset int

	showHelpOverlay bool
	confirmReset    bool
	lastImport      *time.Time
	importing       bool
	quitting        bool
}

func New(session *app.Session, opts Options) tea.Model {
	cmd := textinput.New()
	cmd.Prompt = "> "
	cmd.Placeholder = ":help"
	cmd.Width = 72

	filter := textinput.New()
	filter.Prompt = "/ "
	filter.Placeholder = "filter categories"
	filter.Width = 40

	budget := textinput.New()
	budget.Prompt = "budget: "
	budget.Placeholder = "0.00 (empty clears)"
	budget.Width = 24

	m := model{
		session:      session,
		refresher:    opts.Refresher,
		importEvents: opts.ImportEvents,
		exportPath:   opts.ExportPath,
		log:          opts.Logger,
		viewItems:    []string{"flows", "categories", "settings"},
		screen:       screenFlows,
		cmd:          cmd,
		filterInput:  filter,
		budgetInput:  budget,
		lastImport:   opts.LastImport,
	}
	if m.exportPath == "" {
		m.exportPath = "cashflow-sankeymatic.txt"
	}
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return waitForImportEvent(m.importEvents)
}

func waitForImportEvent(ch <-chan importer.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return importEventMsg{ev: ev}
	}
}

// refresh pulls a new snapshot from the session.
func (m *model) refresh() {
	m.chart = m.session.Chart()
	m.flows = m.session.Flows()
	m.categories = m.session.Categories()
	m.applyFilter()
	if m.chart.Slider != nil {
		m.bounds = *m.chart.Slider
		m.hasBounds = true
	} else {
		m.hasBounds = false
	}
	m.flowsCursor = clamp(m.flowsCursor, 0, len(m.flows)-1)
	m.ensureFlowsScrollWindow()
	m.ensureCategoriesScrollWindow()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.cmd.Width = max(40, msg.Width-36)
		m.ensureFlowsScrollWindow()
		m.ensureCategoriesScrollWindow()
		return m, nil

	case sessionEventMsg:
		m.refresh()
		if msg.ev.Type == app.EventReloaded {
			return m.withCommandFeedback("chart rebuilt from the latest import")
		}
		return m, nil

	case importEventMsg:
		next := waitForImportEvent(m.importEvents)
		switch msg.ev.Type {
		case importer.EventImportStarted:
			m.importing = true
			return m, next
		case importer.EventImportOK:
			m.importing = false
			at := msg.ev.At
			m.lastImport = &at
			nm, cmd := m.withCommandFeedback(fmt.Sprintf("imported %d transactions from %s", msg.ev.Count, msg.ev.Source))
			return nm, tea.Batch(cmd, next)
		case importer.EventImportFailed:
			m.importing = false
			nm, cmd := m.withCommandFeedback("import failed: " + errorText(msg.ev.Err))
			return nm, tea.Batch(cmd, next)
		}
		return m, next

	case mutationDoneMsg:
		m.refresh()
		if msg.err != nil {
			m.log.Error().Err(msg.err).Msg("chart update failed")
			return m.withCommandFeedback("error: " + msg.err.Error())
		}
		if msg.text == "" {
			return m, nil
		}
		return m.withCommandFeedback(msg.text)

	case clearCommandTextMsg:
		if msg.id == m.commandTextID {
			m.commandText = ""
		}
		return m, nil

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	if m.showHelpOverlay {
		if key == "esc" || key == "q" || key == "?" {
			m.showHelpOverlay = false
		}
		return m, nil
	}

	if m.confirmReset {
		switch key {
		case "y", "Y", "enter":
			m.confirmReset = false
			return m, m.mutateCmd("chart reset", func(ctx context.Context) error {
				return m.session.Reset(ctx)
			})
		case "n", "N", "esc":
			m.confirmReset = false
		}
		return m, nil
	}

	if m.cmdActive {
		return m.handleCommandKey(msg)
	}
	if m.editingBudget {
		return m.handleBudgetKey(msg)
	}
	if m.filtering {
		return m.handleFilterKey(msg)
	}

	switch key {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case ":":
		m.cmdActive = true
		m.cmd.SetValue(":")
		m.cmd.CursorEnd()
		m.refreshCommandSuggestions()
		return m, m.cmd.Focus()
	case "?":
		m.showHelpOverlay = true
		return m, nil
	case "tab":
		m.screen = (m.screen + 1) % screenMode(len(m.viewItems))
		return m, nil
	case "shift+tab":
		m.screen = (m.screen + screenMode(len(m.viewItems)) - 1) % screenMode(len(m.viewItems))
		return m, nil
	case "1":
		m.screen = screenFlows
		return m, nil
	case "2":
		m.screen = screenCategories
		return m, nil
	case "3":
		m.screen = screenSettings
		return m, nil
	case "w":
		if m.chart.Warning != "" {
			m.session.DismissWarning()
			m.refresh()
		}
		return m, nil
	case "r":
		return m.startRefresh()
	}

	switch m.screen {
	case screenFlows:
		return m.handleFlowsKey(key)
	case screenCategories:
		return m.handleCategoriesKey(key)
	case screenSettings:
		return m.handleSettingsKey(key)
	}
	return m, nil
}

func (m model) handleCommandKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.cmdActive = false
		m.cmd.SetValue("")
		m.cmd.Blur()
		m.clearCommandSuggestions()
		return m, nil
	case "up":
		if len(m.commandSuggestions) > 0 && m.commandSuggestionIndex > 0 {
			m.commandSuggestionIndex--
			m.adjustSuggestionWindow(2)
		}
		return m, nil
	case "down":
		if m.commandSuggestionIndex < len(m.commandSuggestions)-1 {
			m.commandSuggestionIndex++
			m.adjustSuggestionWindow(2)
		}
		return m, nil
	case "tab":
		if len(m.commandSuggestions) > 0 {
			m.cmd.SetValue(m.commandSuggestions[m.commandSuggestionIndex].name)
			m.cmd.CursorEnd()
			m.refreshCommandSuggestions()
		}
		return m, nil
	case "enter":
		input := strings.TrimSpace(m.cmd.Value())
		if m.shouldShowCommandSuggestions() && !strings.Contains(input, " ") {
			if selected := m.commandSuggestions[m.commandSuggestionIndex].name; strings.HasPrefix(selected, input) {
				input = selected
			}
		}
		m.cmdActive = false
		m.cmd.SetValue("")
		m.cmd.Blur()
		m.clearCommandSuggestions()
		return m.runCommand(input)
	}

	var cmd tea.Cmd
	m.cmd, cmd = m.cmd.Update(msg)
	m.refreshCommandSuggestions()
	return m, cmd
}

func (m model) runCommand(input string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "", ":":
		return m, nil
	case ":help":
		m.showHelpOverlay = true
		return m, nil
	case ":flows":
		m.screen = screenFlows
		return m, nil
	case ":categories":
		m.screen = screenCategories
		return m, nil
	case ":settings":
		m.screen = screenSettings
		return m, nil
	case ":reset":
		m.confirmReset = true
		return m, nil
	case ":refresh":
		return m.startRefresh()
	case ":export":
		path := m.exportPath
		if arg != "" {
			path = arg
		}
		return m, m.exportCmd(path)
	case ":quit", ":q":
		m.quitting = true
		return m, tea.Quit
	default:
		return m.withCommandFeedback(fmt.Sprintf("Unknown command: %s", input))
	}
}

func (m model) startRefresh() (tea.Model, tea.Cmd) {
	if m.refresher == nil {
		return m.withCommandFeedback("no automatic import configured (run with --watch-up)")
	}
	if err := m.refresher.Refresh(); err != nil {
		return m.withCommandFeedback("refresh failed: " + err.Error())
	}
	m.importing = true
	return m.withCommandFeedback("importing...")
}

func (m model) exportCmd(path string) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		if err := os.WriteFile(path, []byte(session.Export()+"\n"), 0o644); err != nil {
			return mutationDoneMsg{err: fmt.Errorf("export: %w", err)}
		}
		return mutationDoneMsg{text: "SankeyMATIC flows written to " + path}
	}
}

// mutateCmd runs a session change off the update loop.
func (m model) mutateCmd(text string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), defaultMutationTimeout)
		defer cancel()
		return mutationDoneMsg{text: text, err: fn(ctx)}
	}
}

func (m model) withCommandFeedback(text string) (tea.Model, tea.Cmd) {
	m.commandText = text
	m.commandTextID++
	id := m.commandTextID
	return m, tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return clearCommandTextMsg{id: id}
	})
}

func (m model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.showHelpOverlay || m.confirmReset || m.cmdActive || m.editingBudget {
		return m, nil
	}
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		return m.handleScreenKey("up")
	case tea.MouseButtonWheelDown:
		return m.handleScreenKey("down")
	}
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}
	if m.screen != screenFlows {
		return m, nil
	}
	row := msg.Y - m.flowsRowsTop()
	if row < 0 || row >= m.flowsVisibleRows() {
		return m, nil
	}
	idx := m.flowsOffset + row
	if idx >= len(m.flows) {
		return m, nil
	}
	m.flowsCursor = idx
	return m.removeFlowAt(idx)
}

func (m model) handleScreenKey(key string) (tea.Model, tea.Cmd) {
	switch m.screen {
	case screenFlows:
		return m.handleFlowsKey(key)
	case screenCategories:
		return m.handleCategoriesKey(key)
	default:
		return m.handleSettingsKey(key)
	}
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	frame := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#F47A60"))
	contentStyle := lipgloss.NewStyle().Padding(0, 1)
	if m.width > 0 {
		frame = frame.Width(max(1, m.width-frame.GetHorizontalBorderSize()))
	}
	if m.height > 0 {
		frame = frame.Height(max(1, m.height-frame.GetVerticalBorderSize()))
	}
	layoutWidth := max(1, m.width-frame.GetHorizontalFrameSize()-contentStyle.GetHorizontalFrameSize())
	if m.width == 0 {
		layoutWidth = 100
	}
	layoutHeight := max(1, m.height-frame.GetVerticalFrameSize()-contentStyle.GetVerticalFrameSize())

	if m.showHelpOverlay {
		centered := lipgloss.Place(layoutWidth, layoutHeight, lipgloss.Center, lipgloss.Center, renderHelpOverlay(layoutWidth))
		return frame.Render(contentStyle.Render(centered))
	}
	if m.confirmReset {
		centered := lipgloss.Place(layoutWidth, layoutHeight, lipgloss.Center, lipgloss.Center, renderResetDialog(layoutWidth))
		return frame.Render(contentStyle.Render(centered))
	}

	var body string
	switch m.screen {
	case screenCategories:
		body = m.renderCategoriesScreen(layoutWidth)
	case screenSettings:
		body = m.renderSettingsScreen(layoutWidth)
	default:
		body = m.renderFlowsScreen(layoutWidth)
	}

	sections := []string{m.renderHeader(layoutWidth), body}
	if strings.TrimSpace(m.commandText) != "" {
		messageArea := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#6CBFE6")).
			Padding(0, 1).
			Foreground(lipgloss.Color("#D4CDE9")).
			Width(max(8, layoutWidth-4)).
			Render(m.commandText)
		sections = append(sections, messageArea)
	}
	if m.cmdActive {
		sections = append(sections, m.renderCommandBox(layoutWidth))
	}
	return frame.Render(contentStyle.Render(strings.Join(sections, "\n")))
}

func (m model) renderCommandBox(width int) string {
	innerWidth := max(8, width-4)
	cmdInput := m.cmd
	cmdInput.Width = max(6, innerWidth-2)
	lines := []string{}
	if m.shouldShowCommandSuggestions() {
		lines = append(lines, renderCommandSuggestionRows(innerWidth, m.commandSuggestions, m.commandSuggestionIndex, m.commandSuggestionOffset))
	}
	lines = append(lines, lipgloss.NewStyle().Width(innerWidth).Render(cmdInput.View()))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#6CBFE6")).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}

func commandCatalog() []commandSpec {
	return []commandSpec{
		{name: ":help", description: "show key and command help"},
		{name: ":flows", description: "show the cash flows"},
		{name: ":categories", description: "show the category table"},
		{name: ":settings", description: "threshold, scaling and sort order"},
		{name: ":reset", description: "activate all categories, clear budgets and threshold"},
		{name: ":export", description: "write SankeyMATIC flows to a file"},
		{name: ":refresh", description: "import new transactions now"},
		{name: ":quit", description: "leave cashflow"},
	}
}

func (m *model) refreshCommandSuggestions() {
	input := strings.TrimSpace(m.cmd.Value())
	if !strings.HasPrefix(input, ":") || strings.Contains(input, " ") {
		m.clearCommandSuggestions()
		return
	}

	prefix := strings.ToLower(input)
	all := commandCatalog()
	matches := make([]commandSpec, 0, len(all))
	for _, cmd := range all {
		if strings.HasPrefix(cmd.name, prefix) {
			matches = append(matches, cmd)
		}
	}
	if len(matches) == 0 {
		m.clearCommandSuggestions()
		return
	}

	m.commandSuggestions = matches
	m.commandSuggestionIndex = clamp(m.commandSuggestionIndex, 0, len(matches)-1)
	m.adjustSuggestionWindow(2)
}

func (m *model) clearCommandSuggestions() {
	m.commandSuggestions = nil
	m.commandSuggestionIndex = 0
	m.commandSuggestionOffset = 0
}

func (m model) shouldShowCommandSuggestions() bool {
	return strings.HasPrefix(strings.TrimSpace(m.cmd.Value()), ":") && len(m.commandSuggestions) > 0
}

func (m *model) adjustSuggestionWindow(visibleRows int) {
	if m.commandSuggestionIndex < m.commandSuggestionOffset {
		m.commandSuggestionOffset = m.commandSuggestionIndex
	}
	if m.commandSuggestionIndex >= m.commandSuggestionOffset+visibleRows {
		m.commandSuggestionOffset = m.commandSuggestionIndex - visibleRows + 1
	}
	m.commandSuggestionOffset = clamp(m.commandSuggestionOffset, 0, max(0, len(m.commandSuggestions)-visibleRows))
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// clamp keeps v in [lo, hi]; an empty range yields lo.
func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
