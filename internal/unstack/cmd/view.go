package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/spf13/cobra"

	"unstack/internal/analysis"
	"unstack/internal/config"
	"unstack/internal/disasm"
	"unstack/internal/render"
	"unstack/internal/ui/colorize"
	"unstack/internal/unstack/styles"
)

var viewCmd = &cobra.Command{
	Use:   "view [file]",
	Short: "Browse the command trees of a listing interactively",
	Example: `
# Browse a listing
unstack view module.dis
  `,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		units, err := loadUnits(cmd, args, cfg.ExtendedArgShift)
		if err != nil {
			return err
		}

		source := "<stdin>"
		if len(args) > 0 && args[0] != "-" {
			source = args[0]
		}

		program := tea.NewProgram(
			NewModel(cmd.Context(), source, cfg, units),
			tea.WithAltScreen(),
			tea.WithContext(cmd.Context()),
		)
		if _, err := program.Run(); err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("TUI error: %v", err)
		}
		return nil
	},
}

type viewMode int

const (
	viewUnits viewMode = iota
	viewTree
	viewReport
)

type unitItem struct {
	index        int
	name         string
	instructions int
	commands     int
	failed       bool
}

func (i unitItem) Title() string       { return i.name }
func (i unitItem) Description() string { return "" }
func (i unitItem) FilterValue() string { return i.name }

// unitDelegate renders one unit per line. Names are padded to nameWidth
// so the status column lines up.
type unitDelegate struct {
	nameWidth int
}

func (d unitDelegate) Height() int                               { return 1 }
func (d unitDelegate) Spacing() int                              { return 0 }
func (d unitDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d unitDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(unitItem)
	if !ok {
		return
	}

	indicator := " "
	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	if index == m.Index() {
		indicator = ">"
		nameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	}
	countStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	status := countStyle.Render(fmt.Sprintf("%d instructions, %d commands", i.instructions, i.commands))
	if i.failed {
		status = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Render("failed")
	}

	name := nameStyle.Render(i.name)
	if pad := d.nameWidth - colorize.VisibleWidth(name); pad > 0 {
		name += strings.Repeat(" ", pad)
	}
	fmt.Fprintf(w, " %s  %s  %s", indicator, name, status)
}

type model struct {
	unitsList  list.Model
	treeView   viewport.Model
	reportView viewport.Model
	spinner    spinner.Model
	mode       viewMode
	ctx        context.Context
	source     string
	cfg        config.Config
	listing    []disasm.CodeUnit
	results    []analysis.Result
	findings   []analysis.Finding
	loading    bool
	err        error
	width      int
	height     int
}

type reconstructedMsg struct {
	results  []analysis.Result
	findings []analysis.Finding
	err      error
}

func reconstructCmd(ctx context.Context, cfg config.Config, units []disasm.CodeUnit) tea.Cmd {
	return func() tea.Msg {
		// The browser shows failed units instead of stopping at them.
		cfg.KeepGoing = true
		results, findings, err := analyze(ctx, cfg, units)
		return reconstructedMsg{results: results, findings: findings, err: err}
	}
}

func NewModel(ctx context.Context, source string, cfg config.Config, units []disasm.CodeUnit) model {
	unitsList := list.New([]list.Item{}, unitDelegate{}, 80, 24)
	unitsList.SetShowStatusBar(false)
	unitsList.SetFilteringEnabled(true)
	unitsList.Title = "Code units"
	unitsList.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		MarginLeft(2)
	unitsList.SetShowHelp(true)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	tv := viewport.New()
	tv.SetWidth(80)
	tv.SetHeight(24)

	rv := viewport.New()
	rv.SetWidth(80)
	rv.SetHeight(24)

	m := model{
		unitsList:  unitsList,
		treeView:   tv,
		reportView: rv,
		spinner:    s,
		mode:       viewReport,
		ctx:        ctx,
		source:     source,
		cfg:        cfg,
		listing:    units,
		loading:    true,
		width:      80,
		height:     24,
	}
	m.updateReport()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		reconstructCmd(m.ctx, m.cfg, m.listing),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case reconstructedMsg:
		m.loading = false
		m.results, m.findings, m.err = msg.results, msg.findings, msg.err
		m.updateUnitsList()
		m.updateReport()
		if len(m.results) > 0 {
			m.showTree(0)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		m.updateReport()
		return m, cmd

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.unitsList.SetWidth(msg.Width)
			m.unitsList.SetHeight(msg.Height - 2)
			m.treeView.SetWidth(msg.Width)
			m.treeView.SetHeight(msg.Height - 2)
			m.reportView.SetWidth(msg.Width)
			m.reportView.SetHeight(msg.Height - 2)
			m.updateReport()
		}

	case tea.KeyMsg:
		// While the list is filtering it gets every key but quit.
		if m.mode == viewUnits && m.unitsList.FilterState() == list.Filtering {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			break
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "u":
			if len(m.results) > 0 {
				m.mode = viewUnits
			}
			return m, nil
		case "t":
			if len(m.results) > 0 {
				m.mode = viewTree
			}
			return m, nil
		case "r":
			m.mode = viewReport
			return m, nil
		case "enter":
			if m.mode == viewUnits {
				if item, ok := m.unitsList.SelectedItem().(unitItem); ok {
					m.showTree(item.index)
					m.mode = viewTree
				}
			}
			return m, nil
		case "tab":
			if len(m.results) > 0 {
				m.mode = (m.mode + 1) % 3
			}
			return m, nil
		case "shift+tab":
			if len(m.results) > 0 {
				m.mode = (m.mode + 2) % 3
			}
			return m, nil
		}
	}

	switch m.mode {
	case viewUnits:
		m.unitsList, cmd = m.unitsList.Update(msg)
	case viewTree:
		m.treeView, cmd = m.treeView.Update(msg)
	default:
		m.reportView, cmd = m.reportView.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	var content, menu string
	switch m.mode {
	case viewUnits:
		content = m.unitsList.View()
		menu = " Enter: view tree • T: tree • R: report • Tab: cycle • Q: quit "
	case viewTree:
		content = m.treeView.View()
		menu = " U: units • R: report • Tab: cycle • Q: quit "
	default:
		content = m.reportView.View()
		if len(m.results) > 0 {
			menu = " U: units • T: tree • Tab: cycle • Q: quit "
		} else {
			menu = " Q: quit "
		}
	}

	menuStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(m.width)

	return content + "\n" + menuStyle.Render(menu)
}

func (m *model) updateUnitsList() {
	items := make([]list.Item, 0, len(m.results))
	width := 0
	for i, r := range m.results {
		item := unitItem{
			index:        i,
			name:         r.Unit,
			instructions: r.Instructions,
			failed:       r.Failed(),
		}
		for _, c := range r.Commands {
			item.commands += c.Size()
		}
		width = max(width, colorize.VisibleWidth(r.Unit))
		items = append(items, item)
	}
	m.unitsList.SetDelegate(unitDelegate{nameWidth: width})
	m.unitsList.SetItems(items)
}

// showTree loads the highlighted forest of result i into the tree view.
func (m *model) showTree(i int) {
	r := m.results[i]

	var sb strings.Builder
	fmt.Fprintf(&sb, "; %s (%d instructions)\n\n", r.Unit, r.Instructions)
	if r.Failed() {
		fmt.Fprintf(&sb, "; %v\n", r.Err)
	}
	for j, c := range r.Commands {
		if j > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(colorize.ColorizeLine(c.DumpString()))
	}
	m.treeView.SetContent(strings.TrimSuffix(sb.String(), "\n"))
	m.treeView.GotoTop()
}

func (m *model) updateReport() {
	var md string
	switch {
	case m.loading:
		md = fmt.Sprintf("# %s\n\n%s Reconstructing %d code units...", m.source, m.spinner.View(), len(m.listing))
	case m.err != nil:
		md = fmt.Sprintf("# %s\n\n*%v*", m.source, m.err)
	default:
		md = render.MarkdownSource(render.NewReport(m.results, m.findings))
		md = strings.Replace(md, "# Reconstruction report", "# "+m.source, 1)
	}

	width := m.width
	if width == 0 {
		width = 80
	}
	rendered := styles.RenderMarkdown(md, width-2)
	m.reportView.SetContent(strings.TrimSuffix(rendered, "\n"))
}
