package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// NewDashboardCommand creates the dashboard command.
func NewDashboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Interactive warehouse browser",
		Long: `Browse the warehouse in an interactive terminal UI.

Shows every table and view with row counts. Selecting a table shows
its per-column completeness from the data quality checks.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := appFrom(cmd)

			if _, err := os.Stat(app.Cfg.DatabasePath); os.IsNotExist(err) {
				return fmt.Errorf("warehouse not found at %s (run 'nhstage load' first)", app.Cfg.DatabasePath)
			}

			db, err := openWarehouseReadOnly(app.Cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("failed to open warehouse: %w", err)
			}
			defer func() { _ = db.Close() }()

			model, err := newDashboardModel(cmd.Context(), db)
			if err != nil {
				return err
			}

			p := tea.NewProgram(model, tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}

// --- data loading ---

type tableEntry struct {
	name string
	kind string
	rows int64
}

type completenessRow struct {
	column     string
	rowCount   int64
	nonNull    int64
	pctNotNull float64
}

func loadTableEntries(ctx context.Context, db *sql.DB) ([]tableEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name, lower(table_type)
		FROM information_schema.tables
		WHERE table_schema = 'main'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []tableEntry
	for rows.Next() {
		var e tableEntry
		if err := rows.Scan(&e.name, &e.kind); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		// Views are counted too; they are cheap at this scale.
		err := db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s`, entries[i].name)).Scan(&entries[i].rows)
		if err != nil {
			entries[i].rows = -1
		}
	}
	return entries, nil
}

func loadCompleteness(ctx context.Context, db *sql.DB, tableName string) ([]completenessRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, row_count, non_null_count, pct_not_null
		FROM dq_completeness
		WHERE table_name = ?
		ORDER BY column_name
	`, tableName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []completenessRow
	for rows.Next() {
		var c completenessRow
		if err := rows.Scan(&c.column, &c.rowCount, &c.nonNull, &c.pctNotNull); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- bubbletea model ---

type dashboardView int

const (
	viewTables dashboardView = iota
	viewCompleteness
)

var (
	dashTitleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	dashHelpStyle  = lipgloss.NewStyle().Faint(true).Padding(0, 1)
	dashBaseStyle  = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
)

type dashboardModel struct {
	ctx      context.Context
	db       *sql.DB
	view     dashboardView
	tables   table.Model
	detail   table.Model
	selected string
	errMsg   string
}

func newDashboardModel(ctx context.Context, db *sql.DB) (*dashboardModel, error) {
	entries, err := loadTableEntries(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("warehouse is empty (run 'nhstage load' first)")
	}

	columns := []table.Column{
		{Title: "Name", Width: 32},
		{Title: "Kind", Width: 12},
		{Title: "Rows", Width: 12},
	}
	rows := make([]table.Row, len(entries))
	for i, e := range entries {
		count := fmt.Sprintf("%d", e.rows)
		if e.rows < 0 {
			count = "?"
		}
		rows[i] = table.Row{e.name, e.kind, count}
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	styles.Selected = styles.Selected.Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	return &dashboardModel{ctx: ctx, db: db, view: viewTables, tables: t}, nil
}

func (m *dashboardModel) Init() tea.Cmd {
	return nil
}

func (m *dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.view == viewCompleteness {
				m.view = viewTables
				m.errMsg = ""
				return m, nil
			}
			return m, tea.Quit
		case "enter":
			if m.view == viewTables {
				m.openCompleteness()
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	if m.view == viewTables {
		m.tables, cmd = m.tables.Update(msg)
	} else {
		m.detail, cmd = m.detail.Update(msg)
	}
	return m, cmd
}

func (m *dashboardModel) openCompleteness() {
	selected := m.tables.SelectedRow()
	if selected == nil {
		return
	}
	m.selected = selected[0]
	m.errMsg = ""

	checks, err := loadCompleteness(m.ctx, m.db, m.selected)
	if err != nil || len(checks) == 0 {
		m.errMsg = fmt.Sprintf("no completeness data for %s", m.selected)
		m.view = viewCompleteness
		m.detail = table.New(table.WithColumns([]table.Column{{Title: "Column", Width: 32}}), table.WithHeight(1))
		return
	}

	columns := []table.Column{
		{Title: "Column", Width: 32},
		{Title: "Rows", Width: 10},
		{Title: "Non-null", Width: 10},
		{Title: "% Not Null", Width: 12},
	}
	rows := make([]table.Row, len(checks))
	for i, c := range checks {
		rows[i] = table.Row{
			c.column,
			fmt.Sprintf("%d", c.rowCount),
			fmt.Sprintf("%d", c.nonNull),
			fmt.Sprintf("%.1f%%", c.pctNotNull),
		}
	}

	m.detail = table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	m.view = viewCompleteness
}

func (m *dashboardModel) View() string {
	switch m.view {
	case viewCompleteness:
		title := dashTitleStyle.Render(fmt.Sprintf("Completeness: %s", m.selected))
		body := dashBaseStyle.Render(m.detail.View())
		if m.errMsg != "" {
			body = dashHelpStyle.Render(m.errMsg)
		}
		help := dashHelpStyle.Render("esc back · q quit")
		return lipgloss.JoinVertical(lipgloss.Left, title, body, help)
	default:
		title := dashTitleStyle.Render("Warehouse tables")
		body := dashBaseStyle.Render(m.tables.View())
		help := dashHelpStyle.Render("enter completeness · q quit")
		return lipgloss.JoinVertical(lipgloss.Left, title, body, help)
	}
}
