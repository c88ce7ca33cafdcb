package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Alignment represents column text alignment.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
	AlignCenter
)

// ColumnDef defines a column in a ResultsTable.
type ColumnDef struct {
	Name       string         // Header name, shown when the table has a header row
	WidthRatio float64        // Proportion of available width (0.0-1.0), 0 means fixed width
	MinWidth   int            // Minimum width in characters
	MaxWidth   int            // Maximum width (0 = no limit)
	Align      Alignment      // Text alignment
	Style      lipgloss.Style // Style to apply to cells in this column
}

// ResultRow represents a single row in the results table.
type ResultRow struct {
	Cells []string // Cell values for each column
}

// ResultsTable renders per-page rows of the execute report and the tree listing.
type ResultsTable struct {
	display *DisplayContext
	columns []ColumnDef
	rows    []ResultRow
	header  bool
}

// Column definitions.
var (
	// ColNum is the row number column (fixed width, right-aligned, muted).
	ColNum = ColumnDef{Name: "#", MinWidth: 4, MaxWidth: 6, Align: AlignRight, Style: Muted}

	// ColState is the execution state symbol and name.
	ColState = ColumnDef{Name: "state", MinWidth: 10, MaxWidth: 10}

	// ColTitle is the page title, indented by depth.
	ColTitle = ColumnDef{Name: "page", WidthRatio: 0.45, MinWidth: 20, MaxWidth: 80}

	// ColID is the identifier of the page in the export.
	ColID = ColumnDef{Name: "id", WidthRatio: 0.15, MinWidth: 6, MaxWidth: 24, Style: Muted}

	// ColURL is the remote page URL, or the failure reason.
	ColURL = ColumnDef{Name: "remote", WidthRatio: 0.40, MinWidth: 20, MaxWidth: 100, Style: Accent}
)

// ColWhen is a relative timestamp.
var ColWhen = ColumnDef{Name: "when", MinWidth: 14, MaxWidth: 18, Style: Muted}

// HistoryLayout is used for journal listings: [num, state, run, when, summary]
var HistoryLayout = []ColumnDef{ColNum, ColState, ColID, ColWhen, ColURL}

// ReportLayout is used for execute reports: [num, state, title, id, remote]
var ReportLayout = []ColumnDef{ColNum, ColState, ColTitle, ColID, ColURL}

// NewResultsTable creates a new ResultsTable with the given display context and column layout.
func NewResultsTable(display *DisplayContext, columns []ColumnDef) *ResultsTable {
	return &ResultsTable{
		display: display,
		columns: columns,
	}
}

// WithHeader makes Render print the column names above the rows.
func (t *ResultsTable) WithHeader() *ResultsTable {
	t.header = true
	return t
}

// AddRow adds a row to the table.
func (t *ResultsTable) AddRow(cells ...string) {
	t.rows = append(t.rows, ResultRow{Cells: cells})
}

// Len returns the number of rows.
func (t *ResultsTable) Len() int {
	return len(t.rows)
}

// ColumnWidth returns the calculated width for a column by name.
func (t *ResultsTable) ColumnWidth(name string) int {
	widths := t.calculateWidths()
	for i, col := range t.columns {
		if col.Name == name {
			return widths[i]
		}
	}
	return 60 // fallback
}

// calculateWidths computes column widths based on terminal size and column definitions.
func (t *ResultsTable) calculateWidths() []int {
	widths := make([]int, len(t.columns))

	var totalRatio float64
	var fixedWidth int
	const columnPadding = 2

	for i, col := range t.columns {
		if col.WidthRatio == 0 {
			widths[i] = col.MinWidth
			if col.MaxWidth > 0 && widths[i] > col.MaxWidth {
				widths[i] = col.MaxWidth
			}
			fixedWidth += widths[i]
		} else {
			totalRatio += col.WidthRatio
		}
	}

	totalPadding := (len(t.columns) - 1) * columnPadding
	available := t.display.AvailableWidth(2) - fixedWidth - totalPadding
	if available < 0 {
		available = 0
	}

	for i, col := range t.columns {
		if col.WidthRatio > 0 {
			width := int(float64(available) * col.WidthRatio / totalRatio)
			if width < col.MinWidth {
				width = col.MinWidth
			}
			if col.MaxWidth > 0 && width > col.MaxWidth {
				width = col.MaxWidth
			}
			widths[i] = width
		}
	}
	return widths
}

// Render generates the table output as a string.
func (t *ResultsTable) Render() string {
	if len(t.rows) == 0 {
		return ""
	}

	widths := t.calculateWidths()

	tableRows := make([][]string, len(t.rows))
	for i, row := range t.rows {
		cells := make([]string, len(t.columns))
		for j := range t.columns {
			if j < len(row.Cells) {
				cells[j] = TruncateWithEllipsis(row.Cells[j], widths[j])
			}
		}
		tableRows[i] = cells
	}

	tbl := table.New().
		Border(lipgloss.Border{Top: "─", Bottom: "─", Middle: "─"}).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderRow(false).
		BorderColumn(false).
		BorderHeader(t.header).
		BorderStyle(Muted).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col >= len(t.columns) {
				return lipgloss.NewStyle()
			}
			colDef := t.columns[col]
			style := colDef.Style
			if row == table.HeaderRow {
				style = Bold
			} else if style.Value() == "" {
				style = lipgloss.NewStyle()
			}
			style = style.Width(widths[col])

			switch colDef.Align {
			case AlignRight:
				style = style.Align(lipgloss.Right)
			case AlignCenter:
				style = style.Align(lipgloss.Center)
			default:
				style = style.Align(lipgloss.Left)
			}

			if col < len(t.columns)-1 {
				style = style.PaddingRight(2)
			}
			return style
		}).
		Rows(tableRows...)

	if t.header {
		names := make([]string, len(t.columns))
		for i, col := range t.columns {
			names[i] = col.Name
		}
		tbl = tbl.Headers(names...)
	}

	return tbl.Render()
}

// TruncateWithEllipsis truncates a string to maxLen runes, adding an
// ellipsis if needed. It tries to break at word boundaries.
func TruncateWithEllipsis(s string, maxLen int) string {
	runes := []rune(s)
	if maxLen <= 0 || len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}

	truncated := string(runes[:maxLen-3])
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > len(truncated)/2 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}

// FormatRowNum formats a row number with consistent width.
func FormatRowNum(num, maxNum int) string {
	width := len(fmt.Sprintf("%d", maxNum))
	if width < 2 {
		width = 2
	}
	return fmt.Sprintf("%*d", width, num)
}
