package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/conduit-lang/taskprovider/internal/contract"
)

// Table renders rows under a header line
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a table with the given headers
func NewTable(w io.Writer, headers []string, noColor bool) *Table {
	return &Table{
		writer:  w,
		headers: headers,
		noColor: noColor,
	}
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render renders the table to the writer
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = len(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	bold := color.New(color.Bold, color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if t.noColor {
		bold.DisableColor()
		gray.DisableColor()
	}

	cells := make([]string, len(t.headers))
	for i, header := range t.headers {
		cells[i] = bold.Sprint(padRight(header, widths[i]))
	}
	fmt.Fprintln(t.writer, strings.TrimRight(strings.Join(cells, "  "), " "))

	for i, width := range widths {
		cells[i] = gray.Sprint(strings.Repeat("─", width))
	}
	fmt.Fprintln(t.writer, strings.Join(cells, "  "))

	for _, row := range t.rows {
		line := make([]string, 0, len(widths))
		for i := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			line = append(line, padRight(cell, widths[i]))
		}
		fmt.Fprintln(t.writer, strings.TrimRight(strings.Join(line, "  "), " "))
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// RowColumns returns the key column first, then the remaining columns of rows
// in name order
func RowColumns(rows []contract.Row) []string {
	seen := make(map[string]bool)
	var rest []string
	hasKey := false
	for _, row := range rows {
		for name := range row {
			if name == contract.TaskEntry.ID {
				hasKey = true
				continue
			}
			if !seen[name] {
				seen[name] = true
				rest = append(rest, name)
			}
		}
	}
	sort.Strings(rest)

	if hasKey {
		return append([]string{contract.TaskEntry.ID}, rest...)
	}
	return rest
}

// RenderRows prints query results as a table. NULL values render empty.
func RenderRows(w io.Writer, rows []contract.Row, noColor bool) {
	if len(rows) == 0 {
		gray := color.New(color.FgHiBlack)
		if noColor {
			gray.DisableColor()
		}
		gray.Fprintln(w, "(no rows)")
		return
	}

	columns := RowColumns(rows)
	t := NewTable(w, columns, noColor)
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, name := range columns {
			if v, ok := row[name]; ok && v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		t.AddRow(cells...)
	}
	t.Render()
}

// KeyValues renders aligned "key: value" lines in the given order
func KeyValues(w io.Writer, pairs [][2]string, noColor bool) {
	width := 0
	for _, p := range pairs {
		if len(p[0]) > width {
			width = len(p[0])
		}
	}

	cyan := color.New(color.FgCyan)
	if noColor {
		cyan.DisableColor()
	}
	for _, p := range pairs {
		cyan.Fprint(w, padRight(p[0]+":", width+1))
		fmt.Fprintf(w, " %s\n", p[1])
	}
}
