package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// column is a table heading. Cells longer than width runes are cut; zero
// means no limit.
type column struct {
	title string
	width int
}

// table collects rows for aligned, plain-text listing output.
type table struct {
	columns []column
	rows    [][]string
}

func newTable(columns ...column) *table {
	return &table{columns: columns}
}

// add appends a row. Missing cells render empty, extra cells are dropped.
func (t *table) add(cells ...string) {
	row := make([]string, len(t.columns))
	for i := range row {
		if i >= len(cells) {
			break
		}
		cell := strings.ReplaceAll(cells[i], "\t", " ")
		cell = strings.ReplaceAll(cell, "\n", " ")
		row[i] = truncate(cell, t.columns[i].width)
	}
	t.rows = append(t.rows, row)
}

func (t *table) len() int { return len(t.rows) }

// render writes the table with two spaces between columns.
func (t *table) render(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	titles := make([]string, len(t.columns))
	for i, c := range t.columns {
		titles[i] = c.title
	}
	fmt.Fprintln(w, strings.Join(titles, "\t"))
	for _, row := range t.rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

func formatYesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

// truncate shortens s to n runes, marking the cut with "...". n <= 3 keeps s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if n <= 3 || len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
