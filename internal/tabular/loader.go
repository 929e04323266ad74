// Package tabular turns rectangular cell grids into ordered data rows.
package tabular

import (
	"strings"

	"github.com/dusk-indust/mailmerge/internal/merge"
)

// Grid is a rectangular-ish block of string cells; row 0 holds the headers.
// Rows may be ragged.
type Grid [][]string

// LoadRows splits grid into trimmed headers and one DataRow per remaining
// row, preserving input order. Short rows are padded with empty strings and
// cells beyond the header width are ignored. Duplicate headers are kept in
// the header list; within a row the later column's value wins.
func LoadRows(grid Grid) ([]string, []merge.DataRow, error) {
	if len(grid) < 2 {
		return nil, nil, &merge.InsufficientDataError{Rows: len(grid)}
	}

	headers := Headers(grid)
	rows := make([]merge.DataRow, 0, len(grid)-1)
	for _, cells := range grid[1:] {
		row := merge.NewDataRow(len(headers))
		for i, h := range headers {
			v := ""
			if i < len(cells) {
				v = cells[i]
			}
			row.Set(h, v)
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

// Headers returns the trimmed first row of grid, or nil for an empty grid.
func Headers(grid Grid) []string {
	if len(grid) == 0 {
		return nil
	}
	headers := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		headers[i] = strings.TrimSpace(h)
	}
	return headers
}
