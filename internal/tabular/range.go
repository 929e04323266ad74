package tabular

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultRange covers the first 26 columns of every row.
const DefaultRange = "A:Z"

// Range is a parsed A1-notation cell range. Row and column bounds are
// 1-based and inclusive; zero means unbounded.
type Range struct {
	Sheet    string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ParseRange parses descriptors such as "A:Z", "A1:Z1000", "B2:D", "2:5"
// and "Sheet1!A1:C10". An empty descriptor yields DefaultRange. A range whose
// end has a row but no column must not name a start column either.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = DefaultRange
	}
	var r Range
	if i := strings.LastIndex(s, "!"); i >= 0 {
		r.Sheet = strings.Trim(s[:i], "'")
		s = s[i+1:]
	}

	start, end, found := strings.Cut(s, ":")
	if !found {
		end = start
	}
	var err error
	if r.StartCol, r.StartRow, err = parseCell(start); err != nil {
		return Range{}, fmt.Errorf("tabular: range %q: %w", s, err)
	}
	if r.EndCol, r.EndRow, err = parseCell(end); err != nil {
		return Range{}, fmt.Errorf("tabular: range %q: %w", s, err)
	}
	if r.EndCol == 0 && r.EndRow != 0 && r.StartCol != 0 {
		return Range{}, fmt.Errorf("tabular: range %q: end cell needs a column", s)
	}
	if r.StartCol == 0 {
		r.StartCol = 1
	}
	if r.StartRow == 0 {
		r.StartRow = 1
	}
	if r.EndCol != 0 && r.EndCol < r.StartCol {
		return Range{}, fmt.Errorf("tabular: range %q: end column before start column", s)
	}
	if r.EndRow != 0 && r.EndRow < r.StartRow {
		return Range{}, fmt.Errorf("tabular: range %q: end row before start row", s)
	}
	return r, nil
}

// String renders the range back to A1 notation.
func (r Range) String() string {
	var b strings.Builder
	if r.Sheet != "" {
		if strings.ContainsAny(r.Sheet, " '!") {
			b.WriteString("'" + strings.ReplaceAll(r.Sheet, "'", "''") + "'!")
		} else {
			b.WriteString(r.Sheet + "!")
		}
	}
	if r.EndCol == 0 && r.EndRow != 0 && r.StartCol <= 1 {
		// Whole rows, as in "2:5".
		b.WriteString(strconv.Itoa(max(r.StartRow, 1)) + ":" + strconv.Itoa(r.EndRow))
		return b.String()
	}
	b.WriteString(formatCell(r.StartCol, r.StartRow, r.StartRow > 1 || r.EndRow != 0))
	b.WriteByte(':')
	b.WriteString(formatCell(r.EndCol, r.EndRow, true))
	return b.String()
}

// Clip extracts the sub-grid covered by r. Cells outside the grid are not
// synthesized.
func (r Range) Clip(g Grid) Grid {
	first := r.StartRow - 1
	if first >= len(g) {
		return Grid{}
	}
	last := len(g)
	if r.EndRow != 0 && r.EndRow < last {
		last = r.EndRow
	}

	out := make(Grid, 0, last-first)
	for _, row := range g[first:last] {
		lo := r.StartCol - 1
		if lo > len(row) {
			lo = len(row)
		}
		hi := len(row)
		if r.EndCol != 0 && r.EndCol < hi {
			hi = r.EndCol
		}
		if hi < lo {
			hi = lo
		}
		cells := make([]string, hi-lo)
		copy(cells, row[lo:hi])
		out = append(out, cells)
	}
	return out
}

// parseCell splits "AB12" into column 28 and row 12. Either part may be
// absent.
func parseCell(s string) (col, row int, err error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		col = col*26 + int(s[i]-'A'+1)
		i++
	}
	if i < len(s) {
		row, err = strconv.Atoi(s[i:])
		if err != nil || row < 1 {
			return 0, 0, fmt.Errorf("invalid cell reference %q", s)
		}
	}
	if i == 0 && row == 0 {
		return 0, 0, fmt.Errorf("invalid cell reference %q", s)
	}
	return col, row, nil
}

func formatCell(col, row int, withRow bool) string {
	var letters []byte
	for c := col; c > 0; c = (c - 1) / 26 {
		letters = append([]byte{byte('A' + (c-1)%26)}, letters...)
	}
	if withRow && row > 0 {
		return string(letters) + strconv.Itoa(row)
	}
	return string(letters)
}
