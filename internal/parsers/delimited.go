package parsers

import "strings"

// Grid is an ordered sequence of rows of string cells. Rows may be ragged.
// A grid is produced once per parse and is not modified afterwards.
type Grid [][]string

// Cell returns the cell at (row, col), or "" when either index is out of range.
func (g Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g) {
		return ""
	}
	if col < 0 || col >= len(g[row]) {
		return ""
	}
	return g[row][col]
}

// Row returns row i, or nil when out of range.
func (g Grid) Row(i int) []string {
	if i < 0 || i >= len(g) {
		return nil
	}
	return g[i]
}

// Width returns the length of the widest row.
func (g Grid) Width() int {
	width := 0
	for _, row := range g {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}

// Parse turns comma-delimited text into a Grid in a single left-to-right scan.
//
// A double quote toggles quoted mode; inside quotes a doubled quote is a
// literal quote. Commas and line breaks (\n, \r or \r\n) are literal inside
// quotes. Every token is trimmed. A row is emitted when it has at least one
// cell or a non-empty pending token, so blank lines produce nothing.
//
// Parse never fails: unbalanced quotes and ragged rows degrade into literal
// text and short rows.
func Parse(text string) Grid {
	var (
		grid     Grid
		row      []string
		token    strings.Builder
		inQuotes bool
	)

	endRow := func() {
		if token.Len() > 0 || len(row) > 0 {
			row = append(row, strings.TrimSpace(token.String()))
			grid = append(grid, row)
		}
		row = nil
		token.Reset()
	}

	// Only ASCII bytes are significant, so scanning bytes is safe for UTF-8:
	// continuation bytes of multi-byte runes never collide with them.
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(text) && text[i+1] == '"' {
				token.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == ',' && !inQuotes:
			row = append(row, strings.TrimSpace(token.String()))
			token.Reset()
		case (c == '\r' || c == '\n') && !inQuotes:
			endRow()
			if c == '\r' && i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
		default:
			token.WriteByte(c)
		}
	}
	endRow()

	return grid
}

// Join serializes a grid back to delimited text without quoting. It is the
// inverse of Parse only for cells free of commas, quotes and line breaks.
func Join(g Grid) string {
	var b strings.Builder
	for i, row := range g {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(row, ","))
	}
	return b.String()
}
