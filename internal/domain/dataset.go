package domain

// Dataset is an in-memory table. A nil cell is a null.
// Every row has exactly len(Columns) cells.
type Dataset struct {
	Columns []string
	Rows    [][]any
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int {
	return len(d.Rows)
}

// NumColumns returns the column count.
func (d *Dataset) NumColumns() int {
	return len(d.Columns)
}

// ColumnIndex returns the position of a column, or -1 when absent.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the dataset carries the named column.
func (d *Dataset) HasColumn(name string) bool {
	return d.ColumnIndex(name) >= 0
}

// Column returns the cells of one column. The second result is false
// when the column is absent.
func (d *Dataset) Column(name string) ([]any, bool) {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	values := make([]any, len(d.Rows))
	for i, row := range d.Rows {
		values[i] = row[idx]
	}
	return values, true
}

// MissingCells counts null cells across the whole table.
func (d *Dataset) MissingCells() int {
	missing := 0
	for _, row := range d.Rows {
		for _, cell := range row {
			if cell == nil {
				missing++
			}
		}
	}
	return missing
}
