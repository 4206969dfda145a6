package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ReadCSV parses a CSV stream whose first record is the header.
// Short records are padded with nulls; long records are malformed.
func ReadCSV(r io.Reader) (*domain.Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: no columns to parse", ErrMalformed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ds := &domain.Dataset{Columns: dedupeColumns(header)}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(record) > len(ds.Columns) {
			return nil, fmt.Errorf("%w: line %d has %d fields, expected %d", ErrMalformed, line, len(record), len(ds.Columns))
		}
		ds.Rows = append(ds.Rows, textRow(record, len(ds.Columns)))
	}

	inferNumericColumns(ds)
	return ds, nil
}

// textRow converts raw text cells, mapping NA spellings to null and
// padding to width.
func textRow(record []string, width int) []any {
	row := make([]any, width)
	for i, cell := range record {
		if IsNA(cell) {
			continue
		}
		row[i] = cell
	}
	return row
}

// dedupeColumns suffixes repeated header names with .1, .2, ...
func dedupeColumns(header []string) []string {
	seen := make(map[string]int, len(header))
	columns := make([]string, len(header))
	for i, name := range header {
		n := seen[name]
		seen[name] = n + 1
		if n == 0 {
			columns[i] = name
			continue
		}
		candidate := name + "." + strconv.Itoa(n)
		for seen[candidate] > 0 {
			n++
			candidate = name + "." + strconv.Itoa(n)
		}
		seen[candidate] = 1
		columns[i] = candidate
	}
	return columns
}

// inferNumericColumns converts text columns whose non-null cells all parse
// as numbers into float64 columns.
func inferNumericColumns(ds *domain.Dataset) {
	for col := range ds.Columns {
		parsed := make([]float64, len(ds.Rows))
		numeric := true
		nonNull := 0
		for i, row := range ds.Rows {
			s, ok := row[col].(string)
			if !ok {
				continue
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				numeric = false
				break
			}
			parsed[i] = f
			nonNull++
		}
		if !numeric || nonNull == 0 {
			continue
		}
		for i, row := range ds.Rows {
			if row[col] != nil {
				row[col] = parsed[i]
			}
		}
	}
}
