package dataset

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/xuri/excelize/v2"
)

// LoadXLSX reads the first sheet of a workbook. The first row is the header.
func LoadXLSX(path string) (*domain.Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformed)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no columns to parse", ErrMalformed)
	}

	ds := &domain.Dataset{Columns: dedupeColumns(rows[0])}
	for i, record := range rows[1:] {
		if len(record) > len(ds.Columns) {
			return nil, fmt.Errorf("%w: row %d has %d cells, expected %d", ErrMalformed, i+2, len(record), len(ds.Columns))
		}
		ds.Rows = append(ds.Rows, textRow(record, len(ds.Columns)))
	}

	inferNumericColumns(ds)
	return ds, nil
}
