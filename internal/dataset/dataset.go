// Package dataset materialises tabular input files into domain.Dataset values.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	// ErrUnsupportedFormat is returned for file extensions no loader handles.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrMalformed is returned when a file cannot be parsed as its format.
	ErrMalformed = errors.New("malformed dataset")
)

// Format identifies an input encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatXLSX  Format = "xlsx"
)

// naValues are read as null, following the usual dataframe conventions.
var naValues = map[string]bool{
	"":        true,
	"NA":      true,
	"N/A":     true,
	"n/a":     true,
	"NaN":     true,
	"nan":     true,
	"-NaN":    true,
	"-nan":    true,
	"null":    true,
	"NULL":    true,
	"None":    true,
	"<NA>":    true,
	"#N/A":    true,
	"#NA":     true,
	"1.#IND":  true,
	"1.#QNAN": true,
}

// IsNA reports whether a raw text cell denotes a missing value.
func IsNA(s string) bool {
	return naValues[s]
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads the file at path with the loader matching its extension.
func Load(path string) (*domain.Dataset, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	if format == FormatXLSX {
		return LoadXLSX(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatCSV:
		return ReadCSV(f)
	case FormatJSON:
		return ReadJSON(f)
	case FormatJSONL:
		return ReadJSONLines(f)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// builder accumulates records with possibly different key sets into a
// rectangular table. Columns appear in first-seen order.
type builder struct {
	columns []string
	index   map[string]int
	records []map[string]any
}

func newBuilder() *builder {
	return &builder{index: make(map[string]int)}
}

func (b *builder) addColumn(name string) {
	if _, ok := b.index[name]; ok {
		return
	}
	b.index[name] = len(b.columns)
	b.columns = append(b.columns, name)
}

func (b *builder) addRecord(keys []string, record map[string]any) {
	for _, k := range keys {
		b.addColumn(k)
	}
	b.records = append(b.records, record)
}

func (b *builder) build() *domain.Dataset {
	ds := &domain.Dataset{
		Columns: b.columns,
		Rows:    make([][]any, len(b.records)),
	}
	for i, rec := range b.records {
		row := make([]any, len(b.columns))
		for col, v := range rec {
			row[b.index[col]] = v
		}
		ds.Rows[i] = row
	}
	return ds
}
