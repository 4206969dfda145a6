package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ReadJSON parses a whole-document JSON array of records.
func ReadJSON(r io.Reader) (*domain.Dataset, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("%w: expected an array of records", ErrMalformed)
	}

	b := newBuilder()
	for dec.More() {
		keys, rec, err := readRecord(dec)
		if err != nil {
			return nil, err
		}
		b.addRecord(keys, rec)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return b.build(), nil
}

// ReadJSONLines parses one JSON record per line.
func ReadJSONLines(r io.Reader) (*domain.Dataset, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	b := newBuilder()
	for dec.More() {
		keys, rec, err := readRecord(dec)
		if err != nil {
			return nil, err
		}
		b.addRecord(keys, rec)
	}
	return b.build(), nil
}

// readRecord reads one object and keeps its key order.
func readRecord(dec *json.Decoder) ([]string, map[string]any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("%w: expected a record object", ErrMalformed)
	}

	var keys []string
	rec := make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("%w: expected a field name", ErrMalformed)
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, nil, fmt.Errorf("%w: field %q: %v", ErrMalformed, key, err)
		}
		if _, dup := rec[key]; !dup {
			keys = append(keys, key)
		}
		rec[key] = normalizeJSON(value)
	}

	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return keys, rec, nil
}

// normalizeJSON turns json.Number into float64 so every numeric cell has
// the same Go type regardless of the input format.
func normalizeJSON(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
