// Package repository provides report store implementations.
package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("report not found")
	ErrInvalidInput = errors.New("invalid input")
)

// New creates a report store based on configuration.
func New(cfg domain.RepositoryConfig) (domain.ReportStore, error) {
	var store domain.ReportStore
	var err error

	switch cfg.Driver {
	case "", "file":
		store, err = NewFileStore(cfg.QualityDir)
	case "sqlite", "postgres":
		store, err = NewSQLRepository(cfg)
	case "badger":
		store, err = NewBadgerStore(cfg)
	case "redis":
		store, err = NewRedisStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, err
	}
	return store, nil
}

// encodeReport renders the stored JSON document for a report.
func encodeReport(report *domain.ValidationReport) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("%w: report is required", ErrInvalidInput)
	}
	if err := checkFilename(report.Filename); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return buf.Bytes(), nil
}

// checkFilename rejects names that cannot form a single flat key.
func checkFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	if strings.ContainsAny(filename, `/\`) || filename == "." || filename == ".." {
		return fmt.Errorf("%w: filename %q must not contain a path", ErrInvalidInput, filename)
	}
	return nil
}

// sortReports orders documents by key, the enumeration order every
// store guarantees.
func sortReports(reports []domain.StoredReport) {
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].Key < reports[j].Key
	})
}
