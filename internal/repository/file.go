package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const defaultQualityDir = "./data/quality"

// FileStore keeps one JSON document per report in a flat quality directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the quality directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = defaultQualityDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create quality directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the quality directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Save writes the report to a temporary file and renames it into place,
// so readers never observe a partial document.
func (s *FileStore) Save(ctx context.Context, report *domain.ValidationReport) error {
	doc, err := encodeReport(report)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp report: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write report: %w", err)
	}

	if err := os.Rename(tmpPath, s.path(report.Filename)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save report %s: %w", report.Filename, err)
	}
	return nil
}

// Get reads the document stored for filename.
func (s *FileStore) Get(ctx context.Context, filename string) (*domain.StoredReport, error) {
	if err := checkFilename(filename); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(filename))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &domain.StoredReport{Key: domain.ReportKey(filename), Data: data}, nil
}

// Scan reads every validation_report_*.json document in the directory.
// Files that cannot be read are skipped.
func (s *FileStore) Scan(ctx context.Context) ([]domain.StoredReport, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list quality directory: %w", err)
	}

	var reports []domain.StoredReport
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := entry.Name()
		if entry.IsDir() || !isReportFile(name) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			slog.Debug("skipping unreadable report", "file", name, "error", err)
			continue
		}
		reports = append(reports, domain.StoredReport{Key: name, Data: data})
	}

	sortReports(reports)
	return reports, nil
}

// Ping checks that the quality directory is still reachable.
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(filename string) string {
	return filepath.Join(s.dir, domain.ReportKey(filename))
}

func isReportFile(name string) bool {
	return strings.HasPrefix(name, domain.ReportFilePrefix) &&
		strings.HasSuffix(name, domain.ReportFileSuffix) &&
		len(name) > len(domain.ReportFilePrefix)+len(domain.ReportFileSuffix)
}
