package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// BadgerStore keeps reports in an embedded key-value store keyed by the
// report key, so iteration order is the lexicographic scan order.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadgerStore opens a badger database at cfg.BadgerPath, or in memory.
func NewBadgerStore(cfg domain.RepositoryConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.BadgerInMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.BadgerPath == "" {
			return nil, fmt.Errorf("%w: badger_path is required for a persistent store", ErrInvalidInput)
		}
		if err := os.MkdirAll(cfg.BadgerPath, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.BadgerPath).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{logger: slog.Default()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Save replaces the document for the report's filename.
func (s *BadgerStore) Save(ctx context.Context, report *domain.ValidationReport) error {
	doc, err := encodeReport(report)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(domain.ReportKey(report.Filename)), doc)
	})
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.Filename, err)
	}
	return nil
}

// Get returns the document stored for filename.
func (s *BadgerStore) Get(ctx context.Context, filename string) (*domain.StoredReport, error) {
	key := domain.ReportKey(filename)

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &domain.StoredReport{Key: key, Data: data}, nil
}

// Scan iterates every report key in byte order.
func (s *BadgerStore) Scan(ctx context.Context) ([]domain.StoredReport, error) {
	var reports []domain.StoredReport

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(domain.ReportFilePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				slog.Debug("skipping unreadable report", "key", string(item.Key()), "error", err)
				continue
			}
			reports = append(reports, domain.StoredReport{Key: string(item.KeyCopy(nil)), Data: data})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// Ping reports whether the database is open.
func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
