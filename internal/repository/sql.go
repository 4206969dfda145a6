package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.ReportStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// NewSQLRepository opens the configured SQL database and runs migrations.
func NewSQLRepository(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Save upserts the report document keyed by filename.
func (r *SQLRepository) Save(ctx context.Context, report *domain.ValidationReport) error {
	doc, err := encodeReport(report)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO validation_reports (filename, source, status, validated_at, document)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (filename) DO UPDATE SET
			source = excluded.source,
			status = excluded.status,
			validated_at = excluded.validated_at,
			document = excluded.document
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		report.Filename, string(report.Source), report.Status, report.ValidatedAt, string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.Filename, err)
	}
	return nil
}

// Get returns the document stored for filename.
func (r *SQLRepository) Get(ctx context.Context, filename string) (*domain.StoredReport, error) {
	query := `SELECT document FROM validation_reports WHERE filename = ?`

	var doc string
	err := r.db.QueryRowContext(ctx, r.rebind(query), filename).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &domain.StoredReport{Key: domain.ReportKey(filename), Data: []byte(doc)}, nil
}

// Scan returns every stored document.
func (r *SQLRepository) Scan(ctx context.Context) ([]domain.StoredReport, error) {
	query := `SELECT filename, document FROM validation_reports ORDER BY filename`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.StoredReport
	for rows.Next() {
		var filename, doc string
		if err := rows.Scan(&filename, &doc); err != nil {
			return nil, err
		}
		reports = append(reports, domain.StoredReport{Key: domain.ReportKey(filename), Data: []byte(doc)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortReports(reports)
	return reports, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
