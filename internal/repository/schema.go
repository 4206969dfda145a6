package repository

// Schema definitions for the SQL report stores.
// Compatible with both SQLite and PostgreSQL.

const schemaValidationReports = `
CREATE TABLE IF NOT EXISTS validation_reports (
    filename TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    status TEXT NOT NULL,
    validated_at TEXT NOT NULL,
    document TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validation_reports_status ON validation_reports(status);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaValidationReports,
	}
}
