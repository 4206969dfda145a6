package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Report status values.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// TimestampLayout formats validated_at: UTC, microseconds, trailing Z.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// ReportFilePrefix and ReportFileSuffix frame a report key on disk.
const (
	ReportFilePrefix = "validation_report_"
	ReportFileSuffix = ".json"
)

// ValidationReport is the outcome of validating one input.
// Field names and JSON types are a contract with every report consumer.
type ValidationReport struct {
	Filename      string     `json:"filename"`
	Source        SourceType `json:"source"`
	Rows          int        `json:"rows"`
	Columns       int        `json:"columns"`
	MissingValues int        `json:"missing_values"`
	Completeness  float64    `json:"completeness"`
	Threshold     float64    `json:"threshold"`
	Status        string     `json:"status"`
	ValidatedAt   string     `json:"validated_at"`
	Errors        []string   `json:"errors"`
}

// Failed reports whether the report carries at least one finding.
func (r *ValidationReport) Failed() bool {
	return r.Status == StatusFailed
}

// ReportKey returns the deterministic store key for an input filename.
func ReportKey(filename string) string {
	return ReportFilePrefix + filename + ReportFileSuffix
}

// FormatTimestamp renders t in the report timestamp layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// DecodeReport parses one stored report document. Absent fields keep their
// zero value; a document that is not a report-shaped JSON object is an error.
func DecodeReport(data []byte) (*ValidationReport, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("report document is not a JSON object")
	}

	var r ValidationReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
