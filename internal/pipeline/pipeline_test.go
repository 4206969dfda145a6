package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/opensource-finance/kestrel/internal/dataset"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

func testRules() *domain.RuleConfig {
	return &domain.RuleConfig{
		Schemas: domain.SchemaDefinition{
			domain.SourceProducts: {RequiredColumns: []string{"product_id", "price"}},
		},
		Rules: domain.BusinessRules{
			domain.SourceProducts: {
				{Column: "price", Constraints: []domain.Constraint{domain.MinValue{Min: 0}}},
			},
		},
		Thresholds: domain.Thresholds{Global: domain.DefaultGlobalThreshold},
	}
}

func newTestRunner(t *testing.T) (*Runner, *repository.FileStore, string) {
	t.Helper()

	store, err := repository.NewFileStore(filepath.Join(t.TempDir(), "quality"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return NewRunner(engine, store, testRules()), store, t.TempDir()
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	return path
}

const (
	goodCSV = "product_id,price\np1,10\np2,20\n"
	badCSV  = "product_id,price\np1,-5\np2,\n"
)

func TestValidateFile(t *testing.T) {
	runner, store, dir := newTestRunner(t)
	ctx := context.Background()

	t.Run("Passed", func(t *testing.T) {
		path := writeInput(t, dir, "good.csv", goodCSV)

		report, err := runner.ValidateFile(ctx, path, domain.SourceProducts, domain.Overrides{})
		if err != nil {
			t.Fatalf("ValidateFile failed: %v", err)
		}
		if report.Status != domain.StatusPassed {
			t.Errorf("expected passed, got %s: %v", report.Status, report.Errors)
		}
		if report.Filename != "good.csv" {
			t.Errorf("expected base filename, got %s", report.Filename)
		}

		stored, err := store.Get(ctx, "good.csv")
		if err != nil {
			t.Fatalf("report not persisted: %v", err)
		}
		decoded, err := domain.DecodeReport(stored.Data)
		if err != nil {
			t.Fatalf("stored report unreadable: %v", err)
		}
		if decoded.Rows != 2 || decoded.Columns != 2 {
			t.Errorf("unexpected shape %dx%d", decoded.Rows, decoded.Columns)
		}
	})

	t.Run("Findings", func(t *testing.T) {
		path := writeInput(t, dir, "bad.csv", badCSV)

		report, err := runner.ValidateFile(ctx, path, domain.SourceProducts, domain.Overrides{})
		if err != nil {
			t.Fatalf("ValidateFile failed: %v", err)
		}
		want := []string{
			"1 values violate min_value for price",
			"insufficient completeness (75.00%) < threshold 95%",
		}
		if len(report.Errors) != len(want) {
			t.Fatalf("expected %v, got %v", want, report.Errors)
		}
		for i := range want {
			if report.Errors[i] != want[i] {
				t.Errorf("error %d: expected %q, got %q", i, want[i], report.Errors[i])
			}
		}
	})

	t.Run("MissingInput", func(t *testing.T) {
		_, err := runner.ValidateFile(ctx, filepath.Join(dir, "absent.csv"), domain.SourceProducts, domain.Overrides{})
		if !errors.Is(err, ErrInputNotFound) {
			t.Errorf("expected ErrInputNotFound, got %v", err)
		}
		if _, err := store.Get(ctx, "absent.csv"); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("no report should be written, got %v", err)
		}
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		path := writeInput(t, dir, "notes.txt", "hello")

		_, err := runner.ValidateFile(ctx, path, domain.SourceProducts, domain.Overrides{})
		if !errors.Is(err, dataset.ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
		if _, err := store.Get(ctx, "notes.txt"); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("no report should be written, got %v", err)
		}
	})
}

func TestValidateBatch(t *testing.T) {
	runner, store, dir := newTestRunner(t)
	ctx := context.Background()

	good := writeInput(t, dir, "good.csv", goodCSV)
	bad := writeInput(t, dir, "bad.csv", badCSV)

	t.Run("Mixed", func(t *testing.T) {
		res, err := runner.ValidateBatch(ctx, []Input{
			{Path: good, Source: domain.SourceProducts},
			{Path: bad, Source: domain.SourceProducts},
		}, 2)
		if err != nil {
			t.Fatalf("ValidateBatch failed: %v", err)
		}
		if res.AllPassed() {
			t.Error("expected batch to fail")
		}
		if res.ExitCode() != ExitFindings {
			t.Errorf("expected exit %d, got %d", ExitFindings, res.ExitCode())
		}
		if res.Results[0].Path != good || res.Results[1].Path != bad {
			t.Errorf("results out of input order: %+v", res.Results)
		}

		reports, err := store.Scan(ctx)
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if len(reports) != 2 {
			t.Errorf("expected 2 stored reports, got %d", len(reports))
		}
	})

	t.Run("AllPassed", func(t *testing.T) {
		res, err := runner.ValidateBatch(ctx, []Input{{Path: good, Source: domain.SourceProducts}}, 0)
		if err != nil {
			t.Fatalf("ValidateBatch failed: %v", err)
		}
		if !res.AllPassed() || res.ExitCode() != ExitOK {
			t.Errorf("expected a passing batch, got %+v", res.Results[0].Report)
		}
	})

	t.Run("PreconditionWins", func(t *testing.T) {
		res, err := runner.ValidateBatch(ctx, []Input{
			{Path: bad, Source: domain.SourceProducts},
			{Path: filepath.Join(dir, "absent.csv"), Source: domain.SourceProducts},
		}, 1)
		if err != nil {
			t.Fatalf("ValidateBatch failed: %v", err)
		}
		if res.ExitCode() != ExitPrecondition {
			t.Errorf("expected exit %d, got %d", ExitPrecondition, res.ExitCode())
		}
		if res.Results[0].Report == nil {
			t.Error("valid input should still be validated")
		}
	})

	t.Run("DuplicateFilename", func(t *testing.T) {
		other := filepath.Join(t.TempDir(), "good.csv")
		_, err := runner.ValidateBatch(ctx, []Input{
			{Path: good, Source: domain.SourceProducts},
			{Path: other, Source: domain.SourceProducts},
		}, 2)
		if !errors.Is(err, ErrDuplicateInput) {
			t.Errorf("expected ErrDuplicateInput, got %v", err)
		}
	})
}

type recordingBus struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (b *recordingBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBus) Ping(ctx context.Context) error { return nil }
func (b *recordingBus) Close() error                   { return nil }

func TestReportSavedEvent(t *testing.T) {
	runner, _, dir := newTestRunner(t)
	bus := &recordingBus{}
	runner.WithBus(bus)

	path := writeInput(t, dir, "good.csv", goodCSV)
	if _, err := runner.ValidateFile(context.Background(), path, domain.SourceProducts, domain.Overrides{}); err != nil {
		t.Fatalf("ValidateFile failed: %v", err)
	}

	if len(bus.topics) != 1 || bus.topics[0] != domain.TopicReportSaved {
		t.Fatalf("expected one %s event, got %v", domain.TopicReportSaved, bus.topics)
	}

	var event domain.ValidationReport
	if err := json.Unmarshal(bus.payloads[0], &event); err != nil {
		t.Fatalf("event payload is not a report: %v", err)
	}
	if event.Filename != "good.csv" {
		t.Errorf("unexpected event filename %s", event.Filename)
	}
}
