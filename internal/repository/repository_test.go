package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func sampleReport(filename, status string, errs []string) *domain.ValidationReport {
	return &domain.ValidationReport{
		Filename:      filename,
		Source:        domain.SourceProducts,
		Rows:          40,
		Columns:       3,
		MissingValues: 3,
		Completeness:  97.5,
		Threshold:     95,
		Status:        status,
		ValidatedAt:   "2026-10-17T09:00:00.000000Z",
		Errors:        errs,
	}
}

// testStore runs the store contract every backend must honour.
func testStore(t *testing.T, store domain.ReportStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := store.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("EmptyScan", func(t *testing.T) {
		reports, err := store.Scan(ctx)
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if len(reports) != 0 {
			t.Errorf("expected no reports, got %d", len(reports))
		}
	})

	t.Run("SaveAndGet", func(t *testing.T) {
		report := sampleReport("a.csv", domain.StatusFailed, []string{
			"missing required column (schema): category",
			"1 values violate min_value for price",
		})
		report.Completeness = 66.67

		if err := store.Save(ctx, report); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		stored, err := store.Get(ctx, "a.csv")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if stored.Key != "validation_report_a.csv.json" {
			t.Errorf("unexpected key %s", stored.Key)
		}

		var decoded domain.ValidationReport
		if err := json.Unmarshal(stored.Data, &decoded); err != nil {
			t.Fatalf("stored document is not JSON: %v", err)
		}
		if !reflect.DeepEqual(&decoded, report) {
			t.Errorf("round trip mismatch:\n%+v\n%+v", decoded, *report)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, "missing.csv")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("OverwriteAndOrder", func(t *testing.T) {
		for _, name := range []string{"c.csv", "b.csv", "a.csv"} {
			if err := store.Save(ctx, sampleReport(name, domain.StatusPassed, nil)); err != nil {
				t.Fatalf("Save %s failed: %v", name, err)
			}
		}

		reports, err := store.Scan(ctx)
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}

		var keys []string
		for _, r := range reports {
			keys = append(keys, r.Key)
		}
		want := []string{
			"validation_report_a.csv.json",
			"validation_report_b.csv.json",
			"validation_report_c.csv.json",
		}
		if !reflect.DeepEqual(keys, want) {
			t.Fatalf("expected keys %v, got %v", want, keys)
		}

		var first domain.ValidationReport
		if err := json.Unmarshal(reports[0].Data, &first); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if first.Status != domain.StatusPassed || first.Errors != nil {
			t.Errorf("expected overwritten passed report, got %+v", first)
		}
	})

	t.Run("InvalidFilename", func(t *testing.T) {
		err := store.Save(ctx, sampleReport("../escape.csv", domain.StatusPassed, nil))
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := store.Save(ctx, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for nil report, got %v", err)
		}
	})
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "quality")

	store, err := New(domain.RepositoryConfig{Driver: "file", QualityDir: dir})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	testStore(t, store)

	t.Run("DocumentFormat", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(dir, "validation_report_b.csv.json"))
		if err != nil {
			t.Fatalf("report file missing: %v", err)
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if v, ok := raw["errors"]; !ok || v != nil {
			t.Errorf("expected errors: null, got %v (present=%v)", v, ok)
		}
		if raw["threshold"] != 95.0 || raw["completeness"] != 97.5 {
			t.Errorf("unexpected numbers: %v %v", raw["threshold"], raw["completeness"])
		}
	})

	t.Run("ScanIgnoresOtherFiles", func(t *testing.T) {
		os.WriteFile(filepath.Join(dir, "quality_alert.txt"), []byte("alert"), 0o644)
		os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o644)
		os.WriteFile(filepath.Join(dir, "validation_report_bad.csv.json"), []byte("{not json"), 0o644)
		os.Mkdir(filepath.Join(dir, "validation_report_dir.json"), 0o755)

		reports, err := store.Scan(context.Background())
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if len(reports) != 4 {
			t.Fatalf("expected 4 report documents, got %d", len(reports))
		}
		if reports[2].Key != "validation_report_bad.csv.json" {
			t.Errorf("expected corrupt document returned raw in key order, got %s", reports[2].Key)
		}
	})

	t.Run("NoTempFilesLeft", func(t *testing.T) {
		matches, _ := filepath.Glob(filepath.Join(dir, ".report-*"))
		if len(matches) != 0 {
			t.Errorf("temp files left behind: %v", matches)
		}
	})
}

func TestSQLiteStore(t *testing.T) {
	store, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer store.Close()

	testStore(t, store)
}

func TestSQLiteInMemory(t *testing.T) {
	store, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer store.Close()

	if err := store.Save(context.Background(), sampleReport("m.csv", domain.StatusPassed, nil)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := store.Get(context.Background(), "m.csv"); err != nil {
		t.Errorf("Get failed: %v", err)
	}
}

func TestBadgerStore(t *testing.T) {
	store, err := New(domain.RepositoryConfig{Driver: "badger", BadgerInMemory: true})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	testStore(t, store)
}

func TestBadgerRequiresPath(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "badger"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("KESTREL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KESTREL_TEST_REDIS_ADDR not set")
	}

	store, err := New(domain.RepositoryConfig{Driver: "redis", RedisAddr: addr, RedisKey: "kestrel:test:" + t.Name()})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	rs := store.(*RedisStore)
	rs.client.Del(context.Background(), rs.key)
	defer rs.client.Del(context.Background(), rs.key)

	testStore(t, store)
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "mongodb"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	if got := pg.rebind("SELECT ? , ?"); got != "SELECT $1 , $2" {
		t.Errorf("unexpected postgres query %q", got)
	}

	lite := &SQLRepository{driver: "sqlite"}
	if got := lite.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite query should be unchanged, got %q", got)
	}
}

func TestPostgresDSNDefaults(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{PostgresUser: "kestrel"})
	want := "host=localhost port=5432 user=kestrel password= dbname=kestrel sslmode=disable"
	if dsn != want {
		t.Errorf("expected %q, got %q", want, dsn)
	}
}
