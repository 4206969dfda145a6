package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/alert"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/dashboard"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// createTestServer creates a server over an empty file store.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	store, err := repository.NewFileStore(filepath.Join(t.TempDir(), "quality"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	rc := &domain.RuleConfig{
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

	return NewServer(cfg, Deps{
		Store:      store,
		Cache:      cache.NewLRUCache(10),
		Runner:     pipeline.NewRunner(engine, store, rc),
		Aggregator: alert.New(store, domain.AlertConfig{}),
		Renderer:   dashboard.New(store),
		Version:    "test-v1",
	})
}

func do(server *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	rr := do(server, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", resp["status"])
	}
	if resp["version"] != "test-v1" {
		t.Errorf("expected version test-v1, got %s", resp["version"])
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
}

func TestReadyEndpoint(t *testing.T) {
	server := createTestServer(t)

	rr := do(server, http.MethodGet, "/ready", "")
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
}

func TestValidateEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("Passed", func(t *testing.T) {
		rr := do(server, http.MethodPost, "/validate?source=products&filename=good.csv", "product_id,price\np1,10\np2,20\n")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var report domain.ValidationReport
		if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
			t.Fatalf("failed to decode report: %v", err)
		}
		if report.Status != domain.StatusPassed {
			t.Errorf("expected passed, got %s: %v", report.Status, report.Errors)
		}
		if report.Rows != 2 {
			t.Errorf("expected 2 rows, got %d", report.Rows)
		}
	})

	t.Run("Failed", func(t *testing.T) {
		rr := do(server, http.MethodPost, "/validate?source=products&filename=bad.csv", "product_id,price\np1,-1\n")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var report domain.ValidationReport
		json.Unmarshal(rr.Body.Bytes(), &report)
		if report.Status != domain.StatusFailed {
			t.Errorf("expected failed, got %s", report.Status)
		}
	})

	t.Run("ThresholdOverride", func(t *testing.T) {
		rr := do(server, http.MethodPost, "/validate?source=products&filename=sparse.csv&threshold=50", "product_id,price\np1,\np2,3\n")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var report domain.ValidationReport
		json.Unmarshal(rr.Body.Bytes(), &report)
		if report.Threshold != 50 || report.Status != domain.StatusPassed {
			t.Errorf("expected passed at threshold 50, got %+v", report)
		}
	})

	t.Run("JSONLines", func(t *testing.T) {
		body := "{\"product_id\":\"p1\",\"price\":4}\n{\"product_id\":\"p2\",\"price\":5}\n"
		rr := do(server, http.MethodPost, "/validate?source=products&filename=items.jsonl", body)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("MissingParams", func(t *testing.T) {
		rr := do(server, http.MethodPost, "/validate?source=products", "a\n1\n")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidThreshold", func(t *testing.T) {
		rr := do(server, http.MethodPost, "/validate?source=products&filename=x.csv&threshold=high", "a\n1\n")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		rr := do(server, http.MethodPost, "/validate?source=products&filename=x.parquet", "a\n1\n")
		if rr.Code != http.StatusUnsupportedMediaType {
			t.Errorf("expected status 415, got %d", rr.Code)
		}
	})

	t.Run("MalformedBody", func(t *testing.T) {
		rr := do(server, http.MethodPost, "/validate?source=products&filename=empty.csv", "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("PathInFilename", func(t *testing.T) {
		rr := do(server, http.MethodPost, "/validate?source=products&filename=..%2Fescape.csv", "product_id,price\np1,1\n")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestReportEndpoints(t *testing.T) {
	server := createTestServer(t)
	do(server, http.MethodPost, "/validate?source=products&filename=b.csv", "product_id,price\np1,-1\n")
	do(server, http.MethodPost, "/validate?source=products&filename=a.csv", "product_id,price\np1,1\n")

	t.Run("List", func(t *testing.T) {
		rr := do(server, http.MethodGet, "/reports", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Reports []ReportSummary `json:"reports"`
			Count   int             `json:"count"`
			Failed  int             `json:"failed"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Count != 2 || resp.Failed != 1 {
			t.Errorf("expected 2 reports with 1 failed, got %d/%d", resp.Count, resp.Failed)
		}
		if resp.Reports[0].Report.Filename != "a.csv" {
			t.Errorf("expected key order, got %s first", resp.Reports[0].Report.Filename)
		}
	})

	t.Run("Get", func(t *testing.T) {
		rr := do(server, http.MethodGet, "/reports/a.csv", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"filename": "a.csv"`) {
			t.Errorf("expected stored document, got %s", rr.Body.String())
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rr := do(server, http.MethodGet, "/reports/missing.csv", "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestArtifactEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("NoAlertWhenEmpty", func(t *testing.T) {
		rr := do(server, http.MethodGet, "/alerts", "")
		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}
	})

	t.Run("ValidateInvalidatesCache", func(t *testing.T) {
		do(server, http.MethodPost, "/validate?source=products&filename=bad.csv", "product_id,price\np1,-1\n")

		rr := do(server, http.MethodGet, "/alerts", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		body := rr.Body.String()
		if !strings.HasPrefix(body, "QUALITY ALERT - FAILURE DETECTED\n") {
			t.Errorf("unexpected alert header: %q", body)
		}
		if !strings.Contains(body, "[FAILED] bad.csv\n") {
			t.Errorf("expected bad.csv in alert, got %q", body)
		}
	})

	t.Run("Dashboard", func(t *testing.T) {
		rr := do(server, http.MethodGet, "/dashboard", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("expected html, got %s", ct)
		}
		if !strings.Contains(rr.Body.String(), "<td>bad.csv</td>") {
			t.Errorf("expected bad.csv row in dashboard")
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		rr := do(server, http.MethodGet, "/metrics", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "kestrel_validation_reports_total") {
			t.Error("expected kestrel metrics")
		}
	})
}
