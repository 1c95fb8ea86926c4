package output

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jakopako/sitecheckr/internal/types"
)

func scenarioReports() []types.ScenarioReport {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []types.ScenarioReport{
		{
			ID:       "a",
			Scenario: "services <automation>",
			Status:   types.StatusSuccess,
			Started:  started,
			Finished: started.Add(1500 * time.Millisecond),
			Steps: []types.StepResult{
				{Index: 0, Name: "hover services", Action: types.ActionHover, Status: types.StatusSuccess},
				{Index: 1, Name: "click automation", Action: types.ActionClick, Status: types.StatusSuccess},
			},
		},
		{
			ID:       "b",
			Scenario: "worldwide",
			Status:   types.StatusNotFound,
			Started:  started,
			Finished: started.Add(time.Second),
			Steps: []types.StepResult{
				{Index: 0, Name: "open list", Action: types.ActionClick, Status: types.StatusNotFound, Message: "no element matches id 'worldwide'"},
				{Index: 1, Name: "count", Action: types.ActionAssertCount, Status: types.StatusSkipped},
			},
		},
	}
}

func probeReports() []types.ProbeReport {
	return []types.ProbeReport{
		{Name: "postal code de 70597", StatusCode: 200, Latency: 120 * time.Millisecond, OK: true},
		{Name: "postal code us 00000", StatusCode: 404, Latency: 80 * time.Millisecond, Diagnostics: []string{"expected status 200, got 404", "expected content type"}},
	}
}

func feedScenarios(reports []types.ScenarioReport) <-chan types.ScenarioReport {
	c := make(chan types.ScenarioReport, len(reports))
	for _, r := range reports {
		c <- r
	}
	close(c)
	return c
}

func feedProbes(reports []types.ProbeReport) <-chan types.ProbeReport {
	c := make(chan types.ProbeReport, len(reports))
	for _, r := range reports {
		c <- r
	}
	close(c)
	return c
}

func TestNewWriter(t *testing.T) {
	tests := []struct {
		wc      WriterConfig
		wantErr bool
	}{
		{WriterConfig{Type: STDOUT_WRITER_TYPE}, false},
		{WriterConfig{}, false},
		{WriterConfig{Type: FILE_WRITER_TYPE}, true},
		{WriterConfig{Type: FILE_WRITER_TYPE, FileDir: t.TempDir()}, false},
		{WriterConfig{Type: API_WRITER_TYPE}, true},
		{WriterConfig{Type: API_WRITER_TYPE, Uri: "http://localhost/reports"}, false},
		{WriterConfig{Type: "kafka"}, true},
	}
	for _, tt := range tests {
		_, err := NewWriter(&tt.wc)
		if (err != nil) != tt.wantErr {
			t.Errorf("writer type '%s': expected error %v, got %v", tt.wc.Type, tt.wantErr, err)
		}
	}
}

func TestStdoutWriterDoesNotEscapeHTML(t *testing.T) {
	w := NewStdoutWriter(&WriterConfig{})
	var buf bytes.Buffer
	w.out = &buf
	w.WriteScenarios(feedScenarios(scenarioReports()))
	out := buf.String()
	if !strings.Contains(out, "services <automation>") {
		t.Fatalf("expected the scenario name to be written unescaped, got %s", out)
	}
	if strings.Count(out, `"scenario":`) != 2 {
		t.Fatalf("expected two reports to be written, got %s", out)
	}
}

func TestFileWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	w, err := NewFileWriter(&WriterConfig{FileDir: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.WriteScenarios(feedScenarios(scenarioReports()))
	w.WriteProbes(feedProbes(probeReports()))

	b, err := os.ReadFile(filepath.Join(dir, scenariosFilename))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var scenarios []types.ScenarioReport
	if err := json.Unmarshal(b, &scenarios); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scenarios) != 2 || scenarios[1].Status != types.StatusNotFound {
		t.Fatalf("unexpected scenario reports %+v", scenarios)
	}

	b, err = os.ReadFile(filepath.Join(dir, probesFilename))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var probes []types.ProbeReport
	if err := json.Unmarshal(b, &probes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(probes) != 2 || probes[0].Name != "postal code de 70597" {
		t.Fatalf("unexpected probe reports %+v", probes)
	}
}

type reportAPI struct {
	mu        sync.Mutex
	scenarios [][]types.ScenarioReport
	probes    [][]types.ProbeReport
	status    int
}

func (a *reportAPI) router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if u, p, ok := r.BasicAuth(); !ok || u != "sitecheckr" || p != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/scenarios", func(w http.ResponseWriter, r *http.Request) {
		var batch []types.ScenarioReport
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		a.mu.Lock()
		a.scenarios = append(a.scenarios, batch)
		a.mu.Unlock()
		w.WriteHeader(a.status)
	})
	r.Post("/probes", func(w http.ResponseWriter, r *http.Request) {
		var batch []types.ProbeReport
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		a.mu.Lock()
		a.probes = append(a.probes, batch)
		a.mu.Unlock()
		w.WriteHeader(a.status)
	})
	return r
}

func TestAPIWriterBatches(t *testing.T) {
	api := &reportAPI{status: http.StatusCreated}
	srv := httptest.NewServer(api.router())
	defer srv.Close()

	w, err := NewAPIWriter(&WriterConfig{
		Uri:       srv.URL + "/scenarios",
		UriProbes: srv.URL + "/probes",
		User:      "sitecheckr",
		Password:  "secret",
		BatchSize: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.WriteScenarios(feedScenarios(scenarioReports()))
	w.WriteProbes(feedProbes(probeReports()))

	if len(api.scenarios) != 2 {
		t.Fatalf("expected 2 scenario batches, got %d", len(api.scenarios))
	}
	if len(api.probes) != 2 {
		t.Fatalf("expected 2 probe batches, got %d", len(api.probes))
	}
	if api.scenarios[0][0].Scenario != "services <automation>" {
		t.Fatalf("unexpected first scenario %s", api.scenarios[0][0].Scenario)
	}
}

func TestAPIWriterCounts(t *testing.T) {
	tests := []struct {
		name   string
		status int
		user   string
		dryRun bool
		want   int
	}{
		{"created", http.StatusCreated, "sitecheckr", false, 2},
		{"rejected", http.StatusOK, "sitecheckr", false, 0},
		{"unauthorized", http.StatusCreated, "someone", false, 0},
		{"dry run", http.StatusCreated, "sitecheckr", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &reportAPI{status: tt.status}
			srv := httptest.NewServer(api.router())
			defer srv.Close()
			w, _ := NewAPIWriter(&WriterConfig{
				Uri:      srv.URL + "/scenarios",
				User:     tt.user,
				Password: "secret",
				DryRun:   tt.dryRun,
			})
			if got := writeBatches(w, w.Uri, feedScenarios(scenarioReports())); got != tt.want {
				t.Fatalf("expected %d written reports, got %d", tt.want, got)
			}
			if tt.dryRun && len(api.scenarios) != 0 {
				t.Fatal("expected no request in dry run mode")
			}
		})
	}
}

func TestAPIWriterWithoutProbeURI(t *testing.T) {
	w, _ := NewAPIWriter(&WriterConfig{Uri: "http://localhost:1/scenarios"})
	// must return once the channel is drained without any request
	w.WriteProbes(feedProbes(probeReports()))
}

func TestPrintScenarioSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintScenarioSummary(&buf, scenarioReports()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"services <automation>", "worldwide", "element-not-found", "2/2", "0/2", "1/2 passed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected summary to contain '%s', got\n%s", want, out)
		}
	}
}

func TestPrintProbeSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintProbeSummary(&buf, probeReports()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"postal code de 70597", "404", "(+1 more)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected summary to contain '%s', got\n%s", want, out)
		}
	}
}
