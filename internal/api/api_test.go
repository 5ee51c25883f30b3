package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/mrh-2003/aml-system/internal/bus"
	"github.com/mrh-2003/aml-system/internal/cache"
	"github.com/mrh-2003/aml-system/internal/domain"
	"github.com/mrh-2003/aml-system/internal/ingest"
	"github.com/mrh-2003/aml-system/internal/report"
	"github.com/mrh-2003/aml-system/internal/repository"
	"github.com/mrh-2003/aml-system/internal/rules"
	"github.com/mrh-2003/aml-system/internal/scope"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewLRUCache(100)
	t.Cleanup(func() { c.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	if err := engine.LoadAll(rules.BuiltinRules()); err != nil {
		t.Fatalf("failed to load builtin rules: %v", err)
	}

	scopeSvc := scope.NewService(repo, c, 0)
	reports := report.NewService(repo, eventBus)
	loader := ingest.NewLoader(repo, eventBus)

	cfg := domain.ServerConfig{Host: "localhost", Port: 8080, ReadTimeout: 30, WriteTimeout: 30}
	return NewServer(cfg, repo, c, eventBus, scopeSvc, reports, loader, engine, domain.DefaultDetectionConfig(), "test-v1")
}

// workbookBytes builds a small ledger export: burst-heavy activity for one
// client, quiet activity for another.
func workbookBytes(t *testing.T) []byte {
	t.Helper()

	header := []any{
		"CODUNICOCLI_13_enc", "TIPO DE MARCA", "DESTIPDOCUMENTO", "DESTIPBANCA",
		"SEGMENTO", "ACT.ECONOMICA", "Fecha", "Hora", "Monto", "MONEDA",
		"I / E", "Glosa", "Grupo", "Canal",
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		t.Fatal(err)
	}

	rowNum := 2
	add := func(client, hora, monto, dir, grupo, canal string) {
		row := []any{
			client, "SOSPECHOSO", "DNI", "BANCA PERSONAL", "MASIVO", "TRANSPORTE",
			"2024-06-10", hora, monto, "SOLES", dir, "OPERACION VENTANILLA", grupo, canal,
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
		rowNum++
	}

	// 12 small cash deposits inside one hour for the burst client.
	for i := 0; i < 12; i++ {
		add("cliente-rafaga", fmt.Sprintf("10:%02d:00", i*5), "200", "Ingreso", "DEPOSITO", "AGENTE BCP")
	}
	add("cliente-quieto", "15:00:00", "9000", "Egreso", "TRANSFERENCIA", "BANCA MOVIL")

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func uploadLoad(t *testing.T, ts *httptest.Server, code string) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("code", code); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("file", "export.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(workbookBytes(t)); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	resp, err := http.Post(ts.URL+"/loads", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
}

func createCase(t *testing.T, ts *httptest.Server, name, loadCode string) int64 {
	t.Helper()

	body, _ := json.Marshal(CreateCaseRequest{Name: name, LoadCode: loadCode})
	resp, err := http.Post(ts.URL+"/cases", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create case failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create case status = %d", resp.StatusCode)
	}

	var c domain.Case
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		t.Fatal(err)
	}
	return c.ID
}

func TestHealthEndpoints(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Router())
	defer ts.Close()

	for _, path := range []string{"/health", "/ready"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d", path, resp.StatusCode)
		}
	}
}

func TestLoadEndpoints(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Router())
	defer ts.Close()

	uploadLoad(t, ts, "carga-api-001")

	t.Run("DuplicateCode", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.WriteField("code", "carga-api-001")
		fw, _ := mw.CreateFormFile("file", "export.xlsx")
		fw.Write(workbookBytes(t))
		mw.Close()

		resp, err := http.Post(ts.URL+"/loads", mw.FormDataContentType(), &body)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("expected 409 for duplicate code, got %d", resp.StatusCode)
		}
	})

	t.Run("List", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/loads")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var out struct {
			Count int `json:"count"`
		}
		json.NewDecoder(resp.Body).Decode(&out)
		if out.Count != 1 {
			t.Errorf("expected 1 load, got %d", out.Count)
		}
	})

	t.Run("ClientsByLoad", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/clients?load=carga-api-001")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var out struct {
			Clients []string `json:"clients"`
		}
		json.NewDecoder(resp.Body).Decode(&out)
		if len(out.Clients) != 2 {
			t.Errorf("expected 2 clients, got %v", out.Clients)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.WriteField("code", "carga-sin-archivo")
		mw.Close()

		resp, err := http.Post(ts.URL+"/loads", mw.FormDataContentType(), &body)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for missing file, got %d", resp.StatusCode)
		}
	})
}

func TestCaseEndpoints(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Router())
	defer ts.Close()

	uploadLoad(t, ts, "carga-casos")
	caseID := createCase(t, ts, "caso api", "carga-casos")

	t.Run("DuplicateName", func(t *testing.T) {
		body, _ := json.Marshal(CreateCaseRequest{Name: "caso api"})
		resp, err := http.Post(ts.URL+"/cases", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("expected 409 for duplicate name, got %d", resp.StatusCode)
		}
	})

	t.Run("Get", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("%s/cases/%d", ts.URL, caseID))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var c domain.Case
		json.NewDecoder(resp.Body).Decode(&c)
		if c.Name != "caso api" || c.MemberCount != 2 {
			t.Errorf("unexpected case: %+v", c)
		}
	})

	t.Run("Members", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("%s/cases/%d/members", ts.URL, caseID))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var out struct {
			Members []string `json:"members"`
		}
		json.NewDecoder(resp.Body).Decode(&out)
		if len(out.Members) != 2 {
			t.Errorf("expected 2 members, got %v", out.Members)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/cases/%d", ts.URL, caseID), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delete status = %d", resp.StatusCode)
		}

		get, _ := http.Get(fmt.Sprintf("%s/cases/%d", ts.URL, caseID))
		get.Body.Close()
		if get.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404 after delete, got %d", get.StatusCode)
		}
	})

	t.Run("InvalidID", func(t *testing.T) {
		resp, _ := http.Get(ts.URL + "/cases/not-a-number")
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for invalid id, got %d", resp.StatusCode)
		}
	})
}

func TestAnalysisEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Router())
	defer ts.Close()

	uploadLoad(t, ts, "carga-analisis")
	caseID := createCase(t, ts, "caso analisis", "carga-analisis")

	t.Run("TemporalBurst", func(t *testing.T) {
		resp, err := http.Post(fmt.Sprintf("%s/cases/%d/analyses/temporal_burst", ts.URL, caseID), "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("analysis status = %d", resp.StatusCode)
		}

		var out AnalysisResponse
		json.NewDecoder(resp.Body).Decode(&out)
		if out.Table == nil || out.Table.Len() != 1 {
			t.Fatalf("expected 1 burst finding, got %+v", out.Table)
		}
		if out.RowCount != 13 {
			t.Errorf("expected 13 scoped rows, got %d", out.RowCount)
		}
	})

	t.Run("FilteredScope", func(t *testing.T) {
		min := 5000.0
		body, _ := json.Marshal(AnalysisRequest{Filter: &domain.Filter{AmountMin: &min}})
		resp, err := http.Post(fmt.Sprintf("%s/cases/%d/analyses/temporal_burst", ts.URL, caseID), "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var out AnalysisResponse
		json.NewDecoder(resp.Body).Decode(&out)
		if out.RowCount != 1 {
			t.Errorf("expected 1 row above 5000, got %d", out.RowCount)
		}
		if out.Table.Len() != 0 {
			t.Errorf("expected no bursts in filtered scope, got %d", out.Table.Len())
		}
	})

	t.Run("ParamOverride", func(t *testing.T) {
		threshold := 100
		body, _ := json.Marshal(AnalysisRequest{Params: &AnalysisParams{Threshold: &threshold}})
		resp, err := http.Post(fmt.Sprintf("%s/cases/%d/analyses/temporal_burst", ts.URL, caseID), "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var out AnalysisResponse
		json.NewDecoder(resp.Body).Decode(&out)
		if out.Table.Len() != 0 {
			t.Errorf("expected no findings with threshold 100, got %d", out.Table.Len())
		}
	})

	t.Run("UnknownDetector", func(t *testing.T) {
		resp, _ := http.Post(fmt.Sprintf("%s/cases/%d/analyses/no_such_thing", ts.URL, caseID), "application/json", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404 for unknown detector, got %d", resp.StatusCode)
		}
	})

	t.Run("InvalidFilterRejected", func(t *testing.T) {
		lo, hi := 100.0, 10.0
		body, _ := json.Marshal(AnalysisRequest{Filter: &domain.Filter{AmountMin: &lo, AmountMax: &hi}})
		resp, _ := http.Post(fmt.Sprintf("%s/cases/%d/analyses/cash_ratio", ts.URL, caseID), "application/json", bytes.NewReader(body))
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for contradictory filter, got %d", resp.StatusCode)
		}
	})

	t.Run("ExcelExport", func(t *testing.T) {
		resp, err := http.Post(fmt.Sprintf("%s/cases/%d/analyses/cash_ratio?format=xlsx", ts.URL, caseID), "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("export status = %d", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
			t.Errorf("unexpected content type %q", ct)
		}
	})

	t.Run("Screen", func(t *testing.T) {
		body, _ := json.Marshal(ScreenRequest{Expression: `amount > 5000.0 && direction == "out"`})
		resp, err := http.Post(fmt.Sprintf("%s/cases/%d/screen", ts.URL, caseID), "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("screen status = %d", resp.StatusCode)
		}

		var out struct {
			Count int `json:"count"`
		}
		json.NewDecoder(resp.Body).Decode(&out)
		if out.Count != 1 {
			t.Errorf("expected 1 screened row, got %d", out.Count)
		}
	})

	t.Run("ScreenBadExpression", func(t *testing.T) {
		body, _ := json.Marshal(ScreenRequest{Expression: `amount >`})
		resp, _ := http.Post(fmt.Sprintf("%s/cases/%d/screen", ts.URL, caseID), "application/json", bytes.NewReader(body))
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for bad expression, got %d", resp.StatusCode)
		}
	})
}

func TestReportEndpoints(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Router())
	defer ts.Close()

	uploadLoad(t, ts, "carga-reporte")
	caseID := createCase(t, ts, "caso reporte", "carga-reporte")

	t.Run("Mark", func(t *testing.T) {
		body, _ := json.Marshal(MarkReportRequest{Detector: "temporal_burst"})
		resp, err := http.Post(fmt.Sprintf("%s/cases/%d/report-marks", ts.URL, caseID), "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("mark status = %d", resp.StatusCode)
		}
	})

	t.Run("MarkUnknownDetector", func(t *testing.T) {
		body, _ := json.Marshal(MarkReportRequest{Detector: "invented"})
		resp, _ := http.Post(fmt.Sprintf("%s/cases/%d/report-marks", ts.URL, caseID), "application/json", bytes.NewReader(body))
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown detector, got %d", resp.StatusCode)
		}
	})

	t.Run("ListMarks", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("%s/cases/%d/report-marks", ts.URL, caseID))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var out struct {
			Count int `json:"count"`
		}
		json.NewDecoder(resp.Body).Decode(&out)
		if out.Count != 1 {
			t.Errorf("expected 1 mark, got %d", out.Count)
		}
	})

	t.Run("GeneratePDF", func(t *testing.T) {
		resp, err := http.Post(fmt.Sprintf("%s/cases/%d/report", ts.URL, caseID), "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("report status = %d", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
			t.Errorf("unexpected content type %q", ct)
		}
	})

	t.Run("PDFMissingCase", func(t *testing.T) {
		resp, _ := http.Post(ts.URL+"/cases/99999/report", "application/json", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404 for missing case, got %d", resp.StatusCode)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Router())
	defer ts.Close()

	t.Run("List", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/rules")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var out struct {
			Count int `json:"count"`
		}
		json.NewDecoder(resp.Body).Decode(&out)
		if out.Count != len(rules.BuiltinRules()) {
			t.Errorf("expected %d builtin rules, got %d", len(rules.BuiltinRules()), out.Count)
		}
	})

	t.Run("Create", func(t *testing.T) {
		body, _ := json.Marshal(rules.Rule{Name: "huge_amounts", Expression: "amount > 100000.0", Enabled: true})
		resp, err := http.Post(ts.URL+"/rules", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Errorf("create rule status = %d", resp.StatusCode)
		}
	})

	t.Run("CreateInvalidExpression", func(t *testing.T) {
		body, _ := json.Marshal(rules.Rule{Name: "broken", Expression: "amount >"})
		resp, _ := http.Post(ts.URL+"/rules", "application/json", bytes.NewReader(body))
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for invalid expression, got %d", resp.StatusCode)
		}
	})
}
