package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"financial-statements-service/internal/categorizer"
	"financial-statements-service/internal/models"
	"financial-statements-service/internal/parser"
	"financial-statements-service/internal/service"
	"financial-statements-service/internal/store"
)

const testStatementText = `Account statement
Account name Main
Currency RON
IBAN RO49 AAAA 1B31 0075 9384 0000
Transactions from 1 Jan 2026 to 31 Jan 2026
Date (UTC) Description Money out Money in Balance
6 Jan 2026 MOA Money added via transfer 1 000.00 11 000.00
27 Jan 2026 CAR Trezoreria Statului 2 500.00 8 500.00
Transaction types
`

func createTestServer(t *testing.T) *Server {
	t.Helper()

	p, err := parser.NewParser(nil)
	if err != nil {
		t.Fatalf("NewParser() error = %v", err)
	}
	engine, err := categorizer.NewEngine(nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	srv, err := NewServer(nil, service.NewService(p, engine, store.NewStore()))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

func uploadStatement(t *testing.T, srv *Server, fileName, content string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("writing multipart body: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/statements", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("decoding response %s: %v", data, err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestUploadStatement(t *testing.T) {
	srv := createTestServer(t)

	resp := uploadStatement(t, srv, "statement.txt", testStatementText)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var result service.IngestResult
	decodeBody(t, resp, &result)

	if result.Statement.StatementID == "" {
		t.Error("response should carry the statement id")
	}
	if result.TransactionCount != 2 {
		t.Errorf("TransactionCount = %d, want 2", result.TransactionCount)
	}
}

func TestUploadDuplicateReturns200(t *testing.T) {
	srv := createTestServer(t)

	first := uploadStatement(t, srv, "statement.txt", testStatementText)
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first upload status = %d, want 201", first.StatusCode)
	}
	first.Body.Close()

	second := uploadStatement(t, srv, "statement-copy.txt", testStatementText)
	if second.StatusCode != http.StatusOK {
		t.Errorf("duplicate upload status = %d, want 200", second.StatusCode)
	}
	second.Body.Close()
}

func TestUploadWithoutFile(t *testing.T) {
	srv := createTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/statements", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadUnparseableDocument(t *testing.T) {
	srv := createTestServer(t)

	resp := uploadStatement(t, srv, "notes.txt", "not a statement at all\n")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestGetStatementNotFound(t *testing.T) {
	srv := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/statements/missing", nil)
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPatchStatementIncludeFlag(t *testing.T) {
	srv := createTestServer(t)

	var uploaded service.IngestResult
	decodeBody(t, uploadStatement(t, srv, "statement.txt", testStatementText), &uploaded)

	body := strings.NewReader(`{"include_in_metrics": false}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/statements/"+uploaded.Statement.StatementID, body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var statement models.Statement
	decodeBody(t, resp, &statement)
	if statement.IncludeInMetrics {
		t.Error("IncludeInMetrics = true, want false")
	}

	// Excluded statements disappear from metrics
	metricsReq := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/monthly", nil)
	metricsResp, err := srv.App().Test(metricsReq, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	var metricsBody struct {
		Metrics []json.RawMessage `json:"metrics"`
	}
	decodeBody(t, metricsResp, &metricsBody)
	if len(metricsBody.Metrics) != 0 {
		t.Errorf("metrics rows = %d, want 0", len(metricsBody.Metrics))
	}
}

func TestReparseEndpoint(t *testing.T) {
	srv := createTestServer(t)

	var uploaded service.IngestResult
	decodeBody(t, uploadStatement(t, srv, "statement.txt", testStatementText), &uploaded)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/statements/"+uploaded.Statement.StatementID+"/reparse", nil)
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestListTransactionsWithFilters(t *testing.T) {
	srv := createTestServer(t)
	uploadStatement(t, srv, "statement.txt", testStatementText).Body.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions?month=2026-01&currency=RON", nil)
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Transactions []models.Transaction `json:"transactions"`
		Total        int                  `json:"total"`
	}
	decodeBody(t, resp, &body)
	if body.Total != 2 {
		t.Errorf("total = %d, want 2", body.Total)
	}

	badReq := httptest.NewRequest(http.MethodGet, "/api/v1/transactions?category=Nonsense", nil)
	badResp, err := srv.App().Test(badReq, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if badResp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown category status = %d, want 400", badResp.StatusCode)
	}
}

func TestPatchTransactionOverride(t *testing.T) {
	srv := createTestServer(t)
	uploadStatement(t, srv, "statement.txt", testStatementText).Body.Close()

	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	listResp, err := srv.App().Test(listReq, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	var listBody struct {
		Transactions []models.Transaction `json:"transactions"`
	}
	decodeBody(t, listResp, &listBody)
	if len(listBody.Transactions) == 0 {
		t.Fatal("no transactions to patch")
	}
	id := listBody.Transactions[0].ID

	patch := fmt.Sprintf(`{"category": %q, "amount": "900.00", "reason": "manual correction"}`, models.CategoryOther)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/transactions/"+id, strings.NewReader(patch))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var txn models.Transaction
	decodeBody(t, resp, &txn)
	if txn.CategoryOverride == nil || *txn.CategoryOverride != models.CategoryOther {
		t.Error("category override missing from response")
	}
	if txn.OverrideReason != "manual correction" {
		t.Errorf("OverrideReason = %q, want 'manual correction'", txn.OverrideReason)
	}

	badPatch := `{"category": "Nonsense"}`
	badReq := httptest.NewRequest(http.MethodPatch, "/api/v1/transactions/"+id, strings.NewReader(badPatch))
	badReq.Header.Set("Content-Type", "application/json")
	badResp, err := srv.App().Test(badReq, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if badResp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown category status = %d, want 400", badResp.StatusCode)
	}
}

func TestMonthlyMetricsEndpoint(t *testing.T) {
	srv := createTestServer(t)
	uploadStatement(t, srv, "statement.txt", testStatementText).Body.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/monthly?from_month=2026-01&to_month=2026-01", nil)
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Metrics []struct {
			Month    string `json:"month"`
			Currency string `json:"currency"`
		} `json:"metrics"`
	}
	decodeBody(t, resp, &body)
	if len(body.Metrics) != 1 {
		t.Fatalf("metrics rows = %d, want 1", len(body.Metrics))
	}
	if body.Metrics[0].Month != "2026-01" || body.Metrics[0].Currency != "RON" {
		t.Errorf("row = (%s, %s), want (2026-01, RON)",
			body.Metrics[0].Month, body.Metrics[0].Currency)
	}

	badReq := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/monthly?from_month=nonsense", nil)
	badResp, err := srv.App().Test(badReq, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if badResp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad month status = %d, want 400", badResp.StatusCode)
	}
}

func TestExportTransactionsCSV(t *testing.T) {
	srv := createTestServer(t)
	uploadStatement(t, srv, "statement.txt", testStatementText).Body.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/export/transactions.csv", nil)
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %s, want text/csv", ct)
	}

	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !strings.Contains(string(data), "Trezoreria Statului") {
		t.Error("CSV export missing transaction description")
	}
}
