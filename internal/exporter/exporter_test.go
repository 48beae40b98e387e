package exporter

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"financial-statements-service/internal/metrics"
	"financial-statements-service/internal/models"
)

func createTestTransaction() *models.Transaction {
	amount := decimal.NewFromFloat(2500.00)
	balance := decimal.NewFromFloat(8500.00)
	return &models.Transaction{
		ID:              "txn-1",
		StatementID:     "stmt-1",
		AccountName:     "Main",
		AccountCurrency: "RON",
		TxnDateUTC:      time.Date(2026, 1, 27, 0, 0, 0, 0, time.UTC),
		TxnTypeCode:     "CAR",
		DescriptionRaw:  "Trezoreria Statului",
		Direction:       models.DirectionOutflow,
		Amount:          amount,
		SignedAmount:    amount.Neg(),
		MoneyOut:        &amount,
		Balance:         &balance,
		Category:        models.CategoryTaxes,
		Confidence:      0.90,
	}
}

func TestWriteTransactionsCSV(t *testing.T) {
	exporter, err := NewExporter(nil)
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}

	var buf bytes.Buffer
	if err := exporter.WriteTransactionsCSV(&buf, []*models.Transaction{createTestTransaction()}); err != nil {
		t.Fatalf("WriteTransactionsCSV() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading produced CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want header + 1 row", len(records))
	}

	row := records[1]
	if row[0] != "2026-01-27" {
		t.Errorf("date column = %s, want 2026-01-27", row[0])
	}
	if row[6] != "2500.00" {
		t.Errorf("amount column = %s, want 2500.00", row[6])
	}
	if row[7] != "-2500.00" {
		t.Errorf("signed amount column = %s, want -2500.00", row[7])
	}
	if row[9] != string(models.CategoryTaxes) {
		t.Errorf("category column = %s, want %s", row[9], models.CategoryTaxes)
	}
}

func TestWriteTransactionsCSVResolvesOverrides(t *testing.T) {
	exporter, err := NewExporter(nil)
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}

	txn := createTestTransaction()
	override := models.CategoryAccountant
	txn.CategoryOverride = &override

	var buf bytes.Buffer
	if err := exporter.WriteTransactionsCSV(&buf, []*models.Transaction{txn}); err != nil {
		t.Fatalf("WriteTransactionsCSV() error = %v", err)
	}
	if !strings.Contains(buf.String(), string(models.CategoryAccountant)) {
		t.Error("override category should appear in the export")
	}
}

func TestWriteTransactionsCSVSignOverride(t *testing.T) {
	exporter, err := NewExporter(nil)
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}

	txn := createTestTransaction()
	flip := true
	txn.SignOverride = &flip

	var buf bytes.Buffer
	if err := exporter.WriteTransactionsCSV(&buf, []*models.Transaction{txn}); err != nil {
		t.Fatalf("WriteTransactionsCSV() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading produced CSV: %v", err)
	}

	row := records[1]
	// The amount column stays a magnitude; the flipped outflow's signed
	// column turns positive
	if row[6] != "2500.00" {
		t.Errorf("amount column = %s, want 2500.00", row[6])
	}
	if row[7] != "2500.00" {
		t.Errorf("signed amount column = %s, want 2500.00", row[7])
	}
}

func TestWriteMetricsJSON(t *testing.T) {
	exporter, _ := NewExporter(nil)
	row := &metrics.MonthlyMetrics{Month: "2026-01", Currency: "RON"}

	var buf bytes.Buffer
	if err := exporter.WriteMetricsJSON(&buf, []*metrics.MonthlyMetrics{row}); err != nil {
		t.Fatalf("WriteMetricsJSON() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"month": "2026-01"`) {
		t.Errorf("JSON output missing month field: %s", buf.String())
	}
}

func TestWriteMetricsConsoleEmpty(t *testing.T) {
	exporter, _ := NewExporter(nil)

	var buf bytes.Buffer
	if err := exporter.WriteMetricsConsole(&buf, nil); err != nil {
		t.Fatalf("WriteMetricsConsole() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No metrics") {
		t.Errorf("empty report = %q", buf.String())
	}
}

func TestExportConfigValidate(t *testing.T) {
	config := DefaultExportConfig()
	if err := config.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	config.Format = "xml"
	if err := config.Validate(); err == nil {
		t.Error("unknown format should fail validation")
	}
}
