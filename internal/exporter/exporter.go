// Package exporter renders transactions and monthly metrics for consumption
// outside the service.
//
// Supported output formats:
//   - Console: human-readable monthly report for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: row-per-transaction export for spreadsheet applications
//
// Exports resolve the override layer by default so a downloaded file matches
// what the review UI shows.
package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"financial-statements-service/internal/metrics"
	"financial-statements-service/internal/models"
	"financial-statements-service/pkg/errors"
)

// OutputFormat represents the supported export formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ExportConfig holds options for export generation
type ExportConfig struct {
	Format OutputFormat `json:"format"`

	// UseOverrides resolves category, amount and sign overrides before
	// rendering
	UseOverrides bool `json:"use_overrides"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultExportConfig returns a default export configuration
func DefaultExportConfig() *ExportConfig {
	return &ExportConfig{
		Format:       FormatCSV,
		UseOverrides: true,
		CSVDelimiter: ',',
		CSVHeaders:   true,
	}
}

// Validate validates the export configuration
func (c *ExportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.CSVDelimiter == 0 {
		return fmt.Errorf("csv delimiter cannot be empty")
	}
	return nil
}

// Exporter renders transactions and metrics to an output stream
type Exporter struct {
	config *ExportConfig
}

// NewExporter creates an Exporter with the given configuration
func NewExporter(config *ExportConfig) (*Exporter, error) {
	if config == nil {
		config = DefaultExportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "exporter", err)
	}
	return &Exporter{config: config}, nil
}

// transactionHeaders are the CSV column names, in output order
var transactionHeaders = []string{
	"txn_date_utc",
	"account_name",
	"account_currency",
	"txn_type_code",
	"description",
	"direction",
	"amount",
	"signed_amount",
	"balance",
	"category",
	"confidence",
	"needs_review",
	"is_internal_transfer",
	"external_txn_id",
	"statement_id",
}

// WriteTransactionsCSV writes one CSV row per transaction
func (e *Exporter) WriteTransactionsCSV(w io.Writer, transactions []*models.Transaction) error {
	writer := csv.NewWriter(w)
	writer.Comma = e.config.CSVDelimiter

	if e.config.CSVHeaders {
		if err := writer.Write(transactionHeaders); err != nil {
			return errors.InternalError("csv export", err)
		}
	}

	for _, txn := range transactions {
		balance := ""
		if txn.Balance != nil {
			balance = txn.Balance.StringFixed(2)
		}

		// Amount column stays a magnitude; the signed column carries the
		// effective direction, sign override included
		amount := txn.EffectiveAmount(e.config.UseOverrides).Abs()
		signed := txn.EffectiveSignedAmount(e.config.UseOverrides)

		record := []string{
			txn.TxnDateUTC.Format("2006-01-02"),
			txn.AccountName,
			txn.AccountCurrency,
			txn.TxnTypeCode,
			txn.DescriptionRaw,
			string(txn.Direction),
			amount.StringFixed(2),
			signed.StringFixed(2),
			balance,
			string(txn.EffectiveCategory(e.config.UseOverrides)),
			fmt.Sprintf("%.2f", txn.Confidence),
			fmt.Sprintf("%t", txn.NeedsReview),
			fmt.Sprintf("%t", txn.IsInternalTransfer),
			txn.ExternalID,
			txn.StatementID,
		}
		if err := writer.Write(record); err != nil {
			return errors.InternalError("csv export", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.InternalError("csv export", err)
	}
	return nil
}

// WriteMetricsJSON writes monthly metrics rows as an indented JSON document
func (e *Exporter) WriteMetricsJSON(w io.Writer, rows []*metrics.MonthlyMetrics) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rows); err != nil {
		return errors.InternalError("json export", err)
	}
	return nil
}

// WriteMetricsConsole writes a human-readable monthly report
func (e *Exporter) WriteMetricsConsole(w io.Writer, rows []*metrics.MonthlyMetrics) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No metrics for the requested range.")
		return err
	}

	for _, row := range rows {
		fmt.Fprintf(w, "=== %s (%s) ===\n", row.Month, row.Currency)
		for _, category := range models.AllCategories() {
			total := row.CategoryTotals[category]
			count := row.CategoryCounts[category]
			if count == 0 && total.IsZero() {
				continue
			}
			fmt.Fprintf(w, "  %-40s %12s  (%d txns)\n", category, total.StringFixed(2), count)
		}
		fmt.Fprintf(w, "  %-40s %12s\n", "Total operational expenses", row.TotalExpensesOperational.StringFixed(2))
		fmt.Fprintf(w, "  %-40s %12s\n", "Net income (operational)", row.NetIncomeOperational.StringFixed(2))
		fmt.Fprintf(w, "  %-40s %12s\n", "Net cash after dividends", row.NetCashAfterDividends.StringFixed(2))
		if row.NeedsReviewCount > 0 {
			fmt.Fprintf(w, "  %d transaction(s) need review\n", row.NeedsReviewCount)
		}
		fmt.Fprintln(w)
	}
	return nil
}
