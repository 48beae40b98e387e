package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"financial-statements-service/cmd/finstat/config"
	"financial-statements-service/internal/exporter"
	"financial-statements-service/internal/metrics"
	"financial-statements-service/internal/service"
	"financial-statements-service/internal/store"
)

var (
	ingestFormat    string
	ingestOutput    string
	ingestMonth     string
	ingestCurrency  string
	ingestTransfers bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file> [file...]",
	Short: "Ingest statement files and report monthly metrics",
	Long: `Ingest parses one or more statement files, categorizes their
transactions and prints the resulting monthly metrics. Re-ingesting a
byte-identical file is idempotent and reported as a duplicate.

Examples:
  finstat ingest statement-january.pdf
  finstat ingest q1/*.pdf --format json
  finstat ingest statement.pdf --format csv --output transactions.csv
  finstat ingest statement.pdf --month 2026-01 --currency RON`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestFormat, "format", "console", "output format (console, json, csv)")
	ingestCmd.Flags().StringVarP(&ingestOutput, "output", "o", "", "output file (default stdout)")
	ingestCmd.Flags().StringVar(&ingestMonth, "month", "", "restrict the report to one month (YYYY-MM)")
	ingestCmd.Flags().StringVar(&ingestCurrency, "currency", "", "restrict the report to one currency")
	ingestCmd.Flags().BoolVar(&ingestTransfers, "include-transfers", false, "include internal FX transfers in the metrics")
}

func runIngest(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	exportConfig := config.CreateExportConfig(ingestFormat)
	if err := exportConfig.Validate(); err != nil {
		os.Exit(handler.HandleError(err))
	}

	svc, err := config.BuildService(viper.GetString("rules"))
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	batchExit := ingestFiles(context.Background(), svc, handler, args)

	out := os.Stdout
	if ingestOutput != "" {
		file, err := os.Create(ingestOutput)
		if err != nil {
			os.Exit(handler.HandleError(err))
		}
		defer file.Close()
		out = file
	}

	exp, err := exporter.NewExporter(exportConfig)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	if exportConfig.Format == exporter.FormatCSV {
		transactions, _, err := svc.Store().ListTransactions(store.TransactionFilter{
			Month:    ingestMonth,
			Currency: ingestCurrency,
		})
		if err != nil {
			os.Exit(handler.HandleError(err))
		}
		if err := exp.WriteTransactionsCSV(out, transactions); err != nil {
			os.Exit(handler.HandleError(err))
		}
		if batchExit != 0 {
			os.Exit(batchExit)
		}
		return nil
	}

	rows, err := svc.MonthlyMetrics(metrics.Params{
		FromMonth:                ingestMonth,
		ToMonth:                  ingestMonth,
		Currency:                 ingestCurrency,
		IncludeInternalTransfers: ingestTransfers,
		UseOverrides:             true,
	})
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	if exportConfig.Format == exporter.FormatJSON {
		err = exp.WriteMetricsJSON(out, rows)
	} else {
		err = exp.WriteMetricsConsole(out, rows)
	}
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	if batchExit != 0 {
		os.Exit(batchExit)
	}
	return nil
}

// ingestFiles runs the pipeline over each file in turn. A file that cannot
// be read or parsed is reported and skipped; the rest of the batch still
// runs and the report covers everything that succeeded. Returns the highest
// exit code among the failed files, 0 when every file succeeded.
func ingestFiles(ctx context.Context, svc *service.Service, handler *CLIErrorHandler, paths []string) int {
	batchExit := 0

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if code := handler.HandleError(err); code > batchExit {
				batchExit = code
			}
			continue
		}

		result, err := svc.Ingest(ctx, path, data)
		if err != nil {
			if code := handler.HandleError(err); code > batchExit {
				batchExit = code
			}
			continue
		}

		if result.Created {
			fmt.Fprintf(os.Stderr, "Ingested %s: %d transactions, status %s\n",
				path, result.TransactionCount, result.Statement.ParseStatus)
		} else {
			fmt.Fprintf(os.Stderr, "Skipped %s: duplicate of statement %s\n",
				path, result.Statement.StatementID)
		}
		for _, warning := range result.Warnings {
			fmt.Fprintf(os.Stderr, "  warning: %s\n", warning)
		}
	}

	return batchExit
}
