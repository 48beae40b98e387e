package cmd

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"financial-statements-service/pkg/errors"
	"financial-statements-service/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError handles errors and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Error("Command failed")

	if statementErr, ok := errors.AsStatementError(err); ok {
		return h.handleStatementError(statementErr)
	}

	return h.handleGenericError(err)
}

// handleStatementError handles StatementError with detailed context
func (h *CLIErrorHandler) handleStatementError(err *errors.StatementError) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(os.Stderr, "\n%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleGenericError handles non-StatementError types
func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(os.Stderr, "Error: File not found\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(os.Stderr, "Error: Permission denied\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	if !h.verbose {
		fmt.Fprintf(os.Stderr, "\nFor more details, run with --verbose\n")
	}

	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryDocument:
		return `Document error help:
• Check that the file is an exported account statement, not another document
• Verify the file is not password protected or corrupted
• Export the statement again from your banking app and retry
• Plain-text exports must keep the original line structure`

	case errors.CategoryExtraction:
		return `Extraction error help:
• The document was recognized but some sections could not be recovered
• Check that the export includes the account header and statement period
• A statement parsed with warnings is stored with partial status
• Use the reparse endpoint after updating the rules or a new service version`

	case errors.CategoryField:
		return `Field error help:
• Check date parameters use the YYYY-MM format
• Amounts must be decimal numbers without currency symbols
• Category names must match the fixed category set exactly`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify the rules file syntax if using --rules
• Use 'finstat serve --help' or 'finstat ingest --help' to see all options
• Try running with default settings first`

	case errors.CategoryStorage:
		return `Storage error help:
• Check that the statement or transaction id exists
• List statements with 'GET /api/v1/statements' to find valid ids`

	default:
		return `General help:
• Run with --verbose for more details
• Use 'finstat --help' to see available commands`
	}
}

// isFileNotFoundError checks if the error indicates a missing file
func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}

// isPermissionError checks if the error indicates a permission problem
func (h *CLIErrorHandler) isPermissionError(err error) bool {
	if os.IsPermission(err) {
		return true
	}
	if pathErr, ok := err.(*os.PathError); ok {
		return pathErr.Err == syscall.EACCES
	}
	return false
}
