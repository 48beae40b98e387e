package parser

import (
	"fmt"
	"regexp"
)

// Config holds configuration for statement text parsing
type Config struct {
	// DateLayout is the layout of transaction dates in the table
	// (day, three-letter month name, four-digit year)
	DateLayout string

	// PeriodDateLayouts are the layouts tried for statement period dates
	PeriodDateLayouts []string

	// CurrencyLookaheadLines bounds how far below an account name line the
	// block locator searches for the Currency line
	CurrencyLookaheadLines int
}

// DefaultConfig returns a configuration matching the fixed statement layout
func DefaultConfig() *Config {
	return &Config{
		DateLayout:             "2 Jan 2006",
		PeriodDateLayouts:      []string{"2 Jan 2006", "Jan 2, 2006", "2006-01-02"},
		CurrencyLookaheadLines: 4,
	}
}

// Validate validates the parser configuration
func (c *Config) Validate() error {
	if c.DateLayout == "" {
		return fmt.Errorf("date layout cannot be empty")
	}
	if len(c.PeriodDateLayouts) == 0 {
		return fmt.Errorf("at least one period date layout is required")
	}
	if c.CurrencyLookaheadLines < 1 {
		return fmt.Errorf("currency lookahead must be at least 1 line")
	}
	return nil
}

// pageBreak marks a page boundary in the normalized line stream. The
// segmenter treats it as a continuation, never a transaction boundary.
const pageBreak = "\f"

// Fixed layout anchors of the statement format. The rule vocabulary is
// externally configured; these structural patterns are load-bearing layout
// assumptions and live with the parser.
var (
	// A transaction boundary: "27 Jan 2026 ..." at the start of a line
	dateLinePattern = regexp.MustCompile(`^(\d{1,2}) ([A-Za-z]{3}) (\d{4})\s`)

	// A monetary token: optional currency symbol prefix, grouped thousands,
	// two decimals. Explicit currency codes trail the amount in this layout
	// and are matched separately.
	amountPattern = regexp.MustCompile(`([£€$])?\s*(\d{1,3}(?:[ ,\x{00a0}]\d{3})*\.\d{2}|\d+\.\d{2})`)

	// A trailing 3-letter currency code directly after an amount
	trailingCurrencyPattern = regexp.MustCompile(`^\s([A-Z]{3})\b`)

	accountNamePattern = regexp.MustCompile(`(?i)Account name\s+(.+)$`)
	currencyPattern    = regexp.MustCompile(`(?i)^Currency\s+([A-Z]{3})\b`)
	ibanPattern        = regexp.MustCompile(`(?i)IBAN\s+([A-Z]{2}[0-9]{2}[A-Z0-9 ]{8,})`)
	periodPattern      = regexp.MustCompile(`Transactions from (.+) to (.+)`)

	// Transaction table column header
	tableHeaderPattern = regexp.MustCompile(`Date \(UTC\)\s+Description\s+Money out\s+Money in\s+Balance`)

	idPattern          = regexp.MustCompile(`(?i)ID:\s*([0-9a-f-]{16,})`)
	toAccountPattern   = regexp.MustCompile(`To account:\s*([A-Z0-9]+)`)
	fromAccountPattern = regexp.MustCompile(`From account:\s*([A-Z0-9]+)`)

	// FX exchange annotations, informational only
	transferCurrencyPattern = regexp.MustCompile(`\b([A-Z]{3})\s*[–-]+>\s*.*?\b([A-Z]{3})\b`)
	fxRatePattern           = regexp.MustCompile(`FX Rate\s+([A-Z]{3})\s+1\s*=\s*([A-Z]{3})\s*([0-9.,]+)`)
	fxRateLinePattern       = regexp.MustCompile(`(?i)FX Rate[^\n]*`)

	// A short all-caps alphabetic transaction type code (CAR, MOS, EXI, ...)
	typeCodePattern = regexp.MustCompile(`^[A-Z]{2,5}$`)
)

// sectionEndPrefixes terminate a transaction-table region
var sectionEndPrefixes = []string{
	"Account statement",
	"Transaction types",
}

// inflowKeywords mark descriptions of transactions that are typically
// inflows, used only when the out/in column cannot be determined from the
// type code
var inflowKeywords = []string{
	"payment received",
	"money added",
	"incas",
	"received",
}
