// Package models defines the core domain types for statement processing:
// statements, account blocks, transactions and the fixed accounting
// categories, plus the parsing helpers shared by the pipeline.
//
// Monetary values are always decimal.Decimal; float64 never holds money.
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction represents the cash-flow direction of a transaction
type Direction string

const (
	DirectionInflow  Direction = "inflow"
	DirectionOutflow Direction = "outflow"
	DirectionNeutral Direction = "neutral"
)

// String returns the string representation of Direction
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is valid
func (d Direction) IsValid() bool {
	return d == DirectionInflow || d == DirectionOutflow || d == DirectionNeutral
}

// Category is one of the seven fixed accounting categories. Every transaction
// carries exactly one.
type Category string

const (
	CategoryPaidDividends Category = "Paid dividends"
	CategoryTaxes         Category = "Expenses towards government (taxes)"
	CategoryEmployees     Category = "Expenses for employees"
	CategoryCarLeasing    Category = "Expenses for Car Leasing"
	CategoryAccountant    Category = "Expenses for accountant"
	CategoryRevenue       Category = "Revenue"
	CategoryOther         Category = "Other expenses"
)

// AllCategories returns the fixed category set in engine priority order
func AllCategories() []Category {
	return []Category{
		CategoryPaidDividends,
		CategoryTaxes,
		CategoryEmployees,
		CategoryCarLeasing,
		CategoryAccountant,
		CategoryRevenue,
		CategoryOther,
	}
}

// IsValid checks if the category belongs to the fixed set
func (c Category) IsValid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseStatus reflects how completely a statement document was parsed
type ParseStatus string

const (
	ParseStatusSuccess ParseStatus = "success"
	ParseStatusPartial ParseStatus = "partial"
	ParseStatusFail    ParseStatus = "fail"
)

// IsValid checks if the parse status is valid
func (ps ParseStatus) IsValid() bool {
	return ps == ParseStatusSuccess || ps == ParseStatusPartial || ps == ParseStatusFail
}

// AccountBlock is a contiguous currency-scoped section inside a statement
// document. Every transaction belongs to exactly one block and inherits its
// currency.
type AccountBlock struct {
	AccountName string     `json:"account_name"`
	Currency    string     `json:"account_currency"`
	IBAN        string     `json:"account_iban,omitempty"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	// Line span of the block within the normalized document text
	StartLine int `json:"-"`
	EndLine   int `json:"-"`
}

// HasPeriod reports whether both period bounds were recovered
func (b *AccountBlock) HasPeriod() bool {
	return b.PeriodStart != nil && b.PeriodEnd != nil
}

// Statement represents one uploaded document. Immutable once parsed except
// for the IncludeInMetrics toggle.
type Statement struct {
	StatementID      string         `json:"statement_id"`
	FileName         string         `json:"file_name"`
	FileHash         string         `json:"file_hash"`
	Pages            int            `json:"pages"`
	AccountBlocks    []AccountBlock `json:"accounts_found"`
	ParseStatus      ParseStatus    `json:"parse_status"`
	ParseErrors      []string       `json:"parse_errors"`
	IncludeInMetrics bool           `json:"include_in_metrics"`
	ImportedAt       time.Time      `json:"imported_at"`
}

// Validate performs basic validation on the Statement
func (s *Statement) Validate() error {
	if strings.TrimSpace(s.StatementID) == "" {
		return fmt.Errorf("statement ID cannot be empty")
	}

	if strings.TrimSpace(s.FileHash) == "" {
		return fmt.Errorf("statement file hash cannot be empty")
	}

	if !s.ParseStatus.IsValid() {
		return fmt.Errorf("invalid parse status: %s", s.ParseStatus)
	}

	return nil
}

// Transaction is the atomic cash-movement record recovered from one chunk of
// statement text. Parsed fields are never mutated after creation; user
// corrections live in the override fields and are resolved at read time.
type Transaction struct {
	ID          string `json:"id"`
	StatementID string `json:"statement_id"`

	// Inherited from the enclosing account block
	AccountName     string     `json:"account_name"`
	AccountCurrency string     `json:"account_currency"`
	AccountIBAN     string     `json:"account_iban,omitempty"`
	PeriodStart     *time.Time `json:"period_start,omitempty"`
	PeriodEnd       *time.Time `json:"period_end,omitempty"`

	// Parsed fields
	TxnDateUTC     time.Time        `json:"txn_date_utc"`
	DescriptionRaw string           `json:"description_raw"`
	TxnTypeCode    string           `json:"txn_type_code,omitempty"`
	ExternalID     string           `json:"external_txn_id,omitempty"`
	FromAccount    string           `json:"from_account,omitempty"`
	ToAccount      string           `json:"to_account,omitempty"`
	MoneyOut       *decimal.Decimal `json:"money_out,omitempty"`
	MoneyIn        *decimal.Decimal `json:"money_in,omitempty"`
	Balance        *decimal.Decimal `json:"balance,omitempty"`

	// Derived fields
	Direction    Direction       `json:"direction"`
	Amount       decimal.Decimal `json:"amount"`
	SignedAmount decimal.Decimal `json:"signed_amount"`

	// Categorization
	Category       Category `json:"category"`
	Confidence     float64  `json:"confidence"`
	CategoryReason string   `json:"category_reason"`
	NeedsReview    bool     `json:"needs_review"`

	// Internal FX transfer annotations (informational only)
	IsInternalTransfer   bool             `json:"is_internal_transfer"`
	TransferFromCurrency string           `json:"transfer_from_currency,omitempty"`
	TransferToCurrency   string           `json:"transfer_to_currency,omitempty"`
	FXRateApplied        *decimal.Decimal `json:"fx_rate_applied,omitempty"`

	// Override layer, consulted at read time
	CategoryOverride *Category        `json:"category_override,omitempty"`
	AmountOverride   *decimal.Decimal `json:"amount_override,omitempty"`
	SignOverride     *bool            `json:"sign_override,omitempty"`
	OverrideReason   string           `json:"override_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the transaction invariants: a non-negative amount, a
// direction consistent with which money field is populated, and a category
// from the fixed set.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.StatementID) == "" {
		return fmt.Errorf("transaction statement ID cannot be empty")
	}

	if t.TxnDateUTC.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}

	if t.Amount.IsNegative() {
		return fmt.Errorf("transaction amount cannot be negative: %s", t.Amount.String())
	}

	if t.MoneyOut != nil && t.MoneyOut.IsNegative() {
		return fmt.Errorf("money out cannot be negative: %s", t.MoneyOut.String())
	}

	if t.MoneyIn != nil && t.MoneyIn.IsNegative() {
		return fmt.Errorf("money in cannot be negative: %s", t.MoneyIn.String())
	}

	switch t.Direction {
	case DirectionInflow:
		if t.MoneyIn == nil {
			return fmt.Errorf("inflow transaction must have money in populated")
		}
	case DirectionOutflow:
		if t.MoneyOut == nil {
			return fmt.Errorf("outflow transaction must have money out populated")
		}
	case DirectionNeutral:
		if t.MoneyIn != nil || t.MoneyOut != nil {
			return fmt.Errorf("neutral transaction must have no money fields populated")
		}
	default:
		return fmt.Errorf("invalid direction: %s", t.Direction)
	}

	if !t.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", t.Category)
	}

	if t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("confidence must be within [0, 1]: %f", t.Confidence)
	}

	return nil
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Date: %s, Type: %s, Amount: %s %s, Category: %s}",
		t.ID, t.TxnDateUTC.Format("2006-01-02"), t.TxnTypeCode,
		t.SignedAmount.String(), t.AccountCurrency, t.Category)
}

// EffectiveCategory resolves the category, preferring the override when
// present and requested
func (t *Transaction) EffectiveCategory(useOverrides bool) Category {
	if useOverrides && t.CategoryOverride != nil {
		return *t.CategoryOverride
	}
	return t.Category
}

// EffectiveAmount resolves the contribution amount, applying the amount and
// sign overrides when present and requested. A flipped sign makes the
// contribution negative within its category rather than moving the row to
// another category.
func (t *Transaction) EffectiveAmount(useOverrides bool) decimal.Decimal {
	amount := t.Amount
	if useOverrides && t.AmountOverride != nil {
		amount = *t.AmountOverride
	}
	if useOverrides && t.SignOverride != nil && *t.SignOverride {
		amount = amount.Neg()
	}
	return amount
}

// EffectiveSignedAmount resolves the inflow-positive/outflow-negative amount,
// applying the amount and sign overrides when present and requested
func (t *Transaction) EffectiveSignedAmount(useOverrides bool) decimal.Decimal {
	amount := t.Amount
	if useOverrides && t.AmountOverride != nil {
		amount = *t.AmountOverride
	}

	signed := amount
	switch t.Direction {
	case DirectionOutflow:
		signed = amount.Neg()
	case DirectionNeutral:
		signed = decimal.Zero
	}

	if useOverrides && t.SignOverride != nil && *t.SignOverride {
		signed = signed.Neg()
	}
	return signed
}

// MonthKey returns the YYYY-MM grouping key for a date
func MonthKey(date time.Time) string {
	return date.Format("2006-01")
}

var (
	monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)
	yearPattern  = regexp.MustCompile(`^\d{4}$`)
)

// ParseMonth parses a YYYY-MM (or bare YYYY) month parameter into the first
// day of that month
func ParseMonth(value string) (time.Time, error) {
	value = strings.TrimSpace(value)

	if monthPattern.MatchString(value) {
		return time.Parse("2006-01", value)
	}
	if yearPattern.MatchString(value) {
		return time.Parse("2006", value)
	}

	return time.Time{}, fmt.Errorf("invalid month format '%s': expected YYYY-MM", value)
}

// EndOfMonth returns the last day of the month containing the given date
func EndOfMonth(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 1, -1)
}

// amountCleaner strips grouping spaces (including non-breaking) and commas
// from an amount token
var amountCleaner = strings.NewReplacer(" ", "", "\u00a0", "", ",", "")

// ParseAmount parses a single monetary token as it appears in statement text.
// It accepts space- or comma-grouped thousands and an optional currency
// symbol prefix or trailing 3-letter code, e.g. "2 500.00", "£1,234.56",
// "1 000.00 RON".
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	for _, symbol := range []string{"£", "€", "$"} {
		s = strings.ReplaceAll(s, symbol, "")
	}
	s = strings.TrimSpace(s)

	// Trailing 3-letter currency code
	if len(s) > 4 {
		tail := s[len(s)-3:]
		if isUpperAlpha(tail) && s[len(s)-4] == ' ' {
			s = strings.TrimSpace(s[:len(s)-4])
		}
	}

	s = amountCleaner.Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format '%s': %w", s, err)
	}

	return d, nil
}

func isUpperAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return len(s) > 0
}

// NormalizeText lowercases and whitespace-collapses free text for rule
// matching
func NormalizeText(text string) string {
	lowered := strings.ToLower(text)
	fields := strings.Fields(lowered)
	return strings.Join(fields, " ")
}

// CollapseWhitespace collapses runs of whitespace in a line to single spaces
func CollapseWhitespace(line string) string {
	return strings.Join(strings.Fields(line), " ")
}
