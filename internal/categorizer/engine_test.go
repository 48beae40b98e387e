package categorizer

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"financial-statements-service/internal/models"
)

func createTestEngine(t *testing.T) *Engine {
	t.Helper()

	engine, err := NewEngine(nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func createTestTransaction(description string, direction models.Direction) *models.Transaction {
	amount := decimal.NewFromFloat(100.00)
	txn := &models.Transaction{
		AccountName:     "Main",
		AccountCurrency: "RON",
		TxnDateUTC:      time.Date(2026, 1, 27, 0, 0, 0, 0, time.UTC),
		DescriptionRaw:  description,
		Direction:       direction,
		Amount:          amount,
		SignedAmount:    amount,
	}
	if direction == models.DirectionOutflow {
		txn.SignedAmount = amount.Neg()
		txn.MoneyOut = &amount
	} else if direction == models.DirectionInflow {
		txn.MoneyIn = &amount
	}
	return txn
}

func TestCategorizeKeywordMatches(t *testing.T) {
	engine := createTestEngine(t)

	tests := []struct {
		name         string
		description  string
		direction    models.Direction
		wantCategory models.Category
		wantConf     float64
		wantReview   bool
	}{
		{
			name:         "treasury payment is a tax expense",
			description:  "Trezoreria Statului plata obligatii",
			direction:    models.DirectionOutflow,
			wantCategory: models.CategoryTaxes,
			wantConf:     0.90,
		},
		{
			name:         "dividend payout",
			description:  "Plata dividende Q4",
			direction:    models.DirectionOutflow,
			wantCategory: models.CategoryPaidDividends,
			wantConf:     0.90,
		},
		{
			name:         "salary transfer",
			description:  "Salariu Ianuarie Popescu Ion",
			direction:    models.DirectionOutflow,
			wantCategory: models.CategoryEmployees,
			wantConf:     0.90,
		},
		{
			name:         "leasing installment",
			description:  "Rata leasing auto contract 123",
			direction:    models.DirectionOutflow,
			wantCategory: models.CategoryCarLeasing,
			wantConf:     0.90,
		},
		{
			name:         "accountant vendor name",
			description:  "Optimar Consult Expert SRL factura 55",
			direction:    models.DirectionOutflow,
			wantCategory: models.CategoryAccountant,
			wantConf:     0.95,
		},
		{
			name:         "payment received is revenue",
			description:  "Payment received from Client SRL",
			direction:    models.DirectionInflow,
			wantCategory: models.CategoryRevenue,
			wantConf:     0.90,
		},
		{
			name:         "weak keyword flags below full confidence",
			description:  "Plata CAM luna curenta",
			direction:    models.DirectionOutflow,
			wantCategory: models.CategoryTaxes,
			wantConf:     0.70,
		},
		{
			name:         "unmatched outflow falls back for review",
			description:  "Card payment at Dedeman 1021",
			direction:    models.DirectionOutflow,
			wantCategory: models.CategoryOther,
			wantConf:     0.40,
			wantReview:   true,
		},
		{
			name:         "unmatched inflow defaults to revenue",
			description:  "Transfer from Partner GmbH",
			direction:    models.DirectionInflow,
			wantCategory: models.CategoryRevenue,
			wantConf:     0.70,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.Categorize(createTestTransaction(tt.description, tt.direction))

			if result.Category != tt.wantCategory {
				t.Errorf("Category = %s, want %s (reason: %s)", result.Category, tt.wantCategory, result.Reason)
			}
			if result.Confidence != tt.wantConf {
				t.Errorf("Confidence = %.2f, want %.2f", result.Confidence, tt.wantConf)
			}
			if result.NeedsReview != tt.wantReview {
				t.Errorf("NeedsReview = %v, want %v", result.NeedsReview, tt.wantReview)
			}
			if result.Reason == "" {
				t.Error("Reason should never be empty")
			}
		})
	}
}

func TestCategorizePriorityOrder(t *testing.T) {
	engine := createTestEngine(t)

	// Matches both the dividend and employee rules; the dividend rule is
	// listed first and must win
	txn := createTestTransaction("Plata dividende si bonus asociat", models.DirectionOutflow)
	result := engine.Categorize(txn)

	if result.Category != models.CategoryPaidDividends {
		t.Errorf("Category = %s, want %s", result.Category, models.CategoryPaidDividends)
	}
}

func TestCategorizeDirectionGuard(t *testing.T) {
	engine := createTestEngine(t)

	// "tax" keyword belongs to an outflow-only rule, so a tax refund inflow
	// must not land in the tax category
	txn := createTestTransaction("Tax refund ANAF", models.DirectionInflow)
	result := engine.Categorize(txn)

	if result.Category == models.CategoryTaxes {
		t.Errorf("inflow must not match outflow-only rule, got %s", result.Category)
	}
	if result.Category != models.CategoryRevenue {
		t.Errorf("Category = %s, want %s", result.Category, models.CategoryRevenue)
	}
}

func TestCategorizeInternalTransfer(t *testing.T) {
	engine := createTestEngine(t)

	tests := []struct {
		name     string
		typeCode string
	}{
		{"exchange out leg", "EXO"},
		{"exchange in leg", "EXI"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := createTestTransaction("Main · GBP -> Main · RON", models.DirectionOutflow)
			txn.TxnTypeCode = tt.typeCode
			txn.TransferFromCurrency = "GBP"
			txn.TransferToCurrency = "RON"

			result := engine.Categorize(txn)

			if !result.IsInternalTransfer {
				t.Error("IsInternalTransfer = false, want true")
			}
			if result.Category != models.CategoryOther {
				t.Errorf("Category = %s, want %s", result.Category, models.CategoryOther)
			}
			if result.Confidence != 0.95 {
				t.Errorf("Confidence = %.2f, want 0.95", result.Confidence)
			}
			if result.NeedsReview {
				t.Error("internal transfers are settled, not review candidates")
			}
		})
	}
}

func TestCategorizeWeakKeywordBoundary(t *testing.T) {
	engine := createTestEngine(t)

	// "cas" must only match as a standalone word
	txn := createTestTransaction("Plata casti audio Emag", models.DirectionOutflow)
	result := engine.Categorize(txn)

	if result.Category == models.CategoryTaxes {
		t.Errorf("weak keyword matched inside a longer word: %s", result.Reason)
	}
}

func TestCategorizeInflowTypeCode(t *testing.T) {
	engine := createTestEngine(t)

	txn := createTestTransaction("Balance top-up via transfer", models.DirectionInflow)
	txn.TxnTypeCode = "MOA"

	result := engine.Categorize(txn)

	if result.Category != models.CategoryRevenue {
		t.Errorf("Category = %s, want %s", result.Category, models.CategoryRevenue)
	}
	if result.Confidence != 0.90 {
		t.Errorf("Confidence = %.2f, want 0.90", result.Confidence)
	}
}

func TestCategorizeDeterminism(t *testing.T) {
	engine := createTestEngine(t)
	txn := createTestTransaction("Trezoreria Statului", models.DirectionOutflow)

	first := engine.Categorize(txn)
	for i := 0; i < 10; i++ {
		again := engine.Categorize(txn)
		if again != first {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestReloadSwapsRuleSetAtomically(t *testing.T) {
	engine := createTestEngine(t)

	replacement := DefaultRuleSet()
	replacement.Rules = append([]Rule{{
		Category:  models.CategoryOther,
		Direction: DirectionAny,
		Keywords:  []string{"trezoreria"},
	}}, replacement.Rules...)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		txn := createTestTransaction("Trezoreria Statului", models.DirectionOutflow)
		for {
			select {
			case <-stop:
				return
			default:
			}
			result := engine.Categorize(txn)
			// Either rule set is acceptable mid-swap; a mixed verdict is not
			if result.Category == models.CategoryTaxes && result.Confidence != 0.90 {
				t.Errorf("inconsistent verdict: %+v", result)
				return
			}
			if result.Category == models.CategoryOther && result.Confidence != 0.90 {
				t.Errorf("inconsistent verdict: %+v", result)
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		if err := engine.Reload(replacement); err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
		if err := engine.Reload(DefaultRuleSet()); err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestReloadRejectsInvalidRuleSet(t *testing.T) {
	engine := createTestEngine(t)

	invalid := DefaultRuleSet()
	invalid.Rules[0].Category = models.Category("Not a category")

	if err := engine.Reload(invalid); err == nil {
		t.Fatal("Reload() should reject an unknown category")
	}

	// Active rules stay in effect
	result := engine.Categorize(createTestTransaction("Trezoreria Statului", models.DirectionOutflow))
	if result.Category != models.CategoryTaxes {
		t.Errorf("Category = %s, want %s after failed reload", result.Category, models.CategoryTaxes)
	}
}

func TestUnmatchedInflowReviewPolicy(t *testing.T) {
	ruleSet := DefaultRuleSet()
	ruleSet.UnmatchedInflowPolicy = InflowPolicyReview

	engine, err := NewEngine(ruleSet)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	result := engine.Categorize(createTestTransaction("Transfer from Partner GmbH", models.DirectionInflow))

	if result.Category != models.CategoryRevenue {
		t.Errorf("Category = %s, want %s", result.Category, models.CategoryRevenue)
	}
	if result.Confidence != 0.40 {
		t.Errorf("Confidence = %.2f, want 0.40", result.Confidence)
	}
	if !result.NeedsReview {
		t.Error("review policy must flag unmatched inflows")
	}
}

func TestRuleSetValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RuleSet)
		wantErr bool
	}{
		{"defaults are valid", func(rs *RuleSet) {}, false},
		{"empty rules", func(rs *RuleSet) { rs.Rules = nil }, true},
		{"bad direction", func(rs *RuleSet) { rs.Rules[0].Direction = "sideways" }, true},
		{"rule with no matchers", func(rs *RuleSet) {
			rs.Rules[0].Keywords = nil
			rs.Rules[0].WeakKeywords = nil
			rs.Rules[0].Vendors = nil
		}, true},
		{"threshold out of range", func(rs *RuleSet) { rs.ReviewThreshold = 1.5 }, true},
		{"weight out of range", func(rs *RuleSet) { rs.Weights.Vendor = -0.1 }, true},
		{"unknown inflow policy", func(rs *RuleSet) { rs.UnmatchedInflowPolicy = "discard" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ruleSet := DefaultRuleSet()
			tt.mutate(ruleSet)

			err := ruleSet.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRuleSetFromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/rules.yaml"

	content := `
review_threshold: 0.50
unmatched_inflow_policy: review
rules:
  - category: "Revenue"
    direction: inflow
    keywords: ["payment received"]
  - category: "Other expenses"
    direction: any
    keywords: ["misc"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	ruleSet, err := LoadRuleSet(path)
	if err != nil {
		t.Fatalf("LoadRuleSet() error = %v", err)
	}

	if len(ruleSet.Rules) != 2 {
		t.Errorf("len(Rules) = %d, want 2", len(ruleSet.Rules))
	}
	if ruleSet.ReviewThreshold != 0.50 {
		t.Errorf("ReviewThreshold = %.2f, want 0.50", ruleSet.ReviewThreshold)
	}
	if ruleSet.UnmatchedInflowPolicy != InflowPolicyReview {
		t.Errorf("UnmatchedInflowPolicy = %s, want %s", ruleSet.UnmatchedInflowPolicy, InflowPolicyReview)
	}
	// Defaulted settings fill in
	if ruleSet.Weights.Vendor != 0.95 {
		t.Errorf("Weights.Vendor = %.2f, want default 0.95", ruleSet.Weights.Vendor)
	}
}

func TestLoadRuleSetRejectsMissingFile(t *testing.T) {
	if _, err := LoadRuleSet(t.TempDir() + "/absent.yaml"); err == nil {
		t.Fatal("LoadRuleSet() should fail for a missing file")
	}
}
