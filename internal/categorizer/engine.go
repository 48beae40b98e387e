package categorizer

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"financial-statements-service/internal/models"
	"financial-statements-service/pkg/errors"
	"financial-statements-service/pkg/logger"
)

// Result is the categorization verdict for one transaction
type Result struct {
	Category           models.Category
	Confidence         float64
	Reason             string
	NeedsReview        bool
	IsInternalTransfer bool
}

// compiledRule is a rule with its matcher terms normalized and its
// weak-keyword patterns precompiled. Weak keywords match on word boundaries
// only, so a short code like "cas" cannot fire inside "cascade".
type compiledRule struct {
	rule         Rule
	keywords     []string
	vendors      []string
	weakPatterns []*regexp.Regexp
	weakTerms    []string
}

// compiledRuleSet is the immutable, match-ready form of a RuleSet. Reload
// swaps the whole value so concurrent Categorize calls always see one
// consistent document.
type compiledRuleSet struct {
	rules           []compiledRule
	weights         Weights
	reviewThreshold float64
	inflowPolicy    UnmatchedInflowPolicy
	inflowTypeCodes map[string]bool
}

// Engine assigns categories to transactions by evaluating the active rule
// set in order. It is safe for concurrent use; Categorize is deterministic
// for a given rule set and transaction.
type Engine struct {
	mu       sync.RWMutex
	compiled *compiledRuleSet
	logger   logger.Logger
}

// NewEngine creates an Engine from the given rule set, or from the defaults
// when nil is passed
func NewEngine(ruleSet *RuleSet) (*Engine, error) {
	if ruleSet == nil {
		ruleSet = DefaultRuleSet()
	}

	engine := &Engine{logger: logger.WithComponent("categorizer")}
	if err := engine.Reload(ruleSet); err != nil {
		return nil, err
	}
	return engine, nil
}

// Reload validates and compiles a new rule set, then atomically replaces the
// active one. In-flight categorizations finish under the old rules; the
// active rules are untouched when validation or compilation fails.
func (e *Engine) Reload(ruleSet *RuleSet) error {
	if err := ruleSet.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidRules, "rule set", err)
	}

	compiled, err := compileRuleSet(ruleSet)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidRules, "rule set", err)
	}

	e.mu.Lock()
	e.compiled = compiled
	e.mu.Unlock()

	e.logger.WithField("rules", len(compiled.rules)).Debug("Activated rule set")
	return nil
}

// ReviewThreshold returns the active review threshold
func (e *Engine) ReviewThreshold() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.compiled.reviewThreshold
}

// Categorize assigns a category, confidence and reason to one transaction.
//
// Internal exchange legs (EXI/EXO type codes, or rows carrying a currency
// transfer annotation) short-circuit the rule walk: they are not business
// income or spend, so they land in the catch-all category at high confidence
// and are marked as internal transfers for downstream exclusion.
func (e *Engine) Categorize(txn *models.Transaction) Result {
	e.mu.RLock()
	compiled := e.compiled
	e.mu.RUnlock()

	if isInternalTransfer(txn) {
		return Result{
			Category:           models.CategoryOther,
			Confidence:         compiled.weights.Vendor,
			Reason:             fmt.Sprintf("internal_transfer: %s", transferReason(txn)),
			IsInternalTransfer: true,
		}
	}

	haystack := matchText(txn)

	for i := range compiled.rules {
		cr := &compiled.rules[i]
		if !cr.rule.AcceptsDirection(txn.Direction) {
			continue
		}

		for _, vendor := range cr.vendors {
			if strings.Contains(haystack, vendor) {
				return compiled.verdict(cr.rule.Category, compiled.weights.Vendor,
					fmt.Sprintf("matched_vendor: %s -> %s", vendor, cr.rule.Category))
			}
		}

		for _, keyword := range cr.keywords {
			if strings.Contains(haystack, keyword) {
				return compiled.verdict(cr.rule.Category, compiled.weights.Keyword,
					fmt.Sprintf("matched_keyword: %s -> %s", keyword, cr.rule.Category))
			}
		}

		for j, pattern := range cr.weakPatterns {
			if pattern.MatchString(haystack) {
				return compiled.verdict(cr.rule.Category, compiled.weights.Weak,
					fmt.Sprintf("matched_weak_keyword: %s -> %s", cr.weakTerms[j], cr.rule.Category))
			}
		}
	}

	// Inflow type codes backstop the Revenue keywords: money added or a
	// received transfer is revenue even when the description says nothing
	if txn.Direction == models.DirectionInflow && compiled.inflowTypeCodes[txn.TxnTypeCode] {
		return compiled.verdict(models.CategoryRevenue, compiled.weights.Keyword,
			fmt.Sprintf("matched_type_code: %s -> %s", txn.TxnTypeCode, models.CategoryRevenue))
	}

	return compiled.fallback(txn)
}

// verdict builds a Result, deriving needs-review from the threshold
func (c *compiledRuleSet) verdict(category models.Category, confidence float64, reason string) Result {
	return Result{
		Category:    category,
		Confidence:  confidence,
		Reason:      reason,
		NeedsReview: confidence < c.reviewThreshold,
	}
}

// fallback resolves a transaction no rule matched
func (c *compiledRuleSet) fallback(txn *models.Transaction) Result {
	if txn.Direction == models.DirectionInflow {
		switch c.inflowPolicy {
		case InflowPolicyRevenue:
			return c.verdict(models.CategoryRevenue, c.weights.Weak,
				fmt.Sprintf("unmatched_inflow -> %s", models.CategoryRevenue))
		default:
			return c.verdict(models.CategoryRevenue, c.weights.Fallback,
				fmt.Sprintf("unmatched_inflow_review -> %s", models.CategoryRevenue))
		}
	}

	reason := fmt.Sprintf("unmatched_outflow -> %s", models.CategoryOther)
	if txn.Direction == models.DirectionNeutral {
		reason = fmt.Sprintf("no_direction -> %s", models.CategoryOther)
	}
	return c.verdict(models.CategoryOther, c.weights.Fallback, reason)
}

// isInternalTransfer reports whether the transaction is a leg of a
// currency exchange between the holder's own balances
func isInternalTransfer(txn *models.Transaction) bool {
	switch txn.TxnTypeCode {
	case "EXI", "EXO":
		return true
	}
	return txn.TransferFromCurrency != "" && txn.TransferToCurrency != ""
}

func transferReason(txn *models.Transaction) string {
	if txn.TransferFromCurrency != "" && txn.TransferToCurrency != "" {
		return fmt.Sprintf("%s -> %s", txn.TransferFromCurrency, txn.TransferToCurrency)
	}
	return txn.TxnTypeCode
}

// matchText builds the normalized haystack the rules match against:
// description plus counterpart account names
func matchText(txn *models.Transaction) string {
	parts := []string{txn.DescriptionRaw}
	if txn.ToAccount != "" {
		parts = append(parts, txn.ToAccount)
	}
	if txn.FromAccount != "" {
		parts = append(parts, txn.FromAccount)
	}
	return models.NormalizeText(strings.Join(parts, " "))
}

// compileRuleSet normalizes matcher terms and precompiles weak-keyword
// boundary patterns
func compileRuleSet(ruleSet *RuleSet) (*compiledRuleSet, error) {
	compiled := &compiledRuleSet{
		weights:         ruleSet.Weights,
		reviewThreshold: ruleSet.ReviewThreshold,
		inflowPolicy:    ruleSet.UnmatchedInflowPolicy,
		inflowTypeCodes: make(map[string]bool, len(ruleSet.InflowTypeCodes)),
	}

	for _, code := range ruleSet.InflowTypeCodes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			compiled.inflowTypeCodes[code] = true
		}
	}

	for _, rule := range ruleSet.Rules {
		cr := compiledRule{
			rule:     rule,
			keywords: normalizeKeywords(rule.Keywords),
			vendors:  normalizeKeywords(rule.Vendors),
		}

		for _, term := range normalizeKeywords(rule.WeakKeywords) {
			pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(term) + `\b`)
			if err != nil {
				return nil, fmt.Errorf("weak keyword '%s' for category '%s': %w", term, rule.Category, err)
			}
			cr.weakPatterns = append(cr.weakPatterns, pattern)
			cr.weakTerms = append(cr.weakTerms, term)
		}

		compiled.rules = append(compiled.rules, cr)
	}

	return compiled, nil
}
