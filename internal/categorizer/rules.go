package categorizer

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"financial-statements-service/internal/models"
	"financial-statements-service/pkg/errors"
	"financial-statements-service/pkg/logger"
)

// Rule direction values. "any" accepts both cash-flow directions.
const (
	DirectionInflow  = "inflow"
	DirectionOutflow = "outflow"
	DirectionAny     = "any"
)

// UnmatchedInflowPolicy names the behavior for inflows no rule matched
type UnmatchedInflowPolicy string

const (
	// InflowPolicyRevenue treats unmatched inflows as Revenue with a weak match
	InflowPolicyRevenue UnmatchedInflowPolicy = "revenue"
	// InflowPolicyReview assigns Revenue at fallback confidence, flagging the
	// row for review
	InflowPolicyReview UnmatchedInflowPolicy = "review"
)

// Rule is one externally configured category matcher: keyword and vendor
// lists plus the direction the category requires. Rules are evaluated in the
// order they appear in the rule set; the first match wins.
type Rule struct {
	Category     models.Category `mapstructure:"category" json:"category"`
	Direction    string          `mapstructure:"direction" json:"direction"`
	Keywords     []string        `mapstructure:"keywords" json:"keywords,omitempty"`
	WeakKeywords []string        `mapstructure:"weak_keywords" json:"weak_keywords,omitempty"`
	Vendors      []string        `mapstructure:"vendors" json:"vendors,omitempty"`
}

// Validate validates a single rule
func (r *Rule) Validate() error {
	if !r.Category.IsValid() {
		return fmt.Errorf("unknown category '%s'", r.Category)
	}

	switch r.Direction {
	case DirectionInflow, DirectionOutflow, DirectionAny:
	default:
		return fmt.Errorf("invalid direction '%s' for category '%s': must be inflow, outflow or any", r.Direction, r.Category)
	}

	if len(r.Keywords) == 0 && len(r.WeakKeywords) == 0 && len(r.Vendors) == 0 {
		return fmt.Errorf("rule for category '%s' has no matchers", r.Category)
	}

	return nil
}

// AcceptsDirection reports whether the rule can match a transaction with the
// given direction
func (r *Rule) AcceptsDirection(direction models.Direction) bool {
	switch r.Direction {
	case DirectionAny:
		return true
	case DirectionInflow:
		return direction == models.DirectionInflow
	case DirectionOutflow:
		return direction == models.DirectionOutflow
	default:
		return false
	}
}

// Weights are the confidence values assigned by match strength, not category
type Weights struct {
	Vendor   float64 `mapstructure:"vendor" json:"vendor"`
	Keyword  float64 `mapstructure:"keyword" json:"keyword"`
	Weak     float64 `mapstructure:"weak" json:"weak"`
	Fallback float64 `mapstructure:"fallback" json:"fallback"`
}

// RuleSet is the complete externally configured categorization document:
// the ordered rule list, the confidence weights, the review threshold and
// the named fallback policies.
type RuleSet struct {
	Rules                 []Rule                `mapstructure:"rules" json:"rules"`
	Weights               Weights               `mapstructure:"weights" json:"weights"`
	ReviewThreshold       float64               `mapstructure:"review_threshold" json:"review_threshold"`
	UnmatchedInflowPolicy UnmatchedInflowPolicy `mapstructure:"unmatched_inflow_policy" json:"unmatched_inflow_policy"`
	InflowTypeCodes       []string              `mapstructure:"inflow_type_codes" json:"inflow_type_codes"`
}

// Validate validates the rule set
func (rs *RuleSet) Validate() error {
	if len(rs.Rules) == 0 {
		return fmt.Errorf("rule set has no rules")
	}

	for i := range rs.Rules {
		if err := rs.Rules[i].Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}

	for _, weight := range []float64{rs.Weights.Vendor, rs.Weights.Keyword, rs.Weights.Weak, rs.Weights.Fallback} {
		if weight < 0 || weight > 1 {
			return fmt.Errorf("confidence weights must be within [0, 1]")
		}
	}

	if rs.ReviewThreshold < 0 || rs.ReviewThreshold > 1 {
		return fmt.Errorf("review threshold must be within [0, 1]")
	}

	switch rs.UnmatchedInflowPolicy {
	case InflowPolicyRevenue, InflowPolicyReview:
	default:
		return fmt.Errorf("invalid unmatched inflow policy '%s': must be revenue or review", rs.UnmatchedInflowPolicy)
	}

	return nil
}

// DefaultRuleSet mirrors configs/rules.yaml so the engine works with no rules
// file present. The rule order is the fixed category priority order.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Rules: []Rule{
			{
				Category:  models.CategoryPaidDividends,
				Direction: DirectionOutflow,
				Keywords:  []string{"dividende", "dividend", "plata dividende", "profit share"},
			},
			{
				Category:     models.CategoryTaxes,
				Direction:    DirectionOutflow,
				Keywords:     []string{"trezoreria", "anaf", "impozit", "contributii", "tax"},
				WeakKeywords: []string{"cam", "cass", "cas"},
			},
			{
				Category:     models.CategoryEmployees,
				Direction:    DirectionOutflow,
				Keywords:     []string{"salariu", "payroll", "wage", "salary", "bonus"},
				WeakKeywords: []string{"cim"},
			},
			{
				Category:  models.CategoryCarLeasing,
				Direction: DirectionOutflow,
				Keywords:  []string{"leasing"},
				Vendors:   []string{"bcr leasing", "aliat", "roviniete"},
			},
			{
				Category:  models.CategoryAccountant,
				Direction: DirectionOutflow,
				Keywords:  []string{"contabil", "contabilitate", "accounting", "expert"},
				Vendors:   []string{"optimar consult expert"},
			},
			{
				Category:  models.CategoryRevenue,
				Direction: DirectionInflow,
				Keywords:  []string{"money added", "payment received", "incasare", "incasat"},
			},
		},
		Weights: Weights{
			Vendor:   0.95,
			Keyword:  0.90,
			Weak:     0.70,
			Fallback: 0.40,
		},
		ReviewThreshold:       0.60,
		UnmatchedInflowPolicy: InflowPolicyRevenue,
		InflowTypeCodes:       []string{"MOA", "MOR"},
	}
}

// LoadRuleSet reads a rule set document from disk. The file may be YAML,
// JSON or TOML; missing weight, threshold and policy settings fall back to
// the defaults.
func LoadRuleSet(path string) (*RuleSet, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := DefaultRuleSet()
	v.SetDefault("review_threshold", defaults.ReviewThreshold)
	v.SetDefault("unmatched_inflow_policy", string(defaults.UnmatchedInflowPolicy))
	v.SetDefault("inflow_type_codes", defaults.InflowTypeCodes)
	v.SetDefault("weights.vendor", defaults.Weights.Vendor)
	v.SetDefault("weights.keyword", defaults.Weights.Keyword)
	v.SetDefault("weights.weak", defaults.Weights.Weak)
	v.SetDefault("weights.fallback", defaults.Weights.Fallback)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidRules, path, err)
	}

	var ruleSet RuleSet
	if err := v.Unmarshal(&ruleSet); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidRules, path, err)
	}

	if err := ruleSet.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidRules, path, err)
	}

	return &ruleSet, nil
}

// WatchRuleSet hot-reloads the rules document into the engine whenever the
// file changes. A document that fails to load or validate is ignored and the
// previously active rule set stays in effect.
func WatchRuleSet(path string, engine *Engine) error {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidRules, path, err)
	}

	log := logger.WithComponent("rule_watcher")

	v.OnConfigChange(func(in fsnotify.Event) {
		ruleSet, err := LoadRuleSet(path)
		if err != nil {
			log.WithError(err).Warn("Ignoring invalid rules document, keeping active rule set")
			return
		}
		if err := engine.Reload(ruleSet); err != nil {
			log.WithError(err).Warn("Failed to reload rule set")
			return
		}
		log.WithField("rules", len(ruleSet.Rules)).Info("Reloaded categorization rules")
	})
	v.WatchConfig()

	return nil
}

// normalizeKeywords lowercases configured matcher terms once at load time
func normalizeKeywords(terms []string) []string {
	normalized := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			normalized = append(normalized, term)
		}
	}
	return normalized
}
