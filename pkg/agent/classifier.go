package agent

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Class labels how the generation loop should handle a failure.
type Class string

const (
	// ClassRecoverable marks failures the model can plausibly fix with more
	// tool calls, such as a missing parameter or a misspelled node type.
	ClassRecoverable Class = "recoverable"

	// ClassNonRecoverable marks failures that need out-of-band action, such
	// as credentials that must be configured on the n8n instance. Retrying
	// these burns turns with no chance of success.
	ClassNonRecoverable Class = "non_recoverable"
)

// Classification is the verdict on one failure message.
type Classification struct {
	Class Class

	// Hint is a repair suggestion: fed back to the model on recoverable
	// failures, surfaced to the user on non-recoverable ones.
	Hint string
}

// Classifier decides whether a failure is worth retrying. The loop consults
// it for every failed tool execution and every failed validation pass.
type Classifier interface {
	Classify(message string) Classification
}

// patternGroup is one row of the substring classification table. A group
// matches when every substring in all appears in the message and, if any is
// non-empty, at least one of its substrings does too.
type patternGroup struct {
	all   []string
	any   []string
	class Class
	hint  string
}

func (g patternGroup) matches(msg string) bool {
	for _, s := range g.all {
		if !strings.Contains(msg, s) {
			return false
		}
	}
	if len(g.any) == 0 {
		return true
	}
	for _, s := range g.any {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// defaultGroups is ordered: credential problems are checked first so that a
// message mentioning both a credential and a parameter is never treated as
// retryable.
var defaultGroups = []patternGroup{
	{
		any:   []string{"credential", "oauth", "api key", "api-key", "authentication", "unauthorized"},
		class: ClassNonRecoverable,
		hint:  "Configure the required credentials on the n8n instance, then run the build again",
	},
	{
		any:   []string{"required", "missing", "parameter"},
		class: ClassRecoverable,
		hint:  "Fill in the missing or invalid parameters with update_node_parameters",
	},
	{
		any:   []string{"invalid node", "unknown node", "unknown type", "outside the known namespaces"},
		class: ClassRecoverable,
		hint:  "Check the node type against list_node_types and use the exact type string",
	},
	{
		all:   []string{"connection"},
		any:   []string{"not found", "does not exist"},
		class: ClassRecoverable,
		hint:  "Check the node names in the connection against get_current_workflow; names are case-sensitive",
	},
}

// defaultHint applies when no group matches.
const defaultHint = "Review the reported errors and fix them with the workflow tools"

// TableClassifier classifies failures with an ordered case-insensitive
// substring table. It is the loop's default.
type TableClassifier struct {
	groups []patternGroup
}

// NewDefaultClassifier returns the built-in classification table.
func NewDefaultClassifier() *TableClassifier {
	return &TableClassifier{groups: defaultGroups}
}

// Classify matches the message against the table, first group wins.
// Unmatched messages default to recoverable: a retry wasted on a hopeless
// error costs one turn, while giving up on a fixable one loses the build.
func (c *TableClassifier) Classify(message string) Classification {
	msg := strings.ToLower(message)
	for _, g := range c.groups {
		if g.matches(msg) {
			return Classification{Class: g.class, Hint: g.hint}
		}
	}
	return Classification{Class: ClassRecoverable, Hint: defaultHint}
}

// Rule is one user-supplied classification rule. When is an expr predicate
// evaluated against the failure message, e.g.:
//
//	message contains "quota"
//
// Rules run before the fallback classifier, in order, first match wins.
type Rule struct {
	When  string
	Class Class
	Hint  string
}

type compiledRule struct {
	program *vm.Program
	class   Class
	hint    string
}

// classifierEnv is the expression environment a rule predicate sees.
type classifierEnv struct {
	Message string `expr:"message"`
}

// RuleClassifier evaluates user-defined rules ahead of a fallback
// classifier. Rules come from configuration; compile errors surface at
// construction, not at classification time.
type RuleClassifier struct {
	rules    []compiledRule
	fallback Classifier
}

// NewRuleClassifier compiles the rules. A nil fallback uses the default
// table.
func NewRuleClassifier(rules []Rule, fallback Classifier) (*RuleClassifier, error) {
	if fallback == nil {
		fallback = NewDefaultClassifier()
	}

	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		switch rule.Class {
		case ClassRecoverable, ClassNonRecoverable:
		default:
			return nil, fmt.Errorf("classifier rule %d: unknown class %q", i, rule.Class)
		}
		program, err := expr.Compile(rule.When, expr.Env(classifierEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("classifier rule %d: %w", i, err)
		}
		compiled = append(compiled, compiledRule{program: program, class: rule.Class, hint: rule.Hint})
	}

	return &RuleClassifier{rules: compiled, fallback: fallback}, nil
}

// Classify runs the rules in order and falls back when none match. A rule
// whose predicate errors at runtime is skipped rather than failing the
// classification.
func (c *RuleClassifier) Classify(message string) Classification {
	env := classifierEnv{Message: message}
	for _, rule := range c.rules {
		out, err := expr.Run(rule.program, env)
		if err != nil {
			continue
		}
		if matched, ok := out.(bool); ok && matched {
			return Classification{Class: rule.class, Hint: rule.hint}
		}
	}
	return c.fallback.Classify(message)
}
