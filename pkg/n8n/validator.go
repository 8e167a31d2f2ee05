package n8n

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Issue is a single validation finding. Errors make a workflow unusable;
// warnings flag likely mistakes that n8n would still import.
type Issue struct {
	// Code is a stable machine-readable identifier for the finding.
	Code string `json:"code"`

	// Node names the offending node when the finding is node-scoped.
	Node string `json:"node,omitempty"`

	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ValidationResult is the outcome of validating one workflow document.
// Valid is true exactly when Errors is empty; warnings never affect it.
type ValidationResult struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Validator checks workflow documents in two phases: structural (wire-format
// schema conformance) and semantic (referential integrity errors plus
// workflow-shape warnings). Validation is pure: it never mutates the
// workflow, touches the network, or consults a node registry, so validating
// the same document twice yields the same result.
type Validator struct{}

// NewValidator creates a workflow validator.
func NewValidator() *Validator {
	return &Validator{}
}

// nodeTypePattern admits the two node namespaces n8n ships: the base node
// set and the LangChain extension set.
var nodeTypePattern = regexp.MustCompile(`^(n8n-nodes-base|@n8n/n8n-nodes-langchain)\..+$`)

// pollingSuffixes are base-namespace entry points that start a workflow but
// carry neither "trigger" nor "webhook" in their type name.
var pollingSuffixes = []string{".cron", ".interval", ".start"}

// IsTriggerType reports whether a node type looks like a workflow entry
// point. This is a best-effort string heuristic, not a registry lookup: it
// matches "trigger" or "webhook" anywhere in the type (case-insensitive) and
// a short list of polling suffixes.
func IsTriggerType(typ string) bool {
	t := strings.ToLower(typ)
	if strings.Contains(t, "trigger") || strings.Contains(t, "webhook") {
		return true
	}
	for _, suffix := range pollingSuffixes {
		if strings.HasSuffix(t, suffix) {
			return true
		}
	}
	return false
}

// Validate runs the structural phase and, only when it is clean, the
// semantic phase. Semantic checks assume a structurally sound document, so
// schema violations short-circuit with just the structural findings.
func (v *Validator) Validate(wf *Workflow) *ValidationResult {
	result := &ValidationResult{
		Errors:   []Issue{},
		Warnings: []Issue{},
	}

	v.checkStructure(wf, result)
	if len(result.Errors) == 0 {
		v.checkGraph(wf, result)
		v.checkShape(wf, result)
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// checkStructure is the structural phase: wire-format schema conformance.
func (v *Validator) checkStructure(wf *Workflow, result *ValidationResult) {
	if strings.TrimSpace(wf.Name) == "" {
		result.Errors = append(result.Errors, Issue{
			Code:    "empty_workflow_name",
			Message: "workflow name must not be empty",
		})
	}

	if len(wf.Nodes) == 0 {
		result.Errors = append(result.Errors, Issue{
			Code:       "no_nodes",
			Message:    "workflow has no nodes",
			Suggestion: "add at least one node before validating",
		})
	}

	for _, node := range wf.Nodes {
		v.checkNode(node, result)
	}

	v.checkConnectionSchema(wf, result)

	if wf.Settings != nil && wf.Settings.ExecutionOrder != "" && wf.Settings.ExecutionOrder != ExecutionOrderV1 {
		result.Errors = append(result.Errors, Issue{
			Code:       "invalid_execution_order",
			Message:    fmt.Sprintf("unsupported execution order %q", wf.Settings.ExecutionOrder),
			Suggestion: fmt.Sprintf("set settings.executionOrder to %q", ExecutionOrderV1),
		})
	}
}

func (v *Validator) checkNode(node Node, result *ValidationResult) {
	if node.ID == "" {
		result.Errors = append(result.Errors, Issue{
			Code:    "missing_node_id",
			Node:    node.Name,
			Message: fmt.Sprintf("node %q has no id", node.Name),
		})
	}
	if node.Name == "" {
		result.Errors = append(result.Errors, Issue{
			Code:    "missing_node_name",
			Message: fmt.Sprintf("node %q has no name", node.ID),
		})
	}

	switch {
	case node.Type == "":
		result.Errors = append(result.Errors, Issue{
			Code:    "missing_node_type",
			Node:    node.Name,
			Message: fmt.Sprintf("node %q has no type", node.Name),
		})
	case !nodeTypePattern.MatchString(node.Type):
		result.Errors = append(result.Errors, Issue{
			Code:       "invalid_node_type",
			Node:       node.Name,
			Message:    fmt.Sprintf("node %q has type %q outside the known namespaces", node.Name, node.Type),
			Suggestion: "node types start with \"n8n-nodes-base.\" or \"@n8n/n8n-nodes-langchain.\"",
		})
	}

	if node.TypeVersion < 1 {
		result.Errors = append(result.Errors, Issue{
			Code:    "invalid_type_version",
			Node:    node.Name,
			Message: fmt.Sprintf("node %q has typeVersion %v, expected >= 1", node.Name, node.TypeVersion),
		})
	}

	if len(node.Position) != 2 {
		result.Errors = append(result.Errors, Issue{
			Code:    "invalid_position",
			Node:    node.Name,
			Message: fmt.Sprintf("node %q position must be an [x, y] pair", node.Name),
		})
	}
}

// checkConnectionSchema verifies every edge uses a known connection kind and
// non-negative port indices. Whether the endpoints exist is the semantic
// phase's question. Sources and kinds are visited in sorted order so
// findings come out deterministically.
func (v *Validator) checkConnectionSchema(wf *Workflow, result *ValidationResult) {
	sources := make([]string, 0, len(wf.Connections))
	for source := range wf.Connections {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	for _, source := range sources {
		kinds := make([]string, 0, len(wf.Connections[source]))
		for kind := range wf.Connections[source] {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)

		for _, kind := range kinds {
			if !IsConnectionKind(kind) {
				result.Errors = append(result.Errors, Issue{
					Code:    "invalid_connection_kind",
					Node:    source,
					Message: fmt.Sprintf("connection from %q uses unknown kind %q", source, kind),
				})
			}
			for _, slot := range wf.Connections[source][kind] {
				for _, conn := range slot {
					if conn.Index < 0 {
						result.Errors = append(result.Errors, Issue{
							Code:    "negative_connection_index",
							Node:    conn.Node,
							Message: fmt.Sprintf("connection from %q to %q has negative input index %d", source, conn.Node, conn.Index),
						})
					}
				}
			}
		}
	}
}

// checkGraph is the semantic phase's error half: referential integrity over
// a structurally sound document. Duplicate identities and connections whose
// endpoints are not nodes make the graph unusable.
func (v *Validator) checkGraph(wf *Workflow, result *ValidationResult) {
	names := make(map[string]bool, len(wf.Nodes))
	ids := make(map[string]bool, len(wf.Nodes))
	for _, node := range wf.Nodes {
		if names[node.Name] {
			result.Errors = append(result.Errors, Issue{
				Code:    "duplicate_node_name",
				Node:    node.Name,
				Message: fmt.Sprintf("Duplicate node name: %q", node.Name),
			})
		}
		names[node.Name] = true

		if ids[node.ID] {
			result.Errors = append(result.Errors, Issue{
				Code:    "duplicate_node_id",
				Node:    node.Name,
				Message: fmt.Sprintf("Duplicate node id: %q", node.ID),
			})
		}
		ids[node.ID] = true
	}

	sources := make([]string, 0, len(wf.Connections))
	for source := range wf.Connections {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	for _, source := range sources {
		if !names[source] {
			result.Errors = append(result.Errors, Issue{
				Code:    "unknown_connection_source",
				Node:    source,
				Message: fmt.Sprintf("connection source node %q does not exist", source),
			})
		}

		kinds := make([]string, 0, len(wf.Connections[source]))
		for kind := range wf.Connections[source] {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)

		for _, kind := range kinds {
			for _, slot := range wf.Connections[source][kind] {
				for _, conn := range slot {
					if !names[conn.Node] {
						result.Errors = append(result.Errors, Issue{
							Code:    "unknown_connection_target",
							Node:    conn.Node,
							Message: fmt.Sprintf("connection from %q targets node %q, which does not exist", source, conn.Node),
						})
					}
				}
			}
		}
	}
}

// checkShape is the semantic phase's warning half: heuristics over the
// workflow's shape. Findings here are always warnings because the
// heuristics can misjudge unusual but legitimate workflows.
func (v *Validator) checkShape(wf *Workflow, result *ValidationResult) {
	hasTrigger := false
	for _, node := range wf.Nodes {
		if IsTriggerType(node.Type) {
			hasTrigger = true
			break
		}
	}
	if !hasTrigger {
		result.Warnings = append(result.Warnings, Issue{
			Code:       "no_trigger",
			Message:    "workflow has no trigger node and can only be run manually",
			Suggestion: "add a trigger node such as n8n-nodes-base.webhook or n8n-nodes-base.scheduleTrigger",
		})
	}

	if len(wf.Nodes) <= 1 {
		return
	}

	incoming := make(map[string]bool)
	for _, kindMap := range wf.Connections {
		for _, slots := range kindMap {
			for _, slot := range slots {
				for _, conn := range slot {
					incoming[conn.Node] = true
				}
			}
		}
	}

	for _, node := range wf.Nodes {
		if IsTriggerType(node.Type) || incoming[node.Name] {
			continue
		}
		result.Warnings = append(result.Warnings, Issue{
			Code:       "orphan_node",
			Node:       node.Name,
			Message:    fmt.Sprintf("node %q has no incoming connections", node.Name),
			Suggestion: fmt.Sprintf("connect another node to %q or remove it", node.Name),
		})
	}
}
