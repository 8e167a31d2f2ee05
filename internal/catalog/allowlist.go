// Copyright 2025 The Flowwright Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package catalog

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Allowlist restricts which node types the generator may place. Patterns
// support globs ("n8n-nodes-base.*"); a leading ! blocks the matched types
// and takes precedence over allows. An empty allowlist permits every type.
type Allowlist struct {
	allowed []string
	blocked []string
}

// NewAllowlist builds an allowlist from configured patterns. Patterns
// starting with ! become block patterns.
func NewAllowlist(patterns []string) *Allowlist {
	a := &Allowlist{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "!") {
			a.blocked = append(a.blocked, strings.TrimPrefix(p, "!"))
			continue
		}
		a.allowed = append(a.allowed, p)
	}
	return a
}

// Allowed reports whether the node type passes the allowlist. A nil
// allowlist allows everything.
func (a *Allowlist) Allowed(nodeType string) bool {
	return a.Check(nodeType) == nil
}

// Check returns nil if the node type is allowed, or a descriptive error
// naming the pattern that blocked it.
func (a *Allowlist) Check(nodeType string) error {
	if a == nil {
		return nil
	}

	// Block patterns take precedence
	for _, pattern := range a.blocked {
		if matchesTypePattern(nodeType, pattern) {
			return fmt.Errorf("node type %q is blocked by pattern %q", nodeType, "!"+pattern)
		}
	}

	// No allow patterns means everything not blocked is allowed
	if len(a.allowed) == 0 {
		return nil
	}

	for _, pattern := range a.allowed {
		if matchesTypePattern(nodeType, pattern) {
			return nil
		}
	}

	return fmt.Errorf("node type %q does not match any allowed pattern %v", nodeType, a.allowed)
}

// matchesTypePattern checks a node type against a glob pattern, falling
// back to exact comparison when the pattern does not parse.
func matchesTypePattern(nodeType, pattern string) bool {
	if nodeType == pattern {
		return true
	}

	matched, err := doublestar.Match(pattern, nodeType)
	if err != nil {
		return false
	}
	return matched
}
