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

// Package catalog provides an advisory catalog of n8n node types.
//
// The catalog backs prompt context, the list_node_types tool, and display
// name derivation. It is never consulted for validation: the connected n8n
// instance is the only authority on which node types actually exist.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Embed the curated node-type catalog into the binary so the CLI works
// without any external data files.
//
//go:embed nodes.yaml
var embeddedNodes []byte

// defaultSearchLimit caps Search results when the caller passes no limit.
const defaultSearchLimit = 20

// NodeType describes one n8n node type.
type NodeType struct {
	// Type is the full n8n type identifier, e.g. "n8n-nodes-base.httpRequest".
	Type string `yaml:"type" json:"type"`

	// DisplayName is the human-facing name shown in the n8n editor.
	DisplayName string `yaml:"display_name" json:"display_name"`

	// Description is a one-line summary of what the node does.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Group is a coarse category: trigger, core, app, data, or ai.
	Group string `yaml:"group,omitempty" json:"group,omitempty"`

	// LatestVersion is the newest typeVersion known for this node type.
	LatestVersion int `yaml:"latest_version,omitempty" json:"latest_version,omitempty"`

	// Aliases are extra search terms for this node type.
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// catalogFile is the on-disk/embedded YAML document shape.
type catalogFile struct {
	Version   int        `yaml:"version"`
	NodeTypes []NodeType `yaml:"node_types"`
}

// Catalog is a thread-safe collection of node types. Entries keep their
// load order; overrides merged later replace earlier entries in place.
type Catalog struct {
	mu    sync.RWMutex
	types []NodeType
	index map[string]int
}

// New builds a catalog from the embedded node-type data.
func New() (*Catalog, error) {
	c := &Catalog{index: make(map[string]int)}
	if err := c.Merge(embeddedNodes); err != nil {
		return nil, fmt.Errorf("failed to parse embedded catalog: %w", err)
	}
	return c, nil
}

// Load builds a catalog from the embedded data, then merges the YAML file
// at path over it. An empty path returns the embedded catalog unchanged.
func Load(path string) (*Catalog, error) {
	c, err := New()
	if err != nil {
		return nil, err
	}

	if path == "" {
		return c, nil
	}

	if err := c.MergeFile(path); err != nil {
		return nil, err
	}

	return c, nil
}

// MergeFile reads the YAML file at path and merges its node types into the
// catalog.
func (c *Catalog) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	if err := c.Merge(data); err != nil {
		return fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	return nil
}

// Merge parses YAML catalog data and upserts its node types. Existing types
// are replaced in place; new types are appended.
func (c *Catalog) Merge(data []byte) error {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, nt := range file.NodeTypes {
		if nt.Type == "" {
			continue
		}
		if pos, ok := c.index[nt.Type]; ok {
			c.types[pos] = nt
			continue
		}
		c.index[nt.Type] = len(c.types)
		c.types = append(c.types, nt)
	}

	return nil
}

// Lookup returns the catalog entry for the exact node type, if present.
func (c *Catalog) Lookup(nodeType string) (NodeType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pos, ok := c.index[nodeType]
	if !ok {
		return NodeType{}, false
	}
	return c.types[pos], true
}

// Len returns the number of node types in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.types)
}

// Types returns a copy of all node types in catalog order.
func (c *Catalog) Types() []NodeType {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]NodeType, len(c.types))
	copy(out, c.types)
	return out
}

// Search returns up to limit node types matching the query, best matches
// first. An empty query returns the first entries in catalog order. Matching
// is case-insensitive over type, display name, aliases, and description.
func (c *Catalog) Search(query string, limit int) []NodeType {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		n := limit
		if n > len(c.types) {
			n = len(c.types)
		}
		out := make([]NodeType, n)
		copy(out, c.types[:n])
		return out
	}

	type scored struct {
		nt    NodeType
		score int
		pos   int
	}

	var matches []scored
	for pos, nt := range c.types {
		score := matchScore(nt, q)
		if score < 0 {
			continue
		}
		matches = append(matches, scored{nt: nt, score: score, pos: pos})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score < matches[j].score
		}
		return matches[i].pos < matches[j].pos
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]NodeType, len(matches))
	for i, m := range matches {
		out[i] = m.nt
	}
	return out
}

// matchScore ranks how well a node type matches the lowercased query.
// Lower is better; negative means no match.
func matchScore(nt NodeType, q string) int {
	fullType := strings.ToLower(nt.Type)
	baseName := strings.ToLower(baseTypeName(nt.Type))
	display := strings.ToLower(nt.DisplayName)

	if q == fullType || q == baseName || q == display {
		return 0
	}
	for _, alias := range nt.Aliases {
		if q == strings.ToLower(alias) {
			return 0
		}
	}

	if strings.HasPrefix(baseName, q) || strings.HasPrefix(display, q) {
		return 1
	}

	if strings.Contains(fullType, q) || strings.Contains(display, q) {
		return 2
	}
	for _, alias := range nt.Aliases {
		if strings.Contains(strings.ToLower(alias), q) {
			return 2
		}
	}

	if strings.Contains(strings.ToLower(nt.Description), q) {
		return 3
	}

	return -1
}

// DisplayName returns the human-facing name for a node type: the curated
// catalog name when known, otherwise a name derived from the type
// identifier ("someVendor.httpRequest" becomes "Http Request").
func (c *Catalog) DisplayName(nodeType string) string {
	if nt, ok := c.Lookup(nodeType); ok && nt.DisplayName != "" {
		return nt.DisplayName
	}
	return deriveDisplayName(nodeType)
}

var titleCaser = cases.Title(language.English, cases.NoLower)

// deriveDisplayName turns a type identifier's base name into words.
func deriveDisplayName(nodeType string) string {
	base := baseTypeName(nodeType)
	if base == "" {
		return nodeType
	}

	words := splitCamel(base)
	for i, w := range words {
		words[i] = titleCaser.String(w)
	}
	return strings.Join(words, " ")
}

// baseTypeName returns the segment after the last dot of a type identifier.
func baseTypeName(nodeType string) string {
	if i := strings.LastIndex(nodeType, "."); i >= 0 {
		return nodeType[i+1:]
	}
	return nodeType
}

// splitCamel splits a camelCase identifier into words, keeping acronym runs
// together ("parseHTTPResponse" gives ["parse", "HTTP", "Response"]).
func splitCamel(s string) []string {
	runes := []rune(s)
	if len(runes) == 0 {
		return nil
	}

	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]

		boundary := unicode.IsUpper(cur) && (unicode.IsLower(prev) || unicode.IsDigit(prev))
		if unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			boundary = true
		}

		if boundary {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	words = append(words, string(runes[start:]))
	return words
}
