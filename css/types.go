package css

import (
	"strings"

	"pxvp/preset"
)

// Declaration is a single "property: value" pair of a declaration block.
type Declaration struct {
	Property  string // Property name as written (e.g., "padding-left", "--gutter")
	Value     string // Value with whitespace collapsed, without "!important"
	Important bool   // true if declaration was marked "!important"
}

// IsCustom returns true for custom properties (--name).
func (d Declaration) IsCustom() bool {
	return strings.HasPrefix(d.Property, "--")
}

// Rule represents a single style rule (selector list + declarations).
// Nested rules are kept after declarations of the rule.
type Rule struct {
	Selector     string           // Selector list as written (e.g., "h2, h3 > a")
	Declarations []Declaration    // Declarations in source order
	Items        []StylesheetItem // Nested rules (e.g., "&:hover")
}

// GetProperty returns value of the last declaration of a property.
func (r Rule) GetProperty(name string) (Declaration, bool) {
	for i := len(r.Declarations) - 1; i >= 0; i-- {
		if r.Declarations[i].Property == name {
			return r.Declarations[i], true
		}
	}
	return Declaration{}, false
}

// AtRule represents an @-rule. Block-less rules (@import, @charset) have only
// Name and Prelude. Block rules keep either nested items (@media, @supports,
// @keyframes), declarations (@font-face, @page) or, for rules parser does not
// understand, raw block text.
type AtRule struct {
	Name         string           // Rule name with "@" (e.g., "@media")
	Prelude      string           // Everything between name and block or ";"
	Block        bool             // true if rule has {} block
	Items        []StylesheetItem // Nested rules
	Declarations []Declaration    // Declarations of declaration list blocks
	Raw          string           // Block content of unknown @-rules
}

// StylesheetItem is a single item in a stylesheet.
// Exactly one of Rule or AtRule is non-nil.
type StylesheetItem struct {
	Rule   *Rule
	AtRule *AtRule
}

// Stylesheet represents a parsed stylesheet.
type Stylesheet struct {
	Items    []StylesheetItem // All top-level items in source order
	Warnings []string         // Problems found during parsing
}

// RulesBySelector returns all rules (including nested ones) with given
// selector text.
func (s *Stylesheet) RulesBySelector(selector string) []Rule {
	var matches []Rule
	walkItems(s.Items, func(item *StylesheetItem) {
		if item.Rule != nil && item.Rule.Selector == selector {
			matches = append(matches, *item.Rule)
		}
	})
	return matches
}

// Apply hands every declaration block of the stylesheet to the hook in
// source order and stores rewritten string values back. It returns number of
// declarations which values were changed.
func (s *Stylesheet) Apply(hook preset.Postprocessor) int {
	var changed int
	walkItems(s.Items, func(item *StylesheetItem) {
		switch {
		case item.Rule != nil:
			changed += applyDeclarations(item.Rule.Declarations, hook)
		case item.AtRule != nil:
			changed += applyDeclarations(item.AtRule.Declarations, hook)
		}
	})
	return changed
}

func applyDeclarations(decls []Declaration, hook preset.Postprocessor) int {
	if len(decls) == 0 {
		return 0
	}

	util := &preset.Util{Entries: make([]preset.Entry, len(decls))}
	for i, d := range decls {
		key := d.Property
		if !d.IsCustom() {
			key = strings.ToLower(key)
		}
		util.Entries[i] = preset.Entry{Key: key, Value: d.Value}
	}

	hook.Postprocess(util)

	var changed int
	for i := range decls {
		if i >= len(util.Entries) {
			break
		}
		// hooks may only replace values, anything but text is ignored
		if v, ok := util.Entries[i].Value.(string); ok && v != decls[i].Value {
			decls[i].Value = v
			changed++
		}
	}
	return changed
}

// walkItems visits items depth first in source order.
func walkItems(items []StylesheetItem, fn func(*StylesheetItem)) {
	for i := range items {
		fn(&items[i])
		switch {
		case items[i].Rule != nil:
			walkItems(items[i].Rule.Items, fn)
		case items[i].AtRule != nil:
			walkItems(items[i].AtRule.Items, fn)
		}
	}
}
