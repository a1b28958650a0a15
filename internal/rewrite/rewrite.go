// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rewrite turns legacy bracketed merge codes into double-brace
// template placeholders.
//
// A line is passed through a fixed, ordered list of rules. Each rule sees the
// output of the previous one, so the specific rules (case reference, diary
// deletion, date) must run before the generic bracket rule that would
// otherwise swallow their tokens. The package holds no mutable state and is
// safe for concurrent use.
package rewrite

import (
	"regexp"
	"strings"
)

// Placeholders emitted by the specific rules.
const (
	CaseReference = "{{caseReference}}"
	CurrentDate   = "{{currentDate}}"
)

var (
	caseReferencePattern = regexp.MustCompile(`\[MT05\](?:.*\[MT11\(.*?\)\])?`)
	messagePattern       = regexp.MustCompile(`\[&Message.*?\]`)
	showPattern          = regexp.MustCompile(`\[&Show.*?\]`)
	datePattern          = regexp.MustCompile(`\[DATE:DS\(".*?"\)\]`)
	bracketPattern       = regexp.MustCompile(`\[(.*?)\]`)
	nonIdentPattern      = regexp.MustCompile(`[^\p{L}\p{N}_]`)
	placeholderPattern   = regexp.MustCompile(`\{\{([\p{L}\p{N}_]+)\}\}`)
)

// deleteMarkers mark administrative annotation lines that are dropped whole.
var deleteMarkers = []string{"[&Diary", "[&HISTORY"}

// Rule is one named step of the rewrite pipeline. apply returns the new text
// and whether the whole line must be deleted.
type Rule struct {
	Name  string
	apply func(string) (string, bool)
}

// rules is the pipeline in precedence order.
var rules = []Rule{
	{Name: "case-reference-prefix", apply: func(s string) (string, bool) {
		return strings.ReplaceAll(s, "BV [MT05]", "BV "+CaseReference), false
	}},
	{Name: "case-reference", apply: func(s string) (string, bool) {
		return caseReferencePattern.ReplaceAllLiteralString(s, CaseReference), false
	}},
	{Name: "diary-history-delete", apply: func(s string) (string, bool) {
		for _, m := range deleteMarkers {
			if strings.Contains(s, m) {
				return "", true
			}
		}
		return s, false
	}},
	{Name: "message-show-strip", apply: func(s string) (string, bool) {
		s = messagePattern.ReplaceAllLiteralString(s, "")
		return showPattern.ReplaceAllLiteralString(s, ""), false
	}},
	{Name: "current-date", apply: func(s string) (string, bool) {
		return datePattern.ReplaceAllLiteralString(s, CurrentDate), false
	}},
	{Name: "generic-placeholder", apply: func(s string) (string, bool) {
		return bracketPattern.ReplaceAllStringFunc(s, canonicalize), false
	}},
}

// canonicalize converts one "[content]" token into "{{content}}" with every
// character that is not a letter, digit or underscore removed.
func canonicalize(token string) string {
	content := token[1 : len(token)-1]
	return "{{" + nonIdentPattern.ReplaceAllLiteralString(content, "") + "}}"
}

// Outcome is the tagged result of rewriting one line.
type Outcome struct {
	// Text is the rewritten line. It is empty when Deleted is true.
	Text string

	// Deleted reports that the line was an annotation line and the location
	// holding it must be blanked.
	Deleted bool

	// Placeholders lists the placeholder names present in Text, in order of
	// appearance, duplicates included.
	Placeholders []string
}

// Step records the effect of a single rule, used for diagnostics.
type Step struct {
	Rule    string
	Before  string
	After   string
	Deleted bool
}

// Changed reports whether the rule modified the line.
func (s Step) Changed() bool {
	return s.Deleted || s.Before != s.After
}

// Rules returns the rule names in the order they are applied.
func Rules() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return names
}

// Rewrite returns the rewritten form of line. An empty result for a
// non-empty line means the line was deleted.
func Rewrite(line string) string {
	return Apply(line).Text
}

// Apply rewrites line and returns the tagged outcome.
func Apply(line string) Outcome {
	for _, r := range rules {
		text, deleted := r.apply(line)
		if deleted {
			return Outcome{Deleted: true}
		}
		line = text
	}
	return Outcome{Text: line, Placeholders: PlaceholderNames(line)}
}

// Trace applies the rules to line one at a time and records every step up to
// and including a deletion.
func Trace(line string) []Step {
	steps := make([]Step, 0, len(rules))
	for _, r := range rules {
		text, deleted := r.apply(line)
		steps = append(steps, Step{Rule: r.Name, Before: line, After: text, Deleted: deleted})
		if deleted {
			break
		}
		line = text
	}
	return steps
}

// PlaceholderNames returns the names of the double-brace placeholders in s.
func PlaceholderNames(s string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m[1]
	}
	return names
}
