// Package rules rewrites final transcripts with deterministic substitutions
// before they reach the tutor UI.
//
// A rules source holds one rule per line. Blank lines and lines starting
// with # are skipped.
//
//	gonna => going to
//	s/\bum+\b//g
package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const defaultIterationLimit = 30

// Rule rewrites text and reports whether anything changed.
type Rule interface {
	Rewrite(text string) (string, bool)
}

// Parser turns a single source line into a Rule.
type Parser interface {
	Match(line string) bool
	Parse(line string) (Rule, error)
}

// Options selects where rules come from. Rules from Path run before Inline.
type Options struct {
	Path           string
	Inline         []string
	IterationLimit int
	// Parsers are tried in order; nil selects the built-in sed and literal parsers.
	Parsers []Parser
}

// Engine applies rules until the text stops changing.
type Engine struct {
	rules []Rule
	limit int
}

// New loads rules from opts. A missing file yields an engine with only the
// inline rules.
func New(opts Options) (*Engine, error) {
	limit := opts.IterationLimit
	if limit <= 0 {
		limit = defaultIterationLimit
	}
	parsers := opts.Parsers
	if len(parsers) == 0 {
		parsers = DefaultParsers()
	}

	var rules []Rule
	if path := strings.TrimSpace(opts.Path); path != "" {
		contents, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
		default:
			parsed, err := parseSource(strings.Split(string(contents), "\n"), parsers)
			if err != nil {
				return nil, fmt.Errorf("rules file %q: %w", path, err)
			}
			rules = append(rules, parsed...)
		}
	}

	inline, err := parseSource(opts.Inline, parsers)
	if err != nil {
		return nil, fmt.Errorf("inline rules: %w", err)
	}
	rules = append(rules, inline...)

	return &Engine{rules: rules, limit: limit}, nil
}

// NewFromLines builds an engine from in-memory rule lines.
func NewFromLines(lines []string, iterationLimit int) (*Engine, error) {
	return New(Options{Inline: lines, IterationLimit: iterationLimit})
}

// Len returns the number of compiled rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Apply rewrites text. Whitespace left behind by deletions is collapsed.
func (e *Engine) Apply(text string) (string, error) {
	if len(e.rules) == 0 {
		return text, nil
	}

	out := text
	for pass := 0; pass < e.limit; pass++ {
		dirty := false
		for _, rule := range e.rules {
			if next, changed := rule.Rewrite(out); changed {
				out = next
				dirty = true
			}
		}
		if !dirty {
			break
		}
	}
	return strings.Join(strings.Fields(out), " "), nil
}

func parseSource(lines []string, parsers []Parser) ([]Rule, error) {
	rules := make([]Rule, 0, len(lines))
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := parseLine(line, parsers)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseLine(line string, parsers []Parser) (Rule, error) {
	for _, parser := range parsers {
		if parser.Match(line) {
			return parser.Parse(line)
		}
	}
	return nil, errors.New("unsupported rule format")
}
