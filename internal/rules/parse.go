package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// DefaultParsers returns the sed-style parser followed by the literal one.
func DefaultParsers() []Parser {
	return []Parser{SedParser{}, LiteralParser{}}
}

// LiteralParser reads "from => to". Matching ignores case and respects word
// boundaries at word-character edges, so "um" leaves "umbrella" alone.
type LiteralParser struct{}

func (LiteralParser) Match(line string) bool {
	return strings.Contains(line, "=>")
}

func (LiteralParser) Parse(line string) (Rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}

	pattern := regexp.QuoteMeta(from)
	if isWordRune(firstRune(from)) {
		pattern = `\b` + pattern
	}
	if isWordRune(lastRune(from)) {
		pattern += `\b`
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return substitution{re: re, replacement: strings.TrimSpace(to), all: true}, nil
}

// SedParser reads s<d>pattern<d>replacement<d>flags with any
// non-alphanumeric delimiter d. Patterns are case-insensitive unless the
// I flag is given; g replaces every match, m and s set the regexp flags.
type SedParser struct{}

func (SedParser) Match(line string) bool {
	return len(line) > 1 && line[0] == 's' && isDelimiter(line[1])
}

func (SedParser) Parse(line string) (Rule, error) {
	if len(line) < 2 || !isDelimiter(line[1]) {
		return nil, errors.New("regex delimiter must be non-alphanumeric")
	}
	delim := line[1]

	fields, rest, err := splitDelimited(line[2:], delim, 2)
	if err != nil {
		return nil, err
	}
	pattern, replacement := fields[0], fields[1]

	ignoreCase, all := true, false
	var mods strings.Builder
	for _, flag := range strings.TrimSpace(rest) {
		switch flag {
		case 'i':
			ignoreCase = true
		case 'I':
			ignoreCase = false
		case 'g':
			all = true
		case 'm', 's':
			mods.WriteRune(flag)
		case ' ':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}
	prefix := mods.String()
	if ignoreCase {
		prefix = "i" + prefix
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return substitution{re: re, replacement: replacement, all: all}, nil
}

type substitution struct {
	re          *regexp.Regexp
	replacement string
	all         bool
}

func (s substitution) Rewrite(text string) (string, bool) {
	if s.all {
		out := s.re.ReplaceAllString(text, s.replacement)
		return out, out != text
	}
	loc := s.re.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, false
	}
	var expanded []byte
	expanded = s.re.ExpandString(expanded, s.replacement, text, loc)
	out := text[:loc[0]] + string(expanded) + text[loc[1]:]
	return out, out != text
}

// splitDelimited reads n delim-terminated fields from src. A backslash keeps
// the next byte literal and is preserved for the regexp compiler.
func splitDelimited(src string, delim byte, n int) ([]string, string, error) {
	fields := make([]string, 0, n)
	var field strings.Builder
	for i := 0; i < len(src); i++ {
		ch := src[i]
		switch {
		case ch == '\\' && i+1 < len(src):
			field.WriteByte(ch)
			field.WriteByte(src[i+1])
			i++
		case ch == delim:
			fields = append(fields, field.String())
			field.Reset()
			if len(fields) == n {
				return fields, src[i+1:], nil
			}
		default:
			field.WriteByte(ch)
		}
	}
	if len(fields) == 0 {
		return nil, "", errors.New("invalid regex pattern: unterminated expression")
	}
	return nil, "", errors.New("invalid regex replacement: unterminated expression")
}

func isDelimiter(ch byte) bool {
	return ch < unicode.MaxASCII && !isWordRune(rune(ch)) && ch != ' ' && ch != '\t'
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	runes := []rune(s)
	if len(runes) == 0 {
		return 0
	}
	return runes[len(runes)-1]
}
