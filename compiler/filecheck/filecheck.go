// Package filecheck is a line-oriented pattern matcher over textual
// output. It is the test oracle for pass output: directives assert
// an ordered set of expected lines.
//
//	check: pattern   matched by some line at or after the last match
//	sameln: pattern  matched later in the line of the last match
//	nextln: pattern  matched by the line right after the last match
//	not: pattern     matched by no line between surrounding matches
//
// Patterns are literal text. $name matches a non-space token on
// first use and its captured text on every later use. $(name=regex)
// captures an explicit regex.
package filecheck

import (
	"fmt"
	"regexp"
	"strings"

	"tlog.app/go/errors"
)

type (
	Checker struct {
		directives []directive
	}

	directive struct {
		kind    string
		pattern string
		line    int
	}

	// MatchError reports the first directive the output does not
	// satisfy, with line granularity on both sides.
	MatchError struct {
		Kind    string
		Pattern string
		Line    int // directive source line

		OutLine int // first output line of the failed region
		Region  []string
	}

	matcher struct {
		lines []string
		vars  map[string]string

		last    int // line of the last positive match, -1 before it
		lastEnd int // end column of the last positive match
		pos     int // first line the next check may match

		nots []directive
	}
)

var kinds = []string{"check", "sameln", "nextln", "not"}

// New parses directives, one per line. Lines without a directive
// are ignored.
func New(checks []byte) (*Checker, error) {
	c := &Checker{}

	for i, line := range strings.Split(string(checks), "\n") {
		d, ok, err := parseDirective(line, i+1)
		if err != nil {
			return nil, errors.Wrap(err, "line %v", i+1)
		}
		if !ok {
			continue
		}

		c.directives = append(c.directives, d)
	}

	if len(c.directives) == 0 {
		return nil, errors.New("no directives")
	}

	return c, nil
}

// FromComments extracts directives from `;` comments of a source.
func FromComments(src []byte) (*Checker, error) {
	var sb strings.Builder

	for _, line := range strings.Split(string(src), "\n") {
		if j := strings.IndexByte(line, ';'); j >= 0 {
			sb.WriteString(line[j+1:])
		}

		sb.WriteByte('\n')
	}

	return New([]byte(sb.String()))
}

func parseDirective(line string, n int) (d directive, ok bool, err error) {
	line = strings.TrimSpace(line)

	for _, k := range kinds {
		if !strings.HasPrefix(line, k+":") {
			continue
		}

		p := strings.TrimSpace(line[len(k)+1:])
		if p == "" {
			return d, false, errors.New("%v: empty pattern", k)
		}

		return directive{kind: k, pattern: p, line: n}, true, nil
	}

	return d, false, nil
}

func (c *Checker) Check(out []byte) error {
	m := &matcher{
		lines: strings.Split(string(out), "\n"),
		vars:  map[string]string{},
		last:  -1,
	}

	for _, d := range c.directives {
		err := m.match(d)
		if err != nil {
			return err
		}
	}

	return m.flushNots(len(m.lines))
}

func (m *matcher) match(d directive) (err error) {
	switch d.kind {
	case "check":
		for i := m.pos; i < len(m.lines); i++ {
			end, ok := m.try(d.pattern, m.lines[i], 0)
			if !ok {
				continue
			}

			err = m.flushNots(i)
			if err != nil {
				return err
			}

			m.advance(i, end)

			return nil
		}

		return m.fail(d, m.pos)

	case "sameln":
		if m.last < 0 {
			return errors.New("line %v: sameln without a previous match", d.line)
		}

		end, ok := m.try(d.pattern, m.lines[m.last], m.lastEnd)
		if !ok {
			return m.fail(d, m.last)
		}

		m.lastEnd = end

		return nil

	case "nextln":
		i := m.last + 1

		if m.last < 0 || i >= len(m.lines) {
			return m.fail(d, i)
		}

		end, ok := m.try(d.pattern, m.lines[i], 0)
		if !ok {
			return m.fail(d, i)
		}

		m.advance(i, end)

		return nil

	case "not":
		m.nots = append(m.nots, d)

		return nil

	default:
		panic(d.kind)
	}
}

func (m *matcher) advance(line, end int) {
	m.last = line
	m.lastEnd = end
	m.pos = line + 1
}

// flushNots verifies pending not directives against the lines
// between the previous positive match and line end (exclusive).
func (m *matcher) flushNots(end int) error {
	nots := m.nots
	m.nots = nil

	for _, d := range nots {
		for i := m.pos; i < end && i < len(m.lines); i++ {
			if _, ok := m.try(d.pattern, m.lines[i], 0); ok {
				return &MatchError{
					Kind:    d.kind,
					Pattern: d.pattern,
					Line:    d.line,
					OutLine: i + 1,
					Region:  []string{m.lines[i]},
				}
			}
		}
	}

	return nil
}

func (m *matcher) fail(d directive, from int) error {
	to := len(m.lines)

	return &MatchError{
		Kind:    d.kind,
		Pattern: d.pattern,
		Line:    d.line,
		OutLine: from + 1,
		Region:  m.lines[min(from, to):to],
	}
}

// try matches the pattern against line starting at column st. On
// match it binds captured vars and returns the match end column.
func (m *matcher) try(pat, line string, st int) (end int, ok bool) {
	re, groups, err := compile(pat, m.vars)
	if err != nil {
		return 0, false
	}

	if st > len(line) {
		return 0, false
	}

	loc := re.FindStringSubmatchIndex(line[st:])
	if loc == nil {
		return 0, false
	}

	// repeated and pre-bound vars must capture identical text
	bound := map[string]string{}

	for gi, name := range groups {
		l, r := loc[2*(gi+1)], loc[2*(gi+1)+1]
		if l < 0 {
			return 0, false
		}

		v := line[st+l : st+r]

		if old, ok := bound[name]; ok && old != v {
			return 0, false
		}

		bound[name] = v
	}

	for name, v := range bound {
		m.vars[name] = v
	}

	return st + loc[1], true
}

// compile turns a pattern into a regexp. groups[i] is the var bound
// by capture group i+1.
func compile(pat string, vars map[string]string) (*regexp.Regexp, []string, error) {
	var sb strings.Builder
	var groups []string

	for i := 0; i < len(pat); {
		if pat[i] != '$' {
			j := i
			for j < len(pat) && pat[j] != '$' {
				j++
			}

			sb.WriteString(regexp.QuoteMeta(pat[i:j]))
			i = j

			continue
		}

		i++

		if i < len(pat) && pat[i] == '(' {
			j := strings.IndexByte(pat[i:], ')')
			if j < 0 {
				return nil, nil, errors.New("unterminated $( in pattern")
			}

			def := pat[i+1 : i+j]
			i += j + 1

			name, re, ok := strings.Cut(def, "=")
			if !ok {
				return nil, nil, errors.New("malformed $(%v)", def)
			}

			groups = append(groups, name)
			fmt.Fprintf(&sb, "(%s)", re)

			continue
		}

		j := i
		for j < len(pat) && identChar(pat[j]) {
			j++
		}

		if j == i {
			sb.WriteByte('$')
			continue
		}

		name := pat[i:j]
		i = j

		if v, ok := vars[name]; ok {
			sb.WriteString(regexp.QuoteMeta(v))
			continue
		}

		groups = append(groups, name)
		sb.WriteString(`(\S+)`)
	}

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, nil, errors.Wrap(err, "pattern %v", pat)
	}

	return re, groups, nil
}

func identChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func (e *MatchError) Error() string {
	var sb strings.Builder

	verb := "not matched"
	if e.Kind == "not" {
		verb = "matched"
	}

	fmt.Fprintf(&sb, "%v: `%v` %v at output line %v", e.Kind, e.Pattern, verb, e.OutLine)

	for i, l := range e.Region {
		if i == 8 {
			fmt.Fprintf(&sb, "\n\t...")
			break
		}

		fmt.Fprintf(&sb, "\n\t%4d | %s", e.OutLine+i, l)
	}

	return sb.String()
}
