// Package logmatch provides composable matchers over container log lines,
// used to decide when a container's expected startup output has appeared.
package logmatch

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrExhausted is returned when a stateful combinator matcher is invoked
// again after it has already reported a full match. Combinators have no
// reset semantics; construct a new instance instead.
var ErrExhausted = errors.New("matcher exhausted, no more matchers to use")

// Matcher is a predicate over log lines. Match reports whether the full
// expectation has been met after seeing line. Combinator matchers are
// stateful and single-use: they keep internal progress across calls and
// return ErrExhausted once invoked past a full match.
type Matcher interface {
	Match(line string) (bool, error)

	// String describes the matcher, including partial-match state for
	// stateful matchers. It is used in failure diagnostics.
	String() string
}

type equalsMatcher struct {
	expected string
}

// Equals returns a matcher that matches a line exactly. It is stateless and
// freely reusable.
func Equals(expected string) Matcher {
	return &equalsMatcher{expected: expected}
}

func (m *equalsMatcher) Match(line string) (bool, error) {
	return line == m.expected, nil
}

func (m *equalsMatcher) String() string {
	return fmt.Sprintf("EqualsMatcher(%q)", m.expected)
}

type regexMatcher struct {
	re *regexp.Regexp
}

// Regex returns a matcher that matches if the pattern is found anywhere in a
// line. The pattern must be a valid regular expression; like
// regexp.MustCompile, Regex panics if it is not. It is stateless and freely
// reusable.
func Regex(pattern string) Matcher {
	return &regexMatcher{re: regexp.MustCompile(pattern)}
}

func (m *regexMatcher) Match(line string) (bool, error) {
	return m.re.MatchString(line), nil
}

func (m *regexMatcher) String() string {
	return fmt.Sprintf("RegexMatcher(%q)", m.re.String())
}

// OrderedMatcher matches a sequence of child matchers in strict order: the
// cursor advances to the next child only after the current one matches, and
// the full match is reported once the last child matches. Lines that do not
// match the current child are ignored.
//
// OrderedMatcher is stateful and single-use.
type OrderedMatcher struct {
	matchers []Matcher
	position int
}

// Ordered constructs an OrderedMatcher from pre-built child matchers.
func Ordered(matchers ...Matcher) *OrderedMatcher {
	return &OrderedMatcher{matchers: matchers}
}

// OrderedByEquality constructs an OrderedMatcher that matches each expected
// line exactly, in order.
func OrderedByEquality(lines ...string) *OrderedMatcher {
	return Ordered(eachEquals(lines)...)
}

// OrderedByRegex constructs an OrderedMatcher that matches each pattern, in
// order.
func OrderedByRegex(patterns ...string) *OrderedMatcher {
	return Ordered(eachRegex(patterns)...)
}

func (m *OrderedMatcher) Match(line string) (bool, error) {
	if m.position == len(m.matchers) {
		return false, ErrExhausted
	}

	ok, err := m.matchers[m.position].Match(line)
	if err != nil {
		return false, err
	}
	if ok {
		m.position++
	}

	return m.position == len(m.matchers), nil
}

func (m *OrderedMatcher) String() string {
	return fmt.Sprintf("OrderedMatcher(%s)",
		progressString(m.matchers[:m.position], m.matchers[m.position:]))
}

// UnorderedMatcher matches a set of child matchers in any order: each line is
// tried against the not-yet-matched children in construction order and the
// first child that matches is retired. The full match is reported once no
// children remain. Lines matching no child leave the state unchanged.
//
// UnorderedMatcher is stateful and single-use.
type UnorderedMatcher struct {
	matchers  []Matcher
	matched   []bool
	remaining int
}

// Unordered constructs an UnorderedMatcher from pre-built child matchers.
func Unordered(matchers ...Matcher) *UnorderedMatcher {
	return &UnorderedMatcher{
		matchers:  matchers,
		matched:   make([]bool, len(matchers)),
		remaining: len(matchers),
	}
}

// UnorderedByEquality constructs an UnorderedMatcher that matches each
// expected line exactly, in any order.
func UnorderedByEquality(lines ...string) *UnorderedMatcher {
	return Unordered(eachEquals(lines)...)
}

// UnorderedByRegex constructs an UnorderedMatcher that matches each pattern,
// in any order.
func UnorderedByRegex(patterns ...string) *UnorderedMatcher {
	return Unordered(eachRegex(patterns)...)
}

func (m *UnorderedMatcher) Match(line string) (bool, error) {
	if m.remaining == 0 {
		return false, ErrExhausted
	}

	for i, child := range m.matchers {
		if m.matched[i] {
			continue
		}
		ok, err := child.Match(line)
		if err != nil {
			return false, err
		}
		if ok {
			m.matched[i] = true
			m.remaining--
			break
		}
	}

	return m.remaining == 0, nil
}

func (m *UnorderedMatcher) String() string {
	var matched, unmatched []Matcher
	for i, child := range m.matchers {
		if m.matched[i] {
			matched = append(matched, child)
		} else {
			unmatched = append(unmatched, child)
		}
	}
	return fmt.Sprintf("UnorderedMatcher(%s)", progressString(matched, unmatched))
}

func eachEquals(lines []string) []Matcher {
	matchers := make([]Matcher, len(lines))
	for i, line := range lines {
		matchers[i] = Equals(line)
	}
	return matchers
}

func eachRegex(patterns []string) []Matcher {
	matchers := make([]Matcher, len(patterns))
	for i, pattern := range patterns {
		matchers[i] = Regex(pattern)
	}
	return matchers
}

func progressString(matched, unmatched []Matcher) string {
	return fmt.Sprintf("matched=[%s], unmatched=[%s]",
		joinMatchers(matched), joinMatchers(unmatched))
}

func joinMatchers(matchers []Matcher) string {
	parts := make([]string, len(matchers))
	for i, m := range matchers {
		parts[i] = m.String()
	}
	return strings.Join(parts, ", ")
}
