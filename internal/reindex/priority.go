package reindex

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Priority thresholds of the AU priority map.
const (
	// MinIndexPriority is the lowest priority at which an AU is still
	// indexed.
	MinIndexPriority int64 = 0

	// Priorities below AbortIndexPriority also abort a running task of
	// the AU when the map is applied.
	AbortIndexPriority int64 = -20000
)

type priorityRule struct {
	pattern  *regexp.Regexp
	priority int64
}

// PriorityMap assigns priorities to AU ids by regular expression. The
// first matching rule wins; unmatched AUs get priority zero.
type PriorityMap struct {
	rules []priorityRule
}

// ParsePriorityMap parses rules of the form "<regexp>,<priority>". The
// priority follows the last comma, so patterns may contain commas.
func ParsePriorityMap(rules []string) (*PriorityMap, error) {
	m := &PriorityMap{}
	for _, rule := range rules {
		i := strings.LastIndex(rule, ",")
		if i < 0 {
			return nil, fmt.Errorf("priority rule %q: missing priority", rule)
		}
		pattern, value := strings.TrimSpace(rule[:i]), strings.TrimSpace(rule[i+1:])
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("priority rule %q: %w", rule, err)
		}
		p, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("priority rule %q: %w", rule, err)
		}
		m.rules = append(m.rules, priorityRule{pattern: re, priority: p})
	}
	return m, nil
}

// Priority returns the priority of an AU id.
func (m *PriorityMap) Priority(auID string) int64 {
	if m == nil {
		return 0
	}
	for _, r := range m.rules {
		if r.pattern.MatchString(auID) {
			return r.priority
		}
	}
	return 0
}

// Eligible reports whether the AU may be indexed at all.
func (m *PriorityMap) Eligible(auID string) bool {
	return m.Priority(auID) >= MinIndexPriority
}

// Abort reports whether a running task of the AU must be stopped.
func (m *PriorityMap) Abort(auID string) bool {
	return m.Priority(auID) < AbortIndexPriority
}
