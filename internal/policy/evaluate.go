package policy

import (
	"regexp"
	"sort"
	"strings"
)

var variableRe = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Evaluate computes the access decision for the requested action/resource
// pair against the given policy set.
//
// A policy is applicable when at least one of its action patterns matches
// the action AND at least one of its (substituted) resource patterns
// matches the resource. Among applicable policies any Deny wins regardless
// of order; with no applicable Deny, any Allow grants; with no applicable
// policy at all the result is Deny.
//
// Matched carries the ids of every applicable policy on the winning side,
// sorted, for audit traceability.
func Evaluate(policies []Policy, action, resource string, context map[string]string) Decision {
	var denied, allowed []string
	for _, p := range policies {
		if !applicable(p, action, resource, context) {
			continue
		}
		if p.Effect == EffectDeny {
			denied = append(denied, p.ID)
		} else {
			allowed = append(allowed, p.ID)
		}
	}
	if len(denied) > 0 {
		sort.Strings(denied)
		return Decision{Allowed: false, Matched: denied}
	}
	if len(allowed) > 0 {
		sort.Strings(allowed)
		return Decision{Allowed: true, Matched: allowed}
	}
	return Decision{Allowed: false, Matched: nil}
}

func applicable(p Policy, action, resource string, context map[string]string) bool {
	if !matchesAny(p.Actions, action) {
		return false
	}
	for _, pattern := range p.Resources {
		// Substitution applies to resource patterns only.
		if MatchPattern(Substitute(pattern, context), resource) {
			return true
		}
	}
	return false
}

func matchesAny(patterns []string, value string) bool {
	for _, pattern := range patterns {
		if MatchPattern(pattern, value) {
			return true
		}
	}
	return false
}

// Substitute replaces every ${key} token with context[key]. An unresolved
// key substitutes to the empty string rather than erroring.
func Substitute(pattern string, context map[string]string) string {
	if !strings.Contains(pattern, "${") {
		return pattern
	}
	return variableRe.ReplaceAllStringFunc(pattern, func(tok string) string {
		key := tok[2 : len(tok)-1]
		return context[key]
	})
}

// MatchPattern compares pattern and value colon-segment-by-segment. A
// bare "*" segment matches exactly one value segment; a "*" embedded in a
// segment matches any run of characters within that segment only. Segment
// counts must agree, so a trailing "*" does not absorb the rest of the
// path.
func MatchPattern(pattern, value string) bool {
	ps := strings.Split(pattern, ":")
	vs := strings.Split(value, ":")
	if len(ps) != len(vs) {
		return false
	}
	for i := range ps {
		if !matchSegment(ps[i], vs[i]) {
			return false
		}
	}
	return true
}

func matchSegment(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == value
	}
	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]
	last := len(parts) - 1
	for i := 1; i < last; i++ {
		idx := strings.Index(value, parts[i])
		if idx < 0 {
			return false
		}
		value = value[idx+len(parts[i]):]
	}
	return strings.HasSuffix(value, parts[last])
}
