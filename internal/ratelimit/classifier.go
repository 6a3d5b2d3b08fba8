package ratelimit

import "strings"

// Rule maps a method and route path prefix to a route class. An empty Method
// matches any method.
type Rule struct {
	Method     string
	PathPrefix string
	Class      string
}

// Classifier resolves the route class of a request. The longest matching
// prefix wins; a request matching nothing gets DefaultClass.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a Classifier from rules.
func NewClassifier(rules ...Rule) *Classifier {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Classifier{rules: cp}
}

// Classify returns the route class for (method, path).
func (c *Classifier) Classify(method, path string) string {
	best := -1
	class := DefaultClass
	for _, r := range c.rules {
		if r.Method != "" && !strings.EqualFold(r.Method, method) {
			continue
		}
		if !strings.HasPrefix(path, r.PathPrefix) {
			continue
		}
		if len(r.PathPrefix) > best {
			best = len(r.PathPrefix)
			class = r.Class
		}
	}
	return class
}
