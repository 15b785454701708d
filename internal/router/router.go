// Package router decides which branch of the conversation graph a user message takes.
package router

import (
	"strings"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// DefaultKeywords send a message to the arithmetic tool when any of them occurs in it.
var DefaultKeywords = []string{"add", "plus", "sum", "multiply", "times", "minus", "divided by"}

// Router is a keyword routing policy. The zero value is not usable; call New.
type Router struct {
	keywords []string
}

// New creates a Router for the given keywords, or DefaultKeywords when none are given.
// Matching is case-insensitive; blank keywords are dropped.
func New(keywords ...string) *Router {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	r := &Router{keywords: make([]string, 0, len(keywords))}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			r.keywords = append(r.keywords, k)
		}
	}
	return r
}

// Decide returns RouteTool when the message contains any keyword as a substring,
// RouteRespond otherwise. It is pure and total.
func (r *Router) Decide(message string) domain.Route {
	lower := strings.ToLower(message)
	for _, k := range r.keywords {
		if strings.Contains(lower, k) {
			return domain.RouteTool
		}
	}
	return domain.RouteRespond
}

// Keywords returns a copy of the normalized keyword set.
func (r *Router) Keywords() []string {
	out := make([]string, len(r.keywords))
	copy(out, r.keywords)
	return out
}
