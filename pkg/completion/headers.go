package completion

import (
	"context"
	"slices"
	"strings"
)

// ValueCompleter proposes values for a header, given the typed prefix.
type ValueCompleter func(ctx context.Context, prefix string) []string

// Headers maps operation header names to their value completers. A nil
// completer marks a header with free-form values. The map is built once
// and only read afterwards.
type Headers map[string]ValueCompleter

// Booleans completes the boolean literals.
func Booleans(_ context.Context, prefix string) []string {
	return filter([]string{"false", "true"}, prefix)
}

// DefaultHeaders returns the operation headers understood by the controller.
func DefaultHeaders() Headers {
	return Headers{
		"allow-resource-service-restart": Booleans,
		"rollback-on-runtime-failure":    Booleans,
		"blocking-timeout":               nil,
	}
}

// names returns the header names, including the rollout keyword, sorted.
func (h Headers) names(rolloutKeyword string) []string {
	out := make([]string, 0, len(h)+1)
	for name := range h {
		out = append(out, name)
	}
	out = append(out, rolloutKeyword)
	slices.Sort(out)
	return out
}

// filter returns the sorted candidates that start with prefix.
func filter(candidates []string, prefix string) []string {
	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// without returns candidates minus the names in exclude.
func without(candidates []string, exclude ...string) []string {
	var out []string
	for _, c := range candidates {
		if !slices.Contains(exclude, c) {
			out = append(out, c)
		}
	}
	return out
}
