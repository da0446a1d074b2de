package templates

import (
	"fmt"
	"strings"
	"text/template"
)

// =============================================================================
// Template Functions
// =============================================================================

func funcMap() template.FuncMap {
	return template.FuncMap{
		"join":       strings.Join,
		"ident":      Ident,
		"pathPrefix": PathPrefix,
		"prefixes":   prefixes,
		"hostRule":   HostRule,
		"pathRules":  PathRules,
	}
}

// Ident turns a name into an identifier usable as an nginx, haproxy or
// traefik section name: every byte outside [A-Za-z0-9_] becomes '_'.
//
// Example:
//
//	Ident("api.example.com") // returns "api_example_com"
func Ident(s string) string {
	b := []byte(s)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			b[i] = '_'
		}
	}
	return string(b)
}

// PathPrefix turns a bypass path pattern into a plain prefix by dropping
// a trailing wildcard.
//
// Example:
//
//	PathPrefix("/health/*") // returns "/health/"
func PathPrefix(pattern string) string {
	p := strings.TrimSuffix(pattern, "*")
	if p == "" {
		return "/"
	}
	return p
}

func prefixes(patterns []string) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = PathPrefix(p)
	}
	return out
}

// HostRule generates a Traefik host matcher.
//
// Example:
//
//	HostRule("myapp.example.com") // returns "Host(`myapp.example.com`)"
func HostRule(hostname string) string {
	return fmt.Sprintf("Host(`%s`)", hostname)
}

// PathRules generates a Traefik matcher for bypass paths. Wildcard
// patterns become PathPrefix matchers, the rest exact Path matchers.
//
// Example:
//
//	PathRules([]string{"/health/*", "/robots.txt"})
//	// returns "PathPrefix(`/health/`) || Path(`/robots.txt`)"
func PathRules(patterns []string) string {
	rules := make([]string, len(patterns))
	for i, p := range patterns {
		if strings.HasSuffix(p, "*") {
			rules[i] = fmt.Sprintf("PathPrefix(`%s`)", PathPrefix(p))
		} else {
			rules[i] = fmt.Sprintf("Path(`%s`)", p)
		}
	}
	return strings.Join(rules, " || ")
}
