package project

import (
	"fmt"
	"strings"
)

// =============================================================================
// Validation Functions
// =============================================================================

// Validate checks the structural preconditions of a Spec and returns the
// first violation as a *ConfigError.
//
// Checked here:
//   - project name is not empty
//   - proxy names are present and unique, ports are in range, layer and
//     instances are at least 1
//   - routes have a hostname domain, an upstream and a known type
//   - proxy container overrides are well formed
//   - services have a unique name that no proxy uses, a hostname domain,
//     an upstream, and headers that are safe to place in a quoted
//     config string
//   - declared volumes have a name
//   - Anubis difficulty is within [1,10] when Anubis is enabled
//
// Proxy kinds are not checked here; an unknown kind is a topology error.
//
// Example:
//
//	if err := Validate(spec); err != nil {
//	    var cfgErr *ConfigError
//	    errors.As(err, &cfgErr) // cfgErr.Field == "proxies.edge.instances"
//	}
func Validate(spec *Spec) error {
	if spec == nil {
		return NewConfigError("", "project document is empty", ErrEmptyInput)
	}

	if strings.TrimSpace(spec.Project.Name) == "" {
		return NewConfigError("project.name", "project name cannot be empty", ErrRequired)
	}

	seen := make(map[string]bool, len(spec.Proxies))
	for i, p := range spec.Proxies {
		if err := validateProxy(i, p); err != nil {
			return err
		}
		if seen[p.Name] {
			return NewConfigError(proxyField(i, p.Name)+".name", fmt.Sprintf("proxy name %q is declared more than once", p.Name), ErrDuplicateName)
		}
		seen[p.Name] = true
	}

	for i, s := range spec.Services {
		if err := validateService(i, s); err != nil {
			return err
		}
		if seen[s.Name] {
			return NewConfigError(serviceField(i, s.Name)+".name", fmt.Sprintf("service name %q is already used by a proxy or service", s.Name), ErrDuplicateName)
		}
		seen[s.Name] = true
	}

	for _, v := range spec.Volumes {
		if strings.TrimSpace(v.Name) == "" {
			return NewConfigError("volumes", "volume name cannot be empty", ErrRequired)
		}
	}

	return validateAnubis(spec.Anubis)
}

func validateProxy(index int, p Proxy) error {
	field := proxyField(index, p.Name)

	if strings.TrimSpace(p.Name) == "" {
		return NewConfigError(field+".name", fmt.Sprintf("proxy %d name cannot be empty", index), ErrRequired)
	}
	if p.InternalPort < 1 || p.InternalPort > 65535 {
		return NewConfigError(field+".internal_port", "internal_port must be between 1 and 65535", ErrInvalidPort)
	}
	if p.ExternalPort < 0 || p.ExternalPort > 65535 {
		return NewConfigError(field+".external_port", "external_port must be between 1 and 65535", ErrInvalidPort)
	}
	if p.Layer < 1 {
		return NewConfigError(field+".layer", "layer must be greater than 0", ErrInvalidCount)
	}
	if p.Instances < 1 {
		return NewConfigError(field+".instances", "instances must be greater than 0", ErrInvalidCount)
	}
	if p.MaxConnections < 1 {
		return NewConfigError(field+".max_connections", "max_connections must be greater than 0", ErrInvalidCount)
	}

	for i, r := range p.Routes {
		routeField := fmt.Sprintf("%s.routes[%d]", field, i)
		switch r.Type {
		case RouteDirect, RouteConditional:
		default:
			return NewConfigError(routeField+".type", fmt.Sprintf("route type %q must be %q or %q", r.Type, RouteDirect, RouteConditional), ErrInvalidRouteType)
		}
		if r.Domain == "" {
			return NewConfigError(routeField+".domain", "route domain cannot be empty", ErrRequired)
		}
		if !IsHostname(r.Domain) {
			return NewConfigError(routeField+".domain", fmt.Sprintf("route domain %q is not a valid hostname", r.Domain), ErrInvalidDomain)
		}
		if r.Upstream == "" {
			return NewConfigError(routeField+".upstream", "route upstream cannot be empty", ErrRequired)
		}
	}

	return validateOverrides(field, p)
}

// validateOverrides checks the compose settings a proxy declaration merges
// into its generated containers.
func validateOverrides(field string, p Proxy) error {
	for k := range p.Environment {
		if k == "" || strings.ContainsAny(k, "= \t\n") {
			return NewConfigError(field+".environment", fmt.Sprintf("environment name %q is invalid", k), ErrInvalidOverride)
		}
	}
	for k := range p.Labels {
		if k == "" || strings.ContainsAny(k, "= \t\n") {
			return NewConfigError(field+".labels", fmt.Sprintf("label name %q is invalid", k), ErrInvalidOverride)
		}
	}
	for i, v := range p.Volumes {
		source, target, ok := strings.Cut(v, ":")
		if !ok || source == "" || !strings.HasPrefix(target, "/") {
			return NewConfigError(fmt.Sprintf("%s.volumes[%d]", field, i), fmt.Sprintf("volume %q must be SOURCE:/TARGET[:MODE]", v), ErrInvalidOverride)
		}
	}
	if p.Restart != "" && !validRestart(p.Restart) {
		return NewConfigError(field+".restart", fmt.Sprintf("restart policy %q is not one of no, always, on-failure, unless-stopped", p.Restart), ErrInvalidOverride)
	}
	if h := p.Healthcheck; h != nil {
		if len(h.Test) == 0 {
			return NewConfigError(field+".healthcheck.test", "healthcheck test cannot be empty", ErrRequired)
		}
		if h.Retries < 0 {
			return NewConfigError(field+".healthcheck.retries", "healthcheck retries cannot be negative", ErrInvalidCount)
		}
	}
	return nil
}

func validRestart(policy string) bool {
	switch policy {
	case "no", "always", "unless-stopped", "on-failure":
		return true
	}
	rest, ok := strings.CutPrefix(policy, "on-failure:")
	return ok && rest != "" && strings.Trim(rest, "0123456789") == ""
}

func validateService(index int, s Service) error {
	field := serviceField(index, s.Name)

	if s.Name == "" {
		return NewConfigError(field+".name", fmt.Sprintf("service %d name cannot be empty", index), ErrRequired)
	}
	if s.Domain == "" {
		return NewConfigError(field+".domain", fmt.Sprintf("service %s domain cannot be empty", s.Name), ErrRequired)
	}
	if !IsHostname(s.Domain) {
		return NewConfigError(field+".domain", fmt.Sprintf("service %s domain %q is not a valid hostname", s.Name, s.Domain), ErrInvalidDomain)
	}
	if s.Upstream == "" {
		return NewConfigError(field+".upstream", fmt.Sprintf("service %s upstream cannot be empty", s.Name), ErrRequired)
	}
	for name, value := range s.Headers {
		if !isToken(name) {
			return NewConfigError(field+".headers", fmt.Sprintf("header name %q is not a valid HTTP token", name), ErrInvalidHeader)
		}
		if !isSafeHeaderValue(value) {
			return NewConfigError(field+".headers."+name, fmt.Sprintf("header %s value %q contains a control character or one of \" \\ { } $ %%", name, value), ErrInvalidHeader)
		}
	}
	return nil
}

func validateAnubis(a Anubis) error {
	if !a.Enabled {
		return nil
	}
	if a.Difficulty < MinAnubisDifficulty || a.Difficulty > MaxAnubisDifficulty {
		return NewConfigError("anubis.difficulty",
			fmt.Sprintf("anubis difficulty must be between %d and %d, got %d", MinAnubisDifficulty, MaxAnubisDifficulty, a.Difficulty),
			ErrInvalidDifficulty)
	}
	if strings.TrimSpace(a.Bind) == "" {
		return NewConfigError("anubis.bind", "anubis bind cannot be empty", ErrRequired)
	}
	if strings.TrimSpace(a.Target) == "" {
		return NewConfigError("anubis.target", "anubis target cannot be empty", ErrRequired)
	}
	return nil
}

// =============================================================================
// Name Checks
// =============================================================================

// IsHostname reports whether domain is a DNS hostname: dot-separated labels
// of letters, digits and inner hyphens, at most 63 bytes each and 253 in
// total.
func IsHostname(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !isAlnum(c) && c != '-' {
				return false
			}
		}
	}
	return true
}

// isToken reports whether name is an HTTP token (RFC 9110 section 5.6.2).
func isToken(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !isAlnum(c) && !strings.ContainsRune("!#$%&'*+-.^_`|~", rune(c)) {
			return false
		}
	}
	return true
}

// isSafeHeaderValue rejects what would end or escape a double-quoted string
// in any of the proxy config languages: control characters, quotes and
// backslashes, braces (Caddy placeholders), $ (nginx variables) and %
// (HAProxy format tags).
func isSafeHeaderValue(value string) bool {
	for _, r := range value {
		if r < 0x20 || r == 0x7f {
			return false
		}
		if strings.ContainsRune(`"\{}$%`, r) {
			return false
		}
	}
	return true
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
