package topology

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/docker/go-connections/nat"

	"github.com/artpar/cerberus/internal/core/project"
)

// =============================================================================
// Upstream Classification
// =============================================================================

// UpstreamClass tells whether an upstream needs a container of its own.
type UpstreamClass string

const (
	// UpstreamExternal is a literal IP address; nothing is synthesized for it.
	UpstreamExternal UpstreamClass = "external"
	// UpstreamInternal is a host name resolved inside the compose network.
	UpstreamInternal UpstreamClass = "internal"
)

// Upstream is a parsed upstream reference.
type Upstream struct {
	Raw    string
	Scheme string
	Host   string
	Port   int // 0 when the upstream carries no port
	Class  UpstreamClass
}

// ClassifyUpstream parses an upstream in URL form (scheme://host:port/path)
// or bare form (host[:port]) and classifies its host.
//
// Errors wrap project.ErrInvalidUpstream.
//
// Example:
//
//	up, _ := ClassifyUpstream("http://192.0.2.1:3000")
//	// up.Class == UpstreamExternal, up.Port == 3000
//
//	up, _ = ClassifyUpstream("app:8080")
//	// up.Class == UpstreamInternal, up.Host == "app"
func ClassifyUpstream(raw string) (Upstream, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Upstream{}, fmt.Errorf("%w: upstream is empty", project.ErrInvalidUpstream)
	}

	target := trimmed
	if !strings.Contains(target, "://") {
		target = "//" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return Upstream{}, fmt.Errorf("%w: %q: %v", project.ErrInvalidUpstream, raw, err)
	}

	host := u.Hostname()
	if host == "" {
		return Upstream{}, fmt.Errorf("%w: %q has no host", project.ErrInvalidUpstream, raw)
	}

	port, err := nat.ParsePort(u.Port())
	if err != nil {
		return Upstream{}, fmt.Errorf("%w: %q has an invalid port: %v", project.ErrInvalidUpstream, raw, err)
	}
	if u.Port() != "" && port == 0 {
		return Upstream{}, fmt.Errorf("%w: %q has port 0", project.ErrInvalidUpstream, raw)
	}

	class := UpstreamInternal
	if net.ParseIP(host) != nil {
		class = UpstreamExternal
	}

	return Upstream{
		Raw:    trimmed,
		Scheme: u.Scheme,
		Host:   host,
		Port:   port,
		Class:  class,
	}, nil
}

// references reports whether name occurs in s as a whole token, i.e. not
// adjacent to a letter, digit, '_' or '-'. "http://anubis:8080" references
// "anubis"; "proxy-10:80" does not reference "proxy-1".
func references(s, name string) bool {
	if name == "" {
		return false
	}
	for offset := 0; offset < len(s); {
		i := strings.Index(s[offset:], name)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(name)
		if (start == 0 || !isNameByte(s[start-1])) && (end == len(s) || !isNameByte(s[end])) {
			return true
		}
		offset = start + 1
	}
	return false
}

func isNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_' || c == '-'
}

// =============================================================================
// Proxy Kind Eligibility
// =============================================================================

// KindTraits describes how a proxy kind is packaged and configured.
type KindTraits struct {
	BaseImage    string
	ConfigFile   string
	ConfigTarget string
	LogDir       string
	// RequiresAnubis marks the DDoS-aware kind: it only materializes when
	// Anubis is enabled.
	RequiresAnubis bool
}

var kindTraits = map[project.ProxyKind]KindTraits{
	project.KindCaddy: {
		BaseImage:    "caddy:2-alpine",
		ConfigFile:   "Caddyfile",
		ConfigTarget: "/etc/caddy/Caddyfile",
		LogDir:       "/var/log/caddy",
	},
	project.KindNginx: {
		BaseImage:      "nginx:alpine",
		ConfigFile:     "nginx.conf",
		ConfigTarget:   "/etc/nginx/nginx.conf",
		LogDir:         "/var/log/nginx",
		RequiresAnubis: true,
	},
	project.KindHAProxy: {
		BaseImage:    "haproxy:alpine",
		ConfigFile:   "haproxy.cfg",
		ConfigTarget: "/usr/local/etc/haproxy/haproxy.cfg",
		LogDir:       "/var/log/haproxy",
	},
	project.KindTraefik: {
		BaseImage:    "traefik:v3.0",
		ConfigFile:   "traefik.yml",
		ConfigTarget: "/etc/traefik/traefik.yml",
		LogDir:       "/var/log/traefik",
	},
}

// Traits returns the packaging traits of a proxy kind.
func Traits(kind project.ProxyKind) (KindTraits, error) {
	traits, ok := kindTraits[kind]
	if !ok {
		return KindTraits{}, NewTopologyError(ErrorUnknownKind, fmt.Sprintf("unsupported proxy type %q", kind))
	}
	return traits, nil
}

// KindEligibility is the materialization decision for one proxy kind.
type KindEligibility struct {
	Materialize bool
	Reason      string
}

// Eligibility decides whether proxies of a kind become nodes.
// The DDoS-aware kind (nginx) requires Anubis; every other kind always
// materializes. An unknown kind is a TopologyError.
func Eligibility(kind project.ProxyKind, anubisEnabled bool) (KindEligibility, error) {
	traits, err := Traits(kind)
	if err != nil {
		return KindEligibility{}, err
	}

	if traits.RequiresAnubis && !anubisEnabled {
		return KindEligibility{
			Materialize: false,
			Reason:      fmt.Sprintf("%s proxies are only deployed behind anubis and anubis is disabled", kind),
		}, nil
	}

	return KindEligibility{Materialize: true}, nil
}
