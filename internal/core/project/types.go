package project

// =============================================================================
// Spec - Main Model Type
// =============================================================================

// Spec is a fully decoded and defaulted project document.
// It is read-only once Parse returns.
type Spec struct {
	Project  Project
	Global   Global
	Anubis   Anubis
	Proxies  []Proxy
	Services []Service
	// Volumes are user-declared named volumes, sorted by name.
	Volumes []Volume
}

// Project carries project-wide settings.
type Project struct {
	Name    string
	Scaling bool
}

// Global carries settings shared by every generated proxy config.
type Global struct {
	AutoHTTPS string
	Admin     string
}

// =============================================================================
// Proxy Declarations
// =============================================================================

// ProxyKind names the proxy software of a declaration.
type ProxyKind string

const (
	KindCaddy   ProxyKind = "caddy"
	KindNginx   ProxyKind = "nginx"
	KindHAProxy ProxyKind = "haproxy"
	KindTraefik ProxyKind = "traefik"
)

// Kinds lists every supported proxy kind in a fixed order.
func Kinds() []ProxyKind {
	return []ProxyKind{KindCaddy, KindNginx, KindHAProxy, KindTraefik}
}

// Proxy is a single proxy declaration.
type Proxy struct {
	Name           string
	Kind           ProxyKind
	ExternalPort   int // 0 = not published on the host
	InternalPort   int
	Layer          int
	Instances      int
	MaxConnections int
	Algorithm      string
	// DefaultUpstream receives requests that match no route. Empty means none.
	DefaultUpstream string
	Routes          []Route

	// Container overrides, merged over the generated container settings.
	Environment map[string]string
	Labels      map[string]string
	Volumes     []string
	Restart     string
	Healthcheck *Healthcheck
}

// Healthcheck replaces the generated healthcheck of a proxy container.
// Test is a compose test, e.g. ["CMD-SHELL", "curl -f localhost"].
type Healthcheck struct {
	Test        []string
	Interval    string
	Timeout     string
	Retries     int
	StartPeriod string
}

// HasExternalPort reports whether the proxy publishes a host port.
func (p Proxy) HasExternalPort() bool {
	return p.ExternalPort > 0
}

// Upstreams returns the default upstream followed by every route upstream.
func (p Proxy) Upstreams() []string {
	out := make([]string, 0, len(p.Routes)+1)
	if p.DefaultUpstream != "" {
		out = append(out, p.DefaultUpstream)
	}
	for _, r := range p.Routes {
		out = append(out, r.Upstream)
	}
	return out
}

// RouteType selects how a route treats the bot-mitigation layer.
type RouteType string

const (
	// RouteDirect sends every request straight to the upstream.
	RouteDirect RouteType = "direct"
	// RouteConditional sends bypass paths straight to the upstream and
	// everything else through the default upstream.
	RouteConditional RouteType = "conditional"
)

// Route is a domain-specific routing rule on a proxy.
type Route struct {
	Type        RouteType
	Domain      string
	Upstream    string
	BypassPaths []string
}

// =============================================================================
// Service Declarations
// =============================================================================

// Service is a backend served behind the proxies.
type Service struct {
	Name        string
	Domain      string
	Upstream    string
	WebSocket   bool
	Compress    bool
	MaxBodySize string
	Headers     map[string]string
}

// =============================================================================
// Volume Declarations
// =============================================================================

// Volume is a named volume declared next to the conventional ones.
type Volume struct {
	Name     string
	Driver   string
	External bool
}

// =============================================================================
// Anubis Declaration
// =============================================================================

// Anubis configures the bot-mitigation component.
type Anubis struct {
	Enabled        bool
	Bind           string
	Target         string
	Difficulty     int
	MetricsBind    string
	Image          string
	ServeRobotsTxt bool
	PolicyFile     string
	Restart        string
}

// Defaults for optional fields.
const (
	DefaultInternalPort   = 80
	DefaultLayer          = 1
	DefaultInstances      = 1
	DefaultMaxConnections = 1024
	DefaultMaxBodySize    = "1m"

	DefaultHealthInterval = "30s"
	DefaultHealthTimeout  = "10s"
	DefaultHealthRetries  = 3

	DefaultAnubisBind        = ":8080"
	DefaultAnubisTarget      = "http://proxy-2:80"
	DefaultAnubisDifficulty  = 5
	DefaultAnubisMetricsBind = ":9090"
	DefaultAnubisImage       = "ghcr.io/techarohq/anubis:latest"
	DefaultAnubisPolicyFile  = "/data/cfg/botPolicy.json"
	DefaultAnubisRestart     = "always"

	MinAnubisDifficulty = 1
	MaxAnubisDifficulty = 10
)
