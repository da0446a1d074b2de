package artifact

import (
	"fmt"
	"net"
	"sort"
	"strconv"

	"github.com/artpar/cerberus/internal/core/project"
	"github.com/artpar/cerberus/internal/core/templates"
	"github.com/artpar/cerberus/internal/core/topology"
)

// =============================================================================
// Proxy Config Render Data
// =============================================================================

// DefaultAlgorithm is the balancing algorithm used when a proxy names none.
const DefaultAlgorithm = "roundrobin"

// ProxyConfigData is the data every proxy config template renders with.
type ProxyConfigData struct {
	Project        string
	Node           string
	Kind           project.ProxyKind
	Layer          int
	InstanceID     int
	ListenPort     int
	MaxConnections int
	Algorithm      string
	LogDir         string
	ConfigTarget   string
	Global         project.Global
	AnubisEnabled  bool

	// Sites are the virtual hosts, routes first, then services whose
	// domain no route covers.
	Sites []SiteData
	// Default receives requests for unknown hosts; nil when the proxy has
	// no default upstream.
	Default *UpstreamData
}

// HasMiddlewares reports whether any site needs response middlewares.
func (d ProxyConfigData) HasMiddlewares() bool {
	for _, s := range d.Sites {
		if s.Compress || len(s.Headers) > 0 {
			return true
		}
	}
	return false
}

// SiteData is one virtual host of a proxy.
type SiteData struct {
	// ID is the identifier-safe form of Domain.
	ID       string
	Domain   string
	Service  string // empty for routes with no matching service
	Upstream UpstreamData
	// Bypass receives BypassPaths directly; nil when the site has none.
	Bypass      *UpstreamData
	BypassPaths []string

	WebSocket   bool
	Compress    bool
	MaxBodySize string
	Headers     []HeaderData
}

// UpstreamData is an upstream split into the forms the templates need.
type UpstreamData struct {
	URL    string // scheme://host:port
	Addr   string // host:port
	Scheme string
	TLS    bool
}

// HeaderData is a response header set on a site.
type HeaderData struct {
	Name  string
	Value string
}

// NewUpstreamData parses an upstream. A missing scheme means http and a
// missing port the scheme's default port.
func NewUpstreamData(raw string) (UpstreamData, error) {
	up, err := topology.ClassifyUpstream(raw)
	if err != nil {
		return UpstreamData{}, err
	}

	scheme := up.Scheme
	if scheme == "" {
		scheme = "http"
	}

	port := up.Port
	if port == 0 {
		port = 80
		if scheme == "https" {
			port = 443
		}
	}

	addr := net.JoinHostPort(up.Host, strconv.Itoa(port))
	return UpstreamData{
		URL:    scheme + "://" + addr,
		Addr:   addr,
		Scheme: scheme,
		TLS:    scheme == "https",
	}, nil
}

// BuildProxyConfigData assembles the render data of one proxy node.
//
// A direct route sends its domain to the route upstream. A conditional
// route sends its bypass paths to the route upstream and everything else
// through the default upstream; without a default upstream it behaves
// like a direct route. Services whose domain no route covers go through
// the default upstream when there is one, otherwise straight to their own
// upstream.
func BuildProxyConfigData(topo *topology.Topology, n topology.Node) (ProxyConfigData, error) {
	if n.Proxy == nil {
		return ProxyConfigData{}, fmt.Errorf("node %s is not a proxy", n.Name)
	}
	p := n.Proxy

	data := ProxyConfigData{
		Project:        topo.Project,
		Node:           n.Name,
		Kind:           p.Kind,
		Layer:          p.Layer,
		InstanceID:     p.InstanceID,
		ListenPort:     p.InternalPort,
		MaxConnections: p.MaxConnections,
		Algorithm:      p.Algorithm,
		LogDir:         p.LogDir,
		ConfigTarget:   p.ConfigTarget,
		Global:         topo.Global,
		AnubisEnabled:  topo.HasAnubis(),
	}
	if data.Algorithm == "" {
		data.Algorithm = DefaultAlgorithm
	}

	if p.DefaultUpstream != "" {
		def, err := NewUpstreamData(p.DefaultUpstream)
		if err != nil {
			return ProxyConfigData{}, fmt.Errorf("default upstream: %w", err)
		}
		data.Default = &def
	}

	services := make(map[string]project.Service, len(topo.Services))
	for _, s := range topo.Services {
		if _, ok := services[s.Domain]; !ok {
			services[s.Domain] = s
		}
	}

	covered := make(map[string]bool)
	for i, r := range p.Routes {
		if covered[r.Domain] {
			continue
		}
		covered[r.Domain] = true

		target, err := NewUpstreamData(r.Upstream)
		if err != nil {
			return ProxyConfigData{}, fmt.Errorf("route %d upstream: %w", i, err)
		}

		site := SiteData{
			Domain:   r.Domain,
			Upstream: target,
		}
		if r.Type == project.RouteConditional && data.Default != nil {
			site.Upstream = *data.Default
			if len(r.BypassPaths) > 0 {
				bypass := target
				site.Bypass = &bypass
				site.BypassPaths = append([]string(nil), r.BypassPaths...)
			}
		}
		if svc, ok := services[r.Domain]; ok {
			applyService(&site, svc)
		}
		data.Sites = append(data.Sites, site)
	}

	for _, s := range topo.Services {
		if covered[s.Domain] {
			continue
		}
		covered[s.Domain] = true

		site := SiteData{Domain: s.Domain}
		if data.Default != nil {
			site.Upstream = *data.Default
		} else {
			target, err := NewUpstreamData(s.Upstream)
			if err != nil {
				return ProxyConfigData{}, fmt.Errorf("service %s upstream: %w", s.Name, err)
			}
			site.Upstream = target
		}
		applyService(&site, s)
		data.Sites = append(data.Sites, site)
	}

	for i := range data.Sites {
		data.Sites[i].ID = siteID(data.Sites[i].Domain)
	}

	return data, nil
}

func applyService(site *SiteData, s project.Service) {
	site.Service = s.Name
	site.WebSocket = s.WebSocket
	site.Compress = s.Compress
	site.MaxBodySize = s.MaxBodySize

	names := make([]string, 0, len(s.Headers))
	for k := range s.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		site.Headers = append(site.Headers, HeaderData{Name: k, Value: s.Headers[k]})
	}
}

// siteID makes a domain usable as a section name in every proxy syntax.
func siteID(domain string) string {
	return "site_" + templates.Ident(domain)
}

// =============================================================================
// Proxy Config Rendering
// =============================================================================

// RenderProxyConfig renders the native config file of one proxy node.
// The template id is the kind's config file name.
func RenderProxyConfig(r TemplateRenderer, topo *topology.Topology, n topology.Node) (Artifact, error) {
	if n.Proxy == nil {
		return Artifact{}, NewRenderError(n.Name, "", fmt.Errorf("node %s is not a proxy", n.Name))
	}

	path := topology.ProxyConfigPath(n.Name, n.Proxy.ConfigFile)
	data, err := BuildProxyConfigData(topo, n)
	if err != nil {
		return Artifact{}, NewRenderError(path, n.Proxy.ConfigFile, err)
	}

	out, err := r.Render(n.Proxy.ConfigFile, data)
	if err != nil {
		return Artifact{}, NewRenderError(path, n.Proxy.ConfigFile, err)
	}

	return Artifact{Path: path, Content: []byte(out)}, nil
}
