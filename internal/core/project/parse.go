package project

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// =============================================================================
// Document Types
// =============================================================================

// The document types mirror the TOML layout. Optional fields are pointers so
// an explicit zero can be told apart from an omitted value.

type document struct {
	Project  projectDoc   `toml:"project"`
	Global   globalDoc    `toml:"global"`
	Anubis   anubisDoc    `toml:"anubis"`
	Proxies  []proxyDoc   `toml:"proxies"`
	Services []serviceDoc `toml:"services"`

	Volumes map[string]volumeDoc `toml:"volumes"`
}

type projectDoc struct {
	Name    string `toml:"name"`
	Scaling bool   `toml:"scaling"`
}

type globalDoc struct {
	AutoHTTPS *string `toml:"auto_https"`
	Admin     *string `toml:"admin"`
}

type proxyDoc struct {
	Name            string     `toml:"name"`
	Type            string     `toml:"type"`
	ExternalPort    *int       `toml:"external_port"`
	InternalPort    *int       `toml:"internal_port"`
	Layer           *int       `toml:"layer"`
	Instances       *int       `toml:"instances"`
	MaxConnections  *int       `toml:"max_connections"`
	Algorithm       string     `toml:"algorithm"`
	DefaultUpstream string     `toml:"default_upstream"`
	Routes          []routeDoc `toml:"routes"`

	Environment map[string]string `toml:"environment"`
	Labels      map[string]string `toml:"labels"`
	Volumes     []string          `toml:"volumes"`
	Restart     string            `toml:"restart"`
	Healthcheck *healthcheckDoc   `toml:"healthcheck"`
}

type healthcheckDoc struct {
	Test        []string `toml:"test"`
	Interval    string   `toml:"interval"`
	Timeout     string   `toml:"timeout"`
	Retries     *int     `toml:"retries"`
	StartPeriod string   `toml:"start_period"`
}

type volumeDoc struct {
	Driver   string `toml:"driver"`
	External bool   `toml:"external"`
}

type routeDoc struct {
	Type        string   `toml:"type"`
	Domain      string   `toml:"domain"`
	Upstream    string   `toml:"upstream"`
	BypassPaths []string `toml:"bypass_paths"`
}

type serviceDoc struct {
	Name        string            `toml:"name"`
	Domain      string            `toml:"domain"`
	Upstream    string            `toml:"upstream"`
	WebSocket   bool              `toml:"websocket"`
	Compress    *bool             `toml:"compress"`
	MaxBodySize string            `toml:"max_body_size"`
	Headers     map[string]string `toml:"headers"`
}

type anubisDoc struct {
	Enabled        bool   `toml:"enabled"`
	Bind           string `toml:"bind"`
	Target         string `toml:"target"`
	Difficulty     *int   `toml:"difficulty"`
	MetricsBind    string `toml:"metrics_bind"`
	Image          string `toml:"image"`
	ServeRobotsTxt *bool  `toml:"serve_robots_txt"`
	PolicyFile     string `toml:"policy_fname"`
	Restart        string `toml:"restart"`
}

// =============================================================================
// Parser Functions
// =============================================================================

// Parse decodes a TOML project document, applies defaults and validates it.
// This is a pure function - no I/O, no side effects.
func Parse(data []byte) (*Spec, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, NewConfigError("", "project document is empty", ErrEmptyInput)
	}

	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, NewConfigError("", fmt.Sprintf("invalid TOML at line %d column %d: %s", row, col, decodeErr.Error()), ErrInvalidTOML)
		}
		return nil, NewConfigError("", "invalid TOML: "+err.Error(), ErrInvalidTOML)
	}

	spec, err := convertDocument(doc)
	if err != nil {
		return nil, err
	}

	if err := Validate(spec); err != nil {
		return nil, err
	}

	return spec, nil
}

// convertDocument turns the decoded document into a Spec with defaults applied.
// An explicit external_port of 0 is rejected here since the Spec uses 0 for
// "not published".
func convertDocument(doc document) (*Spec, error) {
	spec := &Spec{
		Project: Project{
			Name:    strings.TrimSpace(doc.Project.Name),
			Scaling: doc.Project.Scaling,
		},
		Global: Global{
			AutoHTTPS: stringOr(doc.Global.AutoHTTPS, "off"),
			Admin:     stringOr(doc.Global.Admin, "off"),
		},
		Anubis:   convertAnubis(doc.Anubis),
		Proxies:  make([]Proxy, 0, len(doc.Proxies)),
		Services: make([]Service, 0, len(doc.Services)),
	}

	for i, p := range doc.Proxies {
		proxy, err := convertProxy(i, p)
		if err != nil {
			return nil, err
		}
		spec.Proxies = append(spec.Proxies, proxy)
	}

	for _, s := range doc.Services {
		spec.Services = append(spec.Services, convertService(s))
	}

	for name, v := range doc.Volumes {
		spec.Volumes = append(spec.Volumes, Volume{
			Name:     strings.TrimSpace(name),
			Driver:   strings.TrimSpace(v.Driver),
			External: v.External,
		})
	}
	slices.SortFunc(spec.Volumes, func(a, b Volume) int {
		return strings.Compare(a.Name, b.Name)
	})

	return spec, nil
}

func convertProxy(index int, p proxyDoc) (Proxy, error) {
	field := proxyField(index, p.Name)

	proxy := Proxy{
		Name:            strings.TrimSpace(p.Name),
		Kind:            ProxyKind(strings.ToLower(strings.TrimSpace(p.Type))),
		InternalPort:    DefaultInternalPort,
		Layer:           DefaultLayer,
		Instances:       DefaultInstances,
		MaxConnections:  DefaultMaxConnections,
		Algorithm:       p.Algorithm,
		DefaultUpstream: strings.TrimSpace(p.DefaultUpstream),
		Routes:          make([]Route, 0, len(p.Routes)),
		Environment:     p.Environment,
		Labels:          p.Labels,
		Volumes:         p.Volumes,
		Restart:         strings.TrimSpace(p.Restart),
		Healthcheck:     convertHealthcheck(p.Healthcheck),
	}

	if p.ExternalPort != nil {
		if *p.ExternalPort == 0 {
			return Proxy{}, NewConfigError(field+".external_port", "external_port must be greater than 0", ErrInvalidPort)
		}
		proxy.ExternalPort = *p.ExternalPort
	}
	if p.InternalPort != nil {
		proxy.InternalPort = *p.InternalPort
	}
	if p.Layer != nil {
		proxy.Layer = *p.Layer
	}
	if p.Instances != nil {
		proxy.Instances = *p.Instances
	}
	if p.MaxConnections != nil {
		proxy.MaxConnections = *p.MaxConnections
	}

	for _, r := range p.Routes {
		proxy.Routes = append(proxy.Routes, Route{
			Type:        RouteType(strings.ToLower(strings.TrimSpace(r.Type))),
			Domain:      strings.TrimSpace(r.Domain),
			Upstream:    strings.TrimSpace(r.Upstream),
			BypassPaths: r.BypassPaths,
		})
	}

	return proxy, nil
}

// convertHealthcheck fills the intervals and retries the document omits.
func convertHealthcheck(h *healthcheckDoc) *Healthcheck {
	if h == nil {
		return nil
	}
	hc := &Healthcheck{
		Test:        h.Test,
		Interval:    stringOrDefault(h.Interval, DefaultHealthInterval),
		Timeout:     stringOrDefault(h.Timeout, DefaultHealthTimeout),
		Retries:     DefaultHealthRetries,
		StartPeriod: h.StartPeriod,
	}
	if h.Retries != nil {
		hc.Retries = *h.Retries
	}
	return hc
}

func convertService(s serviceDoc) Service {
	svc := Service{
		Name:        strings.TrimSpace(s.Name),
		Domain:      strings.TrimSpace(s.Domain),
		Upstream:    strings.TrimSpace(s.Upstream),
		WebSocket:   s.WebSocket,
		Compress:    true,
		MaxBodySize: s.MaxBodySize,
		Headers:     make(map[string]string, len(s.Headers)),
	}
	if s.Compress != nil {
		svc.Compress = *s.Compress
	}
	if svc.MaxBodySize == "" {
		svc.MaxBodySize = DefaultMaxBodySize
	}
	for k, v := range s.Headers {
		svc.Headers[k] = v
	}
	return svc
}

func convertAnubis(a anubisDoc) Anubis {
	anubis := Anubis{
		Enabled:        a.Enabled,
		Bind:           a.Bind,
		Target:         a.Target,
		Difficulty:     DefaultAnubisDifficulty,
		MetricsBind:    a.MetricsBind,
		Image:          a.Image,
		ServeRobotsTxt: true,
		PolicyFile:     a.PolicyFile,
		Restart:        a.Restart,
	}
	if a.Difficulty != nil {
		anubis.Difficulty = *a.Difficulty
	}
	if a.ServeRobotsTxt != nil {
		anubis.ServeRobotsTxt = *a.ServeRobotsTxt
	}
	if anubis.Bind == "" {
		anubis.Bind = DefaultAnubisBind
	}
	if anubis.Target == "" {
		anubis.Target = DefaultAnubisTarget
	}
	if anubis.MetricsBind == "" {
		anubis.MetricsBind = DefaultAnubisMetricsBind
	}
	if anubis.Image == "" {
		anubis.Image = DefaultAnubisImage
	}
	if anubis.PolicyFile == "" {
		anubis.PolicyFile = DefaultAnubisPolicyFile
	}
	if anubis.Restart == "" {
		anubis.Restart = DefaultAnubisRestart
	}
	return anubis
}

func stringOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}

func stringOrDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

// proxyField names a proxy declaration for error messages. Unnamed proxies
// are referred to by position.
func proxyField(index int, name string) string {
	if strings.TrimSpace(name) == "" {
		return fmt.Sprintf("proxies[%d]", index)
	}
	return "proxies." + strings.TrimSpace(name)
}

func serviceField(index int, name string) string {
	if strings.TrimSpace(name) == "" {
		return fmt.Sprintf("services[%d]", index)
	}
	return "services." + strings.TrimSpace(name)
}
