package topology

import (
	"fmt"
	"strings"

	"github.com/artpar/cerberus/internal/core/project"
)

// =============================================================================
// Topology Resolution
// =============================================================================

// Resolve turns a Spec into a Topology.
//
// Resolution re-checks the Spec with project.Validate and then:
//  1. Decides which proxies materialize (Eligibility) and whether Anubis does
//  2. Classifies every upstream; a malformed one is a *project.ConfigError
//  3. Computes dependency edges between proxies and Anubis
//  4. Expands scaled proxies into replicas that inherit those edges
//  5. Synthesizes containers for in-network upstream hosts of services
//     and proxies
//  6. Sorts nodes so dependencies come first
//  7. Assigns segments, attachments and mounts
//
// Edges:
//   - A proxy whose default or route upstream references "anubis" depends on
//     Anubis, when Anubis is present.
//   - A proxy whose default upstream references another materialized proxy
//     depends on that proxy. Self references are ignored.
//   - With more than one distinct proxy layer and Anubis present, Anubis
//     depends on every proxy of the highest layer.
//
// "References" means the name occurs in the upstream as a whole token:
// "http://anubis:8080" references anubis, "proxy-10:80" does not
// reference proxy-1.
//
// Example:
//
//	topo, err := Resolve(spec)
//	if err != nil {
//	    // *project.ConfigError or *TopologyError
//	}
//	for _, n := range topo.Nodes {
//	    fmt.Println(n.Name, n.Segment, n.DependsOn)
//	}
func Resolve(spec *project.Spec) (*Topology, error) {
	if err := project.Validate(spec); err != nil {
		return nil, err
	}

	r := &resolver{
		spec:     spec,
		declared: make(map[string]bool),
		used:     make(map[string]bool),
	}
	return r.resolve()
}

type resolver struct {
	spec *project.Spec

	materialized []project.Proxy
	anubis       bool
	notes        []string

	// declared holds every name written in the Spec; used holds node names.
	declared map[string]bool
	used     map[string]bool
}

func (r *resolver) resolve() (*Topology, error) {
	if err := r.selectProxies(); err != nil {
		return nil, err
	}
	if err := r.classifyUpstreams(); err != nil {
		return nil, err
	}
	if err := r.checkVolumeReferences(); err != nil {
		return nil, err
	}

	// Canonical order: proxies in declaration order (each followed by its
	// replicas), then Anubis, then backend services.
	var nodes []Node

	for _, p := range r.materialized {
		replicas, err := r.proxyNodes(p)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, replicas...)
	}

	var anubis *project.Anubis
	if r.anubis {
		a := r.spec.Anubis
		anubis = &a
		node, err := r.anubisNode()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	backends, err := r.backendNodes()
	if err != nil {
		return nil, err
	}
	nodes = append(nodes, backends...)

	sorted, err := SortNodes(nodes)
	if err != nil {
		return nil, err
	}

	networks, allocated := AllocateNetworks(r.spec.Project.Name, sorted, anubis)

	return &Topology{
		Project:  r.spec.Project.Name,
		Nodes:    allocated,
		Networks: networks,
		Volumes:  Volumes(r.spec.Volumes),
		Notes:    r.notes,
		Global:   r.spec.Global,
		Services: append([]project.Service(nil), r.spec.Services...),
		Anubis:   anubis,
	}, nil
}

// selectProxies applies the eligibility table and decides whether Anubis
// is present. Anubis is present iff it is enabled and at least one
// DDoS-aware proxy materialized.
func (r *resolver) selectProxies() error {
	for _, p := range r.spec.Proxies {
		r.declared[p.Name] = true
	}
	for _, s := range r.spec.Services {
		r.declared[s.Name] = true
	}

	for _, p := range r.spec.Proxies {
		elig, err := Eligibility(p.Kind, r.spec.Anubis.Enabled)
		if err != nil {
			return NewTopologyError(ErrorUnknownKind,
				fmt.Sprintf("proxy %s has unsupported type %q (supported: %s)", p.Name, p.Kind, supportedKinds()),
				p.Name)
		}
		if !elig.Materialize {
			r.notes = append(r.notes, fmt.Sprintf("proxy %s skipped: %s", p.Name, elig.Reason))
			continue
		}
		r.materialized = append(r.materialized, p)

		traits, _ := Traits(p.Kind)
		if traits.RequiresAnubis {
			r.anubis = true
		}
	}

	r.anubis = r.anubis && r.spec.Anubis.Enabled
	if r.spec.Anubis.Enabled && !r.anubis {
		r.notes = append(r.notes, "anubis is enabled but no nginx proxy is deployed; anubis skipped")
	}
	return nil
}

// classifyUpstreams fails on the first upstream that cannot be parsed.
func (r *resolver) classifyUpstreams() error {
	for _, p := range r.spec.Proxies {
		if p.DefaultUpstream != "" {
			if _, err := ClassifyUpstream(p.DefaultUpstream); err != nil {
				return project.NewConfigError("proxies."+p.Name+".default_upstream", err.Error(), project.ErrInvalidUpstream)
			}
		}
		for i, route := range p.Routes {
			if _, err := ClassifyUpstream(route.Upstream); err != nil {
				return project.NewConfigError(fmt.Sprintf("proxies.%s.routes[%d].upstream", p.Name, i), err.Error(), project.ErrInvalidUpstream)
			}
		}
	}
	for _, s := range r.spec.Services {
		if _, err := ClassifyUpstream(s.Upstream); err != nil {
			return project.NewConfigError("services."+s.Name+".upstream", err.Error(), project.ErrInvalidUpstream)
		}
	}
	return nil
}

// checkVolumeReferences fails on a proxy volume whose source names a volume
// the descriptor does not declare. Sources starting with "/", "." or "~"
// are host paths.
func (r *resolver) checkVolumeReferences() error {
	declared := make(map[string]bool)
	for _, v := range Volumes(r.spec.Volumes) {
		declared[v.Name] = true
	}
	for _, p := range r.spec.Proxies {
		for i, v := range p.Volumes {
			source := ParseMount(v).Source
			if strings.ContainsAny(source[:1], "/.~") || declared[source] {
				continue
			}
			return project.NewConfigError(fmt.Sprintf("proxies.%s.volumes[%d]", p.Name, i),
				fmt.Sprintf("volume %q is not declared under [volumes]", source), project.ErrInvalidOverride)
		}
	}
	return nil
}

// proxyNodes builds the base node of a proxy with its edges and expands it.
func (r *resolver) proxyNodes(p project.Proxy) ([]Node, error) {
	if err := r.claim(p.Name); err != nil {
		return nil, err
	}

	traits, err := Traits(p.Kind)
	if err != nil {
		return nil, err
	}

	base := Node{
		Name:      p.Name,
		Kind:      NodeProxy,
		DependsOn: r.proxyEdges(p),
		Proxy: &ProxyNode{
			Base:            p.Name,
			Kind:            p.Kind,
			Layer:           p.Layer,
			InstanceID:      1,
			Replicas:        1,
			ExternalPort:    p.ExternalPort,
			InternalPort:    p.InternalPort,
			MaxConnections:  p.MaxConnections,
			Algorithm:       p.Algorithm,
			DefaultUpstream: p.DefaultUpstream,
			Routes:          p.Routes,
			ConfigFile:      traits.ConfigFile,
			ConfigTarget:    traits.ConfigTarget,
			LogDir:          traits.LogDir,
		},
	}
	for _, v := range p.Volumes {
		base.Proxy.Mounts = append(base.Proxy.Mounts, ParseMount(v))
	}

	instances, note := EffectiveInstances(r.spec.Project, p)
	if note != "" {
		r.notes = append(r.notes, note)
	}

	replicas := ExpandReplicas(base, instances)
	for i := range replicas {
		if i > 0 {
			if r.declared[replicas[i].Name] {
				return nil, NewTopologyError(ErrorDuplicateName,
					fmt.Sprintf("replica %s of proxy %s collides with a declared name", replicas[i].Name, p.Name),
					replicas[i].Name, p.Name)
			}
			if err := r.claim(replicas[i].Name); err != nil {
				return nil, err
			}
		}
		replicas[i] = applyProxyContainer(r.spec.Project.Name, p, replicas[i])
	}
	return replicas, nil
}

// proxyEdges applies the first two edge rules to a proxy declaration.
func (r *resolver) proxyEdges(p project.Proxy) []string {
	var deps []string

	if r.anubis {
		for _, u := range p.Upstreams() {
			if references(u, AnubisName) {
				deps = append(deps, AnubisName)
				break
			}
		}
	}

	for _, other := range r.materialized {
		if other.Name == p.Name {
			continue
		}
		if references(p.DefaultUpstream, other.Name) {
			deps = append(deps, other.Name)
		}
	}

	return deps
}

// anubisNode builds the Anubis node and applies the third edge rule.
func (r *resolver) anubisNode() (Node, error) {
	if err := r.claim(AnubisName); err != nil {
		return Node{}, err
	}

	node := newAnubisNode(r.spec.Anubis)

	layers := make(map[int]bool)
	highest := 0
	for _, p := range r.materialized {
		layers[p.Layer] = true
		if p.Layer > highest {
			highest = p.Layer
		}
	}
	if len(layers) > 1 {
		for _, p := range r.materialized {
			if p.Layer == highest {
				node.DependsOn = append(node.DependsOn, p.Name)
			}
		}
	}

	return node, nil
}

// backendNodes synthesizes a container for every in-network upstream host.
// Services come first and a service owns the container of its host, named
// after the service. Hosts that only a materialized proxy's default or route
// upstream names get a container named after the host (see backendName). Literal IPs, proxy
// names, anubis and localhost get no container, and a host gets at most one.
func (r *resolver) backendNodes() ([]Node, error) {
	proxies := make(map[string]bool, len(r.spec.Proxies))
	for _, p := range r.spec.Proxies {
		proxies[p.Name] = true
	}

	owned := make(map[string]bool)
	wanted := func(up Upstream) bool {
		if up.Class != UpstreamInternal {
			return false
		}
		host := strings.ToLower(up.Host)
		return host != "localhost" && host != AnubisName && !proxies[up.Host] && !r.used[up.Host] && !owned[host]
	}

	var nodes []Node
	for _, svc := range r.spec.Services {
		up, err := ClassifyUpstream(svc.Upstream)
		if err != nil {
			return nil, project.NewConfigError("services."+svc.Name+".upstream", err.Error(), project.ErrInvalidUpstream)
		}
		if !wanted(up) {
			continue
		}
		if err := r.claim(svc.Name); err != nil {
			return nil, err
		}
		owned[strings.ToLower(up.Host)] = true
		nodes = append(nodes, newBackendNode(svc.Name, up.Host))
	}

	for _, p := range r.materialized {
		for _, raw := range p.Upstreams() {
			up, err := ClassifyUpstream(raw)
			if err != nil {
				return nil, project.NewConfigError("proxies."+p.Name+".upstream", err.Error(), project.ErrInvalidUpstream)
			}
			name := backendName(up.Host)
			if !wanted(up) || r.used[name] {
				continue
			}
			if err := r.claim(name); err != nil {
				return nil, err
			}
			owned[strings.ToLower(up.Host)] = true
			nodes = append(nodes, newBackendNode(name, up.Host))
			r.notes = append(r.notes, fmt.Sprintf("upstream host %s of proxy %s has no service; a placeholder container was added", up.Host, p.Name))
		}
	}
	return nodes, nil
}

// backendName turns an upstream host into a node name: "app" stays "app",
// "api.internal" becomes "api-internal".
func backendName(host string) string {
	return strings.ReplaceAll(strings.ToLower(host), ".", "-")
}

// claim reserves a node name.
func (r *resolver) claim(name string) error {
	if r.used[name] {
		return NewTopologyError(ErrorDuplicateName, fmt.Sprintf("node name %s is used more than once", name), name)
	}
	r.used[name] = true
	return nil
}

func supportedKinds() string {
	kinds := project.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
