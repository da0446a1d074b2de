package topology

import (
	"fmt"
	"strings"

	"github.com/artpar/cerberus/internal/core/project"
)

// =============================================================================
// Topology - Main Output Type
// =============================================================================

// Topology is the fully resolved deployment graph of one project.
// It is built fresh by Resolve and never mutated afterwards.
type Topology struct {
	Project string

	// Nodes are sorted so that every node appears after all of its dependencies.
	Nodes    []Node
	Networks []Network
	Volumes  []Volume

	// Notes are non-fatal observations made during resolution, such as
	// instances ignored because scaling is disabled.
	Notes []string

	Global   project.Global
	Services []project.Service
	// Anubis is nil when no Anubis node was materialized.
	Anubis *project.Anubis
}

// Node returns the node with the given name.
func (t *Topology) Node(name string) (Node, bool) {
	for _, n := range t.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// NodesIn returns the nodes that belong to a segment, in topology order.
func (t *Topology) NodesIn(segment Segment) []Node {
	var out []Node
	for _, n := range t.Nodes {
		if n.Segment == segment {
			out = append(out, n)
		}
	}
	return out
}

// ProxyKinds returns the materialized proxy kinds in project.Kinds order.
func (t *Topology) ProxyKinds() []project.ProxyKind {
	seen := make(map[project.ProxyKind]bool)
	for _, n := range t.Nodes {
		if n.Proxy != nil {
			seen[n.Proxy.Kind] = true
		}
	}

	var out []project.ProxyKind
	for _, k := range project.Kinds() {
		if seen[k] {
			out = append(out, k)
		}
	}
	return out
}

// VolumeNames returns the names of the declared volumes in order.
func (t *Topology) VolumeNames() []string {
	names := make([]string, len(t.Volumes))
	for i, v := range t.Volumes {
		names[i] = v.Name
	}
	return names
}

// HasAnubis reports whether an Anubis node was materialized.
func (t *Topology) HasAnubis() bool {
	return t.Anubis != nil
}

// =============================================================================
// Node Types
// =============================================================================

// NodeKind distinguishes the three kinds of container in a topology.
type NodeKind string

const (
	NodeProxy   NodeKind = "proxy-replica"
	NodeAnubis  NodeKind = "anubis"
	NodeBackend NodeKind = "backend-service"
)

// AnubisName is the node and host name of the bot-mitigation container.
const AnubisName = "anubis"

// Node is one container of the deployment.
type Node struct {
	Name      string
	Kind      NodeKind
	Segment   Segment
	DependsOn []string

	// Networks lists the compose attachments. It always starts with Segment.
	Networks []Segment
	Aliases  []string

	Image string
	// Build is the build context; empty for pulled images.
	Build       string
	Command     []string
	Environment []string
	Labels      []string
	Ports       []PortMapping
	Mounts      []Mount
	Healthcheck *Healthcheck
	Restart     string

	// Proxy is set for proxy replicas only.
	Proxy *ProxyNode
}

// DependsOnNode reports whether n has a direct edge to name.
func (n Node) DependsOnNode(name string) bool {
	for _, d := range n.DependsOn {
		if d == name {
			return true
		}
	}
	return false
}

// ProxyNode carries the proxy declaration data a replica renders with.
type ProxyNode struct {
	// Base is the declared proxy name the replica was expanded from.
	Base       string
	Kind       project.ProxyKind
	Layer      int
	InstanceID int
	Replicas   int

	ExternalPort    int
	InternalPort    int
	MaxConnections  int
	Algorithm       string
	DefaultUpstream string
	Routes          []project.Route

	ConfigFile   string
	ConfigTarget string
	LogDir       string

	// Mounts are declared by the project and follow the generated ones.
	Mounts []Mount
}

// PortMapping publishes a container port on the host.
type PortMapping struct {
	Host      int
	Container int
}

func (p PortMapping) String() string {
	return fmt.Sprintf("%d:%d", p.Host, p.Container)
}

// Mount is a bind mount in compose short syntax.
type Mount struct {
	Source string
	Target string
	Mode   string
}

func (m Mount) String() string {
	if m.Mode == "" {
		return fmt.Sprintf("%s:%s", m.Source, m.Target)
	}
	return fmt.Sprintf("%s:%s:%s", m.Source, m.Target, m.Mode)
}

// ParseMount reads a mount in compose short syntax, SOURCE:TARGET[:MODE].
func ParseMount(spec string) Mount {
	source, rest, _ := strings.Cut(spec, ":")
	target, mode, _ := strings.Cut(rest, ":")
	return Mount{Source: source, Target: target, Mode: mode}
}

// Volume is a named volume of the compose descriptor.
type Volume struct {
	Name     string
	Driver   string
	External bool
}

// Healthcheck mirrors the compose healthcheck block.
type Healthcheck struct {
	Test        []string
	Interval    string
	Timeout     string
	Retries     int
	StartPeriod string
}

// =============================================================================
// Network Types
// =============================================================================

// Segment is a logical network a node belongs to.
type Segment string

const (
	SegmentFront Segment = "front-net"
	SegmentBack  Segment = "back-net"
)

// Network is the compose definition of a segment.
type Network struct {
	Segment Segment
	// Name is the docker network name, {project}-front or {project}-back.
	Name   string
	Driver string
	Subnet string
}
