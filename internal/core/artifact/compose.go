package artifact

import (
	"bytes"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/artpar/cerberus/internal/core/topology"
)

// =============================================================================
// Compose Descriptor
// =============================================================================

// BuildCompose builds the compose descriptor of a topology as a YAML node
// tree. Top-level sections are name, services, networks and volumes in
// that order; services follow topology order and every mapping has a
// fixed key order.
func BuildCompose(topo *topology.Topology) *yaml.Node {
	services := mappingNode()
	for _, n := range topo.Nodes {
		appendPair(services, n.Name, serviceNode(n))
	}

	networks := mappingNode()
	for _, net := range topo.Networks {
		ipamConfig := sequenceNode(mappingNode(pair("subnet", str(net.Subnet))...))
		appendPair(networks, string(net.Segment), mappingNode(
			pairs(
				pair("name", str(net.Name)),
				pair("driver", str(net.Driver)),
				pair("ipam", mappingNode(pair("config", ipamConfig)...)),
			)...,
		))
	}

	volumes := mappingNode()
	for _, v := range topo.Volumes {
		appendPair(volumes, v.Name, volumeNode(v))
	}

	root := mappingNode(pairs(
		pair("name", str(topo.Project)),
		pair("services", services),
		pair("networks", networks),
		pair("volumes", volumes),
	)...)

	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
}

// RenderCompose encodes the compose descriptor of a topology.
func RenderCompose(topo *topology.Topology) (Artifact, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(BuildCompose(topo)); err != nil {
		return Artifact{}, NewRenderError(topology.ComposePath, "", err)
	}
	if err := enc.Close(); err != nil {
		return Artifact{}, NewRenderError(topology.ComposePath, "", err)
	}
	return Artifact{Path: topology.ComposePath, Content: buf.Bytes()}, nil
}

func serviceNode(n topology.Node) *yaml.Node {
	svc := mappingNode()

	appendPair(svc, "image", str(n.Image))
	if n.Build != "" {
		appendPair(svc, "build", mappingNode(pair("context", str(n.Build))...))
	}
	appendPair(svc, "container_name", str(n.Name))
	if len(n.Command) > 0 {
		appendPair(svc, "command", flowStrings(n.Command))
	}
	if n.Restart != "" {
		appendPair(svc, "restart", str(n.Restart))
	}

	if len(n.Ports) > 0 {
		ports := sequenceNode()
		for _, p := range n.Ports {
			ports.Content = append(ports.Content, quoted(p.String()))
		}
		appendPair(svc, "ports", ports)
	}
	if len(n.Environment) > 0 {
		appendPair(svc, "environment", stringSeq(escapeDollars(n.Environment)))
	}
	if len(n.Labels) > 0 {
		appendPair(svc, "labels", stringSeq(escapeDollars(n.Labels)))
	}
	if len(n.Mounts) > 0 {
		mounts := sequenceNode()
		for _, m := range n.Mounts {
			mounts.Content = append(mounts.Content, str(m.String()))
		}
		appendPair(svc, "volumes", mounts)
	}

	appendPair(svc, "networks", networksNode(n))

	if len(n.DependsOn) > 0 {
		appendPair(svc, "depends_on", stringSeq(n.DependsOn))
	}
	if n.Healthcheck != nil {
		appendPair(svc, "healthcheck", healthcheckNode(n.Healthcheck))
	}

	return svc
}

// escapeDollars doubles every $ so compose does not interpolate values
// that are meant literally.
func escapeDollars(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ReplaceAll(v, "$", "$$")
	}
	return out
}

// networksNode uses the list form unless the node carries aliases, which
// need the mapping form.
func networksNode(n topology.Node) *yaml.Node {
	if len(n.Aliases) == 0 {
		seq := sequenceNode()
		for _, s := range n.Networks {
			seq.Content = append(seq.Content, str(string(s)))
		}
		return seq
	}

	m := mappingNode()
	for i, s := range n.Networks {
		if i == 0 {
			appendPair(m, string(s), mappingNode(pair("aliases", stringSeq(n.Aliases))...))
			continue
		}
		empty := mappingNode()
		empty.Style = yaml.FlowStyle
		appendPair(m, string(s), empty)
	}
	return m
}

// volumeNode is an empty flow mapping unless the volume carries settings.
func volumeNode(v topology.Volume) *yaml.Node {
	m := mappingNode()
	if v.Driver != "" {
		appendPair(m, "driver", str(v.Driver))
	}
	if v.External {
		appendPair(m, "external", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "true"})
	}
	if len(m.Content) == 0 {
		m.Style = yaml.FlowStyle
	}
	return m
}

// healthcheckNode leaves out empty durations.
func healthcheckNode(h *topology.Healthcheck) *yaml.Node {
	m := mappingNode(pair("test", flowStrings(h.Test))...)
	for _, d := range []struct{ key, value string }{
		{"interval", h.Interval},
		{"timeout", h.Timeout},
	} {
		if d.value != "" {
			appendPair(m, d.key, str(d.value))
		}
	}
	appendPair(m, "retries", integer(h.Retries))
	if h.StartPeriod != "" {
		appendPair(m, "start_period", str(h.StartPeriod))
	}
	return m
}

// =============================================================================
// YAML Node Helpers
// =============================================================================

func mappingNode(content ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: content}
}

func sequenceNode(content ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: content}
}

func appendPair(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, str(key), value)
}

func pair(key string, value *yaml.Node) []*yaml.Node {
	return []*yaml.Node{str(key), value}
}

func pairs(ps ...[]*yaml.Node) []*yaml.Node {
	var out []*yaml.Node
	for _, p := range ps {
		out = append(out, p...)
	}
	return out
}

// str returns a string scalar. Values YAML would read as a boolean,
// number or null are double-quoted so they stay strings.
func str(v string) *yaml.Node {
	if needsQuoting(v) {
		return quoted(v)
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func quoted(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v, Style: yaml.DoubleQuotedStyle}
}

func integer(v int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
}

func stringSeq(values []string) *yaml.Node {
	seq := sequenceNode()
	for _, v := range values {
		seq.Content = append(seq.Content, str(v))
	}
	return seq
}

func flowStrings(values []string) *yaml.Node {
	seq := sequenceNode()
	seq.Style = yaml.FlowStyle
	for _, v := range values {
		seq.Content = append(seq.Content, quoted(v))
	}
	return seq
}

func needsQuoting(v string) bool {
	switch strings.ToLower(v) {
	case "", "true", "false", "yes", "no", "on", "off", "y", "n", "null", "~":
		return true
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return true
	}
	// Sexagesimal-looking values such as 80:80 were numbers in YAML 1.1.
	if strings.Contains(v, ":") && strings.Trim(v, "0123456789:") == "" {
		return true
	}
	return false
}
