package topology

import (
	"github.com/artpar/cerberus/internal/core/project"
)

// =============================================================================
// Network & Volume Allocation
// =============================================================================

// Fixed address blocks of the two segments.
const (
	FrontSubnet   = "10.100.0.0/16"
	BackSubnet    = "10.101.0.0/16"
	NetworkDriver = "bridge"
)

// ConventionalVolumes are declared in every descriptor, in this order.
func ConventionalVolumes() []string {
	return []string{"postgres_data", "redis_data", "nginx_logs"}
}

// Volumes returns the conventional volumes followed by the declared ones.
// A declared volume with a conventional name keeps its conventional
// position and takes the declared settings.
func Volumes(declared []project.Volume) []Volume {
	out := make([]Volume, 0, len(ConventionalVolumes())+len(declared))
	index := make(map[string]int)
	for _, name := range ConventionalVolumes() {
		index[name] = len(out)
		out = append(out, Volume{Name: name})
	}
	for _, v := range declared {
		vol := Volume{Name: v.Name, Driver: v.Driver, External: v.External}
		if i, ok := index[v.Name]; ok {
			out[i] = vol
			continue
		}
		index[v.Name] = len(out)
		out = append(out, vol)
	}
	return out
}

// Networks returns the two segment definitions of a project.
func Networks(projectName string) []Network {
	return []Network{
		{Segment: SegmentFront, Name: NetworkName(projectName, SegmentFront), Driver: NetworkDriver, Subnet: FrontSubnet},
		{Segment: SegmentBack, Name: NetworkName(projectName, SegmentBack), Driver: NetworkDriver, Subnet: BackSubnet},
	}
}

// SegmentFor returns the segment a node belongs to. Layer-1 proxies and
// any node publishing a host port sit on the front segment; everything
// else sits on the back segment.
func SegmentFor(n Node) Segment {
	if len(n.Ports) > 0 {
		return SegmentFront
	}
	if n.Proxy != nil && (n.Proxy.Layer == 1 || n.Proxy.ExternalPort > 0) {
		return SegmentFront
	}
	return SegmentBack
}

// Attachments returns the compose networks of a node. Front proxies are
// also attached to the back segment so they can reach deeper layers;
// segment membership stays single.
func Attachments(n Node) []Segment {
	segment := SegmentFor(n)
	if segment == SegmentFront && n.Proxy != nil {
		return []Segment{SegmentFront, SegmentBack}
	}
	return []Segment{segment}
}

// MountsFor returns the mounts of a node. Generated mounts derive from the
// kind and name only; a proxy's declared mounts follow them.
func MountsFor(n Node, anubis *project.Anubis) []Mount {
	switch n.Kind {
	case NodeProxy:
		if n.Proxy == nil {
			return nil
		}
		mounts := []Mount{
			{Source: relative(ProxyConfigPath(n.Name, n.Proxy.ConfigFile)), Target: n.Proxy.ConfigTarget, Mode: "ro"},
			{Source: relative(LogDir(n.Name)), Target: n.Proxy.LogDir, Mode: "rw"},
		}
		return append(mounts, n.Proxy.Mounts...)
	case NodeAnubis:
		policy := project.DefaultAnubisPolicyFile
		if anubis != nil && anubis.PolicyFile != "" {
			policy = anubis.PolicyFile
		}
		return []Mount{
			{Source: relative(BotPolicyPath), Target: policy, Mode: "ro"},
		}
	default:
		return nil
	}
}

// AllocateNetworks assigns segments, compose attachments and mounts to
// every node and returns the segment definitions. Nodes are returned in
// the order given.
func AllocateNetworks(projectName string, nodes []Node, anubis *project.Anubis) ([]Network, []Node) {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		n.Segment = SegmentFor(n)
		n.Networks = Attachments(n)
		n.Mounts = MountsFor(n, anubis)
		out[i] = n
	}
	return Networks(projectName), out
}
