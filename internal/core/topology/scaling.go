package topology

import (
	"fmt"

	"github.com/artpar/cerberus/internal/core/project"
)

// =============================================================================
// Scaling Functions
// =============================================================================

// EffectiveInstances returns how many instances of a proxy are deployed.
// Declared instances only apply when the project enables scaling; otherwise
// one instance is deployed and a note explains why.
func EffectiveInstances(p project.Project, proxy project.Proxy) (int, string) {
	if proxy.Instances <= 1 {
		return 1, ""
	}
	if !p.Scaling {
		return 1, fmt.Sprintf("proxy %s declares %d instances but project scaling is disabled; deploying 1", proxy.Name, proxy.Instances)
	}
	return proxy.Instances, ""
}

// ExpandReplicas expands a base proxy node into instances nodes.
//
// The first node keeps the declared name and external port. Instances
// 2..N are named {base}-{index}, publish no host port, and inherit the
// base node's dependency edges. Must run after edges are computed.
//
// Example:
//
//	replicas := ExpandReplicas(edge, 3)
//	// names: edge, edge-2, edge-3
//	// replicas[1].Proxy.InstanceID == 2, replicas[1].Proxy.ExternalPort == 0
func ExpandReplicas(base Node, instances int) []Node {
	if instances < 1 {
		instances = 1
	}

	out := make([]Node, 0, instances)
	for i := 1; i <= instances; i++ {
		n := base
		n.Name = ReplicaName(base.Name, i)
		n.DependsOn = append([]string(nil), base.DependsOn...)

		if base.Proxy != nil {
			p := *base.Proxy
			p.Base = base.Name
			p.InstanceID = i
			p.Replicas = instances
			if i > 1 {
				p.ExternalPort = 0
			}
			n.Proxy = &p
		}

		out = append(out, n)
	}
	return out
}
