package artifact

import (
	"github.com/artpar/cerberus/internal/core/topology"
)

// Build renders every artifact of a topology in memory: the compose
// descriptor, one config per proxy node in topology order, one Dockerfile
// per proxy kind and the bot policy when Anubis is present. The first
// failure aborts the build and nothing is returned.
func Build(topo *topology.Topology, r TemplateRenderer) ([]Artifact, error) {
	compose, err := RenderCompose(topo)
	if err != nil {
		return nil, err
	}
	out := []Artifact{compose}

	for _, n := range topo.Nodes {
		if n.Proxy == nil {
			continue
		}
		a, err := RenderProxyConfig(r, topo, n)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	dockerfiles, err := RenderDockerfiles(r, topo)
	if err != nil {
		return nil, err
	}
	out = append(out, dockerfiles...)

	policy, ok, err := RenderBotPolicy(topo)
	if err != nil {
		return nil, err
	}
	if ok {
		out = append(out, policy)
	}

	return out, nil
}

// Paths returns the relative paths of a set of artifacts, in order.
func Paths(artifacts []Artifact) []string {
	paths := make([]string, len(artifacts))
	for i, a := range artifacts {
		paths[i] = a.Path
	}
	return paths
}
