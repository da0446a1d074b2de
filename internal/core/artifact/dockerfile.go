package artifact

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/artpar/cerberus/internal/core/project"
	"github.com/artpar/cerberus/internal/core/topology"
)

// DockerfileTemplate is the template id Dockerfiles render with.
const DockerfileTemplate = "Dockerfile"

// DockerfileData is the render data of one proxy kind's Dockerfile.
type DockerfileData struct {
	Project   string
	Kind      project.ProxyKind
	BaseImage string
	// Ports are the distinct internal ports of the kind's nodes, ascending.
	Ports []string
}

// BuildDockerfileData collects the render data of a kind from the nodes
// that use it.
func BuildDockerfileData(topo *topology.Topology, kind project.ProxyKind) (DockerfileData, error) {
	traits, err := topology.Traits(kind)
	if err != nil {
		return DockerfileData{}, err
	}

	seen := make(map[int]bool)
	var ports []int
	for _, n := range topo.Nodes {
		if n.Proxy == nil || n.Proxy.Kind != kind || seen[n.Proxy.InternalPort] {
			continue
		}
		seen[n.Proxy.InternalPort] = true
		ports = append(ports, n.Proxy.InternalPort)
	}
	sort.Ints(ports)

	data := DockerfileData{
		Project:   topo.Project,
		Kind:      kind,
		BaseImage: traits.BaseImage,
	}
	for _, p := range ports {
		data.Ports = append(data.Ports, strconv.Itoa(p))
	}
	return data, nil
}

// RenderDockerfiles renders one Dockerfile per materialized proxy kind,
// in project.Kinds order.
func RenderDockerfiles(r TemplateRenderer, topo *topology.Topology) ([]Artifact, error) {
	var out []Artifact
	for _, kind := range topo.ProxyKinds() {
		path := topology.DockerfilePath(kind)

		data, err := BuildDockerfileData(topo, kind)
		if err != nil {
			return nil, NewRenderError(path, DockerfileTemplate, err)
		}

		content, err := r.Render(DockerfileTemplate, data)
		if err != nil {
			return nil, NewRenderError(path, DockerfileTemplate, fmt.Errorf("%s: %w", kind, err))
		}

		out = append(out, Artifact{Path: path, Content: []byte(content)})
	}
	return out, nil
}
