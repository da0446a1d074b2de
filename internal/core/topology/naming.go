package topology

import (
	"fmt"
	"path"

	"github.com/artpar/cerberus/internal/core/project"
)

// =============================================================================
// Resource Naming Functions
// =============================================================================

// ReplicaName generates the name of a scaled proxy instance.
// Instance 1 keeps the declared name.
// Pattern: {base}-{index}
//
// Example:
//
//	ReplicaName("edge", 1) // returns "edge"
//	ReplicaName("edge", 3) // returns "edge-3"
func ReplicaName(base string, index int) string {
	if index <= 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, index)
}

// NetworkName generates the docker network name of a segment.
// Pattern: {project}-front, {project}-back
//
// Example:
//
//	NetworkName("acme", SegmentFront) // returns "acme-front"
func NetworkName(projectName string, segment Segment) string {
	switch segment {
	case SegmentFront:
		return projectName + "-front"
	default:
		return projectName + "-back"
	}
}

// ImageName generates the image tag built from a kind's Dockerfile.
// Pattern: {project}-{kind}:latest
func ImageName(projectName string, kind project.ProxyKind) string {
	return fmt.Sprintf("%s-%s:latest", projectName, kind)
}

// ProxyConfigPath is the artifact path of a node's proxy config file,
// relative to the output directory.
//
// Example:
//
//	ProxyConfigPath("edge", "Caddyfile") // returns "proxy-configs/edge/Caddyfile"
func ProxyConfigPath(node, file string) string {
	return path.Join("proxy-configs", node, file)
}

// DockerfileDir is the build context of a proxy kind, relative to the
// output directory.
func DockerfileDir(kind project.ProxyKind) string {
	return path.Join("dockerfiles", string(kind))
}

// DockerfilePath is the artifact path of a proxy kind's Dockerfile.
func DockerfilePath(kind project.ProxyKind) string {
	return path.Join(DockerfileDir(kind), "Dockerfile")
}

// LogDir is the host directory a node writes its logs to.
func LogDir(node string) string {
	return path.Join("logs", node)
}

// BotPolicyPath is the artifact path of the Anubis bot policy.
const BotPolicyPath = "anubis/botPolicy.json"

// ComposePath is the artifact path of the compose descriptor.
const ComposePath = "docker-compose.yaml"

// relative turns an output-relative path into a compose-relative one.
func relative(p string) string {
	return "./" + p
}
