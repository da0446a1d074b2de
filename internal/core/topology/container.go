package topology

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/artpar/cerberus/internal/core/project"
)

// =============================================================================
// Container Render Data
// =============================================================================

// Label keys set on every node.
const (
	LabelService = "cerberus.service"
	LabelLayer   = "cerberus.layer"
	LabelType    = "cerberus.type"
	LabelNode    = "cerberus.node"
)

// Container defaults shared by every node.
const (
	BackendImage        = "alpine:latest"
	DefaultRestart      = "unless-stopped"
	HealthInterval      = "30s"
	HealthTimeout       = "10s"
	HealthRetries       = 3
	HealthStartPeriod   = "10s"
	anubisRemoteAddress = "USE_REMOTE_ADDRESS=true"
)

// applyProxyContainer fills the container fields of a proxy replica and
// merges the declaration's overrides over them.
// Pattern for the image: {project}-{kind}:latest built from dockerfiles/{kind}.
func applyProxyContainer(projectName string, decl project.Proxy, n Node) Node {
	p := n.Proxy

	n.Image = ImageName(projectName, p.Kind)
	n.Build = relative(DockerfileDir(p.Kind))
	n.Restart = DefaultRestart

	n.Environment = []string{
		fmt.Sprintf("PROXY_LAYER=%d", p.Layer),
		fmt.Sprintf("PROXY_TYPE=%s", p.Kind),
		fmt.Sprintf("MAX_CONNECTIONS=%d", p.MaxConnections),
	}
	if p.InstanceID > 1 {
		n.Environment = append(n.Environment, fmt.Sprintf("INSTANCE_ID=%d", p.InstanceID))
	}

	n.Labels = []string{
		LabelService + "=proxy",
		fmt.Sprintf("%s=%d", LabelLayer, p.Layer),
		fmt.Sprintf("%s=%s", LabelType, p.Kind),
		fmt.Sprintf("%s=%s", LabelNode, n.Name),
	}

	n.Ports = nil
	if p.ExternalPort > 0 {
		n.Ports = []PortMapping{{Host: p.ExternalPort, Container: p.InternalPort}}
	}

	n.Healthcheck = newHealthcheck(fmt.Sprintf("wget --quiet --tries=1 --spider http://localhost:%d/health || exit 1", p.InternalPort))

	n.Environment = mergeAssignments(n.Environment, decl.Environment)
	n.Labels = mergeAssignments(n.Labels, decl.Labels)
	if decl.Restart != "" {
		n.Restart = decl.Restart
	}
	if h := decl.Healthcheck; h != nil {
		n.Healthcheck = &Healthcheck{
			Test:        append([]string(nil), h.Test...),
			Interval:    h.Interval,
			Timeout:     h.Timeout,
			Retries:     h.Retries,
			StartPeriod: h.StartPeriod,
		}
	}
	return n
}

// mergeAssignments applies KEY=VALUE overrides to a list of assignments.
// An override of an existing key replaces it in place; new keys follow in
// sorted order.
func mergeAssignments(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	applied := make(map[string]bool, len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if v, ok := overrides[key]; ok {
			out = append(out, key+"="+v)
			applied[key] = true
			continue
		}
		out = append(out, kv)
	}
	keys := slices.Sorted(maps.Keys(overrides))
	for _, k := range keys {
		if !applied[k] {
			out = append(out, k+"="+overrides[k])
		}
	}
	return out
}

// newAnubisNode builds the bot-mitigation node.
func newAnubisNode(a project.Anubis) Node {
	return Node{
		Name:    AnubisName,
		Kind:    NodeAnubis,
		Image:   a.Image,
		Restart: a.Restart,
		Environment: []string{
			"BIND=" + a.Bind,
			"DIFFICULTY=" + strconv.Itoa(a.Difficulty),
			"TARGET=" + a.Target,
			"METRICS_BIND=" + a.MetricsBind,
			"POLICY_FNAME=" + a.PolicyFile,
			"SERVE_ROBOTS_TXT=" + strconv.FormatBool(a.ServeRobotsTxt),
			anubisRemoteAddress,
		},
		Labels: []string{
			LabelService + "=anubis",
			LabelType + "=anubis",
			LabelNode + "=" + AnubisName,
		},
		Healthcheck: newHealthcheck(fmt.Sprintf("wget --quiet --tries=1 --spider http://%s/metrics || exit 1", localAddress(a.MetricsBind))),
	}
}

// newBackendNode builds the placeholder container synthesized for an
// upstream host inside the compose network. The host becomes a network
// alias when it differs from the node name.
func newBackendNode(name, host string) Node {
	n := Node{
		Name:    name,
		Kind:    NodeBackend,
		Image:   BackendImage,
		Command: []string{"sleep", "infinity"},
		Restart: DefaultRestart,
		Labels: []string{
			LabelService + "=backend",
			LabelNode + "=" + name,
		},
		Healthcheck: &Healthcheck{
			Test:        []string{"CMD", "true"},
			Interval:    HealthInterval,
			Timeout:     HealthTimeout,
			Retries:     HealthRetries,
			StartPeriod: HealthStartPeriod,
		},
	}
	if host != name {
		n.Aliases = []string{host}
	}
	return n
}

func newHealthcheck(cmd string) *Healthcheck {
	return &Healthcheck{
		Test:        []string{"CMD-SHELL", cmd},
		Interval:    HealthInterval,
		Timeout:     HealthTimeout,
		Retries:     HealthRetries,
		StartPeriod: HealthStartPeriod,
	}
}

// localAddress turns a bind address such as ":9090" into "localhost:9090".
func localAddress(bind string) string {
	if strings.HasPrefix(bind, ":") {
		return "localhost" + bind
	}
	return bind
}
