package compose

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/artpar/cerberus/internal/core/topology"
)

// =============================================================================
// Drift Types
// =============================================================================

// DriftKind classifies a difference between a descriptor and a topology.
type DriftKind string

const (
	DriftProject           DriftKind = "project"
	DriftMissingService    DriftKind = "missing-service"
	DriftUnexpectedService DriftKind = "unexpected-service"
	DriftImage             DriftKind = "image"
	DriftDependsOn         DriftKind = "depends-on"
	DriftPorts             DriftKind = "ports"
	DriftNetworks          DriftKind = "networks"
	DriftMissingNetwork    DriftKind = "missing-network"
	DriftNetworkName       DriftKind = "network-name"
	DriftDriver            DriftKind = "driver"
	DriftSubnet            DriftKind = "subnet"
	DriftMissingVolume     DriftKind = "missing-volume"
	DriftContainerName     DriftKind = "container-name"
	DriftCommand           DriftKind = "command"
	DriftRestart           DriftKind = "restart"
	DriftEnvironment       DriftKind = "environment"
	DriftLabels            DriftKind = "labels"
	DriftMounts            DriftKind = "mounts"
	DriftAliases           DriftKind = "aliases"
	DriftHealthcheck       DriftKind = "healthcheck"
	DriftVolumeDriver      DriftKind = "volume-driver"
)

// Drift is one difference. Want is what the topology expects, Got what the
// descriptor declares.
type Drift struct {
	Kind    DriftKind
	Subject string
	Want    string
	Got     string
}

func (d Drift) String() string {
	switch d.Kind {
	case DriftMissingService, DriftMissingNetwork, DriftMissingVolume:
		return fmt.Sprintf("%s: %s is not declared", d.Kind, d.Subject)
	case DriftUnexpectedService:
		return fmt.Sprintf("%s: %s is not part of the topology", d.Kind, d.Subject)
	default:
		return fmt.Sprintf("%s: %s: want %q, got %q", d.Kind, d.Subject, d.Want, d.Got)
	}
}

// =============================================================================
// Drift Detection
// =============================================================================

// Compare reports how a descriptor differs from the topology it should
// have been generated from. An empty result means no drift.
//
// Order of the report: project, services in topology order, unexpected
// services by name, networks in topology order, volumes.
func Compare(topo *topology.Topology, desc *Descriptor) []Drift {
	var drift []Drift

	if desc.Name != topo.Project {
		drift = append(drift, Drift{Kind: DriftProject, Subject: "name", Want: topo.Project, Got: desc.Name})
	}

	expected := make(map[string]bool, len(topo.Nodes))
	for _, n := range topo.Nodes {
		expected[n.Name] = true

		svc, ok := desc.Service(n.Name)
		if !ok {
			drift = append(drift, Drift{Kind: DriftMissingService, Subject: n.Name})
			continue
		}
		drift = append(drift, compareService(n, svc)...)
	}

	for _, svc := range desc.Services {
		if !expected[svc.Name] {
			drift = append(drift, Drift{Kind: DriftUnexpectedService, Subject: svc.Name})
		}
	}

	for _, want := range topo.Networks {
		key := string(want.Segment)
		got, ok := desc.Network(key)
		if !ok {
			drift = append(drift, Drift{Kind: DriftMissingNetwork, Subject: key})
			continue
		}
		if got.DockerName != want.Name {
			drift = append(drift, Drift{Kind: DriftNetworkName, Subject: key, Want: want.Name, Got: got.DockerName})
		}
		if got.Driver != want.Driver {
			drift = append(drift, Drift{Kind: DriftDriver, Subject: key, Want: want.Driver, Got: got.Driver})
		}
		if subnets := strings.Join(got.Subnets(), ","); subnets != want.Subnet {
			drift = append(drift, Drift{Kind: DriftSubnet, Subject: key, Want: want.Subnet, Got: subnets})
		}
	}

	volumes := make(map[string]Volume, len(desc.Volumes))
	for _, v := range desc.Volumes {
		volumes[v.Name] = v
	}
	for _, want := range topo.Volumes {
		got, ok := volumes[want.Name]
		if !ok {
			drift = append(drift, Drift{Kind: DriftMissingVolume, Subject: want.Name})
			continue
		}
		if want.Driver != "" && got.Driver != want.Driver {
			drift = append(drift, Drift{Kind: DriftVolumeDriver, Subject: want.Name, Want: want.Driver, Got: got.Driver})
		}
	}

	return drift
}

// compareService compares every service field the generator writes.
// Bind mount sources are left out since compose may resolve them against
// the working directory.
func compareService(n topology.Node, svc Service) []Drift {
	var drift []Drift
	add := func(kind DriftKind, want, got string) {
		if want != got {
			drift = append(drift, Drift{Kind: kind, Subject: n.Name, Want: want, Got: got})
		}
	}
	list := func(kind DriftKind, want, got []string) {
		add(kind, strings.Join(sortedCopy(want), ","), strings.Join(sortedCopy(got), ","))
	}

	add(DriftImage, n.Image, svc.Image)
	list(DriftDependsOn, n.DependsOn, svc.DependsOn)

	wantPorts := make([]string, 0, len(n.Ports))
	for _, p := range n.Ports {
		wantPorts = append(wantPorts, p.String())
	}
	gotPorts := make([]string, 0, len(svc.Ports))
	for _, p := range svc.Ports {
		gotPorts = append(gotPorts, fmt.Sprintf("%d:%d", p.Published, p.Target))
	}
	list(DriftPorts, wantPorts, gotPorts)

	wantNets := make([]string, 0, len(n.Networks))
	for _, s := range n.Networks {
		wantNets = append(wantNets, string(s))
	}
	list(DriftNetworks, wantNets, svc.Networks)

	add(DriftContainerName, n.Name, svc.ContainerName)
	add(DriftCommand, strings.Join(n.Command, " "), strings.Join(svc.Command, " "))
	add(DriftRestart, n.Restart, string(svc.Restart))
	list(DriftEnvironment, n.Environment, assignments(svc.Environment))
	list(DriftLabels, n.Labels, assignments(svc.Labels))

	wantMounts := make([]string, 0, len(n.Mounts))
	for _, m := range n.Mounts {
		wantMounts = append(wantMounts, mountKey(isBindSource(m.Source), m.Source, m.Target, m.Mode == "ro"))
	}
	gotMounts := make([]string, 0, len(svc.Volumes))
	for _, v := range svc.Volumes {
		gotMounts = append(gotMounts, mountKey(v.Type == VolumeMountTypeBind, v.Source, v.Target, v.ReadOnly))
	}
	list(DriftMounts, wantMounts, gotMounts)

	var gotAliases []string
	for _, aliases := range svc.Aliases {
		gotAliases = append(gotAliases, aliases...)
	}
	list(DriftAliases, n.Aliases, gotAliases)

	add(DriftHealthcheck, healthcheckKey(n.Healthcheck), serviceHealthcheckKey(svc.HealthCheck))

	return drift
}

// assignments turns a map into sorted KEY=VALUE strings.
func assignments(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	slices.Sort(out)
	return out
}

func isBindSource(source string) bool {
	return strings.HasPrefix(source, "/") || strings.HasPrefix(source, ".") || strings.HasPrefix(source, "~")
}

// mountKey identifies a mount by target and mode, plus the source for
// named volumes.
func mountKey(bind bool, source, target string, readOnly bool) string {
	mode := "rw"
	if readOnly {
		mode = "ro"
	}
	if bind {
		return target + ":" + mode
	}
	return source + ":" + target + ":" + mode
}

func healthcheckKey(h *topology.Healthcheck) string {
	if h == nil {
		return ""
	}
	return healthKey(h.Test, h.Interval, h.Timeout, h.Retries, h.StartPeriod)
}

func serviceHealthcheckKey(h *HealthCheck) string {
	if h == nil {
		return ""
	}
	return healthKey(h.Test, h.Interval, h.Timeout, h.Retries, h.StartPeriod)
}

func healthKey(test []string, interval, timeout string, retries int, startPeriod string) string {
	return fmt.Sprintf("%s | %s | %s | %d | %s", strings.Join(test, " "),
		normalizeDuration(interval), normalizeDuration(timeout), retries, normalizeDuration(startPeriod))
}

// normalizeDuration writes "1m" and "60s" the same way.
func normalizeDuration(d string) string {
	parsed, err := time.ParseDuration(d)
	if err != nil {
		return d
	}
	return parsed.String()
}

func sortedCopy(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}
