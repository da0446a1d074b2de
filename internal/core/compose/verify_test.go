package compose

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/cerberus/internal/core/artifact"
	"github.com/artpar/cerberus/internal/core/project"
	"github.com/artpar/cerberus/internal/core/topology"
)

const anubisDocument = `
[project]
name = "acme"
scaling = true

[anubis]
enabled = true

[[proxies]]
name = "edge"
type = "nginx"
external_port = 80
instances = 2
default_upstream = "http://anubis:8080"

[[proxies]]
name = "inner"
type = "caddy"
layer = 2

[[services]]
name = "web"
domain = "www.example.com"
upstream = "http://app:3000"
`

func resolveDocument(t *testing.T, doc string) *topology.Topology {
	t.Helper()
	spec, err := project.Parse([]byte(doc))
	require.NoError(t, err)
	topo, err := topology.Resolve(spec)
	require.NoError(t, err)
	return topo
}

func renderedDescriptor(t *testing.T, topo *topology.Topology) string {
	t.Helper()
	a, err := artifact.RenderCompose(topo)
	require.NoError(t, err)
	return string(a.Content)
}

// insertAfterLine adds a sequence item after the line holding marker, with
// the same indentation.
func insertAfterLine(content, marker, item string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.Contains(line, marker) {
			indent := line[:strings.Index(line, "-")]
			added := indent + "- " + item
			return strings.Join(slices.Insert(lines, i+1, added), "\n")
		}
	}
	return content
}

func driftKinds(drift []Drift) []DriftKind {
	kinds := make([]DriftKind, len(drift))
	for i, d := range drift {
		kinds[i] = d.Kind
	}
	return kinds
}

// =============================================================================
// Compare Tests
// =============================================================================

func TestCompare_GeneratedDescriptorHasNoDrift(t *testing.T) {
	topo := resolveDocument(t, anubisDocument)

	desc, err := ParseDescriptor([]byte(renderedDescriptor(t, topo)))
	require.NoError(t, err)

	assert.Empty(t, Compare(topo, desc))
}

func TestCompare_EmptyTopology(t *testing.T) {
	topo := resolveDocument(t, `
[project]
name = "acme"

[[proxies]]
name = "edge"
type = "nginx"
`)

	desc, err := ParseDescriptor([]byte(renderedDescriptor(t, topo)))
	require.NoError(t, err)

	assert.Empty(t, Compare(topo, desc))
}

func TestCompare_MissingAndUnexpectedServices(t *testing.T) {
	generated := resolveDocument(t, anubisDocument)
	desc, err := ParseDescriptor([]byte(renderedDescriptor(t, generated)))
	require.NoError(t, err)

	// The project now has scaling off, so edge-2 should no longer exist,
	// and web was renamed.
	changed := resolveDocument(t, strings.NewReplacer(
		"scaling = true", "scaling = false",
		`name = "web"`, `name = "site"`,
	).Replace(anubisDocument))

	drift := Compare(changed, desc)
	assert.Contains(t, drift, Drift{Kind: DriftMissingService, Subject: "site"})
	assert.Contains(t, drift, Drift{Kind: DriftUnexpectedService, Subject: "edge-2"})
	assert.Contains(t, drift, Drift{Kind: DriftUnexpectedService, Subject: "web"})
}

func TestCompare_WrongSubnetAndNetworkName(t *testing.T) {
	topo := resolveDocument(t, anubisDocument)
	content := strings.NewReplacer(
		"10.101.0.0/16", "10.200.0.0/16",
		"name: acme-front", "name: other-front",
	).Replace(renderedDescriptor(t, topo))

	desc, err := ParseDescriptor([]byte(content))
	require.NoError(t, err)

	assert.Equal(t, []Drift{
		{Kind: DriftNetworkName, Subject: "front-net", Want: "acme-front", Got: "other-front"},
		{Kind: DriftSubnet, Subject: "back-net", Want: topology.BackSubnet, Got: "10.200.0.0/16"},
	}, Compare(topo, desc))
}

// serviceFor builds the descriptor service that matches a node exactly.
func serviceFor(n topology.Node) Service {
	svc := Service{
		Name:          n.Name,
		ContainerName: n.Name,
		Image:         n.Image,
		Command:       n.Command,
		Restart:       RestartPolicy(n.Restart),
		DependsOn:     sortedCopy(n.DependsOn),
		Environment:   make(map[string]string),
		Labels:        make(map[string]string),
	}
	for _, s := range n.Networks {
		svc.Networks = append(svc.Networks, string(s))
	}
	svc.Networks = sortedCopy(svc.Networks)
	if len(n.Aliases) > 0 {
		svc.Aliases = map[string][]string{string(n.Networks[0]): n.Aliases}
	}
	for _, p := range n.Ports {
		svc.Ports = append(svc.Ports, Port{Target: uint32(p.Container), Published: uint32(p.Host)})
	}
	for _, kv := range n.Environment {
		k, v, _ := strings.Cut(kv, "=")
		svc.Environment[k] = v
	}
	for _, kv := range n.Labels {
		k, v, _ := strings.Cut(kv, "=")
		svc.Labels[k] = v
	}
	for _, m := range n.Mounts {
		svc.Volumes = append(svc.Volumes, VolumeMount{Type: VolumeMountTypeBind, Source: m.Source, Target: m.Target, ReadOnly: m.Mode == "ro"})
	}
	if h := n.Healthcheck; h != nil {
		svc.HealthCheck = &HealthCheck{Test: h.Test, Interval: h.Interval, Timeout: h.Timeout, Retries: h.Retries, StartPeriod: h.StartPeriod}
	}
	return svc
}

func TestCompare_ServiceFields(t *testing.T) {
	topo := resolveDocument(t, anubisDocument)

	desc := &Descriptor{Name: "other"}
	for _, n := range topo.Nodes {
		svc := serviceFor(n)
		if n.Name == "edge" {
			svc.Image = "nginx:latest"
			svc.DependsOn = nil
			svc.Ports = []Port{{Target: 80, Published: 8080}}
			svc.Networks = []string{"front-net"}
		}
		desc.Services = append(desc.Services, svc)
	}

	drift := Compare(topo, desc)
	assert.Equal(t, []DriftKind{
		DriftProject,
		DriftImage, DriftDependsOn, DriftPorts, DriftNetworks,
		DriftMissingNetwork, DriftMissingNetwork,
		DriftMissingVolume, DriftMissingVolume, DriftMissingVolume,
	}, driftKinds(drift))

	assert.Equal(t, Drift{Kind: DriftPorts, Subject: "edge", Want: "80:80", Got: "8080:80"}, drift[3])
}

func TestCompare_HandEditedContainerFields(t *testing.T) {
	topo := resolveDocument(t, anubisDocument)
	content := renderedDescriptor(t, topo)

	tests := []struct {
		name string
		edit func(string) string
		want Drift
	}{
		{
			name: "instance id",
			edit: func(c string) string { return strings.Replace(c, "INSTANCE_ID=2", "INSTANCE_ID=7", 1) },
			want: Drift{Kind: DriftEnvironment, Subject: "edge-2"},
		},
		{
			name: "extra bind mount",
			edit: func(c string) string {
				return insertAfterLine(c, "./logs/edge-2:/var/log/nginx:rw", "/etc/passwd:/etc/passwd:ro")
			},
			want: Drift{Kind: DriftMounts, Subject: "edge-2"},
		},
		{
			name: "bind mount mode",
			edit: func(c string) string {
				return strings.Replace(c, "./logs/edge-2:/var/log/nginx:rw", "./logs/edge-2:/var/log/nginx:ro", 1)
			},
			want: Drift{Kind: DriftMounts, Subject: "edge-2"},
		},
		{
			name: "alias",
			edit: func(c string) string { return strings.Replace(c, "- app\n", "- application\n", 1) },
			want: Drift{Kind: DriftAliases, Subject: "web", Want: "app", Got: "application"},
		},
		{
			name: "container name",
			edit: func(c string) string {
				return strings.Replace(c, "container_name: inner", "container_name: inner-old", 1)
			},
			want: Drift{Kind: DriftContainerName, Subject: "inner", Want: "inner", Got: "inner-old"},
		},
		{
			name: "restart",
			edit: func(c string) string { return strings.Replace(c, "restart: always", "restart: \"no\"", 1) },
			want: Drift{Kind: DriftRestart, Subject: "anubis", Want: "always", Got: "no"},
		},
		{
			name: "command",
			edit: func(c string) string { return strings.Replace(c, `["sleep", "infinity"]`, `["sleep", "60"]`, 1) },
			want: Drift{Kind: DriftCommand, Subject: "web", Want: "sleep infinity", Got: "sleep 60"},
		},
		{
			name: "label",
			edit: func(c string) string { return strings.Replace(c, "cerberus.node=inner", "cerberus.node=edge", 1) },
			want: Drift{Kind: DriftLabels, Subject: "inner"},
		},
		{
			name: "healthcheck retries",
			edit: func(c string) string { return strings.Replace(c, "retries: 3", "retries: 9", 1) },
			want: Drift{Kind: DriftHealthcheck, Subject: "inner"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edited := tt.edit(content)
			require.NotEqual(t, content, edited, "edit must change the descriptor")

			desc, err := ParseDescriptor([]byte(edited))
			require.NoError(t, err)

			drift := Compare(topo, desc)
			require.Len(t, drift, 1, "%v", drift)
			assert.Equal(t, tt.want.Kind, drift[0].Kind)
			assert.Equal(t, tt.want.Subject, drift[0].Subject)
			if tt.want.Want != "" {
				assert.Equal(t, tt.want, drift[0])
			}
		})
	}
}

func TestCompare_ProxyOverridesHaveNoDrift(t *testing.T) {
	topo := resolveDocument(t, `
[project]
name = "acme"

[volumes.certs]
driver = "local"

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
volumes = ["certs:/etc/certs:ro"]
restart = "always"

[proxies.environment]
TZ = "UTC"
PRICE = "$5"

[proxies.healthcheck]
test = ["CMD", "caddy", "version"]
interval = "1m"
`)

	desc, err := ParseDescriptor([]byte(renderedDescriptor(t, topo)))
	require.NoError(t, err)
	assert.Empty(t, Compare(topo, desc))

	desc.Volumes = nil
	assert.Contains(t, Compare(topo, desc), Drift{Kind: DriftMissingVolume, Subject: "certs"})
}

func TestCompare_VolumeDriver(t *testing.T) {
	topo := resolveDocument(t, `
[project]
name = "acme"

[volumes.certs]
driver = "local"
`)

	desc, err := ParseDescriptor([]byte(strings.Replace(renderedDescriptor(t, topo), "driver: local", "driver: nfs", 1)))
	require.NoError(t, err)
	assert.Equal(t, []Drift{{Kind: DriftVolumeDriver, Subject: "certs", Want: "local", Got: "nfs"}}, Compare(topo, desc))
}

// =============================================================================
// Drift Formatting Tests
// =============================================================================

func TestDrift_String(t *testing.T) {
	assert.Equal(t, "missing-service: web is not declared",
		Drift{Kind: DriftMissingService, Subject: "web"}.String())
	assert.Equal(t, "unexpected-service: old is not part of the topology",
		Drift{Kind: DriftUnexpectedService, Subject: "old"}.String())
	assert.Equal(t, `subnet: back-net: want "10.101.0.0/16", got "10.0.0.0/8"`,
		Drift{Kind: DriftSubnet, Subject: "back-net", Want: "10.101.0.0/16", Got: "10.0.0.0/8"}.String())
}
