package topology

import (
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/cerberus/internal/core/project"
)

func mustParse(t *testing.T, doc string) *project.Spec {
	t.Helper()
	spec, err := project.Parse([]byte(doc))
	require.NoError(t, err)
	return spec
}

func mustResolve(t *testing.T, doc string) *Topology {
	t.Helper()
	topo, err := Resolve(mustParse(t, doc))
	require.NoError(t, err)
	return topo
}

func mustNode(t *testing.T, topo *Topology, name string) Node {
	t.Helper()
	n, ok := topo.Node(name)
	require.True(t, ok, "node %s not found in %v", name, nodeNames(topo.Nodes))
	return n
}

func indexOf(topo *Topology, name string) int {
	for i, n := range topo.Nodes {
		if n.Name == name {
			return i
		}
	}
	return -1
}

// =============================================================================
// Test Fixtures
// =============================================================================

const twoLayerAnubisDocument = `
[project]
name = "acme"
scaling = true

[anubis]
enabled = true
target = "http://inner:80"

[[proxies]]
name = "edge"
type = "nginx"
external_port = 80
layer = 1
instances = 2
default_upstream = "http://anubis:8080"

[[proxies.routes]]
type = "direct"
domain = "static.example.com"
upstream = "http://inner:80"

[[proxies]]
name = "inner"
type = "caddy"
layer = 2

[[services]]
name = "web"
domain = "www.example.com"
upstream = "http://app:3000"

[[services]]
name = "legacy"
domain = "legacy.example.com"
upstream = "http://192.0.2.10:8080"
`

// =============================================================================
// Materialization Tests
// =============================================================================

func TestResolve_SingleCaddyProxy(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
`)

	require.Len(t, topo.Nodes, 1)
	n := topo.Nodes[0]
	assert.Equal(t, "edge", n.Name)
	assert.Equal(t, NodeProxy, n.Kind)
	assert.Equal(t, SegmentFront, n.Segment)
	assert.Equal(t, []PortMapping{{Host: 80, Container: 80}}, n.Ports)
	assert.Empty(t, n.DependsOn)
	assert.False(t, topo.HasAnubis())
	assert.Equal(t, []project.ProxyKind{project.KindCaddy}, topo.ProxyKinds())
}

func TestResolve_NginxWithoutAnubis(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"

[anubis]
enabled = false

[[proxies]]
name = "edge"
type = "nginx"
external_port = 80
`)

	assert.Empty(t, topo.Nodes)
	assert.False(t, topo.HasAnubis())
	require.Len(t, topo.Notes, 1)
	assert.Contains(t, topo.Notes[0], "proxy edge skipped")
}

func TestResolve_NginxWithAnubis(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"

[anubis]
enabled = true

[[proxies]]
name = "edge"
type = "nginx"
external_port = 80
default_upstream = "http://anubis:8080"
`)

	require.True(t, topo.HasAnubis())
	edge := mustNode(t, topo, "edge")
	anubis := mustNode(t, topo, AnubisName)

	assert.Equal(t, project.KindNginx, edge.Proxy.Kind)
	assert.Equal(t, []string{AnubisName}, edge.DependsOn)
	assert.Empty(t, anubis.DependsOn, "a single layer adds no anubis edges")
	assert.Less(t, indexOf(topo, AnubisName), indexOf(topo, "edge"))
	assert.Equal(t, SegmentBack, anubis.Segment)
}

func TestResolve_SimpleKindsAlwaysMaterialize(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		spec := &project.Spec{
			Project: project.Project{Name: "acme"},
			Anubis: project.Anubis{
				Enabled:    enabled,
				Bind:       project.DefaultAnubisBind,
				Target:     project.DefaultAnubisTarget,
				Difficulty: project.DefaultAnubisDifficulty,
			},
			Proxies: []project.Proxy{
				{Name: "c", Kind: project.KindCaddy, ExternalPort: 80, InternalPort: 80, Layer: 1, Instances: 1, MaxConnections: 1024},
				{Name: "h", Kind: project.KindHAProxy, InternalPort: 80, Layer: 2, Instances: 1, MaxConnections: 1024},
				{Name: "t", Kind: project.KindTraefik, InternalPort: 80, Layer: 2, Instances: 1, MaxConnections: 1024},
			},
		}

		topo, err := Resolve(spec)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "h", "t"}, nodeNames(topo.Nodes), "anubis enabled=%v", enabled)
		assert.False(t, topo.HasAnubis(), "anubis needs an nginx proxy")
	}
}

func TestResolve_AnubisEnabledWithoutNginx(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"

[anubis]
enabled = true

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
default_upstream = "http://anubis:8080"
`)

	_, ok := topo.Node(AnubisName)
	assert.False(t, ok)
	assert.Empty(t, mustNode(t, topo, "edge").DependsOn)
	assert.Contains(t, topo.Notes, "anubis is enabled but no nginx proxy is deployed; anubis skipped")
}

// =============================================================================
// Edge Rule Tests
// =============================================================================

func TestResolve_TwoLayersWithoutAnubis(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
default_upstream = "http://inner:80"

[[proxies]]
name = "inner"
type = "haproxy"
layer = 2
`)

	edge := mustNode(t, topo, "edge")
	inner := mustNode(t, topo, "inner")

	assert.Empty(t, inner.DependsOn)
	assert.Equal(t, []string{"inner"}, edge.DependsOn)
	assert.Equal(t, []string{"inner", "edge"}, nodeNames(topo.Nodes))
	assert.Equal(t, SegmentFront, edge.Segment)
	assert.Equal(t, SegmentBack, inner.Segment)
}

func TestResolve_TwoLayersWithAnubis(t *testing.T) {
	topo := mustResolve(t, twoLayerAnubisDocument)

	edge := mustNode(t, topo, "edge")
	inner := mustNode(t, topo, "inner")
	anubis := mustNode(t, topo, AnubisName)

	assert.Empty(t, inner.DependsOn)
	assert.Equal(t, []string{"inner"}, anubis.DependsOn)
	assert.Equal(t, []string{AnubisName}, edge.DependsOn, "the route to inner is not a default upstream")

	assert.Equal(t, []string{"inner", AnubisName, "edge", "edge-2", "web"}, nodeNames(topo.Nodes))
}

func TestResolve_RouteReferencingAnubisAddsEdge(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"

[anubis]
enabled = true

[[proxies]]
name = "edge"
type = "nginx"
external_port = 80

[[proxies.routes]]
type = "conditional"
domain = "api.example.com"
upstream = "http://anubis:8080"
bypass_paths = ["/health"]
`)

	assert.Equal(t, []string{AnubisName}, mustNode(t, topo, "edge").DependsOn)
}

func TestResolve_SelfReferenceIgnored(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
default_upstream = "http://edge:80"
`)

	assert.Empty(t, mustNode(t, topo, "edge").DependsOn)
}

func TestResolve_WholeTokenMatching(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
default_upstream = "http://proxy-10:80"

[[proxies]]
name = "proxy-1"
type = "caddy"
layer = 2

[[proxies]]
name = "proxy-10"
type = "caddy"
layer = 2
`)

	assert.Equal(t, []string{"proxy-10"}, mustNode(t, topo, "edge").DependsOn)
}

func TestResolve_CycleThroughAnubis(t *testing.T) {
	_, err := Resolve(mustParse(t, `
[project]
name = "acme"

[anubis]
enabled = true

[[proxies]]
name = "edge"
type = "nginx"
external_port = 80
default_upstream = "http://anubis:8080"

[[proxies]]
name = "inner"
type = "caddy"
layer = 2
default_upstream = "http://anubis:8080"
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTopology))

	var topoErr *TopologyError
	require.True(t, errors.As(err, &topoErr))
	assert.Equal(t, ErrorCycle, topoErr.Kind)
	assert.Equal(t, []string{"inner", AnubisName}, topoErr.Nodes)
}

// =============================================================================
// Scaling Tests
// =============================================================================

func TestResolve_ScalingExpandsReplicas(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"
scaling = true

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
instances = 3
default_upstream = "http://inner:80"

[[proxies]]
name = "inner"
type = "caddy"
layer = 2
`)

	assert.Equal(t, []string{"inner", "edge", "edge-2", "edge-3"}, nodeNames(topo.Nodes))

	base := mustNode(t, topo, "edge")
	assert.Equal(t, []PortMapping{{Host: 80, Container: 80}}, base.Ports)
	assert.NotContains(t, base.Environment, "INSTANCE_ID=1")
	for _, env := range base.Environment {
		assert.NotContains(t, env, "INSTANCE_ID")
	}

	for i, name := range []string{"edge-2", "edge-3"} {
		replica := mustNode(t, topo, name)
		instance := i + 2
		assert.Empty(t, replica.Ports, name)
		assert.Equal(t, 0, replica.Proxy.ExternalPort, name)
		assert.Equal(t, 80, replica.Proxy.InternalPort, name)
		assert.Equal(t, "edge", replica.Proxy.Base, name)
		assert.Equal(t, []string{"inner"}, replica.DependsOn, "replicas inherit the base edges")
		assert.Equal(t, instance, replica.Proxy.InstanceID, name)
		assert.Contains(t, replica.Environment, "INSTANCE_ID="+strconv.Itoa(instance))
		assert.Equal(t, SegmentFront, replica.Segment, "layer-1 replicas stay on the front segment")
	}
}

func TestResolve_ScalingDisabledDeploysOneInstance(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"
scaling = false

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
instances = 3
`)

	assert.Equal(t, []string{"edge"}, nodeNames(topo.Nodes))
	require.Len(t, topo.Notes, 1)
	assert.Contains(t, topo.Notes[0], "scaling is disabled")
}

func TestResolve_ReplicaNameCollision(t *testing.T) {
	_, err := Resolve(mustParse(t, `
[project]
name = "acme"
scaling = true

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
instances = 2

[[proxies]]
name = "edge-2"
type = "caddy"
external_port = 81
`))
	require.Error(t, err)

	var topoErr *TopologyError
	require.True(t, errors.As(err, &topoErr))
	assert.Equal(t, ErrorDuplicateName, topoErr.Kind)
	assert.Contains(t, topoErr.Nodes, "edge-2")
}

// =============================================================================
// Backend Service Tests
// =============================================================================

func TestResolve_BackendServices(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80

[[services]]
name = "web"
domain = "www.example.com"
upstream = "http://app:3000"

[[services]]
name = "web-admin"
domain = "admin.example.com"
upstream = "http://app:3001"

[[services]]
name = "legacy"
domain = "legacy.example.com"
upstream = "http://192.0.2.10:8080"

[[services]]
name = "loop"
domain = "loop.example.com"
upstream = "http://edge:80"

[[services]]
name = "api"
domain = "api.example.com"
upstream = "api:9000"
`)

	assert.Equal(t, []string{"edge", "web", "api"}, nodeNames(topo.Nodes))

	web := mustNode(t, topo, "web")
	assert.Equal(t, NodeBackend, web.Kind)
	assert.Equal(t, BackendImage, web.Image)
	assert.Equal(t, []string{"app"}, web.Aliases)
	assert.Equal(t, SegmentBack, web.Segment)
	assert.Equal(t, []Segment{SegmentBack}, web.Networks)
	require.NotNil(t, web.Healthcheck)
	assert.Equal(t, HealthRetries, web.Healthcheck.Retries)

	api := mustNode(t, topo, "api")
	assert.Empty(t, api.Aliases, "host equals the service name")

	require.Len(t, topo.Services, 5)
}

func TestResolve_ServiceNameCollidesWithProxy(t *testing.T) {
	spec := &project.Spec{
		Project: project.Project{Name: "acme"},
		Proxies: []project.Proxy{
			{Name: "edge", Kind: project.KindCaddy, ExternalPort: 80, InternalPort: 80, Layer: 1, Instances: 1, MaxConnections: 1024},
		},
		Services: []project.Service{
			{Name: "edge", Domain: "www.example.com", Upstream: "http://app:3000"},
		},
	}

	_, err := Resolve(spec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, project.ErrDuplicateName))
	assert.False(t, errors.Is(err, ErrTopology))
}

func TestResolve_ProxyUpstreamWithoutService(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
default_upstream = "http://app:3000"

[[proxies.routes]]
type = "direct"
domain = "api.example.com"
upstream = "http://api.internal:9000"

[[proxies.routes]]
type = "direct"
domain = "static.example.com"
upstream = "http://app:3000"
`)

	assert.Equal(t, []string{"edge", "app", "api-internal"}, nodeNames(topo.Nodes))

	app := mustNode(t, topo, "app")
	assert.Equal(t, NodeBackend, app.Kind)
	assert.Empty(t, app.Aliases)
	assert.Equal(t, []Segment{SegmentBack}, app.Networks)

	api := mustNode(t, topo, "api-internal")
	assert.Equal(t, []string{"api.internal"}, api.Aliases)

	require.Len(t, topo.Notes, 2)
	assert.Contains(t, topo.Notes[0], "upstream host app of proxy edge has no service")
}

func TestResolve_ProxyUpstreamOwnedByService(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
default_upstream = "http://app:3000"

[[services]]
name = "web"
domain = "www.example.com"
upstream = "http://app:3000"
`)

	assert.Equal(t, []string{"edge", "web"}, nodeNames(topo.Nodes))
	assert.Equal(t, []string{"app"}, mustNode(t, topo, "web").Aliases)
	assert.Empty(t, topo.Notes)
}

func TestResolve_SkippedProxyUpstreamGetsNoContainer(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"

[[proxies]]
name = "edge"
type = "nginx"
external_port = 80
default_upstream = "http://app:3000"
`)

	assert.Empty(t, topo.Nodes)
}

// =============================================================================
// Container Override Tests
// =============================================================================

func TestResolve_ProxyOverrides(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"
scaling = true

[volumes.certs]
driver = "local"

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
instances = 2
volumes = ["certs:/etc/certs:ro", "./static:/srv"]
restart = "always"

[proxies.environment]
TZ = "UTC"
MAX_CONNECTIONS = "64"

[proxies.labels]
"cerberus.layer" = "edge"
"com.example.team" = "platform"

[proxies.healthcheck]
test = ["CMD", "caddy", "version"]
`)

	for _, name := range []string{"edge", "edge-2"} {
		n := mustNode(t, topo, name)
		assert.Equal(t, "always", n.Restart, name)
		assert.Contains(t, n.Environment, "MAX_CONNECTIONS=64", name)
		assert.NotContains(t, n.Environment, "MAX_CONNECTIONS=1024", name)
		assert.Equal(t, "TZ=UTC", n.Environment[len(n.Environment)-1], name)
		assert.Contains(t, n.Labels, "cerberus.layer=edge", name)
		assert.Contains(t, n.Labels, "com.example.team=platform", name)
		assert.Equal(t, &Healthcheck{
			Test:     []string{"CMD", "caddy", "version"},
			Interval: project.DefaultHealthInterval,
			Timeout:  project.DefaultHealthTimeout,
			Retries:  project.DefaultHealthRetries,
		}, n.Healthcheck, name)

		require.Len(t, n.Mounts, 4, name)
		assert.Equal(t, Mount{Source: "certs", Target: "/etc/certs", Mode: "ro"}, n.Mounts[2], name)
		assert.Equal(t, Mount{Source: "./static", Target: "/srv"}, n.Mounts[3], name)
	}
	assert.Contains(t, mustNode(t, topo, "edge-2").Environment, "INSTANCE_ID=2")

	assert.Equal(t, []string{"postgres_data", "redis_data", "nginx_logs", "certs"}, topo.VolumeNames())
	assert.Equal(t, Volume{Name: "certs", Driver: "local"}, topo.Volumes[3])
}

func TestResolve_UndeclaredVolumeReference(t *testing.T) {
	_, err := Resolve(mustParse(t, `
[project]
name = "acme"

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
volumes = ["certs:/etc/certs"]
`))
	require.Error(t, err)

	var cfgErr *project.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "proxies.edge.volumes[0]", cfgErr.Field)
	assert.True(t, errors.Is(err, project.ErrInvalidOverride))
}

func TestResolve_ConventionalVolumeReference(t *testing.T) {
	topo := mustResolve(t, `
[project]
name = "acme"

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
volumes = ["nginx_logs:/var/log/extra"]
`)

	assert.Equal(t, Mount{Source: "nginx_logs", Target: "/var/log/extra"}, mustNode(t, topo, "edge").Mounts[2])
}

// =============================================================================
// Error Path Tests
// =============================================================================

func TestResolve_UnknownKind(t *testing.T) {
	_, err := Resolve(mustParse(t, `
[project]
name = "acme"

[[proxies]]
name = "edge"
type = "envoy"
external_port = 80
`))
	require.Error(t, err)

	var topoErr *TopologyError
	require.True(t, errors.As(err, &topoErr))
	assert.Equal(t, ErrorUnknownKind, topoErr.Kind)
	assert.Equal(t, []string{"edge"}, topoErr.Nodes)
	assert.False(t, errors.Is(err, project.ErrInvalidConfig))
}

func TestResolve_DifficultyOutOfRangeFailsBeforeResolution(t *testing.T) {
	spec := &project.Spec{
		Project: project.Project{Name: "acme"},
		Anubis: project.Anubis{
			Enabled:    true,
			Bind:       project.DefaultAnubisBind,
			Target:     project.DefaultAnubisTarget,
			Difficulty: 15,
		},
		Proxies: []project.Proxy{
			{Name: "edge", Kind: "envoy", ExternalPort: 80, InternalPort: 80, Layer: 1, Instances: 1, MaxConnections: 1024},
		},
	}

	topo, err := Resolve(spec)
	require.Error(t, err)
	assert.Nil(t, topo)
	assert.True(t, errors.Is(err, project.ErrInvalidConfig))
	assert.True(t, errors.Is(err, project.ErrInvalidDifficulty))
	assert.False(t, errors.Is(err, ErrTopology), "validation runs before kind lookup")
}

func TestResolve_MalformedUpstream(t *testing.T) {
	_, err := Resolve(mustParse(t, `
[project]
name = "acme"

[[proxies]]
name = "edge"
type = "caddy"
external_port = 80
default_upstream = "http://:8080"
`))
	require.Error(t, err)

	var cfgErr *project.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "proxies.edge.default_upstream", cfgErr.Field)
	assert.True(t, errors.Is(err, project.ErrInvalidUpstream))
}

// =============================================================================
// Network & Mount Tests
// =============================================================================

func TestResolve_NetworksAndVolumes(t *testing.T) {
	topo := mustResolve(t, twoLayerAnubisDocument)

	assert.Equal(t, []Network{
		{Segment: SegmentFront, Name: "acme-front", Driver: "bridge", Subnet: "10.100.0.0/16"},
		{Segment: SegmentBack, Name: "acme-back", Driver: "bridge", Subnet: "10.101.0.0/16"},
	}, topo.Networks)
	assert.Equal(t, []string{"postgres_data", "redis_data", "nginx_logs"}, topo.VolumeNames())

	edge := mustNode(t, topo, "edge")
	assert.Equal(t, []Segment{SegmentFront, SegmentBack}, edge.Networks)
	assert.Equal(t, []Segment{SegmentBack}, mustNode(t, topo, "inner").Networks)

	for _, n := range topo.Nodes {
		assert.Contains(t, []Segment{SegmentFront, SegmentBack}, n.Segment, n.Name)
		assert.Equal(t, n.Segment, n.Networks[0], n.Name)
	}
}

func TestResolve_Mounts(t *testing.T) {
	topo := mustResolve(t, twoLayerAnubisDocument)

	edge2 := mustNode(t, topo, "edge-2")
	assert.Equal(t, []Mount{
		{Source: "./proxy-configs/edge-2/nginx.conf", Target: "/etc/nginx/nginx.conf", Mode: "ro"},
		{Source: "./logs/edge-2", Target: "/var/log/nginx", Mode: "rw"},
	}, edge2.Mounts)

	anubis := mustNode(t, topo, AnubisName)
	assert.Equal(t, []Mount{
		{Source: "./anubis/botPolicy.json", Target: project.DefaultAnubisPolicyFile, Mode: "ro"},
	}, anubis.Mounts)

	assert.Empty(t, mustNode(t, topo, "web").Mounts)
}

func TestResolve_ContainerData(t *testing.T) {
	topo := mustResolve(t, twoLayerAnubisDocument)

	edge := mustNode(t, topo, "edge")
	assert.Equal(t, "acme-nginx:latest", edge.Image)
	assert.Equal(t, "./dockerfiles/nginx", edge.Build)
	assert.Equal(t, []string{"PROXY_LAYER=1", "PROXY_TYPE=nginx", "MAX_CONNECTIONS=1024"}, edge.Environment)
	assert.Equal(t, []string{
		"cerberus.service=proxy",
		"cerberus.layer=1",
		"cerberus.type=nginx",
		"cerberus.node=edge",
	}, edge.Labels)

	anubis := mustNode(t, topo, AnubisName)
	assert.Equal(t, project.DefaultAnubisImage, anubis.Image)
	assert.Contains(t, anubis.Environment, "BIND=:8080")
	assert.Contains(t, anubis.Environment, "DIFFICULTY=5")
	assert.Contains(t, anubis.Environment, "TARGET=http://inner:80")
	assert.Contains(t, anubis.Environment, "METRICS_BIND=:9090")
	assert.Equal(t, "always", anubis.Restart)
}

// =============================================================================
// Determinism Tests
// =============================================================================

func TestResolve_Deterministic(t *testing.T) {
	first := mustResolve(t, twoLayerAnubisDocument)

	for i := 0; i < 10; i++ {
		again := mustResolve(t, twoLayerAnubisDocument)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("topology differs between runs (-first +again):\n%s", diff)
		}
	}
}

func TestResolve_DoesNotMutateSpec(t *testing.T) {
	spec := mustParse(t, twoLayerAnubisDocument)
	before := mustParse(t, twoLayerAnubisDocument)

	_, err := Resolve(spec)
	require.NoError(t, err)

	if diff := cmp.Diff(before, spec); diff != "" {
		t.Fatalf("Resolve mutated the spec (-before +after):\n%s", diff)
	}
}
