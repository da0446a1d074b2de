package topology

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeNames(nodes []Node) []string {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}

// =============================================================================
// SortNodes Tests
// =============================================================================

func TestSortNodes_Empty(t *testing.T) {
	result, err := SortNodes(nil)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestSortNodes_NoDependenciesKeepsInputOrder(t *testing.T) {
	nodes := []Node{{Name: "web"}, {Name: "api"}, {Name: "db"}}

	result, err := SortNodes(nodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"web", "api", "db"}, nodeNames(result))
}

func TestSortNodes_LinearDependencies(t *testing.T) {
	nodes := []Node{
		{Name: "edge", DependsOn: []string{AnubisName}},
		{Name: "inner"},
		{Name: AnubisName, DependsOn: []string{"inner"}},
	}

	result, err := SortNodes(nodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"inner", AnubisName, "edge"}, nodeNames(result))
}

func TestSortNodes_ReadyNodesFollowInputOrder(t *testing.T) {
	// b and c both become ready after a; c was listed first.
	nodes := []Node{
		{Name: "c", DependsOn: []string{"a"}},
		{Name: "b", DependsOn: []string{"a"}},
		{Name: "a"},
	}

	result, err := SortNodes(nodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, nodeNames(result))
}

func TestSortNodes_DuplicateEdges(t *testing.T) {
	nodes := []Node{
		{Name: "edge", DependsOn: []string{"inner", "inner"}},
		{Name: "inner"},
	}

	result, err := SortNodes(nodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"inner", "edge"}, nodeNames(result))
}

func TestSortNodes_UnknownDependency(t *testing.T) {
	nodes := []Node{{Name: "edge", DependsOn: []string{"ghost"}}}

	_, err := SortNodes(nodes)
	require.Error(t, err)

	var topoErr *TopologyError
	require.True(t, errors.As(err, &topoErr))
	assert.Equal(t, ErrorUnresolvable, topoErr.Kind)
	assert.Equal(t, []string{"edge", "ghost"}, topoErr.Nodes)
}

func TestSortNodes_Cycle(t *testing.T) {
	nodes := []Node{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"c"}},
		{Name: "c", DependsOn: []string{"a"}},
		{Name: "free"},
	}

	_, err := SortNodes(nodes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTopology))

	var topoErr *TopologyError
	require.True(t, errors.As(err, &topoErr))
	assert.Equal(t, ErrorCycle, topoErr.Kind)
	// a -> b -> c -> a: the closing edge is c -> a.
	assert.Equal(t, []string{"c", "a"}, topoErr.Nodes)
	assert.Contains(t, err.Error(), "c -> a")
}

func TestSortNodes_SelfLoop(t *testing.T) {
	_, err := SortNodes([]Node{{Name: "a", DependsOn: []string{"a"}}})

	var topoErr *TopologyError
	require.True(t, errors.As(err, &topoErr))
	assert.Equal(t, []string{"a", "a"}, topoErr.Nodes)
}
