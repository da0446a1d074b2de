// Package topology resolves a project Spec into a deployment Topology.
//
// This package is the functional core of cerberus. It decides which
// containers exist, what each one waits for, which network segment it
// belongs to and what it mounts. All functions are pure (no I/O, no
// clocks, no global mutable state) and the same Spec always yields the
// same Topology, node order included.
//
// # Functions
//
//   - Classification: Classify upstreams and proxy kinds (ClassifyUpstream, Eligibility)
//   - Resolution: Build the node set and dependency edges (Resolve)
//   - Ordering: Sort nodes so dependencies come first (SortNodes)
//   - Scaling: Expand declared instances into replicas (ExpandReplicas)
//   - Networks: Assign segments, address blocks and mounts (AllocateNetworks)
//
// # Usage
//
// The engine resolves a Spec once per run and hands the Topology to the
// artifact renderer:
//
//	topo, err := topology.Resolve(spec)
//	if errors.Is(err, topology.ErrTopology) {
//	    // cycle, unknown kind or name collision
//	}
//	for _, note := range topo.Notes {
//	    logger.Warn(note)
//	}
package topology
