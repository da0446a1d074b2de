// Package artifact renders a resolved Topology into deployment files.
//
// Rendering is pure: every artifact is produced in memory as a path
// relative to the output directory plus its content. Nothing is written
// here; the storage writer persists the result once the whole set has
// rendered, so a failed render leaves the output directory untouched.
//
// # Artifacts
//
//   - docker-compose.yaml: services, networks and volumes (BuildCompose)
//   - proxy-configs/{node}/{file}: one native config per proxy node
//   - dockerfiles/{kind}/Dockerfile: one per materialized proxy kind
//   - anubis/botPolicy.json: when Anubis is present
//
// # Usage
//
//	reg, _ := templates.New()
//	artifacts, err := artifact.Build(topo, reg)
//	if errors.Is(err, artifact.ErrRender) {
//	    // nothing was written
//	}
package artifact
