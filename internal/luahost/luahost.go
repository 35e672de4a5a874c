// Package luahost is the narrow seam for the scripting host named as
// out-of-scope in spec.md §1: mission/vendor/NPC-talk scripts would run
// here in a full deployment. fusioncore ships only the Host interface plus
// a NoopHost so call sites (NPC interact, mission completion) have
// something to invoke without requiring an embedded Lua VM in this module.
package luahost

// Host runs a named script with an opaque argument bag and returns an
// opaque result bag. A real implementation would embed a Lua VM (gopher-lua
// or similar) and bind it against the entity map and shard state; neither
// is part of this module.
type Host interface {
	Run(script string, args map[string]any) (map[string]any, error)
}

// NoopHost satisfies Host by doing nothing, for tests and for deployments
// that carry no scripted content.
type NoopHost struct{}

func (NoopHost) Run(string, map[string]any) (map[string]any, error) {
	return nil, nil
}

var _ Host = NoopHost{}
