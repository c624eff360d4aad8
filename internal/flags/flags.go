// Package flags gates optional refcheck behaviour behind named switches read
// from the "flags" section of the config file.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/refcheck/internal/log"
)

// FlagSessionPersistence stores running sessions and the selection in the
// SQLite state database. When off, rediscovery relies on the server's
// active-session list alone.
const FlagSessionPersistence = "session-persistence"

// known lists every flag this build understands with its default value.
var known = map[string]bool{
	FlagSessionPersistence: true,
}

// Defaults returns the default value of every known flag.
func Defaults() map[string]bool {
	return maps.Clone(known)
}

// Known returns the sorted names of all known flags.
func Known() []string {
	return slices.Sorted(maps.Keys(known))
}

// Registry resolves flag values. Configured values win over defaults; a
// name that is neither configured nor known reads as off.
type Registry struct {
	values map[string]bool
}

// New builds a Registry from configured values layered over Defaults.
// Configured names the build does not know are logged and kept.
func New(configured map[string]bool) *Registry {
	values := Defaults()
	for name, on := range configured {
		if _, ok := known[name]; !ok {
			log.Warn(log.CatConfig, "ignoring unknown feature flag", "flag", name)
		}
		values[name] = on
	}
	log.Debug(log.CatConfig, "feature flags resolved", "flags", values)
	return &Registry{values: values}
}

// Enabled reports whether name is on. A nil Registry has every flag off.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	return r.values[name]
}

// All returns a copy of the resolved values.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.values)
}
