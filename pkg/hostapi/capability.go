package hostapi

import (
	"sort"
)

// APIVersion is the version of the host API contract exposed to plugins.
// Manifests may constrain it through requirements.host.
const APIVersion = "1.0.0"

// Capability names a single host operation or event stream a plugin may be
// granted access to.
type Capability string

// The fixed capability set of host API v1.
const (
	CapabilityLog          Capability = "log"
	CapabilityFSExists     Capability = "fs.exists"
	CapabilityFSReadText   Capability = "fs.readText"
	CapabilityKeychainRead Capability = "keychain.readGenericPassword"
	CapabilityHTTPRequest  Capability = "http.request"
	CapabilityJSONQuery    Capability = "json.query"
	CapabilityJSONSet      Capability = "json.set"
	CapabilityEnvGet       Capability = "env.get"
	CapabilityEvents       Capability = "events"
)

// Kind distinguishes invocable operations from event streams.
type Kind int

const (
	// KindCall is a function the plugin invokes.
	KindCall Kind = iota
	// KindEvent is a stream of host-originated events the plugin subscribes to.
	KindEvent
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindCall:
		return "call"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// CapabilityInfo describes one entry of the host API.
type CapabilityInfo struct {
	Name        Capability
	Kind        Kind
	Description string

	// Params lists argument names in positional order. The runtime binds
	// positional Lua arguments to these names.
	Params []string

	// Exclusive capabilities touch shared host resources and are
	// serialized across all plugins.
	Exclusive bool
}

var registry = map[Capability]CapabilityInfo{
	CapabilityLog: {
		Name:        CapabilityLog,
		Kind:        KindCall,
		Description: "Write a message to the host log",
		Params:      []string{"level", "message"},
		Exclusive:   true,
	},
	CapabilityFSExists: {
		Name:        CapabilityFSExists,
		Kind:        KindCall,
		Description: "Check whether a path exists (~ is expanded)",
		Params:      []string{"path"},
		Exclusive:   true,
	},
	CapabilityFSReadText: {
		Name:        CapabilityFSReadText,
		Kind:        KindCall,
		Description: "Read a file as text (~ is expanded, size limited)",
		Params:      []string{"path"},
		Exclusive:   true,
	},
	CapabilityKeychainRead: {
		Name:        CapabilityKeychainRead,
		Kind:        KindCall,
		Description: "Read a generic password from the system keychain",
		Params:      []string{"service", "account"},
		Exclusive:   true,
	},
	CapabilityHTTPRequest: {
		Name:        CapabilityHTTPRequest,
		Kind:        KindCall,
		Description: "Perform an HTTP request",
		Params:      []string{"request"},
	},
	CapabilityJSONQuery: {
		Name:        CapabilityJSONQuery,
		Kind:        KindCall,
		Description: "Query a JSON document with a gjson path",
		Params:      []string{"document", "path"},
	},
	CapabilityJSONSet: {
		Name:        CapabilityJSONSet,
		Kind:        KindCall,
		Description: "Set a value in a JSON document with an sjson path",
		Params:      []string{"document", "path", "value"},
	},
	CapabilityEnvGet: {
		Name:        CapabilityEnvGet,
		Kind:        KindCall,
		Description: "Read an environment variable",
		Params:      []string{"name"},
		Exclusive:   true,
	},
	CapabilityEvents: {
		Name:        CapabilityEvents,
		Kind:        KindEvent,
		Description: "Subscribe to host events (refresh, panel.shown, panel.hidden)",
	},
}

// Lookup returns the description of a capability by name.
func Lookup(name string) (CapabilityInfo, bool) {
	info, ok := registry[Capability(name)]
	return info, ok
}

// IsKnown reports whether name is part of the host API.
func IsKnown(name string) bool {
	_, ok := registry[Capability(name)]
	return ok
}

// Capabilities returns the full capability set sorted by name.
func Capabilities() []CapabilityInfo {
	infos := make([]CapabilityInfo, 0, len(registry))
	for _, info := range registry {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// PermissionSet is the immutable set of capabilities granted to one plugin.
// The zero value grants nothing.
type PermissionSet struct {
	granted map[Capability]struct{}
}

// NewPermissionSet builds a permission set from declared capability names.
// Names the host does not know are returned separately and not granted.
func NewPermissionSet(declared []string) (PermissionSet, []string) {
	set := PermissionSet{granted: make(map[Capability]struct{}, len(declared))}
	var unknown []string
	for _, name := range declared {
		if !IsKnown(name) {
			unknown = append(unknown, name)
			continue
		}
		set.granted[Capability(name)] = struct{}{}
	}
	return set, unknown
}

// Allows reports whether the capability was granted.
func (p PermissionSet) Allows(c Capability) bool {
	_, ok := p.granted[c]
	return ok
}

// List returns the granted capabilities sorted by name.
func (p PermissionSet) List() []Capability {
	caps := make([]Capability, 0, len(p.granted))
	for c := range p.granted {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// Len returns the number of granted capabilities.
func (p PermissionSet) Len() int {
	return len(p.granted)
}
