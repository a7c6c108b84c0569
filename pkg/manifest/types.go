// Package manifest loads the declarative command set a chatops service exposes
// and builds a registry from it.
package manifest

// SupportedVersions is the constraint a manifest version must satisfy.
const SupportedVersions = "^1.0.0"

// CommandSpec declares one chat command. Params lists the declared params;
// omitted means every named group. Handler names an entry of the built-in
// handler table. Require lists params that must be present before the handler
// runs, and RoomOnly rejects invocations that carry no room.
type CommandSpec struct {
	Name     string   `json:"name"`
	Pattern  string   `json:"pattern"`
	Help     string   `json:"help,omitempty"`
	Params   []string `json:"params,omitempty"`
	Handler  string   `json:"handler"`
	Require  []string `json:"require,omitempty"`
	RoomOnly bool     `json:"room_only,omitempty"`
}

// Manifest is the root manifest document.
type Manifest struct {
	Version       string        `json:"version"`
	Namespace     string        `json:"namespace"`
	Help          string        `json:"help,omitempty"`
	ErrorResponse string        `json:"error_response,omitempty"`
	Commands      []CommandSpec `json:"commands"`
}

// Get returns the command spec named name, or nil.
func (m *Manifest) Get(name string) *CommandSpec {
	for i := range m.Commands {
		if m.Commands[i].Name == name {
			return &m.Commands[i]
		}
	}
	return nil
}

// Names returns the command names in declaration order.
func (m *Manifest) Names() []string {
	out := make([]string, len(m.Commands))
	for i, c := range m.Commands {
		out[i] = c.Name
	}
	return out
}
