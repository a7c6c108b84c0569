package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Catalog renders a fresh snapshot of the registry. Methods keep insertion order.
func (r *Registry) Catalog() *Catalog {
	methods := make(Methods, 0, len(r.order))
	for _, cmd := range r.order {
		params := make([]string, len(cmd.Params))
		copy(params, cmd.Params)
		methods = append(methods, MethodInfo{
			Name:   cmd.Name,
			Help:   cmd.Help,
			Regex:  cmd.Pattern.Source(),
			Params: params,
			Path:   cmd.Name,
		})
	}
	return &Catalog{
		Namespace:     r.config.Namespace,
		Help:          r.config.Help,
		ErrorResponse: r.config.ErrorResponse,
		Methods:       methods,
	}
}

// Methods is an ordered set of catalog entries. It encodes as a JSON object
// keyed by command name, preserving order in both directions.
type Methods []MethodInfo

// Get returns the entry named name.
func (m Methods) Get(name string) (MethodInfo, bool) {
	for _, mi := range m {
		if mi.Name == name {
			return mi, true
		}
	}
	return MethodInfo{}, false
}

// Names returns the command names in order.
func (m Methods) Names() []string {
	out := make([]string, len(m))
	for i, mi := range m {
		out[i] = mi.Name
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (m Methods) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, mi := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(mi.Name)
		if err != nil {
			return nil, err
		}
		if mi.Params == nil {
			mi.Params = []string{}
		}
		val, err := json.Marshal(mi)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Methods) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("registry:catalog - methods must be an object, got %v", tok)
	}

	out := Methods{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("registry:catalog - unexpected key %v", tok)
		}
		var mi MethodInfo
		if err := dec.Decode(&mi); err != nil {
			return fmt.Errorf("registry:catalog - method %q: %w", name, err)
		}
		mi.Name = name
		if mi.Params == nil {
			mi.Params = []string{}
		}
		out = append(out, mi)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}
