package crash

// Register is a named 32-bit register value.
type Register struct {
	Name  string `yaml:"name" msgpack:"name"`
	Value uint32 `yaml:"value" msgpack:"value"`
}

// RegisterSet is an ordered register snapshot. Its key set is a subset of
// one architecture's register list, in that list's order.
type RegisterSet []Register

// NewRegisterSet keeps the entries of raw whose names appear in names,
// ordered as names. Unknown raw names are dropped.
func NewRegisterSet(names []string, raw map[string]uint32) RegisterSet {
	set := make(RegisterSet, 0, len(raw))
	for _, name := range names {
		if v, ok := raw[name]; ok {
			set = append(set, Register{Name: name, Value: v})
		}
	}
	return set
}

// Get returns the value of name.
func (s RegisterSet) Get(name string) (uint32, bool) {
	for _, r := range s {
		if r.Name == name {
			return r.Value, true
		}
	}
	return 0, false
}

// Map returns the set as a name → value map.
func (s RegisterSet) Map() map[string]uint32 {
	m := make(map[string]uint32, len(s))
	for _, r := range s {
		m[r.Name] = r.Value
	}
	return m
}
