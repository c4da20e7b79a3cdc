package revision

// Side selects which value of a Change gets written.
type Side uint8

const (
	Before Side = iota
	After
)

// Change is a single field mutation in a state tree made of map[string]any
// and []any containers. Path keys are strings for maps and ints for slices.
// A nil value stands for an absent field.
type Change struct {
	Root   map[string]any
	Path   []any
	Before any
	After  any
}

// ApplyChange writes the selected side of change into its root. Missing
// intermediate containers are created: a map for a string key, a slice for
// an int key. A container of the wrong kind is replaced.
func ApplyChange(change Change, side Side) {
	if change.Root == nil || len(change.Path) == 0 {
		return
	}
	value := change.After
	if side == Before {
		value = change.Before
	}
	assign(change.Root, change.Path, value)
}

func assign(container any, path []any, value any) any {
	switch key := path[0].(type) {
	case string:
		m, ok := container.(map[string]any)
		if !ok {
			m = make(map[string]any)
		}
		if len(path) == 1 {
			if value == nil {
				delete(m, key)
			} else {
				m[key] = value
			}
			return m
		}
		m[key] = assign(m[key], path[1:], value)
		return m
	case int:
		s, _ := container.([]any)
		if key < 0 {
			return s
		}
		if len(path) == 1 && value == nil {
			if key < len(s) {
				s[key] = nil
			}
			return s
		}
		for len(s) <= key {
			s = append(s, nil)
		}
		if len(path) == 1 {
			s[key] = value
			return s
		}
		s[key] = assign(s[key], path[1:], value)
		return s
	default:
		return container
	}
}

// RevertChanges restores the state that preceded revisions, last change first.
func RevertChanges(revisions []*Revision) {
	for i := len(revisions) - 1; i >= 0; i-- {
		changes := revisions[i].Changes
		for j := len(changes) - 1; j >= 0; j-- {
			ApplyChange(changes[j], Before)
		}
	}
}
