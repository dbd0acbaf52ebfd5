package registry

import "github.com/artpar/nodecfg/core/schema"

// Attr is one attribute on a type's surface.
type Attr struct {
	schema.Field

	// Owner is the variant that declares the field.
	Owner string

	// Proxy marks attributes promoted from a refinement through its
	// lookup proxies. Such attributes are only backed by storage when the
	// instance is of the Owner variant (or a refinement of it).
	Proxy bool
}

// Surface is the public attribute surface of an item type.
type Surface struct {
	Type  *ItemType
	attrs []Attr
	index map[string]int
}

func newSurface(t *ItemType) *Surface {
	return &Surface{Type: t, index: make(map[string]int)}
}

// add keeps the first attribute registered for a name.
func (s *Surface) add(a Attr) {
	if _, exists := s.index[a.Name]; exists {
		return
	}
	s.index[a.Name] = len(s.attrs)
	s.attrs = append(s.attrs, a)
}

// Attr returns an attribute by name.
func (s *Surface) Attr(name string) (Attr, bool) {
	i, ok := s.index[name]
	if !ok {
		return Attr{}, false
	}
	return s.attrs[i], true
}

// Attrs returns all attributes, own fields first, then proxies.
func (s *Surface) Attrs() []Attr {
	return append([]Attr(nil), s.attrs...)
}

// Proxies returns only the promoted attributes.
func (s *Surface) Proxies() []Attr {
	var result []Attr
	for _, a := range s.attrs {
		if a.Proxy {
			result = append(result, a)
		}
	}
	return result
}
