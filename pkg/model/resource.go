package model

import (
	"maps"
	"slices"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
)

// resource is one node of the management tree. A child type registered
// with no children keeps an empty map so it still shows up in
// read-children-types.
type resource struct {
	typ      string
	attrs    map[string]*structpb.Value
	children map[string]map[string]*resource
}

func newResource(typ string, childTypes ...string) *resource {
	r := &resource{
		typ:      typ,
		attrs:    make(map[string]*structpb.Value),
		children: make(map[string]map[string]*resource),
	}
	for _, t := range childTypes {
		r.children[t] = make(map[string]*resource)
	}
	return r
}

func (r *resource) clone() *resource {
	c := &resource{
		typ:      r.typ,
		attrs:    make(map[string]*structpb.Value, len(r.attrs)),
		children: make(map[string]map[string]*resource, len(r.children)),
	}
	for k, v := range r.attrs {
		c.attrs[k] = proto.Clone(v).(*structpb.Value)
	}
	for t, named := range r.children {
		cm := make(map[string]*resource, len(named))
		for n, child := range named {
			cm[n] = child.clone()
		}
		c.children[t] = cm
	}
	return c
}

func (r *resource) child(typ, name string) *resource {
	return r.children[typ][name]
}

// add registers child under typ/name, declaring typ when needed.
func (r *resource) add(typ, name string, child *resource) *resource {
	if r.children[typ] == nil {
		r.children[typ] = make(map[string]*resource)
	}
	r.children[typ][name] = child
	return child
}

func (r *resource) childTypes() []string {
	return slices.Sorted(maps.Keys(r.children))
}

func (r *resource) childNames(typ string) []string {
	return slices.Sorted(maps.Keys(r.children[typ]))
}

func (r *resource) set(name string, v *structpb.Value) *resource {
	r.attrs[name] = v
	return r
}

// value renders the resource the way read-resource reports it: attributes
// plus one entry per child type. Children are expanded only while depth
// is positive; otherwise every child is listed with an undefined value.
func (r *resource) value(depth int) *structpb.Value {
	fields := make(map[string]*structpb.Value, len(r.attrs)+len(r.children))
	for k, v := range r.attrs {
		fields[k] = v
	}
	for t, named := range r.children {
		if len(named) == 0 {
			fields[t] = structpb.NewNullValue()
			continue
		}
		entries := make(map[string]*structpb.Value, len(named))
		for n, child := range named {
			if depth > 0 {
				entries[n] = child.value(depth - 1)
			} else {
				entries[n] = structpb.NewNullValue()
			}
		}
		fields[t] = structpb.NewStructValue(&structpb.Struct{Fields: entries})
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

// lookup walks addr from r. It returns nil when any node is missing.
func (r *resource) lookup(addr *address.Address) *resource {
	cur := r
	for _, n := range addr.Nodes() {
		cur = cur.child(n.Type, n.Name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// walk calls fn for every descendant of r.
func (r *resource) walk(fn func(typ, name string, res *resource)) {
	for t, named := range r.children {
		for n, child := range named {
			fn(t, n, child)
			child.walk(fn)
		}
	}
}
