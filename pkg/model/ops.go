package model

import (
	"fmt"
	"math"
	"slices"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
	"github.com/wildfly/wildfly-core-sub044/pkg/value"
)

// call is one operation invocation.
type call struct {
	op     string
	addr   *address.Address
	target *resource // nil when the address does not exist
	props  map[string]*structpb.Value
}

func (c *call) str(name string, required bool) (string, error) {
	v, ok := c.props[name]
	if !ok || isNull(v) {
		if required {
			return "", failf("WFLYCTL0155: '%s' may not be null", name)
		}
		return "", nil
	}
	return value.String(v), nil
}

func (c *call) boolean(name string) (bool, error) {
	v, ok := c.props[name]
	if !ok || isNull(v) {
		return false, nil
	}
	if b, isBool := v.GetKind().(*structpb.Value_BoolValue); isBool {
		return b.BoolValue, nil
	}
	b, valid := value.Bool(value.String(v))
	if !valid {
		return false, failf("WFLYCTL0097: wrong type for '%s', expected BOOLEAN", name)
	}
	return b, nil
}

func isNull(v *structpb.Value) bool {
	_, ok := v.GetKind().(*structpb.Value_NullValue)
	return v == nil || ok
}

type handler func(m *Model, c *call) (*structpb.Value, error)

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		OpReadResource:          (*Model).readResource,
		OpReadAttribute:         (*Model).readAttribute,
		OpWriteAttribute:        (*Model).writeAttribute,
		OpUndefineAttribute:     (*Model).undefineAttribute,
		OpReadChildrenTypes:     (*Model).readChildrenTypes,
		OpReadChildrenNames:     (*Model).readChildrenNames,
		OpReadChildrenResources: (*Model).readChildrenResources,
		OpReadOperationNames:    (*Model).readOperationNames,
		OpReadOperationDesc:     (*Model).readOperationDescription,
		OpAdd:                   (*Model).add,
		OpRemove:                (*Model).remove,
		OpDeploy:                (*Model).deploy,
		OpUndeploy:              (*Model).undeploy,
		OpFullReplaceDeployment: (*Model).fullReplaceDeployment,
		OpSuggestCapabilities:   (*Model).suggestCapabilities,
	}
}

// run executes a single, non-composite request.
func (m *Model) run(req *structpb.Struct) (*structpb.Value, error) {
	op := operation.OperationOf(req)
	if op == "" {
		return nil, failf("WFLYCTL0032: the request has no operation name")
	}
	addr, err := operation.AddressOf(req)
	if err != nil {
		return nil, failf("invalid address: %v", err)
	}
	c := &call{op: op, addr: addr, target: m.root.lookup(addr), props: make(map[string]*structpb.Value)}
	for k, v := range req.GetFields() {
		switch k {
		case operation.FieldOperation, operation.FieldAddress, operation.FieldOperationHeaders:
		default:
			c.props[k] = v
		}
	}
	if c.target == nil && op != OpAdd {
		return nil, failf("WFLYCTL0216: Management resource '%s' not found", formatAddress(addr))
	}
	h, ok := handlers[op]
	if !ok || (c.target != nil && !slices.Contains(operationNames(c.target.typ, addr.NodeName()), op)) {
		return nil, failf("WFLYCTL0031: No operation named '%s' exists at address %s", op, formatAddress(addr))
	}
	return h(m, c)
}

func (m *Model) readResource(c *call) (*structpb.Value, error) {
	recursive, err := c.boolean("recursive")
	if err != nil {
		return nil, err
	}
	depth := 0
	if recursive {
		depth = math.MaxInt32
	}
	if d, ok := c.props["recursive-depth"]; ok && !isNull(d) {
		depth = int(d.GetNumberValue())
		if s := d.GetStringValue(); s != "" {
			if _, err := fmt.Sscan(s, &depth); err != nil {
				return nil, failf("WFLYCTL0097: wrong type for 'recursive-depth', expected INT")
			}
		}
	}
	return c.target.value(depth), nil
}

// attribute resolves the name property against the target's type.
func (m *Model) attribute(c *call) (string, Attribute, error) {
	name, err := c.str("name", true)
	if err != nil {
		return "", Attribute{}, err
	}
	t, typed := types[c.target.typ]
	attr, known := t.attributes[name]
	if _, set := c.target.attrs[name]; !known && !set && (typed || c.op != OpWriteAttribute) {
		return "", Attribute{}, failf("WFLYCTL0201: Unknown attribute '%s'", name)
	}
	return name, attr, nil
}

func (m *Model) readAttribute(c *call) (*structpb.Value, error) {
	name, _, err := m.attribute(c)
	if err != nil {
		return nil, err
	}
	if v, ok := c.target.attrs[name]; ok {
		return v, nil
	}
	return structpb.NewNullValue(), nil
}

func (m *Model) writeAttribute(c *call) (*structpb.Value, error) {
	name, attr, err := m.attribute(c)
	if err != nil {
		return nil, err
	}
	v, ok := c.props["value"]
	if !ok || isNull(v) {
		if attr.Required {
			return nil, failf("WFLYCTL0155: '%s' may not be null", name)
		}
		delete(c.target.attrs, name)
		return nil, nil
	}
	if err := m.checkValue(name, attr, v); err != nil {
		return nil, err
	}
	c.target.attrs[name] = v
	return nil, nil
}

func (m *Model) undefineAttribute(c *call) (*structpb.Value, error) {
	name, attr, err := m.attribute(c)
	if err != nil {
		return nil, err
	}
	if attr.Required {
		return nil, failf("WFLYCTL0155: '%s' may not be null", name)
	}
	delete(c.target.attrs, name)
	return nil, nil
}

// checkValue validates v against attr's allowed values and capability
// reference.
func (m *Model) checkValue(name string, attr Attribute, v *structpb.Value) error {
	s := value.String(v)
	if len(attr.Allowed) > 0 && !slices.Contains(attr.Allowed, s) {
		return failf("WFLYCTL0248: Invalid value %s for %s; legal values are %v", s, name, attr.Allowed)
	}
	if attr.Capability != "" && !slices.Contains(m.capabilities(attr.Capability), s) {
		return failf("WFLYCTL0369: Required capabilities are not available: %s.%s", attr.Capability, s)
	}
	switch attr.Type {
	case "BOOLEAN":
		if _, ok := v.GetKind().(*structpb.Value_BoolValue); !ok {
			if _, valid := value.Bool(s); !valid {
				return failf("WFLYCTL0097: wrong type for '%s', expected BOOLEAN", name)
			}
		}
	case "INT":
		if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
			return failf("WFLYCTL0097: wrong type for '%s', expected INT", name)
		}
	}
	return nil
}

func stringList(items []string) *structpb.Value {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(items))}
	for _, s := range items {
		list.Values = append(list.Values, str(s))
	}
	return structpb.NewListValue(list)
}

func (m *Model) readChildrenTypes(c *call) (*structpb.Value, error) {
	return stringList(c.target.childTypes()), nil
}

func (m *Model) childType(c *call) (string, error) {
	t, err := c.str("child-type", true)
	if err != nil {
		return "", err
	}
	if _, ok := c.target.children[t]; !ok {
		return "", failf("WFLYCTL0206: No known child type named %s", t)
	}
	return t, nil
}

func (m *Model) readChildrenNames(c *call) (*structpb.Value, error) {
	t, err := m.childType(c)
	if err != nil {
		return nil, err
	}
	return stringList(c.target.childNames(t)), nil
}

func (m *Model) readChildrenResources(c *call) (*structpb.Value, error) {
	t, err := m.childType(c)
	if err != nil {
		return nil, err
	}
	recursive, err := c.boolean("recursive")
	if err != nil {
		return nil, err
	}
	depth := 0
	if recursive {
		depth = math.MaxInt32
	}
	fields := make(map[string]*structpb.Value)
	for name, child := range c.target.children[t] {
		fields[name] = child.value(depth)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
}

func (m *Model) readOperationNames(c *call) (*structpb.Value, error) {
	return stringList(operationNames(c.target.typ, c.addr.NodeName())), nil
}

func (m *Model) readOperationDescription(c *call) (*structpb.Value, error) {
	name, err := c.str("name", true)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(operationNames(c.target.typ, c.addr.NodeName()), name) {
		return nil, failf("WFLYCTL0031: No operation named '%s' exists at address %s", name, formatAddress(c.addr))
	}
	desc, _ := describe(name, c.target.typ)
	return desc, nil
}

func (m *Model) add(c *call) (*structpb.Value, error) {
	if c.target != nil {
		return nil, failf("WFLYCTL0212: Duplicate resource %s", formatAddress(c.addr))
	}
	if c.addr.IsEmpty() {
		return nil, failf("WFLYCTL0212: Duplicate resource []")
	}
	typ, name := c.addr.NodeType(), c.addr.NodeName()
	parentAddr := c.addr.Clone()
	_ = parentAddr.ToParentNode()
	parent := m.root.lookup(parentAddr)
	if parent == nil {
		return nil, failf("WFLYCTL0175: Resource %s does not exist; a resource at address %s cannot be created until all ancestor resources have been added",
			formatAddress(parentAddr), formatAddress(c.addr))
	}
	if _, ok := parent.children[typ]; !ok {
		return nil, failf("WFLYCTL0158: Operation handler for 'add' cannot function at %s: no child type %s", formatAddress(c.addr), typ)
	}
	t, typed := types[typ]
	res := newResource(typ, t.children...)
	for k, v := range c.props {
		attr, known := t.attributes[k]
		if typed && !known {
			return nil, failf("WFLYCTL0201: Unknown attribute '%s'", k)
		}
		if err := m.checkValue(k, attr, v); err != nil {
			return nil, err
		}
		res.attrs[k] = v
	}
	for k, attr := range t.attributes {
		if _, ok := res.attrs[k]; attr.Required && !ok {
			return nil, failf("WFLYCTL0155: '%s' may not be null", k)
		}
	}
	if typ == "deployment" {
		if err := m.addDeployment(parent, name, res); err != nil {
			return nil, err
		}
	}
	parent.add(typ, name, res)
	return nil, nil
}

// addDeployment fills deployment defaults. A deployment under a server
// group references content that must already exist at the root.
func (m *Model) addDeployment(parent *resource, name string, res *resource) error {
	if parent.typ == "server-group" {
		if m.root.child("deployment", name) == nil {
			return failf("WFLYDC0072: No deployment content with name %s found", name)
		}
	} else if _, ok := res.attrs["content"]; !ok {
		return failf("WFLYCTL0155: 'content' may not be null")
	}
	if _, ok := res.attrs["runtime-name"]; !ok {
		res.attrs["runtime-name"] = str(name)
	}
	if _, ok := res.attrs["enabled"]; !ok {
		res.attrs["enabled"] = boolean(false)
	}
	return nil
}

func (m *Model) remove(c *call) (*structpb.Value, error) {
	if c.addr.IsEmpty() {
		return nil, failf("WFLYCTL0031: No operation named 'remove' exists at address []")
	}
	typ, name := c.addr.NodeType(), c.addr.NodeName()
	parentAddr := c.addr.Clone()
	_ = parentAddr.ToParentNode()
	parent := m.root.lookup(parentAddr)
	if typ == "deployment" && parentAddr.IsEmpty() {
		for _, g := range m.root.childNames("server-group") {
			if m.root.child("server-group", g).child("deployment", name) != nil {
				return nil, failf("WFLYDC0071: Cannot remove deployment %s from the domain as it is still used by server groups [%s]", name, g)
			}
		}
	}
	delete(parent.children[typ], name)
	return nil, nil
}

func (m *Model) deploy(c *call) (*structpb.Value, error) {
	c.target.attrs["enabled"] = boolean(true)
	return nil, nil
}

func (m *Model) undeploy(c *call) (*structpb.Value, error) {
	c.target.attrs["enabled"] = boolean(false)
	return nil, nil
}

func (m *Model) fullReplaceDeployment(c *call) (*structpb.Value, error) {
	name, err := c.str("name", true)
	if err != nil {
		return nil, err
	}
	content, ok := c.props["content"]
	if !ok || isNull(content) {
		return nil, failf("WFLYCTL0155: 'content' may not be null")
	}
	runtimeName, err := c.str("runtime-name", false)
	if err != nil {
		return nil, err
	}
	if runtimeName == "" {
		runtimeName = name
	}
	enabled, err := c.boolean("enabled")
	if err != nil {
		return nil, err
	}
	if old := m.root.child("deployment", name); old != nil {
		if _, set := c.props["enabled"]; !set {
			enabled = old.attrs["enabled"].GetBoolValue()
		}
	} else if m.domain {
		return nil, failf("WFLYDC0072: No deployment content with name %s found", name)
	}
	m.root.add("deployment", name, newResource("deployment")).
		set("content", content).
		set("runtime-name", str(runtimeName)).
		set("enabled", boolean(enabled))
	return nil, nil
}

// capabilities returns the names registered for capability.
func (m *Model) capabilities(capability string) []string {
	var out []string
	m.root.walk(func(typ, name string, _ *resource) {
		if types[typ].capability == capability && !slices.Contains(out, name) {
			out = append(out, name)
		}
	})
	slices.Sort(out)
	return out
}

func (m *Model) suggestCapabilities(c *call) (*structpb.Value, error) {
	name, err := c.str("name", true)
	if err != nil {
		return nil, err
	}
	return stringList(m.capabilities(name)), nil
}
