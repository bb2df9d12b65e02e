package operation

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/parser"
	"github.com/wildfly/wildfly-core-sub044/pkg/value"
)

// Request field names.
const (
	FieldOperation        = "operation"
	FieldAddress          = "address"
	FieldSteps            = "steps"
	FieldOperationHeaders = "operation-headers"
	FieldName             = "name"
	FieldValue            = "value"

	Composite = "composite"
)

// Header is an operation header.
type Header interface {
	HeaderName() string
	AddTo(headers *structpb.Struct) error
}

type simpleHeader struct {
	name string
	text string
}

// NewHeader returns a header whose value is parsed like a property value.
// Empty names and values are rejected.
func NewHeader(name, text string) (Header, error) {
	if name == "" {
		return nil, errors.New("header name is missing")
	}
	if text == "" {
		return nil, fmt.Errorf("header %q has no value", name)
	}
	return &simpleHeader{name: name, text: text}, nil
}

func (h *simpleHeader) HeaderName() string { return h.name }

func (h *simpleHeader) AddTo(headers *structpb.Struct) error {
	if headers.Fields == nil {
		headers.Fields = make(map[string]*structpb.Value)
	}
	headers.Fields[h.name] = value.Parse(h.text)
	return nil
}

type property struct {
	name  string
	value *structpb.Value
}

// Builder assembles a request from an address, an operation name and
// properties.
type Builder struct {
	address *address.Address
	op      string
	props   []property
	headers []Header
}

// NewBuilder returns a builder starting at a copy of prefix.
func NewBuilder(prefix *address.Address) *Builder {
	return &Builder{address: prefix.Clone()}
}

// AddNode moves the address to the node type=name.
func (b *Builder) AddNode(nodeType, name string) {
	b.address.ToNode(nodeType, name)
}

// AddNodeType appends a node type whose name follows with AddNodeName.
func (b *Builder) AddNodeType(nodeType string) error {
	return b.address.ToNodeType(nodeType)
}

// AddNodeName names the trailing node type.
func (b *Builder) AddNodeName(name string) error {
	return b.address.ToNodeName(name)
}

// SetOperationName sets the operation name.
func (b *Builder) SetOperationName(name string) {
	b.op = name
}

// AddProperty adds a property from its command-line text, parsed as a
// structured value when possible.
func (b *Builder) AddProperty(name, text string) error {
	if name == "" {
		return parser.Errorf(-1, "property name is missing")
	}
	b.SetProperty(name, value.Parse(text))
	return nil
}

// SetProperty adds or replaces a property with a typed value.
func (b *Builder) SetProperty(name string, v *structpb.Value) {
	for i := range b.props {
		if b.props[i].name == name {
			b.props[i].value = v
			return
		}
	}
	b.props = append(b.props, property{name: name, value: v})
}

// AddHeader attaches an operation header.
func (b *Builder) AddHeader(h Header) {
	b.headers = append(b.headers, h)
}

// Build returns the request. It fails without an operation name or when
// the address ends on a node type.
func (b *Builder) Build() (*structpb.Struct, error) {
	if b.op == "" {
		return nil, parser.Errorf(-1, "the operation name is missing")
	}
	if b.address.EndsOnType() {
		return nil, parser.Errorf(-1, "the address ends on node type %q without a name", b.address.NodeType())
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldOperation: structpb.NewStringValue(b.op),
		FieldAddress:   AddressValue(b.address),
	}}
	for _, p := range b.props {
		if p.name == FieldOperation || p.name == FieldAddress || p.name == FieldOperationHeaders {
			return nil, parser.Errorf(-1, "property name %q is reserved", p.name)
		}
		req.Fields[p.name] = p.value
	}
	if err := AddHeaders(req, b.headers...); err != nil {
		return nil, err
	}
	return req, nil
}

// AddressValue encodes an address as a list of single-entry {type: name} objects.
func AddressValue(a *address.Address) *structpb.Value {
	nodes := a.Nodes()
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(nodes))}
	for _, n := range nodes {
		list.Values = append(list.Values, structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{n.Type: structpb.NewStringValue(n.Name)},
		}))
	}
	return structpb.NewListValue(list)
}

// AddressOf decodes the address of a request.
func AddressOf(req *structpb.Struct) (*address.Address, error) {
	a := &address.Address{}
	v, ok := req.GetFields()[FieldAddress]
	if !ok {
		return a, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%s is not a list", FieldAddress)
	}
	for i, n := range list.GetValues() {
		fields := n.GetStructValue().GetFields()
		if len(fields) != 1 {
			return nil, fmt.Errorf("address node %d must have exactly one type", i)
		}
		for t, name := range fields {
			if t == "" || name.GetStringValue() == "" {
				return nil, fmt.Errorf("address node %d is incomplete", i)
			}
			a.ToNode(t, name.GetStringValue())
		}
	}
	return a, nil
}

// OperationOf returns the operation name of a request.
func OperationOf(req *structpb.Struct) string {
	return req.GetFields()[FieldOperation].GetStringValue()
}

// AddHeaders merges headers into the operation-headers of req.
func AddHeaders(req *structpb.Struct, headers ...Header) error {
	if len(headers) == 0 {
		return nil
	}
	hv := req.GetFields()[FieldOperationHeaders].GetStructValue()
	if hv == nil {
		hv = &structpb.Struct{Fields: make(map[string]*structpb.Value)}
	}
	for _, h := range headers {
		if err := h.AddTo(hv); err != nil {
			return fmt.Errorf("header %s: %w", h.HeaderName(), err)
		}
	}
	req.Fields[FieldOperationHeaders] = structpb.NewStructValue(hv)
	return nil
}

// NewComposite wraps steps into a composite request at the root address.
func NewComposite(steps ...*structpb.Struct) *structpb.Struct {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(steps))}
	for _, s := range steps {
		list.Values = append(list.Values, structpb.NewStructValue(s))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldOperation: structpb.NewStringValue(Composite),
		FieldAddress:   structpb.NewListValue(&structpb.ListValue{}),
		FieldSteps:     structpb.NewListValue(list),
	}}
}
