// Package operation parses management request lines such as
//
//	/subsystem=logging/logger=org.jboss:write-attribute(name=level,value=DEBUG){rollback-on-runtime-failure=true}
//
// into an address, an operation name, properties and headers, and builds
// the structured request sent to the controller.
package operation

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/parser"
	"github.com/wildfly/wildfly-core-sub044/pkg/rollout"
)

// Separator is the kind of the last separator seen on the line.
type Separator int

const (
	SeparatorNone              Separator = iota
	SeparatorNodeTypeName                // '=' inside the address
	SeparatorNode                        // '/' or ','
	SeparatorAddressOperation            // ':'
	SeparatorPropertyListStart           // '('
	SeparatorPropertyNameValue           // '=' inside the property list
	SeparatorProperty                    // ',' inside the property list
	SeparatorNotOperator                 // '!'
	SeparatorPropertyListEnd             // ')'
	SeparatorHeaderListStart             // '{'
	SeparatorHeaderNameValue             // '=' inside the header list
	SeparatorHeader                      // ';'
	SeparatorHeaderListEnd               // '}'
)

var separatorNames = [...]string{
	"none", "node-type-name", "node", "address-operation", "property-list-start",
	"property-name-value", "property", "not-operator", "property-list-end",
	"header-list-start", "header-name-value", "header", "header-list-end",
}

func (s Separator) String() string {
	if int(s) < len(separatorNames) {
		return separatorNames[s]
	}
	return fmt.Sprintf("separator(%d)", int(s))
}

// RolloutHeaderName is the header name that introduces a rollout plan.
const RolloutHeaderName = rollout.Keyword

// state is everything a parse produces. Reset replaces it with the zero
// value, so every field added here is cleared with it.
type state struct {
	address  *address.Address
	rootNode bool

	opName      string
	opNameIndex int

	props         map[string]string
	propOrder     []string
	otherArgs     []string
	lastPropName  string
	lastPropValue string
	lastNegated   bool
	notPending    bool
	notIndex      int

	headers        map[string]Header
	headerOrder    []string
	lastHeaderName string
	lastHeader     Header
	headerPending  bool
	rollout        *rollout.Handler

	separator      Separator
	lastSepIndex   int
	lastChunkIndex int

	propListStarted   bool
	propListEnded     bool
	argExpected       bool // after '(' or ','
	headerListStarted bool
	headerListEnded   bool

	operator     bool
	outputTarget string

	originalLine    string
	substitutedLine string
	endState        string
}

// ParsedRequest accumulates the result of parsing one request line. It
// can be reused: every Parse starts from a reset state. A ParsedRequest
// is not safe for concurrent use.
type ParsedRequest struct {
	validator Validator
	variables func(name string) (string, bool)
	s         state
}

// NewParsedRequest returns an empty request using v, or Strict when v is nil.
func NewParsedRequest(v Validator) *ParsedRequest {
	if v == nil {
		v = Strict
	}
	p := &ParsedRequest{validator: v}
	p.Reset()
	return p
}

// SetVariables installs the lookup used to substitute $name and ${name}
// before parsing. A nil lookup disables substitution.
func (p *ParsedRequest) SetVariables(lookup func(name string) (string, bool)) {
	p.variables = lookup
}

// Reset clears all parse results.
func (p *ParsedRequest) Reset() {
	p.s = state{
		address:        &address.Address{},
		lastSepIndex:   -1,
		lastChunkIndex: -1,
		notIndex:       -1,
		opNameIndex:    -1,
	}
}

// Parse resets the request and parses line relative to prefix, which may
// be nil for the root.
func (p *ParsedRequest) Parse(prefix *address.Address, line string) error {
	p.Reset()
	p.s.address = prefix.Clone()
	p.s.originalLine = line
	if p.variables != nil {
		sub, err := Substitute(line, p.variables)
		if err != nil {
			return err
		}
		p.s.substitutedLine = sub
		line = sub
	}
	lp := &lineParser{h: p, report: p.validator.Report}
	err := parser.Parse(line, grammar, lp)
	p.s.endState = lp.endState
	if err != nil {
		return err
	}
	if p.s.notPending {
		return p.fail(parser.Errorf(p.s.notIndex, "mismatched not-operator"))
	}
	return nil
}

func (p *ParsedRequest) fail(err error) error {
	return p.validator.Report(err)
}

// Address returns the parsed address. It must not be modified.
func (p *ParsedRequest) Address() *address.Address { return p.s.address }

// HasAddress reports whether the line contained an address.
func (p *ParsedRequest) HasAddress() bool { return p.s.rootNode || !p.s.address.IsEmpty() }

// Operation returns the operation name, or "".
func (p *ParsedRequest) Operation() string { return p.s.opName }

// HasOperationName reports whether an operation name was parsed.
func (p *ParsedRequest) HasOperationName() bool { return p.s.opName != "" }

// Properties returns a copy of the name/value properties.
func (p *ParsedRequest) Properties() map[string]string { return maps.Clone(p.s.props) }

// PropertyNames returns property names in the order they were typed.
func (p *ParsedRequest) PropertyNames() []string { return slices.Clone(p.s.propOrder) }

// PropertyValue returns the value of a property.
func (p *ParsedRequest) PropertyValue(name string) (string, bool) {
	v, ok := p.s.props[name]
	return v, ok
}

// HasProperty reports whether name was given.
func (p *ParsedRequest) HasProperty(name string) bool {
	_, ok := p.s.props[name]
	return ok
}

// OtherArgs returns positional arguments in order.
func (p *ParsedRequest) OtherArgs() []string { return slices.Clone(p.s.otherArgs) }

// LastPropertyName returns the name of the last property, without '!'.
func (p *ParsedRequest) LastPropertyName() string { return p.s.lastPropName }

// LastPropertyValue returns the value of the last property.
func (p *ParsedRequest) LastPropertyValue() string { return p.s.lastPropValue }

// IsLastPropertyNegated reports whether the last property was written as
// !name, with the not-operator and the name in the same token.
func (p *ParsedRequest) IsLastPropertyNegated() bool { return p.s.lastNegated }

// HeaderNames returns header names in the order they were typed.
func (p *ParsedRequest) HeaderNames() []string { return slices.Clone(p.s.headerOrder) }

// HeaderByName returns a parsed header by its command-line name.
func (p *ParsedRequest) HeaderByName(name string) (Header, bool) {
	h, ok := p.s.headers[name]
	return h, ok
}

// HasHeader reports whether a header with the command-line name was parsed.
func (p *ParsedRequest) HasHeader(name string) bool {
	_, ok := p.s.headers[name]
	return ok
}

// LastHeaderName returns the name of the last header, possibly still
// waiting for its value.
func (p *ParsedRequest) LastHeaderName() string { return p.s.lastHeaderName }

// LastHeader returns the last complete header, or nil.
func (p *ParsedRequest) LastHeader() Header { return p.s.lastHeader }

// RolloutHandler returns the handler of the rollout header, or nil.
func (p *ParsedRequest) RolloutHandler() *rollout.Handler { return p.s.rollout }

// RolloutPlan returns the rollout plan header, or nil.
func (p *ParsedRequest) RolloutPlan() *rollout.Plan {
	if p.s.rollout == nil {
		return nil
	}
	return p.s.rollout.Plan()
}

// Separator returns the kind of the last separator.
func (p *ParsedRequest) Separator() Separator { return p.s.separator }

// LastSeparatorIndex returns the offset of the last separator, or -1.
func (p *ParsedRequest) LastSeparatorIndex() int { return p.s.lastSepIndex }

// LastChunkIndex returns the offset where the last name or value began, or -1.
func (p *ParsedRequest) LastChunkIndex() int { return p.s.lastChunkIndex }

// EndState returns the innermost grammar state active at the end of the
// input, or "" when every construct was closed.
func (p *ParsedRequest) EndState() string { return p.s.endState }

// HasPropertyList reports whether '(' was seen.
func (p *ParsedRequest) HasPropertyList() bool { return p.s.propListStarted }

// IsPropertyListEnded reports whether ')' was seen.
func (p *ParsedRequest) IsPropertyListEnded() bool { return p.s.propListEnded }

// HasHeaderList reports whether '{' was seen.
func (p *ParsedRequest) HasHeaderList() bool { return p.s.headerListStarted }

// IsHeaderListEnded reports whether '}' was seen.
func (p *ParsedRequest) IsHeaderListEnded() bool { return p.s.headerListEnded }

// OperationComplete reports whether the operation is fully specified: it
// has a name and every list it opened is closed.
func (p *ParsedRequest) OperationComplete() bool {
	return p.s.opName != "" &&
		(!p.s.propListStarted || p.s.propListEnded) &&
		(!p.s.headerListStarted || p.s.headerListEnded)
}

// HasOperator reports whether the line ends with an output redirection.
func (p *ParsedRequest) HasOperator() bool { return p.s.operator }

// Target returns the output redirection target, or "".
func (p *ParsedRequest) Target() string { return p.s.outputTarget }

// OriginalLine returns the line as given to Parse.
func (p *ParsedRequest) OriginalLine() string { return p.s.originalLine }

// SubstitutedLine returns the line after variable substitution, or "" when
// no substitution ran.
func (p *ParsedRequest) SubstitutedLine() string { return p.s.substitutedLine }

func (p *ParsedRequest) sep(s Separator, index int) {
	p.s.separator = s
	p.s.lastSepIndex = index
}

func (p *ParsedRequest) chunk(index int) {
	p.s.separator = SeparatorNone
	p.s.lastChunkIndex = index
}

// The methods below implement Handler.

var _ Handler = (*ParsedRequest)(nil)

func (p *ParsedRequest) RootNode(index int) error {
	p.s.address.Reset()
	p.s.rootNode = true
	p.sep(SeparatorNode, index)
	return nil
}

func (p *ParsedRequest) ParentNode(index int) error {
	p.chunk(index)
	if p.s.address.EndsOnType() {
		return p.fail(parser.Errorf(index, "node type %q is not complete", p.s.address.NodeType()))
	}
	if err := p.s.address.ToParentNode(); err != nil {
		return p.fail(parser.Errorf(index, "%v", err))
	}
	return nil
}

func (p *ParsedRequest) NodeType(index int, nodeType string) error {
	p.chunk(index)
	if err := p.validator.ValidateName(index, "node type", nodeType); err != nil {
		return err
	}
	if p.s.address.EndsOnType() {
		return p.fail(parser.Errorf(index, "node type %q is not complete", p.s.address.NodeType()))
	}
	return p.s.address.ToNodeType(nodeType)
}

func (p *ParsedRequest) NodeTypeNameSeparator(index int) error {
	p.sep(SeparatorNodeTypeName, index)
	return nil
}

func (p *ParsedRequest) NodeName(index int, name string) error {
	p.chunk(index)
	if name == "" {
		return p.fail(parser.Errorf(index, "node name is missing"))
	}
	if !p.s.address.EndsOnType() {
		return p.fail(parser.Errorf(index, "node name %q is not preceded by a node type", name))
	}
	return p.s.address.ToNodeName(name)
}

func (p *ParsedRequest) NodeTypeOrName(index int, typeOrName string) error {
	if p.s.address.EndsOnType() {
		p.chunk(index)
		return p.s.address.ToNodeName(typeOrName)
	}
	return p.NodeType(index, typeOrName)
}

func (p *ParsedRequest) NodeSeparator(index int) error {
	p.sep(SeparatorNode, index)
	return nil
}

func (p *ParsedRequest) AddressOperationSeparator(index int) error {
	p.sep(SeparatorAddressOperation, index)
	if p.s.address.EndsOnType() {
		return p.fail(parser.Errorf(index, "node type %q is not complete", p.s.address.NodeType()))
	}
	return nil
}

func (p *ParsedRequest) OperationName(index int, name string) error {
	p.chunk(index)
	if name == "" {
		return p.fail(parser.Errorf(index, "operation name is missing"))
	}
	if err := p.validator.ValidateName(index, "operation name", name); err != nil {
		return err
	}
	p.s.opName = name
	p.s.opNameIndex = index
	return nil
}

func (p *ParsedRequest) PropertyListStart(index int) error {
	if p.s.propListStarted {
		return p.fail(parser.Errorf(index, "the operation already has a property list"))
	}
	p.s.propListStarted = true
	p.s.argExpected = true
	p.sep(SeparatorPropertyListStart, index)
	return nil
}

// argument checks that an argument starting at index follows '(' or ','.
func (p *ParsedRequest) argument(index int, name string) error {
	if p.s.argExpected {
		p.s.argExpected = false
		return nil
	}
	return p.fail(parser.Errorf(index, "missing ',' before %q", name))
}

func (p *ParsedRequest) PropertyName(index int, name string) error {
	if err := p.argument(index, name); err != nil {
		return err
	}
	p.s.lastChunkIndex = index
	if bare, ok := strings.CutPrefix(name, "!"); ok {
		p.s.lastChunkIndex = index + 1
		p.s.notPending = false
		if err := p.fail(parser.Errorf(index, "the not-operator cannot be used with a value for %q", bare)); err != nil {
			return err
		}
		name = bare
	}
	p.s.lastPropName = name
	p.s.lastPropValue = ""
	p.s.lastNegated = false
	return p.validator.ValidateName(index, "property name", name)
}

func (p *ParsedRequest) PropertyNameValueSeparator(index int) error {
	p.sep(SeparatorPropertyNameValue, index)
	return nil
}

func (p *ParsedRequest) Property(index int, name, val string) error {
	if err := p.mismatchedNot(); err != nil {
		return err
	}
	if name == "" {
		if err := p.argument(index, val); err != nil {
			return err
		}
		p.chunk(index)
		p.s.otherArgs = append(p.s.otherArgs, val)
		return nil
	}
	p.chunk(p.s.lastSepIndex + 1)
	p.setProperty(strings.TrimPrefix(name, "!"), val, false)
	return nil
}

func (p *ParsedRequest) PropertyNoValue(index int, name string) error {
	if err := p.argument(index, name); err != nil {
		return err
	}
	bare, negated := strings.CutPrefix(name, "!")
	if negated {
		p.s.notPending = false
		p.chunk(index + 1)
	} else {
		if err := p.mismatchedNot(); err != nil {
			return err
		}
		p.chunk(index)
	}
	if err := p.validator.ValidateName(p.s.lastChunkIndex, "property name", bare); err != nil {
		return err
	}
	if negated {
		p.setProperty(bare, "false", true)
	} else {
		p.setProperty(bare, "true", false)
	}
	return nil
}

// mismatchedNot fails when a not-operator was not followed, in the same
// token, by a property name.
func (p *ParsedRequest) mismatchedNot() error {
	if !p.s.notPending {
		return nil
	}
	p.s.notPending = false
	return p.fail(parser.Errorf(p.s.notIndex, "mismatched not-operator"))
}

func (p *ParsedRequest) setProperty(name, val string, negated bool) {
	if p.s.props == nil {
		p.s.props = make(map[string]string)
	}
	if _, ok := p.s.props[name]; !ok {
		p.s.propOrder = append(p.s.propOrder, name)
	}
	p.s.props[name] = val
	p.s.lastPropName = name
	p.s.lastPropValue = val
	p.s.lastNegated = negated
}

func (p *ParsedRequest) NotOperator(index int) error {
	if err := p.mismatchedNot(); err != nil {
		return err
	}
	p.s.notPending = true
	p.s.notIndex = index
	p.sep(SeparatorNotOperator, index)
	return nil
}

func (p *ParsedRequest) PropertySeparator(index int) error {
	if err := p.mismatchedNot(); err != nil {
		return err
	}
	if p.s.argExpected {
		if err := p.fail(parser.Errorf(index, "empty argument before ','")); err != nil {
			return err
		}
	}
	p.s.argExpected = true
	p.sep(SeparatorProperty, index)
	return nil
}

func (p *ParsedRequest) PropertyListEnd(index int) error {
	if err := p.mismatchedNot(); err != nil {
		return err
	}
	if p.s.argExpected && p.s.separator == SeparatorProperty {
		if err := p.fail(parser.Errorf(index, "empty argument before ')'")); err != nil {
			return err
		}
	}
	p.s.argExpected = false
	p.s.propListEnded = true
	p.sep(SeparatorPropertyListEnd, index)
	return nil
}

func (p *ParsedRequest) HeaderListStart(index int) error {
	if p.s.headerListStarted {
		return p.fail(parser.Errorf(index, "the operation already has a header list"))
	}
	p.s.headerListStarted = true
	p.sep(SeparatorHeaderListStart, index)
	return nil
}

func (p *ParsedRequest) HeaderName(index int, name string) error {
	p.chunk(index)
	p.s.lastHeaderName = name
	p.s.headerPending = true
	return p.validator.ValidateName(index, "header name", name)
}

func (p *ParsedRequest) HeaderNameValueSeparator(index int) error {
	p.sep(SeparatorHeaderNameValue, index)
	return nil
}

func (p *ParsedRequest) Header(index int, name, val string) error {
	p.chunk(p.s.lastSepIndex + 1)
	p.s.headerPending = false
	h, err := NewHeader(name, val)
	if err != nil {
		return p.fail(parser.Errorf(index, "%v", err))
	}
	return p.addHeader(index, name, h)
}

func (p *ParsedRequest) addHeader(index int, name string, h Header) error {
	if p.s.headers == nil {
		p.s.headers = make(map[string]Header)
	}
	if _, ok := p.s.headers[name]; ok {
		if err := p.fail(parser.Errorf(index, "duplicate header %q", name)); err != nil {
			return err
		}
	} else {
		p.s.headerOrder = append(p.s.headerOrder, name)
	}
	p.s.headers[name] = h
	p.s.lastHeaderName = name
	p.s.lastHeader = h
	return nil
}

func (p *ParsedRequest) RolloutHeader(index int) (*rollout.Handler, error) {
	if err := p.pendingHeader(index); err != nil {
		return nil, err
	}
	p.chunk(index)
	rh := rollout.NewHandler(index)
	p.s.rollout = rh
	if err := p.addHeader(index, RolloutHeaderName, rh.Plan()); err != nil {
		return nil, err
	}
	return rh, nil
}

func (p *ParsedRequest) pendingHeader(index int) error {
	if !p.s.headerPending {
		return nil
	}
	p.s.headerPending = false
	return p.fail(parser.Errorf(index, "header %q has no value", p.s.lastHeaderName))
}

func (p *ParsedRequest) HeaderSeparator(index int) error {
	if err := p.pendingHeader(index); err != nil {
		return err
	}
	p.sep(SeparatorHeader, index)
	return nil
}

func (p *ParsedRequest) HeaderListEnd(index int) error {
	if err := p.pendingHeader(index); err != nil {
		return err
	}
	p.s.headerListEnded = true
	p.sep(SeparatorHeaderListEnd, index)
	return nil
}

func (p *ParsedRequest) Operator(index int) error {
	p.s.operator = true
	p.sep(SeparatorNone, index)
	return nil
}

func (p *ParsedRequest) OutputTarget(index int, target string) error {
	p.chunk(index)
	if target == "" {
		return p.fail(parser.Errorf(index, "the output target is missing"))
	}
	p.s.outputTarget = target
	return nil
}

// BuildRequest builds the structured request of a complete line.
func (p *ParsedRequest) BuildRequest() (*structpb.Struct, error) {
	switch {
	case p.s.propListStarted && !p.s.propListEnded:
		return nil, parser.Errorf(-1, "the property list is not closed")
	case p.s.headerListStarted && !p.s.headerListEnded:
		return nil, parser.Errorf(-1, "the header list is not closed")
	case p.s.headerPending:
		return nil, parser.Errorf(-1, "header %q has no value", p.s.lastHeaderName)
	case len(p.s.otherArgs) > 0:
		return nil, parser.Errorf(-1, "positional arguments are not supported: %s", strings.Join(p.s.otherArgs, ", "))
	}
	b := NewBuilder(p.s.address)
	b.SetOperationName(p.s.opName)
	for _, name := range p.s.propOrder {
		if err := b.AddProperty(name, p.s.props[name]); err != nil {
			return nil, err
		}
	}
	for _, name := range p.s.headerOrder {
		b.AddHeader(p.s.headers[name])
	}
	return b.Build()
}
