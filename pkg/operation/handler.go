package operation

import (
	"strings"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/parser"
	"github.com/wildfly/wildfly-core-sub044/pkg/rollout"
)

// Handler receives the tokens of a request line. Every callback gets the
// offset at which the token or separator starts. Names are passed
// unquoted; property and header values are passed as typed, trimmed.
type Handler interface {
	RootNode(index int) error
	ParentNode(index int) error
	NodeType(index int, nodeType string) error
	NodeTypeNameSeparator(index int) error
	NodeName(index int, name string) error
	// NodeTypeOrName receives a segment not followed by '=', which is a
	// name when the address ends on a type and a type otherwise.
	NodeTypeOrName(index int, typeOrName string) error
	NodeSeparator(index int) error

	AddressOperationSeparator(index int) error
	OperationName(index int, name string) error

	PropertyListStart(index int) error
	PropertyName(index int, name string) error
	PropertyNameValueSeparator(index int) error
	// Property receives name=value. An empty name marks a positional argument.
	Property(index int, name, value string) error
	// PropertyNoValue receives a bare name, '!'-prefixed when negated.
	PropertyNoValue(index int, name string) error
	NotOperator(index int) error
	PropertySeparator(index int) error
	PropertyListEnd(index int) error

	HeaderListStart(index int) error
	HeaderName(index int, name string) error
	HeaderNameValueSeparator(index int) error
	Header(index int, name, value string) error
	// RolloutHeader returns the handler that takes over the events of a
	// rollout header starting at index.
	RolloutHeader(index int) (*rollout.Handler, error)
	HeaderSeparator(index int) error
	HeaderListEnd(index int) error

	Operator(index int) error
	OutputTarget(index int, target string) error
}

// lineParser turns parser events into Handler callbacks.
type lineParser struct {
	h      Handler
	report func(error) error

	stack    []string
	buf      strings.Builder
	start    int
	name     string
	nameAt   int
	hasValue bool
	opDone   bool
	opNamed  bool
	segments int
	// addrDone is set once the address has ended; a second address on
	// the line is muted in lenient mode.
	addrDone bool
	muted    bool

	rollout  *rollout.Handler
	endState string
}

// Parse runs the request grammar over line and reports every token to h.
// Structural errors raised by the grammar itself (unclosed quotes, lists
// or brackets) go through report; a nil report makes them fatal.
func Parse(line string, h Handler, report func(error) error) error {
	lp := &lineParser{h: h, report: report}
	return parser.Parse(line, grammar, lp)
}

func (lp *lineParser) Report(err error) error {
	if lp.report == nil {
		return err
	}
	return lp.report(err)
}

// current returns the innermost grammar state, skipping shared states.
func (lp *lineParser) current() string {
	for i := len(lp.stack) - 1; i >= 0; i-- {
		if !shared(lp.stack[i]) {
			return lp.stack[i]
		}
	}
	return ""
}

func (lp *lineParser) text() string {
	return strings.TrimSpace(lp.buf.String())
}

func (lp *lineParser) reset(loc int) {
	lp.buf.Reset()
	lp.start = loc
}

func (lp *lineParser) EnteredState(ctx *parser.Context) error {
	id := ctx.State().ID
	lp.stack = append(lp.stack, id)
	if lp.rollout != nil {
		return lp.forward(ctx, lp.rollout.EnteredState)
	}
	if lp.muted {
		return nil
	}
	loc := ctx.Location()
	switch id {
	case StateAddress:
		lp.segments = 0
		if lp.opDone {
			return ctx.Fail(parser.Errorf(loc, "unexpected characters after the operation"))
		}
		if lp.addrDone {
			if err := ctx.Fail(parser.Errorf(loc, "unexpected whitespace in the address")); err != nil {
				return err
			}
			lp.muted = true
		}
	case StateNodeType, StateParentNode, StateProperty, StateHeader:
		lp.reset(loc)
		lp.hasValue = false
	case StateNodeName:
		lp.reset(loc + 1)
		return lp.h.NodeTypeNameSeparator(loc)
	case StateOperation:
		lp.opDone = true
		lp.reset(loc + 1)
		return lp.h.AddressOperationSeparator(loc)
	case StatePropertyList:
		if err := lp.operationName(false); err != nil {
			return err
		}
		return lp.h.PropertyListStart(loc)
	case StatePropertyValue:
		lp.name, lp.nameAt, lp.hasValue = lp.text(), lp.start, true
		if err := lp.h.PropertyName(lp.nameAt, address.Unquote(lp.name)); err != nil {
			return err
		}
		lp.reset(loc + 1)
		return lp.h.PropertyNameValueSeparator(loc)
	case StateHeaderList:
		lp.opDone = true
		return lp.h.HeaderListStart(loc)
	case StateHeaderValue:
		lp.name, lp.nameAt, lp.hasValue = address.Unquote(lp.text()), lp.start, true
		if err := lp.h.HeaderName(lp.nameAt, lp.name); err != nil {
			return err
		}
		lp.reset(loc + 1)
		return lp.h.HeaderNameValueSeparator(loc)
	case rollout.StatePlan:
		rh, err := lp.h.RolloutHeader(loc)
		if err != nil {
			return err
		}
		lp.rollout = rh
		return lp.forward(ctx, lp.rollout.EnteredState)
	case StateOutputTarget:
		lp.opDone = true
		lp.reset(loc + 1)
		return lp.h.Operator(loc)
	}
	return nil
}

func (lp *lineParser) LeavingState(ctx *parser.Context) error {
	id := ctx.State().ID
	defer func() { lp.stack = lp.stack[:len(lp.stack)-1] }()
	end := ctx.IsEndOfContent()
	if end && lp.endState == "" && !shared(id) {
		lp.endState = id
	}
	if lp.rollout != nil {
		err := lp.forward(ctx, lp.rollout.LeavingState)
		if id == rollout.StatePlan {
			lp.rollout = nil
		}
		return err
	}
	if id == StateAddress {
		lp.addrDone = true
	}
	if lp.muted {
		if id == StateAddress {
			lp.muted = false
		}
		return nil
	}
	switch id {
	case StateNodeType:
		lp.segments++
		text := address.Unquote(lp.text())
		if ctx.Char() == '=' && !end {
			return lp.h.NodeType(lp.start, text)
		}
		return lp.h.NodeTypeOrName(lp.start, text)
	case StateNodeName:
		text := address.Unquote(lp.text())
		if text == "" && end {
			return nil
		}
		return lp.h.NodeName(lp.start, text)
	case StateParentNode:
		lp.segments++
		switch dots := lp.buf.Len(); dots {
		case 1:
			return nil
		case 2:
			return lp.h.ParentNode(lp.start)
		default:
			return ctx.Fail(parser.Errorf(lp.start, "unexpected %q in the address", lp.buf.String()))
		}
	case StateOperation:
		return lp.operationName(end)
	case StatePropertyList:
		if end {
			return nil
		}
		return lp.h.PropertyListEnd(ctx.Location())
	case StatePropertyValue:
		val := lp.text()
		if val == "" && end {
			return nil
		}
		return lp.h.Property(lp.nameAt, address.Unquote(lp.name), val)
	case StateProperty:
		if lp.hasValue {
			return nil
		}
		chunk := lp.text()
		bare := strings.TrimPrefix(chunk, "!")
		switch {
		case bare == "":
			return nil
		case parser.IsIdentifier(bare):
			return lp.h.PropertyNoValue(lp.start, chunk)
		default:
			return lp.h.Property(lp.start, "", chunk)
		}
	case StateHeaderList:
		if end {
			return nil
		}
		return lp.h.HeaderListEnd(ctx.Location())
	case StateHeaderValue:
		val := lp.text()
		if val == "" && end {
			return nil
		}
		return lp.h.Header(lp.nameAt, lp.name, val)
	case StateHeader:
		if lp.hasValue {
			return nil
		}
		if name := address.Unquote(lp.text()); name != "" {
			return lp.h.HeaderName(lp.start, name)
		}
	case StateOutputTarget:
		return lp.h.OutputTarget(lp.start, lp.text())
	}
	return nil
}

func (lp *lineParser) Character(ctx *parser.Context) error {
	if lp.rollout != nil {
		return lp.forward(ctx, lp.rollout.Character)
	}
	if lp.muted {
		return nil
	}
	ch := ctx.Char()
	loc := ctx.Location()
	switch lp.current() {
	case StateAddress:
		if ch == '/' && lp.segments == 0 && loc == ctx.StateStart() {
			return lp.h.RootNode(loc)
		}
		return lp.h.NodeSeparator(loc)
	case StatePropertyList:
		return lp.h.PropertySeparator(loc)
	case StateHeaderList:
		return lp.h.HeaderSeparator(loc)
	case StateOperation:
		if lp.opNamed {
			return ctx.Fail(parser.Errorf(loc, "unexpected character '%c' after the property list", ch))
		}
		lp.buf.WriteByte(ch)
	case StateProperty:
		if ch == '!' && lp.buf.Len() == 0 {
			if err := lp.h.NotOperator(loc); err != nil {
				return err
			}
		}
		lp.buf.WriteByte(ch)
	default:
		lp.buf.WriteByte(ch)
	}
	return nil
}

// operationName reports the operation name once, when its property list
// opens or when the name ends.
func (lp *lineParser) operationName(end bool) error {
	if lp.opNamed {
		return nil
	}
	lp.opNamed = true
	name := lp.text()
	if name == "" && end {
		return nil
	}
	return lp.h.OperationName(lp.start, name)
}

func (lp *lineParser) forward(ctx *parser.Context, fn func(*parser.Context) error) error {
	if err := fn(ctx); err != nil {
		return ctx.Fail(err)
	}
	return nil
}
