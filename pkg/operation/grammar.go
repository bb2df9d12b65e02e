package operation

import (
	"github.com/wildfly/wildfly-core-sub044/pkg/parser"
	"github.com/wildfly/wildfly-core-sub044/pkg/rollout"
)

// State identifiers of the operation request grammar.
const (
	StateRequest       = "OPERATION_REQUEST"
	StateAddress       = "ADDRESS"
	StateParentNode    = "PARENT_NODE"
	StateNodeType      = "NODE_TYPE"
	StateNodeName      = "NODE_NAME"
	StateOperation     = "OPERATION_NAME"
	StatePropertyList  = "PROPERTY_LIST"
	StateProperty      = "PROPERTY"
	StatePropertyValue = "PROPERTY_VALUE"
	StateHeaderList    = "HEADER_LIST"
	StateHeader        = "HEADER"
	StateHeaderValue   = "HEADER_VALUE"
	StateOutputTarget  = "OUTPUT_TARGET"
)

// grammar is the entry state of a request line:
//
//	[address] [':' operation ['(' args ')']] ['{' headers '}'] ['>' target]
var grammar *parser.State

func quoting(s *parser.State) *parser.State {
	s.On(`"`, parser.Enter(parser.Quotes))
	s.On(`\`, parser.Enter(parser.Escape))
	return s
}

func init() {
	nodeName := quoting(parser.NewState(StateNodeName))
	nodeName.On("/,:{> \t", parser.Reenter)

	nodeType := quoting(parser.NewState(StateNodeType))
	nodeType.OnEnter = parser.Dispatch
	nodeType.On("/,:{> \t", parser.Reenter)
	nodeType.On("=", func(ctx *parser.Context) error {
		if err := ctx.LeaveState(); err != nil {
			return err
		}
		return ctx.EnterState(nodeName)
	})

	parentNode := parser.NewState(StateParentNode)
	parentNode.OnEnter = parser.OnCharacter
	parentNode.On(".", parser.OnCharacter)
	parentNode.Default = parser.Reenter

	addr := parser.NewState(StateAddress)
	addr.OnEnter = parser.Dispatch
	addr.On("/,", parser.OnCharacter)
	addr.On(":{> \t", parser.Reenter)
	addr.On(".", parser.Enter(parentNode))
	addr.Default = parser.Enter(nodeType)

	propValue := quoting(parser.NewState(StatePropertyValue))
	propValue.On(",)", parser.Reenter)
	propValue.On("[{(", parser.Enter(parser.Brackets))

	prop := quoting(parser.NewState(StateProperty))
	prop.OnEnter = parser.Dispatch
	prop.On("=", parser.Enter(propValue))
	prop.On(",) \t", parser.Reenter)

	propList := parser.NewState(StatePropertyList)
	propList.On(" \t", parser.Enter(parser.Whitespace))
	propList.On(",", parser.OnCharacter)
	propList.On(")", parser.Leave)
	propList.Default = parser.Enter(prop)
	propList.EndContent = func(ctx *parser.Context) error {
		return ctx.Fail(parser.Errorf(ctx.StateStart(), "the property list is not closed"))
	}

	op := parser.NewState(StateOperation)
	op.On("(", parser.Enter(propList))
	op.On("{> \t", parser.Reenter)

	headerValue := quoting(parser.NewState(StateHeaderValue))
	headerValue.On(";}", parser.Reenter)
	headerValue.On("[{(", parser.Enter(parser.Brackets))

	header := quoting(parser.NewState(StateHeader))
	header.OnEnter = parser.Dispatch
	header.On("=", parser.Enter(headerValue))
	header.On(";} \t", parser.Reenter)

	headerList := parser.NewState(StateHeaderList)
	headerList.On(" \t", parser.Enter(parser.Whitespace))
	headerList.On(";", parser.OnCharacter)
	headerList.On("}", parser.Leave)
	headerList.Default = func(ctx *parser.Context) error {
		if rollout.LookingAtWord(ctx, rollout.Keyword) {
			return ctx.EnterState(rollout.Grammar)
		}
		return ctx.EnterState(header)
	}
	headerList.EndContent = func(ctx *parser.Context) error {
		return ctx.Fail(parser.Errorf(ctx.StateStart(), "the header list is not closed"))
	}

	target := parser.NewState(StateOutputTarget)

	req := parser.NewState(StateRequest)
	req.On(" \t", parser.Noop)
	req.On(":", parser.Enter(op))
	req.On("{", parser.Enter(headerList))
	req.On(">", parser.Enter(target))
	req.Default = parser.Enter(addr)

	grammar = req
}

// shared reports whether id is one of the parser's shared states.
func shared(id string) bool {
	switch id {
	case parser.Whitespace.ID, parser.Quotes.ID, parser.Escape.ID, parser.Brackets.ID:
		return true
	}
	return false
}
