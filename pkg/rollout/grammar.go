// Package rollout parses the rollout plan embedded in the header block of
// an operation request, e.g.
//
//	{rollout main-group^other-group(rolling-to-servers=false),backup rollback-across-groups}
//	{rollout name=my-plan}
package rollout

import (
	"github.com/wildfly/wildfly-core-sub044/pkg/parser"
)

// Keywords of the rollout grammar.
const (
	Keyword              = "rollout"
	RollbackAcrossGroups = "rollback-across-groups"
	PlanRefPrefix        = "name="
)

// State identifiers. Every rollout state ID starts with "ROLLOUT_".
const (
	StatePlan           = "ROLLOUT_PLAN"
	StatePlanRef        = "ROLLOUT_PLAN_REF"
	StateGroups         = "ROLLOUT_GROUPS"
	StateGroup          = "ROLLOUT_GROUP"
	StateGroupProps     = "ROLLOUT_GROUP_PROPS"
	StateGroupProp      = "ROLLOUT_GROUP_PROP"
	StateGroupPropValue = "ROLLOUT_GROUP_PROP_VALUE"
	StateRollback       = "ROLLOUT_ROLLBACK"
)

// Grammar is the entry state of a rollout header. It is entered on the
// first character of the keyword and left on the ';' or '}' that ends
// the header.
var Grammar *parser.State

// LookingAtWord reports whether the input continues with word followed by
// the end of the input or a character that cannot be part of a name.
func LookingAtWord(ctx *parser.Context, word string) bool {
	if !ctx.LookingAt(word) {
		return false
	}
	end := ctx.Location() + len(word)
	if end == len(ctx.Input()) {
		return true
	}
	switch ctx.Input()[end] {
	case ' ', '\t', '}', ';', ',', '^', '=', '(':
		return true
	}
	return false
}

func init() {
	rollback := parser.NewState(StateRollback)
	rollback.OnEnter = parser.Dispatch
	rollback.On(" \t};", parser.Reenter)

	planRef := parser.NewState(StatePlanRef)
	planRef.OnEnter = parser.Dispatch
	planRef.On(" \t};", parser.Reenter)
	planRef.On(`"`, parser.Enter(parser.Quotes))
	planRef.On(`\`, parser.Enter(parser.Escape))

	propValue := parser.NewState(StateGroupPropValue)
	propValue.On(",)", parser.Reenter)
	propValue.On(`"`, parser.Enter(parser.Quotes))
	propValue.On(`\`, parser.Enter(parser.Escape))

	prop := parser.NewState(StateGroupProp)
	prop.OnEnter = parser.Dispatch
	prop.On("=", parser.Enter(propValue))
	prop.On(",) \t", parser.Reenter)
	prop.On(`"`, parser.Enter(parser.Quotes))
	prop.On(`\`, parser.Enter(parser.Escape))

	props := parser.NewState(StateGroupProps)
	props.On(" \t", parser.Enter(parser.Whitespace))
	props.On(",", parser.OnCharacter)
	props.On(")", parser.CharacterAndLeave)
	props.Default = parser.Enter(prop)
	props.EndContent = func(ctx *parser.Context) error {
		return ctx.Fail(parser.Errorf(ctx.StateStart(), "unclosed server group properties"))
	}

	group := parser.NewState(StateGroup)
	group.OnEnter = parser.Dispatch
	group.On(",^ \t};", parser.Reenter)
	group.On("(", parser.Enter(props))
	group.On(`"`, parser.Enter(parser.Quotes))
	group.On(`\`, parser.Enter(parser.Escape))

	groups := parser.NewState(StateGroups)
	groups.OnEnter = parser.Dispatch
	groups.On(",^", parser.OnCharacter)
	groups.On(" \t};", parser.Reenter)
	groups.Default = func(ctx *parser.Context) error {
		if LookingAtWord(ctx, RollbackAcrossGroups) {
			return ctx.ReenterState()
		}
		return ctx.EnterState(group)
	}

	plan := parser.NewState(StatePlan)
	plan.Default = func(ctx *parser.Context) error {
		if ctx.Location() < ctx.StateStart()+len(Keyword) {
			return nil
		}
		switch ctx.Char() {
		case ' ', '\t':
			return ctx.EnterState(parser.Whitespace)
		case '}', ';':
			return ctx.ReenterState()
		}
		switch {
		case ctx.LookingAt(PlanRefPrefix):
			return ctx.EnterState(planRef)
		case LookingAtWord(ctx, RollbackAcrossGroups):
			return ctx.EnterState(rollback)
		}
		return ctx.EnterState(groups)
	}
	Grammar = plan
}
