package rollout

import (
	"slices"
	"strings"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/parser"
	"github.com/wildfly/wildfly-core-sub044/pkg/value"
)

// Separator identifies the last separator seen inside a rollout header.
type Separator int

const (
	SeparatorNone              Separator = iota
	SeparatorSeries                      // ','
	SeparatorConcurrent                  // '^'
	SeparatorPropertyListStart           // '('
	SeparatorProperty                    // ',' between group properties
	SeparatorPropertyValue               // '='
	SeparatorPropertyListEnd             // ')'
)

// IsState reports whether id belongs to the rollout grammar.
func IsState(id string) bool {
	return strings.HasPrefix(id, "ROLLOUT_")
}

// Handler receives the parser events of one rollout header and builds
// its Plan. It tracks separator and chunk offsets for completion.
// A Handler is not safe for concurrent use.
type Handler struct {
	index int
	stack []string
	buf   strings.Builder
	chunk int

	plan       Plan
	group      *SingleGroup
	groupNamed bool
	groupNames []string
	stepSep    Separator

	propsClosed bool
	propHasVal  bool
	propName    string
	propValue   string

	lastSep      Separator
	lastSepIndex int
	lastChunk    int
	endState     string
}

// NewHandler returns a handler for a rollout header whose keyword starts
// at index.
func NewHandler(index int) *Handler {
	return &Handler{index: index, lastSepIndex: -1, lastChunk: index}
}

// Index returns the offset of the "rollout" keyword.
func (h *Handler) Index() int { return h.index }

// Plan returns the plan parsed so far.
func (h *Handler) Plan() *Plan { return &h.plan }

// LastSeparator returns the kind of the last separator.
func (h *Handler) LastSeparator() Separator { return h.lastSep }

// LastSeparatorIndex returns the offset of the last separator, or -1.
func (h *Handler) LastSeparatorIndex() int { return h.lastSepIndex }

// LastChunkIndex returns the offset where the last name or value started.
func (h *Handler) LastChunkIndex() int { return h.lastChunk }

// EndState returns the innermost rollout state active when the input
// ended, or "" when the header was closed before the end.
func (h *Handler) EndState() string { return h.endState }

// GroupNames returns the server group names in the order they appear.
func (h *Handler) GroupNames() []string { return slices.Clone(h.groupNames) }

// LastGroup returns the group parsed last, or nil.
func (h *Handler) LastGroup() *SingleGroup { return h.group }

// PropertiesClosed reports whether the last group's property list was closed.
func (h *Handler) PropertiesClosed() bool { return h.propsClosed }

// LastPropertyName returns the last group property name.
func (h *Handler) LastPropertyName() string { return h.propName }

// LastPropertyValue returns the value of the last group property.
func (h *Handler) LastPropertyValue() string { return h.propValue }

// IsPlanRef reports whether the header references a stored plan.
func (h *Handler) IsPlanRef() bool { return h.plan.Name != "" || h.endState == StatePlanRef }

// ContainsAllGroups reports whether every name in all appears in the plan.
func (h *Handler) ContainsAllGroups(all []string) bool {
	for _, g := range all {
		if !slices.Contains(h.groupNames, g) {
			return false
		}
	}
	return true
}

func (h *Handler) current() string {
	if len(h.stack) == 0 {
		return ""
	}
	return h.stack[len(h.stack)-1]
}

func (h *Handler) separator(s Separator, index int) {
	h.lastSep = s
	h.lastSepIndex = index
}

func (h *Handler) text() string {
	return strings.TrimSpace(h.buf.String())
}

// EnteredState implements parser.Listener.
func (h *Handler) EnteredState(ctx *parser.Context) error {
	id := ctx.State().ID
	if !IsState(id) {
		return nil
	}
	h.stack = append(h.stack, id)
	loc := ctx.Location()
	switch id {
	case StatePlan:
		h.index = loc
		h.lastChunk = loc
	case StatePlanRef, StateRollback:
		h.buf.Reset()
		h.chunk = loc
		h.lastChunk = loc
	case StateGroup:
		h.buf.Reset()
		h.chunk = loc
		h.lastChunk = loc
		h.group = nil
		h.groupNamed = false
		h.propsClosed = false
	case StateGroupProps:
		h.separator(SeparatorPropertyListStart, loc)
		return h.nameGroup()
	case StateGroupProp:
		h.buf.Reset()
		h.chunk = loc
		h.lastChunk = loc
		h.propHasVal = false
		h.propName = ""
		h.propValue = ""
	case StateGroupPropValue:
		h.propName = h.text()
		h.propHasVal = true
		h.buf.Reset()
		h.separator(SeparatorPropertyValue, loc)
		h.lastChunk = loc + 1
		if strings.HasPrefix(h.propName, "!") {
			return parser.Errorf(h.chunk, "the not-operator cannot be combined with a value for %q", h.propName[1:])
		}
	}
	return nil
}

// Character implements parser.Listener.
func (h *Handler) Character(ctx *parser.Context) error {
	ch := ctx.Char()
	loc := ctx.Location()
	switch h.current() {
	case StateGroups:
		switch ch {
		case ',':
			if len(h.groupNames) == 0 {
				return parser.Errorf(loc, "server group name expected before ','")
			}
			h.stepSep = SeparatorSeries
			h.separator(SeparatorSeries, loc)
		case '^':
			if len(h.groupNames) == 0 && !LookingAtNext(ctx, RollbackAcrossGroups) {
				return parser.Errorf(loc, "server group name expected before '^'")
			}
			h.stepSep = SeparatorConcurrent
			h.separator(SeparatorConcurrent, loc)
		}
	case StateGroupProps:
		switch ch {
		case ',':
			h.separator(SeparatorProperty, loc)
		case ')':
			h.separator(SeparatorPropertyListEnd, loc)
			h.propsClosed = true
		}
	case StateGroup:
		if h.propsClosed {
			return parser.Errorf(loc, "unexpected character '%c' after server group properties", ch)
		}
		h.buf.WriteByte(ch)
	case StatePlanRef, StateRollback, StateGroupProp, StateGroupPropValue:
		h.buf.WriteByte(ch)
	}
	return nil
}

// LookingAtNext reports whether word follows the current character.
func LookingAtNext(ctx *parser.Context, word string) bool {
	rest := ctx.Input()[ctx.Location()+1:]
	return strings.HasPrefix(rest, word)
}

// LeavingState implements parser.Listener.
func (h *Handler) LeavingState(ctx *parser.Context) error {
	id := ctx.State().ID
	if !IsState(id) {
		return nil
	}
	defer func() { h.stack = h.stack[:len(h.stack)-1] }()
	if ctx.IsEndOfContent() && h.endState == "" {
		h.endState = id
	}
	switch id {
	case StateGroup:
		return h.nameGroup()
	case StateGroupProp:
		if h.propHasVal {
			return nil
		}
		name := h.text()
		if name == "" {
			return nil
		}
		h.propName = name
		if h.group == nil {
			return nil
		}
		if n, ok := strings.CutPrefix(name, "!"); ok {
			h.group.Set(address.Unquote(n), "false")
		} else {
			h.group.Set(address.Unquote(name), "true")
		}
	case StateGroupPropValue:
		h.propValue = h.text()
		if h.group != nil && h.propName != "" {
			h.group.Set(address.Unquote(h.propName), h.propValue)
		}
	case StatePlanRef:
		name := address.Unquote(strings.TrimPrefix(h.text(), PlanRefPrefix))
		if name == "" {
			if ctx.IsEndOfContent() {
				return nil
			}
			return parser.Errorf(h.chunk, "rollout plan name is missing")
		}
		h.plan.Name = name
	case StateRollback:
		return h.rollback(ctx)
	}
	return nil
}

func (h *Handler) rollback(ctx *parser.Context) error {
	text := h.text()
	flag := true
	if v, ok := strings.CutPrefix(text, RollbackAcrossGroups+"="); ok {
		b, valid := value.Bool(v)
		if !valid {
			if ctx.IsEndOfContent() {
				return nil
			}
			return parser.Errorf(h.chunk, "invalid value %q for %s", v, RollbackAcrossGroups)
		}
		flag = b
	} else if text != RollbackAcrossGroups {
		return parser.Errorf(h.chunk, "unexpected rollout argument %q", text)
	}
	h.plan.RollbackAcrossGroups = &flag
	return nil
}

// nameGroup turns the collected group chunk into a plan step. It runs once
// per group, either when the property list opens or when the group ends.
func (h *Handler) nameGroup() error {
	if h.groupNamed {
		return nil
	}
	h.groupNamed = true
	name := address.Unquote(h.text())
	if name == "" {
		return parser.Errorf(h.chunk, "server group name is missing")
	}
	if slices.Contains(h.groupNames, name) {
		return parser.Errorf(h.chunk, "server group %q appears more than once in the rollout plan", name)
	}
	g := &SingleGroup{Name: name}
	if h.stepSep == SeparatorConcurrent {
		h.plan.AddConcurrentGroup(g)
	} else {
		h.plan.AddGroup(g)
	}
	h.stepSep = SeparatorNone
	h.group = g
	h.groupNames = append(h.groupNames, name)
	return nil
}
