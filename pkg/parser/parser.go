// Package parser implements the character-driven state machine used to
// parse management command lines.
//
// A grammar is a graph of States. Each State maps characters to Handlers
// and has an optional default Handler, an enter hook (run with the
// character that triggered the transition) and an end-of-content hook.
// While consuming the input one character at a time the machine reports
// every state entry, state exit and content character to a Listener,
// which is where tokens are assembled and their offsets recorded.
package parser

import (
	"fmt"
)

// Handler reacts to the current character of a Context.
type Handler func(ctx *Context) error

// FormatError is a command-line format error. Index is the offending
// character offset, or -1 when unknown.
type FormatError struct {
	Index   int
	Message string
}

func (e *FormatError) Error() string {
	if e.Index < 0 {
		return e.Message
	}
	return fmt.Sprintf("%s at index %d", e.Message, e.Index)
}

// Errorf returns a *FormatError for the given index.
func Errorf(index int, format string, args ...any) *FormatError {
	return &FormatError{Index: index, Message: fmt.Sprintf(format, args...)}
}

// State is one node of a grammar graph.
type State struct {
	ID string

	// Default handles characters without a specific handler. A nil
	// Default reports the character to the listener.
	Default Handler

	// OnEnter runs after the state is pushed, with the triggering
	// character still current. A nil OnEnter ignores the character.
	OnEnter Handler

	// EndContent runs when the input ends while the state is active.
	// It must not change the state stack.
	EndContent Handler

	handlers map[byte]Handler
}

// NewState creates a state with the given identifier.
func NewState(id string) *State {
	return &State{ID: id, handlers: make(map[byte]Handler)}
}

// On installs h for every character in chars.
func (s *State) On(chars string, h Handler) *State {
	for i := 0; i < len(chars); i++ {
		s.handlers[chars[i]] = h
	}
	return s
}

// Handler returns the handler for ch.
func (s *State) Handler(ch byte) Handler {
	if h, ok := s.handlers[ch]; ok {
		return h
	}
	if s.Default != nil {
		return s.Default
	}
	return OnCharacter
}

// Listener receives the events produced while parsing.
type Listener interface {
	EnteredState(ctx *Context) error
	LeavingState(ctx *Context) error
	Character(ctx *Context) error
}

// Reporter is implemented by listeners that decide whether a structural
// error aborts the parse. Returning nil suppresses the error.
type Reporter interface {
	Report(err error) error
}

type frame struct {
	state *State
	start int
}

// maxDispatchDepth bounds nested re-dispatching of a single character.
const maxDispatchDepth = 64

// Context is the mutable state of one parse.
type Context struct {
	input    string
	loc      int
	stack    []frame
	listener Listener
	depth    int
}

// Input returns the whole input.
func (c *Context) Input() string { return c.input }

// Location returns the offset of the current character.
func (c *Context) Location() int { return c.loc }

// Char returns the current character, or 0 at the end of the input.
func (c *Context) Char() byte {
	if c.loc >= len(c.input) {
		return 0
	}
	return c.input[c.loc]
}

// IsEndOfContent reports whether the whole input has been consumed.
func (c *Context) IsEndOfContent() bool { return c.loc >= len(c.input) }

// LookingAt reports whether the input continues with s at the current location.
func (c *Context) LookingAt(s string) bool {
	return len(c.input)-c.loc >= len(s) && c.input[c.loc:c.loc+len(s)] == s
}

// State returns the active state, or nil when the stack is empty.
func (c *Context) State() *State {
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1].state
}

// StateStart returns the offset at which the active state was entered.
func (c *Context) StateStart() int {
	if len(c.stack) == 0 {
		return 0
	}
	return c.stack[len(c.stack)-1].start
}

// InState reports whether a state with the given ID is on the stack.
func (c *Context) InState(id string) bool {
	for i := len(c.stack) - 1; i >= 0; i-- {
		if c.stack[i].state.ID == id {
			return true
		}
	}
	return false
}

// EnterState pushes s, notifies the listener and runs the enter hook.
func (c *Context) EnterState(s *State) error {
	c.stack = append(c.stack, frame{state: s, start: c.loc})
	if err := c.listener.EnteredState(c); err != nil {
		return err
	}
	if s.OnEnter != nil {
		return s.OnEnter(c)
	}
	return nil
}

// LeaveState notifies the listener and pops the active state.
func (c *Context) LeaveState() error {
	if len(c.stack) == 0 {
		return Errorf(c.loc, "no state to leave")
	}
	if err := c.listener.LeavingState(c); err != nil {
		return err
	}
	c.stack = c.stack[:len(c.stack)-1]
	return nil
}

// ReenterState leaves the active state and hands the current character
// to the state underneath.
func (c *Context) ReenterState() error {
	if err := c.LeaveState(); err != nil {
		return err
	}
	return c.Dispatch()
}

// Dispatch handles the current character with the active state's handler.
func (c *Context) Dispatch() error {
	s := c.State()
	if s == nil {
		return Errorf(c.loc, "unexpected character '%c'", c.Char())
	}
	c.depth++
	defer func() { c.depth-- }()
	if c.depth > maxDispatchDepth {
		return Errorf(c.loc, "parser loop in state %s", s.ID)
	}
	return s.Handler(c.Char())(c)
}

// Character reports the current character to the listener.
func (c *Context) Character() error {
	return c.listener.Character(c)
}

// Fail reports a structural error. The listener may suppress it.
func (c *Context) Fail(err error) error {
	if r, ok := c.listener.(Reporter); ok {
		return r.Report(err)
	}
	return err
}

// Parse runs the grammar rooted at initial over input. The initial state
// is entered at offset 0 without running its enter hook.
func Parse(input string, initial *State, l Listener) error {
	c := &Context{input: input, listener: l}
	c.stack = append(c.stack, frame{state: initial})
	if err := l.EnteredState(c); err != nil {
		return err
	}
	for c.loc < len(input) {
		if err := c.Dispatch(); err != nil {
			return err
		}
		c.loc++
	}
	for len(c.stack) > 0 {
		s := c.State()
		depth := len(c.stack)
		if s.EndContent != nil {
			if err := s.EndContent(c); err != nil {
				return err
			}
		}
		if len(c.stack) != depth {
			continue
		}
		if err := c.LeaveState(); err != nil {
			return err
		}
	}
	return nil
}
