package parser

// Common handlers.
var (
	// OnCharacter reports the current character to the listener.
	OnCharacter Handler = func(ctx *Context) error { return ctx.Character() }

	// Noop ignores the current character.
	Noop Handler = func(*Context) error { return nil }

	// Leave leaves the active state; the character is consumed.
	Leave Handler = func(ctx *Context) error { return ctx.LeaveState() }

	// Reenter leaves the active state and re-dispatches the character.
	Reenter Handler = func(ctx *Context) error { return ctx.ReenterState() }

	// Dispatch handles the character with the active state's own table.
	// Used as an enter hook so the triggering character is processed
	// exactly as if it had arrived inside the state.
	Dispatch Handler = func(ctx *Context) error { return ctx.Dispatch() }

	// CharacterAndLeave reports the character and leaves the state.
	CharacterAndLeave Handler = func(ctx *Context) error {
		if err := ctx.Character(); err != nil {
			return err
		}
		return ctx.LeaveState()
	}
)

// Enter returns a handler that enters s.
func Enter(s *State) Handler {
	return func(ctx *Context) error { return ctx.EnterState(s) }
}

// Shared states reused by every grammar.
var (
	// Whitespace swallows blanks and hands the first other character back
	// to the enclosing state, so token offsets start at the right place.
	Whitespace *State

	// Quotes collects "..." content verbatim, quotes included. Only an
	// unescaped '"' ends it.
	Quotes *State

	// Escape collects a backslash and exactly one following character.
	Escape *State

	// Brackets collects a balanced [...], {...} or (...) group.
	Brackets *State
)

func init() {
	Whitespace = NewState("WHITESPACE")
	Whitespace.On(" \t\r\n", Noop)
	Whitespace.Default = Reenter

	Escape = NewState("ESCAPE")
	Escape.OnEnter = OnCharacter
	Escape.Default = CharacterAndLeave

	Quotes = NewState("QUOTES")
	Quotes.OnEnter = OnCharacter
	Quotes.On(`"`, CharacterAndLeave)
	Quotes.On(`\`, Enter(Escape))
	Quotes.EndContent = func(ctx *Context) error {
		return ctx.Fail(Errorf(ctx.StateStart(), "unclosed quotes"))
	}

	Brackets = NewState("BRACKETS")
	Brackets.OnEnter = OnCharacter
	Brackets.On("[{(", Enter(Brackets))
	Brackets.On("]})", closeBracket)
	Brackets.On(`"`, Enter(Quotes))
	Brackets.On(`\`, Enter(Escape))
	Brackets.EndContent = func(ctx *Context) error {
		return ctx.Fail(Errorf(ctx.StateStart(), "unbalanced brackets"))
	}
}

// closeBracket ends a bracket group. The closing character must match the
// one that opened the group.
func closeBracket(ctx *Context) error {
	open := ctx.Input()[ctx.StateStart()]
	if want := closing(open); ctx.Char() != want {
		err := ctx.Fail(Errorf(ctx.Location(), "'%c' does not close '%c', expected '%c'", ctx.Char(), open, want))
		if err != nil {
			return err
		}
	}
	return CharacterAndLeave(ctx)
}

func closing(open byte) byte {
	switch open {
	case '[':
		return ']'
	case '{':
		return '}'
	}
	return ')'
}

// IsIdentifier reports whether s matches [_a-zA-Z][-_a-zA-Z0-9]*.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z'):
		case i > 0 && (ch == '-' || (ch >= '0' && ch <= '9')):
		default:
			return false
		}
	}
	return true
}
