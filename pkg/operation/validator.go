package operation

import (
	"github.com/wildfly/wildfly-core-sub044/pkg/parser"
)

// FormatError is the error family of malformed command lines.
type FormatError = parser.FormatError

// Validator decides how strictly a ParsedRequest treats its input.
type Validator interface {
	// ValidateName checks a node type, operation, property or header name.
	ValidateName(index int, kind, name string) error
	// Report returns err when it must abort the parse, or nil to continue
	// with a best-effort result.
	Report(err error) error
}

var (
	// Strict rejects invalid names and every format error. Used before a
	// request is built.
	Strict Validator = strict{}

	// Lenient accepts partial and malformed input. Used for completion.
	Lenient Validator = lenient{}
)

type strict struct{}

func (strict) ValidateName(index int, kind, name string) error {
	if !parser.IsIdentifier(name) {
		return parser.Errorf(index, "%q is not a valid %s", name, kind)
	}
	return nil
}

func (strict) Report(err error) error { return err }

type lenient struct{}

func (lenient) ValidateName(int, string, string) error { return nil }

func (lenient) Report(error) error { return nil }
