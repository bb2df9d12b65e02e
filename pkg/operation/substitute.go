package operation

import (
	"strings"

	"github.com/wildfly/wildfly-core-sub044/pkg/parser"
)

// Substitute replaces $name and ${name} references outside quotes with
// the values returned by lookup. A backslash keeps the following '$'
// literal. Unknown variables are format errors.
func Substitute(line string, lookup func(name string) (string, bool)) (string, error) {
	if !strings.Contains(line, "$") {
		return line, nil
	}
	var b strings.Builder
	b.Grow(len(line))
	inQuotes := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '\\' && i+1 < len(line):
			b.WriteByte(ch)
			i++
			b.WriteByte(line[i])
			continue
		case ch == '"':
			inQuotes = !inQuotes
		case ch == '$' && !inQuotes:
			name, end, ok := variableAt(line, i)
			if !ok {
				break
			}
			v, found := lookup(name)
			if !found {
				return "", parser.Errorf(i, "unrecognized variable %s", name)
			}
			b.WriteString(v)
			i = end - 1
			continue
		}
		b.WriteByte(ch)
	}
	return b.String(), nil
}

// variableAt parses a variable reference starting with the '$' at i and
// returns its name and the offset just past it.
func variableAt(line string, i int) (string, int, bool) {
	j := i + 1
	braced := j < len(line) && line[j] == '{'
	if braced {
		j++
	}
	start := j
	for j < len(line) && isVariableChar(line[j], j == start) {
		j++
	}
	if j == start {
		return "", 0, false
	}
	name := line[start:j]
	if braced {
		if j >= len(line) || line[j] != '}' {
			return "", 0, false
		}
		j++
	}
	return name, j, true
}

func isVariableChar(ch byte, first bool) bool {
	switch {
	case ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z'):
		return true
	case !first && (ch >= '0' && ch <= '9'):
		return true
	}
	return false
}

// IsVariableName reports whether name can be referenced as $name.
func IsVariableName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isVariableChar(name[i], i == 0) {
			return false
		}
	}
	return true
}
