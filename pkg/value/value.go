// Package value converts between command-line text and structured values.
package value

import (
	"errors"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
)

// Parse interprets text as a structured value when it is valid JSON
// (numbers, booleans, null, quoted strings, objects, lists) and as a
// literal string otherwise. Surrounding blanks are ignored.
func Parse(text string) *structpb.Value {
	text = strings.TrimSpace(text)
	if text == "" {
		return structpb.NewStringValue("")
	}
	if inexactInteger(text) {
		return structpb.NewStringValue(text)
	}
	v := &structpb.Value{}
	if err := protojson.Unmarshal([]byte(text), v); err == nil {
		return v
	}
	return structpb.NewStringValue(address.Unquote(text))
}

// inexactInteger reports whether text is an integer literal that a
// float64 number value cannot hold exactly.
func inexactInteger(text string) bool {
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return errors.Is(err, strconv.ErrRange)
	}
	f := float64(i)
	return f >= 0x1p63 || int64(f) != i
}

// String returns the command-line text of a scalar value. Lists and
// objects are rendered as compact JSON.
func String(v *structpb.Value) string {
	switch k := v.GetKind().(type) {
	case nil:
		return ""
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	case *structpb.Value_NullValue:
		return "undefined"
	default:
		b, err := protojson.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Format renders v as JSON, indented when pretty is set.
func Format(v *structpb.Value, pretty bool) (string, error) {
	opts := protojson.MarshalOptions{}
	if pretty {
		opts.Multiline = true
		opts.Indent = "    "
	}
	b, err := opts.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Bool parses the boolean command-line literals "true" and "false",
// ignoring case.
func Bool(text string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
