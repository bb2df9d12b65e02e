package operation

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/value"
)

// Response fields and outcomes.
const (
	FieldOutcome            = "outcome"
	FieldResult             = "result"
	FieldFailureDescription = "failure-description"
	FieldRolledBack         = "rolled-back"

	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Error is a failed outcome reported by the controller.
type Error struct {
	Description *structpb.Value
}

func (e *Error) Error() string {
	return value.String(e.Description)
}

// Success returns a successful response carrying result, which may be nil.
func Success(result *structpb.Value) *structpb.Struct {
	resp := &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldOutcome: structpb.NewStringValue(OutcomeSuccess),
	}}
	if result != nil {
		resp.Fields[FieldResult] = result
	}
	return resp
}

// Failed returns a failed response with a textual failure description.
func Failed(description string) *structpb.Struct {
	return FailedWith(structpb.NewStringValue(description))
}

// FailedWith returns a failed response with a structured failure description.
func FailedWith(description *structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldOutcome:            structpb.NewStringValue(OutcomeFailed),
		FieldFailureDescription: description,
		FieldRolledBack:         structpb.NewBoolValue(true),
	}}
}

// IsSuccess reports whether resp has a successful outcome.
func IsSuccess(resp *structpb.Struct) bool {
	return resp.GetFields()[FieldOutcome].GetStringValue() == OutcomeSuccess
}

// ResultOf returns the result of a successful response, or an *Error. A
// success without a result yields a null value.
func ResultOf(resp *structpb.Struct) (*structpb.Value, error) {
	if !IsSuccess(resp) {
		desc, ok := resp.GetFields()[FieldFailureDescription]
		if !ok {
			desc = structpb.NewStringValue("the operation failed without a description")
		}
		return nil, &Error{Description: desc}
	}
	if r, ok := resp.GetFields()[FieldResult]; ok {
		return r, nil
	}
	return structpb.NewNullValue(), nil
}
