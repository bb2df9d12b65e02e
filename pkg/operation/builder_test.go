package operation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
)

func TestBuildAdd(t *testing.T) {
	b := NewBuilder(nil)
	b.AddNode("deployment", "foo.war")
	b.SetOperationName("add")
	if err := b.AddProperty("runtime-name", "foo.war"); err != nil {
		t.Fatal(err)
	}
	got, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want, _ := structpb.NewStruct(map[string]any{
		"operation":    "add",
		"address":      []any{map[string]any{"deployment": "foo.war"}},
		"runtime-name": "foo.war",
	})
	if diff := cmp.Diff(want, got, protocmp.Transform()); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildErrors(t *testing.T) {
	b := NewBuilder(nil)
	b.AddNode("subsystem", "logging")
	if _, err := b.Build(); err == nil {
		t.Error("expected error without an operation name")
	}

	b.SetOperationName("read-resource")
	if err := b.AddNodeType("logger"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(); err == nil {
		t.Error("expected error for an address ending on a type")
	}
	if err := b.AddNodeName("org.jboss"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(); err != nil {
		t.Errorf("Build: %v", err)
	}

	if err := b.AddProperty("", "x"); err == nil {
		t.Error("expected error for an empty property name")
	}
	if err := b.AddProperty("operation", "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(); err == nil {
		t.Error("expected error for a reserved property name")
	}
}

func TestTypedProperties(t *testing.T) {
	b := NewBuilder(address.New(address.Node{Type: "subsystem", Name: "threads"}))
	b.SetOperationName("write-attribute")
	for name, text := range map[string]string{"count": "0", "per-cpu": "20", "enabled": "true", "label": "x1"} {
		if err := b.AddProperty(name, text); err != nil {
			t.Fatal(err)
		}
	}
	req, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	f := req.GetFields()
	if f["count"].GetNumberValue() != 0 || f["per-cpu"].GetNumberValue() != 20 {
		t.Errorf("numbers not parsed: %v", req)
	}
	if !f["enabled"].GetBoolValue() || f["label"].GetStringValue() != "x1" {
		t.Errorf("unexpected values: %v", req)
	}

	p := parseStrict(t, ":write-attribute(name=max,value=9223372036854775807)")
	req, err = p.BuildRequest()
	if err != nil {
		t.Fatal(err)
	}
	if got := req.GetFields()["value"].GetStringValue(); got != "9223372036854775807" {
		t.Errorf("value = %v, want the integer text unchanged", req.GetFields()["value"])
	}
}

func TestCompositeWithHeaders(t *testing.T) {
	step := func(op string) *structpb.Struct {
		b := NewBuilder(nil)
		b.AddNode("deployment", "foo.war")
		b.SetOperationName(op)
		req, err := b.Build()
		if err != nil {
			t.Fatal(err)
		}
		return req
	}
	req := NewComposite(step("add"), step("deploy"))
	h, err := NewHeader("rollback-on-runtime-failure", "false")
	if err != nil {
		t.Fatal(err)
	}
	if err := AddHeaders(req, h); err != nil {
		t.Fatal(err)
	}
	if OperationOf(req) != Composite {
		t.Errorf("operation = %q", OperationOf(req))
	}
	steps := req.GetFields()[FieldSteps].GetListValue().GetValues()
	if len(steps) != 2 || OperationOf(steps[1].GetStructValue()) != "deploy" {
		t.Errorf("steps = %v", steps)
	}
	headers := req.GetFields()[FieldOperationHeaders].GetStructValue()
	if v, ok := headers.GetFields()["rollback-on-runtime-failure"]; !ok || v.GetBoolValue() {
		t.Errorf("headers = %v", headers)
	}
}

func TestNewHeaderValidation(t *testing.T) {
	if _, err := NewHeader("", "x"); err == nil {
		t.Error("expected error for an empty header name")
	}
	if _, err := NewHeader("blocking", ""); err == nil {
		t.Error("expected error for an empty header value")
	}
}

func TestAddressOf(t *testing.T) {
	a := address.New(address.Node{Type: "profile", Name: "full"}, address.Node{Type: "subsystem", Name: "threads"})
	req := &structpb.Struct{Fields: map[string]*structpb.Value{FieldAddress: AddressValue(a)}}
	got, err := AddressOf(req)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(a) {
		t.Errorf("AddressOf = %s, want %s", got, a)
	}

	bad, _ := structpb.NewStruct(map[string]any{"address": []any{map[string]any{"a": "b", "c": "d"}}})
	if _, err := AddressOf(bad); err == nil {
		t.Error("expected error for a node with two types")
	}
}
