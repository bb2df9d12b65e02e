package rollout

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/parser"
)

func parseHeader(t *testing.T, input string) (*Handler, error) {
	t.Helper()
	root := parser.NewState("HEADERS")
	root.Default = func(ctx *parser.Context) error {
		if LookingAtWord(ctx, Keyword) {
			return ctx.EnterState(Grammar)
		}
		return nil
	}
	h := NewHandler(0)
	return h, parser.Parse(input, root, h)
}

func mustValue(t *testing.T, v any) *structpb.Value {
	t.Helper()
	pv, err := structpb.NewValue(v)
	if err != nil {
		t.Fatal(err)
	}
	return pv
}

func TestPlanValue(t *testing.T) {
	h, err := parseHeader(t, "rollout groupA^groupB(rolling-to-servers=false),groupC rollback-across-groups")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, err := h.Plan().Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	want := mustValue(t, map[string]any{
		"in-series": []any{
			map[string]any{"concurrent-groups": map[string]any{
				"groupA": map[string]any{},
				"groupB": map[string]any{"rolling-to-servers": false},
			}},
			map[string]any{"server-group": map[string]any{
				"groupC": map[string]any{},
			}},
		},
		"rollback-across-groups": true,
	})
	if diff := cmp.Diff(want, got, protocmp.Transform()); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupProperties(t *testing.T) {
	h, err := parseHeader(t, "rollout main(max-failed-servers=1, !rolling-to-servers)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	groups := h.Plan().Groups()
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	want := []Property{
		{Name: MaxFailedServers, Value: "1"},
		{Name: RollingToServers, Value: "false"},
	}
	if diff := cmp.Diff(want, groups[0].Props); diff != "" {
		t.Errorf("props mismatch (-want +got):\n%s", diff)
	}
	if h.LastSeparator() != SeparatorPropertyListEnd {
		t.Errorf("LastSeparator = %v", h.LastSeparator())
	}
}

func TestPlanReference(t *testing.T) {
	h, err := parseHeader(t, "rollout name=my-plan")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !h.IsPlanRef() || h.Plan().Name != "my-plan" {
		t.Fatalf("plan name = %q", h.Plan().Name)
	}
	if _, err := h.Plan().Value(); err == nil {
		t.Error("expected error for unresolved plan")
	}
	content, _ := structpb.NewStruct(map[string]any{"in-series": []any{}})
	h.Plan().Content = content
	headers := &structpb.Struct{}
	if err := h.Plan().AddTo(headers); err != nil {
		t.Fatalf("AddTo: %v", err)
	}
	if _, ok := headers.Fields[HeaderName]; !ok {
		t.Error("rollout-plan header missing")
	}
}

func TestContainsAllGroups(t *testing.T) {
	h, err := parseHeader(t, "rollout groupA,groupB(rolling-to-servers)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !h.ContainsAllGroups([]string{"groupA", "groupB"}) {
		t.Error("expected all groups to be present")
	}
	if h.ContainsAllGroups([]string{"groupA", "groupB", "groupC"}) {
		t.Error("groupC is not in the plan")
	}
	if h.EndState() != StateGroup || !h.PropertiesClosed() {
		t.Errorf("EndState = %q, PropertiesClosed = %v", h.EndState(), h.PropertiesClosed())
	}
}

func TestRollbackValue(t *testing.T) {
	h, err := parseHeader(t, "rollout a^rollback-across-groups=false")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p := h.Plan()
	if p.RollbackAcrossGroups == nil || *p.RollbackAcrossGroups {
		t.Errorf("RollbackAcrossGroups = %v", p.RollbackAcrossGroups)
	}
	if len(p.Steps) != 1 {
		t.Errorf("steps = %d, want 1", len(p.Steps))
	}
}

func TestRolloutErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"duplicate group", "rollout groupA,groupA"},
		{"text after properties", "rollout a(x=1)b"},
		{"unclosed properties", "rollout a(x=1"},
		{"leading separator", "rollout ,a"},
		{"negated value", "rollout a(!rolling-to-servers=true)"},
		{"bad rollback value", "rollout a rollback-across-groups=maybe;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseHeader(t, tt.input)
			var fe *parser.FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FormatError, got %v", err)
			}
		})
	}
}

func TestAddConcurrentGroup(t *testing.T) {
	var p Plan
	p.AddConcurrentGroup(&SingleGroup{Name: "a"})
	p.AddConcurrentGroup(&SingleGroup{Name: "b"})
	p.AddConcurrentGroup(&SingleGroup{Name: "c"})
	if len(p.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(p.Steps))
	}
	c, ok := p.Steps[0].(*ConcurrentGroup)
	if !ok || len(c.Groups) != 3 {
		t.Fatalf("step = %#v", p.Steps[0])
	}
	if got := StoredPlanAddress("p1").String(); got != "/management-client-content=rollout-plans/rollout-plan=p1" {
		t.Errorf("StoredPlanAddress = %q", got)
	}
}
