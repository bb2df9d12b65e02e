package completion

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
)

type fakeProvider struct {
	types  map[string][]string
	names  map[string][]string
	ops    []string
	props  map[string][]Property
	caps   []string
	groups []string
	plans  []string
	err    error
}

func (f *fakeProvider) NodeTypes(_ context.Context, addr *address.Address) ([]string, error) {
	return f.types[addr.String()], f.err
}

func (f *fakeProvider) NodeNames(_ context.Context, addr *address.Address, nodeType string) ([]string, error) {
	return f.names[addr.String()+"|"+nodeType], f.err
}

func (f *fakeProvider) OperationNames(context.Context, *address.Address) ([]string, error) {
	return f.ops, f.err
}

func (f *fakeProvider) OperationProperties(_ context.Context, _ *address.Address, op string) ([]Property, error) {
	return f.props[op], f.err
}

func (f *fakeProvider) SuggestCapabilities(context.Context, *address.Address, string) ([]string, error) {
	return f.caps, f.err
}

func (f *fakeProvider) ServerGroups(context.Context) ([]string, error) { return f.groups, f.err }

func (f *fakeProvider) RolloutPlans(context.Context) ([]string, error) { return f.plans, f.err }

func newFake() *fakeProvider {
	return &fakeProvider{
		types: map[string][]string{
			"/":                  {"subsystem", "deployment", "server-group", "core-service"},
			"/subsystem=logging": {"root-logger", "logger"},
		},
		names: map[string][]string{
			"/|subsystem":               {"logging", "io"},
			"/subsystem=logging|logger": {"org.jboss", "com.acme", "my logger"},
		},
		ops: []string{"read-resource", "add", "remove"},
		props: map[string][]Property{
			"read-resource": {
				{Name: "include-runtime", Type: "BOOLEAN"},
				{Name: "recursive", Type: "BOOLEAN"},
				{Name: "recursive-depth", Type: "INT"},
			},
			"add": {
				{Name: "level", Type: "STRING", Allowed: []string{"INFO", "DEBUG"}},
				{Name: "socket-binding", Type: "STRING", CapabilityReference: "org.wildfly.network.socket-binding"},
			},
		},
		caps:   []string{"http", "https", "management"},
		groups: []string{"groupA", "groupB"},
		plans:  []string{"plan-a", "plan-b"},
	}
}

type completionCase struct {
	line   string
	want   []string
	offset int
}

func runCases(t *testing.T, c *Completer, cases []completionCase) {
	t.Helper()
	for _, tc := range cases {
		got := c.Complete(context.Background(), nil, tc.line, len(tc.line))
		if diff := cmp.Diff(tc.want, got.Candidates); diff != "" {
			t.Errorf("Complete(%q) candidates (-want +got):\n%s", tc.line, diff)
		}
		if got.Offset != tc.offset {
			t.Errorf("Complete(%q) offset = %d, want %d", tc.line, got.Offset, tc.offset)
		}
	}
}

func TestCompleteAddress(t *testing.T) {
	runCases(t, New(newFake(), nil), []completionCase{
		{"", []string{"core-service", "deployment", "server-group", "subsystem"}, 0},
		{"/sub", []string{"subsystem"}, 1},
		{"/subsystem", []string{"subsystem="}, 1},
		{"/subsystem=", []string{"io", "logging"}, 11},
		{"/subsystem=lo", []string{"logging"}, 11},
		{"/subsystem=logging/", []string{"logger", "root-logger"}, 19},
		{"/subsystem=logging/logger=", []string{`"my logger"`, "com.acme", "org.jboss"}, 26},
		{"/subsystem=logging/logger=org", []string{"org.jboss"}, 26},
	})
}

func TestCompleteOperation(t *testing.T) {
	runCases(t, New(newFake(), nil), []completionCase{
		{":", []string{"add", "read-resource", "remove"}, 1},
		{":read", []string{"read-resource"}, 1},
		{":read-resource", []string{"("}, 14},
		{":read-resource(", []string{"include-runtime", "recursive", "recursive-depth"}, 15},
		{":read-resource(recursive=true,", []string{"include-runtime", "recursive-depth"}, 30},
		{":read-resource(rec", []string{"recursive", "recursive-depth"}, 15},
		{":read-resource(recursive-depth", []string{"recursive-depth="}, 15},
		{":read-resource(recursive=", []string{"false", "true"}, 25},
		{":read-resource(recursive=t", []string{"true"}, 25},
		{":read-resource(!", []string{"include-runtime", "recursive"}, 16},
		{":read-resource(!rec", []string{"recursive"}, 16},
		{":read-resource(recursive=true)", []string{"{"}, 30},
		{":add(level=", []string{"DEBUG", "INFO"}, 11},
		{":add(socket-binding=h", []string{"http", "https"}, 20},
	})
}

func TestCompleteHeaders(t *testing.T) {
	runCases(t, New(newFake(), nil), []completionCase{
		{":read-resource{", []string{
			"allow-resource-service-restart", "blocking-timeout",
			"rollback-on-runtime-failure", "rollout",
		}, 15},
		{":read-resource{roll", []string{"rollback-on-runtime-failure", "rollout"}, 15},
		{":read-resource{rollback-on-runtime-failure=", []string{"false", "true"}, 43},
		{":read-resource{blocking-timeout=", nil, -1},
	})
}

func TestCompleteRollout(t *testing.T) {
	runCases(t, New(newFake(), nil), []completionCase{
		{":deploy{rollout ", []string{"groupA", "groupB", "name="}, 16},
		{":deploy{rollout name=", []string{"plan-a", "plan-b"}, 21},
		{":deploy{rollout name=plan-b", []string{"plan-b"}, 21},
		{":deploy{rollout gr", []string{"groupA", "groupB"}, 16},
		{":deploy{rollout groupA", []string{"(", ",groupB", "^groupB"}, 22},
		{":deploy{rollout groupA,", []string{"groupB"}, 23},
		{":deploy{rollout groupA^", []string{"groupB", "rollback-across-groups"}, 23},
		{":deploy{rollout groupA(", []string{"max-failed-servers", "max-failure-percentage", "rolling-to-servers"}, 23},
		{":deploy{rollout groupA(max", []string{"max-failed-servers", "max-failure-percentage"}, 23},
		{":deploy{rollout groupA(rolling-to-servers=", []string{"false", "true"}, 42},
		{":deploy{rollout groupA ", []string{"rollback-across-groups", "}"}, 23},
	})
}

func TestCompleteRolloutKeyword(t *testing.T) {
	c := New(newFake(), nil)
	got := c.Complete(context.Background(), nil, ":deploy{rollout", 15)
	want := Result{Candidates: []string{"rollout"}, Offset: 8, AppendSpace: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestRolloutGroupContainment(t *testing.T) {
	const line = ":deploy{rollout groupA,groupB(rolling-to-servers)"
	tests := []struct {
		name   string
		groups []string
		want   []string
	}{
		{"all groups present", []string{"groupA", "groupB"}, []string{"^rollback-across-groups", "}"}},
		{"group remaining", []string{"groupA", "groupB", "groupC"}, []string{",groupC", "^groupC"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFake()
			p.groups = tt.groups
			got := New(p, nil).Complete(context.Background(), nil, line, len(line))
			if diff := cmp.Diff(tt.want, got.Candidates); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
			if got.Offset != len(line) {
				t.Errorf("offset = %d, want %d", got.Offset, len(line))
			}
		})
	}
}

func TestCompleteCursor(t *testing.T) {
	c := New(newFake(), nil)
	buf := "/subsystem=lo:read-resource"
	got := c.Complete(context.Background(), nil, buf, len("/subsystem=lo"))
	if diff := cmp.Diff([]string{"logging"}, got.Candidates); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestCompleteWithPrefix(t *testing.T) {
	c := New(newFake(), nil)
	prefix := address.New(address.Node{Type: "subsystem", Name: "logging"})
	got := c.Complete(context.Background(), prefix, "", 0)
	if diff := cmp.Diff([]string{"logger", "root-logger"}, got.Candidates); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestCompleteProviderFailure(t *testing.T) {
	p := newFake()
	p.err = errors.New("connection refused")
	c := New(p, nil)
	for _, line := range []string{"", "/subsystem=", ":", ":read-resource(", ":deploy{rollout "} {
		got := c.Complete(context.Background(), nil, line, len(line))
		if got.Offset != -1 || len(got.Candidates) != 0 {
			t.Errorf("Complete(%q) = %+v, want no candidates", line, got)
		}
	}
}

type fakeExecutor struct {
	requests []*structpb.Struct
	results  map[string]*structpb.Value
}

func (f *fakeExecutor) Execute(_ context.Context, req *structpb.Struct) (*structpb.Value, error) {
	f.requests = append(f.requests, req)
	v, ok := f.results[operation.OperationOf(req)]
	if !ok {
		return nil, errors.New("unknown operation")
	}
	return v, nil
}

func mustValue(t *testing.T, v any) *structpb.Value {
	t.Helper()
	out, err := structpb.NewValue(v)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestControllerProvider(t *testing.T) {
	exec := &fakeExecutor{results: map[string]*structpb.Value{
		"read-children-names": mustValue(t, []any{"main-server-group", "other-server-group"}),
		"read-operation-description": mustValue(t, map[string]any{
			"request-properties": map[string]any{
				"recursive": map[string]any{"type": "BOOLEAN", "required": false},
				"name":      map[string]any{"type": "STRING", "required": true, "allowed": []any{"a", "b"}},
			},
		}),
	}}
	p := NewControllerProvider(exec)
	ctx := context.Background()

	groups, err := p.ServerGroups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"main-server-group", "other-server-group"}, groups); diff != "" {
		t.Errorf("groups (-want +got):\n%s", diff)
	}
	req := exec.requests[0]
	if got := req.GetFields()["child-type"].GetStringValue(); got != "server-group" {
		t.Errorf("child-type = %q", got)
	}

	props, err := p.OperationProperties(ctx, nil, "read-resource")
	if err != nil {
		t.Fatal(err)
	}
	want := []Property{
		{Name: "name", Type: "STRING", Required: true, Allowed: []string{"a", "b"}},
		{Name: "recursive", Type: "BOOLEAN"},
	}
	if diff := cmp.Diff(want, props); diff != "" {
		t.Errorf("properties (-want +got):\n%s", diff)
	}

	if _, err := p.NodeTypes(ctx, nil); err == nil {
		t.Error("NodeTypes with a failing executor succeeded")
	}
}
