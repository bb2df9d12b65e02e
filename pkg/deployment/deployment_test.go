package deployment

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/model"
	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
)

type modelExecutor struct{ m *model.Model }

func (e modelExecutor) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	return operation.ResultOf(e.m.Execute(ctx, req))
}

func newRunner(t *testing.T, domain bool) (*Runner, modelExecutor, *bytes.Buffer) {
	t.Helper()
	exec := modelExecutor{m: model.New(model.Options{Domain: domain})}
	var out bytes.Buffer
	return NewRunner(exec, &out), exec, &out
}

func writeArchive(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("PK"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func readAttr(t *testing.T, exec modelExecutor, addr *address.Address, name string) (*structpb.Value, error) {
	t.Helper()
	return exec.Execute(context.Background(), step(addr, "read-attribute", map[string]*structpb.Value{
		operation.FieldName: structpb.NewStringValue(name),
	}))
}

func enabled(t *testing.T, exec modelExecutor, addr *address.Address) bool {
	t.Helper()
	v, err := readAttr(t, exec, addr, "enabled")
	if err != nil {
		t.Fatalf("read enabled of %s: %v", addr, err)
	}
	return v.GetBoolValue()
}

func run(t *testing.T, r *Runner, line string) error {
	t.Helper()
	args, err := SplitArgs(line)
	if err != nil {
		t.Fatalf("SplitArgs(%q): %v", line, err)
	}
	return r.Run(context.Background(), args[0], args[1:])
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"deploy app.war", []string{"deploy", "app.war"}},
		{`deploy "my app.war" --name='x y'`, []string{"deploy", "my app.war", "--name=x y"}},
		{
			"deploy app.war --headers={rollout main-server-group^other-server-group rollback-across-groups} --force",
			[]string{"deploy", "app.war", "--headers={rollout main-server-group^other-server-group rollback-across-groups}", "--force"},
		},
		{
			`undeploy a --headers={rollout g(x="}")} --keep-content`,
			[]string{"undeploy", "a", `--headers={rollout g(x="}")}`, "--keep-content"},
		},
	}
	for _, tt := range tests {
		got, err := SplitArgs(tt.line)
		if err != nil {
			t.Errorf("SplitArgs(%q): %v", tt.line, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("SplitArgs(%q) (-want +got):\n%s", tt.line, diff)
		}
	}
	if _, err := SplitArgs("deploy --headers={rollout a"); err == nil {
		t.Error("unclosed header list accepted")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"no content", "deploy", "a file path or --url is required"},
		{"path and url", "deploy a.war --url=http://x/a.war", "mutually exclusive"},
		{"force with groups", "deploy a.war --force --all-server-groups", "--force"},
		{"both group flags", "deploy a.war --server-groups=a --all-server-groups", "mutually exclusive"},
		{"unknown flag", "deploy a.war --colour", "unknown flag"},
		{"undeploy without name", "undeploy", "a deployment name is required"},
		{"undeploy extra", "undeploy a b", "unexpected arguments"},
		{"enable both group flags", "deployment-enable a --server-groups=g --all-server-groups", "mutually exclusive"},
		{"missing file", "deploy /nonexistent/app.war", "no such file"},
		{"list arguments", "deployment-list x", "unexpected arguments"},
	}
	r, _, _ := newRunner(t, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(t, r, tt.line)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("%q: error %v, want it to contain %q", tt.line, err, tt.want)
			}
		})
	}
}

func TestDeployStandalone(t *testing.T) {
	r, exec, _ := newRunner(t, false)
	archive := writeArchive(t, "app.war")
	app := contentAddress("app.war")

	if err := run(t, r, "deploy "+archive); err != nil {
		t.Fatal(err)
	}
	if !enabled(t, exec, app) {
		t.Error("app.war is not enabled")
	}
	content, err := readAttr(t, exec, app, "content")
	if err != nil {
		t.Fatal(err)
	}
	wantURL := "file://" + filepath.ToSlash(archive)
	if got := content.GetListValue().GetValues()[0].GetStructValue().GetFields()["url"].GetStringValue(); got != wantURL {
		t.Errorf("content url = %q, want %q", got, wantURL)
	}

	if err := run(t, r, "deploy "+archive); err == nil || !strings.Contains(err.Error(), "WFLYCTL0212") {
		t.Errorf("second deploy: %v", err)
	}
	if err := run(t, r, "deploy "+archive+" --force --disabled"); err != nil {
		t.Fatal(err)
	}
	if enabled(t, exec, app) {
		t.Error("forced disabled replacement left app.war enabled")
	}

	if err := run(t, r, "deploy "+archive+" --name=other.war --runtime-name=rt.war --disabled"); err != nil {
		t.Fatal(err)
	}
	rt, err := readAttr(t, exec, contentAddress("other.war"), "runtime-name")
	if err != nil {
		t.Fatal(err)
	}
	if rt.GetStringValue() != "rt.war" {
		t.Errorf("runtime-name = %v", rt)
	}
	if err := run(t, r, "deploy "+archive+" --name=x.war --server-groups=main-server-group"); err == nil {
		t.Error("standalone deploy accepted server groups")
	}
}

func TestDeployDomain(t *testing.T) {
	r, exec, _ := newRunner(t, true)
	archive := writeArchive(t, "app.war")

	if err := run(t, r, "deploy "+archive); err == nil || !strings.Contains(err.Error(), "--server-groups") {
		t.Fatalf("deploy without server groups: %v", err)
	}
	if err := run(t, r, "deploy "+archive+" --server-groups=main-server-group"); err != nil {
		t.Fatal(err)
	}
	if !enabled(t, exec, groupAddress("main-server-group", "app.war")) {
		t.Error("app.war is not enabled in main-server-group")
	}
	if _, err := readAttr(t, exec, groupAddress("other-server-group", "app.war"), "enabled"); err == nil {
		t.Error("app.war was added to other-server-group")
	}

	if err := run(t, r, "deploy "+archive+" --name=all.war --all-server-groups"); err != nil {
		t.Fatal(err)
	}
	for _, g := range []string{"main-server-group", "other-server-group"} {
		if !enabled(t, exec, groupAddress(g, "all.war")) {
			t.Errorf("all.war is not enabled in %s", g)
		}
	}

	if err := run(t, r, "deploy "+archive+" --name=bad.war --server-groups=nowhere"); err == nil {
		t.Error("deploy to a missing server group succeeded")
	}
	if _, err := readAttr(t, exec, contentAddress("bad.war"), "enabled"); err == nil {
		t.Error("failed deploy left its content behind")
	}
}

func TestUndeployStandalone(t *testing.T) {
	r, exec, _ := newRunner(t, false)
	archive := writeArchive(t, "app.war")
	if err := run(t, r, "deploy "+archive); err != nil {
		t.Fatal(err)
	}
	if err := run(t, r, "undeploy app.war --keep-content"); err != nil {
		t.Fatal(err)
	}
	if enabled(t, exec, contentAddress("app.war")) {
		t.Error("app.war still enabled")
	}
	if err := run(t, r, "undeploy app.war"); err != nil {
		t.Fatal(err)
	}
	if _, err := readAttr(t, exec, contentAddress("app.war"), "enabled"); err == nil {
		t.Error("app.war content was not removed")
	}
}

func TestUndeployDomain(t *testing.T) {
	r, exec, _ := newRunner(t, true)
	archive := writeArchive(t, "app.war")
	if err := run(t, r, "deploy "+archive+" --all-server-groups"); err != nil {
		t.Fatal(err)
	}

	if err := run(t, r, "undeploy app.war"); err == nil || !strings.Contains(err.Error(), "--all-relevant-server-groups") {
		t.Fatalf("undeploy without groups: %v", err)
	}
	if err := run(t, r, "undeploy app.war --server-groups=main-server-group"); err != nil {
		t.Fatal(err)
	}
	if _, err := readAttr(t, exec, groupAddress("main-server-group", "app.war"), "enabled"); err == nil {
		t.Error("app.war still in main-server-group")
	}
	if !enabled(t, exec, groupAddress("other-server-group", "app.war")) {
		t.Error("app.war was removed from other-server-group")
	}
	if _, err := readAttr(t, exec, contentAddress("app.war"), "runtime-name"); err != nil {
		t.Errorf("content referenced by other-server-group was removed: %v", err)
	}
	if err := run(t, r, "undeploy app.war --server-groups=main-server-group"); err == nil {
		t.Error("undeploy from a group without the deployment succeeded")
	}

	if err := run(t, r, "undeploy app.war --all-relevant-server-groups"); err != nil {
		t.Fatal(err)
	}
	if _, err := readAttr(t, exec, contentAddress("app.war"), "runtime-name"); err == nil {
		t.Error("content was not removed")
	}
}

func TestDeploymentEnable(t *testing.T) {
	r, exec, _ := newRunner(t, true)
	archive := writeArchive(t, "app.war")
	if err := run(t, r, "deploy "+archive+" --disabled"); err != nil {
		t.Fatal(err)
	}
	if err := run(t, r, "deployment-enable app.war"); err == nil {
		t.Error("domain enable without server groups succeeded")
	}
	if err := run(t, r, "deployment-enable app.war --server-groups=other-server-group"); err != nil {
		t.Fatal(err)
	}
	if !enabled(t, exec, groupAddress("other-server-group", "app.war")) {
		t.Error("app.war is not enabled in other-server-group")
	}

	sr, sexec, _ := newRunner(t, false)
	if err := run(t, sr, "deploy "+archive+" --disabled"); err != nil {
		t.Fatal(err)
	}
	if err := run(t, sr, "deployment-enable app.war"); err != nil {
		t.Fatal(err)
	}
	if !enabled(t, sexec, contentAddress("app.war")) {
		t.Error("standalone app.war is not enabled")
	}
}

func TestListAndInfo(t *testing.T) {
	r, _, out := newRunner(t, true)
	archive := writeArchive(t, "app.war")
	if err := run(t, r, "deploy "+archive+" --server-groups=main-server-group"); err != nil {
		t.Fatal(err)
	}
	if err := run(t, r, "deploy "+archive+" --name=idle.war --disabled"); err != nil {
		t.Fatal(err)
	}

	if err := run(t, r, "deployment-list"); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "app.war\nidle.war\n" {
		t.Errorf("deployment-list = %q", got)
	}

	out.Reset()
	if err := run(t, r, "deployment-info app.war"); err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		switch {
		case strings.Contains(line, "main-server-group") && !strings.Contains(line, StateEnabled):
			t.Errorf("main-server-group row %q", line)
		case strings.Contains(line, "other-server-group") && !strings.Contains(line, StateNotAdded):
			t.Errorf("other-server-group row %q", line)
		}
	}

	out.Reset()
	if err := run(t, r, "deployment-info --server-group=main-server-group"); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); !strings.Contains(got, "app.war") || strings.Contains(got, "idle.war") {
		t.Errorf("server group info = %q", got)
	}
	if err := run(t, r, "deployment-info missing.war --server-group=main-server-group"); err == nil {
		t.Error("info on a missing deployment succeeded")
	}
}

func TestHeaders(t *testing.T) {
	r, exec, _ := newRunner(t, true)
	archive := writeArchive(t, "app.war")
	ctx := context.Background()

	args := []string{archive, "--all-server-groups", "--headers={rollback-on-runtime-failure=false}"}
	req, err := r.Request(ctx, CmdDeploy, args)
	if err != nil {
		t.Fatal(err)
	}
	h := req.GetFields()[operation.FieldOperationHeaders].GetStructValue().GetFields()
	if v, ok := h[model.HeaderRollbackOnRuntimeFailure]; !ok || v.GetBoolValue() {
		t.Errorf("headers = %v", h)
	}
	if n := len(req.GetFields()[operation.FieldSteps].GetListValue().GetValues()); n != 5 {
		t.Errorf("composite has %d steps, want 5", n)
	}

	if err := run(t, r, "deploy "+archive+" --name=a.war --all-server-groups --headers={rollout nowhere}"); err == nil ||
		!strings.Contains(err.Error(), "WFLYDC0030") {
		t.Errorf("deploy with an unknown rollout group: %v", err)
	}

	plan := &structpb.Struct{Fields: map[string]*structpb.Value{
		"in-series": structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{
			structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
				"server-group": structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
					"main-server-group": structpb.NewStructValue(&structpb.Struct{}),
				}}),
			}}),
		}}),
	}}
	stored := address.New(
		address.Node{Type: "management-client-content", Name: "rollout-plans"},
		address.Node{Type: "rollout-plan", Name: "safe"},
	)
	if _, err := exec.Execute(ctx, step(stored, "add", map[string]*structpb.Value{"content": structpb.NewStructValue(plan)})); err != nil {
		t.Fatal(err)
	}
	if err := run(t, r, "deploy "+archive+" --name=b.war --server-groups=main-server-group --headers={rollout name=safe}"); err != nil {
		t.Fatal(err)
	}
	if err := run(t, r, "deploy "+archive+" --name=c.war --server-groups=main-server-group --headers={rollout name=missing}"); err == nil ||
		!strings.Contains(err.Error(), "read rollout plan missing") {
		t.Errorf("deploy with a missing stored plan: %v", err)
	}

	if _, err := r.Request(ctx, CmdList, nil); err == nil {
		t.Error("deployment-list was batchable")
	}
}
