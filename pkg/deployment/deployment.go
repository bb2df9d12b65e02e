// Package deployment implements the deploy, undeploy, deployment-enable,
// deployment-list and deployment-info shell commands. Each command becomes
// one management request, a composite when it needs several steps.
package deployment

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
)

// Command names.
const (
	CmdDeploy   = "deploy"
	CmdUndeploy = "undeploy"
	CmdEnable   = "deployment-enable"
	CmdList     = "deployment-list"
	CmdInfo     = "deployment-info"
)

// Commands lists every command handled by a Runner.
var Commands = []string{CmdDeploy, CmdUndeploy, CmdEnable, CmdList, CmdInfo}

// Runner executes deployment commands against a controller.
type Runner struct {
	exec operation.Executor
	out  io.Writer
}

// NewRunner returns a runner that executes through exec and prints
// listings to out.
func NewRunner(exec operation.Executor, out io.Writer) *Runner {
	return &Runner{exec: exec, out: out}
}

// Run executes cmd with its arguments.
func (r *Runner) Run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case CmdList:
		return r.list(ctx, args)
	case CmdInfo:
		return r.info(ctx, args)
	}
	req, err := r.Request(ctx, cmd, args)
	if err != nil {
		return err
	}
	_, err = r.exec.Execute(ctx, req)
	return err
}

// Request builds the request of a modifying command without executing it,
// so that it can be added to a batch. Reading the controller may still be
// needed to learn the launch type and the server groups.
func (r *Runner) Request(ctx context.Context, cmd string, args []string) (*structpb.Struct, error) {
	switch cmd {
	case CmdDeploy:
		o, err := parseDeploy(args)
		if err != nil {
			return nil, err
		}
		return r.deploy(ctx, o)
	case CmdUndeploy:
		o, err := parseUndeploy(args)
		if err != nil {
			return nil, err
		}
		return r.undeploy(ctx, o)
	case CmdEnable:
		o, err := parseEnable(args)
		if err != nil {
			return nil, err
		}
		return r.enable(ctx, o)
	case CmdList, CmdInfo:
		return nil, fmt.Errorf("%s only reads deployments and cannot be batched", cmd)
	}
	return nil, fmt.Errorf("unknown deployment command %q", cmd)
}

func contentAddress(name string) *address.Address {
	return address.New(address.Node{Type: "deployment", Name: name})
}

func groupAddress(group, name string) *address.Address {
	a := address.New(address.Node{Type: "server-group", Name: group})
	if name != "" {
		a.ToNode("deployment", name)
	}
	return a
}

func step(addr *address.Address, op string, props map[string]*structpb.Value) *structpb.Struct {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		operation.FieldOperation: structpb.NewStringValue(op),
		operation.FieldAddress:   operation.AddressValue(addr),
	}}
	maps.Copy(req.Fields, props)
	return req
}

// compose turns steps into one request carrying headers.
func compose(steps []*structpb.Struct, headers []operation.Header) (*structpb.Struct, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("nothing to do")
	}
	req := steps[0]
	if len(steps) > 1 {
		req = operation.NewComposite(steps...)
	}
	if err := operation.AddHeaders(req, headers...); err != nil {
		return nil, err
	}
	return req, nil
}

// headers parses a --headers value. A rollout plan that references a
// stored plan is resolved against the controller.
func (r *Runner) headers(ctx context.Context, text string) ([]operation.Header, error) {
	if text == "" {
		return nil, nil
	}
	headers, err := operation.ParseHeaderList(ctx, r.exec, text)
	if err != nil {
		return nil, fmt.Errorf("--headers: %w", err)
	}
	return headers, nil
}

func (r *Runner) read(ctx context.Context, addr *address.Address, op string, props map[string]*structpb.Value) (*structpb.Value, error) {
	return r.exec.Execute(ctx, step(addr, op, props))
}

func (r *Runner) names(ctx context.Context, addr *address.Address, childType string) ([]string, error) {
	res, err := r.read(ctx, addr, "read-children-names", map[string]*structpb.Value{
		"child-type": structpb.NewStringValue(childType),
	})
	if err != nil {
		return nil, err
	}
	var out []string
	for _, v := range res.GetListValue().GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out, nil
}

func (r *Runner) domain(ctx context.Context) (bool, error) {
	res, err := r.read(ctx, address.New(), "read-attribute", map[string]*structpb.Value{
		operation.FieldName: structpb.NewStringValue("launch-type"),
	})
	if err != nil {
		return false, fmt.Errorf("read launch type: %w", err)
	}
	return res.GetStringValue() == "DOMAIN", nil
}

func (r *Runner) serverGroups(ctx context.Context) ([]string, error) {
	return r.names(ctx, address.New(), "server-group")
}

// relevantGroups returns the server groups name is assigned to.
func (r *Runner) relevantGroups(ctx context.Context, name string) ([]string, error) {
	groups, err := r.serverGroups(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, g := range groups {
		deployed, err := r.names(ctx, groupAddress(g, ""), "deployment")
		if err != nil {
			return nil, err
		}
		if slices.Contains(deployed, name) {
			out = append(out, g)
		}
	}
	return out, nil
}

// content returns the content list and the default deployment name.
func (o *deployOptions) content() (*structpb.Value, string, error) {
	var loc, name string
	if o.url != "" {
		u, err := url.Parse(o.url)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", CmdDeploy, err)
		}
		loc, name = o.url, path.Base(u.Path)
	} else {
		abs, err := filepath.Abs(o.path)
		if err != nil {
			return nil, "", err
		}
		fi, err := os.Stat(abs)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", CmdDeploy, err)
		}
		if !fi.Mode().IsRegular() {
			return nil, "", fmt.Errorf("%s: %s is not a file", CmdDeploy, o.path)
		}
		loc = (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
		name = filepath.Base(abs)
	}
	if o.name != "" {
		name = o.name
	}
	if name == "" || name == "." || name == "/" {
		return nil, "", fmt.Errorf("%s: cannot derive a deployment name, use --name", CmdDeploy)
	}
	item := structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"url": structpb.NewStringValue(loc),
	}})
	return structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{item}}), name, nil
}

func (r *Runner) deploy(ctx context.Context, o *deployOptions) (*structpb.Struct, error) {
	headers, err := r.headers(ctx, o.headers)
	if err != nil {
		return nil, err
	}
	content, name, err := o.content()
	if err != nil {
		return nil, err
	}
	props := map[string]*structpb.Value{"content": content}
	if o.runtimeName != "" {
		props["runtime-name"] = structpb.NewStringValue(o.runtimeName)
	}
	if o.force {
		props[operation.FieldName] = structpb.NewStringValue(name)
		props["enabled"] = structpb.NewBoolValue(!o.disabled)
		return compose([]*structpb.Struct{step(address.New(), "full-replace-deployment", props)}, headers)
	}

	domain, err := r.domain(ctx)
	if err != nil {
		return nil, err
	}
	steps := []*structpb.Struct{step(contentAddress(name), "add", props)}
	if !domain {
		if o.allServerGroups || len(o.serverGroups) > 0 {
			return nil, fmt.Errorf("%s: server groups are only available in a managed domain", CmdDeploy)
		}
		if !o.disabled {
			steps = append(steps, step(contentAddress(name), "deploy", nil))
		}
		return compose(steps, headers)
	}

	groups := o.serverGroups
	if o.allServerGroups {
		if groups, err = r.serverGroups(ctx); err != nil {
			return nil, err
		}
	}
	if len(groups) == 0 && !o.disabled {
		return nil, fmt.Errorf("%s: one of --server-groups or --all-server-groups is required in a managed domain", CmdDeploy)
	}
	var groupProps map[string]*structpb.Value
	if o.runtimeName != "" {
		groupProps = map[string]*structpb.Value{"runtime-name": props["runtime-name"]}
	}
	for _, g := range groups {
		steps = append(steps, step(groupAddress(g, name), "add", groupProps))
		if !o.disabled {
			steps = append(steps, step(groupAddress(g, name), "deploy", nil))
		}
	}
	return compose(steps, headers)
}

func (r *Runner) undeploy(ctx context.Context, o *undeployOptions) (*structpb.Struct, error) {
	headers, err := r.headers(ctx, o.headers)
	if err != nil {
		return nil, err
	}
	domain, err := r.domain(ctx)
	if err != nil {
		return nil, err
	}
	if !domain {
		if o.allRelevant || len(o.serverGroups) > 0 {
			return nil, fmt.Errorf("%s: server groups are only available in a managed domain", CmdUndeploy)
		}
		steps := []*structpb.Struct{step(contentAddress(o.name), "undeploy", nil)}
		if !o.keepContent {
			steps = append(steps, step(contentAddress(o.name), "remove", nil))
		}
		return compose(steps, headers)
	}

	relevant, err := r.relevantGroups(ctx, o.name)
	if err != nil {
		return nil, err
	}
	groups := o.serverGroups
	if o.allRelevant {
		groups = relevant
	}
	if len(groups) == 0 && len(relevant) > 0 {
		return nil, fmt.Errorf("%s: %s is deployed to server groups %v; use --server-groups or --all-relevant-server-groups",
			CmdUndeploy, o.name, relevant)
	}
	var steps []*structpb.Struct
	for _, g := range groups {
		if !slices.Contains(relevant, g) {
			return nil, fmt.Errorf("%s: %s is not deployed to server group %s", CmdUndeploy, o.name, g)
		}
		steps = append(steps,
			step(groupAddress(g, o.name), "undeploy", nil),
			step(groupAddress(g, o.name), "remove", nil))
	}
	// Content still referenced by a server group outside the selection stays.
	referenced := slices.ContainsFunc(relevant, func(g string) bool { return !slices.Contains(groups, g) })
	if !o.keepContent && !referenced {
		steps = append(steps, step(contentAddress(o.name), "remove", nil))
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%s: %s is not deployed to any server group", CmdUndeploy, o.name)
	}
	return compose(steps, headers)
}

func (r *Runner) enable(ctx context.Context, o *enableOptions) (*structpb.Struct, error) {
	headers, err := r.headers(ctx, o.headers)
	if err != nil {
		return nil, err
	}
	domain, err := r.domain(ctx)
	if err != nil {
		return nil, err
	}
	if !domain {
		if o.allServerGroups || len(o.serverGroups) > 0 {
			return nil, fmt.Errorf("%s: server groups are only available in a managed domain", CmdEnable)
		}
		return compose([]*structpb.Struct{step(contentAddress(o.name), "deploy", nil)}, headers)
	}

	groups := o.serverGroups
	if o.allServerGroups {
		if groups, err = r.serverGroups(ctx); err != nil {
			return nil, err
		}
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%s: one of --server-groups or --all-server-groups is required in a managed domain", CmdEnable)
	}
	relevant, err := r.relevantGroups(ctx, o.name)
	if err != nil {
		return nil, err
	}
	var steps []*structpb.Struct
	for _, g := range groups {
		if !slices.Contains(relevant, g) {
			steps = append(steps, step(groupAddress(g, o.name), "add", nil))
		}
		steps = append(steps, step(groupAddress(g, o.name), "deploy", nil))
	}
	return compose(steps, headers)
}
