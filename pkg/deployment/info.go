package deployment

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
)

// Deployment states reported by deployment-info.
const (
	StateEnabled  = "enabled"
	StateDisabled = "disabled"
	StateAdded    = "added"
	StateNotAdded = "not added"
)

func (r *Runner) list(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%s: unexpected arguments %v", CmdList, args)
	}
	names, err := r.names(ctx, address.New(), "deployment")
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(r.out, n)
	}
	return nil
}

// deployments reads the deployment children of addr keyed by name.
func (r *Runner) deployments(ctx context.Context, addr *address.Address) (map[string]*structpb.Struct, error) {
	res, err := r.read(ctx, addr, "read-children-resources", map[string]*structpb.Value{
		"child-type": structpb.NewStringValue("deployment"),
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]*structpb.Struct)
	for name, v := range res.GetStructValue().GetFields() {
		out[name] = v.GetStructValue()
	}
	return out, nil
}

func (r *Runner) info(ctx context.Context, args []string) error {
	o, err := parseInfo(args)
	if err != nil {
		return err
	}
	domain, err := r.domain(ctx)
	if err != nil {
		return err
	}
	switch {
	case !domain && o.serverGroup != "":
		return fmt.Errorf("%s: server groups are only available in a managed domain", CmdInfo)
	case !domain:
		return r.deploymentTable(ctx, address.New(), o.name, StateDisabled)
	case o.serverGroup != "":
		return r.deploymentTable(ctx, groupAddress(o.serverGroup, ""), o.name, StateAdded)
	case o.name != "":
		return r.groupTable(ctx, o.name)
	}
	content, err := r.deployments(ctx, address.New())
	if err != nil {
		return err
	}
	var rows [][]string
	for _, name := range slices.Sorted(maps.Keys(content)) {
		rows = append(rows, []string{name, attr(content[name], "runtime-name")})
	}
	return r.render([]string{"NAME", "RUNTIME-NAME"}, rows)
}

// deploymentTable prints the deployments under addr, or only name when
// it is set. off names the state of a deployment that is not enabled.
func (r *Runner) deploymentTable(ctx context.Context, addr *address.Address, name, off string) error {
	deps, err := r.deployments(ctx, addr)
	if err != nil {
		return err
	}
	names := slices.Sorted(maps.Keys(deps))
	if name != "" {
		if _, ok := deps[name]; !ok {
			return fmt.Errorf("%s: deployment %s not found", CmdInfo, name)
		}
		names = []string{name}
	}
	rows := make([][]string, 0, len(names))
	for _, n := range names {
		state := off
		if deps[n].GetFields()["enabled"].GetBoolValue() {
			state = StateEnabled
		}
		rows = append(rows, []string{n, attr(deps[n], "runtime-name"), state})
	}
	return r.render([]string{"NAME", "RUNTIME-NAME", "STATE"}, rows)
}

// groupTable prints the state of name in every server group.
func (r *Runner) groupTable(ctx context.Context, name string) error {
	groups, err := r.serverGroups(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		deps, err := r.deployments(ctx, groupAddress(g, ""))
		if err != nil {
			return err
		}
		state := StateNotAdded
		if d, ok := deps[name]; ok {
			state = StateAdded
			if d.GetFields()["enabled"].GetBoolValue() {
				state = StateEnabled
			}
		}
		rows = append(rows, []string{g, state})
	}
	return r.render([]string{"SERVER-GROUP", "STATE"}, rows)
}

func attr(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func (r *Runner) render(headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(headers...).
		Rows(rows...)
	_, err := fmt.Fprintln(r.out, t.String())
	return err
}
