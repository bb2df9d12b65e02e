package completion

import (
	"context"
	"slices"
	"strings"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/rollout"
)

// completeRollout completes inside a rollout header, which the request
// handler delegated to rh.
func (c *Completer) completeRollout(ctx context.Context, rh *rollout.Handler, line string) (Result, error) {
	end := len(line)
	plan := rh.Plan()
	switch rh.EndState() {
	case rollout.StatePlan:
		if end == rh.Index()+len(rollout.Keyword) {
			return Result{Candidates: []string{rollout.Keyword}, Offset: rh.Index(), AppendSpace: true}, nil
		}
		if rh.IsPlanRef() {
			return result([]string{"}"}, end), nil
		}
		if len(plan.Steps) > 0 {
			if plan.RollbackAcrossGroups != nil {
				return result([]string{"}"}, end), nil
			}
			return result([]string{rollout.RollbackAcrossGroups, "}"}, end), nil
		}
		groups, err := c.provider.ServerGroups(ctx)
		if err != nil {
			return none, err
		}
		return result(filter(append(slices.Clone(groups), rollout.PlanRefPrefix), ""), end), nil

	case rollout.StatePlanRef:
		offset := rh.LastChunkIndex() + len(rollout.PlanRefPrefix)
		if offset > end {
			return none, nil
		}
		plans, err := c.provider.RolloutPlans(ctx)
		if err != nil {
			return none, err
		}
		return result(quoteAll(filter(plans, address.Unquote(line[offset:]))), offset), nil

	case rollout.StateGroups:
		groups, err := c.provider.ServerGroups(ctx)
		if err != nil {
			return none, err
		}
		candidates := without(groups, rh.GroupNames()...)
		if rh.LastSeparator() == rollout.SeparatorConcurrent && plan.RollbackAcrossGroups == nil {
			candidates = append(candidates, rollout.RollbackAcrossGroups)
		}
		return result(filter(candidates, ""), end), nil

	case rollout.StateGroup:
		groups, err := c.provider.ServerGroups(ctx)
		if err != nil {
			return none, err
		}
		if rh.PropertiesClosed() {
			return result(afterGroup(rh, groups), end), nil
		}
		start := rh.LastChunkIndex()
		typed := address.Unquote(line[start:])
		used := without(rh.GroupNames(), typed)
		matches := filter(without(groups, used...), typed)
		if len(matches) == 1 && matches[0] == typed {
			return result(append([]string{"("}, afterGroup(rh, groups)...), end), nil
		}
		return result(matches, start), nil

	case rollout.StateGroupProps:
		switch rh.LastSeparator() {
		case rollout.SeparatorPropertyListStart, rollout.SeparatorProperty:
		default:
			return none, nil
		}
		remaining := without(rollout.GroupProperties, groupPropertyNames(rh.LastGroup())...)
		if len(remaining) == 0 {
			return result([]string{")"}, end), nil
		}
		return result(filter(remaining, ""), end), nil

	case rollout.StateGroupProp:
		start := rh.LastChunkIndex()
		typed := line[start:]
		candidates := rollout.GroupProperties
		if bare, ok := strings.CutPrefix(typed, "!"); ok {
			start++
			typed = bare
			candidates = []string{rollout.RollingToServers}
		}
		present := without(groupPropertyNames(rh.LastGroup()), address.Unquote(typed))
		matches := filter(without(candidates, present...), typed)
		if len(matches) == 1 && matches[0] == typed && start == rh.LastChunkIndex() {
			matches[0] += "="
		}
		return result(matches, start), nil

	case rollout.StateGroupPropValue:
		if address.Unquote(rh.LastPropertyName()) != rollout.RollingToServers {
			return none, nil
		}
		start := rh.LastChunkIndex()
		return result(Booleans(ctx, strings.TrimSpace(line[start:])), start), nil

	case rollout.StateRollback:
		start := rh.LastChunkIndex()
		typed := line[start:]
		if v, ok := strings.CutPrefix(typed, rollout.RollbackAcrossGroups+"="); ok {
			offset := start + len(rollout.RollbackAcrossGroups) + 1
			return result(Booleans(ctx, v), offset), nil
		}
		if typed == rollout.RollbackAcrossGroups {
			return result([]string{"}"}, end), nil
		}
		return result(filter([]string{rollout.RollbackAcrossGroups}, typed), start), nil
	}
	return none, nil
}

// afterGroup proposes what may follow a complete server group: the next
// group joined in series or concurrently, or, once every group is in the
// plan, the rollback flag and the end of the header.
func afterGroup(rh *rollout.Handler, groups []string) []string {
	if rh.ContainsAllGroups(groups) {
		if rh.Plan().RollbackAcrossGroups != nil {
			return []string{"}"}
		}
		return []string{"^" + rollout.RollbackAcrossGroups, "}"}
	}
	var out []string
	for _, g := range filter(without(groups, rh.GroupNames()...), "") {
		out = append(out, ","+g, "^"+g)
	}
	return out
}

func groupPropertyNames(g *rollout.SingleGroup) []string {
	if g == nil {
		return nil
	}
	out := make([]string, 0, len(g.Props))
	for _, p := range g.Props {
		out = append(out, p.Name)
	}
	return out
}
