package operation

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/rollout"
)

// Executor runs a request and returns its result.
type Executor interface {
	Execute(ctx context.Context, req *structpb.Struct) (*structpb.Value, error)
}

// ResolveRolloutPlan loads the content of a plan that references a stored
// plan by name. Explicit plans and already resolved plans are left alone.
func ResolveRolloutPlan(ctx context.Context, exec Executor, plan *rollout.Plan) error {
	if plan == nil || plan.Name == "" || plan.Content != nil {
		return nil
	}
	b := NewBuilder(rollout.StoredPlanAddress(plan.Name))
	b.SetOperationName("read-attribute")
	b.SetProperty(FieldName, structpb.NewStringValue("content"))
	req, err := b.Build()
	if err != nil {
		return err
	}
	res, err := exec.Execute(ctx, req)
	if err != nil {
		return fmt.Errorf("read rollout plan %s: %w", plan.Name, err)
	}
	content := res.GetStructValue()
	if content == nil {
		return fmt.Errorf("rollout plan %s has no content", plan.Name)
	}
	plan.Content = content
	return nil
}

// ParseHeaderList parses a standalone {name=value;...} header list, as
// given to --headers, and resolves a stored rollout plan it references.
func ParseHeaderList(ctx context.Context, exec Executor, text string) ([]Header, error) {
	p := NewParsedRequest(Strict)
	if err := p.Parse(nil, text); err != nil {
		return nil, err
	}
	if p.HasAddress() || p.HasOperationName() || !p.HasHeaderList() || !p.IsHeaderListEnded() {
		return nil, fmt.Errorf("expected {name=value;...}, got %q", text)
	}
	if err := ResolveRolloutPlan(ctx, exec, p.RolloutPlan()); err != nil {
		return nil, err
	}
	headers := make([]Header, 0, len(p.s.headerOrder))
	for _, name := range p.s.headerOrder {
		headers = append(headers, p.s.headers[name])
	}
	return headers, nil
}
