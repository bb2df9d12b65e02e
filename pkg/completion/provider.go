package completion

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
	"github.com/wildfly/wildfly-core-sub044/pkg/rollout"
)

// Property describes one request property of an operation.
type Property struct {
	Name                string
	Type                string
	Required            bool
	CapabilityReference string
	Allowed             []string
}

// Provider supplies live management metadata to the completer.
type Provider interface {
	NodeTypes(ctx context.Context, addr *address.Address) ([]string, error)
	NodeNames(ctx context.Context, addr *address.Address, nodeType string) ([]string, error)
	OperationNames(ctx context.Context, addr *address.Address) ([]string, error)
	OperationProperties(ctx context.Context, addr *address.Address, op string) ([]Property, error)
	SuggestCapabilities(ctx context.Context, addr *address.Address, capability string) ([]string, error)
	ServerGroups(ctx context.Context) ([]string, error)
	RolloutPlans(ctx context.Context) ([]string, error)
}

// Executor runs a request and returns its result.
type Executor interface {
	Execute(ctx context.Context, req *structpb.Struct) (*structpb.Value, error)
}

// ControllerProvider reads metadata with management operations.
type ControllerProvider struct {
	exec Executor
}

// NewControllerProvider returns a provider backed by exec.
func NewControllerProvider(exec Executor) *ControllerProvider {
	return &ControllerProvider{exec: exec}
}

var capabilityRegistry = address.New(address.Node{Type: "core-service", Name: "capability-registry"})

func (p *ControllerProvider) run(ctx context.Context, addr *address.Address, op string, props map[string]*structpb.Value) (*structpb.Value, error) {
	b := operation.NewBuilder(addr)
	b.SetOperationName(op)
	for name, v := range props {
		b.SetProperty(name, v)
	}
	req, err := b.Build()
	if err != nil {
		return nil, err
	}
	return p.exec.Execute(ctx, req)
}

func (p *ControllerProvider) names(ctx context.Context, addr *address.Address, op string, props map[string]*structpb.Value) ([]string, error) {
	res, err := p.run(ctx, addr, op, props)
	if err != nil {
		return nil, err
	}
	list := res.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%s returned %T, want a list", op, res.GetKind())
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out, nil
}

func (p *ControllerProvider) NodeTypes(ctx context.Context, addr *address.Address) ([]string, error) {
	return p.names(ctx, addr, "read-children-types", nil)
}

func (p *ControllerProvider) NodeNames(ctx context.Context, addr *address.Address, nodeType string) ([]string, error) {
	return p.names(ctx, addr, "read-children-names", map[string]*structpb.Value{
		"child-type": structpb.NewStringValue(nodeType),
	})
}

func (p *ControllerProvider) OperationNames(ctx context.Context, addr *address.Address) ([]string, error) {
	return p.names(ctx, addr, "read-operation-names", nil)
}

func (p *ControllerProvider) OperationProperties(ctx context.Context, addr *address.Address, op string) ([]Property, error) {
	res, err := p.run(ctx, addr, "read-operation-description", map[string]*structpb.Value{
		operation.FieldName: structpb.NewStringValue(op),
	})
	if err != nil {
		return nil, err
	}
	props := res.GetStructValue().GetFields()["request-properties"].GetStructValue().GetFields()
	out := make([]Property, 0, len(props))
	for name, d := range props {
		f := d.GetStructValue().GetFields()
		prop := Property{
			Name:                name,
			Type:                f["type"].GetStringValue(),
			Required:            f["required"].GetBoolValue(),
			CapabilityReference: f["capability-reference"].GetStringValue(),
		}
		for _, a := range f["allowed"].GetListValue().GetValues() {
			prop.Allowed = append(prop.Allowed, a.GetStringValue())
		}
		out = append(out, prop)
	}
	slices.SortFunc(out, func(a, b Property) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (p *ControllerProvider) SuggestCapabilities(ctx context.Context, addr *address.Address, capability string) ([]string, error) {
	return p.names(ctx, capabilityRegistry, "suggest-capabilities", map[string]*structpb.Value{
		operation.FieldName: structpb.NewStringValue(capability),
		"dependent-address": operation.AddressValue(addr),
	})
}

func (p *ControllerProvider) ServerGroups(ctx context.Context) ([]string, error) {
	return p.NodeNames(ctx, nil, "server-group")
}

func (p *ControllerProvider) RolloutPlans(ctx context.Context) ([]string, error) {
	return p.NodeNames(ctx, rollout.StoredPlansAddress(), "rollout-plan")
}
