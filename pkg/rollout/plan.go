package rollout

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/value"
)

// HeaderName is the operation header carrying a rollout plan.
const HeaderName = "rollout-plan"

// Server group properties understood by the controller.
const (
	MaxFailedServers     = "max-failed-servers"
	MaxFailurePercentage = "max-failure-percentage"
	RollingToServers     = "rolling-to-servers"
)

// GroupProperties lists the known server group properties in display order.
var GroupProperties = []string{MaxFailedServers, MaxFailurePercentage, RollingToServers}

// Property is one server group property as typed on the command line.
type Property struct {
	Name  string
	Value string
}

// Step is one in-series step of a plan: a *SingleGroup or a *ConcurrentGroup.
type Step interface {
	value() *structpb.Value
}

// SingleGroup is a server group with its rollout properties.
type SingleGroup struct {
	Name  string
	Props []Property
}

// Set adds or replaces a property.
func (g *SingleGroup) Set(name, val string) {
	for i := range g.Props {
		if g.Props[i].Name == name {
			g.Props[i].Value = val
			return
		}
	}
	g.Props = append(g.Props, Property{Name: name, Value: val})
}

// Get returns the value of a property.
func (g *SingleGroup) Get(name string) (string, bool) {
	for _, p := range g.Props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

func (g *SingleGroup) props() *structpb.Value {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(g.Props))}
	for _, p := range g.Props {
		s.Fields[p.Name] = value.Parse(p.Value)
	}
	return structpb.NewStructValue(s)
}

func (g *SingleGroup) value() *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"server-group": structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			g.Name: g.props(),
		}}),
	}})
}

// ConcurrentGroup is a set of server groups updated at the same time.
// It holds single groups only.
type ConcurrentGroup struct {
	Groups []*SingleGroup
}

func (c *ConcurrentGroup) value() *structpb.Value {
	groups := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(c.Groups))}
	for _, g := range c.Groups {
		groups.Fields[g.Name] = g.props()
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"concurrent-groups": structpb.NewStructValue(groups),
	}})
}

// Plan is a rollout plan: either a reference to a plan stored on the
// controller (Name) or an explicit list of in-series steps.
type Plan struct {
	Steps                []Step
	RollbackAcrossGroups *bool

	// Name references a stored plan. Content holds the stored plan once
	// it has been read from the controller.
	Name    string
	Content *structpb.Struct
}

// AddGroup appends g as a new in-series step.
func (p *Plan) AddGroup(g *SingleGroup) {
	p.Steps = append(p.Steps, g)
}

// AddConcurrentGroup adds g to the last step, turning a single group step
// into a concurrent one. With no steps it behaves like AddGroup.
func (p *Plan) AddConcurrentGroup(g *SingleGroup) {
	if len(p.Steps) == 0 {
		p.AddGroup(g)
		return
	}
	switch last := p.Steps[len(p.Steps)-1].(type) {
	case *ConcurrentGroup:
		last.Groups = append(last.Groups, g)
	case *SingleGroup:
		p.Steps[len(p.Steps)-1] = &ConcurrentGroup{Groups: []*SingleGroup{last, g}}
	}
}

// Groups returns every single group of the plan in order.
func (p *Plan) Groups() []*SingleGroup {
	var out []*SingleGroup
	for _, s := range p.Steps {
		switch s := s.(type) {
		case *SingleGroup:
			out = append(out, s)
		case *ConcurrentGroup:
			out = append(out, s.Groups...)
		}
	}
	return out
}

// Value returns the header value of the plan.
func (p *Plan) Value() (*structpb.Value, error) {
	if p.Name != "" {
		if p.Content == nil {
			return nil, fmt.Errorf("rollout plan %q has not been resolved", p.Name)
		}
		return structpb.NewStructValue(p.Content), nil
	}
	if len(p.Steps) == 0 {
		return nil, errors.New("the rollout plan has no server groups")
	}
	steps := make([]*structpb.Value, 0, len(p.Steps))
	for _, s := range p.Steps {
		steps = append(steps, s.value())
	}
	fields := map[string]*structpb.Value{
		"in-series": structpb.NewListValue(&structpb.ListValue{Values: steps}),
	}
	if p.RollbackAcrossGroups != nil {
		fields[RollbackAcrossGroups] = structpb.NewBoolValue(*p.RollbackAcrossGroups)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
}

// HeaderName returns the operation header name of a plan.
func (p *Plan) HeaderName() string { return HeaderName }

// AddTo stores the plan in an operation-headers struct.
func (p *Plan) AddTo(headers *structpb.Struct) error {
	v, err := p.Value()
	if err != nil {
		return err
	}
	if headers.Fields == nil {
		headers.Fields = make(map[string]*structpb.Value)
	}
	headers.Fields[HeaderName] = v
	return nil
}

// StoredPlansAddress returns the parent of the plans stored on the controller.
func StoredPlansAddress() *address.Address {
	return address.New(address.Node{Type: "management-client-content", Name: "rollout-plans"})
}

// StoredPlanAddress returns the address of a plan stored on the controller.
// The plan itself is the "content" attribute of that resource.
func StoredPlanAddress(name string) *address.Address {
	a := StoredPlansAddress()
	a.ToNode("rollout-plan", name)
	return a
}
