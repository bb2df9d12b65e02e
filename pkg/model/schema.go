package model

import (
	"maps"
	"slices"

	"google.golang.org/protobuf/types/known/structpb"
)

// Attribute describes an attribute or a request property.
type Attribute struct {
	Type       string
	Required   bool
	Allowed    []string
	Capability string // capability the value must reference
}

func (a Attribute) value() *structpb.Value {
	fields := map[string]*structpb.Value{
		"type":     structpb.NewStringValue(a.Type),
		"required": structpb.NewBoolValue(a.Required),
	}
	if len(a.Allowed) > 0 {
		allowed := make([]*structpb.Value, 0, len(a.Allowed))
		for _, v := range a.Allowed {
			allowed = append(allowed, structpb.NewStringValue(v))
		}
		fields["allowed"] = structpb.NewListValue(&structpb.ListValue{Values: allowed})
	}
	if a.Capability != "" {
		fields["capability-reference"] = structpb.NewStringValue(a.Capability)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

// resourceType describes the resources of one node type.
type resourceType struct {
	attributes map[string]Attribute
	children   []string
	// capability is registered under the resource name by every
	// resource of this type.
	capability string
}

// Capabilities referenced by the built-in resource types.
const (
	CapabilityServerGroup        = "org.wildfly.domain.server-group"
	CapabilitySocketBindingGroup = "org.wildfly.domain.socket-binding-group"
	CapabilitySocketBinding      = "org.wildfly.network.socket-binding"
)

var logLevels = []string{"ALL", "FINEST", "FINER", "TRACE", "DEBUG", "FINE", "CONFIG", "INFO", "WARN", "WARNING", "ERROR", "SEVERE", "FATAL", "OFF"}

var types = map[string]resourceType{
	"deployment": {attributes: map[string]Attribute{
		"content":      {Type: "LIST"},
		"runtime-name": {Type: "STRING"},
		"enabled":      {Type: "BOOLEAN"},
	}},
	"server-group": {
		attributes: map[string]Attribute{
			"profile":              {Type: "STRING", Required: true},
			"socket-binding-group": {Type: "STRING", Required: true, Capability: CapabilitySocketBindingGroup},
		},
		children:   []string{"deployment"},
		capability: CapabilityServerGroup,
	},
	"socket-binding-group": {
		attributes: map[string]Attribute{"default-interface": {Type: "STRING", Required: true}},
		children:   []string{"socket-binding"},
		capability: CapabilitySocketBindingGroup,
	},
	"socket-binding": {
		attributes: map[string]Attribute{
			"port":      {Type: "INT", Required: true},
			"interface": {Type: "STRING"},
		},
		capability: CapabilitySocketBinding,
	},
	"logger": {attributes: map[string]Attribute{
		"level":               {Type: "STRING", Allowed: logLevels},
		"use-parent-handlers": {Type: "BOOLEAN"},
	}},
	"root-logger": {attributes: map[string]Attribute{
		"level": {Type: "STRING", Allowed: logLevels},
	}},
	"rollout-plan": {attributes: map[string]Attribute{
		"content": {Type: "OBJECT", Required: true},
	}},
	"host": {attributes: map[string]Attribute{
		"product-version":          {Type: "STRING"},
		"management-major-version": {Type: "INT"},
		"management-minor-version": {Type: "INT"},
		"server-groups":            {Type: "LIST"},
	}},
}

// Operation names.
const (
	OpReadResource          = "read-resource"
	OpReadAttribute         = "read-attribute"
	OpWriteAttribute        = "write-attribute"
	OpUndefineAttribute     = "undefine-attribute"
	OpReadChildrenTypes     = "read-children-types"
	OpReadChildrenNames     = "read-children-names"
	OpReadChildrenResources = "read-children-resources"
	OpReadOperationNames    = "read-operation-names"
	OpReadOperationDesc     = "read-operation-description"
	OpAdd                   = "add"
	OpRemove                = "remove"
	OpComposite             = "composite"
	OpDeploy                = "deploy"
	OpUndeploy              = "undeploy"
	OpFullReplaceDeployment = "full-replace-deployment"
	OpSuggestCapabilities   = "suggest-capabilities"
)

type operationDesc struct {
	description string
	props       map[string]Attribute
}

var descriptions = map[string]operationDesc{
	OpReadResource: {"Reads a resource's attribute values along with information about its children.", map[string]Attribute{
		"recursive":       {Type: "BOOLEAN"},
		"recursive-depth": {Type: "INT"},
		"include-runtime": {Type: "BOOLEAN"},
	}},
	OpReadAttribute:         {"Gets the value of an attribute.", map[string]Attribute{"name": {Type: "STRING", Required: true}}},
	OpWriteAttribute:        {"Sets the value of an attribute.", map[string]Attribute{"name": {Type: "STRING", Required: true}, "value": {Type: "STRING"}}},
	OpUndefineAttribute:     {"Sets the value of an attribute to undefined.", map[string]Attribute{"name": {Type: "STRING", Required: true}}},
	OpReadChildrenTypes:     {"Gets the type names of all the children under the resource.", nil},
	OpReadChildrenNames:     {"Gets the names of all children under the resource of the given type.", map[string]Attribute{"child-type": {Type: "STRING", Required: true}}},
	OpReadChildrenResources: {"Reads information about all of a resource's children of the given type.", map[string]Attribute{"child-type": {Type: "STRING", Required: true}, "recursive": {Type: "BOOLEAN"}}},
	OpReadOperationNames:    {"Gets the names of all the operations for the resource.", nil},
	OpReadOperationDesc:     {"Gets the description of an operation.", map[string]Attribute{"name": {Type: "STRING", Required: true}}},
	OpAdd:                   {"Adds the resource.", nil},
	OpRemove:                {"Removes the resource.", nil},
	OpComposite:             {"Executes a list of steps as one atomic operation.", map[string]Attribute{"steps": {Type: "LIST", Required: true}}},
	OpDeploy:                {"Deploys the deployment content.", nil},
	OpUndeploy:              {"Undeploys the deployment content.", nil},
	OpFullReplaceDeployment: {"Replaces existing deployment content with new content.", map[string]Attribute{
		"name":         {Type: "STRING", Required: true},
		"runtime-name": {Type: "STRING"},
		"content":      {Type: "LIST", Required: true},
		"enabled":      {Type: "BOOLEAN"},
	}},
	OpSuggestCapabilities: {"Suggests registered capabilities that a dependent resource may reference.", map[string]Attribute{
		"name":              {Type: "STRING", Required: true},
		"dependent-address": {Type: "LIST"},
	}},
}

var globalOperations = []string{
	OpReadResource, OpReadAttribute, OpWriteAttribute, OpUndefineAttribute,
	OpReadChildrenTypes, OpReadChildrenNames, OpReadChildrenResources,
	OpReadOperationNames, OpReadOperationDesc, OpAdd, OpRemove,
}

// operationNames lists the operations available on a resource of typ,
// where typ is "" for the root.
func operationNames(typ, name string) []string {
	ops := slices.Clone(globalOperations)
	switch {
	case typ == "":
		ops = append(ops, OpComposite, OpFullReplaceDeployment)
	case typ == "deployment":
		ops = append(ops, OpDeploy, OpUndeploy)
	case typ == "core-service" && name == "capability-registry":
		ops = append(ops, OpSuggestCapabilities)
	}
	slices.Sort(ops)
	return ops
}

func describe(op, typ string) (*structpb.Value, bool) {
	d, ok := descriptions[op]
	if !ok {
		return nil, false
	}
	props := d.props
	if op == OpAdd {
		props = types[typ].attributes
	}
	fields := make(map[string]*structpb.Value, len(props))
	for _, name := range slices.Sorted(maps.Keys(props)) {
		fields[name] = props[name].value()
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"operation-name":     structpb.NewStringValue(op),
		"description":        structpb.NewStringValue(d.description),
		"request-properties": structpb.NewStructValue(&structpb.Struct{Fields: fields}),
	}}), true
}
