// Package model is the in-memory management tree served by the development
// controller. It answers the generic resource operations, composite
// requests and the deployment operations.
package model

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
	"github.com/wildfly/wildfly-core-sub044/pkg/rollout"
	"github.com/wildfly/wildfly-core-sub044/pkg/value"
)

// Header names understood by the model.
const (
	HeaderRollbackOnRuntimeFailure = "rollback-on-runtime-failure"
)

// Options configures a new model.
type Options struct {
	Name           string
	ProductName    string
	ReleaseVersion string
	// Domain selects a managed domain with server groups and hosts
	// instead of a standalone server.
	Domain bool
}

// Model is a management tree. It is safe for concurrent use; requests are
// executed one at a time.
type Model struct {
	mu     sync.Mutex
	root   *resource
	domain bool
}

// New returns a model seeded with a small default configuration.
func New(opts Options) *Model {
	if opts.Name == "" {
		opts.Name = "mgmt-dev"
	}
	if opts.ProductName == "" {
		opts.ProductName = "WildFly Core"
	}
	if opts.ReleaseVersion == "" {
		opts.ReleaseVersion = "dev"
	}
	return &Model{root: seed(opts), domain: opts.Domain}
}

func str(s string) *structpb.Value   { return structpb.NewStringValue(s) }
func num(n float64) *structpb.Value  { return structpb.NewNumberValue(n) }
func boolean(b bool) *structpb.Value { return structpb.NewBoolValue(b) }

func seed(opts Options) *resource {
	launch := "STANDALONE"
	rootTypes := []string{"core-service", "deployment", "management-client-content", "socket-binding-group", "subsystem"}
	if opts.Domain {
		launch = "DOMAIN"
		rootTypes = append(rootTypes, "host", "server-group")
	}
	root := newResource("", rootTypes...)
	root.set("name", str(opts.Name)).
		set("product-name", str(opts.ProductName)).
		set("release-version", str(opts.ReleaseVersion)).
		set("launch-type", str(launch))

	logging := root.add("subsystem", "logging", newResource("subsystem", "logger", "root-logger"))
	logging.add("logger", "com.arjuna", newResource("logger")).
		set("level", str("WARN")).
		set("use-parent-handlers", boolean(true))
	logging.add("root-logger", "ROOT", newResource("root-logger")).set("level", str("INFO"))

	root.add("core-service", "capability-registry", newResource("core-service"))
	root.add("management-client-content", "rollout-plans", newResource("management-client-content", "rollout-plan"))

	sockets := root.add("socket-binding-group", "standard-sockets", newResource("socket-binding-group", "socket-binding"))
	sockets.set("default-interface", str("public"))
	for name, port := range map[string]float64{"http": 8080, "https": 8443, "management-http": 9990} {
		sockets.add("socket-binding", name, newResource("socket-binding")).set("port", num(port))
	}

	if opts.Domain {
		for name, profile := range map[string]string{"main-server-group": "full", "other-server-group": "full-ha"} {
			root.add("server-group", name, newResource("server-group", "deployment")).
				set("profile", str(profile)).
				set("socket-binding-group", str("standard-sockets"))
		}
	}
	return root
}

// failure is an operation failure; its message becomes the failure
// description.
type failure struct{ msg string }

func (f *failure) Error() string { return f.msg }

func failf(format string, args ...any) error {
	return &failure{msg: fmt.Sprintf(format, args...)}
}

// Execute runs req and returns its response.
func (m *Model) Execute(ctx context.Context, req *structpb.Struct) *structpb.Struct {
	if err := ctx.Err(); err != nil {
		return operation.Failed(fmt.Sprintf("the request was cancelled: %v", err))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkHeaders(req); err != nil {
		return operation.Failed(err.Error())
	}
	return m.execute(req)
}

func (m *Model) execute(req *structpb.Struct) *structpb.Struct {
	if operation.OperationOf(req) == OpComposite {
		return m.composite(req)
	}
	result, err := m.run(req)
	if err != nil {
		return operation.Failed(err.Error())
	}
	return operation.Success(result)
}

// checkHeaders validates the operation headers of a top-level request.
func (m *Model) checkHeaders(req *structpb.Struct) error {
	headers := req.GetFields()[operation.FieldOperationHeaders].GetStructValue()
	for name, v := range headers.GetFields() {
		switch name {
		case HeaderRollbackOnRuntimeFailure, "allow-resource-service-restart":
			if _, ok := v.GetKind().(*structpb.Value_BoolValue); !ok {
				if _, valid := value.Bool(value.String(v)); !valid {
					return failf("WFLYCTL0097: wrong type for %s, expected BOOLEAN", name)
				}
			}
		case rollout.HeaderName:
			if err := m.checkRolloutPlan(v.GetStructValue()); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkRolloutPlan verifies that every server group of a plan exists.
func (m *Model) checkRolloutPlan(plan *structpb.Struct) error {
	if !m.domain {
		return failf("rollout plans are only supported in a managed domain")
	}
	steps := plan.GetFields()["in-series"].GetListValue().GetValues()
	if len(steps) == 0 {
		return failf("the rollout plan has no in-series steps")
	}
	for _, step := range steps {
		fields := step.GetStructValue().GetFields()
		groups := fields["server-group"].GetStructValue()
		if groups == nil {
			groups = fields["concurrent-groups"].GetStructValue()
		}
		if groups == nil {
			return failf("invalid rollout plan step %s", value.String(step))
		}
		for name := range groups.GetFields() {
			if m.root.child("server-group", name) == nil {
				return failf("WFLYDC0030: server group %s in the rollout plan does not exist", name)
			}
		}
	}
	return nil
}

// composite runs every step against a snapshot and restores it when a
// step fails, unless rollback-on-runtime-failure is false.
func (m *Model) composite(req *structpb.Struct) *structpb.Struct {
	steps := req.GetFields()[operation.FieldSteps].GetListValue().GetValues()
	rollback := true
	if v, ok := req.GetFields()[operation.FieldOperationHeaders].GetStructValue().GetFields()[HeaderRollbackOnRuntimeFailure]; ok {
		if b, valid := value.Bool(value.String(v)); valid {
			rollback = b
		}
	}
	snapshot := m.root.clone()
	results := make(map[string]*structpb.Value, len(steps))
	var failed []string
	for i, step := range steps {
		s := step.GetStructValue()
		if s == nil {
			return operation.Failed(fmt.Sprintf("step-%d is not an operation", i+1))
		}
		resp := m.execute(s)
		key := fmt.Sprintf("step-%d", i+1)
		results[key] = structpb.NewStructValue(resp)
		if !operation.IsSuccess(resp) {
			_, err := operation.ResultOf(resp)
			failed = append(failed, fmt.Sprintf("%s: %v", key, err))
		}
	}
	resultValue := structpb.NewStructValue(&structpb.Struct{Fields: results})
	if len(failed) == 0 {
		return operation.Success(resultValue)
	}
	msg := "WFLYCTL0062: Composite operation failed"
	if rollback {
		m.root = snapshot
		msg += " and was rolled back"
	}
	resp := operation.Failed(msg + ". Steps that failed: " + strings.Join(failed, "; "))
	resp.Fields[operation.FieldResult] = resultValue
	resp.Fields[operation.FieldRolledBack] = boolean(rollback)
	slog.Debug("composite failed", "steps", len(steps), "failed", len(failed), "rolled-back", rollback)
	return resp
}

// AddHost records a registered host controller under host=name.
func (m *Model) AddHost(name string, attrs map[string]*structpb.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.domain {
		return failf("hosts can only register with a managed domain")
	}
	h := newResource("host")
	for k, v := range attrs {
		h.set(k, v)
	}
	m.root.add("host", name, h)
	return nil
}

// RemoveHost drops host=name.
func (m *Model) RemoveHost(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.root.children["host"], name)
}

// ServerGroups returns the server group names.
func (m *Model) ServerGroups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root.childNames("server-group")
}

func formatAddress(a *address.Address) string {
	if a.IsEmpty() {
		return "[]"
	}
	nodes := a.Nodes()
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		parts = append(parts, fmt.Sprintf("(%q => %q)", n.Type, n.Name))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
