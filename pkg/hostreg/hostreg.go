// Package hostreg accepts host controller registrations. A registration
// arrives as a CBOR payload and is answered with a structured result.
package hostreg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
	"github.com/wildfly/wildfly-core-sub044/pkg/parser"
)

// ManagementMajorVersion is the management API major version this
// controller speaks. Hosts with another major version are rejected.
const ManagementMajorVersion = 1

// Request is the registration payload sent by a host controller.
type Request struct {
	Host            string   `cbor:"host"`
	ProductVersion  string   `cbor:"product-version,omitempty"`
	ManagementMajor int      `cbor:"management-major-version"`
	ManagementMinor int      `cbor:"management-minor-version"`
	ServerGroups    []string `cbor:"server-groups,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("hostreg: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("hostreg: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode returns the deterministic CBOR encoding of req.
func Encode(req *Request) ([]byte, error) {
	return encMode.Marshal(req)
}

// Decode parses a registration payload.
func Decode(data []byte) (*Request, error) {
	if len(data) == 0 {
		return nil, errors.New("empty registration payload")
	}
	var req Request
	if err := decMode.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode registration: %w", err)
	}
	return &req, nil
}

// Result is the verdict on one registration.
type Result struct {
	Host     string
	Accepted bool
	Reason   string
}

// Response returns the result as a management response.
func (r Result) Response() *structpb.Struct {
	if !r.Accepted {
		return operation.Failed(r.Reason)
	}
	return operation.Success(structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"host":                     structpb.NewStringValue(r.Host),
		"management-major-version": structpb.NewNumberValue(ManagementMajorVersion),
	}}))
}

// Host is a registered host controller.
type Host struct {
	Request
	RegisteredAt time.Time
}

// Registry tracks live host registrations. It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	hosts  map[string]Host
	notify func(Host)
	now    func() time.Time
}

// NewRegistry returns an empty registry. notify, when non-nil, is called
// for every accepted host, outside the registry lock.
func NewRegistry(notify func(Host)) *Registry {
	return &Registry{
		hosts:  make(map[string]Host),
		notify: notify,
		now:    time.Now,
	}
}

// Register validates req and records the host.
func (r *Registry) Register(req *Request) Result {
	res := Result{Host: req.Host}
	switch {
	case req.Host == "":
		res.Reason = "the host name is missing"
	case !parser.IsIdentifier(req.Host):
		res.Reason = fmt.Sprintf("invalid host name %q", req.Host)
	case req.ManagementMajor != ManagementMajorVersion:
		res.Reason = fmt.Sprintf("host %s uses management version %d.%d, this controller requires major version %d",
			req.Host, req.ManagementMajor, req.ManagementMinor, ManagementMajorVersion)
	}
	if res.Reason != "" {
		return res
	}

	r.mu.Lock()
	if _, ok := r.hosts[req.Host]; ok {
		r.mu.Unlock()
		res.Reason = fmt.Sprintf("host %s is already registered", req.Host)
		return res
	}
	h := Host{Request: *req, RegisteredAt: r.now()}
	h.ServerGroups = slices.Clone(req.ServerGroups)
	r.hosts[req.Host] = h
	r.mu.Unlock()

	if r.notify != nil {
		r.notify(h)
	}
	res.Accepted = true
	return res
}

// Unregister removes a host and reports whether it was registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.hosts[name]
	delete(r.hosts, name)
	return ok
}

// Hosts returns the registered hosts sorted by name.
func (r *Registry) Hosts() []Host {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b Host) int {
		switch {
		case a.Host < b.Host:
			return -1
		case a.Host > b.Host:
			return 1
		}
		return 0
	})
	return out
}

// RegisterHost decodes and registers a payload. Malformed payloads are
// errors; rejected registrations are failed responses.
func (r *Registry) RegisterHost(_ context.Context, payload []byte) (*structpb.Struct, error) {
	req, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	res := r.Register(req)
	if res.Accepted {
		slog.Info("host registered", "host", res.Host, "version", req.ProductVersion)
	} else {
		slog.Warn("host registration rejected", "host", res.Host, "reason", res.Reason)
	}
	return res.Response(), nil
}
