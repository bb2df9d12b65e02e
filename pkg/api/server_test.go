package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wildfly/wildfly-core-sub044/pkg/grpcapi"
	"github.com/wildfly/wildfly-core-sub044/pkg/hostreg"
	"github.com/wildfly/wildfly-core-sub044/pkg/logging"
	"github.com/wildfly/wildfly-core-sub044/pkg/model"
)

type recorder struct {
	mu  sync.Mutex
	obs []grpcapi.Observation
}

func (r *recorder) ObserveOperation(o grpcapi.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, o)
}

type hostList []hostreg.Host

func (h hostList) Hosts() []hostreg.Host { return h }

func serve(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, target, r))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	w := serve(t, NewServer(Config{}), "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Success bool           `json:"success"`
		Data    HealthResponse `json:"data"`
	}
	decode(t, w, &resp)
	if !resp.Success || resp.Data.Status != "ok" {
		t.Errorf("health = %+v", resp)
	}
}

func TestManagementPost(t *testing.T) {
	rec := &recorder{}
	s := NewServer(Config{Controller: model.New(model.Options{}), Observer: rec})

	tests := []struct {
		name     string
		body     string
		status   int
		contains string
	}{
		{
			name:     "read attribute",
			body:     `{"operation":"read-attribute","address":[{"subsystem":"logging"},{"logger":"com.arjuna"}],"name":"level"}`,
			status:   http.StatusOK,
			contains: `"WARN"`,
		},
		{
			name:     "missing resource",
			body:     `{"operation":"read-resource","address":[{"subsystem":"missing"}]}`,
			status:   http.StatusInternalServerError,
			contains: "WFLYCTL0216",
		},
		{
			name:     "not json",
			body:     `:read-resource`,
			status:   http.StatusBadRequest,
			contains: "not a JSON object",
		},
		{
			name:     "no operation",
			body:     `{"address":[]}`,
			status:   http.StatusBadRequest,
			contains: "no operation name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, s, "POST", "/management", tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("body %q does not contain %q", w.Body.String(), tt.contains)
			}
		})
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var got []string
	for _, o := range rec.obs {
		got = append(got, o.Operation+" "+o.Address+" "+o.Outcome)
	}
	want := []string{
		"read-attribute /subsystem=logging/logger=com.arjuna success",
		"read-resource /subsystem=missing failed",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("observed (-want +got):\n%s", diff)
	}
}

func TestManagementGet(t *testing.T) {
	s := NewServer(Config{Controller: model.New(model.Options{})})

	tests := []struct {
		target   string
		status   int
		contains string
	}{
		{"/management", http.StatusOK, `"launch-type"`},
		{"/management/subsystem/logging/logger/com.arjuna?operation=attribute&name=level", http.StatusOK, `"WARN"`},
		{"/management/subsystem/logging?operation=children-names&child-type=logger", http.StatusOK, `"com.arjuna"`},
		{"/management/socket-binding-group/standard-sockets/socket-binding/http?operation=read-attribute&name=port", http.StatusOK, "8080"},
		{"/management/subsystem/missing", http.StatusInternalServerError, "WFLYCTL0216"},
		{"/management/subsystem", http.StatusBadRequest, "alternate node types and names"},
		{"/management/subsystem/logging?operation=remove", http.StatusBadRequest, "only executes read operations"},
	}
	for _, tt := range tests {
		w := serve(t, s, "GET", tt.target, "")
		if w.Code != tt.status {
			t.Errorf("GET %s: status = %d, want %d", tt.target, w.Code, tt.status)
		}
		if !strings.Contains(w.Body.String(), tt.contains) {
			t.Errorf("GET %s: body %q does not contain %q", tt.target, w.Body.String(), tt.contains)
		}
	}
}

func TestManagementDisabled(t *testing.T) {
	s := NewServer(Config{})
	if w := serve(t, s, "POST", "/management", `{"operation":"read-resource"}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("POST status = %d, want 503", w.Code)
	}
	if w := serve(t, s, "GET", "/management", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("GET status = %d, want 503", w.Code)
	}
}

func TestAudit(t *testing.T) {
	buf := logging.NewEventBuffer(10)
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	buf.Add(logging.Record{Time: at, Operation: "read-resource", Address: "/", Outcome: "success", Elapsed: time.Millisecond})
	buf.Add(logging.Record{Time: at, Operation: "remove", Address: "/subsystem=x", Outcome: "failed", Failure: "WFLYCTL0216"})
	buf.Add(logging.Record{Time: at, Operation: "read-resource", Address: "/subsystem=logging", Outcome: "success"})
	s := NewServer(Config{Audit: buf})

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"read-resource", "remove", "read-resource"}},
		{"?limit=1", []string{"read-resource"}},
		{"?outcome=failed", []string{"remove"}},
		{"?operation=read-resource&address=/subsystem", []string{"read-resource"}},
		{"?operation=add", []string{}},
	}
	for _, tt := range tests {
		w := serve(t, s, "GET", "/api/v1/audit"+tt.query, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.query, w.Code)
		}
		var resp struct {
			Data []AuditEntry `json:"data"`
		}
		decode(t, w, &resp)
		got := []string{}
		for _, e := range resp.Data {
			got = append(got, e.Operation)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%q (-want +got):\n%s", tt.query, diff)
		}
	}

	var resp struct {
		Data []AuditEntry `json:"data"`
	}
	decode(t, serve(t, s, "GET", "/api/v1/audit?limit=1&outcome=success&address=/", ""), &resp)
	want := []AuditEntry{{Time: "2026-03-04T05:06:07Z", Operation: "read-resource", Address: "/subsystem=logging", Outcome: "success"}}
	if diff := cmp.Diff(want, resp.Data); diff != "" {
		t.Errorf("entry (-want +got):\n%s", diff)
	}

	if w := serve(t, s, "GET", "/api/v1/audit?limit=0", ""); w.Code != http.StatusBadRequest {
		t.Errorf("limit=0: status = %d, want 400", w.Code)
	}
	if w := serve(t, NewServer(Config{}), "GET", "/api/v1/audit", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no buffer: status = %d, want 503", w.Code)
	}
}

func TestHosts(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	hosts := hostList{{
		Request: hostreg.Request{
			Host:            "host1",
			ProductVersion:  "1.2",
			ManagementMajor: 1,
			ServerGroups:    []string{"main-server-group"},
		},
		RegisteredAt: at,
	}}

	var resp struct {
		Data []HostEntry `json:"data"`
	}
	decode(t, serve(t, NewServer(Config{Hosts: hosts}), "GET", "/api/v1/hosts", ""), &resp)
	want := []HostEntry{{
		Name:              "host1",
		ProductVersion:    "1.2",
		ManagementVersion: "1.0",
		ServerGroups:      []string{"main-server-group"},
		RegisteredAt:      "2026-03-04T05:06:07Z",
	}}
	if diff := cmp.Diff(want, resp.Data); diff != "" {
		t.Errorf("hosts (-want +got):\n%s", diff)
	}

	w := serve(t, NewServer(Config{}), "GET", "/api/v1/hosts", "")
	if !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Errorf("no hosts: body = %q", w.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	buf := logging.NewEventBuffer(10)
	buf.Add(logging.Record{Operation: "read-resource", Outcome: "success"})
	hosts := hostList{{Request: hostreg.Request{Host: "host1", ProductVersion: "1.2", ManagementMajor: 1, ManagementMinor: 3}}}
	s := NewServer(Config{
		Controller: model.New(model.Options{}),
		Observer:   m,
		Metrics:    m,
		Audit:      buf,
		Hosts:      hosts,
	})

	serve(t, s, "GET", "/management", "")
	serve(t, s, "GET", "/management/subsystem/missing", "")
	m.ObserveOperation(grpcapi.Observation{Operation: "read-resource", Outcome: "success", Elapsed: time.Millisecond})

	w := serve(t, s, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`mgmt_operations_total{operation="read-resource",outcome="success"} 2`,
		`mgmt_operations_total{operation="read-resource",outcome="failed"} 1`,
		`mgmt_operation_duration_seconds_count{operation="read-resource"} 3`,
		"mgmt_registered_hosts 1",
		`mgmt_host_info{host="host1",management_version="1.3",product_version="1.2"} 1`,
		"mgmt_audit_records 1",
		"mgmt_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics lack %q", want)
		}
	}
}

func TestServe(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(Config{}).Serve(ctx, lis) }()

	resp, err := http.Get("http://" + lis.Addr().String() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Serve = %v", err)
	}
}
