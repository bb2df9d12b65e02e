package hostreg

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
)

func TestEncodeDecode(t *testing.T) {
	req := &Request{
		Host:            "secondary",
		ProductVersion:  "31.0.0",
		ManagementMajor: ManagementMajorVersion,
		ManagementMinor: 4,
		ServerGroups:    []string{"main-server-group"},
	}
	data, err := Encode(req)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(req, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, data := range [][]byte{nil, {0xff}, {0x01}} {
		if _, err := Decode(data); err == nil {
			t.Errorf("Decode(%x) succeeded", data)
		}
	}
}

func TestRegister(t *testing.T) {
	var notified []string
	r := NewRegistry(func(h Host) { notified = append(notified, h.Host) })
	r.now = func() time.Time { return time.Unix(1700000000, 0) }

	tests := []struct {
		name   string
		req    Request
		accept bool
		reason string
	}{
		{"accepted", Request{Host: "secondary", ManagementMajor: ManagementMajorVersion}, true, ""},
		{"duplicate", Request{Host: "secondary", ManagementMajor: ManagementMajorVersion}, false, "already registered"},
		{"empty name", Request{ManagementMajor: ManagementMajorVersion}, false, "missing"},
		{"bad name", Request{Host: "a b", ManagementMajor: ManagementMajorVersion}, false, "invalid host name"},
		{"incompatible", Request{Host: "old", ManagementMajor: ManagementMajorVersion + 1}, false, "requires major version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Register(&tt.req)
			if res.Accepted != tt.accept {
				t.Fatalf("Accepted = %v, want %v (reason %q)", res.Accepted, tt.accept, res.Reason)
			}
			if !strings.Contains(res.Reason, tt.reason) {
				t.Errorf("Reason = %q, want it to contain %q", res.Reason, tt.reason)
			}
			if got := operation.IsSuccess(res.Response()); got != tt.accept {
				t.Errorf("response success = %v", got)
			}
		})
	}

	if diff := cmp.Diff([]string{"secondary"}, notified); diff != "" {
		t.Errorf("notified (-want +got):\n%s", diff)
	}
	hosts := r.Hosts()
	if len(hosts) != 1 || !hosts[0].RegisteredAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Hosts() = %+v", hosts)
	}
	if !r.Unregister("secondary") || r.Unregister("secondary") {
		t.Error("Unregister did not remove the host exactly once")
	}
}

func TestRegisterHostPayload(t *testing.T) {
	r := NewRegistry(nil)
	data, err := Encode(&Request{Host: "secondary", ManagementMajor: ManagementMajorVersion})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := r.RegisterHost(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	result, err := operation.ResultOf(resp)
	if err != nil {
		t.Fatal(err)
	}
	if got := result.GetStructValue().GetFields()["host"].GetStringValue(); got != "secondary" {
		t.Errorf("host = %q", got)
	}

	resp, err = r.RegisterHost(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := operation.ResultOf(resp); err == nil {
		t.Error("duplicate registration succeeded")
	}

	if _, err := r.RegisterHost(context.Background(), []byte{0xff}); err == nil {
		t.Error("malformed payload accepted")
	}
}
