package grpcapi

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
)

type echoController struct{}

func (echoController) Execute(_ context.Context, req *structpb.Struct) *structpb.Struct {
	if operation.OperationOf(req) == "fail" {
		return operation.Failed("WFLYCTL0030: no resource found")
	}
	return operation.Success(structpb.NewStringValue(operation.OperationOf(req)))
}

type fakeRegistrar struct{ got []byte }

func (f *fakeRegistrar) RegisterHost(_ context.Context, payload []byte) (*structpb.Struct, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty registration")
	}
	f.got = payload
	return operation.Success(nil), nil
}

type recorder struct {
	mu  sync.Mutex
	ops []string
}

func (r *recorder) ObserveOperation(o Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, o.Operation+":"+o.Outcome)
}

func startServer(t *testing.T, cfg Config) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer("bufconn", cfg).Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func request(t *testing.T, op string) *structpb.Struct {
	t.Helper()
	b := operation.NewBuilder(nil)
	b.SetOperationName(op)
	req, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestExecute(t *testing.T) {
	rec := &recorder{}
	c := startServer(t, Config{Controller: echoController{}, Observer: rec})
	ctx := context.Background()

	got, err := c.Execute(ctx, request(t, "read-resource"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(structpb.NewStringValue("read-resource"), got, protocmp.Transform()); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}

	_, err = c.Execute(ctx, request(t, "fail"))
	var opErr *operation.Error
	if !errors.As(err, &opErr) {
		t.Fatalf("Execute(fail) error = %v, want *operation.Error", err)
	}
	if opErr.Error() != "WFLYCTL0030: no resource found" {
		t.Errorf("failure description = %q", opErr.Error())
	}

	resp, err := c.ExecuteRaw(ctx, request(t, "fail"))
	if err != nil {
		t.Fatal(err)
	}
	if operation.IsSuccess(resp) {
		t.Error("ExecuteRaw(fail) reported success")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []string{"read-resource:success", "fail:failed", "fail:failed"}
	if diff := cmp.Diff(want, rec.ops); diff != "" {
		t.Errorf("observed (-want +got):\n%s", diff)
	}
}

func TestExecuteWithoutOperation(t *testing.T) {
	c := startServer(t, Config{Controller: echoController{}})
	_, err := c.Execute(context.Background(), &structpb.Struct{})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("code = %v, want InvalidArgument (err %v)", status.Code(err), err)
	}
}

func TestRegisterHost(t *testing.T) {
	reg := &fakeRegistrar{}
	c := startServer(t, Config{Controller: echoController{}, Hosts: reg})
	ctx := context.Background()

	resp, err := c.RegisterHost(ctx, []byte{0xa1, 0x01})
	if err != nil {
		t.Fatal(err)
	}
	if !operation.IsSuccess(resp) {
		t.Errorf("response = %v", resp)
	}
	if diff := cmp.Diff([]byte{0xa1, 0x01}, reg.got); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}

	if _, err := c.RegisterHost(ctx, nil); status.Code(err) != codes.InvalidArgument {
		t.Errorf("empty payload: code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestRegisterHostDisabled(t *testing.T) {
	c := startServer(t, Config{Controller: echoController{}})
	_, err := c.RegisterHost(context.Background(), []byte{1})
	if status.Code(err) != codes.Unimplemented {
		t.Errorf("code = %v, want Unimplemented", status.Code(err))
	}
}

func TestNewObservation(t *testing.T) {
	b := operation.NewBuilder(nil)
	b.AddNode("subsystem", "logging")
	b.SetOperationName("remove")
	req, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	got := NewObservation(req, operation.Failed("WFLYCTL0216: not found"), time.Second)
	want := Observation{
		Operation: "remove",
		Address:   "/subsystem=logging",
		Outcome:   operation.OutcomeFailed,
		Failure:   "WFLYCTL0216: not found",
		Elapsed:   time.Second,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NewObservation (-want +got):\n%s", diff)
	}

	a, b2 := &recorder{}, &recorder{}
	Observers{a, b2}.ObserveOperation(got)
	if len(a.ops) != 1 || len(b2.ops) != 1 {
		t.Errorf("Observers delivered %v and %v", a.ops, b2.ops)
	}
}
