package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
)

// Executor runs management requests.
type Executor interface {
	Execute(ctx context.Context, req *structpb.Struct) (*structpb.Value, error)
}

// Client talks to a management controller.
type Client struct {
	conn   grpc.ClientConnInterface
	closer func() error
}

var _ Executor = (*Client)(nil)

// Dial connects to the controller at target without transport security.
// The connection is established lazily on the first call.
func Dial(target string) (*Client, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", target, err)
	}
	return &Client{conn: conn, closer: conn.Close}, nil
}

// NewClient returns a client over an existing connection, which the caller
// keeps ownership of.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close releases a connection opened by Dial.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// ExecuteRaw runs req and returns the whole response, whatever its outcome.
func (c *Client) ExecuteRaw(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, executeMethod, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Execute runs req and returns its result. A failed outcome is returned
// as an *operation.Error.
func (c *Client) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	resp, err := c.ExecuteRaw(ctx, req)
	if err != nil {
		return nil, err
	}
	return operation.ResultOf(resp)
}

// RegisterHost sends an encoded host registration and returns the
// controller's verdict.
func (c *Client) RegisterHost(ctx context.Context, payload []byte) (*structpb.Struct, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, registerHostMethod, wrapperspb.Bytes(payload), resp); err != nil {
		return nil, err
	}
	return resp, nil
}
