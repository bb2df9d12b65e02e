// Package grpcapi implements the gRPC transport between the management CLI
// and a controller.
package grpcapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
	"github.com/wildfly/wildfly-core-sub044/pkg/value"
)

// Controller executes requests. Failures are reported as failed outcomes
// in the response, never as errors.
type Controller interface {
	Execute(ctx context.Context, req *structpb.Struct) *structpb.Struct
}

// HostRegistrar accepts encoded host registrations.
type HostRegistrar interface {
	RegisterHost(ctx context.Context, payload []byte) (*structpb.Struct, error)
}

// Observation describes one executed request.
type Observation struct {
	Operation string
	Address   string
	Outcome   string
	// Failure is the failure description of a failed outcome.
	Failure string
	Elapsed time.Duration
}

// NewObservation describes req and the controller's resp to it.
func NewObservation(req, resp *structpb.Struct, elapsed time.Duration) Observation {
	o := Observation{
		Operation: operation.OperationOf(req),
		Outcome:   resp.GetFields()[operation.FieldOutcome].GetStringValue(),
		Elapsed:   elapsed,
	}
	if addr, err := operation.AddressOf(req); err == nil {
		o.Address = addr.String()
	}
	if desc, ok := resp.GetFields()[operation.FieldFailureDescription]; ok {
		o.Failure = value.String(desc)
	}
	return o
}

// Observer is told about every executed request.
type Observer interface {
	ObserveOperation(o Observation)
}

// Observers fans an observation out to each of its members.
type Observers []Observer

func (m Observers) ObserveOperation(o Observation) {
	for _, obs := range m {
		obs.ObserveOperation(o)
	}
}

// Config configures the gRPC server.
type Config struct {
	Controller Controller
	Hosts      HostRegistrar // optional
	Observer   Observer      // optional
}

// Server implements ManagementServer.
type Server struct {
	controller Controller
	hosts      HostRegistrar
	observer   Observer
	addr       string
}

var _ ManagementServer = (*Server)(nil)

// NewServer creates a new gRPC server.
func NewServer(addr string, cfg Config) *Server {
	return &Server{
		controller: cfg.Controller,
		hosts:      cfg.Hosts,
		observer:   cfg.Observer,
		addr:       addr,
	}
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gRPC listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer()
	RegisterManagementServer(srv, s)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	srv.GracefulStop()
	return nil
}

func (s *Server) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	op := operation.OperationOf(req)
	if op == "" {
		return nil, status.Error(codes.InvalidArgument, "the request has no operation name")
	}
	start := time.Now()
	resp := s.controller.Execute(ctx, req)
	outcome := resp.GetFields()[operation.FieldOutcome].GetStringValue()
	elapsed := time.Since(start)
	slog.Debug("executed operation", "op", op, "outcome", outcome, "elapsed", elapsed)
	if s.observer != nil {
		s.observer.ObserveOperation(NewObservation(req, resp, elapsed))
	}
	return resp, nil
}

func (s *Server) RegisterHost(ctx context.Context, payload *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if s.hosts == nil {
		return nil, status.Error(codes.Unimplemented, "host registration is not enabled")
	}
	resp, err := s.hosts.RegisterHost(ctx, payload.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}
	return resp, nil
}
