// Package daemon implements the development controller lifecycle: the
// management model served over gRPC, with the HTTP API and the audit log
// alongside.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/api"
	"github.com/wildfly/wildfly-core-sub044/pkg/grpcapi"
	"github.com/wildfly/wildfly-core-sub044/pkg/hostreg"
	"github.com/wildfly/wildfly-core-sub044/pkg/logging"
	"github.com/wildfly/wildfly-core-sub044/pkg/model"
)

// Options configures the daemon.
type Options struct {
	GRPCAddr string
	APIAddr  string // HTTP API listen address (empty = no HTTP API)
	// Domain runs a managed domain that accepts host registrations.
	Domain bool
	Name   string
	// UsersDir holds mgmt-users.properties; when set, the HTTP API
	// requires Basic authentication against it.
	UsersDir string

	AuditSize      int    // records kept for the HTTP API (default 1000)
	AuditFile      string // local audit file (empty = none)
	AuditFormat    string // "json" or "" for text lines
	SyslogAddr     string // host:port of a syslog collector (empty = none)
	SyslogSeverity string // error, warning or info
}

// Daemon is the development controller.
type Daemon struct {
	opts    Options
	model   *model.Model
	hosts   *hostreg.Registry
	audit   *logging.AuditLog
	metrics *api.Metrics
	closers []func() error
}

// New creates a new Daemon.
func New(opts Options) *Daemon {
	if opts.GRPCAddr == "" {
		opts.GRPCAddr = "127.0.0.1:9999"
	}
	if opts.AuditSize <= 0 {
		opts.AuditSize = 1000
	}
	d := &Daemon{
		opts:    opts,
		model:   model.New(model.Options{Name: opts.Name, Domain: opts.Domain}),
		audit:   logging.NewAuditLog(logging.NewEventBuffer(opts.AuditSize)),
		metrics: api.NewMetrics(),
	}
	if opts.Domain {
		d.hosts = hostreg.NewRegistry(d.hostRegistered)
	}
	return d
}

// Model returns the management model the daemon serves.
func (d *Daemon) Model() *model.Model { return d.model }

// hostRegistered mirrors an accepted host into the model.
func (d *Daemon) hostRegistered(h hostreg.Host) {
	groups := make([]any, len(h.ServerGroups))
	for i, g := range h.ServerGroups {
		groups[i] = g
	}
	list, _ := structpb.NewList(groups)
	attrs := map[string]*structpb.Value{
		"product-version":          structpb.NewStringValue(h.ProductVersion),
		"management-major-version": structpb.NewNumberValue(float64(h.ManagementMajor)),
		"management-minor-version": structpb.NewNumberValue(float64(h.ManagementMinor)),
		"server-groups":            structpb.NewListValue(list),
	}
	if err := d.model.AddHost(h.Host, attrs); err != nil {
		slog.Warn("failed to add registered host", "host", h.Host, "err", err)
		d.hosts.Unregister(h.Host)
	}
}

// openSinks attaches the configured audit sinks.
func (d *Daemon) openSinks() error {
	severity := logging.ParseSeverity(d.opts.SyslogSeverity)
	if d.opts.AuditFile != "" {
		lw, err := logging.NewLocalLogWriter(logging.LocalLogConfig{Path: d.opts.AuditFile})
		if err != nil {
			return fmt.Errorf("audit file: %w", err)
		}
		lw.MinSeverity = severity
		lw.Format = d.opts.AuditFormat
		d.audit.AddSink(lw)
		d.closers = append(d.closers, lw.Close)
		slog.Info("audit file configured", "path", d.opts.AuditFile)
	}
	if d.opts.SyslogAddr != "" {
		client, err := logging.NewSyslogClient(d.opts.SyslogAddr)
		if err != nil {
			return err
		}
		client.MinSeverity = severity
		d.audit.AddSink(client)
		d.closers = append(d.closers, client.Close)
		slog.Info("syslog stream configured", "addr", d.opts.SyslogAddr)
	}
	return nil
}

// Run listens on the configured addresses and serves until ctx is
// cancelled or SIGTERM/SIGINT arrives.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	grpcLis, err := net.Listen("tcp", d.opts.GRPCAddr)
	if err != nil {
		return fmt.Errorf("gRPC listen: %w", err)
	}
	var apiLis net.Listener
	if d.opts.APIAddr != "" {
		apiLis, err = net.Listen("tcp", d.opts.APIAddr)
		if err != nil {
			grpcLis.Close()
			return fmt.Errorf("HTTP API listen: %w", err)
		}
	}
	return d.Serve(ctx, grpcLis, apiLis)
}

// Serve serves gRPC on grpcLis and, when apiLis is non-nil, the HTTP API.
// It returns when ctx is cancelled or a server fails.
func (d *Daemon) Serve(ctx context.Context, grpcLis, apiLis net.Listener) error {
	launch := "standalone"
	if d.opts.Domain {
		launch = "domain"
	}
	slog.Info("starting management controller", "launch-type", launch, "pid", os.Getpid())

	if err := d.openSinks(); err != nil {
		grpcLis.Close()
		if apiLis != nil {
			apiLis.Close()
		}
		return err
	}
	defer d.closeSinks()

	observer := grpcapi.Observers{d.audit, d.metrics}
	cfg := grpcapi.Config{Controller: d.model, Observer: observer}
	if d.hosts != nil {
		cfg.Hosts = d.hosts
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Each server's error is reported once; the first one stops the rest.
	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	run := func(name string, serve func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serve(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	grpcSrv := grpcapi.NewServer(grpcLis.Addr().String(), cfg)
	run("gRPC", func(ctx context.Context) error { return grpcSrv.Serve(ctx, grpcLis) })

	if apiLis != nil {
		apiCfg := api.Config{
			Controller: d.model,
			Observer:   observer,
			Audit:      d.audit.Buffer(),
			Metrics:    d.metrics,
		}
		if d.hosts != nil {
			apiCfg.Hosts = d.hosts
		}
		if d.opts.UsersDir != "" {
			auth, err := api.LoadAuthConfig(d.opts.UsersDir)
			if err != nil {
				cancel()
				wg.Wait()
				apiLis.Close()
				return fmt.Errorf("load management users: %w", err)
			}
			if len(auth.Users) == 0 {
				slog.Warn("no management users defined, the HTTP API will reject every request", "dir", d.opts.UsersDir)
			}
			apiCfg.Auth = auth
		}
		apiSrv := api.NewServer(apiCfg)
		run("HTTP API", func(ctx context.Context) error { return apiSrv.Serve(ctx, apiLis) })
	}

	<-ctx.Done()
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	slog.Info("shutdown complete")
	return errors.Join(errs...)
}

func (d *Daemon) closeSinks() {
	for _, c := range d.closers {
		if err := c(); err != nil {
			slog.Warn("failed to close audit sink", "err", err)
		}
	}
	d.closers = nil
}
