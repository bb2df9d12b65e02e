// mgmtd is a development management controller.
//
// It serves an in-memory management model over gRPC for mgmtcli, and an
// HTTP API with a JSON management endpoint, an audit feed and Prometheus
// metrics.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wildfly/wildfly-core-sub044/pkg/daemon"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mgmtd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		opts  daemon.Options
		debug bool
	)
	cmd := &cobra.Command{
		Use:           "mgmtd",
		Short:         "Development management controller",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  # Standalone server on the default addresses
  mgmtd

  # Managed domain accepting host registrations, HTTP API protected by
  # the users added with "mgmtcli add-user"
  mgmtd --domain --users-dir ./configuration`,
		PersistentPreRun: func(*cobra.Command, []string) {
			logLevel := slog.LevelInfo
			if debug {
				logLevel = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			})))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return daemon.New(opts).Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.GRPCAddr, "grpc-addr", "127.0.0.1:9999", "gRPC listen address")
	f.StringVar(&opts.APIAddr, "api-addr", "127.0.0.1:9990", "HTTP API listen address (empty to disable)")
	f.BoolVar(&opts.Domain, "domain", false, "run a managed domain instead of a standalone server")
	f.StringVar(&opts.Name, "name", "", "server name reported by the root resource")
	f.StringVar(&opts.UsersDir, "users-dir", "", "directory of mgmt-users.properties; enables HTTP authentication")
	f.IntVar(&opts.AuditSize, "audit-size", 1000, "operations kept for the HTTP audit feed")
	f.StringVar(&opts.AuditFile, "audit-file", "", "append executed operations to this file")
	f.StringVar(&opts.AuditFormat, "audit-format", "", "audit file format: json, or empty for text lines")
	f.StringVar(&opts.SyslogAddr, "syslog", "", "send executed operations to this syslog host:port")
	f.StringVar(&opts.SyslogSeverity, "syslog-severity", "", "least severe audit message sent to the sinks (error, warning, info)")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}
