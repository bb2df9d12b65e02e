// mgmtcli is the management command-line interface.
//
// It connects to a management controller over gRPC and runs operation
// requests and shell commands, interactively or from --command and --file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wildfly/wildfly-core-sub044/pkg/cli"
	"github.com/wildfly/wildfly-core-sub044/pkg/cliconfig"
	"github.com/wildfly/wildfly-core-sub044/pkg/grpcapi"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	controller string
	configPath string
	debug      bool
	noColor    bool
	commands   []string
	file       string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	var fl rootFlags
	cmd := &cobra.Command{
		Use:           "mgmtcli",
		Short:         "Management command-line interface",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  # Interactive shell against the local controller
  mgmtcli

  # One-off requests
  mgmtcli -c ':read-attribute(name=launch-type)' -c 'ls subsystem=logging'

  # Run a script
  mgmtcli --controller 10.0.0.5:9999 --file setup.cli`,
		PersistentPreRun: func(*cobra.Command, []string) {
			logLevel := slog.LevelInfo
			if fl.debug {
				logLevel = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			})))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd, &fl)
		},
	}

	f := cmd.Flags()
	f.StringVar(&fl.controller, "controller", "", "controller host:port (default from the config file, then "+cliconfig.DefaultController+")")
	f.StringVar(&fl.configPath, "config", cliconfig.DefaultPath(), "configuration file")
	f.BoolVar(&fl.noColor, "no-color", false, "disable styled output")
	f.StringArrayVarP(&fl.commands, "command", "c", nil, "run a command or request and exit (repeatable)")
	f.StringVarP(&fl.file, "file", "f", "", "run the commands in a file ('-' for stdin) and exit")
	f.DurationVar(&fl.timeout, "timeout", 0, "connect timeout (default from the config file)")
	cmd.MarkFlagsMutuallyExclusive("command", "file")
	cmd.PersistentFlags().BoolVar(&fl.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newAddUserCmd())
	return cmd
}

func runShell(cmd *cobra.Command, fl *rootFlags) error {
	cfg, err := cliconfig.Load(fl.configPath)
	if err != nil {
		return err
	}
	if fl.controller != "" {
		cfg.Controller = fl.controller
	}
	if fl.timeout > 0 {
		cfg.ConnectTimeout = fl.timeout.String()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return err
	}

	client, err := grpcapi.Dial(cfg.Controller)
	if err != nil {
		return err
	}
	defer client.Close()

	c := cli.New(client, cli.Options{
		Config: cfg,
		Pretty: cli.IsTerminal(os.Stdout),
		Color:  !fl.noColor && cli.IsTerminal(os.Stderr),
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	err = c.Connect(connectCtx)
	cancel()
	if err != nil {
		return err
	}
	slog.Debug("connected", "controller", cfg.Controller)

	switch {
	case len(fl.commands) > 0:
		return c.RunScript(ctx, strings.NewReader(strings.Join(fl.commands, "\n")))
	case fl.file != "":
		var r io.Reader = os.Stdin
		if fl.file != "-" {
			f, err := os.Open(fl.file)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		return c.RunScript(ctx, r)
	}
	if !cli.IsTerminal(os.Stdin) {
		return errors.New("stdin is not a terminal; use --command or --file")
	}
	return c.Run(ctx)
}
