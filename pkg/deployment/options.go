package deployment

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/pflag"
)

const headersFlag = "--headers="

// SplitArgs splits a command line into arguments with shell quoting rules.
// A --headers={...} argument is kept whole up to its matching brace, so
// header lists may contain blanks without being quoted.
func SplitArgs(line string) ([]string, error) {
	var args []string
	for {
		i := strings.Index(line, headersFlag+"{")
		if i < 0 {
			break
		}
		before, err := shlex.Split(line[:i])
		if err != nil {
			return nil, err
		}
		end, err := closingBrace(line, i+len(headersFlag))
		if err != nil {
			return nil, err
		}
		args = append(args, before...)
		args = append(args, line[i:end+1])
		line = line[end+1:]
	}
	rest, err := shlex.Split(line)
	if err != nil {
		return nil, err
	}
	return append(args, rest...), nil
}

// closingBrace returns the offset of the brace closing the one at start.
func closingBrace(s string, start int) (int, error) {
	depth := 0
	quoted := false
	for i := start; i < len(s); i++ {
		switch ch := s[i]; {
		case ch == '\\':
			i++
		case ch == '"':
			quoted = !quoted
		case quoted:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, errors.New("the header list is not closed")
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false
	return fs
}

type deployOptions struct {
	path            string
	url             string
	name            string
	runtimeName     string
	disabled        bool
	force           bool
	serverGroups    []string
	allServerGroups bool
	headers         string
}

func parseDeploy(args []string) (*deployOptions, error) {
	o := &deployOptions{}
	fs := newFlagSet(CmdDeploy)
	fs.StringVar(&o.url, "url", "", "URL of the deployment content")
	fs.StringVar(&o.name, "name", "", "unique deployment name")
	fs.StringVar(&o.runtimeName, "runtime-name", "", "name the deployment is known by at runtime")
	fs.BoolVar(&o.disabled, "disabled", false, "add the content without deploying it")
	fs.BoolVar(&o.force, "force", false, "replace existing content with full-replace-deployment")
	fs.StringSliceVar(&o.serverGroups, "server-groups", nil, "server groups to deploy to")
	fs.BoolVar(&o.allServerGroups, "all-server-groups", false, "deploy to every server group")
	fs.StringVar(&o.headers, "headers", "", "operation headers {name=value;...}")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%s: %w", CmdDeploy, err)
	}
	switch rest := fs.Args(); {
	case len(rest) > 1:
		return nil, fmt.Errorf("%s: unexpected arguments %v", CmdDeploy, rest[1:])
	case len(rest) == 1:
		o.path = rest[0]
	}
	switch {
	case o.path == "" && o.url == "":
		return nil, fmt.Errorf("%s: a file path or --url is required", CmdDeploy)
	case o.path != "" && o.url != "":
		return nil, fmt.Errorf("%s: a file path and --url are mutually exclusive", CmdDeploy)
	case o.allServerGroups && len(o.serverGroups) > 0:
		return nil, fmt.Errorf("%s: --server-groups and --all-server-groups are mutually exclusive", CmdDeploy)
	case o.force && (o.allServerGroups || len(o.serverGroups) > 0):
		return nil, fmt.Errorf("%s: --force replaces content only and cannot target server groups", CmdDeploy)
	}
	return o, nil
}

type undeployOptions struct {
	name         string
	keepContent  bool
	serverGroups []string
	allRelevant  bool
	headers      string
}

func parseUndeploy(args []string) (*undeployOptions, error) {
	o := &undeployOptions{}
	fs := newFlagSet(CmdUndeploy)
	fs.BoolVar(&o.keepContent, "keep-content", false, "keep the deployment content")
	fs.StringSliceVar(&o.serverGroups, "server-groups", nil, "server groups to undeploy from")
	fs.BoolVar(&o.allRelevant, "all-relevant-server-groups", false, "undeploy from every server group it is deployed to")
	fs.StringVar(&o.headers, "headers", "", "operation headers {name=value;...}")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%s: %w", CmdUndeploy, err)
	}
	name, err := single(CmdUndeploy, fs.Args(), true)
	if err != nil {
		return nil, err
	}
	o.name = name
	if o.allRelevant && len(o.serverGroups) > 0 {
		return nil, fmt.Errorf("%s: --server-groups and --all-relevant-server-groups are mutually exclusive", CmdUndeploy)
	}
	return o, nil
}

type enableOptions struct {
	name            string
	serverGroups    []string
	allServerGroups bool
	headers         string
}

func parseEnable(args []string) (*enableOptions, error) {
	o := &enableOptions{}
	fs := newFlagSet(CmdEnable)
	fs.StringSliceVar(&o.serverGroups, "server-groups", nil, "server groups to enable the deployment in")
	fs.BoolVar(&o.allServerGroups, "all-server-groups", false, "enable the deployment in every server group")
	fs.StringVar(&o.headers, "headers", "", "operation headers {name=value;...}")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%s: %w", CmdEnable, err)
	}
	name, err := single(CmdEnable, fs.Args(), true)
	if err != nil {
		return nil, err
	}
	o.name = name
	if o.allServerGroups && len(o.serverGroups) > 0 {
		return nil, fmt.Errorf("%s: --server-groups and --all-server-groups are mutually exclusive", CmdEnable)
	}
	return o, nil
}

type infoOptions struct {
	name        string
	serverGroup string
}

func parseInfo(args []string) (*infoOptions, error) {
	o := &infoOptions{}
	fs := newFlagSet(CmdInfo)
	fs.StringVar(&o.serverGroup, "server-group", "", "server group to report on")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%s: %w", CmdInfo, err)
	}
	name, err := single(CmdInfo, fs.Args(), false)
	if err != nil {
		return nil, err
	}
	o.name = name
	return o, nil
}

// single returns the only positional argument of cmd.
func single(cmd string, rest []string, required bool) (string, error) {
	switch {
	case len(rest) > 1:
		return "", fmt.Errorf("%s: unexpected arguments %v", cmd, rest[1:])
	case len(rest) == 1:
		return rest[0], nil
	case required:
		return "", fmt.Errorf("%s: a deployment name is required", cmd)
	}
	return "", nil
}
