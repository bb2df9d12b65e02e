// Package cli implements the interactive management shell: operation
// requests, navigation, variables, batches and the deployment commands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/cliconfig"
	"github.com/wildfly/wildfly-core-sub044/pkg/cmdtree"
	"github.com/wildfly/wildfly-core-sub044/pkg/completion"
	"github.com/wildfly/wildfly-core-sub044/pkg/deployment"
	"github.com/wildfly/wildfly-core-sub044/pkg/operation"
	"github.com/wildfly/wildfly-core-sub044/pkg/value"
)

var errExit = fmt.Errorf("exit")

// Options configures a CLI.
type Options struct {
	Config *cliconfig.Config
	Out    io.Writer
	Err    io.Writer
	// Pretty indents results.
	Pretty bool
	// Color styles the prompt and error messages.
	Color bool
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type batchEntry struct {
	line string
	req  *structpb.Struct
}

// CLI is the management shell. Lines are executed one at a time.
type CLI struct {
	exec      operation.Executor
	cfg       *cliconfig.Config
	out       io.Writer
	errOut    io.Writer
	pretty    bool
	rl        *readline.Instance
	provider  *completion.ControllerProvider
	completer *completion.Completer
	deploy    *deployment.Runner

	cwd     *address.Address
	vars    map[string]string
	inBatch bool
	batch   []batchEntry
	kind    string

	promptStyle lipgloss.Style
	errStyle    lipgloss.Style

	cmdMu     sync.Mutex
	cmdCancel context.CancelFunc
}

// New returns a shell that sends requests through exec.
func New(exec operation.Executor, opts Options) *CLI {
	cfg := opts.Config
	if cfg == nil {
		cfg = cliconfig.Default()
	}
	out, errOut := opts.Out, opts.Err
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	provider := completion.NewControllerProvider(exec)
	c := &CLI{
		exec:        exec,
		cfg:         cfg,
		out:         out,
		errOut:      errOut,
		pretty:      opts.Pretty,
		provider:    provider,
		completer:   completion.New(provider, nil),
		deploy:      deployment.NewRunner(exec, out),
		cwd:         address.New(),
		vars:        make(map[string]string, len(cfg.Variables)),
		promptStyle: lipgloss.NewStyle(),
		errStyle:    lipgloss.NewStyle(),
	}
	for k, v := range cfg.Variables {
		c.vars[k] = v
	}
	if opts.Color {
		c.promptStyle = c.promptStyle.Foreground(lipgloss.Color("12")).Bold(true)
		c.errStyle = c.errStyle.Foreground(lipgloss.Color("9"))
	}
	return c
}

// Deployments returns the deployment names known to the controller.
func (c *CLI) Deployments() []string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	names, err := c.provider.NodeNames(ctx, address.New(), "deployment")
	if err != nil {
		slog.Debug("list deployments", "err", err)
		return nil
	}
	return names
}

// Variables returns the defined variable names.
func (c *CLI) Variables() []string {
	names := make([]string, 0, len(c.vars))
	for k := range c.vars {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Cwd returns the current node.
func (c *CLI) Cwd() *address.Address { return c.cwd.Clone() }

// InBatch reports whether requests are collected instead of executed.
func (c *CLI) InBatch() bool { return c.inBatch }

// Connect reads the launch type, which also checks that the controller
// answers.
func (c *CLI) Connect(ctx context.Context) error {
	res, err := c.run(ctx, address.New(), "read-attribute", map[string]*structpb.Value{
		operation.FieldName: structpb.NewStringValue("launch-type"),
	})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.cfg.Controller, err)
	}
	c.kind = strings.ToLower(res.GetStringValue())
	return nil
}

func (c *CLI) prompt() string {
	kind := c.kind
	if kind == "" {
		kind = "disconnected"
	}
	marker := ""
	if c.inBatch {
		marker = " #"
	}
	p := fmt.Sprintf("[%s@%s %s%s]", kind, c.cfg.Controller, c.cwd, marker)
	return c.promptStyle.Render(p) + " "
}

func (c *CLI) refreshPrompt() {
	if c.rl != nil {
		c.rl.SetPrompt(c.prompt())
	}
}

// Run reads lines from the terminal until quit, exit or end of input.
// Ctrl-C cancels the running command.
func (c *CLI) Run(ctx context.Context) error {
	var err error
	c.rl, err = readline.NewEx(&readline.Config{
		Prompt:          c.prompt(),
		HistoryFile:     c.cfg.HistoryFile,
		HistoryLimit:    c.cfg.HistoryMax,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    &lineCompleter{cli: c},
		Listener:        readline.FuncListener(c.helpListener),
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer c.rl.Close()

	if !c.cfg.Silent {
		fmt.Fprintf(c.out, "Connected to %s. Type 'help' for commands, TAB or '?' to complete.\n", c.cfg.Controller)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if c.cancelCmd() {
				fmt.Fprintln(c.errOut, "\n^C (command cancelled)")
			}
		}
	}()

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		cmdCtx := c.startCmd(ctx)
		err = c.Execute(cmdCtx, line)
		c.endCmd()
		switch {
		case err == nil:
		case errors.Is(err, errExit):
			return nil
		case errors.Is(err, context.Canceled):
		default:
			c.printError(err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// RunScript executes the lines of r and stops at the first failure.
func (c *CLI) RunScript(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if c.cfg.EchoCommand {
			fmt.Fprintln(c.out, c.prompt()+line)
		}
		err := c.Execute(ctx, line)
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %s: %w", n, line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if c.inBatch {
		return errors.New("the input ended inside a batch; add run-batch or discard-batch")
	}
	return nil
}

func (c *CLI) printError(err error) {
	fmt.Fprintln(c.errOut, c.errStyle.Render("error: "+err.Error()))
}

// startCmd creates a cancellable context for the current command. Must
// call endCmd when the command finishes.
func (c *CLI) startCmd(parent context.Context) context.Context {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	ctx, cancel := context.WithCancel(parent)
	c.cmdCancel = cancel
	return ctx
}

func (c *CLI) endCmd() {
	c.cmdMu.Lock()
	if c.cmdCancel != nil {
		c.cmdCancel()
	}
	c.cmdCancel = nil
	c.cmdMu.Unlock()
}

// cancelCmd cancels the running command and reports whether there was one.
func (c *CLI) cancelCmd() bool {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	if c.cmdCancel != nil {
		c.cmdCancel()
		return true
	}
	return false
}

// isRequest reports whether line is an operation request rather than a
// command: it starts with an address or an operation, or its first word
// holds a node type and name.
func isRequest(line string) bool {
	if line == "" {
		return false
	}
	switch line[0] {
	case '/', '.', ':':
		return true
	}
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case ' ', '\t':
			return false
		case '=', ':':
			return true
		}
	}
	return false
}

func (c *CLI) lookup(name string) (string, bool) {
	if v, ok := c.vars[name]; ok {
		return v, true
	}
	if c.cfg.ResolveParameterValues {
		return os.LookupEnv(name)
	}
	return "", false
}

func (c *CLI) validator() operation.Validator {
	if c.cfg.ValidateOperationRequests {
		return operation.Strict
	}
	return operation.Lenient
}

// Execute runs one command or operation request.
func (c *CLI) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	if isRequest(line) {
		return c.request(ctx, line)
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	if name != "set" {
		var err error
		if rest, err = operation.Substitute(rest, c.lookup); err != nil {
			return err
		}
	}
	switch name {
	case "cd":
		return c.cd(ctx, rest)
	case "pwd":
		fmt.Fprintln(c.out, c.cwd)
		return nil
	case "ls":
		return c.ls(ctx, rest)
	case "batch":
		return c.startBatch(rest)
	case "run-batch":
		return c.runBatch(ctx, rest)
	case "discard-batch":
		return c.discardBatch()
	case "list-batch":
		return c.listBatch()
	case "set":
		return c.set(rest)
	case "unset":
		return c.unset(rest)
	case "echo":
		fmt.Fprintln(c.out, rest)
		return nil
	case "help":
		return c.help(rest)
	case "quit", "exit":
		return errExit
	case deployment.CmdDeploy, deployment.CmdUndeploy, deployment.CmdEnable,
		deployment.CmdList, deployment.CmdInfo:
		return c.deploymentCmd(ctx, name, line, rest)
	}
	err := fmt.Errorf("unknown command: %s", name)
	if s := cmdtree.Closest(name, cmdtree.KeysFromTree(cmdtree.Commands)); s != "" {
		err = fmt.Errorf("%w (did you mean %q?)", err, s)
	}
	return err
}

func (c *CLI) request(ctx context.Context, line string) error {
	p := operation.NewParsedRequest(c.validator())
	p.SetVariables(c.lookup)
	if err := p.Parse(c.cwd, line); err != nil {
		return err
	}
	if err := operation.ResolveRolloutPlan(ctx, c.exec, p.RolloutPlan()); err != nil {
		return err
	}
	req, err := p.BuildRequest()
	if err != nil {
		return err
	}
	if c.inBatch {
		if p.Target() != "" {
			return errors.New("output redirection is not available inside a batch")
		}
		c.batch = append(c.batch, batchEntry{line: line, req: req})
		return nil
	}
	slog.Debug("executing request", "operation", p.Operation(), "address", p.Address().String())
	res, err := c.exec.Execute(ctx, req)
	if err != nil {
		return c.explain(ctx, p, err)
	}
	return c.printResult(res, p.Target())
}

// explain adds the closest operation name to an unknown-operation failure.
func (c *CLI) explain(ctx context.Context, p *operation.ParsedRequest, err error) error {
	var opErr *operation.Error
	if !errors.As(err, &opErr) || !strings.Contains(opErr.Error(), "WFLYCTL0031") {
		return err
	}
	names, lerr := c.provider.OperationNames(ctx, p.Address())
	if lerr != nil {
		return err
	}
	if s := cmdtree.Closest(p.Operation(), names); s != "" {
		return fmt.Errorf("%w (did you mean %q?)", err, s)
	}
	return err
}

func (c *CLI) printResult(res *structpb.Value, target string) error {
	if _, null := res.GetKind().(*structpb.Value_NullValue); null && target == "" {
		return nil
	}
	text, err := value.Format(res, c.pretty)
	if err != nil {
		return err
	}
	if target != "" {
		return os.WriteFile(target, []byte(text+"\n"), 0o644)
	}
	_, err = fmt.Fprintln(c.out, text)
	return err
}

// run executes op at addr.
func (c *CLI) run(ctx context.Context, addr *address.Address, op string, props map[string]*structpb.Value) (*structpb.Value, error) {
	b := operation.NewBuilder(addr)
	b.SetOperationName(op)
	for k, v := range props {
		b.SetProperty(k, v)
	}
	req, err := b.Build()
	if err != nil {
		return nil, err
	}
	return c.exec.Execute(ctx, req)
}

// resolveAddress parses an address argument relative to the current node.
func (c *CLI) resolveAddress(text string) (*address.Address, error) {
	p := operation.NewParsedRequest(c.validator())
	if err := p.Parse(c.cwd, text); err != nil {
		return nil, err
	}
	if p.HasOperationName() || p.HasPropertyList() || p.HasHeaderList() || p.HasOperator() {
		return nil, fmt.Errorf("%q is not an address", text)
	}
	return p.Address().Clone(), nil
}

func (c *CLI) cd(ctx context.Context, arg string) error {
	if arg == "" {
		c.cwd = address.New()
		c.refreshPrompt()
		return nil
	}
	addr, err := c.resolveAddress(arg)
	if err != nil {
		return err
	}
	if addr.EndsOnType() {
		return fmt.Errorf("cd: %s ends on node type %q without a name", addr, addr.NodeType())
	}
	if _, err := c.run(ctx, addr, "read-children-types", nil); err != nil {
		return fmt.Errorf("cd: %w", err)
	}
	c.cwd = addr
	c.refreshPrompt()
	return nil
}

func (c *CLI) ls(ctx context.Context, rest string) error {
	long := false
	addr := c.cwd
	target := ""
	for _, arg := range strings.Fields(rest) {
		switch {
		case arg == "-l":
			long = true
		case target == "":
			target = arg
		default:
			return fmt.Errorf("ls: unexpected argument %q", arg)
		}
	}
	if target != "" {
		var err error
		if addr, err = c.resolveAddress(target); err != nil {
			return err
		}
	}
	if addr.EndsOnType() {
		parent := addr.Clone()
		childType := parent.NodeType()
		if err := parent.ToParentNode(); err != nil {
			return err
		}
		names, err := c.provider.NodeNames(ctx, parent, childType)
		if err != nil {
			return fmt.Errorf("ls: %w", err)
		}
		for _, n := range names {
			fmt.Fprintln(c.out, n)
		}
		return nil
	}

	types, err := c.provider.NodeTypes(ctx, addr)
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}
	res, err := c.run(ctx, addr, "read-resource", nil)
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}
	fields := res.GetStructValue().GetFields()
	var attrs []string
	for k := range fields {
		if !slices.Contains(types, k) {
			attrs = append(attrs, k)
		}
	}
	slices.Sort(attrs)
	for _, t := range types {
		fmt.Fprintln(c.out, t)
	}
	for _, a := range attrs {
		if long {
			fmt.Fprintf(c.out, "%s=%s\n", a, value.String(fields[a]))
		} else {
			fmt.Fprintln(c.out, a)
		}
	}
	return nil
}

func (c *CLI) startBatch(rest string) error {
	if rest != "" {
		return errors.New("batch: unexpected arguments")
	}
	if c.inBatch {
		return errors.New("batch: a batch is already active")
	}
	c.inBatch = true
	c.batch = nil
	c.refreshPrompt()
	return nil
}

func (c *CLI) runBatch(ctx context.Context, rest string) error {
	if !c.inBatch {
		return errors.New("run-batch: no active batch")
	}
	if len(c.batch) == 0 {
		return errors.New("run-batch: the batch is empty")
	}
	var headers []operation.Header
	if rest != "" {
		args, err := deployment.SplitArgs(rest)
		if err != nil {
			return err
		}
		if len(args) != 1 || !strings.HasPrefix(args[0], "--headers=") {
			return fmt.Errorf("run-batch: unexpected arguments %q", rest)
		}
		if headers, err = operation.ParseHeaderList(ctx, c.exec, strings.TrimPrefix(args[0], "--headers=")); err != nil {
			return fmt.Errorf("run-batch: --headers: %w", err)
		}
	}
	steps := make([]*structpb.Struct, len(c.batch))
	for i, e := range c.batch {
		steps[i] = e.req
	}
	req := operation.NewComposite(steps...)
	if err := operation.AddHeaders(req, headers...); err != nil {
		return err
	}
	// A failed batch stays active so that it can be corrected.
	if _, err := c.exec.Execute(ctx, req); err != nil {
		return fmt.Errorf("the batch failed: %w", err)
	}
	c.inBatch = false
	c.batch = nil
	c.refreshPrompt()
	if !c.cfg.Silent {
		fmt.Fprintln(c.out, "The batch executed successfully")
	}
	return nil
}

func (c *CLI) discardBatch() error {
	if !c.inBatch {
		return errors.New("discard-batch: no active batch")
	}
	c.inBatch = false
	c.batch = nil
	c.refreshPrompt()
	return nil
}

func (c *CLI) listBatch() error {
	if !c.inBatch {
		return errors.New("list-batch: no active batch")
	}
	for i, e := range c.batch {
		fmt.Fprintf(c.out, "#%d %s\n", i+1, e.line)
	}
	return nil
}

func (c *CLI) set(rest string) error {
	if rest == "" {
		for _, name := range c.Variables() {
			fmt.Fprintf(c.out, "%s=%s\n", name, c.vars[name])
		}
		return nil
	}
	name, val, ok := strings.Cut(rest, "=")
	name = strings.TrimSpace(name)
	if !ok {
		return errors.New("set: expected name=value")
	}
	if !operation.IsVariableName(name) {
		return fmt.Errorf("set: invalid variable name %q", name)
	}
	val, err := operation.Substitute(strings.TrimSpace(val), c.lookup)
	if err != nil {
		return err
	}
	c.vars[name] = val
	return nil
}

func (c *CLI) unset(rest string) error {
	names := strings.Fields(rest)
	if len(names) == 0 {
		return errors.New("unset: a variable name is required")
	}
	for _, name := range names {
		if _, ok := c.vars[name]; !ok {
			return fmt.Errorf("unset: variable %q is not defined", name)
		}
		delete(c.vars, name)
	}
	return nil
}

func (c *CLI) help(rest string) error {
	if rest != "" {
		return cmdtree.WriteUsage(c.out, cmdtree.Commands, rest)
	}
	cmdtree.WriteHelp(c.out, cmdtree.HelpCandidates(cmdtree.Commands))
	fmt.Fprintln(c.out, "\nOperation requests: [address]:operation[(name=value,...)][{header=value;...}] [> file]")
	return nil
}

func (c *CLI) deploymentCmd(ctx context.Context, name, line, rest string) error {
	args, err := deployment.SplitArgs(rest)
	if err != nil {
		return err
	}
	if c.inBatch && name != deployment.CmdList && name != deployment.CmdInfo {
		req, err := c.deploy.Request(ctx, name, args)
		if err != nil {
			return err
		}
		c.batch = append(c.batch, batchEntry{line: line, req: req})
		return nil
	}
	return c.deploy.Run(ctx, name, args)
}
