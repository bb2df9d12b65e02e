// Package cmdtree defines the shell command tree of the management CLI.
//
// The tree is the single source for command-name completion, '?' help,
// the help command and "did you mean" suggestions. A command added here
// shows up in all of them.
package cmdtree

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Source supplies the dynamic values some commands complete.
type Source interface {
	Deployments() []string
	Variables() []string
}

// Flag is a command option. A name ending in '=' takes a value.
type Flag struct {
	Name string
	Desc string
}

// Node is a shell command.
type Node struct {
	Desc      string
	Usage     string
	Flags     []Flag
	DynamicFn func(src Source) []string
}

// Candidate holds a completion and its description for display.
type Candidate struct {
	Name string
	Desc string
}

func deployments(src Source) []string { return src.Deployments() }

var (
	headersFlag     = Flag{Name: "--headers=", Desc: "Operation headers {name=value;...}"}
	groupsFlag      = Flag{Name: "--server-groups=", Desc: "Comma separated server groups"}
	allGroupsFlag   = Flag{Name: "--all-server-groups", Desc: "Every server group"}
	serverGroupFlag = Flag{Name: "--server-group=", Desc: "Server group to report on"}
)

// Commands is the shell command tree. Operation requests are not
// commands; they are recognized by their syntax.
var Commands = map[string]*Node{
	"cd":  {Desc: "Change the current node", Usage: "cd [address]"},
	"pwd": {Desc: "Print the current node", Usage: "pwd"},
	"ls": {Desc: "List the children of a node", Usage: "ls [address] [-l]", Flags: []Flag{
		{Name: "-l", Desc: "Include attribute values"},
	}},
	"batch":         {Desc: "Start collecting requests into a batch", Usage: "batch"},
	"run-batch":     {Desc: "Execute the batch as one composite request", Usage: "run-batch [--headers={...}]", Flags: []Flag{headersFlag}},
	"discard-batch": {Desc: "Drop the current batch", Usage: "discard-batch"},
	"list-batch":    {Desc: "Show the requests of the current batch", Usage: "list-batch"},
	"set":           {Desc: "Define a variable", Usage: "set name=value"},
	"unset": {Desc: "Remove a variable", Usage: "unset name", DynamicFn: func(src Source) []string {
		return src.Variables()
	}},
	"echo": {Desc: "Print text with variables substituted", Usage: "echo text"},
	"deploy": {
		Desc:  "Deploy an application archive",
		Usage: "deploy <path> | --url=<url> [--name=] [--runtime-name=] [--disabled] [--force] [--server-groups=a,b | --all-server-groups] [--headers={...}]",
		Flags: []Flag{
			{Name: "--url=", Desc: "Content URL instead of a local file"},
			{Name: "--name=", Desc: "Unique deployment name"},
			{Name: "--runtime-name=", Desc: "Name used at runtime"},
			{Name: "--disabled", Desc: "Add the content without deploying it"},
			{Name: "--force", Desc: "Replace existing content"},
			groupsFlag, allGroupsFlag, headersFlag,
		},
	},
	"undeploy": {
		Desc:  "Undeploy an application",
		Usage: "undeploy <name> [--keep-content] [--server-groups=a,b | --all-relevant-server-groups] [--headers={...}]",
		Flags: []Flag{
			{Name: "--keep-content", Desc: "Keep the deployment content"},
			groupsFlag,
			{Name: "--all-relevant-server-groups", Desc: "Every server group the deployment is in"},
			headersFlag,
		},
		DynamicFn: deployments,
	},
	"deployment-enable": {
		Desc:      "Enable a deployment",
		Usage:     "deployment-enable <name> [--server-groups=a,b | --all-server-groups] [--headers={...}]",
		Flags:     []Flag{groupsFlag, allGroupsFlag, headersFlag},
		DynamicFn: deployments,
	},
	"deployment-list": {Desc: "List deployment content", Usage: "deployment-list"},
	"deployment-info": {
		Desc:      "Show deployment state",
		Usage:     "deployment-info [name] [--server-group=g]",
		Flags:     []Flag{serverGroupFlag},
		DynamicFn: deployments,
	},
	"help": {Desc: "Show help for a command", Usage: "help [command]"},
	"quit": {Desc: "Leave the shell", Usage: "quit"},
	"exit": {Desc: "Leave the shell", Usage: "exit"},
}

func init() {
	Commands["help"].DynamicFn = func(Source) []string { return KeysFromTree(Commands) }
}

// KeysFromTree returns the sorted command names of a tree.
func KeysFromTree(tree map[string]*Node) []string {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HelpCandidates returns the commands of a tree for help display.
func HelpCandidates(tree map[string]*Node) []Candidate {
	candidates := make([]Candidate, 0, len(tree))
	for name, node := range tree {
		candidates = append(candidates, Candidate{Name: name, Desc: node.Desc})
	}
	return candidates
}

// used reports whether flag already appears in words.
func used(words []string, flag string) bool {
	for _, w := range words {
		if w == flag || (strings.HasSuffix(flag, "=") && strings.HasPrefix(w, flag)) {
			return true
		}
	}
	return false
}

// CompleteWithDesc returns the candidates for partial following words.
// The first word selects the command; later candidates are the flags not
// used yet plus the command's dynamic values.
func CompleteWithDesc(tree map[string]*Node, words []string, partial string, src Source) []Candidate {
	var candidates []Candidate
	if len(words) == 0 {
		for name, node := range tree {
			if strings.HasPrefix(name, partial) {
				candidates = append(candidates, Candidate{Name: name, Desc: node.Desc})
			}
		}
		return candidates
	}
	node, ok := tree[words[0]]
	if !ok {
		return nil
	}
	for _, f := range node.Flags {
		if strings.HasPrefix(f.Name, partial) && !used(words[1:], f.Name) {
			candidates = append(candidates, Candidate{Name: f.Name, Desc: f.Desc})
		}
	}
	if node.DynamicFn != nil && src != nil && !strings.HasPrefix(partial, "-") {
		for _, v := range node.DynamicFn(src) {
			if strings.HasPrefix(v, partial) && !slices.Contains(words[1:], v) {
				candidates = append(candidates, Candidate{Name: v})
			}
		}
	}
	return candidates
}

// Complete is CompleteWithDesc without descriptions, sorted.
func Complete(tree map[string]*Node, words []string, partial string, src Source) []string {
	candidates := CompleteWithDesc(tree, words, partial, src)
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// WriteHelp prints aligned candidates to w.
// The output is written in one call so that readline refreshes once.
func WriteHelp(w io.Writer, candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	maxWidth := 20
	for _, c := range candidates {
		if len(c.Name)+2 > maxWidth {
			maxWidth = len(c.Name) + 2
		}
	}
	var sb strings.Builder
	sb.WriteString("Possible completions:\n")
	for _, c := range candidates {
		if c.Desc != "" {
			fmt.Fprintf(&sb, "  %-*s %s\n", maxWidth, c.Name, c.Desc)
		} else {
			fmt.Fprintf(&sb, "  %s\n", c.Name)
		}
	}
	io.WriteString(w, sb.String())
}

// WriteUsage prints the usage and options of a command.
func WriteUsage(w io.Writer, tree map[string]*Node, name string) error {
	node, ok := tree[name]
	if !ok {
		return fmt.Errorf("no help for %q", name)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n  %s\n", node.Desc, node.Usage)
	if len(node.Flags) > 0 {
		sb.WriteString("\nOptions:\n")
		for _, f := range node.Flags {
			fmt.Fprintf(&sb, "  %-30s %s\n", f.Name, f.Desc)
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// CommonPrefix returns the longest shared prefix among the given strings.
func CommonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, s := range items[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}

// FilterPrefix returns only items that start with the given prefix.
func FilterPrefix(items []string, prefix string) []string {
	if prefix == "" {
		return items
	}
	var result []string
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			result = append(result, item)
		}
	}
	return result
}

// Closest returns the candidate nearest to name, or "" when nothing is
// close. Typos within two edits win; otherwise the best subsequence match.
func Closest(name string, candidates []string) string {
	if name == "" {
		return ""
	}
	best, bestDist := "", 3
	for _, c := range candidates {
		if d := fuzzy.LevenshteinDistance(strings.ToLower(name), strings.ToLower(c)); d < bestDist {
			best, bestDist = c, d
		}
	}
	if best != "" {
		return best
	}
	ranks := fuzzy.RankFindFold(name, candidates)
	if len(ranks) == 0 {
		return ""
	}
	sort.Sort(ranks)
	return ranks[0].Target
}
