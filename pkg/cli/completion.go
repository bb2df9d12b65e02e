package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/wildfly/wildfly-core-sub044/pkg/address"
	"github.com/wildfly/wildfly-core-sub044/pkg/cmdtree"
	"github.com/wildfly/wildfly-core-sub044/pkg/completion"
)

const completeTimeout = 2 * time.Second

// Complete proposes completions for text, the line up to the cursor.
// Candidates replace text from the returned offset.
func (c *CLI) Complete(ctx context.Context, text string) completion.Result {
	trimmed := strings.TrimLeft(text, " \t")
	lead := len(text) - len(trimmed)
	if isRequest(trimmed) {
		return shift(c.completer.Complete(ctx, c.cwd, trimmed, len(trimmed)), lead)
	}

	name, rest, found := strings.Cut(trimmed, " ")
	if !found {
		// A bare word is a command or the start of a relative address.
		cands := cmdtree.FilterPrefix(cmdtree.KeysFromTree(cmdtree.Commands), name)
		if res := c.completer.Complete(ctx, c.cwd, trimmed, len(trimmed)); res.Offset == 0 {
			cands = append(cands, res.Candidates...)
		}
		slices.Sort(cands)
		cands = slices.Compact(cands)
		if len(cands) == 0 {
			return completion.Result{Offset: -1}
		}
		_, isCmd := cmdtree.Commands[cands[0]]
		return completion.Result{Candidates: cands, Offset: lead, AppendSpace: len(cands) == 1 && isCmd}
	}

	words := strings.Fields(rest)
	partial := ""
	if !strings.HasSuffix(text, " ") && !strings.HasSuffix(text, "\t") && len(words) > 0 {
		partial = words[len(words)-1]
		words = words[:len(words)-1]
	}
	offset := len(text) - len(partial)
	if (name == "cd" || name == "ls") && !strings.HasPrefix(partial, "-") {
		return shift(c.completer.Complete(ctx, c.cwd, partial, len(partial)), offset)
	}
	cands := cmdtree.Complete(cmdtree.Commands, append([]string{name}, words...), partial, c)
	if len(cands) == 0 {
		return completion.Result{Offset: -1}
	}
	single := len(cands) == 1 && !strings.HasSuffix(cands[0], "=")
	return completion.Result{Candidates: cands, Offset: offset, AppendSpace: single}
}

func shift(res completion.Result, by int) completion.Result {
	if res.Offset >= 0 {
		res.Offset += by
	}
	return res
}

// describe returns the candidates with the descriptions the command tree
// knows for them.
func describe(text string, names []string) []cmdtree.Candidate {
	out := make([]cmdtree.Candidate, len(names))
	words := strings.Fields(text)
	for i, name := range names {
		out[i] = cmdtree.Candidate{Name: name}
		if node, ok := cmdtree.Commands[name]; ok && len(words) <= 1 {
			out[i].Desc = node.Desc
			continue
		}
		if len(words) == 0 {
			continue
		}
		if node, ok := cmdtree.Commands[words[0]]; ok {
			for _, f := range node.Flags {
				if f.Name == name {
					out[i].Desc = f.Desc
				}
			}
		}
	}
	return out
}

// lineCompleter adapts Complete to readline. Readline only inserts text
// after the cursor, so every candidate must extend the typed partial word;
// the others are dropped.
type lineCompleter struct {
	cli *CLI
}

func (lc *lineCompleter) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line[:pos])
	ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()
	res := lc.cli.Complete(ctx, text)
	if res.Offset < 0 || res.Offset > len(text) {
		return nil, 0
	}
	partial := text[res.Offset:]
	var matches, suffixes []string
	for _, cand := range res.Candidates {
		if suffix, ok := insertion(cand, partial); ok {
			matches = append(matches, cand)
			suffixes = append(suffixes, suffix)
		}
	}
	n := len([]rune(partial))
	switch len(matches) {
	case 0:
		return nil, 0
	case 1:
		suffix := suffixes[0]
		if res.AppendSpace {
			suffix += " "
		}
		return [][]rune{[]rune(suffix)}, n
	}

	cmdtree.WriteHelp(lc.cli.rl.Stdout(), describe(text, matches))
	suffix := cmdtree.CommonPrefix(suffixes)
	if suffix == "" {
		return nil, 0
	}
	return [][]rune{[]rune(suffix)}, n
}

// insertion returns the text to insert after partial so the word becomes
// cand. A quoted candidate also extends a bare partial word: the rest of
// its name is inserted with backslash escapes instead of quotes.
func insertion(cand, partial string) (string, bool) {
	if strings.HasPrefix(cand, partial) {
		return cand[len(partial):], true
	}
	if !strings.HasPrefix(cand, `"`) || strings.HasPrefix(partial, `"`) || strings.HasSuffix(partial, `\`) {
		return "", false
	}
	name, typed := address.Unquote(cand), address.Unquote(partial)
	if !strings.HasPrefix(name, typed) {
		return "", false
	}
	return address.Escape(name[len(typed):]), true
}

// helpListener shows the completions of the line when '?' is typed at
// its end. The '?' that readline already inserted is removed.
func (c *CLI) helpListener(line []rune, pos int, key rune) ([]rune, int, bool) {
	if key != '?' || pos < 1 || pos != len(line) || line[pos-1] != '?' {
		return line, pos, false
	}
	text := string(line[:pos-1])
	if strings.Count(text, `"`)%2 == 1 {
		// A quoted value may contain '?'.
		return line, pos, false
	}
	clean := append([]rune(nil), line[:pos-1]...)

	ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()
	res := c.Complete(ctx, text)
	if res.Offset < 0 || len(res.Candidates) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "  (no help available)")
		return clean, pos - 1, true
	}
	cmdtree.WriteHelp(c.rl.Stdout(), describe(text, res.Candidates))
	return clean, pos - 1, true
}
