package adduser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// TermConsole is a Console over stdin and stderr. Passwords are read
// without echo when stdin is a terminal.
type TermConsole struct {
	in  *bufio.Reader
	fd  int
	out io.Writer
}

// NewTermConsole returns a console on the process terminal.
func NewTermConsole() *TermConsole {
	return &TermConsole{in: bufio.NewReader(os.Stdin), fd: int(os.Stdin.Fd()), out: os.Stderr}
}

// Interactive reports whether stdin is a terminal.
func (c *TermConsole) Interactive() bool { return term.IsTerminal(c.fd) }

func (c *TermConsole) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *TermConsole) ReadLine(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *TermConsole) ReadPassword(prompt string) (string, error) {
	if !c.Interactive() {
		return c.ReadLine(prompt)
	}
	fmt.Fprint(c.out, prompt)
	b, err := term.ReadPassword(c.fd)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}
