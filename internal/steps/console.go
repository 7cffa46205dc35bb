package steps

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

var (
	// ErrBack is returned by prompts when the user typed :back.
	ErrBack = errors.New("back")
	// ErrQuit is returned by prompts when the user typed :quit.
	ErrQuit = errors.New("quit")
)

// GotoError is returned by prompts when the user typed :goto N. Step is
// zero based.
type GotoError struct {
	Step int
}

func (e *GotoError) Error() string {
	return fmt.Sprintf("goto step %d", e.Step+1)
}

// Console reads answers line by line. Lines starting with ':' are
// navigation commands.
type Console struct {
	in  *bufio.Reader
	out io.Writer
	// fd is set when input is an interactive terminal, so secrets can be
	// read without echo.
	fd int
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	c := &Console{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.fd = int(f.Fd())
	}
	return c
}

func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// Ask prints prompt and returns the trimmed answer, or def when the answer
// is empty.
func (c *Console) Ask(prompt, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(c.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(c.out, "%s: ", prompt)
	}
	line, err := c.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

// Confirm asks a yes/no question.
func (c *Console) Confirm(prompt string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(c.out, "%s [%s]: ", prompt, hint)
	line, err := c.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	return def, nil
}

// Secret reads a value without echoing it when input is a terminal.
func (c *Console) Secret(prompt string) (string, error) {
	fmt.Fprintf(c.out, "%s: ", prompt)
	if c.fd < 0 {
		return c.readLine()
	}
	data, err := term.ReadPassword(c.fd)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", err
	}
	return command(strings.TrimSpace(string(data)))
}

func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return command(strings.TrimSpace(line))
}

func command(line string) (string, error) {
	if !strings.HasPrefix(line, ":") {
		return line, nil
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return line, nil
	}
	switch fields[0] {
	case "back", "b":
		return "", ErrBack
	case "quit", "q":
		return "", ErrQuit
	case "goto", "g":
		if len(fields) == 2 {
			if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
				return "", &GotoError{Step: n - 1}
			}
		}
		return "", fmt.Errorf("usage: :goto <step number>")
	}
	return line, nil
}
