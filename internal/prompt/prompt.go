// Package prompt asks the user the installer's questions on a terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	// fd is the terminal file descriptor of the input, or -1.
	fd int
}

// New returns a prompter reading answers from in. Passwords are read
// without echo when in is a terminal.
func New(in io.Reader, out io.Writer) *Prompter {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &Prompter{in: bufio.NewReader(in), out: out, fd: fd}
}

// Interactive reports whether answers come from a terminal.
func (p *Prompter) Interactive() bool {
	return p.fd >= 0
}

// Confirm asks a yes/no question. An empty answer, or the end of the input,
// means no.
func (p *Prompter) Confirm(question string) (bool, error) {
	for {
		fmt.Fprintf(p.out, "%s [y/N] ", question)
		answer, err := p.line()
		if errors.Is(err, io.EOF) && answer == "" {
			fmt.Fprintln(p.out)
			return false, nil
		} else if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}

		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		fmt.Fprintln(p.out, "Please answer yes or no.")
	}
}

func (p *Prompter) Username() (string, error) {
	fmt.Fprint(p.out, "Username: ")
	username, err := p.line()
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return username, nil
}

// Password reads a password without echoing it.
func (p *Prompter) Password() (string, error) {
	fmt.Fprint(p.out, "Password: ")
	if p.fd >= 0 {
		bs, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(bs), nil
	}

	password, err := p.line()
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

// Pause waits for the user to press enter.
func (p *Prompter) Pause() error {
	fmt.Fprint(p.out, "Press Enter to continue...")
	if _, err := p.line(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// line reads one line without its line ending.
func (p *Prompter) line() (string, error) {
	s, err := p.in.ReadString('\n')
	return strings.TrimSpace(s), err
}
