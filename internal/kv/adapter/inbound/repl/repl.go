// Package repl implements the interactive command shell. It is a thin
// inbound adapter: every command dispatches to the engine through
// port.KVService, errors are printed and the session continues.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/guiyuanju/mossdb/internal/kv/port"
)

// OpenFunc constructs a service over a storage engine opened on dir. The
// shell stays transport- and engine-agnostic by having the constructor
// injected.
type OpenFunc func(dir string) (port.KVService, error)

// Shell reads commands line by line and dispatches them. Commands before
// an `open` (other than `open` itself and `exit`) are rejected with a
// prompt to open a database first.
type Shell struct {
	openFn OpenFunc
	svc    port.KVService
	out    io.Writer
}

func New(openFn OpenFunc, out io.Writer) *Shell {
	return &Shell{openFn: openFn, out: out}
}

// Attach hands the shell an already-open service, e.g. when the data
// directory comes from configuration instead of an `open` command.
func (s *Shell) Attach(svc port.KVService) {
	s.svc = svc
}

// Service returns the currently attached service, nil before any open.
func (s *Shell) Service() port.KVService {
	return s.svc
}

// Run reads lines from in until EOF, an `exit` command, or ctx
// cancellation.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if s.Execute(ctx, scanner.Text()) {
			return nil
		}
	}
}

// Execute runs a single command line and reports whether the session
// should end.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "exit", "quit":
		return true
	case "open":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "usage: open <dir>")
			return false
		}
		svc, err := s.openFn(args[0])
		if err != nil {
			fmt.Fprintln(s.out, err)
			return false
		}
		s.svc = svc
		return false
	}

	if s.svc == nil {
		fmt.Fprintln(s.out, "open a database first: open <dir>")
		return false
	}
	s.dispatch(ctx, cmd, args)
	return false
}

func (s *Shell) dispatch(ctx context.Context, cmd string, args []string) {
	switch cmd {
	case "set":
		if len(args) < 2 {
			fmt.Fprintln(s.out, "usage: set <key> <value>")
			return
		}
		if err := s.svc.Set(ctx, []byte(args[0]), []byte(args[1])); err != nil {
			fmt.Fprintln(s.out, err)
		}
	case "get":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "usage: get <key>")
			return
		}
		value, err := s.svc.Get(ctx, []byte(args[0]))
		switch {
		case errors.Is(err, port.ErrKeyNotFound):
			fmt.Fprintln(s.out, "no value found")
		case err != nil:
			fmt.Fprintln(s.out, err)
		default:
			fmt.Fprintln(s.out, string(value))
		}
	case "del":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "usage: del <key>")
			return
		}
		if err := s.svc.Del(ctx, []byte(args[0])); err != nil {
			fmt.Fprintln(s.out, err)
		}
	case "dump":
		dumps, err := s.svc.Dump(ctx)
		if err != nil {
			fmt.Fprintln(s.out, err)
			return
		}
		for _, d := range dumps {
			fmt.Fprintf(s.out, "%s:\n", d.Name)
			for _, rec := range d.Records {
				fmt.Fprintf(s.out, "%q: %q\n", rec.Key.Bytes, rec.Value.Bytes)
			}
		}
	default:
		fmt.Fprintf(s.out, "unknown command: %s\n", cmd)
	}
}
