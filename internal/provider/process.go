package provider

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Command describes a child process to run.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string // nil inherits the parent environment
	Stdin string   // written to the child's stdin, which is then closed
}

// String renders the command line for display.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// LineFunc handles one line of child output, without its trailing newline.
type LineFunc func(line string)

// Run starts c, feeds it stdin, and streams stdout and stderr line by line
// to the given handlers until the child exits. Handlers for one stream are
// called sequentially from a single goroutine.
//
// A non-zero exit status is returned as the exit code with a nil error.
// Errors are returned only when the child could not be started or its
// output could not be read.
func Run(ctx context.Context, c Command, onStdout, onStderr LineFunc) (int, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if c.Env != nil {
		cmd.Env = c.Env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return -1, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return -1, fmt.Errorf("%w: %s", ErrBinaryNotFound, c.Name)
		}
		return -1, fmt.Errorf("start %s: %w", c.Name, err)
	}

	var g errgroup.Group
	g.Go(func() error {
		defer stdin.Close()
		// The child may exit before reading everything; a broken pipe
		// here is reported through the exit status instead.
		io.WriteString(stdin, c.Stdin) //nolint:errcheck
		return nil
	})
	g.Go(func() error {
		return pumpLines(stdout, onStdout)
	})
	g.Go(func() error {
		return pumpLines(stderr, onStderr)
	})
	pumpErr := g.Wait()

	waitErr := cmd.Wait()
	if pumpErr != nil {
		return -1, fmt.Errorf("read %s output: %w", c.Name, pumpErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("wait %s: %w", c.Name, waitErr)
	}
	return 0, nil
}

// pumpLines reads r until EOF, calling fn for every line. Lines have no
// length limit; agent CLIs embed whole file contents in a single event.
func pumpLines(r io.Reader, fn LineFunc) error {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 && fn != nil {
			fn(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}
