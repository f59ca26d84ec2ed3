// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// Type records which backend a child was launched under.
type Type string

const (
	// TypeNone means the child runs unconfined.
	TypeNone Type = "none"

	// TypeBwrap means the child runs inside bubblewrap.
	TypeBwrap Type = "bwrap"
)

// StdioMode selects how the child's stdio is wired.
type StdioMode string

const (
	// StdioPipes gives the child separate stdout/stderr pipes.
	StdioPipes StdioMode = "pipes"

	// StdioPTY gives the child a pseudo-terminal. Stdout and stderr
	// are interleaved on the pty as a real terminal would see them.
	StdioPTY StdioMode = "pty"
)

// SpawnError wraps a failure to launch a child, tagged with the
// operation that failed.
type SpawnError struct {
	Op  string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn: %s: %v", e.Op, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// SpawnConfig holds configuration for launching a child.
type SpawnConfig struct {
	// Argv is the command line, program first. Required.
	Argv []string

	// Workdir is the working directory of the launched process on
	// the host. Required.
	Workdir string

	// Policy decides the backend: DangerFullAccess spawns directly,
	// everything else through bwrap. Required and must validate.
	Policy *Policy

	// SandboxCwd is the working directory inside the sandbox and the
	// anchor for writable-root resolution. Defaults to Workdir.
	SandboxCwd string

	// Stdio selects pipes or a pty. Defaults to StdioPipes.
	Stdio StdioMode

	// ExtraEnv are variables added to the child's minimal
	// environment. The parent's environment is never inherited.
	ExtraEnv map[string]string

	// Logger for spawn operations.
	Logger *slog.Logger
}

// Child is a handle to a launched process. Output chunks arrive on
// Output in arrival order; the channel closes after the process exits
// and the last chunk has been delivered. Done closes strictly after
// Output.
type Child struct {
	cmd         *exec.Cmd
	sandboxType Type
	pid         int

	output chan []byte
	done   chan struct{}

	exitCode atomic.Int32
	exited   atomic.Bool

	killOnce sync.Once

	// stdin is the child's input: the stdin pipe in pipes mode, the
	// pty master in pty mode.
	stdin io.WriteCloser

	// ptyFile is non-nil in StdioPTY mode and closed on kill so the
	// reader unblocks.
	ptyFile *os.File
}

// Spawn launches argv under the given policy. It returns once the
// process is running; completion is observed through the returned
// handle. Cancelling ctx force-kills the child.
func Spawn(ctx context.Context, config SpawnConfig) (*Child, error) {
	if len(config.Argv) == 0 {
		return nil, &SpawnError{Op: "validate", Err: fmt.Errorf("argv is required")}
	}
	if config.Workdir == "" {
		return nil, &SpawnError{Op: "validate", Err: fmt.Errorf("workdir is required")}
	}
	if config.Policy == nil {
		return nil, &SpawnError{Op: "validate", Err: fmt.Errorf("policy is required")}
	}
	if err := config.Policy.Validate(); err != nil {
		return nil, &SpawnError{Op: "validate", Err: err}
	}

	sandboxCwd := config.SandboxCwd
	if sandboxCwd == "" {
		sandboxCwd = config.Workdir
	}
	stdio := config.Stdio
	if stdio == "" {
		stdio = StdioPipes
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var argv []string
	sandboxType := TypeNone
	if config.Policy.Mode == ModeDangerFullAccess {
		argv = config.Argv
	} else {
		caps := DetectCapabilities()
		if !caps.CanSandbox() {
			return nil, &SpawnError{Op: "sandbox", Err: fmt.Errorf("%s", caps.SkipReason())}
		}
		bwrapArgs, err := BwrapArgs(&BwrapOptions{
			Policy:  config.Policy,
			Cwd:     sandboxCwd,
			Command: config.Argv,
		})
		if err != nil {
			return nil, &SpawnError{Op: "bwrap", Err: err}
		}
		argv = append([]string{caps.BwrapPath}, bwrapArgs...)
		sandboxType = TypeBwrap
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = config.Workdir

	// Minimal explicit environment. Inheriting the parent's full
	// environment would leak it through /proc/<pid>/environ even when
	// bwrap scrubs the inner process.
	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"TERM=" + os.Getenv("TERM"),
	}
	extraKeys := make([]string, 0, len(config.ExtraEnv))
	for key := range config.ExtraEnv {
		extraKeys = append(extraKeys, key)
	}
	sort.Strings(extraKeys)
	for _, key := range extraKeys {
		env = append(env, key+"="+config.ExtraEnv[key])
	}
	cmd.Env = env

	child := &Child{
		cmd:         cmd,
		sandboxType: sandboxType,
		output:      make(chan []byte, 256),
		done:        make(chan struct{}),
	}
	child.exitCode.Store(-1)

	var readers sync.WaitGroup
	switch stdio {
	case StdioPipes:
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, &SpawnError{Op: "stdout pipe", Err: err}
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, &SpawnError{Op: "stderr pipe", Err: err}
		}
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, &SpawnError{Op: "stdin pipe", Err: err}
		}
		child.stdin = stdin
		if err := cmd.Start(); err != nil {
			return nil, &SpawnError{Op: "start", Err: err}
		}
		readers.Add(2)
		go child.drainReader(stdout, &readers)
		go child.drainReader(stderr, &readers)

	case StdioPTY:
		ptyFile, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 80})
		if err != nil {
			return nil, &SpawnError{Op: "pty start", Err: err}
		}
		child.ptyFile = ptyFile
		child.stdin = ptyFile
		readers.Add(1)
		go child.drainReader(ptyFile, &readers)

	default:
		return nil, &SpawnError{Op: "validate", Err: fmt.Errorf("unknown stdio mode %q", stdio)}
	}

	child.pid = cmd.Process.Pid

	logger.Debug("spawned child",
		"pid", child.pid,
		"sandbox", string(sandboxType),
		"command", config.Argv,
	)

	go child.wait(&readers)

	go func() {
		select {
		case <-ctx.Done():
			child.Kill()
		case <-child.done:
		}
	}()

	return child, nil
}

// drainReader pumps r into the output channel in arrival order. A
// full channel drops the chunk rather than blocking the reader; the
// consumer is expected to keep up and bounded buffering downstream
// caps what a lagging consumer can lose.
func (c *Child) drainReader(r io.Reader, readers *sync.WaitGroup) {
	defer readers.Done()
	buf := make([]byte, 8192)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.output <- chunk:
			default:
			}
		}
		if err != nil {
			// A pty returns EIO when the child side closes. Either
			// way the stream is over.
			return
		}
	}
}

// wait reaps the process once the readers are done, records the exit
// code, then closes output and done in that order.
func (c *Child) wait(readers *sync.WaitGroup) {
	readers.Wait()
	err := c.cmd.Wait()
	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	c.exitCode.Store(int32(code))
	c.exited.Store(true)
	close(c.output)
	close(c.done)
}

// Output returns the channel of output chunks. Closed after exit.
func (c *Child) Output() <-chan []byte {
	return c.output
}

// Done returns a channel closed once the process has been reaped and
// all output delivered.
func (c *Child) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the process exits or ctx is cancelled. On exit it
// returns the exit code.
func (c *Child) Wait(ctx context.Context) (int, error) {
	select {
	case <-c.done:
		return int(c.exitCode.Load()), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// ExitCode returns the exit code without blocking. The second return
// is false while the process is still running.
func (c *Child) ExitCode() (int, bool) {
	if !c.exited.Load() {
		return 0, false
	}
	return int(c.exitCode.Load()), true
}

// HasExited reports whether the process has exited.
func (c *Child) HasExited() bool {
	return c.exited.Load()
}

// Pid returns the process id.
func (c *Child) Pid() int {
	return c.pid
}

// SandboxType reports the backend the child was launched under.
func (c *Child) SandboxType() Type {
	return c.sandboxType
}

// Stdin returns the child's input stream. Writes after exit fail
// with a pipe error.
func (c *Child) Stdin() io.Writer {
	return c.stdin
}

// Kill forcefully terminates the child's whole process group.
// Idempotent; safe after exit.
func (c *Child) Kill() {
	c.killOnce.Do(func() {
		if err := unix.Kill(-c.pid, unix.SIGKILL); err != nil {
			// Not a group leader (pty mode puts the child in its own
			// session) or already gone; fall back to the process.
			if c.cmd.Process != nil {
				_ = c.cmd.Process.Kill()
			}
		}
		if c.ptyFile != nil {
			_ = c.ptyFile.Close()
		}
	})
}
