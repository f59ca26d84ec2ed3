// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gatebox/gatebox/sandbox"
)

const (
	// fastExitProbe bounds how long New waits for a child that is
	// about to exit before committing to a background drain.
	fastExitProbe = 150 * time.Millisecond

	// postExitGrace is how long a collection loop keeps waiting for
	// trailing chunks after the exit signal has been observed.
	postExitGrace = 50 * time.Millisecond
)

// Handle is the narrow process contract a session depends on. Output
// delivers chunks in arrival order and closes after exit; Done closes
// once the process has been reaped and all output delivered.
type Handle interface {
	Output() <-chan []byte
	Done() <-chan struct{}
	ExitCode() (int, bool)
	HasExited() bool
	Stdin() io.Writer
	Kill()
}

// Config holds configuration for creating a Session.
type Config struct {
	// Handle is the spawned process. Required.
	Handle Handle

	// SandboxType records the backend the process was launched
	// under; it keys denial classification. Required.
	SandboxType sandbox.Type

	// Buffer overrides the default output ring buffer. Optional.
	Buffer *OutputBuffer

	// Logger for session operations.
	Logger *slog.Logger
}

// Session owns one spawned process: it drains the process's output
// into a shared ring buffer, exposes a cancellation context that
// trips on exit or termination, and classifies sandbox denial after
// exit.
type Session struct {
	handle      Handle
	sandboxType sandbox.Type
	buffer      *OutputBuffer
	logger      *slog.Logger

	// notify coalesces "new output arrived" wakeups.
	notify chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	terminateOnce sync.Once
	fastExit      bool
}

// New wraps a spawned handle. If the process has already exited when
// the bounded probe fires, remaining output is drained inline and no
// background goroutine is started; otherwise a drain goroutine runs
// until the output channel closes or the session is cancelled. The
// session's context is derived from ctx: cancelling the parent
// terminates the session.
func New(ctx context.Context, config Config) (*Session, error) {
	if config.Handle == nil {
		return nil, fmt.Errorf("handle is required")
	}
	if config.SandboxType == "" {
		return nil, fmt.Errorf("sandbox type is required")
	}
	buffer := config.Buffer
	if buffer == nil {
		buffer = NewOutputBuffer()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		handle:      config.Handle,
		sandboxType: config.SandboxType,
		buffer:      buffer,
		logger:      logger,
		notify:      make(chan struct{}, 1),
		ctx:         sessionCtx,
		cancel:      cancel,
	}

	probe := time.NewTimer(fastExitProbe)
	defer probe.Stop()
	select {
	case <-config.Handle.Done():
		// Already exited: drain what is buffered inline and trip the
		// cancellation signal without a watcher goroutine.
		for chunk := range config.Handle.Output() {
			buffer.PushChunk(chunk)
		}
		s.fastExit = true
		cancel()
	case <-probe.C:
		go s.drainOutput()
	}

	return s, nil
}

// drainOutput moves chunks from the process into the ring buffer and
// wakes collectors. It owns the exit signal: when the output channel
// closes (process exited) or the session is cancelled, it trips the
// session context.
func (s *Session) drainOutput() {
	defer s.cancel()
	for {
		select {
		case chunk, ok := <-s.handle.Output():
			if !ok {
				return
			}
			s.buffer.PushChunk(chunk)
			s.wake()
		case <-s.ctx.Done():
			return
		}
	}
}

// wake signals collectors without blocking; a pending wakeup absorbs
// further ones.
func (s *Session) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// CollectOutput drains buffered output until deadline. It returns
// early once the process has exited and no new output arrives within
// a short grace window. Cancelling ctx stops the wait immediately.
func (s *Session) CollectOutput(ctx context.Context, deadline time.Time) []byte {
	var collected []byte
	exitObserved := s.ctx.Err() != nil

	for {
		drained := s.buffer.Drain()
		if len(drained) == 0 {
			if s.ctx.Err() != nil {
				exitObserved = true
			}
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			if exitObserved {
				grace := remaining
				if grace > postExitGrace {
					grace = postExitGrace
				}
				timer := time.NewTimer(grace)
				select {
				case <-s.notify:
					timer.Stop()
					continue
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
				}
				break
			}
			timer := time.NewTimer(remaining)
			select {
			case <-s.notify:
				timer.Stop()
			case <-s.ctx.Done():
				timer.Stop()
				exitObserved = true
			case <-ctx.Done():
				timer.Stop()
				return collected
			case <-timer.C:
				return collected
			}
			continue
		}

		for _, chunk := range drained {
			collected = append(collected, chunk...)
		}
		if s.ctx.Err() != nil {
			exitObserved = true
		}
		if !time.Now().Before(deadline) {
			break
		}
	}

	return collected
}

// WriteStdin sends data to the process's input.
func (s *Session) WriteStdin(data []byte) error {
	if s.handle.HasExited() {
		return fmt.Errorf("process has exited")
	}
	if _, err := s.handle.Stdin().Write(data); err != nil {
		return fmt.Errorf("writing stdin: %w", err)
	}
	return nil
}

// Terminate kills the process group, trips the cancellation signal,
// and stops the drain goroutine. Idempotent.
func (s *Session) Terminate() {
	s.terminateOnce.Do(func() {
		s.handle.Kill()
		s.cancel()
	})
}

// Done returns a channel closed once the session's cancellation
// signal has tripped, by process exit or by termination.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context returns the session's cancellation context. Callers derive
// child contexts from it for sub-operations.
func (s *Session) Context() context.Context {
	return s.ctx
}

// ExitCode returns the process exit code; false while running.
func (s *Session) ExitCode() (int, bool) {
	return s.handle.ExitCode()
}

// HasExited reports whether the process has exited.
func (s *Session) HasExited() bool {
	return s.handle.HasExited()
}

// SandboxType reports the backend the process was launched under.
func (s *Session) SandboxType() sandbox.Type {
	return s.sandboxType
}

// Buffer returns the session's output ring buffer.
func (s *Session) Buffer() *OutputBuffer {
	return s.buffer
}
