// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/gatebox/gatebox/execpolicy"
	"github.com/gatebox/gatebox/lib/audit"
	"github.com/gatebox/gatebox/lib/binhash"
	"github.com/gatebox/gatebox/sandbox"
	"github.com/gatebox/gatebox/session"
)

// defaultTimeout bounds a Run whose options give no deadline.
const defaultTimeout = 10 * time.Second

// Config holds configuration for creating a Runner.
type Config struct {
	// Policies is the exec policy set calls are checked against.
	// Required.
	Policies *execpolicy.PolicySet

	// Sandbox is the policy child processes are spawned under.
	// Required.
	Sandbox *sandbox.Policy

	// Workdir is the working directory for spawned processes.
	// Required.
	Workdir string

	// Audit receives a record per decision. Optional.
	Audit *audit.Log

	// Logger for runner operations.
	Logger *slog.Logger
}

// Runner gates tool calls behind an exec policy and runs the allowed
// ones under a sandbox policy.
type Runner struct {
	policies *execpolicy.PolicySet
	sandbox  *sandbox.Policy
	workdir  string
	audit    *audit.Log
	logger   *slog.Logger

	// spawn launches the child; tests substitute a scripted handle.
	spawn func(context.Context, sandbox.SpawnConfig) (spawnedChild, error)
}

// spawnedChild is the slice of the spawner's handle the runner needs:
// the session contract plus identity for logging and audit.
type spawnedChild interface {
	session.Handle
	Pid() int
	SandboxType() sandbox.Type
}

// New creates a Runner.
func New(config Config) (*Runner, error) {
	if config.Policies == nil {
		return nil, fmt.Errorf("policy set is required")
	}
	if config.Sandbox == nil {
		return nil, fmt.Errorf("sandbox policy is required")
	}
	if err := config.Sandbox.Validate(); err != nil {
		return nil, fmt.Errorf("sandbox policy: %w", err)
	}
	if config.Workdir == "" {
		return nil, fmt.Errorf("workdir is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		policies: config.Policies,
		sandbox:  config.Sandbox,
		workdir:  config.Workdir,
		audit:    config.Audit,
		logger:   logger,
		spawn: func(ctx context.Context, cfg sandbox.SpawnConfig) (spawnedChild, error) {
			return sandbox.Spawn(ctx, cfg)
		},
	}, nil
}

// RunOptions adjust a single Run.
type RunOptions struct {
	// Timeout bounds output collection. Defaults to 10s.
	Timeout time.Duration

	// Stdio selects pipes or a pty for the child.
	Stdio sandbox.StdioMode

	// ExtraEnv is added to the child's minimal environment.
	ExtraEnv map[string]string
}

// Result is the outcome of an executed call.
type Result struct {
	// Exec is the typed form of the matched call.
	Exec execpolicy.ValidExec

	// BinaryPath is the executable the program resolved to.
	BinaryPath string

	// BinaryDigest is the keyed BLAKE3 digest of the executable,
	// empty when digesting failed.
	BinaryDigest string

	// ProcessID is the spawned child's pid, as a string.
	ProcessID string

	// ExitCode is the child's exit code. Meaningless when TimedOut.
	ExitCode int

	// TimedOut reports that the child outlived the collection
	// deadline and was terminated.
	TimedOut bool

	// Output is the aggregated child output, capped by the session's
	// ring buffer.
	Output []byte

	// Duration is wall time from spawn to collection end.
	Duration time.Duration
}

// Check runs the policy gate and program resolution without spawning
// anything. On a match it returns the typed exec, resolved binary and
// digest; forbidden and rejected calls return the same typed errors
// Run would.
func (r *Runner) Check(call execpolicy.ExecCall) (*Result, error) {
	validExec, err := r.gate(call)
	if err != nil {
		return nil, err
	}
	result := &Result{Exec: *validExec}
	if err := r.resolveBinary(call, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Run checks the call against the policy set and, if allowed, spawns
// it under the sandbox policy and collects its output. Forbidden and
// rejected calls return before anything is spawned. A suspected
// sandbox denial is returned as *session.SandboxDenied alongside the
// collected result.
func (r *Runner) Run(ctx context.Context, call execpolicy.ExecCall, opts RunOptions) (*Result, error) {
	validExec, err := r.gate(call)
	if err != nil {
		return nil, err
	}
	result := &Result{Exec: *validExec}
	if err := r.resolveBinary(call, result); err != nil {
		return nil, err
	}
	r.record(audit.Record{
		Kind:         audit.EventMatched,
		Program:      call.Program,
		Args:         call.Args,
		BinaryPath:   result.BinaryPath,
		BinaryDigest: result.BinaryDigest,
		SandboxMode:  string(r.sandbox.Mode),
	})

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// Spawn the sanitized form, never the raw argv: coerced option
	// values and cleaned path arguments from the match.
	argv := append([]string{result.BinaryPath}, result.Exec.Argv()...)
	started := time.Now()
	child, err := r.spawn(ctx, sandbox.SpawnConfig{
		Argv:     argv,
		Workdir:  r.workdir,
		Policy:   r.sandbox,
		Stdio:    opts.Stdio,
		ExtraEnv: opts.ExtraEnv,
		Logger:   r.logger,
	})
	if err != nil {
		r.logger.Error("tool call failed",
			"program", call.Program,
			"error", err)
		r.record(audit.Record{
			Kind:    audit.EventRejected,
			Program: call.Program,
			Args:    call.Args,
			Reason:  err.Error(),
		})
		return nil, err
	}
	result.ProcessID = strconv.Itoa(child.Pid())
	r.logger.Info("tool call started",
		"program", call.Program,
		"pid", child.Pid(),
		"sandbox", child.SandboxType())
	r.record(audit.Record{
		Kind:         audit.EventSpawned,
		Program:      call.Program,
		Args:         call.Args,
		BinaryPath:   result.BinaryPath,
		BinaryDigest: result.BinaryDigest,
		SandboxMode:  string(r.sandbox.Mode),
		ProcessID:    result.ProcessID,
	})

	sess, err := session.New(ctx, session.Config{
		Handle:      child,
		SandboxType: child.SandboxType(),
		Logger:      r.logger,
	})
	if err != nil {
		child.Kill()
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer sess.Terminate()

	result.Output = sess.CollectOutput(ctx, started.Add(timeout))
	result.Duration = time.Since(started)

	if !sess.HasExited() {
		result.TimedOut = true
		result.ExitCode = -1
		sess.Terminate()
		r.logger.Warn("tool call timed out",
			"program", call.Program,
			"pid", result.ProcessID,
			"timeout", timeout)
		r.record(audit.Record{
			Kind:      audit.EventExited,
			Program:   call.Program,
			ProcessID: result.ProcessID,
			Reason:    "timed out",
		})
		return result, nil
	}

	exitCode, _ := sess.ExitCode()
	result.ExitCode = exitCode

	// CollectOutput drained the session buffer, so classify the
	// collected text rather than sampling the (now empty) buffer.
	if denialErr := sess.CheckSandboxDenialWithText(string(result.Output)); denialErr != nil {
		var denied *session.SandboxDenied
		if errors.As(denialErr, &denied) {
			r.logger.Warn("sandbox denial detected",
				"program", call.Program,
				"pid", result.ProcessID,
				"exit_code", exitCode)
			r.record(audit.Record{
				Kind:      audit.EventDenied,
				Program:   call.Program,
				ProcessID: result.ProcessID,
				ExitCode:  &exitCode,
				Reason:    denied.Message,
			})
			return result, denialErr
		}
		return result, denialErr
	}

	if exitCode != 0 {
		r.logger.Warn("tool call failed",
			"program", call.Program,
			"pid", result.ProcessID,
			"exit_code", exitCode)
	}
	r.record(audit.Record{
		Kind:      audit.EventExited,
		Program:   call.Program,
		ProcessID: result.ProcessID,
		ExitCode:  &exitCode,
	})
	return result, nil
}

// record appends to the audit log when one is configured.
func (r *Runner) record(rec audit.Record) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Append(rec); err != nil {
		r.logger.Warn("audit append failed", "error", err)
	}
}

// gate applies the exec policy and reduces the verdict to a typed
// exec or a typed error, emitting telemetry and audit records for
// denials.
func (r *Runner) gate(call execpolicy.ExecCall) (*execpolicy.ValidExec, error) {
	verdict, err := r.policies.Check(call)
	if err != nil {
		r.logger.Warn("tool call rejected",
			"program", call.Program,
			"error", err)
		r.record(audit.Record{
			Kind:    audit.EventRejected,
			Program: call.Program,
			Args:    call.Args,
			Reason:  err.Error(),
		})
		return nil, &RejectedError{Call: call, Err: err}
	}
	switch v := verdict.(type) {
	case execpolicy.Match:
		return &v.Exec, nil
	case execpolicy.Forbidden:
		r.logger.Warn("tool call rejected",
			"program", call.Program,
			"reason", v.Reason)
		r.record(audit.Record{
			Kind:    audit.EventForbidden,
			Program: call.Program,
			Args:    call.Args,
			Reason:  v.Reason,
		})
		return nil, &ForbiddenError{Call: call, Reason: v.Reason, Cause: v.Cause}
	default:
		return nil, fmt.Errorf("unexpected verdict %T", verdict)
	}
}

// resolveBinary fills BinaryPath and BinaryDigest on the result. A
// digest failure is logged but not fatal; a resolution failure is.
func (r *Runner) resolveBinary(call execpolicy.ExecCall, result *Result) error {
	path, err := resolveProgram(call.Program, result.Exec.SystemPath)
	if err != nil {
		r.logger.Warn("tool call rejected",
			"program", call.Program,
			"error", err)
		r.record(audit.Record{
			Kind:    audit.EventRejected,
			Program: call.Program,
			Args:    call.Args,
			Reason:  err.Error(),
		})
		return &ResolveError{Program: call.Program, Err: err}
	}
	result.BinaryPath = path
	digest, err := binhash.HashFile(path)
	if err != nil {
		r.logger.Warn("binary digest failed",
			"path", path,
			"error", err)
		return nil
	}
	result.BinaryDigest = binhash.FormatDigest(digest)
	return nil
}

// resolveProgram picks the executable for a matched program: the
// first system-path candidate that exists and is executable wins,
// falling back to a PATH lookup when no candidate resolves.
func resolveProgram(program string, systemPath []string) (string, error) {
	for _, candidate := range systemPath {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode().Perm()&0o111 == 0 {
			continue
		}
		return candidate, nil
	}
	path, err := exec.LookPath(program)
	if err != nil {
		return "", err
	}
	return path, nil
}
