// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/gatebox/gatebox/execpolicy"
	"github.com/gatebox/gatebox/lib/audit"
	"github.com/gatebox/gatebox/sandbox"
	"github.com/gatebox/gatebox/session"
)

func testPolicySet(t *testing.T) *execpolicy.PolicySet {
	t.Helper()
	set, err := execpolicy.NewPolicySet([]execpolicy.ProgramSpec{
		{
			Program:    "echo",
			SystemPath: []string{"/bin/echo", "/usr/bin/echo"},
			ArgPatterns: []execpolicy.ArgMatcher{
				{Type: execpolicy.ArgTypeString, Min: 0, Max: -1},
			},
		},
		{
			Program:    "sleep",
			SystemPath: []string{"/bin/sleep", "/usr/bin/sleep"},
			ArgPatterns: []execpolicy.ArgMatcher{
				{Type: execpolicy.ArgTypeString, Min: 1},
			},
		},
		{
			Program:    "sh",
			SystemPath: []string{"/bin/sh"},
			Options: map[string]execpolicy.Opt{
				"-c": {Required: true, Value: argType(execpolicy.ArgTypeString)},
			},
		},
		{
			Program:   "rm",
			Forbidden: "deletion is not allowed",
			ArgPatterns: []execpolicy.ArgMatcher{
				{Type: execpolicy.ArgTypeString, Min: 0, Max: -1},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewPolicySet: %v", err)
	}
	return set
}

func argType(t execpolicy.ArgType) *execpolicy.ArgType {
	return &t
}

func newTestRunner(t *testing.T, log *audit.Log) *Runner {
	t.Helper()
	r, err := New(Config{
		Policies: testPolicySet(t),
		Sandbox:  sandbox.DangerFullAccess(),
		Workdir:  t.TempDir(),
		Audit:    log,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestNewValidation(t *testing.T) {
	policies := testPolicySet(t)
	cases := []struct {
		name   string
		config Config
	}{
		{"missing policies", Config{Sandbox: sandbox.ReadOnly(), Workdir: "/tmp"}},
		{"missing sandbox", Config{Policies: policies, Workdir: "/tmp"}},
		{"missing workdir", Config{Policies: policies, Sandbox: sandbox.ReadOnly()}},
		{"invalid sandbox", Config{
			Policies: policies,
			Sandbox:  &sandbox.Policy{Mode: "sideways"},
			Workdir:  "/tmp",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.config); err == nil {
				t.Errorf("config accepted")
			}
		})
	}
}

func TestRunAllowedCommand(t *testing.T) {
	r := newTestRunner(t, nil)

	result, err := r.Run(context.Background(), execpolicy.ExecCall{
		Program: "echo",
		Args:    []string{"hello", "world"},
	}, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", result.ExitCode)
	}
	if got := string(result.Output); got != "hello world\n" {
		t.Errorf("output = %q, want %q", got, "hello world\n")
	}
	if result.TimedOut {
		t.Errorf("unexpected timeout")
	}
	if result.BinaryPath == "" {
		t.Errorf("binary path not resolved")
	}
	if result.BinaryDigest == "" {
		t.Errorf("binary not digested")
	}
	if result.ProcessID == "" {
		t.Errorf("process id not recorded")
	}
}

func TestRunForbiddenCommand(t *testing.T) {
	r := newTestRunner(t, nil)

	_, err := r.Run(context.Background(), execpolicy.ExecCall{
		Program: "rm",
		Args:    []string{"stale.log"},
	}, RunOptions{})

	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("error = %v, want *ForbiddenError", err)
	}
	if forbidden.Reason != "deletion is not allowed" {
		t.Errorf("reason = %q", forbidden.Reason)
	}
}

func TestRunRejectedCommand(t *testing.T) {
	r := newTestRunner(t, nil)

	_, err := r.Run(context.Background(), execpolicy.ExecCall{
		Program: "echo",
		Args:    []string{"--no-such-option"},
	}, RunOptions{})

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want *RejectedError", err)
	}
	var unknown *execpolicy.UnknownOptionError
	if !errors.As(err, &unknown) {
		t.Errorf("underlying policy error not reachable: %v", err)
	}
}

func TestRunUnknownProgram(t *testing.T) {
	r := newTestRunner(t, nil)

	_, err := r.Run(context.Background(), execpolicy.ExecCall{
		Program: "curl",
		Args:    []string{"https://example.com"},
	}, RunOptions{})

	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("error = %v, want *ForbiddenError", err)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	r := newTestRunner(t, nil)

	result, err := r.Run(context.Background(), execpolicy.ExecCall{
		Program: "sh",
		Args:    []string{"-c", "exit 3"},
	}, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", result.ExitCode)
	}
}

func TestRunTimeout(t *testing.T) {
	r := newTestRunner(t, nil)

	started := time.Now()
	result, err := r.Run(context.Background(), execpolicy.ExecCall{
		Program: "sleep",
		Args:    []string{"30"},
	}, RunOptions{Timeout: 300 * time.Millisecond})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.TimedOut {
		t.Errorf("expected timeout")
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Errorf("run took %v, child not terminated promptly", elapsed)
	}
}

func TestCheckResolvesWithoutSpawning(t *testing.T) {
	r := newTestRunner(t, nil)

	result, err := r.Check(execpolicy.ExecCall{
		Program: "echo",
		Args:    []string{"hi"},
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.BinaryPath == "" || result.BinaryDigest == "" {
		t.Errorf("binary not resolved: %+v", result)
	}
	if result.ProcessID != "" {
		t.Errorf("check spawned a process: %+v", result)
	}
	if result.Exec.Program != "echo" {
		t.Errorf("exec program = %q", result.Exec.Program)
	}
}

func TestCheckForbidden(t *testing.T) {
	r := newTestRunner(t, nil)

	_, err := r.Check(execpolicy.ExecCall{Program: "rm", Args: []string{"x"}})
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("error = %v, want *ForbiddenError", err)
	}
}

func TestRunWritesAuditTrail(t *testing.T) {
	dir := t.TempDir()
	log, err := audit.NewLog(audit.LogConfig{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	r := newTestRunner(t, log)

	if _, err := r.Run(context.Background(), execpolicy.ExecCall{
		Program: "echo",
		Args:    []string{"audited"},
	}, RunOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := r.Run(context.Background(), execpolicy.ExecCall{
		Program: "rm",
		Args:    []string{"x"},
	}, RunOptions{}); err == nil {
		t.Fatalf("forbidden call succeeded")
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	records, err := audit.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	wantKinds := []audit.EventKind{
		audit.EventMatched,
		audit.EventSpawned,
		audit.EventExited,
		audit.EventForbidden,
	}
	if len(records) != len(wantKinds) {
		t.Fatalf("got %d records, want %d: %+v", len(records), len(wantKinds), records)
	}
	for i, want := range wantKinds {
		if records[i].Kind != want {
			t.Errorf("record %d kind = %s, want %s", i, records[i].Kind, want)
		}
	}
	if records[0].BinaryDigest == "" {
		t.Errorf("matched record has no binary digest")
	}
	if records[2].ExitCode == nil || *records[2].ExitCode != 0 {
		t.Errorf("exited record has no exit code")
	}
}

// scriptedChild is a pre-terminated child handle: all output already
// emitted, exit code recorded. It stands in for a sandboxed process
// whose behavior the test controls.
type scriptedChild struct {
	output      chan []byte
	done        chan struct{}
	exitCode    int
	sandboxType sandbox.Type
	stdin       bytes.Buffer
}

func newScriptedChild(output string, exitCode int, sandboxType sandbox.Type) *scriptedChild {
	ch := make(chan []byte, 1)
	ch <- []byte(output)
	close(ch)
	done := make(chan struct{})
	close(done)
	return &scriptedChild{
		output:      ch,
		done:        done,
		exitCode:    exitCode,
		sandboxType: sandboxType,
	}
}

func (c *scriptedChild) Output() <-chan []byte     { return c.output }
func (c *scriptedChild) Done() <-chan struct{}     { return c.done }
func (c *scriptedChild) ExitCode() (int, bool)     { return c.exitCode, true }
func (c *scriptedChild) HasExited() bool           { return true }
func (c *scriptedChild) Stdin() io.Writer          { return &c.stdin }
func (c *scriptedChild) Kill()                     {}
func (c *scriptedChild) Pid() int                  { return 4242 }
func (c *scriptedChild) SandboxType() sandbox.Type { return c.sandboxType }

func TestRunReportsSandboxDenial(t *testing.T) {
	dir := t.TempDir()
	log, err := audit.NewLog(audit.LogConfig{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	r := newTestRunner(t, log)
	r.spawn = func(ctx context.Context, cfg sandbox.SpawnConfig) (spawnedChild, error) {
		return newScriptedChild("sh: out.txt: Read-only file system\n", 1, sandbox.TypeBwrap), nil
	}

	result, err := r.Run(context.Background(), execpolicy.ExecCall{
		Program: "echo",
		Args:    []string{"hello"},
	}, RunOptions{})

	var denied *session.SandboxDenied
	if !errors.As(err, &denied) {
		t.Fatalf("error = %v, want *session.SandboxDenied", err)
	}
	if denied.ExitCode != 1 {
		t.Errorf("denied exit code = %d, want 1", denied.ExitCode)
	}
	if !strings.Contains(denied.Output, "Read-only file system") {
		t.Errorf("denied output = %q, keyword lost", denied.Output)
	}
	if result == nil || !strings.Contains(string(result.Output), "Read-only file system") {
		t.Errorf("collected output lost: %+v", result)
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	records, err := audit.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("no audit records written")
	}
	last := records[len(records)-1]
	if last.Kind != audit.EventDenied {
		t.Errorf("last record kind = %s, want %s", last.Kind, audit.EventDenied)
	}
	if last.Reason == "" {
		t.Errorf("denied record carries no reason")
	}
}

func TestRunCleanExitUnderSandboxNotDenied(t *testing.T) {
	r := newTestRunner(t, nil)
	r.spawn = func(ctx context.Context, cfg sandbox.SpawnConfig) (spawnedChild, error) {
		return newScriptedChild("sandbox ready\n", 0, sandbox.TypeBwrap), nil
	}

	result, err := r.Run(context.Background(), execpolicy.ExecCall{
		Program: "echo",
		Args:    []string{"hello"},
	}, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", result.ExitCode)
	}
}

func TestResolveProgram(t *testing.T) {
	path, err := resolveProgram("echo", []string{"/does/not/exist", "/bin/echo"})
	if err != nil {
		t.Fatalf("resolveProgram: %v", err)
	}
	if path != "/bin/echo" {
		t.Errorf("path = %q, want /bin/echo", path)
	}

	path, err = resolveProgram("sh", nil)
	if err != nil {
		t.Fatalf("resolveProgram fallback: %v", err)
	}
	if !strings.HasSuffix(path, "/sh") {
		t.Errorf("fallback path = %q", path)
	}

	if _, err := resolveProgram("gatebox-no-such-program", nil); err == nil {
		t.Errorf("missing program resolved")
	}
}
