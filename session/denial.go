// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/gatebox/gatebox/sandbox"
)

const (
	// denialOutputWait bounds how long denial detection waits for a
	// trailing chunk before sampling the buffer.
	denialOutputWait = 20 * time.Millisecond

	// denialMessageTokens bounds the diagnostic snippet surfaced in a
	// SandboxDenied error. The full output travels in the Output
	// field, never in the message.
	denialMessageTokens = 128

	// sigsysExitCode is 128 + SIGSYS, how a shell reports a child
	// killed by a seccomp trap.
	sigsysExitCode = 128 + 31
)

// denialKeywords mark output as a suspected sandbox denial regardless
// of exit code (as long as it is non-zero). Matched case-insensitively.
var denialKeywords = []string{
	"operation not permitted",
	"permission denied",
	"read-only file system",
	"seccomp",
	"sandbox",
	"landlock",
	"failed to write file",
}

// selfFailureExitCodes are well-known shell failure codes that, absent
// a keyword match, point at the command itself rather than the
// sandbox: 2 is builtin misuse, 126 is not executable, 127 is command
// not found.
var selfFailureExitCodes = []int{2, 126, 127}

// SandboxDenied reports that a process failure was likely caused by
// the sandbox rejecting an operation. It is a suspicion, not a
// certainty; Output carries the full captured text so the caller can
// decide whether to retry with a broader policy.
type SandboxDenied struct {
	// Message is a token-bounded snippet of the captured output.
	Message string

	// Output is the full aggregated output at classification time.
	Output string

	// ExitCode is the process exit code.
	ExitCode int
}

func (e *SandboxDenied) Error() string {
	return fmt.Sprintf("command may have been blocked by the sandbox: %s", e.Message)
}

// likelySandboxDenied is the classifier table. There is no fully
// deterministic way to tell a sandbox denial from an ordinary
// failure, so the verdict is keyed on well-known exit codes and
// denial keywords in the output, per sandbox type.
func likelySandboxDenied(sandboxType sandbox.Type, exitCode int, output string) bool {
	if sandboxType == sandbox.TypeNone || exitCode == 0 {
		return false
	}

	lower := strings.ToLower(output)
	for _, keyword := range denialKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}

	for _, code := range selfFailureExitCodes {
		if exitCode == code {
			return false
		}
	}

	// A seccomp trap under bwrap kills the process with SIGSYS.
	if sandboxType == sandbox.TypeBwrap && exitCode == sigsysExitCode {
		return true
	}

	return false
}

// CheckSandboxDenial classifies the exited process. It waits a short
// bounded time for trailing output, samples the buffer, and returns a
// *SandboxDenied error when denial is suspected, nil otherwise.
// Calling it before exit returns nil: there is nothing to classify.
func (s *Session) CheckSandboxDenial() error {
	exitCode, exited := s.handle.ExitCode()
	if !exited {
		return nil
	}

	// Avoid racing the last chunk's arrival.
	timer := time.NewTimer(denialOutputWait)
	select {
	case <-s.notify:
		timer.Stop()
	case <-timer.C:
	}

	output := string(s.buffer.Snapshot())
	return s.classifyWithOutput(exitCode, output)
}

// CheckSandboxDenialWithText classifies using already-collected output
// text instead of sampling the buffer. Useful when the caller drained
// the buffer itself.
func (s *Session) CheckSandboxDenialWithText(output string) error {
	exitCode, exited := s.handle.ExitCode()
	if !exited {
		return nil
	}
	return s.classifyWithOutput(exitCode, output)
}

func (s *Session) classifyWithOutput(exitCode int, output string) error {
	if !likelySandboxDenied(s.sandboxType, exitCode, output) {
		return nil
	}
	s.logger.Warn("sandbox denial detected",
		"sandbox", string(s.sandboxType),
		"exit_code", exitCode,
	)
	return &SandboxDenied{
		Message:  TruncateTokens(output, denialMessageTokens),
		Output:   output,
		ExitCode: exitCode,
	}
}
