// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"fmt"

	"github.com/gatebox/gatebox/execpolicy"
)

// RejectedError reports a call the policy could not parse: an unknown
// option, a malformed value, a missing required argument. The
// underlying policy error is wrapped and reachable with errors.As.
type RejectedError struct {
	Call execpolicy.ExecCall
	Err  error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("tool call rejected: %s: %v", e.Call, e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// ForbiddenError reports a call the policy parsed but denies. Nothing
// was spawned.
type ForbiddenError struct {
	Call   execpolicy.ExecCall
	Reason string
	Cause  execpolicy.ForbiddenCause
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("tool call forbidden: %s: %s", e.Call, e.Reason)
}

// ResolveError reports that an allowed program could not be resolved
// to an executable on this host.
type ResolveError struct {
	Program string
	Err     error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Program, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}
