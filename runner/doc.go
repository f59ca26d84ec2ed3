// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner dispatches tool calls through the policy gate and
// into sandboxed execution.
//
// A Runner owns an exec policy set, a sandbox policy, and optionally
// an audit log. Run checks the call against the policy set first: a
// forbidden verdict or a policy violation is returned as a typed
// error without anything being spawned. An allowed call has its
// program resolved and digested, is spawned under the sandbox policy,
// and is wrapped in a session that collects output until the deadline
// and classifies suspected sandbox denials after exit. Every decision
// along the way is appended to the audit log.
package runner
