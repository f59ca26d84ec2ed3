// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox constrains filesystem and network access for
// spawned commands using bubblewrap (bwrap) Linux namespaces.
//
// A [Policy] is the declarative access-control mode a command runs
// under: [ModeReadOnly] (no writes anywhere), [ModeWorkspaceWrite]
// (writes only under resolved writable roots, network optional), or
// [ModeDangerFullAccess] (no restriction, for fully-trusted
// operator-initiated commands only).
//
// [Policy.ResolveWritableRoots] resolves the effective writable set for a
// working directory: the explicitly configured roots, the working
// directory itself, /tmp and $TMPDIR unless excluded. A root that is
// itself the top of a git working tree gets its .git subtree forced
// read-only — repository history stays intact even when an agent can
// write everything around it. A .git of a repository strictly below a
// writable root is not protected: granting write access to the parent
// was a broader, explicit choice.
//
// [Spawn] translates the policy into a concrete bwrap invocation (or
// a direct spawn for full access) and returns a [Child] handle:
// buffered output channel, non-blocking exit-code query, blocking
// wait, forced process-group kill. Every Child records the
// [Type] of sandbox that actually ran so later stages can reason
// about what contained the process.
//
// The package intentionally stops at process launch. Output capture,
// cancellation, and sandbox-denial classification live in package
// session.
package sandbox
