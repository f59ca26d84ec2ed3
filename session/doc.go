// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package session wraps a spawned child process in a unified exec
// session: a background drain goroutine moves the child's output into
// a byte-capped ring buffer, a derived context carries cancellation,
// and after exit a heuristic classifier decides whether the process
// failed on its own or was silently denied by the sandbox.
//
// OutputBuffer is the only shared mutable state. It holds chunks in
// arrival order under a total-byte ceiling; pushes that exceed the
// ceiling evict from the front, splitting the oldest chunk when a
// partial trim suffices. The buffer lock is held only for the
// duration of a push or drain.
//
// Sessions that outlive their first collection window are held by a
// Manager, keyed by process id, so later calls can write stdin and
// poll for more output. The Manager prunes least-recently-used
// sessions above a cap, protecting the most recent few and preferring
// to evict sessions whose process already exited.
package session
