// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import "time"

// EventKind identifies what kind of decision a record captures.
type EventKind string

const (
	// EventMatched records a call that passed policy matching.
	EventMatched EventKind = "matched"

	// EventForbidden records a call denied by policy.
	EventForbidden EventKind = "forbidden"

	// EventRejected records a call that failed to parse against its
	// program's grammar.
	EventRejected EventKind = "rejected"

	// EventSpawned records a successful process launch.
	EventSpawned EventKind = "spawned"

	// EventExited records a process exit.
	EventExited EventKind = "exited"

	// EventDenied records a suspected sandbox denial.
	EventDenied EventKind = "sandbox-denied"
)

// Record is one audit trail entry. Fields beyond Time, Kind, and
// Program are populated per kind: Reason for forbidden and rejected,
// BinaryPath and BinaryDigest once the program is resolved, ExitCode
// after exit.
type Record struct {
	// Time is when the decision was made, UTC.
	Time time.Time `cbor:"time"`

	// Kind is the decision that was made.
	Kind EventKind `cbor:"kind"`

	// Program is the requested program name.
	Program string `cbor:"program,omitempty"`

	// Args is the raw argument vector as requested, before any
	// typing or resolution. Recorded even for denied calls so
	// operators can see exactly what would have run.
	Args []string `cbor:"args,omitempty"`

	// Reason is the human-readable denial or rejection reason.
	Reason string `cbor:"reason,omitempty"`

	// BinaryPath is the resolved executable path.
	BinaryPath string `cbor:"binary_path,omitempty"`

	// BinaryDigest is the hex BLAKE3 digest of the resolved binary
	// (lib/binhash).
	BinaryDigest string `cbor:"binary_digest,omitempty"`

	// SandboxMode is the policy mode the process ran under.
	SandboxMode string `cbor:"sandbox_mode,omitempty"`

	// ProcessID is the session process id, when one was allocated.
	ProcessID string `cbor:"process_id,omitempty"`

	// ExitCode is the process exit code, present on exited and
	// sandbox-denied records.
	ExitCode *int `cbor:"exit_code,omitempty"`
}
