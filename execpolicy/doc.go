// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package execpolicy validates requested command invocations against a
// declarative per-program allowlist before anything is spawned.
//
// The central operation is [Check]: given a [ProgramSpec] (the grammar
// of one allow-listed program — its options, typed option values, and
// positional argument patterns) and an [ExecCall] (a raw argv as
// requested by an agent), it produces either a [Match] carrying a
// fully-typed [ValidExec], a [Forbidden] verdict carrying a
// human-readable reason, or a typed policy-violation error. The
// matcher is a pure function: it never touches the filesystem, spawns
// nothing, and has no retained state, so every outcome is reproducible
// from its inputs.
//
// Unknown options are rejected, never passed through — the allowlist
// is closed-world. A program whose spec carries a Forbidden reason is
// still parsed to completion before being denied, so the audit trail
// records exactly what would have run.
//
// Specs embed their own regression fixtures: argv vectors the author
// asserts must match ([ProgramSpec.ShouldMatch]) or must not
// ([ProgramSpec.ShouldNotMatch]). [VerifyShouldMatch] and
// [VerifyShouldNotMatch] replay them through Check and report
// contradictions; [LoadDir] runs both at load time so a broken rule
// file never reaches live checks.
//
// Rule files are JSONC (JSON extended with comments and trailing
// commas), one or more program specs per file, collected from a rules
// directory in sorted filename order.
package execpolicy
