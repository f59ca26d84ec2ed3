// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides BLAKE3 keyed content hashing for binary
// files.
//
// Gatebox records the digest of every program binary it approves for
// execution, so an audit trail can show not just which path ran but
// which bytes. A path alone is not enough: the binary at /usr/bin/grep
// today may not be the binary that ran last week. Keyed hashing with a
// fixed domain key separates these digests from any other BLAKE3 use,
// so a digest can never be confused with a hash from another context.
//
// The API surface is small:
//
//   - [HashFile] -- streams a file through the keyed hash, returning a
//     [Digest] with constant memory usage regardless of file size
//   - [HashBytes] -- digests an in-memory byte slice
//   - [FormatDigest] / [ParseDigest] -- canonical hex round-trip, used
//     in audit records and log output
//
// This package has no dependencies on other Gatebox packages.
package binhash
