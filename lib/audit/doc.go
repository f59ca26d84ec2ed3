// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit provides the append-only execution audit trail.
//
// Every decision the execution engine makes — a call matched against
// policy, a forbidden verdict, a spawn, an exit, a suspected sandbox
// denial — becomes a [Record]. Records are encoded with deterministic
// CBOR (lib/codec), so the same decision always produces the same
// bytes, and batched into compressed segment files.
//
// A segment is a small framed container: a 1-byte compression tag, a
// 4-byte big-endian uncompressed size, then the compressed CBOR
// record sequence. Zstd is the default; LZ4 is selectable for
// hot-path writers; tiny segments skip compression entirely since the
// header overhead would exceed the savings.
//
// [Log] appends records to a directory, one segment per flush, named
// by timestamp so a directory listing is already in order.
// [ReadSegment] and [ReadDir] decode segments back for operator
// tooling.
package audit
