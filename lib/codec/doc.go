// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Gatebox's standard CBOR encoding configuration.
//
// Gatebox uses two serialization formats with a clear boundary:
//
//   - JSON (with comments) for operator-authored configuration: exec
//     policy rule files and CLI output.
//   - CBOR for machine-written data: audit trail records and segment
//     headers, where deterministic bytes matter.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every Gatebox package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes — audit segments can be compared and digested byte-for-byte.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (audit segment files):
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR. It will
//     never be marshaled to JSON or interact with CLI tooling.
//     Examples: audit records and segment headers.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats. Examples: types surfaced in
//     CLI output.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract — doubling up is noise that obscures
// whether a type participates in JSON serialization.
package codec
