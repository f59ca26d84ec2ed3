// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Gatebox packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. Tests
// exercising process lifecycles block on channels constantly; a missed
// close would otherwise hang the whole suite.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Gatebox-internal dependencies.
package testutil
