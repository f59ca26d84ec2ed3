// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

// gatebox-run executes commands through the policy gate.
//
// Usage:
//
//	gatebox-run run [flags] -- <program> [args...]
//	gatebox-run verify --rules <dir>
//	gatebox-run version
package main
