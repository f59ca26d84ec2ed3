// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package execpolicy

import "strings"

// ExecCall is a requested invocation: program name plus raw argument
// vector, prior to any validation. Args excludes the program itself.
type ExecCall struct {
	Program string   `json:"program"`
	Args    []string `json:"args"`
}

// String renders the call the way a shell user would read it.
func (c ExecCall) String() string {
	if len(c.Args) == 0 {
		return c.Program
	}
	return c.Program + " " + strings.Join(c.Args, " ")
}

// OptValue is a matched value-carrying option.
type OptValue struct {
	Name  string   `json:"name"`
	Value ArgValue `json:"value"`
}

// ValidExec is the sanitized, typed result of a successful match. It
// is what gets handed to the spawner — never the raw argv.
type ValidExec struct {
	Program string `json:"program"`

	// Flags are the matched boolean option names, in call order.
	Flags []string `json:"flags,omitempty"`

	// Opts are the matched value options with coerced values, in
	// call order.
	Opts []OptValue `json:"opts,omitempty"`

	// Args are the resolved positional arguments, in call order.
	Args []ArgValue `json:"args,omitempty"`

	// SystemPath is carried over from the spec for downstream
	// program resolution.
	SystemPath []string `json:"system_path,omitempty"`
}

// Argv renders the sanitized argument vector for the spawner: the
// matched flags, then the value options with their coerced values,
// then the resolved positionals, each group in call order. Coerced
// text replaces the raw tokens, so path arguments run in their
// cleaned form. The program itself is not included; the spawner
// substitutes the resolved binary path.
func (e ValidExec) Argv() []string {
	argv := make([]string, 0, len(e.Flags)+2*len(e.Opts)+len(e.Args))
	argv = append(argv, e.Flags...)
	for _, opt := range e.Opts {
		argv = append(argv, opt.Name, opt.Value.Text)
	}
	for _, arg := range e.Args {
		argv = append(argv, arg.Text)
	}
	return argv
}

// MatchedExec is the closed verdict set produced by Check: either
// [Match] or [Forbidden]. Policy violations travel on the error
// channel instead.
type MatchedExec interface {
	isMatchedExec()
}

// Match is a call the policy allows, carrying its typed form.
type Match struct {
	Exec ValidExec
}

func (Match) isMatchedExec() {}

// Forbidden is a successfully-parsed call that policy nonetheless
// denies. It is a verdict, not an error: the caller surfaces Reason
// and must not run anything.
type Forbidden struct {
	Reason string
	Cause  ForbiddenCause
}

func (Forbidden) isMatchedExec() {}

// ForbiddenCause identifies what triggered the denial.
type ForbiddenCause interface {
	isForbiddenCause()
}

// ForbiddenProgram denies the whole program (not in the allowlist, or
// explicitly blocked at the program level).
type ForbiddenProgram struct {
	Program string
	Call    ExecCall
}

func (ForbiddenProgram) isForbiddenCause() {}

// ForbiddenArg denies a call because a specific argument triggered
// the denial.
type ForbiddenArg struct {
	Arg  string
	Call ExecCall
}

func (ForbiddenArg) isForbiddenCause() {}

// ForbiddenExec denies a fully-parsed, otherwise-valid call whose
// spec carries a Forbidden reason. Exec records exactly what would
// have run, for the audit trail.
type ForbiddenExec struct {
	Exec ValidExec
}

func (ForbiddenExec) isForbiddenCause() {}
