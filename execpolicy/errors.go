// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package execpolicy

import (
	"fmt"
	"strings"
)

// Policy violations are deterministic, local, and never retried: the
// caller recovers by rewriting the request. Each violation is its own
// error type so downstream code can branch with errors.As rather than
// string matching.

// UnknownOptionError reports an option token absent from the spec's
// allowed set. Unknown options are never silently passed through.
type UnknownOptionError struct {
	Program string
	Option  string
}

func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("%s: unknown option %q", e.Program, e.Option)
}

// OptionFollowedByOptionError reports two option tokens back-to-back
// where the first expected a value.
type OptionFollowedByOptionError struct {
	Program string
	Option  string
	Next    string
}

func (e *OptionFollowedByOptionError) Error() string {
	return fmt.Sprintf("%s: option %q expects a value, got option %q", e.Program, e.Option, e.Next)
}

// DoubleDashError reports a bare "--" token. The end-of-options
// separator is an explicitly unsupported extension point, rejected
// rather than silently ignored.
type DoubleDashError struct {
	Program string
}

func (e *DoubleDashError) Error() string {
	return fmt.Sprintf("%s: \"--\" separator is not supported", e.Program)
}

// OptionMissingValueError reports an option still awaiting its value
// at end of input.
type OptionMissingValueError struct {
	Program string
	Option  string
}

func (e *OptionMissingValueError) Error() string {
	return fmt.Sprintf("%s: option %q is missing its value", e.Program, e.Option)
}

// InvalidValueError reports a value token that failed coercion to the
// option's declared type.
type InvalidValueError struct {
	Program string
	Option  string
	Type    ArgType
	Token   string
	Err     error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s: option %q value %q is not a valid %s: %v", e.Program, e.Option, e.Token, string(e.Type), e.Err)
}

func (e *InvalidValueError) Unwrap() error {
	return e.Err
}

// MissingRequiredOptionsError reports required options absent from the
// call. Options is sorted for deterministic, testable messages.
type MissingRequiredOptionsError struct {
	Program string
	Options []string
}

func (e *MissingRequiredOptionsError) Error() string {
	return fmt.Sprintf("%s: missing required options: %s", e.Program, strings.Join(e.Options, ", "))
}

// InvalidArgumentError reports a positional token that failed coercion
// to its pattern's declared type.
type InvalidArgumentError struct {
	Program string
	Token   string
	Type    ArgType
	Err     error
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: argument %q is not a valid %s: %v", e.Program, e.Token, string(e.Type), e.Err)
}

func (e *InvalidArgumentError) Unwrap() error {
	return e.Err
}

// MissingRequiredArgumentsError reports too few positional arguments
// to satisfy the spec's patterns.
type MissingRequiredArgumentsError struct {
	Program string
	Pattern ArgMatcher
	Got     int
}

func (e *MissingRequiredArgumentsError) Error() string {
	return fmt.Sprintf("%s: expected at least %d %s argument(s), got %d", e.Program, e.Pattern.Min, string(e.Pattern.Type), e.Got)
}

// UnexpectedArgumentsError reports positional tokens left over after
// every pattern has consumed its share.
type UnexpectedArgumentsError struct {
	Program string
	Args    []string
}

func (e *UnexpectedArgumentsError) Error() string {
	return fmt.Sprintf("%s: unexpected arguments: %s", e.Program, strings.Join(e.Args, ", "))
}
