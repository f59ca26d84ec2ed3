// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package execpolicy

import (
	"sort"
	"strings"
)

// Check validates a requested call against its program spec. It is a
// pure function with no side effects.
//
// The scan is a single left-to-right pass with one piece of state:
// "currently expecting a value for option X of type T". After the
// scan, positional candidates are resolved against the spec's arg
// patterns and the required-option set is enforced. A spec-level
// Forbidden reason is applied last, wrapping the fully-assembled
// ValidExec so audit logging sees exactly what would have run.
func Check(spec *ProgramSpec, call ExecCall) (MatchedExec, error) {
	var (
		flags       []string
		opts        []OptValue
		positionals []ArgValue
		matched     = make(map[string]bool)

		// Scan state: the option awaiting a value, nil when idle.
		pendingName string
		pendingType ArgType
		pending     bool
	)

	for i, token := range call.Args {
		switch {
		case pending:
			if strings.HasPrefix(token, "-") {
				return nil, &OptionFollowedByOptionError{Program: spec.Program, Option: pendingName, Next: token}
			}
			value, err := pendingType.Coerce(token)
			if err != nil {
				return nil, &InvalidValueError{Program: spec.Program, Option: pendingName, Type: pendingType, Token: token, Err: err}
			}
			opts = append(opts, OptValue{Name: pendingName, Value: value})
			matched[pendingName] = true
			pending = false

		case token == "--":
			return nil, &DoubleDashError{Program: spec.Program}

		case strings.HasPrefix(token, "-"):
			opt, ok := spec.Options[token]
			if !ok {
				return nil, &UnknownOptionError{Program: spec.Program, Option: token}
			}
			if opt.TakesValue() {
				pendingName = token
				pendingType = *opt.Value
				pending = true
			} else {
				flags = append(flags, token)
				matched[token] = true
			}

		default:
			positionals = append(positionals, ArgValue{Text: token, Index: i})
		}
	}

	if pending {
		return nil, &OptionMissingValueError{Program: spec.Program, Option: pendingName}
	}

	args, err := resolveArgs(spec, positionals)
	if err != nil {
		return nil, err
	}

	if missing := missingRequired(spec.requiredOptions, matched); len(missing) > 0 {
		return nil, &MissingRequiredOptionsError{Program: spec.Program, Options: missing}
	}

	exec := ValidExec{
		Program:    spec.Program,
		Flags:      flags,
		Opts:       opts,
		Args:       args,
		SystemPath: spec.SystemPath,
	}

	if spec.Forbidden != "" {
		return Forbidden{Reason: spec.Forbidden, Cause: ForbiddenExec{Exec: exec}}, nil
	}
	return Match{Exec: exec}, nil
}

// resolveArgs matches the collected positional candidates against the
// spec's patterns in declared order. Each pattern consumes greedily
// between Min and its bound; what remains flows to the next pattern.
// Tokens are coerced under the pattern's type as they are consumed.
func resolveArgs(spec *ProgramSpec, positionals []ArgValue) ([]ArgValue, error) {
	resolved := make([]ArgValue, 0, len(positionals))
	next := 0

	for i, pattern := range spec.ArgPatterns {
		remaining := len(positionals) - next
		if remaining < pattern.Min {
			return nil, &MissingRequiredArgumentsError{Program: spec.Program, Pattern: pattern, Got: remaining}
		}

		// Greedy, but leave enough tokens for the minimums of the
		// patterns that follow.
		reserve := 0
		for _, later := range spec.ArgPatterns[i+1:] {
			reserve += later.Min
		}
		take := remaining - reserve
		if bound := pattern.Bound(); bound >= 0 && take > bound {
			take = bound
		}
		if take < pattern.Min {
			return nil, &MissingRequiredArgumentsError{Program: spec.Program, Pattern: pattern, Got: remaining - reserve}
		}

		for j := 0; j < take; j++ {
			candidate := positionals[next]
			value, err := pattern.Type.Coerce(candidate.Text)
			if err != nil {
				return nil, &InvalidArgumentError{Program: spec.Program, Token: candidate.Text, Type: pattern.Type, Err: err}
			}
			value.Index = candidate.Index
			resolved = append(resolved, value)
			next++
		}
	}

	if next < len(positionals) {
		extra := make([]string, 0, len(positionals)-next)
		for _, leftover := range positionals[next:] {
			extra = append(extra, leftover.Text)
		}
		return nil, &UnexpectedArgumentsError{Program: spec.Program, Args: extra}
	}

	return resolved, nil
}

// missingRequired returns the sorted required option names absent
// from the matched set. required is already sorted at construction,
// but sort again so the invariant cannot depend on it.
func missingRequired(required []string, matched map[string]bool) []string {
	var missing []string
	for _, name := range required {
		if !matched[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
