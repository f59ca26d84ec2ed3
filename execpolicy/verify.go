// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package execpolicy

import (
	"fmt"
	"strings"
)

// FixtureFailure describes one embedded fixture whose Check outcome
// contradicts its label.
type FixtureFailure struct {
	// Program is the spec the fixture belongs to.
	Program string

	// Argv is the fixture vector as authored (excluding the program).
	Argv []string

	// ShouldMatch records which list the fixture came from.
	ShouldMatch bool

	// Outcome is a short description of what Check actually returned.
	Outcome string
}

func (f FixtureFailure) String() string {
	label := "should_not_match"
	if f.ShouldMatch {
		label = "should_match"
	}
	return fmt.Sprintf("%s %s [%s]: %s", f.Program, label, strings.Join(f.Argv, " "), f.Outcome)
}

// VerifyShouldMatch replays every ShouldMatch fixture through Check
// and returns the fixtures that did not produce a Match. An empty
// result means the spec agrees with its own positive examples.
func VerifyShouldMatch(spec *ProgramSpec) []FixtureFailure {
	var failures []FixtureFailure
	for _, argv := range spec.ShouldMatch {
		verdict, err := Check(spec, ExecCall{Program: spec.Program, Args: argv})
		switch {
		case err != nil:
			failures = append(failures, FixtureFailure{
				Program: spec.Program, Argv: argv, ShouldMatch: true,
				Outcome: fmt.Sprintf("rejected: %v", err),
			})
		default:
			if _, ok := verdict.(Match); !ok {
				failures = append(failures, FixtureFailure{
					Program: spec.Program, Argv: argv, ShouldMatch: true,
					Outcome: fmt.Sprintf("forbidden: %s", verdict.(Forbidden).Reason),
				})
			}
		}
	}
	return failures
}

// VerifyShouldNotMatch replays every ShouldNotMatch fixture through
// Check and returns the fixtures that produced a Match. A fixture
// that errors or comes back Forbidden agrees with its label.
func VerifyShouldNotMatch(spec *ProgramSpec) []FixtureFailure {
	var failures []FixtureFailure
	for _, argv := range spec.ShouldNotMatch {
		verdict, err := Check(spec, ExecCall{Program: spec.Program, Args: argv})
		if err != nil {
			continue
		}
		if _, ok := verdict.(Match); ok {
			failures = append(failures, FixtureFailure{
				Program: spec.Program, Argv: argv, ShouldMatch: false,
				Outcome: "matched",
			})
		}
	}
	return failures
}

// Verify runs both fixture lists and returns all contradictions.
// Rule-file loading calls this so a broken spec never goes live; CI
// should call it whenever a spec is edited.
func Verify(spec *ProgramSpec) []FixtureFailure {
	failures := VerifyShouldMatch(spec)
	return append(failures, VerifyShouldNotMatch(spec)...)
}
