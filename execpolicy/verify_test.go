// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package execpolicy

import (
	"strings"
	"testing"
)

func TestVerifyAgreesWithGoodFixtures(t *testing.T) {
	spec, err := NewProgramSpec(ProgramSpec{
		Program: "grep",
		Options: map[string]Opt{
			"-i":        {},
			"--pattern": {Required: true, Value: argType(ArgTypeString)},
		},
		ArgPatterns: []ArgMatcher{{Type: ArgTypePath, Min: 0, Max: 1}},
		ShouldMatch: [][]string{
			{"--pattern", "foo"},
			{"-i", "--pattern", "foo", "src"},
		},
		ShouldNotMatch: [][]string{
			{"-i"},
			{"--pattern"},
			{"--unknown"},
		},
	})
	if err != nil {
		t.Fatalf("NewProgramSpec: %v", err)
	}

	if failures := Verify(spec); len(failures) != 0 {
		t.Fatalf("Verify reported %d failures: %v", len(failures), failures)
	}
}

func TestVerifyReportsContradictions(t *testing.T) {
	spec, err := NewProgramSpec(ProgramSpec{
		Program: "ls",
		Options: map[string]Opt{"-l": {}},
		// Mislabeled both ways.
		ShouldMatch:    [][]string{{"--bogus"}},
		ShouldNotMatch: [][]string{{"-l"}},
	})
	if err != nil {
		t.Fatalf("NewProgramSpec: %v", err)
	}

	shouldMatch := VerifyShouldMatch(spec)
	if len(shouldMatch) != 1 {
		t.Fatalf("VerifyShouldMatch reported %d failures, want 1", len(shouldMatch))
	}
	if !shouldMatch[0].ShouldMatch || !strings.Contains(shouldMatch[0].Outcome, "rejected") {
		t.Errorf("unexpected failure: %v", shouldMatch[0])
	}

	shouldNotMatch := VerifyShouldNotMatch(spec)
	if len(shouldNotMatch) != 1 {
		t.Fatalf("VerifyShouldNotMatch reported %d failures, want 1", len(shouldNotMatch))
	}
	if shouldNotMatch[0].Outcome != "matched" {
		t.Errorf("outcome = %q, want matched", shouldNotMatch[0].Outcome)
	}
}

func TestVerifyForbiddenFixtureIsNotAMatch(t *testing.T) {
	// A forbidden verdict agrees with a should_not_match label and
	// contradicts a should_match label.
	spec, err := NewProgramSpec(ProgramSpec{
		Program:        "mkfs",
		Forbidden:      "formatting filesystems is never allowed",
		ShouldNotMatch: [][]string{{}},
	})
	if err != nil {
		t.Fatalf("NewProgramSpec: %v", err)
	}
	if failures := Verify(spec); len(failures) != 0 {
		t.Fatalf("forbidden fixture should satisfy should_not_match: %v", failures)
	}

	spec.ShouldMatch = [][]string{{}}
	failures := VerifyShouldMatch(spec)
	if len(failures) != 1 || !strings.Contains(failures[0].Outcome, "forbidden") {
		t.Fatalf("want a forbidden contradiction, got %v", failures)
	}
}
