// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package execpolicy

import (
	"errors"
	"reflect"
	"testing"
)

func argType(t ArgType) *ArgType {
	return &t
}

// grepSpec allows grep with boolean -i and required --pattern STRING,
// plus up to one path argument.
func grepSpec(t *testing.T) *ProgramSpec {
	t.Helper()
	spec, err := NewProgramSpec(ProgramSpec{
		Program:    "grep",
		SystemPath: []string{"/usr/bin", "/bin"},
		Options: map[string]Opt{
			"-i":        {},
			"--pattern": {Required: true, Value: argType(ArgTypeString)},
		},
		ArgPatterns: []ArgMatcher{
			{Type: ArgTypePath, Min: 0, Max: 1},
		},
	})
	if err != nil {
		t.Fatalf("NewProgramSpec: %v", err)
	}
	return spec
}

func TestCheckMatchesMinimalCall(t *testing.T) {
	spec := grepSpec(t)

	verdict, err := Check(spec, ExecCall{Program: "grep", Args: []string{"--pattern", "foo"}})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	match, ok := verdict.(Match)
	if !ok {
		t.Fatalf("verdict = %T, want Match", verdict)
	}
	if len(match.Exec.Opts) != 1 || match.Exec.Opts[0].Name != "--pattern" || match.Exec.Opts[0].Value.Text != "foo" {
		t.Errorf("opts = %+v, want --pattern foo", match.Exec.Opts)
	}
	if len(match.Exec.Flags) != 0 {
		t.Errorf("flags = %v, want none", match.Exec.Flags)
	}
	if !reflect.DeepEqual(match.Exec.SystemPath, []string{"/usr/bin", "/bin"}) {
		t.Errorf("system path = %v, not carried through", match.Exec.SystemPath)
	}
}

func TestCheckMatchesFlagAndPositional(t *testing.T) {
	spec := grepSpec(t)

	verdict, err := Check(spec, ExecCall{Program: "grep", Args: []string{"-i", "--pattern", "foo", "src/main.go"}})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	match, ok := verdict.(Match)
	if !ok {
		t.Fatalf("verdict = %T, want Match", verdict)
	}
	if len(match.Exec.Flags) != 1 || match.Exec.Flags[0] != "-i" {
		t.Errorf("flags = %v, want [-i]", match.Exec.Flags)
	}
	if len(match.Exec.Args) != 1 || match.Exec.Args[0].Text != "src/main.go" {
		t.Errorf("args = %+v, want src/main.go", match.Exec.Args)
	}
}

func TestCheckPositionalIndexPointsIntoArgv(t *testing.T) {
	spec := grepSpec(t)

	verdict, err := Check(spec, ExecCall{Program: "grep", Args: []string{"-i", "--pattern", "foo", "src/main.go"}})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	match, ok := verdict.(Match)
	if !ok {
		t.Fatalf("verdict = %T, want Match", verdict)
	}
	if len(match.Exec.Args) != 1 {
		t.Fatalf("args = %+v, want one positional", match.Exec.Args)
	}
	// The positional is the fourth token of the argument vector, not
	// the first positional.
	if got := match.Exec.Args[0].Index; got != 3 {
		t.Errorf("positional index = %d, want 3", got)
	}
}

func TestValidExecArgv(t *testing.T) {
	spec := grepSpec(t)

	verdict, err := Check(spec, ExecCall{Program: "grep", Args: []string{"-i", "--pattern", "foo", "src/../src/main.go"}})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	match, ok := verdict.(Match)
	if !ok {
		t.Fatalf("verdict = %T, want Match", verdict)
	}
	// Coerced values, not raw tokens: the path argument runs cleaned.
	want := []string{"-i", "--pattern", "foo", "src/main.go"}
	if got := match.Exec.Argv(); !reflect.DeepEqual(got, want) {
		t.Errorf("Argv() = %v, want %v", got, want)
	}
}

func TestCheckMissingRequiredOptions(t *testing.T) {
	spec := grepSpec(t)

	_, err := Check(spec, ExecCall{Program: "grep", Args: []string{"-i"}})
	var missing *MissingRequiredOptionsError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingRequiredOptionsError", err)
	}
	if !reflect.DeepEqual(missing.Options, []string{"--pattern"}) {
		t.Errorf("missing = %v, want [--pattern]", missing.Options)
	}
}

func TestCheckMissingRequiredOptionsSorted(t *testing.T) {
	spec, err := NewProgramSpec(ProgramSpec{
		Program: "tar",
		Options: map[string]Opt{
			"--file":      {Required: true, Value: argType(ArgTypePath)},
			"--directory": {Required: true, Value: argType(ArgTypePath)},
			"--verbose":   {},
		},
	})
	if err != nil {
		t.Fatalf("NewProgramSpec: %v", err)
	}

	_, err = Check(spec, ExecCall{Program: "tar", Args: []string{"--verbose"}})
	var missing *MissingRequiredOptionsError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingRequiredOptionsError", err)
	}
	if !reflect.DeepEqual(missing.Options, []string{"--directory", "--file"}) {
		t.Errorf("missing = %v, want sorted [--directory --file]", missing.Options)
	}
}

func TestCheckOptionMissingValue(t *testing.T) {
	spec := grepSpec(t)

	_, err := Check(spec, ExecCall{Program: "grep", Args: []string{"--pattern"}})
	var missing *OptionMissingValueError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want OptionMissingValueError", err)
	}
	if missing.Option != "--pattern" {
		t.Errorf("option = %q, want --pattern", missing.Option)
	}
}

func TestCheckUnknownOption(t *testing.T) {
	spec := grepSpec(t)

	_, err := Check(spec, ExecCall{Program: "grep", Args: []string{"--unknown"}})
	var unknown *UnknownOptionError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownOptionError", err)
	}
	if unknown.Option != "--unknown" {
		t.Errorf("option = %q, want --unknown", unknown.Option)
	}
}

func TestCheckOptionFollowedByOption(t *testing.T) {
	spec := grepSpec(t)

	_, err := Check(spec, ExecCall{Program: "grep", Args: []string{"--pattern", "-i"}})
	var followed *OptionFollowedByOptionError
	if !errors.As(err, &followed) {
		t.Fatalf("err = %v, want OptionFollowedByOptionError", err)
	}
	if followed.Option != "--pattern" || followed.Next != "-i" {
		t.Errorf("got %q then %q, want --pattern then -i", followed.Option, followed.Next)
	}
}

func TestCheckDoubleDashRejected(t *testing.T) {
	spec := grepSpec(t)

	_, err := Check(spec, ExecCall{Program: "grep", Args: []string{"--pattern", "foo", "--"}})
	var doubleDash *DoubleDashError
	if !errors.As(err, &doubleDash) {
		t.Fatalf("err = %v, want DoubleDashError", err)
	}
}

func TestCheckValueCoercion(t *testing.T) {
	spec, err := NewProgramSpec(ProgramSpec{
		Program: "head",
		Options: map[string]Opt{
			"--lines": {Value: argType(ArgTypePositiveInt)},
		},
		ArgPatterns: []ArgMatcher{{Type: ArgTypePath, Min: 1}},
	})
	if err != nil {
		t.Fatalf("NewProgramSpec: %v", err)
	}

	verdict, err := Check(spec, ExecCall{Program: "head", Args: []string{"--lines", "20", "log.txt"}})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	match := verdict.(Match)
	if match.Exec.Opts[0].Value.Int != 20 {
		t.Errorf("coerced int = %d, want 20", match.Exec.Opts[0].Value.Int)
	}

	_, err = Check(spec, ExecCall{Program: "head", Args: []string{"--lines", "zero", "log.txt"}})
	var invalid *InvalidValueError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidValueError", err)
	}

	_, err = Check(spec, ExecCall{Program: "head", Args: []string{"--lines", "-5", "log.txt"}})
	var followed *OptionFollowedByOptionError
	if !errors.As(err, &followed) {
		t.Fatalf("err = %v, want OptionFollowedByOptionError (negative looks like an option)", err)
	}
}

func TestCheckPositionalPatterns(t *testing.T) {
	// cp SRC... DEST: one-or-more paths followed by exactly one path.
	spec, err := NewProgramSpec(ProgramSpec{
		Program: "cp",
		ArgPatterns: []ArgMatcher{
			{Type: ArgTypePath, Min: 1, Max: -1},
			{Type: ArgTypePath, Min: 1},
		},
	})
	if err != nil {
		t.Fatalf("NewProgramSpec: %v", err)
	}

	verdict, err := Check(spec, ExecCall{Program: "cp", Args: []string{"a", "b", "c", "dest/"}})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	match := verdict.(Match)
	if len(match.Exec.Args) != 4 {
		t.Fatalf("resolved %d args, want 4", len(match.Exec.Args))
	}
	// Paths come back cleaned.
	if match.Exec.Args[3].Text != "dest" {
		t.Errorf("dest = %q, want cleaned %q", match.Exec.Args[3].Text, "dest")
	}

	_, err = Check(spec, ExecCall{Program: "cp", Args: []string{"only"}})
	var short *MissingRequiredArgumentsError
	if !errors.As(err, &short) {
		t.Fatalf("err = %v, want MissingRequiredArgumentsError", err)
	}
}

func TestCheckUnexpectedArguments(t *testing.T) {
	spec, err := NewProgramSpec(ProgramSpec{
		Program:     "cat",
		ArgPatterns: []ArgMatcher{{Type: ArgTypePath, Min: 1}},
	})
	if err != nil {
		t.Fatalf("NewProgramSpec: %v", err)
	}

	_, err = Check(spec, ExecCall{Program: "cat", Args: []string{"a.txt", "b.txt"}})
	var extra *UnexpectedArgumentsError
	if !errors.As(err, &extra) {
		t.Fatalf("err = %v, want UnexpectedArgumentsError", err)
	}
	if !reflect.DeepEqual(extra.Args, []string{"b.txt"}) {
		t.Errorf("extra = %v, want [b.txt]", extra.Args)
	}
}

func TestCheckNoArgumentsAllowed(t *testing.T) {
	spec, err := NewProgramSpec(ProgramSpec{Program: "true"})
	if err != nil {
		t.Fatalf("NewProgramSpec: %v", err)
	}

	if _, err := Check(spec, ExecCall{Program: "true"}); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if _, err := Check(spec, ExecCall{Program: "true", Args: []string{"x"}}); err == nil {
		t.Fatal("expected error for unexpected positional")
	}
}

func TestCheckForbiddenWrapsParsedExec(t *testing.T) {
	// A forbidden program is still fully parsed so the audit trail
	// records what would have run.
	spec, err := NewProgramSpec(ProgramSpec{
		Program:   "shutdown",
		Forbidden: "shutting down the host is never allowed",
		Options:   map[string]Opt{"-h": {}},
		ArgPatterns: []ArgMatcher{
			{Type: ArgTypeString, Min: 0, Max: 1},
		},
	})
	if err != nil {
		t.Fatalf("NewProgramSpec: %v", err)
	}

	verdict, err := Check(spec, ExecCall{Program: "shutdown", Args: []string{"-h", "now"}})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	forbidden, ok := verdict.(Forbidden)
	if !ok {
		t.Fatalf("verdict = %T, want Forbidden", verdict)
	}
	if forbidden.Reason != "shutting down the host is never allowed" {
		t.Errorf("reason = %q", forbidden.Reason)
	}
	cause, ok := forbidden.Cause.(ForbiddenExec)
	if !ok {
		t.Fatalf("cause = %T, want ForbiddenExec", forbidden.Cause)
	}
	if len(cause.Exec.Flags) != 1 || cause.Exec.Flags[0] != "-h" {
		t.Errorf("parsed flags = %v, want [-h]", cause.Exec.Flags)
	}

	// A malformed call to a forbidden program is still a parse error,
	// not a Forbidden verdict.
	if _, err := Check(spec, ExecCall{Program: "shutdown", Args: []string{"--bogus"}}); err == nil {
		t.Fatal("expected UnknownOptionError before the forbidden wrap")
	}
}

func TestRequiredOptionsDerived(t *testing.T) {
	spec, err := NewProgramSpec(ProgramSpec{
		Program: "curl",
		Options: map[string]Opt{
			"--url":    {Required: true, Value: argType(ArgTypeString)},
			"--output": {Required: true, Value: argType(ArgTypePath)},
			"--silent": {},
		},
	})
	if err != nil {
		t.Fatalf("NewProgramSpec: %v", err)
	}
	if got := spec.RequiredOptions(); !reflect.DeepEqual(got, []string{"--output", "--url"}) {
		t.Errorf("RequiredOptions() = %v, want sorted [--output --url]", got)
	}
}

func TestArgTypeCoercion(t *testing.T) {
	tests := []struct {
		name    string
		argType ArgType
		token   string
		wantErr bool
		text    string
	}{
		{"string passes through", ArgTypeString, "anything -even-dashy", false, "anything -even-dashy"},
		{"path cleaned", ArgTypePath, "a//b/../c", false, "a/c"},
		{"empty path rejected", ArgTypePath, "", true, ""},
		{"positive int", ArgTypePositiveInt, "42", false, "42"},
		{"zero rejected", ArgTypePositiveInt, "0", true, ""},
		{"non-numeric rejected", ArgTypePositiveInt, "many", true, ""},
		{"filename", ArgTypeFilename, "notes.txt", false, "notes.txt"},
		{"filename with separator rejected", ArgTypeFilename, "dir/notes.txt", true, ""},
		{"dot rejected", ArgTypeFilename, ".", true, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			value, err := test.argType.Coerce(test.token)
			if test.wantErr {
				if err == nil {
					t.Fatalf("Coerce(%q) succeeded, want error", test.token)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce(%q): %v", test.token, err)
			}
			if value.Text != test.text {
				t.Errorf("Coerce(%q).Text = %q, want %q", test.token, value.Text, test.text)
			}
		})
	}
}
