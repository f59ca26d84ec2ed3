// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package execpolicy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ArgType is the declared type of an option value or positional
// argument. Coercion failures are policy violations, not panics.
type ArgType string

const (
	// ArgTypeString accepts any token verbatim.
	ArgTypeString ArgType = "string"

	// ArgTypePath accepts a non-empty path and stores it cleaned
	// (filepath.Clean). Relative paths stay relative — resolution
	// against a working directory is the spawner's job.
	ArgTypePath ArgType = "path"

	// ArgTypePositiveInt accepts a base-10 integer greater than zero.
	ArgTypePositiveInt ArgType = "positive_int"

	// ArgTypeFilename accepts a bare filename: non-empty, no path
	// separator, not "." or "..".
	ArgTypeFilename ArgType = "filename"
)

// Coerce parses token according to the type. The returned ArgValue
// carries the canonical text form and, for numeric types, the parsed
// integer.
func (t ArgType) Coerce(token string) (ArgValue, error) {
	switch t {
	case ArgTypeString:
		return ArgValue{Type: t, Text: token}, nil
	case ArgTypePath:
		if token == "" {
			return ArgValue{}, fmt.Errorf("empty path")
		}
		return ArgValue{Type: t, Text: filepath.Clean(token)}, nil
	case ArgTypePositiveInt:
		n, err := strconv.Atoi(token)
		if err != nil {
			return ArgValue{}, fmt.Errorf("%q is not an integer", token)
		}
		if n <= 0 {
			return ArgValue{}, fmt.Errorf("%d is not positive", n)
		}
		return ArgValue{Type: t, Text: token, Int: n}, nil
	case ArgTypeFilename:
		if token == "" || token == "." || token == ".." {
			return ArgValue{}, fmt.Errorf("%q is not a filename", token)
		}
		if strings.ContainsRune(token, filepath.Separator) {
			return ArgValue{}, fmt.Errorf("%q contains a path separator", token)
		}
		return ArgValue{Type: t, Text: token}, nil
	default:
		return ArgValue{}, fmt.Errorf("unknown argument type %q", string(t))
	}
}

// Valid reports whether t is one of the declared argument types.
func (t ArgType) Valid() bool {
	switch t {
	case ArgTypeString, ArgTypePath, ArgTypePositiveInt, ArgTypeFilename:
		return true
	}
	return false
}

// ArgValue is a coerced option value or positional argument.
type ArgValue struct {
	// Type is the ArgType the token was coerced under.
	Type ArgType `json:"type"`

	// Text is the canonical text form (cleaned for paths).
	Text string `json:"text"`

	// Int is the parsed value for ArgTypePositiveInt, zero otherwise.
	Int int `json:"int,omitempty"`

	// Index is the token's position in the call's argument vector
	// (ExecCall.Args, program excluded), preserved for positional
	// arguments so audit records can point back at the request.
	Index int `json:"index,omitempty"`
}

// Opt declares one allowed option of a program.
type Opt struct {
	// Required marks the option as mandatory: any call omitting it
	// fails with MissingRequiredOptionsError.
	Required bool `json:"required,omitempty"`

	// Value is the typed value the option consumes from the next
	// token. Nil means the option is a boolean flag taking no value.
	Value *ArgType `json:"value,omitempty"`
}

// TakesValue reports whether the option consumes the following token.
func (o Opt) TakesValue() bool {
	return o.Value != nil
}

// ArgMatcher describes one slot of a program's positional argument
// shape. Matchers are applied in declared order, each consuming
// between Min and Max of the remaining positional tokens (greedy).
type ArgMatcher struct {
	// Type every consumed token must coerce under.
	Type ArgType `json:"type"`

	// Min is the minimum number of positions this matcher consumes.
	Min int `json:"min"`

	// Max is the maximum number of positions. Zero means exactly Min;
	// a negative value means unbounded.
	Max int `json:"max,omitempty"`
}

// Bound returns the effective maximum, with -1 meaning unbounded.
func (m ArgMatcher) Bound() int {
	if m.Max == 0 {
		return m.Min
	}
	return m.Max
}

// ProgramSpec is the complete allowlist grammar for one program.
type ProgramSpec struct {
	// Program is the canonical executable name ("grep", not a path).
	Program string `json:"program"`

	// SystemPath lists the directories or aliases under which the
	// program may resolve, in preference order. Carried through into
	// ValidExec for the spawner; not consulted during matching.
	SystemPath []string `json:"system_path,omitempty"`

	// OptionBundling and CombinedFormat record the program's syntax
	// dialect (-abc bundling, --name=value). Recorded for future
	// matcher extension; not evaluated today.
	OptionBundling bool `json:"option_bundling,omitempty"`
	CombinedFormat bool `json:"combined_format,omitempty"`

	// Options maps option name (including leading dashes, e.g. "-i"
	// or "--pattern") to its declaration.
	Options map[string]Opt `json:"options,omitempty"`

	// ArgPatterns describes the acceptable shape of positional
	// arguments, in call order.
	ArgPatterns []ArgMatcher `json:"args,omitempty"`

	// Forbidden, when non-empty, denies every syntactically valid
	// call to this program with this reason. The grammar above still
	// applies first, so a denied call is parsed and typed for audit.
	Forbidden string `json:"forbidden,omitempty"`

	// ShouldMatch and ShouldNotMatch are embedded self-test argv
	// fixtures. They are replayed by VerifyShouldMatch /
	// VerifyShouldNotMatch, never consulted during live checks.
	ShouldMatch    [][]string `json:"should_match,omitempty"`
	ShouldNotMatch [][]string `json:"should_not_match,omitempty"`

	// requiredOptions is derived at construction: the sorted names of
	// all options with Required set. Never mutated independently.
	requiredOptions []string
}

// NewProgramSpec validates the declaration and computes the derived
// required-option set. Every ProgramSpec must pass through here (or
// through the rule-file loader, which calls it) before use.
func NewProgramSpec(spec ProgramSpec) (*ProgramSpec, error) {
	if spec.Program == "" {
		return nil, fmt.Errorf("program name is required")
	}
	for name, opt := range spec.Options {
		if !strings.HasPrefix(name, "-") {
			return nil, fmt.Errorf("program %s: option %q must start with '-'", spec.Program, name)
		}
		if opt.Value != nil && !opt.Value.Valid() {
			return nil, fmt.Errorf("program %s: option %q has unknown value type %q", spec.Program, name, string(*opt.Value))
		}
	}
	for i, matcher := range spec.ArgPatterns {
		if !matcher.Type.Valid() {
			return nil, fmt.Errorf("program %s: arg pattern %d has unknown type %q", spec.Program, i, string(matcher.Type))
		}
		if matcher.Min < 0 {
			return nil, fmt.Errorf("program %s: arg pattern %d has negative min", spec.Program, i)
		}
		if bound := matcher.Bound(); bound >= 0 && bound < matcher.Min {
			return nil, fmt.Errorf("program %s: arg pattern %d has max %d below min %d", spec.Program, i, bound, matcher.Min)
		}
	}
	spec.requiredOptions = deriveRequiredOptions(spec.Options)
	return &spec, nil
}

// RequiredOptions returns the sorted names of all required options.
func (s *ProgramSpec) RequiredOptions() []string {
	return s.requiredOptions
}

func deriveRequiredOptions(options map[string]Opt) []string {
	var required []string
	for name, opt := range options {
		if opt.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	return required
}
