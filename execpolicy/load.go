// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package execpolicy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

// RuleExtension is the filename extension for policy rule files.
const RuleExtension = ".rules.jsonc"

// ruleFile is the on-disk shape of one rule document: JSONC (JSON
// extended with // line comments, /* block comments */, and trailing
// commas) holding one or more program specs.
type ruleFile struct {
	Programs []ProgramSpec `json:"programs"`
}

// PolicySet is a constructed, verified collection of program specs,
// keyed by program name. The zero value is unusable; build one with
// NewPolicySet or LoadDir.
type PolicySet struct {
	specs map[string]*ProgramSpec
}

// NewPolicySet builds a set from already-parsed specs. Each spec is
// finalized through NewProgramSpec and replayed against its embedded
// fixtures; any fixture contradiction fails construction.
func NewPolicySet(specs []ProgramSpec) (*PolicySet, error) {
	set := &PolicySet{specs: make(map[string]*ProgramSpec, len(specs))}
	for _, raw := range specs {
		spec, err := NewProgramSpec(raw)
		if err != nil {
			return nil, err
		}
		if _, exists := set.specs[spec.Program]; exists {
			return nil, fmt.Errorf("duplicate spec for program %q", spec.Program)
		}
		if failures := Verify(spec); len(failures) > 0 {
			return nil, fmt.Errorf("spec for %q contradicts its fixtures: %s", spec.Program, failures[0])
		}
		set.specs[spec.Program] = spec
	}
	return set, nil
}

// Get returns the spec for a program, or nil when the program is not
// in the allowlist.
func (p *PolicySet) Get(program string) *ProgramSpec {
	return p.specs[program]
}

// Programs returns the allow-listed program names, sorted.
func (p *PolicySet) Programs() []string {
	names := make([]string, 0, len(p.specs))
	for name := range p.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check validates a call against the set. A program absent from the
// allowlist is a Forbidden verdict (closed world), not an error.
func (p *PolicySet) Check(call ExecCall) (MatchedExec, error) {
	spec := p.specs[call.Program]
	if spec == nil {
		return Forbidden{
			Reason: fmt.Sprintf("program %q is not in the allowlist", call.Program),
			Cause:  ForbiddenProgram{Program: call.Program, Call: call},
		}, nil
	}
	return Check(spec, call)
}

// Verify replays every spec's embedded fixtures and returns all
// contradictions across the set.
func (p *PolicySet) Verify() []FixtureFailure {
	var failures []FixtureFailure
	for _, name := range p.Programs() {
		failures = append(failures, Verify(p.specs[name])...)
	}
	return failures
}

// ParseFile parses one JSONC rule document into its program specs.
// The identifier (usually the file path) is included in errors.
func ParseFile(identifier string, data []byte) ([]ProgramSpec, error) {
	stripped := jsonc.ToJSON(data)

	var file ruleFile
	if err := json.Unmarshal(stripped, &file); err != nil {
		return nil, fmt.Errorf("parsing rule file %s: %w", identifier, err)
	}
	if len(file.Programs) == 0 {
		return nil, fmt.Errorf("rule file %s declares no programs", identifier)
	}
	return file.Programs, nil
}

// LoadDir reads every *.rules.jsonc file in dir (sorted filename
// order, non-recursive) and builds a verified PolicySet. A missing
// directory yields an empty set, not an error, so a fresh install
// starts with everything denied.
func LoadDir(dir string) (*PolicySet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &PolicySet{specs: map[string]*ProgramSpec{}}, nil
		}
		return nil, fmt.Errorf("reading rules directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), RuleExtension) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	var specs []ProgramSpec
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading rule file %s: %w", path, err)
		}
		parsed, err := ParseFile(path, data)
		if err != nil {
			return nil, err
		}
		specs = append(specs, parsed...)
	}

	return NewPolicySet(specs)
}
