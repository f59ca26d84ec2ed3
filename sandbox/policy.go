// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode is the closed set of access-control modes.
type Mode string

const (
	// ModeReadOnly denies all filesystem writes anywhere. Network
	// access is backend-defined; the bwrap backend denies it.
	ModeReadOnly Mode = "read-only"

	// ModeWorkspaceWrite allows writes only under the resolved
	// writable roots; network access is gated independently.
	ModeWorkspaceWrite Mode = "workspace-write"

	// ModeDangerFullAccess applies no restriction at all. Reserved
	// for fully-trusted operator-initiated commands.
	ModeDangerFullAccess Mode = "danger-full-access"
)

// Policy is the declarative sandbox configuration a command runs
// under. The workspace-write fields are meaningful only in
// ModeWorkspaceWrite; Validate rejects them elsewhere.
type Policy struct {
	Mode Mode `yaml:"mode"`

	// WritableRoots are additional directories (beyond the working
	// directory and the temp defaults) writable from the sandbox.
	WritableRoots []string `yaml:"writable_roots,omitempty"`

	// NetworkAccess permits outbound network when true.
	NetworkAccess bool `yaml:"network_access,omitempty"`

	// ExcludeTmpdirEnvVar keeps $TMPDIR out of the writable set even
	// though it would otherwise be implicitly included.
	ExcludeTmpdirEnvVar bool `yaml:"exclude_tmpdir_env_var,omitempty"`

	// ExcludeSlashTmp keeps /tmp out of the writable set.
	ExcludeSlashTmp bool `yaml:"exclude_slash_tmp,omitempty"`
}

// ReadOnly returns the policy that denies all writes.
func ReadOnly() *Policy {
	return &Policy{Mode: ModeReadOnly}
}

// DangerFullAccess returns the unrestricted policy.
func DangerFullAccess() *Policy {
	return &Policy{Mode: ModeDangerFullAccess}
}

// WorkspaceWrite returns a policy allowing writes under the given
// roots (plus the working directory and temp defaults at resolution
// time).
func WorkspaceWrite(writableRoots []string, networkAccess bool) *Policy {
	return &Policy{
		Mode:          ModeWorkspaceWrite,
		WritableRoots: writableRoots,
		NetworkAccess: networkAccess,
	}
}

// Validate checks mode membership and field consistency.
func (p *Policy) Validate() error {
	switch p.Mode {
	case ModeReadOnly, ModeDangerFullAccess:
		if len(p.WritableRoots) > 0 || p.NetworkAccess || p.ExcludeTmpdirEnvVar || p.ExcludeSlashTmp {
			return fmt.Errorf("policy mode %q does not accept workspace-write fields", p.Mode)
		}
		return nil
	case ModeWorkspaceWrite:
		for _, root := range p.WritableRoots {
			if !filepath.IsAbs(root) {
				return fmt.Errorf("writable root %q is not absolute", root)
			}
		}
		return nil
	case "":
		return fmt.Errorf("policy mode is required")
	default:
		return fmt.Errorf("unknown policy mode %q", p.Mode)
	}
}

// LoadPolicy reads a YAML policy document from disk.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy %s: %w", path, err)
	}
	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parsing policy %s: %w", path, err)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return &policy, nil
}

// WritableRoot is a writable directory paired with subpaths that stay
// read-only even though the root is writable. The only producer of
// read-only subpaths today is top-level .git protection.
type WritableRoot struct {
	// Root is absolute, by construction.
	Root string

	// ReadOnlySubpaths are absolute paths under Root.
	ReadOnlySubpaths []string
}

// IsPathWritable reports whether path falls under the root and
// outside every read-only subpath.
func (w WritableRoot) IsPathWritable(path string) bool {
	if !pathHasPrefix(path, w.Root) {
		return false
	}
	for _, subpath := range w.ReadOnlySubpaths {
		if pathHasPrefix(path, subpath) {
			return false
		}
	}
	return true
}

// ResolveWritableRoots resolves the effective writable set for a working
// directory. ReadOnly and DangerFullAccess have no writable roots to
// speak of (they are minimal and maximal already) and return nil.
//
// For WorkspaceWrite: explicitly configured roots first, then cwd,
// then /tmp (unless excluded or absent), then $TMPDIR (unless
// excluded or unset). Each root whose direct .git entry is a
// directory gets that .git recorded as a read-only subpath.
func (p *Policy) ResolveWritableRoots(cwd string) []WritableRoot {
	if p.Mode != ModeWorkspaceWrite {
		return nil
	}

	roots := make([]string, 0, len(p.WritableRoots)+3)
	roots = append(roots, p.WritableRoots...)
	roots = append(roots, cwd)

	if !p.ExcludeSlashTmp {
		if info, err := os.Stat("/tmp"); err == nil && info.IsDir() {
			roots = append(roots, "/tmp")
		}
	}
	if !p.ExcludeTmpdirEnvVar {
		if tmpdir := os.Getenv("TMPDIR"); tmpdir != "" {
			roots = append(roots, tmpdir)
		}
	}

	resolved := make([]WritableRoot, 0, len(roots))
	for _, root := range roots {
		root = filepath.Clean(root)
		var subpaths []string
		topLevelGit := filepath.Join(root, ".git")
		if info, err := os.Stat(topLevelGit); err == nil && info.IsDir() {
			subpaths = append(subpaths, topLevelGit)
		}
		resolved = append(resolved, WritableRoot{Root: root, ReadOnlySubpaths: subpaths})
	}
	return resolved
}

// pathHasPrefix reports whether path is base or lies under base,
// honoring path component boundaries ("/a/bc" is not under "/a/b").
func pathHasPrefix(path, base string) bool {
	path = filepath.Clean(path)
	base = filepath.Clean(base)
	if path == base {
		return true
	}
	if base == string(filepath.Separator) {
		return strings.HasPrefix(path, base)
	}
	return strings.HasPrefix(path, base+string(filepath.Separator))
}
