// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
)

// BwrapOptions holds the inputs for translating a policy into a
// bubblewrap invocation.
type BwrapOptions struct {
	// Policy is the validated sandbox policy to enforce.
	Policy *Policy

	// Cwd is the working directory inside the sandbox. It is also a
	// writable root in workspace-write mode.
	Cwd string

	// Command is the command to run inside the sandbox.
	Command []string
}

// BwrapArgs translates a policy into bubblewrap arguments, command
// included. DangerFullAccess has no bwrap rendering; callers spawn
// directly for that mode.
func BwrapArgs(opts *BwrapOptions) ([]string, error) {
	if opts.Policy == nil {
		return nil, fmt.Errorf("policy is required")
	}
	if opts.Policy.Mode == ModeDangerFullAccess {
		return nil, fmt.Errorf("danger-full-access does not use bwrap")
	}
	if opts.Cwd == "" {
		return nil, fmt.Errorf("cwd is required")
	}
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("command is required")
	}

	// Whole filesystem read-only, then punch writable holes per root.
	args := []string{"--ro-bind", "/", "/"}

	for _, root := range opts.Policy.ResolveWritableRoots(opts.Cwd) {
		if _, err := os.Stat(root.Root); err != nil {
			continue
		}
		args = append(args, "--bind", root.Root, root.Root)
		for _, subpath := range root.ReadOnlySubpaths {
			args = append(args, "--ro-bind", subpath, subpath)
		}
	}

	// Fresh /proc and minimal /dev over the read-only base.
	args = append(args, "--proc", "/proc")
	args = append(args, "--dev", "/dev")

	if !opts.Policy.NetworkAccess {
		args = append(args, "--unshare-net")
	}

	args = append(args, "--die-with-parent")
	args = append(args, "--new-session")
	args = append(args, "--chdir", opts.Cwd)

	args = append(args, "--")
	args = append(args, opts.Command...)

	return args, nil
}

// BwrapPath returns the path to the bwrap executable.
func BwrapPath() (string, error) {
	paths := []string{
		"/usr/bin/bwrap",
		"/usr/local/bin/bwrap",
		"/bin/bwrap",
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("bwrap not found in standard locations")
}
