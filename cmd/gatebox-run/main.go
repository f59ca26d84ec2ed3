// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/gatebox/gatebox/execpolicy"
	"github.com/gatebox/gatebox/lib/audit"
	"github.com/gatebox/gatebox/lib/version"
	"github.com/gatebox/gatebox/runner"
	"github.com/gatebox/gatebox/sandbox"
	"github.com/gatebox/gatebox/session"
)

// exitError carries a non-zero exit code out of a command handler
// without printing an extra error message. Used to propagate the
// child's exit code as our own.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if os.Getenv("GATEBOX_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "run":
		err = runCmd(args, logger)
	case "verify":
		err = verifyCmd(args)
	case "version", "--version", "-v":
		fmt.Printf("gatebox-run %s\n", version.Info())
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`gatebox-run - Execute commands through the policy gate

USAGE
    gatebox-run <command> [flags] [-- <args>...]

COMMANDS
    run      Check a command against the rules and run it sandboxed
    verify   Replay the embedded fixtures of every rule file
    version  Show version

EXAMPLES
    # Run an allow-listed command read-only
    gatebox-run run --rules=/etc/gatebox/rules -- grep --line-number needle file.txt

    # Allow writes under the working directory
    gatebox-run run --rules=rules --sandbox-policy=policy.yaml -- sed --in-place s/a/b/ file.txt

    # Show the verdict without executing
    gatebox-run run --rules=rules --dry-run -- rm stale.log

ENVIRONMENT
    GATEBOX_DEBUG  Enable debug logging
`)
}

// runCmd implements the "run" command.
func runCmd(args []string, logger *slog.Logger) error {
	flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)

	rulesDir := flagSet.String("rules", "", "Directory of .rules.jsonc policy files (required)")
	policyFile := flagSet.String("sandbox-policy", "", "Sandbox policy YAML file (default: read-only)")
	workdir := flagSet.String("workdir", "", "Working directory for the command (default: current directory)")
	timeout := flagSet.Duration("timeout", 10*time.Second, "Output collection deadline")
	dryRun := flagSet.Bool("dry-run", false, "Print the verdict without executing")
	usePTY := flagSet.Bool("pty", false, "Run the command on a pseudo-terminal")
	auditDir := flagSet.String("audit-dir", "", "Directory for audit segments (optional)")
	extraEnv := flagSet.StringSlice("env", nil, "Extra environment variable (KEY=VALUE), repeatable")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	command := flagSet.Args()
	if len(command) == 0 {
		return fmt.Errorf("command is required after --")
	}
	if *rulesDir == "" {
		return fmt.Errorf("--rules is required")
	}
	if *usePTY && !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("--pty requires stdin to be a terminal")
	}

	policies, err := execpolicy.LoadDir(*rulesDir)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	sandboxPolicy := sandbox.ReadOnly()
	if *policyFile != "" {
		sandboxPolicy, err = sandbox.LoadPolicy(*policyFile)
		if err != nil {
			return fmt.Errorf("load sandbox policy: %w", err)
		}
	}

	if *workdir == "" {
		*workdir, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	var auditLog *audit.Log
	if *auditDir != "" {
		auditLog, err = audit.NewLog(audit.LogConfig{Dir: *auditDir, Logger: logger})
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer func() {
			if err := auditLog.Close(); err != nil {
				logger.Warn("audit flush failed", "error", err)
			}
		}()
	}

	r, err := runner.New(runner.Config{
		Policies: policies,
		Sandbox:  sandboxPolicy,
		Workdir:  *workdir,
		Audit:    auditLog,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	call := execpolicy.ExecCall{Program: command[0], Args: command[1:]}

	if *dryRun {
		result, err := r.Check(call)
		if err != nil {
			return err
		}
		fmt.Printf("allowed: %s\n", call)
		fmt.Printf("binary:  %s\n", result.BinaryPath)
		fmt.Printf("digest:  %s\n", result.BinaryDigest)
		fmt.Printf("sandbox: %s\n", sandboxPolicy.Mode)
		if sandboxPolicy.Mode != sandbox.ModeDangerFullAccess {
			argv := append([]string{result.BinaryPath}, result.Exec.Argv()...)
			bwrapArgv, err := sandbox.BwrapArgs(&sandbox.BwrapOptions{
				Policy:  sandboxPolicy,
				Cwd:     *workdir,
				Command: argv,
			})
			if err != nil {
				return err
			}
			fmt.Printf("bwrap:   %s\n", strings.Join(bwrapArgv, " "))
		}
		return nil
	}

	env, err := parseEnv(*extraEnv)
	if err != nil {
		return err
	}
	stdio := sandbox.StdioPipes
	if *usePTY {
		stdio = sandbox.StdioPTY
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := r.Run(ctx, call, runner.RunOptions{
		Timeout:  *timeout,
		Stdio:    stdio,
		ExtraEnv: env,
	})
	if result != nil {
		os.Stdout.Write(result.Output)
	}
	if err != nil {
		var denied *session.SandboxDenied
		if errors.As(err, &denied) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", denied)
			return &exitError{code: result.ExitCode}
		}
		return err
	}
	if result.TimedOut {
		return fmt.Errorf("command timed out after %s", *timeout)
	}
	if result.ExitCode != 0 {
		return &exitError{code: result.ExitCode}
	}
	return nil
}

// verifyCmd implements the "verify" command: it loads the rule
// directory and replays every program's embedded fixtures.
func verifyCmd(args []string) error {
	flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	rulesDir := flagSet.String("rules", "", "Directory of .rules.jsonc policy files (required)")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *rulesDir == "" {
		return fmt.Errorf("--rules is required")
	}

	policies, err := execpolicy.LoadDir(*rulesDir)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	failures := policies.Verify()
	programs := policies.Programs()
	if len(failures) == 0 {
		fmt.Printf("ok: %d programs, all fixtures hold\n", len(programs))
		return nil
	}
	for _, failure := range failures {
		fmt.Fprintln(os.Stderr, failure)
	}
	fmt.Fprintf(os.Stderr, "%d fixture failures across %d programs\n", len(failures), len(programs))
	return &exitError{code: 1}
}

// parseEnv splits repeatable KEY=VALUE flags into a map.
func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env %q, want KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}
