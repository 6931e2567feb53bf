// Package shell executes host shell commands on behalf of privileged
// strategies and the device.shell handler. It is the one place in the
// agent that shells out to the OS.
package shell

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// Result mirrors the wire shape of device.shell's result.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Executor runs a single command line, optionally as a privileged user.
type Executor interface {
	Run(ctx context.Context, command string, asPrivileged bool, timeout time.Duration) (Result, error)
}

// ShellExecutor runs commands via /bin/sh -c, or via a privilege
// escalation prefix (e.g. "su -c") when asPrivileged is requested and
// configured.
type ShellExecutor struct {
	PrivilegeEscalationCmd string // e.g. "su", empty disables privileged execution
}

func New(privilegeEscalationCmd string) *ShellExecutor {
	return &ShellExecutor{PrivilegeEscalationCmd: privilegeEscalationCmd}
}

func (e *ShellExecutor) Run(ctx context.Context, command string, asPrivileged bool, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if asPrivileged && e.PrivilegeEscalationCmd != "" {
		cmd = exec.CommandContext(ctx, e.PrivilegeEscalationCmd, "-c", command)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", command)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
		err = nil
	} else if err != nil {
		exitCode = -1
	}

	return Result{ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String()}, err
}
