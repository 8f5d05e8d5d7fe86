package transport

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/starscheduler/starscheduler/internal/model"
)

// SubprocessDriver executes a command locally through the platform
// shell (spec.md §4.1). cl's connection fields are unused; subprocess
// clients exist only to give a local command a Client identity.
type SubprocessDriver struct{}

// NewSubprocessDriver constructs a SubprocessDriver.
func NewSubprocessDriver() *SubprocessDriver {
	return &SubprocessDriver{}
}

// Execute runs command through the platform shell, decoding output as
// UTF-8. On timeout it returns any partial output plus a synthetic
// "Timeout after Ns" stderr message rather than an error.
func (d *SubprocessDriver) Execute(ctx context.Context, cl model.Client, command string, timeout time.Duration) (string, string, error) {
	checkDangerous(command)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := shellCommand(runCtx, command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return stdout.String(), fmt.Sprintf("Timeout after %ds", int(timeout.Seconds())), nil
	}
	if err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("subprocess: run: %w", err)
	}
	return stdout.String(), stderr.String(), nil
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	return exec.CommandContext(ctx, "/bin/sh", "-c", command)
}
