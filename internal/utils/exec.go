package utils

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes external commands. It exists so callers such as the helm
// backend can be tested without the binary installed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Env is appended to the inherited environment, in KEY=VALUE form.
	Env []string
}

// Run executes name with args and captures standard output and standard
// error. The process is killed when ctx is done.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	stdoutStr := stdoutBuf.String()
	stderrStr := stderrBuf.String()

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stdoutStr, stderrStr, fmt.Errorf("'%s %s' interrupted: %w", name, firstArg(args), ctxErr)
		}
		// Include stderr in the error message for better diagnostics
		return stdoutStr, stderrStr, fmt.Errorf("failed to execute '%s %s': %w. Stderr: %s",
			name, firstArg(args), runErr, strings.TrimSpace(stderrStr))
	}
	return stdoutStr, stderrStr, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
