package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sciansa/pdb-repair/repairsvc/pipeline/ports"
)

// maxCaptureBytes bounds how much process output is kept for reporting.
const maxCaptureBytes = 8 * 1024

// ExecRunner runs the repair binary as a child process. It enforces no
// timeout of its own; the hosting transport owns the request deadline and
// cancellation arrives through ctx.
type ExecRunner struct {
	logger zerolog.Logger
}

// NewExecRunner creates a new process runner.
func NewExecRunner(logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run executes the spec and reports exit code, duration and output tails.
// A nonzero exit is not an error; failing to start or a cancelled ctx is.
func (r *ExecRunner) Run(ctx context.Context, spec ports.RunSpec) (ports.RunReport, error) {
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Info().
		Str("binary", spec.Binary).
		Str("args", strings.Join(spec.Args, " ")).
		Str("dir", spec.Dir).
		Msg("invoking repair binary")

	start := time.Now()
	err := cmd.Run()
	report := ports.RunReport{
		Duration: time.Since(start),
		Stdout:   tail(stdout.Bytes()),
		Stderr:   tail(stderr.Bytes()),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			report.ExitCode = exitErr.ExitCode()
			return report, nil
		}
		if ctx.Err() != nil {
			return report, fmt.Errorf("repair binary interrupted: %w", ctx.Err())
		}
		return report, fmt.Errorf("starting repair binary %s: %w", spec.Binary, err)
	}

	report.ExitCode = cmd.ProcessState.ExitCode()
	return report, nil
}

func tail(b []byte) string {
	if len(b) > maxCaptureBytes {
		b = b[len(b)-maxCaptureBytes:]
	}
	return string(b)
}

// Ensure ExecRunner implements the RepairRunner interface.
var _ ports.RepairRunner = (*ExecRunner)(nil)
