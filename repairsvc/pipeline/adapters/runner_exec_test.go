package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciansa/pdb-repair/repairsvc/pipeline/ports"
)

func TestExecRunnerReportsExitCode(t *testing.T) {
	runner := NewExecRunner(zerolog.Nop())

	report, err := runner.Run(context.Background(), ports.RunSpec{
		Binary: "sh",
		Args:   []string{"-c", "echo out; echo err >&2; exit 3"},
		Dir:    t.TempDir(),
	})

	// A nonzero exit is a report, not an error.
	require.NoError(t, err)
	assert.Equal(t, 3, report.ExitCode)
	assert.Contains(t, report.Stdout, "out")
	assert.Contains(t, report.Stderr, "err")
	assert.Greater(t, report.Duration, time.Duration(0))
}

func TestExecRunnerZeroExit(t *testing.T) {
	runner := NewExecRunner(zerolog.Nop())

	report, err := runner.Run(context.Background(), ports.RunSpec{
		Binary: "sh",
		Args:   []string{"-c", "true"},
		Dir:    t.TempDir(),
	})

	require.NoError(t, err)
	assert.Equal(t, 0, report.ExitCode)
}

func TestExecRunnerMissingBinaryIsError(t *testing.T) {
	runner := NewExecRunner(zerolog.Nop())

	_, err := runner.Run(context.Background(), ports.RunSpec{
		Binary: "definitely-not-a-real-binary-9f2c",
		Dir:    t.TempDir(),
	})

	assert.Error(t, err)
}

func TestExecRunnerHonorsCancellation(t *testing.T) {
	runner := NewExecRunner(zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := runner.Run(ctx, ports.RunSpec{
		Binary: "sh",
		Args:   []string{"-c", "sleep 10"},
		Dir:    t.TempDir(),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
