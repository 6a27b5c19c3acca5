package ports

import (
	"context"
	"time"
)

// RunSpec describes a single external repair invocation.
type RunSpec struct {
	Binary string   // executable path
	Args   []string // full argument list
	Dir    string   // working directory
}

// RunReport captures what the process did. A nonzero exit code is reported
// here, not as an error: the pipeline decides success by output presence.
type RunReport struct {
	ExitCode int
	Duration time.Duration
	Stdout   string // tail of captured stdout
	Stderr   string // tail of captured stderr
}

// RepairRunner invokes the external repair binary. Run blocks until the
// process exits or ctx is cancelled; it returns an error only when the
// process could not be started or was interrupted.
type RepairRunner interface {
	Run(ctx context.Context, spec RunSpec) (RunReport, error)
}
