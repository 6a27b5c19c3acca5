package pipeline

import (
	"fmt"

	"github.com/sciansa/pdb-repair/repairsvc/urn"
)

// FetchError reports that the input artifact could not be resolved or
// transferred. Terminal for the request.
type FetchError struct {
	Input urn.Artifact
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching input artifact %s: %v", e.Input, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RepairFailedError reports that the external binary did not leave the
// expected output file behind. Binary crash, bad input and licensing
// problems all collapse into this one signal.
type RepairFailedError struct {
	Output   string // expected output filename
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RepairFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("repair binary failed: %v", e.Err)
	}
	return fmt.Sprintf("repair binary produced no %s (exit code %d)", e.Output, e.ExitCode)
}

func (e *RepairFailedError) Unwrap() error { return e.Err }

// UploadError reports that the store rejected or could not accept the
// repaired artifact or its cache aspect.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading repaired artifact %q: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
