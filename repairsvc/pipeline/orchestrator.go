// Package pipeline implements the repair request lifecycle: cache check,
// download, preprocess, external repair, validate, upload.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/sciansa/pdb-repair/repairsvc/pdb"
	"github.com/sciansa/pdb-repair/repairsvc/pipeline/ports"
	"github.com/sciansa/pdb-repair/repairsvc/urn"
)

// RepairRequest configures one repair run. Identity is the input artifact;
// no other field affects caching.
type RepairRequest struct {
	Input      urn.Artifact
	OutputName string     // optional filename recorded with the result
	Policy     urn.Policy // optional upload policy override
}

// RepairResult is produced exactly once per successful request.
type RepairResult struct {
	Input    urn.Artifact
	Repaired urn.Artifact
	Policy   urn.Policy // policy applied to the upload, zero if store default
}

// Options configures the orchestrator.
type Options struct {
	Binary        string      // external repair executable
	WorkspaceRoot string      // parent directory for per-request workspaces
	DefaultPolicy urn.Policy  // applied when the request names no policy
	Prep          pdb.Options // preprocessing behavior
}

// Orchestrator drives a repair request through its linear lifecycle. Each
// request is independent; concurrent requests for the same input are not
// coordinated beyond the store-side aspect check.
type Orchestrator struct {
	store    ports.ArtifactStore
	cache    ports.AspectCache
	runner   ports.RepairRunner
	progress ports.ProgressReporter
	opts     Options
	logger   zerolog.Logger
}

// New creates an orchestrator with its collaborators.
func New(
	store ports.ArtifactStore,
	cache ports.AspectCache,
	runner ports.RepairRunner,
	progress ports.ProgressReporter,
	opts Options,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		cache:    cache,
		runner:   runner,
		progress: progress,
		opts:     opts,
		logger:   logger,
	}
}

// Repair runs the full lifecycle for one request. Any step failure is
// terminal: no retries, no partial results.
func (o *Orchestrator) Repair(ctx context.Context, req RepairRequest) (*RepairResult, error) {
	if req.Input.IsZero() {
		return nil, fmt.Errorf("repair request names no input artifact")
	}

	policy := req.Policy
	if policy.IsZero() {
		policy = o.opts.DefaultPolicy
	}

	o.progress.StepStarted(ctx, "main", fmt.Sprintf("Repairing '%s'", req.Input))

	if aspect := o.lookupAspect(ctx, req.Input); aspect != nil {
		o.progress.Event(ctx, "cache_hit", map[string]any{
			"input":    req.Input.String(),
			"repaired": aspect.Repaired.String(),
		})
		o.progress.StepFinished(ctx, "main", fmt.Sprintf("Repaired PDB artifact is %s", aspect.Repaired))
		return &RepairResult{Input: req.Input, Repaired: aspect.Repaired, Policy: policy}, nil
	}

	ws, err := NewWorkspace(o.opts.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("preparing workspace: %w", err)
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			o.logger.Warn().Err(err).Str("workspace", ws.Dir()).Msg("failed to remove workspace")
		}
	}()

	base, err := o.download(ctx, req.Input, ws)
	if err != nil {
		return nil, &FetchError{Input: req.Input, Err: err}
	}

	prepName, err := o.preprocess(ws, base)
	if err != nil {
		return nil, fmt.Errorf("preprocessing %s: %w", req.Input, err)
	}

	report, err := o.invokeRepair(ctx, ws, prepName)
	if err != nil {
		return nil, &RepairFailedError{Output: pdb.RepairedName(base), Err: err}
	}

	repairedPath, err := o.validate(ws, base, report)
	if err != nil {
		return nil, err
	}

	repaired, err := o.upload(ctx, req, policy, base, repairedPath)
	if err != nil {
		return nil, err
	}

	o.progress.StepFinished(ctx, "main", fmt.Sprintf("Repaired PDB artifact is %s", repaired))
	return &RepairResult{Input: req.Input, Repaired: repaired, Policy: policy}, nil
}

// lookupAspect consults the read-through aspect cache. Lookup failures
// other than a plain miss are logged and treated as a miss: the cache
// check is an optimization, not a gate.
func (o *Orchestrator) lookupAspect(ctx context.Context, input urn.Artifact) *ports.CacheAspect {
	aspect, err := o.cache.Lookup(ctx, input.String(), func(ctx context.Context) (*ports.CacheAspect, error) {
		return o.store.LookupAspect(ctx, input)
	})
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			o.logger.Warn().Err(err).Str("input", input.String()).Msg("aspect lookup failed, proceeding with full repair")
		}
		return nil
	}
	return aspect
}

// download fetches the input artifact into the workspace and returns the
// base name used for all derived files.
func (o *Orchestrator) download(ctx context.Context, input urn.Artifact, ws *Workspace) (string, error) {
	rawPath, err := ws.Path(input.ShortID() + ".pdb")
	if err != nil {
		return "", err
	}
	f, err := os.Create(rawPath)
	if err != nil {
		return "", err
	}
	name, err := o.store.Download(ctx, input, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}

	o.progress.Event(ctx, "downloaded", map[string]any{"input": input.String(), "name": name})

	// Derived files follow the store-recorded filename when it is usable
	// as a workspace-local name; otherwise the id-derived base stays.
	base := pdb.Base(name)
	if base == "" {
		return input.ShortID(), nil
	}
	if base != input.ShortID() {
		renamed, perr := ws.Path(base + ".pdb")
		if perr != nil {
			return input.ShortID(), nil
		}
		if err := os.Rename(rawPath, renamed); err != nil {
			return "", err
		}
	}
	return base, nil
}

// preprocess rewrites the downloaded file into {base}_prep.pdb.
func (o *Orchestrator) preprocess(ws *Workspace, base string) (string, error) {
	inPath, err := ws.Path(base + ".pdb")
	if err != nil {
		return "", err
	}
	prepName := pdb.PrepName(base)
	outPath, err := ws.Path(prepName)
	if err != nil {
		return "", err
	}

	in, err := os.Open(inPath)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	if err := pdb.Preprocess(in, out, o.opts.Prep); err != nil {
		out.Close()
		return "", err
	}
	return prepName, out.Close()
}

// invokeRepair shells out to the repair binary with the fixed argument
// conventions. The exit code is reported, not enforced.
func (o *Orchestrator) invokeRepair(ctx context.Context, ws *Workspace, prepName string) (ports.RunReport, error) {
	spec := ports.RunSpec{
		Binary: o.opts.Binary,
		Args: []string{
			"--command=RepairPDB",
			"--output-dir=" + ws.Dir(),
			"--pdb=" + prepName,
			"--pdb-dir=" + ws.Dir(),
			"-d", "true",
		},
		Dir: ws.Dir(),
	}
	start := time.Now()
	report, err := o.runner.Run(ctx, spec)
	if err != nil {
		return report, err
	}
	o.logger.Info().
		Int("exit_code", report.ExitCode).
		Dur("duration", time.Since(start)).
		Msg("repair binary finished")
	if report.ExitCode != 0 {
		// Success is decided by output presence; a nonzero exit is only
		// evidence, surfaced in the RepairFailedError if validation fails.
		o.logger.Warn().Int("exit_code", report.ExitCode).Str("stderr", report.Stderr).Msg("repair binary exited nonzero")
	}
	return report, nil
}

// validate confirms the binary left {base}_prep_Repair.pdb behind.
func (o *Orchestrator) validate(ws *Workspace, base string, report ports.RunReport) (string, error) {
	repairedName := pdb.RepairedName(base)
	repairedPath, err := ws.Path(repairedName)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(repairedPath); err != nil {
		return "", &RepairFailedError{
			Output:   repairedName,
			ExitCode: report.ExitCode,
			Stderr:   report.Stderr,
		}
	}
	return repairedPath, nil
}

// upload stores the repaired file and records the cache aspect linking it
// back to the input.
func (o *Orchestrator) upload(ctx context.Context, req RepairRequest, policy urn.Policy, base, repairedPath string) (urn.Artifact, error) {
	name := req.OutputName
	if name == "" {
		name = pdb.RepairedName(base)
	}

	f, err := os.Open(repairedPath)
	if err != nil {
		return urn.Artifact{}, &UploadError{Name: name, Err: err}
	}
	defer f.Close()

	repaired, err := o.store.Upload(ctx, ports.UploadSpec{
		Name:   name,
		Policy: policy,
		Source: req.Input,
	}, f)
	if err != nil {
		return urn.Artifact{}, &UploadError{Name: name, Err: err}
	}

	aspect := ports.CacheAspect{Input: req.Input, Repaired: repaired, RecordedAt: time.Now().UTC()}
	if err := o.store.RecordAspect(ctx, aspect); err != nil {
		return urn.Artifact{}, &UploadError{Name: name, Err: fmt.Errorf("recording cache aspect: %w", err)}
	}
	return repaired, nil
}
