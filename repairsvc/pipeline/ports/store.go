package ports

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sciansa/pdb-repair/repairsvc/urn"
)

// ErrNotFound reports a missing artifact or aspect. Adapters wrap it so the
// pipeline can distinguish "does not exist" from transport failures.
var ErrNotFound = errors.New("not found")

// CacheAspect is the store-side record linking an input artifact to the
// repaired artifact produced from it. Recorded once, never mutated.
type CacheAspect struct {
	Input      urn.Artifact
	Repaired   urn.Artifact
	RecordedAt time.Time
}

// UploadSpec carries the metadata recorded alongside a repaired artifact.
type UploadSpec struct {
	Name   string       // filename to record with the artifact
	Policy urn.Policy   // upload policy, zero means store default
	Source urn.Artifact // input artifact this result was derived from
}

// ArtifactStore is the remote content store the pipeline runs against.
type ArtifactStore interface {
	// LookupAspect returns the cache aspect attached to the input artifact,
	// or an error wrapping ErrNotFound when none has been recorded.
	LookupAspect(ctx context.Context, input urn.Artifact) (*CacheAspect, error)

	// Download streams the artifact payload into w and returns the filename
	// the store has on record for it (may be empty).
	Download(ctx context.Context, id urn.Artifact, w io.Writer) (name string, err error)

	// Upload stores a new artifact from r and returns its identifier.
	Upload(ctx context.Context, spec UploadSpec, r io.Reader) (urn.Artifact, error)

	// RecordAspect attaches a cache aspect to the input artifact.
	RecordAspect(ctx context.Context, aspect CacheAspect) error
}
