// Package urn models the identifier namespace of the artifact store.
// Identifiers are URNs, never filesystem paths; parse and format are the
// only ways in and out of the string representation.
package urn

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	artifactPrefix = "urn:ivcap:artifact:"
	policyPrefix   = "urn:ivcap:policy:"

	// Schema tags carried in the request/result envelopes.
	RequestSchema = "urn:sd:schema.foldx_repair_pdb.request.1"
	ResultSchema  = "urn:sd:schema.foldx_repair_pdb.1"

	// CacheAspectSchema identifies the store-side aspect linking an input
	// artifact to its repaired counterpart.
	CacheAspectSchema = "urn:sd:schema.foldx_repair_pdb.cache.1"
)

// Artifact identifies an artifact in the store.
type Artifact struct {
	id uuid.UUID
}

// Policy identifies an upload policy in the store.
type Policy struct {
	id uuid.UUID
}

// NewArtifact mints a fresh artifact identifier.
func NewArtifact() Artifact {
	return Artifact{id: uuid.New()}
}

// ParseArtifact parses an artifact URN of the form urn:ivcap:artifact:<uuid>.
func ParseArtifact(s string) (Artifact, error) {
	id, err := parse(s, artifactPrefix)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{id: id}, nil
}

func (a Artifact) String() string {
	return artifactPrefix + a.id.String()
}

// ShortID returns the bare uuid portion, used for workspace-local filenames.
func (a Artifact) ShortID() string {
	return a.id.String()
}

// IsZero reports whether the identifier is unset.
func (a Artifact) IsZero() bool {
	return a.id == uuid.Nil
}

func (a Artifact) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Artifact) UnmarshalText(b []byte) error {
	parsed, err := ParseArtifact(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// NewPolicy mints a fresh policy identifier.
func NewPolicy() Policy {
	return Policy{id: uuid.New()}
}

// ParsePolicy parses a policy URN of the form urn:ivcap:policy:<uuid>.
func ParsePolicy(s string) (Policy, error) {
	id, err := parse(s, policyPrefix)
	if err != nil {
		return Policy{}, err
	}
	return Policy{id: id}, nil
}

func (p Policy) String() string {
	return policyPrefix + p.id.String()
}

// IsZero reports whether the identifier is unset.
func (p Policy) IsZero() bool {
	return p.id == uuid.Nil
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(b []byte) error {
	parsed, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func parse(s, prefix string) (uuid.UUID, error) {
	if strings.ContainsAny(s, "/\\") {
		return uuid.Nil, fmt.Errorf("identifier %q looks like a path, not a URN", s)
	}
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("identifier %q does not have prefix %q", s, prefix)
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.Nil, fmt.Errorf("identifier %q has a malformed uuid: %w", s, err)
	}
	return id, nil
}
