package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sciansa/pdb-repair/repairsvc/pipeline/ports"
	"github.com/sciansa/pdb-repair/repairsvc/urn"
)

const pdbMimeType = "chemical/x-pdb"

// HTTPStore talks to the remote artifact store over its JSON API. All
// consistency and atomicity guarantees are the store's; this adapter only
// shuttles bytes and metadata.
type HTTPStore struct {
	base   *url.URL
	token  string
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPStore creates a store client for the given base URL. The token is
// sent as a bearer credential on every request.
func NewHTTPStore(baseURL, token string, timeout time.Duration, logger zerolog.Logger) (*HTTPStore, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing store base url %q: %w", baseURL, err)
	}
	return &HTTPStore{
		base:   base,
		token:  token,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

type aspectRecord struct {
	Schema  string          `json:"schema"`
	Entity  string          `json:"entity"`
	Content json.RawMessage `json:"content"`
}

type aspectContent struct {
	Input      urn.Artifact `json:"input"`
	Repaired   urn.Artifact `json:"repaired"`
	RecordedAt time.Time    `json:"recorded-at"`
}

// LookupAspect implements ports.ArtifactStore.
func (s *HTTPStore) LookupAspect(ctx context.Context, input urn.Artifact) (*ports.CacheAspect, error) {
	q := url.Values{}
	q.Set("schema", urn.CacheAspectSchema)
	q.Set("entity", input.String())

	resp, err := s.do(ctx, http.MethodGet, "/aspects?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := s.checkStatus(resp); err != nil {
		return nil, err
	}

	var records []aspectRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding aspect listing: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no cache aspect for %s: %w", input, ports.ErrNotFound)
	}

	var content aspectContent
	if err := json.Unmarshal(records[0].Content, &content); err != nil {
		return nil, fmt.Errorf("decoding aspect content: %w", err)
	}
	return &ports.CacheAspect{
		Input:      content.Input,
		Repaired:   content.Repaired,
		RecordedAt: content.RecordedAt,
	}, nil
}

// Download implements ports.ArtifactStore. The filename recorded by the
// store is taken from the Content-Disposition header when present.
func (s *HTTPStore) Download(ctx context.Context, id urn.Artifact, w io.Writer) (string, error) {
	resp, err := s.do(ctx, http.MethodGet, "/artifacts/"+url.PathEscape(id.String())+"/blob", nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := s.checkStatus(resp); err != nil {
		return "", err
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("transferring artifact payload: %w", err)
	}

	name := ""
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			name = params["filename"]
		}
	}
	return name, nil
}

// Upload implements ports.ArtifactStore.
func (s *HTTPStore) Upload(ctx context.Context, spec ports.UploadSpec, r io.Reader) (urn.Artifact, error) {
	resp, err := s.do(ctx, http.MethodPost, "/artifacts", r, pdbMimeType, func(req *http.Request) {
		if spec.Name != "" {
			req.Header.Set("X-Name", spec.Name)
		}
		if !spec.Policy.IsZero() {
			req.Header.Set("X-Policy", spec.Policy.String())
		}
		if !spec.Source.IsZero() {
			req.Header.Set("X-Source-Artifact", spec.Source.String())
		}
	})
	if err != nil {
		return urn.Artifact{}, err
	}
	defer resp.Body.Close()
	if err := s.checkStatus(resp); err != nil {
		return urn.Artifact{}, err
	}

	var body struct {
		ID urn.Artifact `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return urn.Artifact{}, fmt.Errorf("decoding upload response: %w", err)
	}
	s.logger.Debug().Str("artifact", body.ID.String()).Msg("uploaded artifact")
	return body.ID, nil
}

// RecordAspect implements ports.ArtifactStore.
func (s *HTTPStore) RecordAspect(ctx context.Context, aspect ports.CacheAspect) error {
	content, err := json.Marshal(aspectContent{
		Input:      aspect.Input,
		Repaired:   aspect.Repaired,
		RecordedAt: aspect.RecordedAt,
	})
	if err != nil {
		return fmt.Errorf("encoding aspect content: %w", err)
	}
	payload, err := json.Marshal(aspectRecord{
		Schema:  urn.CacheAspectSchema,
		Entity:  aspect.Input.String(),
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("encoding aspect record: %w", err)
	}

	resp, err := s.do(ctx, http.MethodPost, "/aspects", bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return s.checkStatus(resp)
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body io.Reader, contentType string, mutate ...func(*http.Request)) (*http.Response, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("building store url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base.ResolveReference(ref).String(), body)
	if err != nil {
		return nil, fmt.Errorf("building store request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	for _, m := range mutate {
		m(req)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store request %s %s: %w", method, path, err)
	}
	return resp, nil
}

func (s *HTTPStore) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(snippet))
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("store returned 404 (%s): %w", msg, ports.ErrNotFound)
	}
	return fmt.Errorf("store returned %d: %s", resp.StatusCode, msg)
}

// Ensure HTTPStore implements the ArtifactStore interface.
var _ ports.ArtifactStore = (*HTTPStore)(nil)
