// Package server exposes the repair pipeline as a single-endpoint HTTP
// service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/sciansa/pdb-repair/repairsvc/config"
	"github.com/sciansa/pdb-repair/repairsvc/pipeline"
	"github.com/sciansa/pdb-repair/repairsvc/urn"
)

// maxRequestBytes bounds the request envelope; payloads travel through the
// store, not this endpoint.
const maxRequestBytes = 64 * 1024

// requestSchema validates the request envelope before decoding.
const requestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["$schema", "pdb_artifact"],
  "properties": {
    "$schema": {"type": "string"},
    "pdb_artifact": {"type": "string", "minLength": 1},
    "output_name": {"type": "string"},
    "$policy": {"type": "string"}
  },
  "additionalProperties": false
}`

// Repairer is the slice of the pipeline the server needs.
type Repairer interface {
	Repair(ctx context.Context, req pipeline.RepairRequest) (*pipeline.RepairResult, error)
}

type requestPayload struct {
	Schema     string `json:"$schema"`
	Artifact   string `json:"pdb_artifact"`
	OutputName string `json:"output_name,omitempty"`
	Policy     string `json:"$policy,omitempty"`
}

type resultPayload struct {
	Schema   string `json:"$schema"`
	ID       string `json:"$id"`
	Repaired string `json:"repaired_pdb_artifact"`
	Policy   string `json:"$policy,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// Server hosts the repair endpoint.
type Server struct {
	repairer Repairer
	cfg      config.ServiceConfig
	schema   *gojsonschema.Schema
	logger   zerolog.Logger
}

// New creates a server around the given repairer.
func New(repairer Repairer, cfg config.ServiceConfig, logger zerolog.Logger) (*Server, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling request schema: %w", err)
	}
	return &Server{repairer: repairer, cfg: cfg, schema: schema, logger: logger}, nil
}

// Handler returns the HTTP routing for the service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRepair)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("repair service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reading request body")
		return
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "request is not valid JSON")
		return
	}
	if !result.Valid() {
		s.writeError(w, http.StatusBadRequest, schemaErrors(result))
		return
	}

	var payload requestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "decoding request")
		return
	}

	req, err := buildRequest(payload)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	res, err := s.repairer.Repair(r.Context(), req)
	if err != nil {
		s.logger.Error().Err(err).Str("input", payload.Artifact).Msg("repair request failed")
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info().
		Str("input", res.Input.String()).
		Str("repaired", res.Repaired.String()).
		Dur("duration", time.Since(start)).
		Msg("repair request served")

	out := resultPayload{
		Schema:   urn.ResultSchema,
		ID:       res.Input.String(),
		Repaired: res.Repaired.String(),
	}
	if !res.Policy.IsZero() {
		out.Policy = res.Policy.String()
	}
	s.writeJSON(w, http.StatusOK, out)
}

func buildRequest(payload requestPayload) (pipeline.RepairRequest, error) {
	input, err := urn.ParseArtifact(payload.Artifact)
	if err != nil {
		return pipeline.RepairRequest{}, fmt.Errorf("pdb_artifact: %w", err)
	}
	req := pipeline.RepairRequest{Input: input, OutputName: payload.OutputName}
	if payload.Policy != "" {
		policy, err := urn.ParsePolicy(payload.Policy)
		if err != nil {
			return pipeline.RepairRequest{}, fmt.Errorf("$policy: %w", err)
		}
		req.Policy = policy
	}
	return req, nil
}

// statusFor maps pipeline failures onto HTTP status codes.
func statusFor(err error) int {
	var fetchErr *pipeline.FetchError
	var repairErr *pipeline.RepairFailedError
	var uploadErr *pipeline.UploadError
	switch {
	case errors.As(err, &fetchErr):
		return http.StatusNotFound
	case errors.As(err, &repairErr):
		return http.StatusBadGateway
	case errors.As(err, &uploadErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func schemaErrors(result *gojsonschema.Result) string {
	msg := "request does not match schema"
	for _, desc := range result.Errors() {
		msg += "; " + desc.String()
	}
	return msg
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("writing response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorPayload{Error: msg})
}
