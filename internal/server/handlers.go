package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/nao1215/piiscrub/internal/detect"
	"github.com/nao1215/piiscrub/internal/model"
	"github.com/nao1215/piiscrub/internal/pipeline"
	"github.com/nao1215/piiscrub/internal/ticket"
)

// errNoEntities is returned by /redact when neither the request nor a
// previous detection supplies entities.
var errNoEntities = errors.New("no entities to redact: run detection first or send entities")

type errorBody struct {
	Error string `json:"error"`
}

type ticketIDBody struct {
	TicketID int64 `json:"ticket_id"`
}

// detectRequest overrides the default detection options. Every field is
// optional.
type detectRequest struct {
	Model       *detect.Model `json:"model,omitempty"`
	Language    string        `json:"language,omitempty"`
	Threshold   *float64      `json:"threshold,omitempty"`
	EntityTypes []string      `json:"entity_types,omitempty"`
}

type redactRequest struct {
	Entities string `json:"entities"`
}

type entitiesBody struct {
	RunID    string         `json:"run_id,omitempty"`
	TicketID int64          `json:"ticket_id,omitempty"`
	Rendered string         `json:"rendered"`
	Entities []model.Entity `json:"entities"`
}

type healthBody struct {
	Status   string `json:"status"`
	Running  bool   `json:"running"`
	TicketID int64  `json:"ticket_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// readBody reads the request body up to the configured limit.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodySize))
}

// bodyStatus maps a body read error to an HTTP status.
func bodyStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// handleTicketID stores the active ticket id. The body is the bare id, as
// a JSON number or a JSON string.
func (s *Server) handleTicketID(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, bodyStatus(err), err)
		return
	}

	id, err := ticket.ParseTicketID(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	prev := s.store.Replace(id)
	if prev != id {
		s.setLastReport(nil)
	}
	if s.metrics != nil {
		s.metrics.RecordTicketUpdate()
	}
	s.logger.Debug("active ticket updated", "ticket_id", id, "previous", prev)

	if r.Method == http.MethodPut {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ticketIDBody{TicketID: id})
}

// handleDetect runs the detect workflow on the active ticket.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, bodyStatus(err), err)
		return
	}

	opts := s.detectOpts
	if len(strings.TrimSpace(string(body))) > 0 {
		var req detectRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		opts = req.apply(opts)
	}

	s.runStarted()
	defer s.runFinished()

	report, err := s.runner.Detect(r.Context(), opts)
	if report != nil && report.Succeeded() {
		s.setLastReport(report)
	}
	s.writeRun(w, report, err)
}

func (req detectRequest) apply(opts detect.Options) detect.Options {
	if req.Model != nil {
		opts.Model = *req.Model
	}
	if req.Language != "" {
		opts.Language = req.Language
	}
	if req.Threshold != nil {
		opts.Threshold = *req.Threshold
	}
	if len(req.EntityTypes) > 0 {
		opts.EntityTypes = req.EntityTypes
	}
	return opts
}

// handleRedact redacts the approved entities from the active ticket. The
// entities come from a JSON body {"entities": "..."}, a text/plain body, or,
// when the body is empty, the rendered string of the last detection on the
// active ticket.
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, bodyStatus(err), err)
		return
	}

	approved, err := approvedEntities(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(approved) == "" {
		if last := s.currentReport(); last != nil {
			approved = last.Rendered
		}
	}
	if strings.TrimSpace(approved) == "" {
		writeError(w, http.StatusBadRequest, errNoEntities)
		return
	}

	s.runStarted()
	defer s.runFinished()

	report, err := s.runner.Redact(r.Context(), approved)
	s.writeRun(w, report, err)
}

func approvedEntities(contentType string, body []byte) (string, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		return string(body), nil //nolint:nilerr // a missing or unknown type means plain text
	}

	var req redactRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", err
	}
	return req.Entities, nil
}

// writeRun writes the report of a workflow run with a status matching its
// outcome.
func (s *Server) writeRun(w http.ResponseWriter, report *model.ScrubReport, err error) {
	if errors.Is(err, pipeline.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if report == nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, statusFor(err), report)
}

// statusFor maps a workflow error to an HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, detect.ErrUnsupported),
		errors.Is(err, detect.ErrInvalidThreshold),
		errors.Is(err, detect.ErrUnsupportedLanguage):
		return http.StatusBadRequest
	case errors.Is(err, ticket.ErrTicketChanged):
		return http.StatusConflict
	case errors.Is(err, ticket.ErrRetrieval),
		errors.Is(err, ticket.ErrRedaction),
		errors.Is(err, detect.ErrDetection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleEntities returns the last rendered entity string of the active
// ticket.
func (s *Server) handleEntities(w http.ResponseWriter, _ *http.Request) {
	body := entitiesBody{Entities: []model.Entity{}}
	if last := s.currentReport(); last != nil {
		body.RunID = last.RunID
		body.TicketID = last.TicketID
		body.Rendered = last.Rendered
		if last.Entities != nil {
			body.Entities = last.Entities
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := healthBody{Status: "ok", Running: s.runner.Running()}
	if id, ok := s.store.Get(); ok {
		body.TicketID = id
	}
	writeJSON(w, http.StatusOK, body)
}
