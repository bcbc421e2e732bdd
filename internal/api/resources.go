package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
	"github.com/nerrad567/gray-logic-gateway/internal/hub"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
	"github.com/nerrad567/gray-logic-gateway/internal/threshold"
)

// SubmitResponse is returned for an accepted record.
type SubmitResponse struct {
	Resource string `json:"resource"`
	Topic    string `json:"topic"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Connections map[string]string `json:"connections"`
}

// ThresholdResponse is returned by GET /api/v1/threshold.
type ThresholdResponse struct {
	Enabled bool             `json:"enabled"`
	State   *threshold.State `json:"state,omitempty"`
}

// resolveKind maps a request path to a resource. A bare name resolves in
// the ConstrainedDevice scope.
func resolveKind(path string) resource.Kind {
	path = strings.Trim(path, "/")
	if path == "" {
		return resource.Unrecognized
	}
	if !strings.Contains(path, "/") {
		path = string(resource.ScopeConstrained) + "/" + path
	}
	return resource.Lookup(path)
}

// handleSubmit accepts a record for a resource and routes it through the hub.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	kind := resolveKind(name)
	if !kind.Valid() {
		writeNotFound(w, "unknown resource: "+name)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return
		}
		writeBadRequest(w, "reading request body failed")
		return
	}
	if len(body) == 0 {
		writeBadRequest(w, "request body is required")
		return
	}

	if err := s.router.HandleMessage(kind, string(body)); err != nil {
		if errors.Is(err, hub.ErrDecode) {
			writeBadRequest(w, "payload does not decode as "+kind.String())
			return
		}
		s.logger.Warn("submitted record not fully routed",
			"resource", kind,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"device", r.Context().Value(ctxKeyDevice),
			"error", err,
		)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "record could not be delivered upstream")
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		Resource: kind.String(),
		Topic:    kind.Topic(),
	})
}

// handleHealth reports connector states. Any connector that is not
// connected degrades the status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	conns := s.router.Connections()
	status := "ok"
	for _, state := range conns {
		if state != "connected" {
			status = "degraded"
			break
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      status,
		Version:     s.version,
		Connections: conns,
	})
}

func (s *Server) handleResponses(w http.ResponseWriter, _ *http.Request) {
	responses := s.router.LatestResponses()
	if responses == nil {
		responses = []data.CommandRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"responses": responses,
		"count":     len(responses),
	})
}

func (s *Server) handleThreshold(w http.ResponseWriter, _ *http.Request) {
	state, ok := s.router.ThresholdState()
	if !ok {
		writeJSON(w, http.StatusOK, ThresholdResponse{})
		return
	}
	writeJSON(w, http.StatusOK, ThresholdResponse{Enabled: true, State: &state})
}
