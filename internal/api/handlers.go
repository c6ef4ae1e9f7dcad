package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"relctl/internal/release"
	"relctl/pkg/logging"
)

const (
	subsystem = "API"

	// DefaultRunTimeout bounds a release started over HTTP when the request
	// does not set ?timeout.
	DefaultRunTimeout = 15 * time.Minute

	maxSpecBytes = 1 << 20
)

// Releaser is the orchestrator surface served over HTTP.
// *orchestrator.Orchestrator implements it.
type Releaser interface {
	Run(ctx context.Context, spec release.Spec) (*release.Record, error)
	Current(ctx context.Context, namespace string) (*release.Record, error)
	History(ctx context.Context, namespace string) ([]release.Record, error)
	Get(ctx context.Context, id string) (*release.Record, error)
	Abandon(ctx context.Context, namespace, reason string) (*release.Record, error)
}

type handlers struct {
	releaser   Releaser
	runTimeout time.Duration
}

// NewRouter returns the HTTP handler for the API.
func NewRouter(releaser Releaser, runTimeout time.Duration) http.Handler {
	if runTimeout <= 0 {
		runTimeout = DefaultRunTimeout
	}
	h := &handlers{releaser: releaser, runTimeout: runTimeout}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", h.healthz)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/releases", h.runRelease)
		r.Get("/releases/{id}", h.getRelease)
		r.Get("/namespaces/{ns}/current", h.currentRelease)
		r.Get("/namespaces/{ns}/releases", h.listReleases)
		r.Post("/namespaces/{ns}/abandon", h.abandonRelease)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug(subsystem, "%s %s %d %s [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start),
			middleware.GetReqID(r.Context()))
	})
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) runRelease(w http.ResponseWriter, r *http.Request) {
	spec, err := decodeSpec(r)
	if err != nil {
		writeError(w, err)
		return
	}

	timeout := h.runTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		timeout, err = time.ParseDuration(v)
		if err != nil || timeout <= 0 {
			writeJSON(w, http.StatusBadRequest, apiError{Code: "bad_request", Message: fmt.Sprintf("invalid timeout %q", v)})
			return
		}
	}

	// A dropped connection must not roll a release back; only the deadline
	// cancels it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
	defer cancel()

	rec, err := h.releaser.Run(ctx, spec)
	if err != nil {
		writeError(w, err)
		return
	}
	logging.Info(subsystem, "Release %s in %s finished: %s", rec.ID, rec.Namespace, rec.Outcome)
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) getRelease(w http.ResponseWriter, r *http.Request) {
	rec, err := h.releaser.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) currentRelease(w http.ResponseWriter, r *http.Request) {
	rec, err := h.releaser.Current(r.Context(), chi.URLParam(r, "ns"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) listReleases(w http.ResponseWriter, r *http.Request) {
	records, err := h.releaser.History(r.Context(), chi.URLParam(r, "ns"))
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []release.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handlers) abandonRelease(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxSpecBytes)).Decode(&body); err != nil && err != io.EOF {
			writeJSON(w, http.StatusBadRequest, apiError{Code: "bad_request", Message: err.Error()})
			return
		}
	}
	rec, err := h.releaser.Abandon(r.Context(), chi.URLParam(r, "ns"), body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// decodeSpec accepts a YAML body (application/yaml) or JSON otherwise.
func decodeSpec(r *http.Request) (release.Spec, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxSpecBytes))
	if err != nil {
		return release.Spec{}, fmt.Errorf("failed to read request body: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		return release.ParseSpec(data)
	}

	var spec release.Spec
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return release.Spec{}, &release.InvalidSpecError{Problems: []string{fmt.Sprintf("decode: %v", err)}}
	}
	return spec, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn(subsystem, "Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := errorStatus(err)
	if status == http.StatusInternalServerError {
		logging.Error(subsystem, err, "Request failed")
	}
	writeJSON(w, status, body)
}
