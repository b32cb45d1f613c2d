package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/coordinator"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/health"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/isbn"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/registry"
)

// handler is our HTTP handler. It defers all search/registry/health work to
// the coordinator, registry, and health tracker and handles muxing,
// validation, and the async search job store.
type handler struct {
	ctrl *coordinator.Coordinator
	reg  *registry.Registry
	ht   *health.Tracker
	jobs *jobStore
}

// newHandler creates a new handler.
func newHandler(ctrl *coordinator.Coordinator, reg *registry.Registry, ht *health.Tracker) *handler {
	return &handler{ctrl: ctrl, reg: reg, ht: ht, jobs: newJobStore(10 * time.Minute)}
}

// newMux registers a handler's routes on a new mux. metricsHandler serves
// the Prometheus exposition format.
func newMux(h *handler, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /search", h.getSearch)
	mux.HandleFunc("POST /search", h.postSearch)
	mux.HandleFunc("GET /search/{searchId}", h.getSearchByID)
	mux.HandleFunc("GET /libraries", h.getLibraries)
	mux.HandleFunc("GET /libraries/{id}", h.getLibraryByID)
	mux.HandleFunc("GET /health", h.getHealth)
	mux.HandleFunc("GET /health/systems", h.getHealthSystems)
	mux.Handle("GET /debug/metrics", metricsHandler)

	// Default handler returns 404.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return mux
}

type errorBody struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, errType, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Type: errType})
}

// getSearch handles GET /search?isbn=<raw>, running the federated search
// synchronously.
func (h *handler) getSearch(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("isbn")
	parsed := isbn.Parse(raw)
	if !parsed.OK {
		writeError(w, http.StatusBadRequest, "isbn_validation_error",
			fmt.Sprintf("invalid isbn %q: %s", raw, parsed.Reason))
		return
	}

	searchID := uuid.NewString()
	result, err := h.ctrl.Search(r.Context(), parsed.ISBN13, searchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, newSearchResultResource(raw, result))
}

type searchRequestBody struct {
	ISBN string `json:"isbn"`
}

// postSearch handles POST /search {isbn}. It validates the isbn, starts the
// search in the background against the job store, and immediately returns
// 202 with a searchId the client can poll via GET /search/{searchId}.
func (h *handler) postSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	parsed := isbn.Parse(body.ISBN)
	if !parsed.OK {
		writeError(w, http.StatusBadRequest, "isbn_validation_error",
			fmt.Sprintf("invalid isbn %q: %s", body.ISBN, parsed.Reason))
		return
	}

	searchID := uuid.NewString()
	h.jobs.start(searchID, body.ISBN)

	go func() {
		result, err := h.ctrl.Search(context.Background(), parsed.ISBN13, searchID)
		h.jobs.complete(searchID, result, err)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"searchId": searchID, "status": "pending"})
}

// getSearchByID handles GET /search/{searchId}.
func (h *handler) getSearchByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("searchId")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "searchId must be a UUID")
		return
	}

	job, ok := h.jobs.get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	if !job.done {
		writeJSON(w, http.StatusOK, map[string]string{"searchId": id, "status": "pending"})
		return
	}
	if job.err != nil {
		writeError(w, http.StatusInternalServerError, "search_error", job.err.Error())
		return
	}

	writeJSON(w, http.StatusOK, newSearchResultResource(job.isbn, job.result))
}

// getLibraries handles GET /libraries: registry listing with credentials
// scrubbed.
func (h *handler) getLibraries(w http.ResponseWriter, r *http.Request) {
	systems := h.reg.Systems()
	out := make([]librarySystemResource, 0, len(systems))
	for _, s := range systems {
		out = append(out, newLibrarySystemResource(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// getLibraryByID handles GET /libraries/{id}.
func (h *handler) getLibraryByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, s := range h.reg.Systems() {
		if s.ID == id {
			writeJSON(w, http.StatusOK, newLibrarySystemResource(s))
			return
		}
	}
	http.NotFound(w, r)
}

// getHealth handles GET /health: a plain liveness probe.
func (h *handler) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getHealthSystems handles GET /health/systems: per-system health records.
func (h *handler) getHealthSystems(w http.ResponseWriter, _ *http.Request) {
	records := h.ht.All()
	out := make([]healthRecordResource, 0, len(records))
	for _, rec := range records {
		out = append(out, newHealthRecordResource(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// job is one in-flight or completed POST /search job.
type job struct {
	mu        sync.Mutex
	isbn      string
	result    coordinator.SearchResult
	err       error
	done      bool
	expiresAt time.Time
}

// jobStore tracks async search jobs keyed by searchId, evicting entries ttl
// after they complete (or after ttl if they never do).
type jobStore struct {
	ttl time.Duration

	mu   sync.Mutex
	jobs map[string]*job
}

func newJobStore(ttl time.Duration) *jobStore {
	return &jobStore{ttl: ttl, jobs: map[string]*job{}}
}

func (s *jobStore) start(id, rawISBN string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	s.jobs[id] = &job{isbn: rawISBN, expiresAt: time.Now().Add(s.ttl)}
}

func (s *jobStore) complete(id string, result coordinator.SearchResult, err error) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return
	}

	j.mu.Lock()
	j.result, j.err, j.done = result, err, true
	j.expiresAt = time.Now().Add(s.ttl)
	j.mu.Unlock()
}

func (s *jobStore) get(id string) (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *jobStore) evictLocked() {
	now := time.Now()
	for id, j := range s.jobs {
		j.mu.Lock()
		expired := now.After(j.expiresAt)
		j.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}
