package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"engage/internal/aggregator"
	"engage/internal/ingest"
	"engage/internal/registry"
	"engage/pkg/interfaces"
	"engage/pkg/types"
)

// Server is the HTTP surface: sample ingestion, snapshot reads, session
// listing, and health. No business logic lives here, only HTTP handling and
// JSON serialization.
type Server struct {
	ingestor *ingest.Ingestor
	registry *registry.Registry
	agg      *aggregator.Aggregator
	sink     interfaces.SampleSink
	router   *http.ServeMux
}

// NewServer creates the API server and sets up routing.
func NewServer(ing *ingest.Ingestor, reg *registry.Registry, agg *aggregator.Aggregator, sink interfaces.SampleSink) *Server {
	s := &Server{
		ingestor: ing,
		registry: reg,
		agg:      agg,
		sink:     sink,
		router:   http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/emotion/analyze", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleAnalyze))))
	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AnalyzeRequest carries one emotion sample. Clients send either a
// pre-classified emotion label or an opaque image payload for the external
// classifier.
type AnalyzeRequest struct {
	SessionID string `json:"session_id"`
	StudentID string `json:"student_id"`
	Emotion   string `json:"emotion,omitempty"`
	Image     string `json:"image,omitempty"`
}

type AnalyzeResponse struct {
	Status  string        `json:"status"`
	Emotion types.Emotion `json:"emotion"`
}

// SnapshotResponse is the snapshot endpoint body. Status is "ok" with a
// populated distribution, or "no_data" for sessions without samples in the
// current window.
type SnapshotResponse struct {
	Status          string              `json:"status"`
	Distribution    *types.Distribution `json:"distribution,omitempty"`
	EngagementScore int                 `json:"engagement_score,omitempty"`
	SampleCount     int                 `json:"sample_count,omitempty"`
}

type SessionSummary struct {
	ID           string `json:"id"`
	StudentCount int    `json:"student_count"`
	FacultyCount int    `json:"faculty_count"`
}

type ListSessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
	Aggregator  map[string]int `json:"aggregator"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleAnalyze accepts POST /api/emotion/analyze submissions.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	emotion, err := s.ingestor.Submit(r.Context(), &ingest.SubmitRequest{
		SessionID:    req.SessionID,
		StudentID:    req.StudentID,
		EmotionLabel: req.Emotion,
		ImagePayload: []byte(req.Image),
	})
	if err != nil {
		s.sendError(w, err.Error(), statusForSubmitError(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(AnalyzeResponse{Status: "success", Emotion: emotion})
}

// statusForSubmitError maps the ingestion error taxonomy to HTTP codes.
func statusForSubmitError(err error) int {
	switch {
	case errors.Is(err, ingest.ErrMissingSessionID),
		errors.Is(err, ingest.ErrMissingStudentID),
		errors.Is(err, ingest.ErrMissingEmotion),
		errors.Is(err, types.ErrInvalidSessionID),
		errors.Is(err, types.ErrInvalidStudentID),
		errors.Is(err, types.ErrInvalidEmotion):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ingest.ErrClassificationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleSessions lists live sessions with member counts.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ids := s.registry.SessionIDs()
	summaries := make([]SessionSummary, 0, len(ids))
	for _, id := range ids {
		summaries = append(summaries, SessionSummary{
			ID:           id,
			StudentCount: s.registry.MemberCount(id, types.RoleStudent),
			FacultyCount: s.registry.MemberCount(id, types.RoleFaculty),
		})
	}

	_ = json.NewEncoder(w).Encode(ListSessionsResponse{Sessions: summaries})
}

// handleSessionByID serves GET /api/sessions/{id}/snapshot.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "snapshot" {
		s.sendError(w, "Not found", http.StatusNotFound)
		return
	}
	sessionID := parts[0]

	snapshot, err := s.agg.Snapshot(sessionID)
	if err != nil {
		if errors.Is(err, aggregator.ErrNoData) {
			// No samples in the window: the caller gets an explicit
			// indicator, never a fabricated distribution.
			_ = json.NewEncoder(w).Encode(SnapshotResponse{Status: "no_data"})
			return
		}
		s.sendError(w, "Failed to compute snapshot", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(SnapshotResponse{
		Status:          "ok",
		Distribution:    &snapshot.Distribution,
		EngagementScore: snapshot.EngagementScore,
		SampleCount:     snapshot.SampleCount,
	})
}

// healthCheck reports component status. The archive sink being down makes
// the report unhealthy but never affects ingestion itself.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if s.sink != nil {
		if err := s.sink.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			dbStatus = "error: " + err.Error()
		}
	} else {
		dbStatus = "disabled"
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.GetStats(),
		Aggregator:  s.agg.GetStats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
