package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.temporal.io/sdk/client"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/leowmjw/go-temporal-forecast/pkg/experiment"
	"github.com/leowmjw/go-temporal-forecast/pkg/forecast"
	"github.com/leowmjw/go-temporal-forecast/pkg/hcl"
	"github.com/leowmjw/go-temporal-forecast/pkg/temporal"
	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

const (
	maxObservationBody = 10 << 20
	maxExperimentBody  = 1 << 20
)

// Server represents the HTTP server for the forecasting service
type Server struct {
	logger         *slog.Logger
	temporalClient client.Client
	registry       *forecast.Registry
	decoder        *timeline.ObservationDecoder
	addr           string
	taskQueue      string
}

// NewServer creates a new HTTP server. An empty task queue means temporal.TaskQueue.
func NewServer(logger *slog.Logger, temporalClient client.Client, addr, taskQueue string) *Server {
	if taskQueue == "" {
		taskQueue = temporal.TaskQueue
	}
	return &Server{
		logger:         logger,
		temporalClient: temporalClient,
		registry:       forecast.DefaultRegistry(),
		decoder:        timeline.NewObservationDecoder(),
		addr:           addr,
		taskQueue:      taskQueue,
	}
}

// Handler returns the routes wrapped in the logging middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /series/{id}/observations", s.handleIngestObservations)
	mux.HandleFunc("POST /series/{id}/evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.loggingMiddleware(mux)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	s.logger.Info("Starting HTTP server", "addr", s.addr)

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Observation ingestion endpoint
func (s *Server) handleIngestObservations(w http.ResponseWriter, r *http.Request) {
	seriesID := r.PathValue("id")
	if seriesID == "" {
		s.respondError(w, http.StatusBadRequest, "series ID is required")
		return
	}

	var observations []json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxObservationBody)).Decode(&observations); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if len(observations) == 0 {
		s.respondError(w, http.StatusBadRequest, "at least one observation is required")
		return
	}

	records := make([][]byte, len(observations))
	for i, o := range observations {
		records[i] = []byte(o)
	}

	// reject bad batches before they reach the workflow
	if _, err := s.decoder.DecodeAll(records); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("Ingesting observations", "seriesID", seriesID, "count", len(records))

	workflowID := temporal.GenerateIngestionWorkflowID(seriesID)
	signal := temporal.ObservationSignal{Records: records}

	_, err := s.temporalClient.SignalWithStartWorkflow(
		r.Context(),
		workflowID,
		temporal.ObservationSignalName,
		signal,
		client.StartWorkflowOptions{
			ID:        workflowID,
			TaskQueue: s.taskQueue,
		},
		temporal.IngestionWorkflow,
		temporal.IngestionRequest{SeriesID: seriesID},
	)
	if err != nil {
		s.logger.Error("Failed to signal workflow", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to queue observations")
		return
	}

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":           "observations queued for ingestion",
		"series_id":         seriesID,
		"observation_count": len(records),
	})
}

// Evaluation endpoint; the body is an experiment in JSON or HCL
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	seriesID := r.PathValue("id")
	if seriesID == "" {
		s.respondError(w, http.StatusBadRequest, "series ID is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxExperimentBody)
	exp, err := s.parseExperiment(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	exp.SeriesID = seriesID

	if err := exp.Validate(s.registry); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("Starting evaluation", "seriesID", seriesID, "experiment", exp.Name, "strategies", len(exp.Strategies))

	workflowRun, err := s.temporalClient.ExecuteWorkflow(
		r.Context(),
		client.StartWorkflowOptions{
			ID:        temporal.GenerateEvaluationWorkflowID(seriesID),
			TaskQueue: s.taskQueue,
		},
		temporal.EvaluationWorkflow,
		temporal.EvaluationRequest{Experiment: *exp},
	)
	if err != nil {
		s.logger.Error("Failed to start evaluation workflow", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to start evaluation")
		return
	}

	var report *experiment.Report
	if err := workflowRun.Get(r.Context(), &report); err != nil {
		s.logger.Error("Evaluation workflow failed", "workflowID", workflowRun.GetID(), "error", err)
		if isInputError(err) {
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}

	s.logger.Info("Evaluation completed", "seriesID", seriesID, "report", report.ID, "best", report.Best)
	s.respondJSON(w, http.StatusOK, report)
}

// parseExperiment decodes the request body according to its content type
func (s *Server) parseExperiment(r *http.Request) (*experiment.Experiment, error) {
	contentType, err := hcl.DetectContentType(r)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	if contentType == hcl.ContentTypeHCL {
		exp, err := hcl.ParseExperiment(string(body))
		if err != nil {
			return nil, fmt.Errorf("invalid HCL body: %w", err)
		}
		return exp, nil
	}

	var exp experiment.Experiment
	if err := json.Unmarshal(body, &exp); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return &exp, nil
}

// isInputError reports whether a workflow failed on the data or experiment rather than the service.
// Every application error in the chain is checked, since wrapping adds outer ones.
func isInputError(err error) bool {
	for err != nil {
		var appErr *sdktemporal.ApplicationError
		if !errors.As(err, &appErr) {
			return false
		}
		switch appErr.Type() {
		case temporal.ErrTypeInvalidExperiment, temporal.ErrTypeInvalidObservation, temporal.ErrTypeUnusableSeries:
			return true
		}
		err = appErr.Unwrap()
	}
	return false
}

// Health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Middleware for request logging
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapper.statusCode,
			"duration", time.Since(start),
			"user_agent", r.UserAgent(),
		)
	})
}

// Response helpers
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.logger.Warn("HTTP error response", "status", status, "message", message)
	s.respondJSON(w, status, map[string]string{"error": message})
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
