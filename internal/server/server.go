// Package server exposes the contest read model and actions over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/internal/ledger"
	"github.com/smartdevs17/content-rewards/internal/metrics"
	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/internal/notification"
	"github.com/smartdevs17/content-rewards/internal/orchestrator"
	"github.com/smartdevs17/content-rewards/internal/receipt"
	"github.com/smartdevs17/content-rewards/internal/storage"
	"github.com/smartdevs17/content-rewards/internal/validation"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// Dependencies are the components the server exposes. Ledger, Journal,
// Notifier and Metrics are optional.
type Dependencies struct {
	Orchestrator *orchestrator.Orchestrator
	Session      *orchestrator.Session
	Ledger       ledger.Manager
	Journal      storage.Journal
	Notifier     notification.Notifier
	Metrics      *metrics.Manager
}

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	orch           *orchestrator.Orchestrator
	session        *orchestrator.Session
	ledger         ledger.Manager
	journal        storage.Journal
	notifier       notification.Notifier
	metricsManager *metrics.Manager
	logger         *logrus.Entry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg *config.ServerConfig, deps Dependencies) *HTTPServer {
	s := &HTTPServer{
		config:         cfg,
		orch:           deps.Orchestrator,
		session:        deps.Session,
		ledger:         deps.Ledger,
		journal:        deps.Journal,
		notifier:       deps.Notifier,
		metricsManager: deps.Metrics,
		logger:         utils.ComponentLogger("http_server"),
		stopCh:         make(chan struct{}),
	}

	s.setupRouter()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", s.statusHandler).Methods("GET")
	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
	}
	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler())
	}

	// Reads
	api.HandleFunc("/contests", s.listContestsHandler).Methods("GET")
	api.HandleFunc("/contests/{id:[0-9]+}", s.getContestHandler).Methods("GET")
	api.HandleFunc("/contests/{id:[0-9]+}/submissions", s.listSubmissionsHandler).Methods("GET")
	api.HandleFunc("/contests/{id:[0-9]+}/submissions/{wallet}", s.getUserSubmissionHandler).Methods("GET")
	api.HandleFunc("/contests/{id:[0-9]+}/winners", s.listWinnersHandler).Methods("GET")
	api.HandleFunc("/contests/{id:[0-9]+}/can-close", s.canCloseHandler).Methods("GET")
	api.HandleFunc("/refocus", s.refocusHandler).Methods("POST")

	// Actions
	api.HandleFunc("/contests", s.createContestHandler).Methods("POST")
	api.HandleFunc("/contests/{id:[0-9]+}/submissions", s.submitContentHandler).Methods("POST")
	api.HandleFunc("/contests/{id:[0-9]+}/close", s.closeContestHandler).Methods("POST")

	// Journal
	api.HandleFunc("/journal", s.listJournalHandler).Methods("GET")
	api.HandleFunc("/reconcile", s.reconcileHandler).Methods("POST")
}

// Handler returns the routed handler
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
		"configured":      s.session.Configured(),
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.updateComponentHealth()
		go s.componentHealthUpdater()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithField("error", err).Error("HTTP server error")
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")
	s.stopOnce.Do(func() { close(s.stopCh) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) componentHealthUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.metricsManager.UpdateSystemMetrics()
			s.updateComponentHealth()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HTTPServer) updateComponentHealth() {
	prom := s.metricsManager.GetPrometheusMetrics()
	for component, err := range s.componentErrors(context.Background()) {
		prom.UpdateComponentHealth(component, err == nil)
	}
}

// componentErrors checks every wired component; a nil error means healthy
func (s *HTTPServer) componentErrors(ctx context.Context) map[string]error {
	out := make(map[string]error)

	if s.ledger != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		out["ledger"] = s.ledger.HealthCheck(ctx)
		cancel()
	}
	if s.journal != nil {
		out["journal"] = s.journal.Ping()
	}
	if s.notifier != nil {
		if s.notifier.IsHealthy() {
			out["notification"] = nil
		} else {
			out["notification"] = errors.New("notification manager not running")
		}
	}
	return out
}

// Status and health

func (s *HTTPServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"configured":       s.session.Configured(),
		"endpoint":         s.session.Endpoint(),
		"contract_address": s.session.ContractAddress(),
		"timestamp":        time.Now().UTC().Format(time.RFC3339Nano),
	}
	if account, ok := s.session.Wallet(); ok {
		resp["wallet"] = account.Hex()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := make(map[string]interface{})
	for component, err := range s.componentErrors(r.Context()) {
		entry := map[string]interface{}{"healthy": err == nil}
		if err != nil {
			entry["error"] = err.Error()
			if component != "notification" {
				status = http.StatusServiceUnavailable
			}
		}
		components[component] = entry
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	resp := map[string]interface{}{
		"status":     state,
		"configured": s.session.Configured(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"components": components,
	}
	if s.ledger != nil {
		resp["ledger"] = s.ledger.Stats()
	}
	s.writeJSON(w, status, resp)
}

// Read handlers

func (s *HTTPServer) listContestsHandler(w http.ResponseWriter, r *http.Request) {
	contests, err := s.orch.Contests(r.Context(), s.session)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"contests": contests,
		"count":    len(contests),
	})
}

func (s *HTTPServer) getContestHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.contestID(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("detail") == "true" {
		detail, err := s.orch.Detail(r.Context(), s.session, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, detail)
		return
	}

	contest, err := s.orch.Contest(r.Context(), s.session, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, contest)
}

func (s *HTTPServer) listSubmissionsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.contestID(w, r)
	if !ok {
		return
	}
	submissions, err := s.orch.Submissions(r.Context(), s.session, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"contest_id":  id,
		"submissions": submissions,
		"count":       len(submissions),
	})
}

func (s *HTTPServer) getUserSubmissionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.contestID(w, r)
	if !ok {
		return
	}
	account, err := utils.ParseAddress(mux.Vars(r)["wallet"])
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	projection, err := s.orch.UserSubmission(r.Context(), s.session, id, account)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, projection)
}

func (s *HTTPServer) listWinnersHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.contestID(w, r)
	if !ok {
		return
	}
	winners, err := s.orch.Winners(r.Context(), s.session, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"contest_id": id,
		"winners":    winners,
		"count":      len(winners),
	})
}

func (s *HTTPServer) canCloseHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.contestID(w, r)
	if !ok {
		return
	}
	can, err := s.orch.CanClose(r.Context(), s.session, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"contest_id": id, "can_close": can})
}

func (s *HTTPServer) refocusHandler(w http.ResponseWriter, r *http.Request) {
	contests, err := s.orch.Refocus(r.Context(), s.session)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"contests": contests,
		"count":    len(contests),
	})
}

// Action handlers

// CreateContestRequest is the body of POST /contests
type CreateContestRequest struct {
	PlatformPattern   string `json:"platform_pattern"`
	RequiredTopic     string `json:"required_topic"`
	RewardDescription string `json:"reward_description"`
	MaxWinners        int64  `json:"max_winners"`
	Deadline          int64  `json:"deadline"` // unix seconds, 0 = none
}

// SubmitContentRequest is the body of POST /contests/{id}/submissions
type SubmitContentRequest struct {
	ContentURL string `json:"content_url"`
}

func (s *HTTPServer) createContestHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateContestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}

	params := models.CreateContestParams{
		PlatformPattern:   req.PlatformPattern,
		RequiredTopic:     req.RequiredTopic,
		RewardDescription: req.RewardDescription,
		MaxWinners:        req.MaxWinners,
	}
	if req.Deadline > 0 {
		params.Deadline = time.Unix(req.Deadline, 0)
	}

	outcome, err := s.orch.CreateContest(r.Context(), s.session, params)
	s.writeOutcome(w, outcome, err)
}

func (s *HTTPServer) submitContentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.contestID(w, r)
	if !ok {
		return
	}
	var req SubmitContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}

	outcome, err := s.orch.SubmitContent(r.Context(), s.session, id, req.ContentURL)
	s.writeOutcome(w, outcome, err)
}

func (s *HTTPServer) closeContestHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.contestID(w, r)
	if !ok {
		return
	}

	var (
		outcome *orchestrator.Outcome
		err     error
	)
	if r.URL.Query().Get("force") == "true" {
		outcome, err = s.orch.ForceCloseContest(r.Context(), s.session, id)
	} else {
		outcome, err = s.orch.CloseContest(r.Context(), s.session, id)
	}
	s.writeOutcome(w, outcome, err)
}

// Journal handlers

func (s *HTTPServer) listJournalHandler(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeAppError(w, utils.NewAppError(utils.ErrCodeConfiguration, "Transaction journal is not enabled"))
		return
	}

	filter := storage.JournalFilter{Wallet: r.URL.Query().Get("wallet"), Limit: 50}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if states := r.URL.Query().Get("state"); states != "" {
		for _, state := range strings.Split(states, ",") {
			filter.States = append(filter.States, storage.EntryState(strings.TrimSpace(state)))
		}
	}

	entries, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	stats, err := s.journal.Stats(r.Context())
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
		"stats":   stats,
	})
}

func (s *HTTPServer) reconcileHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.orch.Reconcile(r.Context(), s.session)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// Helper methods

func (s *HTTPServer) contestID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid contest id", err)
		return 0, false
	}
	return id, true
}

// writeOutcome answers an action. An unknown outcome is accepted-for-processing,
// not a failure.
func (s *HTTPServer) writeOutcome(w http.ResponseWriter, outcome *orchestrator.Outcome, err error) {
	var timeout *receipt.TimeoutError
	switch {
	case errors.As(err, &timeout):
		s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"outcome":     "unknown",
			"message":     "Transaction status unknown, refresh to check",
			"tx_hash":     timeout.Handle.Hash.Hex(),
			"attempts":    timeout.Attempts,
			"last_status": timeout.Last,
		})
	case err != nil:
		s.writeAppError(w, err)
	default:
		s.writeJSON(w, http.StatusOK, outcome)
	}
}

// writeAppError maps an error code to an HTTP status
func (s *HTTPServer) writeAppError(w http.ResponseWriter, err error) {
	code := utils.CodeOf(err)

	var status int
	switch code {
	case utils.ErrCodeValidation:
		status = http.StatusUnprocessableEntity
	case utils.ErrCodeConfiguration:
		status = http.StatusServiceUnavailable
	case utils.ErrCodeTransport, utils.ErrCodeDecode:
		status = http.StatusBadGateway
	case utils.ErrCodeLedgerReject, utils.ErrCodeDuplicateTx:
		status = http.StatusConflict
	case utils.ErrCodeNotFound:
		status = http.StatusNotFound
	case utils.ErrCodeCancelled:
		status = http.StatusRequestTimeout
	default:
		status = http.StatusInternalServerError
	}

	resp := map[string]interface{}{
		"error":     err.Error(),
		"code":      code,
		"status":    status,
		"timestamp": time.Now().UTC(),
	}
	if rule, ok := validation.RuleOf(err); ok {
		resp["rule"] = rule
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithFields(logrus.Fields{"status": status, "code": code, "error": err}).Error("HTTP error")
	}
	s.writeJSON(w, status, resp)
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().UTC(),
	}
	if err != nil {
		errorResponse["details"] = err.Error()
	}
	s.writeJSON(w, status, errorResponse)
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithField("error", err).Error("Failed to encode JSON response")
	}
}
