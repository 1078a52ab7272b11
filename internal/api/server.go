// Package api exposes the operator HTTP surface: run triggers, call lookups,
// tag search, analytics and prompt management.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/adstia/call-tagging/internal/model"
	"github.com/adstia/call-tagging/internal/pipeline"
	"github.com/adstia/call-tagging/internal/scheduler"
	"github.com/adstia/call-tagging/internal/store"
	"github.com/adstia/call-tagging/internal/taxonomy"
)

// Store is the persistence surface the API needs.
type Store interface {
	GetCall(ctx context.Context, id int64) (*model.Call, error)
	GetAnalysis(ctx context.Context, callID int64) (*model.Analysis, error)
	InsertCalls(ctx context.Context, calls []model.Call) (int, error)
	TagDefinitions(ctx context.Context) ([]model.TagDefinition, error)
	TagStats(ctx context.Context, limit int) ([]model.TagStat, error)
	SearchByTier(ctx context.Context, tier int, tagValue string, limit int) ([]store.CallSummary, error)
	SearchSummaries(ctx context.Context, term string, limit int) ([]store.CallSummary, error)
	HighPriority(ctx context.Context, limit int) ([]store.CallSummary, error)
	Analytics(ctx context.Context, start, end time.Time) (json.RawMessage, error)
	ListPrompts(ctx context.Context, campaignID string) ([]model.Prompt, error)
	GetPrompt(ctx context.Context, id string) (*model.Prompt, error)
	CreatePromptVersion(ctx context.Context, p model.Prompt) (*model.Prompt, error)
	DeactivatePrompt(ctx context.Context, id string) error
}

// Runner executes one classification pass.
type Runner interface {
	Run(ctx context.Context) (*pipeline.PassResult, error)
}

// Server is the operator HTTP API.
type Server struct {
	store  Store
	runner Runner
	guard  *scheduler.Guard
}

// NewServer wires the API against the store and pass runner. The guard is
// shared with the cron scheduler so manual and scheduled runs contend for
// the same slot.
func NewServer(s Store, runner Runner, guard *scheduler.Guard) *Server {
	if guard == nil {
		guard = &scheduler.Guard{}
	}
	return &Server{store: s, runner: runner, guard: guard}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/runs", s.handleTriggerRun)
		r.Post("/process", s.handleProcess)
		r.Get("/calls/{id}", s.handleGetCall)
		r.Get("/analytics", s.handleAnalytics)
		r.Get("/high-priority", s.handleHighPriority)
		r.Get("/tags/stats", s.handleTagStats)
		r.Get("/tags/search", s.handleTagSearch)
		r.Get("/search", s.handleSummarySearch)
		r.Post("/transcripts/bulk", s.handleBulkTranscripts)

		r.Route("/prompts", func(r chi.Router) {
			r.Get("/", s.handleListPrompts)
			r.Post("/", s.handleCreatePrompt)
			r.Get("/{id}", s.handleGetPrompt)
			r.Delete("/{id}", s.handleDeactivatePrompt)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.guard.Running(),
	})
}

// handleTriggerRun starts a pass in the background. The run slot is claimed
// before responding so a racing second trigger gets a clean 409.
func (s *Server) handleTriggerRun(w http.ResponseWriter, _ *http.Request) {
	if !s.guard.TryAcquire() {
		writeError(w, http.StatusConflict, "a pass is already running")
		return
	}

	go func() {
		defer s.guard.Release()
		res, err := s.runner.Run(context.Background())
		if err != nil {
			zap.L().Error("triggered pass failed", zap.Error(err))
			return
		}
		zap.L().Info("triggered pass finished",
			zap.Int("saved", res.Saved),
			zap.Int("failed", res.Failed),
			zap.String("stop", res.Stop),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleProcess runs a pass synchronously and returns its summary.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if !s.guard.TryAcquire() {
		writeError(w, http.StatusConflict, "a pass is already running")
		return
	}
	defer s.guard.Release()

	res, err := s.runner.Run(r.Context())
	if err != nil {
		zap.L().Error("synchronous pass failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "pass failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGetCall returns a call with its analysis, tag ids expanded back to
// symbolic values for human consumption.
func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid call id")
		return
	}

	call, err := s.store.GetCall(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if call == nil {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}

	analysis, err := s.store.GetAnalysis(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	resp := map[string]any{"call": call}
	if analysis != nil {
		defs, err := s.store.TagDefinitions(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		vocab := taxonomy.NewVocabulary(defs)

		tiers := make(map[string][]string, model.TierCount)
		for n := 1; n <= model.TierCount; n++ {
			tiers["tier"+strconv.Itoa(n)] = taxonomy.Decode(*analysis.Tier(n), vocab)
		}
		resp["analysis"] = analysis
		resp["tags"] = tiers
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start date, want YYYY-MM-DD")
			return
		}
		start = t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end date, want YYYY-MM-DD")
			return
		}
		end = t.Add(24*time.Hour - time.Nanosecond)
	}

	report, err := s.store.Analytics(r.Context(), start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analytics failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(report) //nolint:errcheck
}

func (s *Server) handleHighPriority(w http.ResponseWriter, r *http.Request) {
	hits, err := s.store.HighPriority(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": hits, "count": len(hits)})
}

func (s *Server) handleTagStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.TagStats(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": stats, "count": len(stats)})
}

func (s *Server) handleTagSearch(w http.ResponseWriter, r *http.Request) {
	tier := queryInt(r, "tier", 0)
	value := r.URL.Query().Get("value")
	if tier < 1 || tier > model.TierCount || value == "" {
		writeError(w, http.StatusBadRequest, "tier (1-10) and value are required")
		return
	}

	hits, err := s.store.SearchByTier(r.Context(), tier, value, queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": hits, "count": len(hits)})
}

func (s *Server) handleSummarySearch(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	hits, err := s.store.SearchSummaries(r.Context(), term, queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": hits, "count": len(hits)})
}

func (s *Server) handleBulkTranscripts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Calls []model.Call `json:"calls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Calls) == 0 {
		writeError(w, http.StatusBadRequest, "calls is required")
		return
	}
	for _, c := range req.Calls {
		if c.CallerID == "" {
			writeError(w, http.StatusBadRequest, "every call needs a caller_id")
			return
		}
	}

	inserted, err := s.store.InsertCalls(r.Context(), req.Calls)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "insert failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"received": len(req.Calls),
		"inserted": inserted,
		"skipped":  len(req.Calls) - inserted,
	})
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.store.ListPrompts(r.Context(), r.URL.Query().Get("campaign_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts, "count": len(prompts)})
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPrompt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "prompt not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req model.Prompt
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CampaignID == "" || req.SystemPrompt == "" {
		writeError(w, http.StatusBadRequest, "campaign_id and system_prompt are required")
		return
	}

	p, err := s.store.CreatePromptVersion(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDeactivatePrompt(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeactivatePrompt(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "prompt not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "deactivate failed")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
	}
}
