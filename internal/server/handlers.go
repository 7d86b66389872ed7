package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mailsplit/mailsplit/internal/abtest"
	"github.com/mailsplit/mailsplit/internal/store"
)

type HealthResponse struct {
	Status        string `json:"status"`
	TestsCount    int    `json:"tests_count"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tests, err := s.store.ListTests(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		TestsCount:    len(tests),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

// CountersPayload is the batched-delta shape the delivery subsystem
// reports.
type CountersPayload struct {
	Sent         int64 `json:"sent"`
	Delivered    int64 `json:"delivered"`
	Opened       int64 `json:"opened"`
	Clicked      int64 `json:"clicked"`
	Unsubscribed int64 `json:"unsubscribed"`
	Bounced      int64 `json:"bounced"`
	Complained   int64 `json:"complained"`
}

func (p *CountersPayload) toCounters() store.Counters {
	return store.Counters{
		TotalSent:         p.Sent,
		TotalDelivered:    p.Delivered,
		TotalOpened:       p.Opened,
		TotalClicked:      p.Clicked,
		TotalUnsubscribed: p.Unsubscribed,
		TotalBounced:      p.Bounced,
		TotalComplained:   p.Complained,
	}
}

// EventRequest records either a single event by kind or a batched
// counter delta for one variant.
type EventRequest struct {
	VariantID string           `json:"variant_id"`
	Kind      string           `json:"kind,omitempty"`
	Counters  *CountersPayload `json:"counters,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// The delivery workers post from other origins
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.VariantID == "" {
		http.Error(w, "Missing variant_id", http.StatusBadRequest)
		return
	}

	var err error
	switch {
	case req.Counters != nil:
		err = s.engine.IncrementCounters(r.Context(), req.VariantID, req.Counters.toCounters())
		s.metrics.EventsRecorded.WithLabelValues("batch").Inc()
	case req.Kind != "":
		err = s.engine.RecordEvent(r.Context(), req.VariantID, store.EventKind(req.Kind))
		s.metrics.EventsRecorded.WithLabelValues(req.Kind).Inc()
	default:
		http.Error(w, "Need kind or counters", http.StatusBadRequest)
		return
	}

	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Variant not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, store.ErrInvalidConfiguration) {
			http.Error(w, "Invalid event kind", http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to record event", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type VariantPayload struct {
	Name         string            `json:"name"`
	Subject      string            `json:"subject"`
	Preheader    string            `json:"preheader,omitempty"`
	Body         string            `json:"body,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	TrafficShare float64           `json:"traffic_share"`
}

type CreateTestRequest struct {
	TestID string `json:"test_id"`
	Config struct {
		Name              string  `json:"name"`
		WinnerCriteria    string  `json:"winner_criteria"`
		ConfidenceLevel   float64 `json:"confidence_level"`
		TestDurationHours int     `json:"test_duration_hours,omitempty"`
		MinimumSampleSize int     `json:"minimum_sample_size,omitempty"`
	} `json:"config"`
	Variants []VariantPayload `json:"variants"`
}

type VariantResponse struct {
	ID           string  `json:"id"`
	TestID       string  `json:"test_id"`
	Name         string  `json:"name"`
	TrafficShare float64 `json:"traffic_share"`
}

func (s *Server) handleTests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.requireToken(s.handleCreateTest)(w, r)
	case http.MethodGet:
		s.handleListTests(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	var req CreateTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.TestID == "" {
		http.Error(w, "Missing test_id", http.StatusBadRequest)
		return
	}

	cfg := store.TestConfig{
		Name:              req.Config.Name,
		WinnerCriteria:    store.WinnerCriteria(req.Config.WinnerCriteria),
		ConfidenceLevel:   req.Config.ConfidenceLevel,
		TestDurationHours: req.Config.TestDurationHours,
		MinimumSampleSize: req.Config.MinimumSampleSize,
	}

	variants := make([]store.VariantConfig, len(req.Variants))
	for i, v := range req.Variants {
		variants[i] = store.VariantConfig{
			Name: v.Name,
			Content: store.Content{
				Subject:      v.Subject,
				Preheader:    v.Preheader,
				Body:         v.Body,
				TemplateData: v.TemplateData,
			},
			TrafficShare: v.TrafficShare,
		}
	}

	created, err := s.engine.CreateTest(r.Context(), req.TestID, cfg, variants)
	if err != nil {
		if errors.Is(err, store.ErrInvalidConfiguration) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to create test", http.StatusInternalServerError)
		return
	}
	s.metrics.TestsCreated.Inc()

	resp := make([]VariantResponse, len(created))
	for i, v := range created {
		resp[i] = VariantResponse{ID: v.ID, TestID: v.TestID, Name: v.Name, TrafficShare: v.TrafficShare}
	}
	writeJSON(w, http.StatusCreated, resp)
}

type TestSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	WinnerCriteria string `json:"winner_criteria"`
	CreatedAt      int64  `json:"created_at"`
}

func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := s.store.ListTests(r.Context())
	if err != nil {
		http.Error(w, "Failed to list tests", http.StatusInternalServerError)
		return
	}

	resp := make([]TestSummary, 0, len(tests))
	for _, t := range tests {
		resp = append(resp, TestSummary{
			ID:             t.ID,
			Name:           t.Config.Name,
			WinnerCriteria: string(t.Config.WinnerCriteria),
			CreatedAt:      t.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTestSubpath routes /api/tests/{id}/results and
// /api/tests/{id}/rollout.
func (s *Server) handleTestSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tests/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	testID, action := parts[0], parts[1]

	switch action {
	case "results":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleResults(w, r, testID)
	case "rollout":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.requireToken(func(w http.ResponseWriter, r *http.Request) {
			s.handleRollout(w, r, testID)
		})(w, r)
	default:
		http.NotFound(w, r)
	}
}

type SignificanceResponse struct {
	IsSignificant   bool    `json:"is_significant"`
	PValue          float64 `json:"p_value"`
	ZScore          float64 `json:"z_score"`
	ConfidenceLevel float64 `json:"confidence_level"`
}

type VariantResultResponse struct {
	VariantID      string  `json:"variant_id"`
	Name           string  `json:"name"`
	TotalSent      int64   `json:"total_sent"`
	TotalOpened    int64   `json:"total_opened"`
	TotalClicked   int64   `json:"total_clicked"`
	OpenRate       float64 `json:"open_rate"`
	ClickRate      float64 `json:"click_rate"`
	ConversionRate float64 `json:"conversion_rate"`
	CILower        float64 `json:"ci_lower"`
	CIUpper        float64 `json:"ci_upper"`
	IsWinner       bool    `json:"is_winner"`
}

type WinnerResponse struct {
	VariantID          string  `json:"variant_id"`
	MetricValue        float64 `json:"metric_value"`
	ImprovementPercent float64 `json:"improvement_percent"`
}

type ResultsResponse struct {
	TestID          string                  `json:"test_id"`
	Criteria        string                  `json:"criteria"`
	IsComplete      bool                    `json:"is_complete"`
	HasWinner       bool                    `json:"has_winner"`
	Winner          *WinnerResponse         `json:"winner,omitempty"`
	Variants        []VariantResultResponse `json:"variants"`
	Significance    SignificanceResponse    `json:"significance"`
	Recommendations []string                `json:"recommendations"`
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request, testID string) {
	res, err := s.engine.Results(r.Context(), testID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.metrics.Evaluations.Inc()

	writeJSON(w, http.StatusOK, toResultsResponse(res))
}

type RolloutResponse struct {
	Success  bool   `json:"success"`
	WinnerID string `json:"winner_id,omitempty"`
	Message  string `json:"message"`
}

func (s *Server) handleRollout(w http.ResponseWriter, r *http.Request, testID string) {
	outcome, err := s.engine.DeclareWinnerAndSend(r.Context(), testID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if outcome.Success {
		s.metrics.Rollouts.WithLabelValues("rolled_out").Inc()
	} else {
		s.metrics.Rollouts.WithLabelValues("no_winner").Inc()
	}

	writeJSON(w, http.StatusOK, RolloutResponse{
		Success:  outcome.Success,
		WinnerID: outcome.WinnerID,
		Message:  outcome.Message,
	})
}

func toResultsResponse(res *abtest.Results) ResultsResponse {
	resp := ResultsResponse{
		TestID:     res.TestID,
		Criteria:   string(res.Criteria),
		IsComplete: res.IsComplete,
		HasWinner:  res.HasWinner,
		Significance: SignificanceResponse{
			IsSignificant:   res.Significance.IsSignificant,
			PValue:          res.Significance.PValue,
			ZScore:          res.Significance.ZScore,
			ConfidenceLevel: res.Significance.Confidence,
		},
		Recommendations: res.Recommendations,
	}
	if res.Winner != nil {
		resp.Winner = &WinnerResponse{
			VariantID:          res.Winner.VariantID,
			MetricValue:        res.Winner.MetricValue,
			ImprovementPercent: res.Winner.ImprovementPercent,
		}
	}
	for _, v := range res.Variants {
		resp.Variants = append(resp.Variants, VariantResultResponse{
			VariantID:      v.VariantID,
			Name:           v.Name,
			TotalSent:      v.Counters.TotalSent,
			TotalOpened:    v.Counters.TotalOpened,
			TotalClicked:   v.Counters.TotalClicked,
			OpenRate:       v.OpenRate,
			ClickRate:      v.ClickRate,
			ConversionRate: v.ConversionRate,
			CILower:        v.CILower,
			CIUpper:        v.CIUpper,
			IsWinner:       v.IsWinner,
		})
	}
	return resp
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, abtest.ErrTestNotFound):
		http.Error(w, "Test not found", http.StatusNotFound)
	case errors.Is(err, abtest.ErrNotAnABTest):
		http.Error(w, "Campaign is not an A/B test", http.StatusBadRequest)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
