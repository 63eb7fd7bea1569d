package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"fuelstack/internal/app"
	"fuelstack/internal/menu"
	"fuelstack/internal/metrics"
	"fuelstack/internal/optimizer"

	"go.uber.org/zap"
)

type optimizeRequest struct {
	DiningHallID int64    `json:"dining_hall_id" validate:"required,gt=0"`
	MealPeriod   string   `json:"meal_period" validate:"required"`
	Date         string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	CaloriesMin  *float64 `json:"calories_min" validate:"required,gte=0"`
	CaloriesMax  *float64 `json:"calories_max" validate:"required,gte=0"`
	ProteinMin   *float64 `json:"protein_min" validate:"omitempty,gte=0"`
	ProteinMax   *float64 `json:"protein_max" validate:"omitempty,gte=0"`
	FatMin       *float64 `json:"fat_min" validate:"omitempty,gte=0"`
	FatMax       *float64 `json:"fat_max" validate:"omitempty,gte=0"`
	CarbMin      *float64 `json:"carb_min" validate:"omitempty,gte=0"`
	CarbMax      *float64 `json:"carb_max" validate:"omitempty,gte=0"`
	SugarsMin    *float64 `json:"sugars_min" validate:"omitempty,gte=0"`
	SugarsMax    *float64 `json:"sugars_max" validate:"omitempty,gte=0"`
	SodiumMin    *float64 `json:"sodium_min" validate:"omitempty,gte=0"`
	SodiumMax    *float64 `json:"sodium_max" validate:"omitempty,gte=0"`
	Traits       []string `json:"traits" validate:"omitempty,dive,required"`
	Allergens    []string `json:"allergens" validate:"omitempty,dive,required"`
	Count        int      `json:"count" validate:"omitempty,min=1,max=50"`
}

func (r optimizeRequest) bounds() menu.NutrientBounds {
	b := menu.NutrientBounds{}
	set := func(n menu.Nutrient, min, max *float64) {
		if rg := (menu.Range{Min: min, Max: max}); rg.IsSet() {
			b[n] = rg
		}
	}
	set(menu.Calories, r.CaloriesMin, r.CaloriesMax)
	set(menu.Protein, r.ProteinMin, r.ProteinMax)
	set(menu.TotalFat, r.FatMin, r.FatMax)
	set(menu.Carbohydrate, r.CarbMin, r.CarbMax)
	set(menu.Sugars, r.SugarsMin, r.SugarsMax)
	set(menu.Sodium, r.SodiumMin, r.SodiumMax)
	return b
}

type ingestRequest struct {
	DiningHallID int64  `json:"dining_hall_id" validate:"gte=0"`
	Date         string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Refresh      bool   `json:"refresh"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := metrics.GetSysHealth(s.opts.DataPath, s.opts.DB)
	status := http.StatusOK
	if h.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handleHalls(w http.ResponseWriter, r *http.Request) {
	halls, err := s.app.Halls(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	if halls == nil {
		halls = []menu.Hall{}
	}
	writeJSON(w, http.StatusOK, halls)
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	period := r.URL.Query().Get("meal_period")
	if period == "" {
		writeError(w, http.StatusBadRequest, "meal_period is required")
		return
	}

	items, err := s.app.DefaultMenu(r.Context(), id, period)
	if err != nil {
		if errors.Is(err, menu.ErrHallNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.internalError(w, err)
		return
	}
	if items == nil {
		items = []menu.CandidateItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	set, err := s.app.Optimize(r.Context(), app.MealRequest{
		HallID:     req.DiningHallID,
		MealPeriod: req.MealPeriod,
		Date:       req.Date,
		Bounds:     req.bounds(),
		Traits:     req.Traits,
		Allergens:  req.Allergens,
		Count:      req.Count,
	})
	switch {
	case err == nil:
	case errors.Is(err, optimizer.ErrConfiguration):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, menu.ErrHallNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, optimizer.ErrEngine):
		s.logger.Error("optimization engine failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "optimization engine failed")
		return
	default:
		s.internalError(w, err)
		return
	}

	plans := set.Plans
	if plans == nil {
		plans = []optimizer.MealPlan{}
	}
	w.Header().Set("X-Run-ID", set.RunID)
	w.Header().Set("X-Stop-Reason", string(set.StopReason))
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := app.IngestOptions{Date: req.Date, Refresh: req.Refresh}
	var (
		reports []app.IngestReport
		err     error
	)
	if req.DiningHallID > 0 {
		var rep app.IngestReport
		rep, err = s.app.IngestHall(r.Context(), req.DiningHallID, opts)
		if err == nil {
			reports = []app.IngestReport{rep}
		}
	} else {
		reports, err = s.app.IngestAll(r.Context(), opts)
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reports)
	case errors.Is(err, app.ErrIngestionDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, menu.ErrHallNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("ingestion failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "reports": reports})
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
