package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mrh-2003/aml-system/internal/detect"
	"github.com/mrh-2003/aml-system/internal/domain"
	"github.com/mrh-2003/aml-system/internal/graph"
	"github.com/mrh-2003/aml-system/internal/report"
)

// AnalysisRequest is the request body for POST /cases/{id}/analyses/{detector}.
// The filter narrows the case scope; params override the configured detector
// defaults, absent fields keep them.
type AnalysisRequest struct {
	Filter *domain.Filter  `json:"filter,omitempty"`
	Params *AnalysisParams `json:"params,omitempty"`
}

// AnalysisParams carries per-request detector overrides. Pointer fields
// distinguish "absent" from zero.
type AnalysisParams struct {
	// Shared
	TopN *int `json:"topN,omitempty"`

	// top_dimension
	Dimension string `json:"dimension,omitempty"`

	// temporal_burst
	WindowHours *int     `json:"windowHours,omitempty"`
	Threshold   *int     `json:"threshold,omitempty"`
	AmountMax   *float64 `json:"amountMax,omitempty"`
	Channels    []string `json:"channels,omitempty"`

	// mirror_match
	ToleranceHours *float64 `json:"toleranceHours,omitempty"`

	// account_lifetime
	MonthsMax *float64 `json:"monthsMax,omitempty"`

	// text_mining and shared_vendors
	MinClients *int     `json:"minClients,omitempty"`
	Exclusions []string `json:"exclusions,omitempty"`

	// pass_through and bridge_accounts
	MatchRatio  *float64 `json:"matchRatio,omitempty"`
	MinInflow   *float64 `json:"minInflow,omitempty"`
	NetMax      *float64 `json:"netMax,omitempty"`
	TurnoverMin *float64 `json:"turnoverMin,omitempty"`

	// segment_volume and digital_smurfing
	MinAmount *float64 `json:"minAmount,omitempty"`
	FlagCount *int     `json:"flagCount,omitempty"`

	// atm_runs
	MinOps *int `json:"minOps,omitempty"`

	// keyword_screen
	Keywords         []string `json:"keywords,omitempty"`
	ActivityPatterns []string `json:"activityPatterns,omitempty"`

	// geo_profile
	Hotspots []string `json:"hotspots,omitempty"`
}

// AnalysisResponse is the JSON shape of one detector run.
type AnalysisResponse struct {
	Detector string        `json:"detector"`
	CaseID   int64         `json:"caseId"`
	RowCount int           `json:"rowCount"`
	Table    *detect.Table `json:"table"`

	// Pivot is set by the matrix detectors (branch_cash, collusion_matrix).
	Pivot *detect.Table `json:"pivot,omitempty"`

	// Layout is set by mirror_match: spring-layout coordinates per client.
	Layout map[string]graph.Point `json:"layout,omitempty"`

	Dropped int `json:"dropped,omitempty"`
}

// RunAnalysis handles POST /cases/{id}/analyses/{detector}. With
// ?format=xlsx the detector table is returned as a workbook instead of JSON.
func (h *Handler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}

	detector := chi.URLParam(r, "detector")
	if !detect.Known(detector) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown detector %q", detector))
		return
	}

	var req AnalysisRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON request body")
			return
		}
	}

	rows, err := h.scope.Scoped(ctx, caseID, req.Filter)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidFilter) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("failed to scope case", "id", caseID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to scope case")
		return
	}

	resp := h.runDetector(detector, caseID, rows, req.Params)

	h.publish(ctx, domain.TopicAnalysisComplete, map[string]any{
		"detector": detector,
		"caseId":   caseID,
		"findings": resp.Table.Len(),
	})
	slog.Info("analysis completed",
		"detector", detector,
		"case_id", caseID,
		"rows_in", len(rows),
		"findings", resp.Table.Len(),
	)

	if r.URL.Query().Get("format") == "xlsx" {
		buf, err := report.ExportTable(resp.Table)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to export table")
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", detector+".xlsx"))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// runDetector dispatches one named detector over the scoped rows, merging
// request overrides into the configured defaults.
func (h *Handler) runDetector(detector string, caseID int64, rows []*domain.Transaction, p *AnalysisParams) *AnalysisResponse {
	if p == nil {
		p = &AnalysisParams{}
	}
	d := h.detection

	topN := d.TopN
	if p.TopN != nil {
		topN = *p.TopN
	}

	resp := &AnalysisResponse{Detector: detector, CaseID: caseID, RowCount: len(rows)}

	switch detector {
	case detect.DetectorTopDimension:
		resp.Table = detect.TopDimension(rows, dimensionByName(p.Dimension), topN)

	case detect.DetectorKeywordScreen:
		patterns := d.ActivityPatterns
		if len(p.ActivityPatterns) > 0 {
			patterns = p.ActivityPatterns
		}
		keywords := d.Keywords
		if len(p.Keywords) > 0 {
			keywords = p.Keywords
		}
		resp.Table, _ = detect.KeywordScreen(rows, patterns, keywords)

	case detect.DetectorSegmentVolume:
		min := d.SegmentMinAmount
		if p.MinAmount != nil {
			min = *p.MinAmount
		}
		resp.Table = detect.SegmentVolume(rows, min)

	case detect.DetectorCashRatio:
		resp.Table = detect.CashRatio(rows)

	case detect.DetectorBranchCash:
		resp.Table, resp.Pivot = detect.BranchCash(rows, topN)

	case detect.DetectorDigitalSmurfing:
		max := d.SmurfAmountMax
		if p.AmountMax != nil {
			max = *p.AmountMax
		}
		flag := d.SmurfFlagCount
		if p.FlagCount != nil {
			flag = *p.FlagCount
		}
		resp.Table = detect.DigitalSmurfing(rows, max, flag)

	case detect.DetectorATMRuns:
		minOps := d.ATMMinOps
		if p.MinOps != nil {
			minOps = *p.MinOps
		}
		resp.Table = detect.ATMRuns(rows, minOps)

	case detect.DetectorOperatorPref:
		resp.Table = detect.OperatorPreference(rows, topN)

	case detect.DetectorSharedVendors:
		stats := detect.TextMine(rows, h.textConfig(p, topN))
		resp.Table = detect.SharedVendorsTable(stats)

	case detect.DetectorLifetime:
		months := d.LifetimeMonthsMax
		if p.MonthsMax != nil {
			months = *p.MonthsMax
		}
		res := detect.Lifetimes(rows, detect.LifetimeConfig{MonthsMax: months})
		resp.Table = res.Table()
		resp.Dropped = res.Dropped

	case detect.DetectorPassThrough:
		cfg := detect.PassThroughConfig{MatchRatio: d.PassMatchRatio, MinInflow: d.PassMinInflow}
		if p.MatchRatio != nil {
			cfg.MatchRatio = *p.MatchRatio
		}
		if p.MinInflow != nil {
			cfg.MinInflow = *p.MinInflow
		}
		resp.Table = detect.PassThroughTable(detect.PassThrough(rows, cfg))

	case detect.DetectorBrandBehavior:
		resp.Table = detect.BrandBehavior(rows)

	case detect.DetectorCrimeCurrency:
		resp.Table = detect.CrimeCurrency(rows)

	case detect.DetectorMirrorMatch:
		tolerance := d.MirrorToleranceHours
		if p.ToleranceHours != nil {
			tolerance = *p.ToleranceHours
		}
		res := detect.MirrorMatches(rows, detect.MirrorConfig{ToleranceHours: tolerance})
		resp.Table = res.Table()
		resp.Layout = res.Layout()
		resp.Dropped = res.Dropped

	case detect.DetectorBridge:
		cfg := detect.BridgeConfig{NetMax: d.BridgeNetMax, TurnoverMin: d.BridgeTurnoverMin}
		if p.NetMax != nil {
			cfg.NetMax = *p.NetMax
		}
		if p.TurnoverMin != nil {
			cfg.TurnoverMin = *p.TurnoverMin
		}
		resp.Table = detect.BridgeTable(detect.Bridges(rows, cfg))

	case detect.DetectorCollusion:
		resp.Table, resp.Pivot = detect.CollusionMatrix(rows, topN)

	case detect.DetectorBurst:
		cfg := detect.BurstConfig{
			WindowHours: d.BurstWindowHours,
			Threshold:   d.BurstThreshold,
			AmountMax:   d.BurstAmountMax,
			Channels:    d.BurstChannels,
		}
		if p.WindowHours != nil {
			cfg.WindowHours = *p.WindowHours
		}
		if p.Threshold != nil {
			cfg.Threshold = *p.Threshold
		}
		if p.AmountMax != nil {
			cfg.AmountMax = *p.AmountMax
		}
		if len(p.Channels) > 0 {
			cfg.Channels = p.Channels
		}
		res := detect.Bursts(rows, cfg)
		resp.Table = res.Table()
		resp.Dropped = res.Dropped

	case detect.DetectorGeoProfile:
		hotspots := d.Hotspots
		if len(p.Hotspots) > 0 {
			hotspots = p.Hotspots
		}
		resp.Table = detect.GeoProfile(rows, hotspots)

	case detect.DetectorTextMining:
		stats := detect.TextMine(rows, h.textConfig(p, topN))
		resp.Table = detect.TextMineTable(stats)
	}

	return resp
}

func (h *Handler) textConfig(p *AnalysisParams, topN int) detect.TextMineConfig {
	cfg := detect.TextMineConfig{
		MinClients: h.detection.TextMinClients,
		TopN:       h.detection.TextTopN,
		Exclusions: h.detection.TextExclusions,
	}
	if p.MinClients != nil {
		cfg.MinClients = *p.MinClients
	}
	if p.TopN != nil {
		cfg.TopN = topN
	}
	if len(p.Exclusions) > 0 {
		cfg.Exclusions = p.Exclusions
	}
	return cfg
}

// dimensionByName maps the request's dimension name onto a grouping
// dimension; the channel breakdown is the default.
func dimensionByName(name string) detect.Dimension {
	switch name {
	case "activity":
		return detect.DimActivity
	case "branch":
		return detect.DimBranch
	case "op_group":
		return detect.DimOpGroup
	case "operator":
		return detect.DimOperator
	case "segment":
		return detect.DimSegment
	case "client":
		return detect.DimClient
	default:
		return detect.DimChannel
	}
}

// ScreenRequest is the request body for POST /cases/{id}/screen: an ad-hoc
// CEL expression evaluated over the scoped rows.
type ScreenRequest struct {
	Expression string         `json:"expression"`
	Filter     *domain.Filter `json:"filter,omitempty"`
}

// Screen handles POST /cases/{id}/screen.
func (h *Handler) Screen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}

	var req ScreenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.Expression == "" {
		writeError(w, http.StatusBadRequest, "expression is required")
		return
	}

	rows, err := h.scope.Scoped(ctx, caseID, req.Filter)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidFilter) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("failed to scope case", "id", caseID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to scope case")
		return
	}

	matched, err := h.engine.Screen(ctx, rows, req.Expression)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expression: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"matched": matched,
		"count":   len(matched),
		"rowsIn":  len(rows),
	})
}
