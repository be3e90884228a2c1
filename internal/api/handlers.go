package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fundboard/pkg/fundboard"
)

const maxRequestBodySize = 1 << 20

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := h.core.Ping(); err != nil {
		h.logger.Error("health check: database unreachable", "err", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   serviceName,
		Version:   h.version,
	})
}

// Settings.

func (h *handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.core.GetSettings(r.Context(), currentUserID(r))
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fundboard.MaskSettings(settings))
}

func (h *handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var payload updateSettingsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	settings, err := h.core.UpdateSettings(r.Context(), currentUserID(r), payload.update())
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fundboard.MaskSettings(settings))
}

// Funds.

func (h *handler) listFunds(w http.ResponseWriter, r *http.Request) {
	funds, err := h.core.ListFunds(r.Context(), currentUserID(r))
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, funds)
}

func (h *handler) searchFunds(w http.ResponseWriter, r *http.Request) {
	results, err := h.core.SearchFunds(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *handler) getFund(w http.ResponseWriter, r *http.Request) {
	id, ok := fundID(w, r)
	if !ok {
		return
	}
	detail, err := h.core.GetFundDetail(r.Context(), currentUserID(r), id)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handler) addFund(w http.ResponseWriter, r *http.Request) {
	var payload addFundPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fund, err := h.core.AddFund(r.Context(), currentUserID(r), fundboard.FundInput{
		FundCode:         payload.FundCode,
		FundName:         payload.FundName,
		FundType:         payload.FundType,
		Style:            payload.Style,
		FocusBoards:      payload.FocusBoards,
		ScheduleEnabled:  payload.ScheduleEnabled,
		ScheduleTime:     payload.ScheduleTime,
		ScheduleInterval: payload.ScheduleInterval,
	})
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fund)
}

func (h *handler) updateFund(w http.ResponseWriter, r *http.Request) {
	id, ok := fundID(w, r)
	if !ok {
		return
	}
	var payload updateFundPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fund, err := h.core.UpdateFund(r.Context(), currentUserID(r), id, fundboard.FundPatch{
		Style:            payload.Style,
		FocusBoards:      payload.FocusBoards,
		ScheduleEnabled:  payload.ScheduleEnabled,
		ScheduleTime:     payload.ScheduleTime,
		ScheduleInterval: payload.ScheduleInterval,
	})
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fund)
}

func (h *handler) deleteFund(w http.ResponseWriter, r *http.Request) {
	id, ok := fundID(w, r)
	if !ok {
		return
	}
	if err := h.core.DeleteFund(r.Context(), currentUserID(r), id); err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Fund deleted"})
}

func (h *handler) fundChart(w http.ResponseWriter, r *http.Request) {
	id, ok := fundID(w, r)
	if !ok {
		return
	}
	png, err := h.core.FundNAVChart(r.Context(), currentUserID(r), id)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *handler) analyzeFund(w http.ResponseWriter, r *http.Request) {
	id, ok := fundID(w, r)
	if !ok {
		return
	}
	report, err := h.core.AnalyzeFund(r.Context(), currentUserID(r), id)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{Result: report.Result, Report: report})
}

// AI.

func (h *handler) testConnection(w http.ResponseWriter, r *http.Request) {
	var payload aiModelPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.core.TestConnection(r.Context(), payload.model())
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) chat(w http.ResponseWriter, r *http.Request) {
	var payload chatPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reply, err := h.core.Chat(r.Context(), currentUserID(r), payload.Message)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *handler) getChatHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 0)
	history, err := h.core.GetChatHistory(r.Context(), currentUserID(r), limit)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *handler) clearChatHistory(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.core.ClearChatHistory(r.Context(), currentUserID(r))
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Chat history cleared", "deleted": deleted})
}

func (h *handler) marketSentiment(w http.ResponseWriter, r *http.Request) {
	report, err := h.core.MarketSentiment(r.Context(), currentUserID(r))
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Helpers.

// decodeJSON rejects unknown fields and bodies over 1MB. An empty body decodes
// as {}.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func fundID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func parseIntDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}
