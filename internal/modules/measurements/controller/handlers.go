package controller

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"powermeter-server/internal/modules/measurements/service"
	"powermeter-server/internal/modules/measurements/views"
	"powermeter-server/internal/utils"
)

const sourceWebhook = "webhook"

func (c *measurementControllerImpl) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := readPayload(w, r)
	switch {
	case errors.Is(err, service.ErrMethodNotAllowed):
		utils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	case err != nil:
		utils.WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	m, err := c.service.Ingest(r.Context(), sourceWebhook, payload)
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			utils.WriteError(w, http.StatusBadRequest, ve.Error())
			return
		}
		slog.Error("webhook: store measurement failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to store measurement")
		return
	}

	data := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		data[k] = v
	}
	data["timestamp"] = m.Timestamp

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func (c *measurementControllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := c.repository.GetLatestMeasurements(r.Context(), latestLimit)
	if err != nil {
		slog.Error("latest: get measurements failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load measurements")
		return
	}
	utils.WriteJSON(w, http.StatusOK, latest)
}

func (c *measurementControllerImpl) handleList(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)

	count, err := c.repository.GetMeasurementsCount(r.Context(), filter)
	if err != nil {
		slog.Error("list: count measurements failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load measurements")
		return
	}

	page, err := resolvePage(r, count)
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, "Invalid page.")
		return
	}

	results, err := c.repository.GetMeasurements(r.Context(), filter, pageSize, (page-1)*pageSize)
	if err != nil {
		slog.Error("list: get measurements failed", "page", page, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load measurements")
		return
	}

	utils.WriteJSON(w, http.StatusOK, buildPage(r, page, count, results))
}

func (c *measurementControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	latest, err := c.repository.GetLatestMeasurements(r.Context(), latestLimit)
	if err != nil {
		slog.Error("dashboard: get latest failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load measurements")
		return
	}

	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, views.NewDashboardData(latest, c.alertThreshold)); err != nil {
		slog.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("dashboard: write response failed", "error", err)
	}
}
