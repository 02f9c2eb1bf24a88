package controller

import (
	"net/http"

	"powermeter-server/internal/modules/measurements/repository"
	"powermeter-server/internal/modules/measurements/service"
)

type MeasurementController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type measurementControllerImpl struct {
	repository     repository.MeasurementRepository
	service        *service.Service
	alertThreshold float64
}

func NewMeasurementController(repository repository.MeasurementRepository, service *service.Service, alertThreshold float64) MeasurementController {
	return &measurementControllerImpl{
		repository:     repository,
		service:        service,
		alertThreshold: alertThreshold,
	}
}

func (c *measurementControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/webhook/{$}", c.handleWebhook)
	mux.HandleFunc("GET /api/measurements/latest/{$}", c.handleLatest)
	mux.HandleFunc("GET /api/measurements/{$}", c.handleList)
	mux.HandleFunc("GET /{$}", c.handleDashboard)
}
