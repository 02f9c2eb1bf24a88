package measurements

import (
	"database/sql"
	"log/slog"
	"net/http"

	"powermeter-server/internal/db"
	"powermeter-server/internal/modules/measurements/controller"
	"powermeter-server/internal/modules/measurements/repository"
	"powermeter-server/internal/modules/measurements/service"
)

// RegisterFeature wires the measurement routes onto mux and returns the ingest
// service so other transports can feed it.
func RegisterFeature(mux *http.ServeMux, conn *sql.DB, dialect db.Dialect, publisher service.Publisher, alertThreshold float64) *service.Service {
	measurementRepository := repository.NewRepository(conn, dialect)
	measurementService := service.NewService(measurementRepository, publisher, slog.Default())
	measurementController := controller.NewMeasurementController(measurementRepository, measurementService, alertThreshold)
	measurementController.RegisterRoutes(mux)
	return measurementService
}
