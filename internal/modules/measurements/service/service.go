package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"powermeter-server/internal/metrics"
	"powermeter-server/internal/modules/measurements/repository"
	"powermeter-server/internal/modules/measurements/types"
)

// RequiredFields are checked in this order; the first absent one is reported.
var RequiredFields = []string{"power", "voltage", "current", "energy"}

// Publisher forwards stored measurements downstream. Implementations must not
// block the caller and must swallow their own failures.
type Publisher interface {
	Publish(m types.Measurement)
}

type Service struct {
	repository repository.MeasurementRepository
	publisher  Publisher
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repository repository.MeasurementRepository, publisher Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repository: repository,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}
}

// Ingest validates payload, stores it with a server-assigned timestamp and then
// hands a copy to the publisher. Only validation and storage errors are returned.
func (s *Service) Ingest(ctx context.Context, source string, payload map[string]any) (types.Measurement, error) {
	m, err := ParsePayload(payload)
	if err != nil {
		metrics.IngestTotal.WithLabelValues(source, metrics.OutcomeInvalid).Inc()
		return types.Measurement{}, err
	}
	m.Timestamp = s.now().UTC()

	if err := s.repository.InsertMeasurement(ctx, m); err != nil {
		metrics.IngestTotal.WithLabelValues(source, metrics.OutcomeFailed).Inc()
		return types.Measurement{}, fmt.Errorf("store measurement: %w", err)
	}
	metrics.IngestTotal.WithLabelValues(source, metrics.OutcomeStored).Inc()

	if s.publisher != nil {
		s.publisher.Publish(m)
	}

	s.logger.Debug("measurement ingested",
		"source", source,
		"power", m.Power,
		"timestamp", m.Timestamp,
	)
	return m, nil
}

// ParsePayload extracts the four required readings. Values may be JSON numbers
// or numeric strings; non-finite values are rejected.
func ParsePayload(payload map[string]any) (types.Measurement, error) {
	for _, name := range RequiredFields {
		if _, ok := payload[name]; !ok {
			return types.Measurement{}, missingField(name)
		}
	}

	values := make([]float64, len(RequiredFields))
	for i, name := range RequiredFields {
		v, ok := toFloat(payload[name])
		if !ok {
			return types.Measurement{}, invalidField(name)
		}
		values[i] = v
	}

	return types.Measurement{
		Power:   values[0],
		Voltage: values[1],
		Current: values[2],
		Energy:  values[3],
	}, nil
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsValidation reports whether err is a payload validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
