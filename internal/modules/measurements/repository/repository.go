package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"powermeter-server/internal/db"
	"powermeter-server/internal/modules/measurements/types"
)

//go:embed sql/insert-measurement.sql
var insertMeasurementSQL string

//go:embed sql/get-latest-measurements.sql
var getLatestMeasurementsSQL string

//go:embed sql/get-measurements.sql
var getMeasurementsSQL string

//go:embed sql/get-measurements-count.sql
var getMeasurementsCountSQL string

const orderNewestFirst = " ORDER BY timestamp DESC, id DESC"

type MeasurementRepository interface {
	InsertMeasurement(ctx context.Context, m types.Measurement) error
	GetLatestMeasurements(ctx context.Context, limit int) ([]types.Measurement, error)
	GetMeasurements(ctx context.Context, filter types.Filter, limit int, offset int) ([]types.Measurement, error)
	GetMeasurementsCount(ctx context.Context, filter types.Filter) (int, error)
}

type repositoryImpl struct {
	db      *sql.DB
	dialect db.Dialect
}

func NewRepository(conn *sql.DB, dialect db.Dialect) MeasurementRepository {
	return &repositoryImpl{db: conn, dialect: dialect}
}

func (r *repositoryImpl) InsertMeasurement(ctx context.Context, m types.Measurement) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(insertMeasurementSQL),
		m.Power, m.Voltage, m.Current, m.Energy, r.dialect.TimeArg(m.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}
	return nil
}

func (r *repositoryImpl) GetLatestMeasurements(ctx context.Context, limit int) ([]types.Measurement, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(getLatestMeasurementsSQL), limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close latest measurements rows", "error", err)
		}
	}()
	return scanMeasurements(rows)
}

func (r *repositoryImpl) GetMeasurements(ctx context.Context, filter types.Filter, limit int, offset int) ([]types.Measurement, error) {
	where, args := r.whereClause(filter)
	query := strings.TrimSpace(getMeasurementsSQL) + where + orderNewestFirst + " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close measurements rows", "error", err)
		}
	}()
	return scanMeasurements(rows)
}

func (r *repositoryImpl) GetMeasurementsCount(ctx context.Context, filter types.Filter) (int, error) {
	where, args := r.whereClause(filter)
	query := strings.TrimSpace(getMeasurementsCountSQL) + where

	var n int
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), args...).Scan(&n)
	return n, err
}

// whereClause renders the inclusive time bounds of filter; nil bounds add nothing.
func (r *repositoryImpl) whereClause(filter types.Filter) (string, []any) {
	var conds []string
	var args []any
	if filter.Start != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, r.dialect.TimeArg(*filter.Start))
	}
	if filter.End != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, r.dialect.TimeArg(*filter.End))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanMeasurements(rows *sql.Rows) ([]types.Measurement, error) {
	out := []types.Measurement{}
	for rows.Next() {
		var m types.Measurement
		var ts db.Timestamp
		if err := rows.Scan(&m.Power, &m.Voltage, &m.Current, &m.Energy, &ts); err != nil {
			return nil, err
		}
		m.Timestamp = ts.Time
		out = append(out, m)
	}
	return out, rows.Err()
}
