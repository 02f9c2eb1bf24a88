//go:build e2e

package repository

import (
	"context"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"powermeter-server/internal/config"
	"powermeter-server/internal/db"
	"powermeter-server/internal/migrate"
	"powermeter-server/internal/modules/measurements/types"
)

func TestRepository_postgres(t *testing.T) {
	ctx := context.Background()

	c, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("powermeter"),
		postgres.WithUsername("powermeter"),
		postgres.WithPassword("powermeter"),
		postgres.BasicWaitStrategies(),
	)
	tc.CleanupContainer(t, c)
	if err != nil {
		t.Fatalf("run postgres container: %v", err)
	}

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	conn, dialect, err := db.Open(config.Config{DBDriver: "pgx", DBDSN: dsn, DBMaxOpenConns: 4, DBMaxIdleConns: 2})
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })

	if err := migrate.Run(ctx, conn, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := migrate.Run(ctx, conn, dialect); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	repo := NewRepository(conn, dialect)
	seed(t, repo, 12)

	latest, err := repo.GetLatestMeasurements(ctx, 10)
	if err != nil {
		t.Fatalf("GetLatestMeasurements: %v", err)
	}
	if len(latest) != 10 || latest[0].Power != 11 || latest[9].Power != 2 {
		t.Fatalf("latest = %+v; want powers 11..2", latest)
	}
	if latest[0].Timestamp.Location() != time.UTC {
		t.Errorf("timestamp location = %v; want UTC", latest[0].Timestamp.Location())
	}
	if want := base.Add(11 * time.Minute); !latest[0].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v; want %v", latest[0].Timestamp, want)
	}

	start := base.Add(3 * time.Minute)
	end := base.Add(6 * time.Minute)
	filter := types.Filter{Start: &start, End: &end}

	count, err := repo.GetMeasurementsCount(ctx, filter)
	if err != nil {
		t.Fatalf("GetMeasurementsCount: %v", err)
	}
	if count != 4 {
		t.Errorf("count = %d; want 4", count)
	}

	page, err := repo.GetMeasurements(ctx, filter, 2, 2)
	if err != nil {
		t.Fatalf("GetMeasurements: %v", err)
	}
	if len(page) != 2 || page[0].Power != 4 || page[1].Power != 3 {
		t.Errorf("page = %+v; want powers 4, 3", page)
	}
}
