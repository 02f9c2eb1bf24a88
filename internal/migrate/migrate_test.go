package migrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"

	"powermeter-server/internal/config"
	"powermeter-server/internal/db"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	conn, _, err := db.Open(config.Config{
		DBDriver:       "sqlite3",
		SQLitePath:     filepath.Join(t.TempDir(), "migrate.db"),
		DBMaxOpenConns: 1,
		DBMaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRun_sqliteCreatesSchema(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	if err := Run(ctx, conn, db.SQLite); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var name string
	err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'measurements'`).Scan(&name)
	if err != nil {
		t.Fatalf("measurements table missing: %v", err)
	}

	applied, err := Applied(ctx, conn)
	if err != nil {
		t.Fatalf("Applied: %v", err)
	}
	if !reflect.DeepEqual(applied, []string{"0001"}) {
		t.Errorf("Applied = %v; want [0001]", applied)
	}
}

func TestRun_idempotent(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	for i := 0; i < 3; i++ {
		if err := Run(ctx, conn, db.SQLite); err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
	}

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("schema_migrations rows = %d; want 1", n)
	}
}

func TestRun_unknownDialect(t *testing.T) {
	if err := Run(context.Background(), nil, db.Dialect("mssql")); err == nil {
		t.Fatal("Run(mssql) error = nil; want error")
	}
}

func TestRun_postgresStatements(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(`BIGSERIAL PRIMARY KEY.*TIMESTAMPTZ`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)`)).
		WithArgs("0001", "measurements", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := Run(context.Background(), conn, db.Postgres); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRun_postgresSkipsApplied(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001"))

	if err := Run(context.Background(), conn, db.Postgres); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPendingMigrations_orderAndFilter(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_second.sql": {Data: []byte("SELECT 2;")},
		"m/0001_first.sql":  {Data: []byte("SELECT 1;")},
		"m/0003_third.sql":  {Data: []byte("SELECT 3;")},
		"m/README.md":       {Data: []byte("notes")},
		"m/1_bad.sql":       {Data: []byte("SELECT 0;")},
	}

	got, err := pendingMigrations(fsys, "m", map[string]bool{"0002": true})
	if err != nil {
		t.Fatalf("pendingMigrations: %v", err)
	}
	var versions []string
	for _, m := range got {
		versions = append(versions, m.version+"_"+m.name)
	}
	want := []string{"0001_first", "0003_third"}
	if !reflect.DeepEqual(versions, want) {
		t.Errorf("pending = %v; want %v", versions, want)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		in          string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"0001_measurements.sql", "0001", "measurements", true},
		{"0042_add_index.sql", "0042", "add_index", true},
		{"001_short.sql", "", "", false},
		{"0001_missing_ext", "", "", false},
	}
	for _, tt := range tests {
		v, n, ok := parseMigrationFilename(tt.in)
		if v != tt.wantVersion || n != tt.wantName || ok != tt.wantOK {
			t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v); want (%q, %q, %v)",
				tt.in, v, n, ok, tt.wantVersion, tt.wantName, tt.wantOK)
		}
	}
}
