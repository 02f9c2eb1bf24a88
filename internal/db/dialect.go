package db

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect identifies the SQL flavour of an open database.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "pgx"
)

// sqliteTimeLayout is fixed width so that TEXT comparison orders like time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func DialectFor(driverName string) (Dialect, error) {
	switch Dialect(driverName) {
	case SQLite:
		return SQLite, nil
	case Postgres:
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported db driver %q", driverName)
	}
}

// Rebind rewrites '?' placeholders into the dialect's positional form.
// Queries must not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// TimeArg converts t into the value stored in a timestamp column.
func (d Dialect) TimeArg(t time.Time) any {
	if d == SQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

// Timestamp scans a timestamp column written by either dialect.
type Timestamp struct {
	time.Time
}

func (ts *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		ts.Time = v.UTC()
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	case nil:
		return fmt.Errorf("scan timestamp: NULL")
	default:
		return fmt.Errorf("scan timestamp: unsupported type %T", src)
	}
}

func (ts *Timestamp) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		var err2 error
		t, err2 = time.Parse("2006-01-02 15:04:05.999999999Z07:00", s)
		if err2 != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
	}
	ts.Time = t.UTC()
	return nil
}
