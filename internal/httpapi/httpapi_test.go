package httpapi

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"powermeter-server/internal/config"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newTestServer(t *testing.T, conn *sql.DB, staticDir string) *httptest.Server {
	t.Helper()
	srv := NewServer(config.Config{HTTPAddr: ":0"}, NewMux(conn, staticDir))
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func mustGet(t *testing.T, client *http.Client, url string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(b)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, openTestDB(t), "")

	resp, body := mustGet(t, ts.Client(), ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if got["status"] != "ok" {
		t.Fatalf("body.status=%q want=%q", got["status"], "ok")
	}
}

func TestHealthz_dbDown(t *testing.T) {
	conn := openTestDB(t)
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	ts := newTestServer(t, conn, "")

	resp, body := mustGet(t, ts.Client(), ts.URL+"/healthz")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusInternalServerError)
	}
	if !strings.Contains(body, `"error"`) {
		t.Errorf("body = %s; want error object", body)
	}
}

func TestHealthz_methodNotAllowed(t *testing.T) {
	ts := newTestServer(t, openTestDB(t), "")

	resp, err := ts.Client().Post(ts.URL+"/healthz", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestStatic_embedded(t *testing.T) {
	ts := newTestServer(t, openTestDB(t), "")

	resp, body := mustGet(t, ts.Client(), ts.URL+"/static/js/realtime_display.js")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	if !strings.Contains(body, "/api/measurements/latest/") {
		t.Error("embedded script not served")
	}

	resp, _ = mustGet(t, ts.Client(), ts.URL+"/static/js/missing.js")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing asset status=%d want=%d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestStatic_dirOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "css"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "css", "dashboard.css"), []byte("body{color:red}"), 0o644); err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, openTestDB(t), dir)

	resp, body := mustGet(t, ts.Client(), ts.URL+"/static/css/dashboard.css")
	if resp.StatusCode != http.StatusOK || body != "body{color:red}" {
		t.Fatalf("status=%d body=%q; want override file", resp.StatusCode, body)
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, openTestDB(t), "")

	mustGet(t, ts.Client(), ts.URL+"/healthz")

	resp, body := mustGet(t, ts.Client(), ts.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	if !strings.Contains(body, `powermeter_http_request_duration_seconds_count{code="200",method="GET"}`) {
		t.Errorf("metrics output missing request histogram:\n%s", body)
	}
}

func TestStatusRecorder(t *testing.T) {
	h := requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("code=%d want=%d", rec.Code, http.StatusTeapot)
	}
}

func TestNewServer(t *testing.T) {
	srv := NewServer(config.Config{HTTPAddr: "127.0.0.1:9999"}, http.NewServeMux())
	if srv.Addr != "127.0.0.1:9999" {
		t.Errorf("Addr=%q", srv.Addr)
	}
	if srv.ReadHeaderTimeout <= 0 {
		t.Error("ReadHeaderTimeout not set")
	}
}
