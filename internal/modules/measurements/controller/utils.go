package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"powermeter-server/internal/modules/measurements/service"
	"powermeter-server/internal/modules/measurements/types"
)

const (
	pageSize      = 10
	latestLimit   = 10
	maxBodyBytes  = 1 << 20
	lastPageParam = "last"
)

var errInvalidPage = errors.New("invalid page")

// readPayload returns the ingest payload: the JSON object body for POST or the
// query parameters for GET. An empty POST body is an empty payload.
func readPayload(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	switch r.Method {
	case http.MethodGet:
		payload := make(map[string]any)
		for k, vs := range r.URL.Query() {
			if len(vs) > 0 {
				payload[k] = vs[len(vs)-1]
			}
		}
		return payload, nil
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			return nil, service.ErrInvalidJSON
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return map[string]any{}, nil
		}
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		var payload map[string]any
		if err := dec.Decode(&payload); err != nil || payload == nil {
			return nil, service.ErrInvalidJSON
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return nil, service.ErrInvalidJSON
		}
		return payload, nil
	default:
		return nil, service.ErrMethodNotAllowed
	}
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04Z07",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04Z0700",
	"2006-01-02 15:04Z07",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseDateTime accepts ISO 8601 style values; zone-less values are UTC.
func parseDateTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseFilter reads start/end; unparseable bounds are dropped.
func parseFilter(r *http.Request) types.Filter {
	q := r.URL.Query()
	var f types.Filter
	if t, ok := parseDateTime(q.Get("start")); ok {
		f.Start = &t
	}
	if t, ok := parseDateTime(q.Get("end")); ok {
		f.End = &t
	}
	return f
}

func numPages(count int) int {
	if count == 0 {
		return 1
	}
	return (count + pageSize - 1) / pageSize
}

// resolvePage returns the 1-based page for the request given the total row count.
func resolvePage(r *http.Request, count int) (int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, nil
	}
	total := numPages(count)
	if raw == lastPageParam {
		return total, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > total {
		return 0, errInvalidPage
	}
	return n, nil
}

// pageURL builds the absolute URL of page p, keeping the other query parameters.
// The first page is addressed without a page parameter.
func pageURL(r *http.Request, p int) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	q := r.URL.Query()
	if p <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(p))
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	return u.String()
}

type pageResponse struct {
	Count    int                 `json:"count"`
	Next     *string             `json:"next"`
	Previous *string             `json:"previous"`
	Results  []types.Measurement `json:"results"`
}

func buildPage(r *http.Request, page, count int, results []types.Measurement) pageResponse {
	resp := pageResponse{Count: count, Results: results}
	if page < numPages(count) {
		next := pageURL(r, page+1)
		resp.Next = &next
	}
	if page > 1 {
		prev := pageURL(r, page-1)
		resp.Previous = &prev
	}
	return resp
}
