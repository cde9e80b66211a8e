package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"grid_adequacy/internal/models"
	"grid_adequacy/internal/service"
)

func getWithAuth(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, vv := range authHeader("valid") {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	return w
}

func TestLogsHandler_ListAndValidation(t *testing.T) {
	auth := &mockAuth{parseID: 99}
	now := time.Now().UTC().Truncate(time.Second)
	events := []models.SessionEvent{
		{EventID: "e1", SessionID: "s1", OccurredAt: now, Type: models.EventSessionOpen, Description: "open"},
		{EventID: "e2", SessionID: "s1", OccurredAt: now.Add(1 * time.Second), Type: models.EventScrub, Description: "scrub"},
	}
	logs := &mockEventLog{resp: events}
	s := &service.Service{
		Authorization: auth,
		EventLog:      logs,
	}
	r := newTestRouter(s)

	// invalid 'from' → 400
	if w := getWithAuth(r, "/api/v1/logs?from=notatime"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid 'from', got %d", w.Code)
	}

	// Valid range, type and session (lowercase type is normalized before the service call)
	q := "/api/v1/logs?from=" + now.Format(time.RFC3339) + "&to=" + now.Add(2*time.Second).Format(time.RFC3339) +
		"&type=scrub&session=s1&limit=5000"
	w := getWithAuth(r, q)
	if w.Code != http.StatusOK {
		t.Fatalf("logs status=%d, body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Count  int                   `json:"count"`
		Events []models.SessionEvent `json:"events"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Count != 2 || len(out.Events) != 2 {
		t.Fatalf("unexpected response: %+v", out)
	}
	if logs.last.Type != models.EventScrub {
		t.Fatalf("expected type SCRUB, got %q", logs.last.Type)
	}
	if logs.last.SessionID != "s1" {
		t.Fatalf("expected session s1, got %q", logs.last.SessionID)
	}
	if logs.last.Limit != maxLogLimit {
		t.Fatalf("limit must be capped at %d, got %d", maxLogLimit, logs.last.Limit)
	}
}

func TestLogsHandler_QueryErrors(t *testing.T) {
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, EventLog: &mockEventLog{}})

	cases := []struct {
		name string
		q    string
		msg  string
	}{
		{name: "bad to", q: "?to=yesterday", msg: errToInvalid},
		{name: "inverted range", q: "?from=2025-08-02&to=2025-08-01", msg: errRangeInvalid},
		{name: "zero limit", q: "?limit=0", msg: errLimitInvalid},
		{name: "non-numeric limit", q: "?limit=ten", msg: errLimitInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := getWithAuth(r, "/api/v1/logs"+tc.q)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			var out struct {
				Error string `json:"error"`
			}
			_ = json.Unmarshal(w.Body.Bytes(), &out)
			if out.Error != tc.msg {
				t.Fatalf("error: got %q, want %q", out.Error, tc.msg)
			}
		})
	}
}

func TestLogsHandler_DateOnlyToCoversWholeDay(t *testing.T) {
	logs := &mockEventLog{}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, EventLog: logs})

	if w := getWithAuth(r, "/api/v1/logs?from=2025-08-01&to=2025-08-01"); w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	want := time.Date(2025, 8, 1, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
	if !logs.last.To.Equal(want) {
		t.Fatalf("to: got %v, want %v", logs.last.To, want)
	}
}

func TestParseQueryTime(t *testing.T) {
	for _, s := range []string{"2025-08-01T10:00:00Z", "2025-08-01 10:00:00", "2025-08-01"} {
		if _, err := parseQueryTime(s); err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
	}
	if _, err := parseQueryTime("08/01/2025"); err == nil {
		t.Fatalf("expected error")
	}
}
