package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bidintake/internal"
	"bidintake/internal/listener"
	"bidintake/internal/pipeline"
	"bidintake/internal/runlock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubScheduler struct {
	result pipeline.RunResult
	err    error
}

func (s stubScheduler) Trigger(context.Context) (pipeline.RunResult, error) { return s.result, s.err }

func (s stubScheduler) Status() listener.Status {
	return listener.Status{Started: true, Interval: "5m0s", Runs: 2}
}

func do(t *testing.T, srv *Server, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return rec, body
}

func TestProcessNow(t *testing.T) {
	value := 4500.0
	sched := stubScheduler{result: pipeline.RunResult{
		RunID:     "abc",
		Fetched:   3,
		Discarded: 1,
		Bids:      []internal.BidRecord{{ID: "b1", ProjectName: "Hall", Value: &value}, {ID: "b2"}},
	}}
	srv := NewServer(sched, func(context.Context) bool { return true }, time.Second, zap.NewNop())

	rec, body := do(t, srv, http.MethodPost, "/api/v1/email-processing/process-now")
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	if body["success"] != true || body["message"] != "Processed 2 bid emails" {
		t.Fatalf("body=%v", body)
	}
	counts := body["counts"].(map[string]any)
	if counts["fetched"] != 3.0 || counts["discarded"] != 1.0 || counts["created"] != 2.0 {
		t.Fatalf("counts=%v", counts)
	}
	if data := body["data"].([]any); len(data) != 2 {
		t.Fatalf("data=%v", data)
	}
}

func TestProcessNowErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{err: runlock.ErrBusy, code: http.StatusConflict},
		{err: &internal.ConnectionError{Provider: "imap", Err: errors.New("refused")}, code: http.StatusServiceUnavailable},
		{err: errors.New("boom"), code: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		srv := NewServer(stubScheduler{err: tc.err}, func(context.Context) bool { return true }, 0, zap.NewNop())
		rec, body := do(t, srv, http.MethodPost, "/api/v1/email-processing/process-now")
		if rec.Code != tc.code {
			t.Fatalf("%v: code=%d", tc.err, rec.Code)
		}
		if body["success"] != false || body["error"] == "" {
			t.Fatalf("body=%v", body)
		}
	}
}

func TestHealth(t *testing.T) {
	up := NewServer(stubScheduler{}, func(context.Context) bool { return true }, 0, zap.NewNop())
	rec, body := do(t, up, http.MethodGet, "/api/v1/email-processing/health")
	if rec.Code != http.StatusOK || body["imap"] != "Connected" {
		t.Fatalf("code=%d body=%v", rec.Code, body)
	}

	down := NewServer(stubScheduler{}, func(context.Context) bool { return false }, 0, zap.NewNop())
	rec, body = do(t, down, http.MethodGet, "/api/v1/email-processing/health")
	if rec.Code != http.StatusServiceUnavailable || body["imap"] != "Failed" {
		t.Fatalf("code=%d body=%v", rec.Code, body)
	}
}

func TestStatus(t *testing.T) {
	srv := NewServer(stubScheduler{}, func(context.Context) bool { return true }, 0, zap.NewNop())
	rec, body := do(t, srv, http.MethodGet, "/api/v1/email-processing/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	data := body["data"].(map[string]any)
	if data["started"] != true || data["interval"] != "5m0s" || data["runs"] != 2.0 {
		t.Fatalf("data=%v", data)
	}
}
