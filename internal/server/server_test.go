package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/williampepple1/listing-notifier/internal/metrics"
	"github.com/williampepple1/listing-notifier/pkg/models"
)

type fakeStatus struct {
	report *models.CycleReport
}

func (f *fakeStatus) LastReport() (models.CycleReport, bool) {
	if f.report == nil {
		return models.CycleReport{}, false
	}
	return *f.report, true
}

func (f *fakeStatus) Keywords() []string { return []string{"driver", "engineer"} }

type fakeChecker struct {
	report models.CycleReport
	calls  int
}

func (f *fakeChecker) Trigger(context.Context) models.CycleReport {
	f.calls++
	return f.report
}

func newTestServer(status *fakeStatus, checker *fakeChecker) *Server {
	return New(Options{
		Address:              "127.0.0.1:0",
		Interval:             10 * time.Minute,
		NotificationsEnabled: true,
		Status:               status,
		Checker:              checker,
		Metrics:              metrics.New(),
	})
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeStatus{}, &fakeChecker{})

	for _, path := range []string{"/", "/health"} {
		w := get(t, s, path)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "OK", w.Body.String(), path)
	}
}

func TestStatus(t *testing.T) {
	started := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	status := &fakeStatus{}
	s := newTestServer(status, &fakeChecker{})

	w := get(t, s, "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp.Status)
	assert.Equal(t, []string{"driver", "engineer"}, resp.Keywords)
	assert.Equal(t, 600, resp.CheckInterval)
	assert.True(t, resp.NotificationsEnabled)
	assert.Nil(t, resp.LastCheck)

	status.report = &models.CycleReport{ID: "abc", StartedAt: started, Fetched: true, Notified: 2}
	w = get(t, s, "/status")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.LastCheck)
	assert.True(t, started.Equal(*resp.LastCheck))
	require.NotNil(t, resp.LastReport)
	assert.Equal(t, 2, resp.LastReport.Notified)
}

func TestCheck(t *testing.T) {
	checker := &fakeChecker{report: models.CycleReport{Fetched: true, Notified: 2, NotifyErrors: 1}}
	s := newTestServer(&fakeStatus{}, checker)

	w := get(t, s, "/check")
	require.Equal(t, http.StatusOK, w.Code)

	var resp CheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.NewJobs)
	assert.Equal(t, "Manual check completed. Found 3 new jobs.", resp.Message)
	assert.Equal(t, 1, checker.calls)
}

func TestCheck_FetchFailure(t *testing.T) {
	checker := &fakeChecker{report: models.CycleReport{Err: "fetch https://x: unexpected status 503"}}
	s := newTestServer(&fakeStatus{}, checker)

	w := get(t, s, "/check")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "unexpected status 503")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakeStatus{}, &fakeChecker{})

	w := get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "listing_notifier_notifications_sent_total")
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := New(Options{Address: addr, Status: &fakeStatus{}, Checker: &fakeChecker{}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
