package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/flightguild/bot/config"
	"example.com/flightguild/bot/internal/api/handlers"
	"example.com/flightguild/bot/internal/audit"
	"example.com/flightguild/bot/internal/metrics"
	"example.com/flightguild/bot/internal/models"
	"example.com/flightguild/bot/internal/netstatus"
	"example.com/flightguild/bot/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBanLister struct {
	mock.Mock
}

func (m *MockBanLister) List(ctx context.Context) ([]models.BanRecord, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]models.BanRecord)
	return records, args.Error(1)
}

type stubStatus struct {
	snapshot *netstatus.Snapshot
}

func (s stubStatus) Latest(ctx context.Context) (*netstatus.Snapshot, bool) {
	return s.snapshot, s.snapshot != nil
}

type MockAuditSearcher struct {
	mock.Mock
}

func (m *MockAuditSearcher) SearchBySubject(ctx context.Context, subjectID string, size int) ([]audit.Entry, error) {
	args := m.Called(ctx, subjectID, size)
	entries, _ := args.Get(0).([]audit.Entry)
	return entries, args.Error(1)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(bans handlers.BanLister, status handlers.StatusSource, searcher handlers.AuditSearcher) (*Server, *metrics.Metrics) {
	m := metrics.NewMetrics()
	tracer := tracing.Disabled()
	guild := handlers.NewGuildHandler(bans, status, searcher, tracer)
	return NewServer(config.ServerConfig{Port: 3000}, m, guild, tracer), m
}

func serve(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestAlive(t *testing.T) {
	s, _ := newTestServer(new(MockBanLister), nil, nil)
	rec := serve(s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Bot is alive!", rec.Body.String())
}

func TestHealthReflectsComponents(t *testing.T) {
	s, m := newTestServer(new(MockBanLister), nil, nil)
	m.SetHealth("discord", true)
	require.Equal(t, http.StatusOK, serve(s, "/health").Code)

	m.SetHealth("ban_store", false)
	rec := serve(s, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "degraded", body["status"])
	require.Equal(t, []interface{}{"ban_store"}, body["failing"])
}

func TestMetrics(t *testing.T) {
	s, m := newTestServer(new(MockBanLister), nil, nil)
	m.IncrementCounter(metrics.BansApplied)

	rec := serve(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	counters := body["counters"].(map[string]interface{})
	require.Equal(t, float64(1), counters[metrics.BansApplied])
}

func TestListBans(t *testing.T) {
	bans := new(MockBanLister)
	expires := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	bans.On("List", mock.Anything).Return([]models.BanRecord{{SubjectID: "u1", ExpiresAt: expires}}, nil).Once()
	bans.On("List", mock.Anything).Return(nil, errors.New("disk gone")).Once()
	s, _ := newTestServer(bans, nil, nil)

	rec := serve(s, "/bans")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"count":1,"bans":[{"subject_id":"u1","expires_at":"2099-01-01T00:00:00Z"}]}`, rec.Body.String())

	require.Equal(t, http.StatusInternalServerError, serve(s, "/bans").Code)
	bans.AssertExpectations(t)
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(new(MockBanLister), nil, nil)
	require.Equal(t, http.StatusNotFound, serve(s, "/status").Code)

	s, _ = newTestServer(new(MockBanLister), stubStatus{}, nil)
	require.Equal(t, http.StatusServiceUnavailable, serve(s, "/status").Code)

	snapshot := &netstatus.Snapshot{Controllers: []netstatus.Controller{{Callsign: "VVTS_APP"}}}
	s, _ = newTestServer(new(MockBanLister), stubStatus{snapshot: snapshot}, nil)
	rec := serve(s, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "VVTS_APP")
}

func TestAudit(t *testing.T) {
	s, _ := newTestServer(new(MockBanLister), nil, nil)
	require.Equal(t, http.StatusNotFound, serve(s, "/audit/u1").Code)

	searcher := new(MockAuditSearcher)
	searcher.On("SearchBySubject", mock.Anything, "u1", 5).
		Return([]audit.Entry{{Kind: audit.BanApplied, SubjectID: "u1"}}, nil).Once()
	s, _ = newTestServer(new(MockBanLister), nil, searcher)

	rec := serve(s, "/audit/u1?size=5")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ban.applied")

	require.Equal(t, http.StatusBadRequest, serve(s, "/audit/u1?size=0").Code)
	searcher.AssertExpectations(t)
}
