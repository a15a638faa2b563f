package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mouaidnasab/dair-home/internal/aggregate"
	"github.com/Mouaidnasab/dair-home/internal/api"
	"github.com/Mouaidnasab/dair-home/internal/config"
	"github.com/Mouaidnasab/dair-home/internal/models"
	"github.com/Mouaidnasab/dair-home/internal/service"
)

// fakeService returns canned views and records the arguments it saw.
type fakeService struct {
	dashboard *models.Dashboard
	trends    *models.TrendsSeries
	outages   *models.OutageReport
	breakdown *models.ConsumptionBreakdown
	err       error

	lastDay   string
	lastLabel string
}

func (f *fakeService) GetDashboard(ctx context.Context) (*models.Dashboard, error) {
	return f.dashboard, f.err
}

func (f *fakeService) GetTrends(ctx context.Context, day string) (*models.TrendsSeries, error) {
	f.lastDay = day
	return f.trends, f.err
}

func (f *fakeService) GetHomeSeries(ctx context.Context, day string) ([]models.TimeSeriesPoint, error) {
	f.lastDay = day
	if f.err != nil {
		return nil, f.err
	}
	return f.trends.Home, nil
}

func (f *fakeService) GetInverterSeries(ctx context.Context, label, day string) ([]models.TimeSeriesPoint, error) {
	f.lastDay = day
	f.lastLabel = label
	if f.err != nil {
		return nil, f.err
	}
	switch label {
	case models.LabelGroundFloor:
		return f.trends.GroundFloor, nil
	case models.LabelFirstFloor:
		return f.trends.FirstFloor, nil
	default:
		return nil, fmt.Errorf("%w: %q", service.ErrUnknownInverter, label)
	}
}

func (f *fakeService) GetGridOutages(ctx context.Context, day string) (*models.OutageReport, error) {
	f.lastDay = day
	return f.outages, f.err
}

func (f *fakeService) GetConsumption(ctx context.Context) (*models.ConsumptionBreakdown, error) {
	return f.breakdown, f.err
}

func (f *fakeService) ConsumptionBreakdown(snap models.PowerSnapshot) models.ConsumptionBreakdown {
	return aggregate.AttributeConsumption(snap)
}

func newTestHandler(svc EnergyService) http.Handler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return Setup(svc, config.ServerConfig{RateLimit: 1000, RateLimitBurst: 1000}, log)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func sampleTrends() *models.TrendsSeries {
	ts := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	return &models.TrendsSeries{
		Home:        []models.TimeSeriesPoint{{Timestamp: ts, HomePVPower: 1500, LoadPower: 1100}},
		GroundFloor: []models.TimeSeriesPoint{{Timestamp: ts, HomePVPower: 1000}},
		FirstFloor:  []models.TimeSeriesPoint{{Timestamp: ts, HomePVPower: 500}},
	}
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(&fakeService{})
	rec := get(t, h, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestDashboardRoute(t *testing.T) {
	svc := &fakeService{dashboard: &models.Dashboard{
		GroundFloor: models.InverterPanel{Label: models.LabelGroundFloor, PVNowW: 1200},
		Battery:     models.BatteryInfo{Soc: 81, State: models.BatteryDischarging},
		GridPowerOn: true,
	}}
	h := newTestHandler(svc)

	rec := get(t, h, "/api/energy/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)

	var dash models.Dashboard
	decode(t, rec, &dash)
	assert.Equal(t, 1200.0, dash.GroundFloor.PVNowW)
	assert.Equal(t, models.BatteryDischarging, dash.Battery.State)
	assert.True(t, dash.GridPowerOn)
}

func TestTrendsRoutePassesDay(t *testing.T) {
	svc := &fakeService{trends: sampleTrends()}
	h := newTestHandler(svc)

	rec := get(t, h, "/api/energy/trends?day=2026-05-10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-05-10", svc.lastDay)

	var trends models.TrendsSeries
	decode(t, rec, &trends)
	require.Len(t, trends.Home, 1)
	assert.Equal(t, 1500.0, trends.Home[0].HomePVPower)
}

func TestHomeSeriesRoute(t *testing.T) {
	svc := &fakeService{trends: sampleTrends()}
	h := newTestHandler(svc)

	rec := get(t, h, "/api/energy/series/home")
	require.Equal(t, http.StatusOK, rec.Code)

	var series []models.TimeSeriesPoint
	decode(t, rec, &series)
	require.Len(t, series, 1)
	assert.Equal(t, 1100.0, series[0].LoadPower)
}

func TestInverterSeriesRoute(t *testing.T) {
	svc := &fakeService{trends: sampleTrends()}
	h := newTestHandler(svc)

	rec := get(t, h, "/api/energy/series/First_Floor?day=2026-05-10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.LabelFirstFloor, svc.lastLabel)

	var series []models.TimeSeriesPoint
	decode(t, rec, &series)
	require.Len(t, series, 1)
	assert.Equal(t, 500.0, series[0].HomePVPower)
}

func TestInverterSeriesUnknownLabel(t *testing.T) {
	svc := &fakeService{trends: sampleTrends()}
	h := newTestHandler(svc)

	rec := get(t, h, "/api/energy/series/Basement")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOutagesRoute(t *testing.T) {
	start := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	svc := &fakeService{outages: &models.OutageReport{
		Intervals:  []models.ElectricityInterval{{StartTime: start, EndTime: start.Add(30 * time.Minute), Duration: 30}},
		TotalHours: 0.5,
	}}
	h := newTestHandler(svc)

	rec := get(t, h, "/api/energy/outages?day=2026-05-10")
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.OutageReport
	decode(t, rec, &report)
	require.Len(t, report.Intervals, 1)
	assert.Equal(t, 30, report.Intervals[0].Duration)
	assert.Equal(t, 0.5, report.TotalHours)
}

func TestConsumptionLiveRoute(t *testing.T) {
	svc := &fakeService{breakdown: &models.ConsumptionBreakdown{SolarW: 500, BatteryW: 300}}
	h := newTestHandler(svc)

	rec := get(t, h, "/api/energy/consumption")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.ConsumptionBreakdown
	decode(t, rec, &got)
	assert.Equal(t, 500.0, got.SolarW)
	assert.Equal(t, 300.0, got.BatteryW)
}

func TestConsumptionExplicitSnapshot(t *testing.T) {
	h := newTestHandler(&fakeService{})

	rec := get(t, h, "/api/energy/consumption?solar=500&load=800&battery=-400&grid=120")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.ConsumptionBreakdown
	decode(t, rec, &got)
	assert.Equal(t, 500.0, got.SolarW)
	assert.Equal(t, 300.0, got.BatteryW)
	assert.Equal(t, 0.0, got.GridW)
}

func TestConsumptionExplicitSnapshotBadNumber(t *testing.T) {
	h := newTestHandler(&fakeService{})

	rec := get(t, h, "/api/energy/consumption?load=lots")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidDayMapsToBadRequest(t *testing.T) {
	svc := &fakeService{err: fmt.Errorf("%w: %q", service.ErrInvalidDay, "nope")}
	h := newTestHandler(svc)

	rec := get(t, h, "/api/energy/trends?day=nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Contains(t, body["error"], "invalid day")
}

func TestNotReadyMapsToServiceUnavailable(t *testing.T) {
	svc := &fakeService{err: fmt.Errorf("%w: first aggregation pass still running", service.ErrNotReady)}
	h := newTestHandler(svc)

	rec := get(t, h, "/api/energy/trends")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, true, body["retryable"])
}

func TestSourceUnavailableMapsToBadGateway(t *testing.T) {
	svc := &fakeService{err: fmt.Errorf("%w: vendor returned 502", api.ErrSourceUnavailable)}
	h := newTestHandler(svc)

	rec := get(t, h, "/api/energy/dashboard")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, true, body["retryable"])
}

func TestUnexpectedErrorMapsToInternal(t *testing.T) {
	svc := &fakeService{err: errors.New("nil map write")}
	h := newTestHandler(svc)

	rec := get(t, h, "/api/energy/outages")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	// Internal details never leak to the client.
	assert.Equal(t, "internal error", body["error"])
}

func TestRequestIDHeaderSet(t *testing.T) {
	h := newTestHandler(&fakeService{})
	rec := get(t, h, "/healthz")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestUnknownRouteIs404(t *testing.T) {
	h := newTestHandler(&fakeService{})
	rec := get(t, h, "/api/energy/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
