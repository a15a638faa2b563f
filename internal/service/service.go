// Package service orchestrates one aggregation pass: fetch raw rows
// for both inverters, normalize, bucket by minute, combine into the
// home series, and derive consumption and outage views. All state is
// recomputed from scratch each pass; the only mutation is swapping in
// the finished today view.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/Mouaidnasab/dair-home/internal/aggregate"
	"github.com/Mouaidnasab/dair-home/internal/config"
	"github.com/Mouaidnasab/dair-home/internal/models"
	"github.com/Mouaidnasab/dair-home/internal/normalize"
)

// ErrInvalidDay reports an unparseable day parameter. It is rejected at
// the boundary before any fetch is attempted.
var ErrInvalidDay = errors.New("invalid day parameter")

// ErrUnknownInverter reports a label that matches neither inverter.
var ErrUnknownInverter = errors.New("unknown inverter label")

// ErrNotReady reports that no today view exists yet because the first
// aggregation pass is still in flight. Retryable.
var ErrNotReady = errors.New("today view not ready")

// dayLayout is the calendar-date form accepted from callers.
const dayLayout = "2006-01-02"

// idleBandW is the battery deadband: flows within ±50 W display as idle.
const idleBandW = 50

// TelemetryFetcher is the consumed interface of the vendor adapter.
type TelemetryFetcher interface {
	FetchRecords(ctx context.Context, plantID, label string, start, end time.Time) ([]models.RawRow, error)
	FetchLatest(ctx context.Context, plantID, label string) (models.RawRow, error)
}

// Service exposes the aggregated energy views to the transport layer.
type Service struct {
	fetcher TelemetryFetcher
	norm    *normalize.Normalizer
	log     *logrus.Logger
	plants  config.PlantsConfig

	// Completed past days are immutable, so their series are cached.
	dayCache *lru.Cache

	mu          sync.RWMutex
	today       *models.TrendsSeries // last-known-good view of today
	refreshedAt time.Time

	inFlight int32 // single-flight guard for today refreshes
}

// New wires a Service from its collaborators.
func New(fetcher TelemetryFetcher, plants config.PlantsConfig, labels map[string]string, cacheSize int, log *logrus.Logger) (*Service, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating day cache: %w", err)
	}
	return &Service{
		fetcher:  fetcher,
		norm:     normalize.New(labels),
		log:      log,
		plants:   plants,
		dayCache: cache,
	}, nil
}

// ParseDay validates the calendar-date parameter. Empty means today.
func ParseDay(s string) (time.Time, error) {
	if s == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	}
	t, err := time.ParseInLocation(dayLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	return t, nil
}

func isToday(day time.Time) bool {
	now := time.Now()
	y1, m1, d1 := day.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func dayWindow(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, day.Location())
	return start, end
}

// GetTrends returns the home and per-inverter series for one day.
// Past days come from the cache when possible and never trigger
// polling; today is served from the freshest completed pass.
func (s *Service) GetTrends(ctx context.Context, day string) (*models.TrendsSeries, error) {
	date, err := ParseDay(day)
	if err != nil {
		return nil, err
	}

	if isToday(date) {
		s.mu.RLock()
		current := s.today
		s.mu.RUnlock()
		if current != nil {
			return current, nil
		}
		if err := s.RefreshToday(ctx); err != nil {
			return nil, err
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.today == nil {
			// Another pass holds the single-flight slot and has not
			// installed its result yet.
			return nil, fmt.Errorf("%w: first aggregation pass still running", ErrNotReady)
		}
		return s.today, nil
	}

	key := date.Format(dayLayout)
	if cached, ok := s.dayCache.Get(key); ok {
		return cached.(*models.TrendsSeries), nil
	}
	trends, err := s.buildTrends(ctx, date)
	if err != nil {
		return nil, err
	}
	s.dayCache.Add(key, trends)
	return trends, nil
}

// GetHomeSeries returns the combined per-minute home series for a day.
func (s *Service) GetHomeSeries(ctx context.Context, day string) ([]models.TimeSeriesPoint, error) {
	trends, err := s.GetTrends(ctx, day)
	if err != nil {
		return nil, err
	}
	return trends.Home, nil
}

// GetInverterSeries returns one inverter's per-minute series for a day.
func (s *Service) GetInverterSeries(ctx context.Context, label, day string) ([]models.TimeSeriesPoint, error) {
	trends, err := s.GetTrends(ctx, day)
	if err != nil {
		return nil, err
	}
	switch label {
	case s.plants.GroundFloor.Label:
		return trends.GroundFloor, nil
	case s.plants.FirstFloor.Label:
		return trends.FirstFloor, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInverter, label)
	}
}

// GetGridOutages extracts the grid-draw intervals for one day from the
// combined home series.
func (s *Service) GetGridOutages(ctx context.Context, day string) (*models.OutageReport, error) {
	home, err := s.GetHomeSeries(ctx, day)
	if err != nil {
		return nil, err
	}
	report := aggregate.ExtractGridIntervals(home)
	return &report, nil
}

// ConsumptionBreakdown attributes a snapshot's load to its sources.
// Pure passthrough so callers can hand in any snapshot.
func (s *Service) ConsumptionBreakdown(snap models.PowerSnapshot) models.ConsumptionBreakdown {
	return aggregate.AttributeConsumption(snap)
}

// GetConsumption builds the breakdown from the latest live snapshot.
func (s *Service) GetConsumption(ctx context.Context) (*models.ConsumptionBreakdown, error) {
	dash, err := s.GetDashboard(ctx)
	if err != nil {
		return nil, err
	}
	breakdown := aggregate.AttributeConsumption(models.PowerSnapshot{
		SolarW:   dash.GroundFloor.PVNowW + dash.FirstFloor.PVNowW,
		LoadW:    dash.GroundFloor.LoadW + dash.FirstFloor.LoadW,
		BatteryW: dash.Battery.PowerW,
		GridW:    dash.GroundFloor.GridW + dash.FirstFloor.GridW,
	})
	return &breakdown, nil
}

// GetDashboard fetches the latest record of each inverter concurrently
// and assembles the snapshot view.
func (s *Service) GetDashboard(ctx context.Context) (*models.Dashboard, error) {
	var (
		wg           sync.WaitGroup
		gfRow, ffRow models.RawRow
		gfErr, ffErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		gfRow, gfErr = s.fetcher.FetchLatest(ctx, s.plants.GroundFloor.ID, s.plants.GroundFloor.Label)
	}()
	go func() {
		defer wg.Done()
		ffRow, ffErr = s.fetcher.FetchLatest(ctx, s.plants.FirstFloor.ID, s.plants.FirstFloor.Label)
	}()
	wg.Wait()
	if gfErr != nil {
		return nil, gfErr
	}
	if ffErr != nil {
		return nil, ffErr
	}

	gf := s.norm.Record(gfRow)
	ff := s.norm.Record(ffRow)

	dash := &models.Dashboard{
		GroundFloor: panelFrom(gf),
		FirstFloor:  panelFrom(ff),
		Battery: models.BatteryInfo{
			// The shared battery hangs off the ground-floor inverter, so
			// its live power and SoC are read there.
			Soc:       gf.BatterySoc,
			PowerW:    gf.BatteryPower,
			State:     batteryState(gf.BatteryPower),
			Timestamp: gf.Timestamp,
		},
		Location: models.Location{
			Country:  gf.CountryName,
			City:     gf.CityName,
			Timezone: gf.TimeZone,
		},
		Currency:    gf.Currency,
		GridPowerOn: gf.GridPower > 0 || ff.GridPower > 0,
		LastUpdated: gf.Timestamp,
	}
	return dash, nil
}

func panelFrom(rec models.EnergyRecord) models.InverterPanel {
	status := "warning"
	if rec.Status == normalize.DefaultStatus {
		status = "normal"
	}
	return models.InverterPanel{
		Label:        rec.PlantLabel,
		PVNowW:       rec.PVTotalPower,
		TodayKWh:     rec.TodayPV,
		RatedKwp:     rec.RatedPower,
		LoadW:        rec.LoadPower,
		GridW:        rec.GridPower,
		IncomeToday:  rec.TodayIncome,
		Currency:     rec.Currency,
		Status:       status,
		Model:        rec.DeviceModel,
		SerialNumber: rec.DeviceSN,
		Timestamp:    rec.Timestamp,
	}
}

func batteryState(powerW float64) models.BatteryState {
	switch {
	case powerW > idleBandW:
		return models.BatteryCharging
	case powerW < -idleBandW:
		return models.BatteryDischarging
	default:
		return models.BatteryIdle
	}
}

// RefreshToday runs one aggregation pass over today's window and
// installs the result. Passes are strictly serialized by the
// single-flight guard: a caller arriving while one is in flight is
// skipped rather than queued, so the poller and on-demand requests
// never duplicate work and a finished pass can never be overwritten by
// an older one. On failure the prior view is left in place.
func (s *Service) RefreshToday(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.inFlight, 0, 1) {
		s.log.Debug("refresh already in flight, skipping")
		return nil
	}
	defer atomic.StoreInt32(&s.inFlight, 0)

	now := time.Now()
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	trends, err := s.buildTrends(ctx, date)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.today = trends
	s.refreshedAt = time.Now()
	return nil
}

// RefreshedAt reports when the current today view was installed.
func (s *Service) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

// buildTrends is the pure aggregation pass: two fetches, then
// normalize, bucket, combine, project. No shared state is touched.
func (s *Service) buildTrends(ctx context.Context, date time.Time) (*models.TrendsSeries, error) {
	start, end := dayWindow(date)

	var (
		wg             sync.WaitGroup
		gfRows, ffRows []models.RawRow
		gfErr, ffErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		gfRows, gfErr = s.fetcher.FetchRecords(ctx, s.plants.GroundFloor.ID, s.plants.GroundFloor.Label, start, end)
	}()
	go func() {
		defer wg.Done()
		ffRows, ffErr = s.fetcher.FetchRecords(ctx, s.plants.FirstFloor.ID, s.plants.FirstFloor.Label, start, end)
	}()
	wg.Wait()
	if gfErr != nil {
		return nil, gfErr
	}
	if ffErr != nil {
		return nil, ffErr
	}

	gfBuckets := aggregate.MinuteBuckets(s.norm.Records(gfRows))
	ffBuckets := aggregate.MinuteBuckets(s.norm.Records(ffRows))

	home := aggregate.CombineHome(gfBuckets, ffBuckets)

	trends := &models.TrendsSeries{
		Home:        aggregate.ToSeries(home),
		GroundFloor: aggregate.ToSeries(sortedBuckets(gfBuckets)),
		FirstFloor:  aggregate.ToSeries(sortedBuckets(ffBuckets)),
	}

	s.log.WithFields(logrus.Fields{
		"day":          date.Format(dayLayout),
		"ground_floor": len(gfRows),
		"first_floor":  len(ffRows),
		"home_minutes": len(home),
	}).Info("aggregation pass complete")

	return trends, nil
}

// sortedBuckets flattens a bucket map into chronological order.
func sortedBuckets(buckets map[time.Time]models.EnergyRecord) []models.EnergyRecord {
	out := make([]models.EnergyRecord, 0, len(buckets))
	for _, rec := range buckets {
		out = append(out, rec)
	}
	aggregate.SortChronological(out)
	return out
}
