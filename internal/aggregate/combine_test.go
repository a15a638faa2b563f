package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mouaidnasab/dair-home/internal/models"
)

func minute(h, m int) time.Time {
	return time.Date(2026, 8, 30, h, m, 0, 0, time.UTC)
}

func fullRec(ts time.Time, label string, base float64) models.EnergyRecord {
	return models.EnergyRecord{
		Timestamp:         ts,
		PlantLabel:        label,
		PVTotalPower:      base + 1,
		MeasuredLoadPower: base + 2,
		LoadPower:         base + 3,
		BatteryPower:      base + 4,
		GridPower:         base + 5,
		GenPower:          base + 6,
		MeterPower:        base + 7,
		MicroInvPower:     base + 8,
		BatterySoc:        base + 9,
	}
}

func TestCombineHomeSumsSharedMinutes(t *testing.T) {
	ts := minute(12, 0)
	primary := map[time.Time]models.EnergyRecord{ts: fullRec(ts, models.LabelGroundFloor, 100)}
	secondary := map[time.Time]models.EnergyRecord{ts: fullRec(ts, models.LabelFirstFloor, 1000)}

	combined := CombineHome(primary, secondary)
	require.Len(t, combined, 1)
	got := combined[0]

	// Each summed field is exactly the arithmetic sum of both inputs.
	assert.Equal(t, 101.0+1001.0, got.PVTotalPower)
	assert.Equal(t, 102.0+1002.0, got.MeasuredLoadPower)
	assert.Equal(t, 103.0+1003.0, got.LoadPower)
	assert.Equal(t, 104.0+1004.0, got.BatteryPower)
	assert.Equal(t, 105.0+1005.0, got.GridPower)
	assert.Equal(t, 106.0+1006.0, got.GenPower)
	assert.Equal(t, 107.0+1007.0, got.MeterPower)
	assert.Equal(t, 108.0+1008.0, got.MicroInvPower)

	assert.Equal(t, models.LabelHome, got.PlantLabel)
	assert.Equal(t, ts, got.Timestamp)
}

func TestCombineHomeSocSingleSource(t *testing.T) {
	ts := minute(12, 0)
	p := fullRec(ts, models.LabelGroundFloor, 0)
	p.BatterySoc = 55
	s := fullRec(ts, models.LabelFirstFloor, 0)
	s.BatterySoc = 88

	combined := CombineHome(
		map[time.Time]models.EnergyRecord{ts: p},
		map[time.Time]models.EnergyRecord{ts: s},
	)
	require.Len(t, combined, 1)
	// SoC must never reflect the primary inverter when the secondary
	// is present: the battery is shared and one source is trusted.
	assert.Equal(t, 88.0, combined[0].BatterySoc)
}

func TestCombineHomePrimaryOnlyMinute(t *testing.T) {
	ts := minute(12, 0)
	p := models.EnergyRecord{
		Timestamp:    ts,
		PlantLabel:   models.LabelGroundFloor,
		PVTotalPower: 1000,
		LoadPower:    800,
		BatterySoc:   70,
	}

	combined := CombineHome(map[time.Time]models.EnergyRecord{ts: p}, nil)
	require.Len(t, combined, 1)
	got := combined[0]

	assert.Equal(t, 1000.0, got.PVTotalPower)
	assert.Equal(t, 800.0, got.LoadPower)
	// No trusted SoC source this minute.
	assert.Zero(t, got.BatterySoc)
	assert.Equal(t, models.LabelHome, got.PlantLabel)
}

func TestCombineHomeSecondaryOnlyMinute(t *testing.T) {
	ts := minute(12, 0)
	s := models.EnergyRecord{
		Timestamp:    ts,
		PlantLabel:   models.LabelFirstFloor,
		PVTotalPower: 500,
		BatterySoc:   91,
	}

	combined := CombineHome(nil, map[time.Time]models.EnergyRecord{ts: s})
	require.Len(t, combined, 1)
	assert.Equal(t, 91.0, combined[0].BatterySoc)
	assert.Equal(t, models.LabelHome, combined[0].PlantLabel)
}

func TestCombineHomeSortedAcrossDayBoundary(t *testing.T) {
	before := time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC)
	after := time.Date(2026, 8, 31, 0, 1, 0, 0, time.UTC)
	middle := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	primary := map[time.Time]models.EnergyRecord{
		after:  {Timestamp: after},
		before: {Timestamp: before},
	}
	secondary := map[time.Time]models.EnergyRecord{
		middle: {Timestamp: middle},
	}

	combined := CombineHome(primary, secondary)
	require.Len(t, combined, 3)
	assert.Equal(t, before, combined[0].Timestamp)
	assert.Equal(t, middle, combined[1].Timestamp)
	assert.Equal(t, after, combined[2].Timestamp)
}

func TestToSeriesProjection(t *testing.T) {
	ts := minute(9, 30)
	records := []models.EnergyRecord{{
		Timestamp:         ts,
		PVTotalPower:      1500,
		MeasuredLoadPower: 900,
		BatteryPower:      -200,
		GridPower:         50,
		GenPower:          10,
		BatterySoc:        76,
	}}

	points := ToSeries(records)
	require.Len(t, points, 1)
	assert.Equal(t, models.TimeSeriesPoint{
		Timestamp:    ts,
		HomePVPower:  1500,
		LoadPower:    900,
		BatteryPower: -200,
		GridPower:    50,
		GenPower:     10,
		BatterySoc:   76,
	}, points[0])
}
