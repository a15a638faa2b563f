package aggregate

import (
	"sort"
	"time"

	"github.com/Mouaidnasab/dair-home/internal/models"
)

// CombineHome merges the minute buckets of the primary (ground floor)
// and secondary (first floor) inverters into one chronologically sorted
// home series, one record per minute in the union of both key sets.
//
// Power and energy fields are summed when both inverters reported in a
// minute. Battery state of charge is deliberately taken from the
// secondary inverter only: the battery is shared and the vendor
// duplicates its SoC per device, so a single source is trusted. When
// only the primary reported, SoC is forced to 0 rather than carrying an
// untrusted value.
func CombineHome(primary, secondary map[time.Time]models.EnergyRecord) []models.EnergyRecord {
	combined := make([]models.EnergyRecord, 0, len(primary)+len(secondary))

	for minute, p := range primary {
		if s, ok := secondary[minute]; ok {
			combined = append(combined, sumRecords(p, s))
			continue
		}
		p.BatterySoc = 0 // no trusted SoC source this minute
		p.PlantID = ""
		p.PlantLabel = models.LabelHome
		combined = append(combined, p)
	}

	for minute, s := range secondary {
		if _, ok := primary[minute]; ok {
			continue // already merged above
		}
		s.PlantID = ""
		s.PlantLabel = models.LabelHome
		combined = append(combined, s)
	}

	SortChronological(combined)
	return combined
}

// SortChronological orders records on the instant, not its string
// form, so ordering holds across day boundaries and offset changes.
func SortChronological(records []models.EnergyRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}

// sumRecords folds one minute of both inverters into a home record.
// Metadata rides along from the primary inverter.
func sumRecords(p, s models.EnergyRecord) models.EnergyRecord {
	out := p
	out.PlantID = ""
	out.PlantLabel = models.LabelHome

	out.PVTotalPower = p.PVTotalPower + s.PVTotalPower
	out.MeasuredLoadPower = p.MeasuredLoadPower + s.MeasuredLoadPower
	out.LoadPower = p.LoadPower + s.LoadPower
	out.BatteryPower = p.BatteryPower + s.BatteryPower
	out.GridPower = p.GridPower + s.GridPower
	out.GenPower = p.GenPower + s.GenPower
	out.MeterPower = p.MeterPower + s.MeterPower
	out.MicroInvPower = p.MicroInvPower + s.MicroInvPower

	// Single source of truth for the shared battery.
	out.BatterySoc = s.BatterySoc
	return out
}

// ToSeries projects records onto the chart view model.
func ToSeries(records []models.EnergyRecord) []models.TimeSeriesPoint {
	points := make([]models.TimeSeriesPoint, len(records))
	for i, r := range records {
		points[i] = models.TimeSeriesPoint{
			Timestamp:    r.Timestamp,
			HomePVPower:  r.PVTotalPower,
			LoadPower:    r.MeasuredLoadPower,
			BatteryPower: r.BatteryPower,
			GridPower:    r.GridPower,
			GenPower:     r.GenPower,
			BatterySoc:   r.BatterySoc,
		}
	}
	return points
}
