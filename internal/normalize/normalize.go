// Package normalize converts raw vendor telemetry rows into typed
// EnergyRecords. Every function here is total: malformed or missing
// fields degrade to documented defaults instead of failing, because
// telemetry gaps are expected and must not break aggregation.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Mouaidnasab/dair-home/internal/models"
)

// Documented string defaults applied when the source omits a field.
const (
	DefaultTimeZone = "UTC+02:00"
	DefaultCurrency = "SYP"
	DefaultStatus   = "N"
)

// Timestamp layouts accepted from the vendor, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Normalizer maps raw rows to EnergyRecords. The plant-ID to label
// table is fixed at construction; unknown plants get an empty label.
type Normalizer struct {
	labelByPlant map[string]string
	now          func() time.Time
}

// New creates a Normalizer with the given plant-ID to label mapping.
func New(labelByPlant map[string]string) *Normalizer {
	m := make(map[string]string, len(labelByPlant))
	for id, label := range labelByPlant {
		m[id] = label
	}
	return &Normalizer{labelByPlant: m, now: time.Now}
}

// Record normalizes a single raw row. It never fails; rows of arbitrary
// shape produce a record with defaulted fields.
func (n *Normalizer) Record(row models.RawRow) models.EnergyRecord {
	rec := models.EnergyRecord{
		Timestamp:  n.timestamp(row),
		PlantID:    str(row, "plantId", str(row, "pd_id", "")),
		PlantLabel: str(row, "plantLabel", str(row, "pd_name", "")),

		PVTotalPower: intNum(row, "pd_pvTotalPower"),
		RatedPower:   intNum(row, "pd_ratedPower"),
		TodayPV:      floatNum(row, "pd_todayPv"),
		MonthPV:      floatNum(row, "pd_monthPv"),
		YearPV:       floatNum(row, "pd_yearPv"),
		AccPV:        floatNum(row, "pd_accPv"),
		TodayIncome:  floatNum(row, "pd_pvTodayIncome"),
		MonthIncome:  floatNum(row, "pd_monthPvIncome"),
		YearIncome:   floatNum(row, "pd_yearPvIncome"),
		Currency:     str(row, "pd_currency", DefaultCurrency),

		BatterySoc:   floatNum(row, "ef_emsSoc"),
		BatteryPower: intNum(row, "ef_emsPower"),

		LoadPower:     intNum(row, "ef_acTotalOutActPower"),
		GridPower:     intNum(row, "ef_acTtlInPower"),
		GenPower:      intNum(row, "ef_genPower"),
		MeterPower:    intNum(row, "ef_meterPower"),
		MicroInvPower: intNum(row, "ef_microInvTotalPower"),

		DeviceSN:         str(row, "ef_deviceSn", ""),
		DeviceModel:      str(row, "ef_deviceModel", ""),
		CountryName:      str(row, "pd_countryName", ""),
		CityName:         str(row, "pd_cityName", ""),
		Status:           str(row, "pd_status", DefaultStatus),
		InstallDate:      str(row, "pd_installDateStr", ""),
		TimeZone:         str(row, "pd_timeZone", DefaultTimeZone),
		ElectricityPrice: floatNum(row, "pd_electricityPrice"),
	}

	// CT-measured load falls back to the inverter AC output reading.
	rec.MeasuredLoadPower = intNum(row, "ef_ctThreePhaseTotalPower")
	if rec.MeasuredLoadPower == 0 {
		rec.MeasuredLoadPower = rec.LoadPower
	}

	if rec.PlantLabel == "" {
		rec.PlantLabel = n.labelByPlant[rec.PlantID]
	}
	return rec
}

// Records normalizes a batch of rows, preserving order.
func (n *Normalizer) Records(rows []models.RawRow) []models.EnergyRecord {
	out := make([]models.EnergyRecord, len(rows))
	for i, row := range rows {
		out[i] = n.Record(row)
	}
	return out
}

// timestamp parses the row timestamp, falling back to ingestion time
// when the source omits it. The fallback is a data-quality compromise:
// a record without an instant cannot be bucketed at all.
func (n *Normalizer) timestamp(row models.RawRow) time.Time {
	raw := str(row, "timestamp", "")
	if raw != "" {
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC()
			}
		}
	}
	return n.now().UTC()
}

// str returns the row value as a string, or def when absent or empty.
func str(row models.RawRow, key, def string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return def
	}
	return s
}

// floatNum parses a float-semantic field, substituting 0 on failure.
// ParseFloat accepts "NaN" and "Inf" spellings, so the result is forced
// finite to keep records summable and JSON-encodable.
func floatNum(row models.RawRow, key string) float64 {
	v, ok := row[key]
	if !ok || v == nil {
		return 0
	}
	switch x := v.(type) {
	case float64:
		return finite(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return finite(f)
	default:
		return 0
	}
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// intNum parses an integer-semantic field (instant watt readings),
// truncating fractional input and substituting 0 on failure.
func intNum(row models.RawRow, key string) float64 {
	f := floatNum(row, key)
	return float64(int64(f))
}
